package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mode selects how the target composition is derived.
type Mode string

const (
	// ModeOpen is drain-to-waste: recipe minus raw water.
	ModeOpen Mode = "open"
	// ModeClosed is recirculating: the recipe is corrected from a drain analysis.
	ModeClosed Mode = "closed"
)

// Sample is a stored water analysis (raw water or drain).
type Sample struct {
	Name    string    `json:"name"`
	TakenAt time.Time `json:"taken_at"`
	EC      float64   `json:"ec"` // measured, mS/cm
	Ions    IonVector `json:"ions"`
}

// SampleStore looks up analyses by name.
type SampleStore interface {
	Sample(ctx context.Context, name string) (Sample, error)
}

// CompositionCatalog supplies standard recipes and target drains.
type CompositionCatalog interface {
	// Composition returns the standard recipe for crop, substrate and name.
	Composition(crop, substrate, name string) (IonVector, error)
	// TargetDrain returns the desired drain composition for a crop stage.
	TargetDrain(crop, stage string) (IonVector, error)
}

// CalculationRequest is what a caller submits over HTTP or the request topic.
type CalculationRequest struct {
	ID          string `json:"id"`
	Mode        Mode   `json:"mode"`
	Crop        string `json:"crop"`
	Substrate   string `json:"substrate"`
	Composition string `json:"composition"`

	WaterSource      string `json:"water_source,omitempty"`
	DrainSource      string `json:"drain_source,omitempty"`
	TargetDrainStage string `json:"target_drain_stage,omitempty"`

	NitrogenSource      NitrogenSource `json:"nitrogen_source"`
	IronChelate         IronChelate    `json:"iron_chelate"`
	TankVolumeLiters    float64        `json:"tank_volume_liters,omitempty"`
	ConcentrationFactor float64        `json:"concentration_factor,omitempty"`
	ResidualHCO3        float64        `json:"residual_hco3,omitempty"`

	// HCO3 replaces the recipe's bicarbonate before the target is computed.
	HCO3 *float64 `json:"hco3,omitempty"`
}

// Validate rejects requests that cannot be resolved. Unset tank dimensions
// are allowed; the resolver fills defaults.
func (r CalculationRequest) Validate() error {
	var missing []string
	if r.Crop == "" {
		missing = append(missing, "crop")
	}
	if r.Substrate == "" {
		missing = append(missing, "substrate")
	}
	if r.Composition == "" {
		missing = append(missing, "composition")
	}
	switch r.Mode {
	case "", ModeOpen:
	case ModeClosed:
		if r.DrainSource == "" {
			missing = append(missing, "drain_source")
		}
		if r.TargetDrainStage == "" {
			missing = append(missing, "target_drain_stage")
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if r.TankVolumeLiters < 0 {
		return fmt.Errorf("%w: tank_volume_liters must be positive", ErrInvalidRequest)
	}
	if r.ConcentrationFactor < 0 {
		return fmt.Errorf("%w: concentration_factor must be positive", ErrInvalidRequest)
	}
	return nil
}

// ResolveOptions returns the tank options carried by the request.
func (r CalculationRequest) ResolveOptions() ResolveOptions {
	return ResolveOptions{
		TankVolumeLiters:    r.TankVolumeLiters,
		ConcentrationFactor: r.ConcentrationFactor,
		ResidualHCO3:        r.ResidualHCO3,
	}
}

// CalculationResult is the engine output handed back to callers.
type CalculationResult struct {
	ID       string   `json:"id"`
	Mode     Mode     `json:"mode"`
	Standard Solution `json:"standard"`
	// Target is the fertilizer demand after raw water (and, closed loop, drain
	// correction) has been accounted for.
	Target IonVector `json:"target"`
	// SupplyEC is the EC the fertilizers alone must contribute.
	SupplyEC   float64     `json:"supply_ec"`
	ClosedLoop *ClosedLoop `json:"closed_loop,omitempty"`
	Resolution Resolution  `json:"resolution"`
	// Deviation is realized minus target per ion.
	Deviation    IonVector `json:"deviation"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// Calculate runs the engine for a request whose collaborator data has already
// been looked up. drain and targetDrain are only read in closed mode.
func Calculate(req CalculationRequest, standard, rawWater, drain, targetDrain IonVector) CalculationResult {
	recipe := standard.Clone()
	if req.HCO3 != nil {
		recipe[HCO3] = *req.HCO3
	}

	res := CalculationResult{
		ID:       req.ID,
		Mode:     req.Mode,
		Standard: NewSolution(recipe),
	}
	if res.Mode == "" {
		res.Mode = ModeOpen
	}

	switch res.Mode {
	case ModeClosed:
		cl := NewAdjustment().ClosedLoopTarget(recipe, rawWater, drain, targetDrain)
		res.ClosedLoop = &cl
		res.Target = cl.Target.Ions
	default:
		res.Target = OpenLoopTarget(recipe, rawWater)
	}

	res.SupplyEC = NewSolution(res.Target).EC
	res.Resolution = NewResolver(nil).Resolve(res.Target, req.NitrogenSource, req.IronChelate, req.ResolveOptions())
	res.Deviation = Deviation(res.Target, res.Resolution.Ions)
	return res
}
