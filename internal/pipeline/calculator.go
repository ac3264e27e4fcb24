package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/nutrient-calc/internal/domain"
	"github.com/couchcryptid/nutrient-calc/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Calculator looks up the recipe and water analyses a request names, runs the
// engine and stamps the result. It implements Transformer and is safe for
// concurrent use by the pipeline and the HTTP adapter.
type Calculator struct {
	catalog  domain.CompositionCatalog
	samples  domain.SampleStore
	clock    clockwork.Clock
	defaults domain.ResolveOptions
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewCalculator creates a Calculator. defaults supplies the tank volume and
// concentration factor for requests that leave them unset. A nil clock uses
// real time.
func NewCalculator(catalog domain.CompositionCatalog, samples domain.SampleStore, clock clockwork.Clock, defaults domain.ResolveOptions, logger *slog.Logger, metrics *observability.Metrics) *Calculator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Calculator{
		catalog:  catalog,
		samples:  samples,
		clock:    clock,
		defaults: defaults,
		logger:   logger,
		metrics:  metrics,
	}
}

// Calculate resolves a single request.
func (c *Calculator) Calculate(ctx context.Context, req domain.CalculationRequest) (domain.CalculationResult, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Mode == "" {
		req.Mode = domain.ModeOpen
	}

	res, err := c.calculate(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.Calculations.WithLabelValues(string(req.Mode), outcome).Inc()
	if err != nil {
		return domain.CalculationResult{}, err
	}

	c.logger.Debug("calculation complete",
		"request_id", res.ID,
		"mode", res.Mode,
		"crop", req.Crop,
		"composition", req.Composition,
		"supply_ec", res.SupplyEC,
	)
	return res, nil
}

func (c *Calculator) calculate(ctx context.Context, req domain.CalculationRequest) (domain.CalculationResult, error) {
	if err := req.Validate(); err != nil {
		return domain.CalculationResult{}, err
	}
	if req.TankVolumeLiters == 0 {
		req.TankVolumeLiters = c.defaults.TankVolumeLiters
	}
	if req.ConcentrationFactor == 0 {
		req.ConcentrationFactor = c.defaults.ConcentrationFactor
	}

	standard, err := c.catalog.Composition(req.Crop, req.Substrate, req.Composition)
	if err != nil {
		return domain.CalculationResult{}, fmt.Errorf("lookup composition: %w", err)
	}

	rawWater, err := c.sampleIons(ctx, req.WaterSource)
	if err != nil {
		return domain.CalculationResult{}, fmt.Errorf("lookup water source: %w", err)
	}

	var drain, targetDrain domain.IonVector
	if req.Mode == domain.ModeClosed {
		drain, err = c.sampleIons(ctx, req.DrainSource)
		if err != nil {
			return domain.CalculationResult{}, fmt.Errorf("lookup drain source: %w", err)
		}
		targetDrain, err = c.catalog.TargetDrain(req.Crop, req.TargetDrainStage)
		if err != nil {
			return domain.CalculationResult{}, fmt.Errorf("lookup target drain: %w", err)
		}
	}

	res := domain.Calculate(req, standard, rawWater, drain, targetDrain)
	res.CalculatedAt = c.clock.Now().UTC()
	return res, nil
}

// sampleIons returns the stored analysis for name. An empty name means no
// analysis, which is treated as pure water.
func (c *Calculator) sampleIons(ctx context.Context, name string) (domain.IonVector, error) {
	if name == "" {
		return domain.IonVector{}, nil
	}
	s, err := c.samples.Sample(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.Ions, nil
}

// Transform decodes a request from the request topic, calculates it and
// serializes the result. The message key is used as the request ID when the
// body carries none.
func (c *Calculator) Transform(ctx context.Context, raw domain.RawMessage) (domain.OutputMessage, error) {
	var req domain.CalculationRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return domain.OutputMessage{}, fmt.Errorf("%w: decode request: %w", domain.ErrInvalidRequest, err)
	}
	if req.ID == "" && len(raw.Key) > 0 {
		req.ID = string(raw.Key)
	}

	res, err := c.Calculate(ctx, req)
	if err != nil {
		return domain.OutputMessage{}, err
	}
	return SerializeResult(res)
}

// SerializeResult marshals a result into a message keyed by request ID.
func SerializeResult(res domain.CalculationResult) (domain.OutputMessage, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return domain.OutputMessage{}, fmt.Errorf("serialize calculation result: %w", err)
	}
	return domain.OutputMessage{
		Key:   []byte(res.ID),
		Value: data,
		Headers: map[string]string{
			"mode":          string(res.Mode),
			"calculated_at": res.CalculatedAt.Format(time.RFC3339),
		},
	}, nil
}
