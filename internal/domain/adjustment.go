package domain

// Correction tables for recirculating systems. These are empirically tuned
// agronomic rules, not derived quantities; keep them literal.
var (
	// macroBoundaries split a drain concentration (mmol/L) into five levels.
	macroBoundaries = map[Ion][]float64{
		K:   {3.0, 4.0, 7.1, 9.0},
		Ca:  {3.0, 4.0, 7.1, 9.0},
		Mg:  {1.5, 2.33, 3.17, 4.0},
		NO3: {6.0, 8.0, 16.1, 18.0},
		SO4: {1.5, 2.33, 3.17, 4.0},
		PO4: {0.30, 0.60, 1.21, 1.75},
	}

	// macroDeltas are additive mmol/L corrections indexed by level offset + 2.
	// The last Mg entry is positive in the calibrated table.
	macroDeltas = map[Ion][]float64{
		K:   {1.25, 0.625, 0, -0.625, -1.25},
		Ca:  {0.75, 0.375, 0, -0.375, -0.75},
		Mg:  {0.2, 0.1, 0, -0.1, 0.2},
		NO3: {2.25, 1.125, 0, -1.125, -2.25},
		SO4: {0.25, 0.125, 0, -0.125, -0.25},
		PO4: {0.25, 0.125, 0, -0.125, -0.25},
	}

	// microBoundaries split a drain concentration (µmol/L) into levels. Mn has
	// one boundary fewer than the rest.
	microBoundaries = map[Ion][]float64{
		Fe: {15.0, 20.0, 35.1, 50.0},
		Mn: {1.0, 4.1, 6.0},
		Zn: {2.0, 3.0, 5.1, 8.8},
		B:  {5, 10, 26, 30},
		Cu: {0.30, 0.50, 3.01, 4.0},
	}

	// microPercents are relative corrections (percent of the base solution).
	microPercents = map[Ion][]float64{
		Fe: {50, 25, 0, -25, -50},
		Mn: {50, 25, 0, -25, -50},
		Zn: {50, 25, 0, -25, -50},
		B:  {50, 25, 0, -25, -50},
		Cu: {50, 25, 0, -25, -50},
	}
)

// Iteration order for the correction tables, so results are deterministic.
var (
	correctedMacroIons = []Ion{K, Ca, Mg, NO3, SO4, PO4}
	correctedMicroIons = []Ion{Fe, Mn, Zn, B, Cu}
)

const (
	// idealKCaRatio is the drain K/Ca ratio that needs no side correction.
	idealKCaRatio = 1.5

	rebalanceTolerance = 1e-12
)

// Adjustment computes fertilizer targets from a standard recipe and water
// analyses. It holds only read-only lookup tables and is safe for concurrent use.
type Adjustment struct {
	macroBoundaries map[Ion][]float64
	macroDeltas     map[Ion][]float64
	microBoundaries map[Ion][]float64
	microPercents   map[Ion][]float64
}

// NewAdjustment returns an Adjustment backed by the calibrated tables.
func NewAdjustment() Adjustment {
	return Adjustment{
		macroBoundaries: macroBoundaries,
		macroDeltas:     macroDeltas,
		microBoundaries: microBoundaries,
		microPercents:   microPercents,
	}
}

// Level returns the bucket of value against ascending boundaries: the index of
// the first boundary strictly greater than value, or len(boundaries) when none
// is. A value equal to a boundary lands in the bucket above it.
func Level(boundaries []float64, value float64) int {
	for i, bound := range boundaries {
		if value < bound {
			return i
		}
	}
	return len(boundaries)
}

// correctionIndex maps the level difference onto a five-entry table.
func correctionIndex(current, target, size int) int {
	idx := current - target + 2
	if idx < 0 {
		return 0
	}
	if idx > size-1 {
		return size - 1
	}
	return idx
}

// OpenLoopTarget returns the fertilizer demand for drain-to-waste systems:
// standard minus raw water for every ion, with pH taken from standard.
func OpenLoopTarget(standard, rawWater IonVector) IonVector {
	return standard.Sub(rawWater)
}

// DrainCorrection rescales the measured drain onto the conductivity basis of
// the target drain: drain[ion] * target.EC / drain.ECExNaHCO3. A zero
// denominator yields an all-zero correction.
func DrainCorrection(drain, targetDrain Solution) IonVector {
	ratio := 0.0
	if drain.ECExNaHCO3 != 0 {
		ratio = targetDrain.EC / drain.ECExNaHCO3
	}

	out := make(IonVector, len(AllIons))
	for _, ion := range AllIons {
		_, inDrain := drain.Ions[ion]
		_, inTarget := targetDrain.Ions[ion]
		if !inDrain && !inTarget {
			continue
		}
		out[ion] = drain.Ions[ion] * ratio
	}
	return out
}

// MacroCorrections returns additive mmol/L deltas for K, Ca, Mg, NO3, SO4 and
// PO4, including the K/Ca ratio side correction.
func (a Adjustment) MacroCorrections(drainCorrection, targetDrain IonVector) IonVector {
	out := make(IonVector, len(correctedMacroIons))
	for _, ion := range correctedMacroIons {
		bounds := a.macroBoundaries[ion]
		deltas := a.macroDeltas[ion]
		idx := correctionIndex(Level(bounds, drainCorrection[ion]), Level(bounds, targetDrain[ion]), len(deltas))
		out[ion] = deltas[idx]
	}

	// Without Ca the ratio is undefined; skip rather than act on Inf or NaN.
	if ca := drainCorrection[Ca]; ca != 0 {
		switch ratio := drainCorrection[K] / ca; {
		case ratio < idealKCaRatio:
			out[K] += 0.25
			out[Ca] -= 0.125
		case ratio > idealKCaRatio:
			out[K] -= 0.5
			out[Ca] += 0.25
		}
	}
	return out
}

// MicroCorrections returns absolute µmol/L deltas for Fe, Mn, Zn, B and Cu,
// computed as a percentage of the base solution's concentration.
func (a Adjustment) MicroCorrections(drainCorrection, targetDrain, base IonVector) IonVector {
	out := make(IonVector, len(correctedMicroIons))
	for _, ion := range correctedMicroIons {
		bounds := a.microBoundaries[ion]
		percents := a.microPercents[ion]
		idx := correctionIndex(Level(bounds, drainCorrection[ion]), Level(bounds, targetDrain[ion]), len(percents))
		out[ion] = base[ion] * percents[idx] / 100
	}
	return out
}

// ExtraNH4 returns the ammonium addition (mmol/L) suggested by the drain's
// NH4 and HCO3 levels and the target drain pH.
func ExtraNH4(drainNH4, drainHCO3, targetPH float64) float64 {
	switch {
	case targetPH >= 5.5 && drainHCO3 < 0.5:
		return 0.4
	case targetPH >= 5 && drainNH4 < 0.5 && drainHCO3 >= 0.5 && drainHCO3 < 1:
		return 0.6
	case targetPH >= 5 && targetPH < 6 && drainNH4 < 0.5 && drainHCO3 > 1:
		return 0.4
	case targetPH >= 6 && drainNH4 < 0.5 && drainHCO3 > 1:
		return 0.8
	default:
		return 0
	}
}

// TotalCorrections merges macro, micro and ammonium corrections.
func (a Adjustment) TotalCorrections(drainCorrection, targetDrain, base IonVector) IonVector {
	out := a.MacroCorrections(drainCorrection, targetDrain)
	out[NH4] += ExtraNH4(drainCorrection[NH4], drainCorrection[HCO3], targetDrain[PH])
	for ion, delta := range a.MicroCorrections(drainCorrection, targetDrain, base) {
		out[ion] = delta
	}
	return out
}

// ClosedLoop is the outcome of a recirculating-drain correction.
type ClosedLoop struct {
	DrainCorrection IonVector `json:"drain_correction"`
	Corrections     IonVector `json:"corrections"`
	Target          Solution  `json:"target"`
}

// ClosedLoopTarget corrects the base recipe toward the target drain, subtracts
// raw water, clamps every ion but HCO3 at zero and rebalances charge.
func (a Adjustment) ClosedLoopTarget(base, rawWater, drain, targetDrain IonVector) ClosedLoop {
	drainSol := NewSolution(drain)
	targetSol := NewSolution(targetDrain)

	dc := DrainCorrection(drainSol, targetSol)
	corrections := a.TotalCorrections(dc, targetSol.Ions, base)

	adjusted := make(IonVector, len(AllIons))
	for _, ion := range AllIons {
		if ion == PH {
			continue
		}
		_, inBase := base[ion]
		_, inCorr := corrections[ion]
		_, inRaw := rawWater[ion]
		if !inBase && !inCorr && !inRaw {
			continue
		}
		v := base[ion] + corrections[ion] - rawWater[ion]
		if ion != HCO3 && v < 0 {
			v = 0
		}
		adjusted[ion] = v
	}
	if ph, ok := base[PH]; ok {
		adjusted[PH] = ph
	}

	return ClosedLoop{
		DrainCorrection: dc,
		Corrections:     corrections,
		Target:          Rebalance(NewSolution(adjusted)),
	}
}

// Rebalance moves the charge imbalance CAT - AN onto K and Ca. The split keeps
// the K:Ca ratio of -(K/(K+Ca+Mg)) : -(2Ca/(K+Ca+Mg)) and is scaled so that
// the result is exactly neutral. Without K, Ca or Mg there is nothing to move
// and s is returned unchanged.
//
// The unscaled pair dK = -K/(K+Ca+Mg)*diff, dCa = -2Ca/(K+Ca+Mg)*diff is not
// charge-neutral: it removes (K+4Ca)/(K+Ca+Mg)*diff equivalents, which equals
// diff only in special cases. For K=5, Ca=3, Mg=1, diff=3 it lowers K by 5/3
// and leaves a residual charge; the rescaled pair lowers K by 15/17 instead.
func Rebalance(s Solution) Solution {
	diff := s.Imbalance()
	k, ca, mg := s.Ions[K], s.Ions[Ca], s.Ions[Mg]
	total := k + ca + mg
	if total == 0 || diff > -rebalanceTolerance && diff < rebalanceTolerance {
		return s
	}

	shareK := k / total
	shareCa := ca / total
	dK := -shareK * diff
	dCa := -shareCa * diff * 2

	// dK + 2*dCa must cancel diff; rescale the pair when Mg holds a share.
	moved := dK + 2*dCa
	if moved == 0 {
		return s
	}
	scale := -diff / moved
	dK *= scale
	dCa *= scale

	ions := s.Ions.Clone()
	ions[K] = k + dK
	ions[Ca] = ca + dCa
	return NewSolution(ions)
}
