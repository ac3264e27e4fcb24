package domain

// Tank is one of the two stock concentrate tanks. Calcium salts (A) and
// sulfates/phosphates (B) precipitate if mixed at stock strength.
type Tank string

const (
	TankA Tank = "A"
	TankB Tank = "B"
)

// Default stock dimensions when a caller leaves them unset.
const (
	DefaultTankVolumeLiters    = 1000.0
	DefaultConcentrationFactor = 100.0
)

// boraxBoronPerMole is the boron atoms supplied by one mole of borax.
const boraxBoronPerMole = 4

// decahydrateCaPerMole is the calcium supplied by one mole of the
// 5Ca(NO3)2·NH4NO3·10H2O blend; it also supplies one NH4 and eleven NO3.
const (
	decahydrateCaPerMole  = 5
	decahydrateNO3PerMole = 11
)

// microCarriers maps each micro ion to its salt, iron excluded.
var microCarriers = []struct {
	ion  Ion
	fert Fertilizer
}{
	{Mn, MnSO4},
	{B, Borax},
	{Zn, ZnSO4},
	{Cu, CuSO4},
	{Mo, NaMoO4},
}

// ResolveOptions sizes the stock tanks.
type ResolveOptions struct {
	TankVolumeLiters    float64 `json:"tank_volume_liters"`
	ConcentrationFactor float64 `json:"concentration_factor"`
	// ResidualHCO3 is the bicarbonate (mmol/L) left un-neutralized. Zero
	// neutralizes the whole deficit.
	ResidualHCO3 float64 `json:"residual_hco3,omitempty"`
}

// withDefaults fills unset or non-positive tank dimensions.
func (o ResolveOptions) withDefaults() ResolveOptions {
	if o.TankVolumeLiters <= 0 {
		o.TankVolumeLiters = DefaultTankVolumeLiters
	}
	if o.ConcentrationFactor <= 0 {
		o.ConcentrationFactor = DefaultConcentrationFactor
	}
	return o
}

// TankPlan records where each fertilizer goes and how potassium nitrate was
// split to even out the dissolved mass.
type TankPlan struct {
	Assignment    map[Fertilizer]Tank `json:"assignment"`
	KNO3TotalKg   float64             `json:"kno3_total_kg"`
	KNO3ShiftKg   float64             `json:"kno3_shift_kg"`
	KNO3FractionA float64             `json:"kno3_fraction_a"`
	MassAKg       float64             `json:"mass_a_kg"`
	MassBKg       float64             `json:"mass_b_kg"`
}

// Resolution is the fertilizer program for a target ion vector.
type Resolution struct {
	NitrogenSource NitrogenSource `json:"nitrogen_source"`
	IronChelate    IronChelate    `json:"iron_chelate"`
	Options        ResolveOptions `json:"options"`

	// Fertilizers holds mmol/L for macro salts and µmol/L for micro salts.
	Fertilizers map[Fertilizer]float64 `json:"fertilizers"`
	// Ions is what the fertilizers actually deliver; compare it to the target.
	Ions               IonVector              `json:"ions"`
	KgPerStock         map[Fertilizer]float64 `json:"kg_per_stock"`
	MicroGramsPerStock map[Fertilizer]float64 `json:"micro_grams_per_stock"`
	LitersPerStock     map[Fertilizer]float64 `json:"liters_per_stock,omitempty"`
	Tanks              TankPlan               `json:"tanks"`
}

// Resolver converts target ion concentrations into stock-tank fertilizer
// quantities. It is stateless apart from its read-only compound table.
type Resolver struct {
	specs FertilizerTable
}

// NewResolver returns a Resolver over specs, or over the built-in table when
// specs is nil.
func NewResolver(specs FertilizerTable) Resolver {
	if specs == nil {
		specs = fertilizerSpecs
	}
	return Resolver{specs: specs}
}

// AcidDemand returns the nitric acid (mmol/L) needed to bring hco3 up to
// residual, one mole of acid per mole of bicarbonate.
func AcidDemand(hco3, residual float64) float64 {
	return nonNegative(residual - hco3)
}

// Resolve computes fertilizer moles, realized ions, stock masses and the A/B
// tank plan for target.
func (r Resolver) Resolve(target IonVector, nitrogen NitrogenSource, iron IronChelate, opts ResolveOptions) Resolution {
	opts = opts.withDefaults()

	moles, ions := r.macroMoles(target, nitrogen, opts.ResidualHCO3)

	res := Resolution{
		NitrogenSource:     nitrogen,
		IronChelate:        iron,
		Options:            opts,
		Fertilizers:        moles,
		Ions:               ions,
		KgPerStock:         make(map[Fertilizer]float64, len(moles)+1),
		MicroGramsPerStock: make(map[Fertilizer]float64, len(microCarriers)+1),
		LitersPerStock:     make(map[Fertilizer]float64),
	}

	for fert, mmol := range moles {
		kg := r.stockKg(fert, mmol, opts)
		res.KgPerStock[fert] = kg
		if spec := r.specs[fert]; spec.Liquid() {
			res.LitersPerStock[fert] = kg / spec.Density
		}
	}

	r.addMicro(&res, target, iron.Fertilizer(), Fe, opts)
	for _, c := range microCarriers {
		r.addMicro(&res, target, c.fert, c.ion, opts)
	}

	res.Tanks = r.balanceTanks(&res, nitrogen, iron)
	return res
}

// macroMoles solves the macro stoichiometry and returns the fertilizer moles
// together with the ions they deliver. Demands are clamped at zero, so an
// unreachable target shows up as a difference in the realized ions.
func (r Resolver) macroMoles(target IonVector, nitrogen NitrogenSource, residualHCO3 float64) (map[Fertilizer]float64, IonVector) {
	acid := AcidDemand(target[HCO3], residualHCO3)
	kh2po4 := nonNegative(target[PO4])
	mgso4 := nonNegative(target[Mg])
	k2so4 := nonNegative(target[SO4] - mgso4)
	kno3 := nonNegative(target[K] - kh2po4 - 2*k2so4)

	ions := IonVector{
		K:    kh2po4 + 2*k2so4 + kno3,
		Mg:   mgso4,
		SO4:  mgso4 + k2so4,
		PO4:  kh2po4,
		HCO3: target[HCO3],
	}

	var caFert, nh4no3 float64
	switch nitrogen {
	case Decahydrate:
		caFert = nonNegative(target[Ca]) / decahydrateCaPerMole
		nh4no3 = nonNegative(target[NH4] - caFert)
		ions[Ca] = caFert * decahydrateCaPerMole
		ions[NH4] = caFert + nh4no3
		ions[NO3] = acid + caFert*decahydrateNO3PerMole + nh4no3 + kno3
	default:
		caFert = nonNegative(target[Ca])
		nh4no3 = nonNegative(target[NH4])
		ions[Ca] = caFert
		ions[NH4] = nh4no3
		ions[NO3] = acid + 2*caFert + nh4no3 + kno3
	}

	moles := map[Fertilizer]float64{
		HNO3:                         acid,
		nitrogen.CalciumFertilizer(): caFert,
		NH4NO3:                       nh4no3,
		KH2PO4:                       kh2po4,
		MgSO4:                        mgso4,
		K2SO4:                        k2so4,
		KNO3:                         kno3,
	}
	return moles, ions
}

// stockKg converts mmol/L in the final solution to kg in the stock tank.
func (r Resolver) stockKg(fert Fertilizer, mmol float64, opts ResolveOptions) float64 {
	return mmol * r.specs[fert].MolarMass / 1e6 * opts.TankVolumeLiters * opts.ConcentrationFactor
}

// addMicro converts a micro ion (µmol/L) to grams of its carrier salt.
func (r Resolver) addMicro(res *Resolution, target IonVector, fert Fertilizer, ion Ion, opts ResolveOptions) {
	umol := nonNegative(target[ion])
	spec := r.specs[fert]

	grams := umol * 1e-6 * spec.MolarMass * opts.TankVolumeLiters * opts.ConcentrationFactor
	if fert == Borax {
		grams /= boraxBoronPerMole
	}

	res.Fertilizers[fert] = umol
	res.Ions[ion] = umol
	res.MicroGramsPerStock[fert] = grams
	if spec.Liquid() {
		res.LitersPerStock[fert] = grams / (spec.Density * 1000)
	}
}

// balanceTanks assigns every fertilizer to a tank and splits potassium nitrate
// so the two tanks carry as close to equal mass as it allows. KNO3 starts in
// tank B; shift = clamp((B - A) / 2, 0, total) moves to A.
func (r Resolver) balanceTanks(res *Resolution, nitrogen NitrogenSource, iron IronChelate) TankPlan {
	assignment := map[Fertilizer]Tank{
		HNO3:                         TankA,
		nitrogen.CalciumFertilizer(): TankA,
		NH4NO3:                       TankA,
		iron.Fertilizer():            TankA,
		KNO3TankA:                    TankA,
		KH2PO4:                       TankB,
		MgSO4:                        TankB,
		K2SO4:                        TankB,
		KNO3TankB:                    TankB,
	}
	for _, c := range microCarriers {
		assignment[c.fert] = TankB
	}

	total := res.KgPerStock[KNO3]
	var massA, massB float64
	for fert, tank := range assignment {
		kg := res.KgPerStock[fert] + res.MicroGramsPerStock[fert]/1000
		if tank == TankA {
			massA += kg
		} else {
			massB += kg
		}
	}
	// KNO3 itself is not in the assignment yet; it starts in B.
	massB += total

	shift := clampRange((massB-massA)/2, 0, total)
	res.KgPerStock[KNO3TankA] = shift
	res.KgPerStock[KNO3TankB] = total - shift
	delete(res.KgPerStock, KNO3)

	fraction := 0.0
	if total > 0 {
		fraction = shift / total
	}
	return TankPlan{
		Assignment:    assignment,
		KNO3TotalKg:   total,
		KNO3ShiftKg:   shift,
		KNO3FractionA: fraction,
		MassAKg:       massA + shift,
		MassBKg:       massB - shift,
	}
}

// Deviation returns realized - target for every ion the realized vector
// carries, pH excluded.
func Deviation(target, realized IonVector) IonVector {
	out := make(IonVector, len(realized))
	for ion, v := range realized {
		if ion == PH {
			continue
		}
		out[ion] = v - target[ion]
	}
	return out
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
