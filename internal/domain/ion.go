package domain

// Ion identifies a chemical species tracked in a nutrient solution.
type Ion string

// Macro ions, in mmol/L.
const (
	NH4  Ion = "NH4"
	K    Ion = "K"
	Na   Ion = "Na"
	Ca   Ion = "Ca"
	Mg   Ion = "Mg"
	NO3  Ion = "NO3"
	Cl   Ion = "Cl"
	SO4  Ion = "SO4"
	PO4  Ion = "PO4"
	HCO3 Ion = "HCO3"
)

// Micro ions, in µmol/L.
const (
	Fe Ion = "Fe"
	Mn Ion = "Mn"
	B  Ion = "B"
	Zn Ion = "Zn"
	Cu Ion = "Cu"
	Mo Ion = "Mo"
)

// PH is carried alongside the ions but is dimensionless and never additive.
const PH Ion = "pH"

// MacroIons lists the macro species in display order.
var MacroIons = []Ion{NH4, K, Na, Ca, Mg, NO3, Cl, SO4, PO4, HCO3}

// MicroIons lists the micro species in display order.
var MicroIons = []Ion{Fe, Mn, B, Zn, Cu, Mo}

// AllIons is every key an IonVector may carry, pH included.
var AllIons = append(append(append([]Ion{}, MacroIons...), MicroIons...), PH)

// IsMicro reports whether the ion is measured in µmol/L.
func (i Ion) IsMicro() bool {
	switch i {
	case Fe, Mn, B, Zn, Cu, Mo:
		return true
	default:
		return false
	}
}

// Valid reports whether the ion belongs to the closed species set.
func (i Ion) Valid() bool {
	for _, known := range AllIons {
		if i == known {
			return true
		}
	}
	return false
}

// IonVector maps species to concentrations. Missing keys read as zero.
type IonVector map[Ion]float64

// Get returns the concentration of ion, or zero when absent.
func (v IonVector) Get(ion Ion) float64 {
	return v[ion]
}

// Clone returns an independent copy. A nil vector clones to an empty one.
func (v IonVector) Clone() IonVector {
	out := make(IonVector, len(v))
	for k, c := range v {
		out[k] = c
	}
	return out
}

// Sub returns v - other for every ion in either vector except pH, which is
// taken from v unchanged.
func (v IonVector) Sub(other IonVector) IonVector {
	out := make(IonVector, len(v))
	for k, c := range v {
		out[k] = c
	}
	for k, c := range other {
		if k == PH {
			continue
		}
		out[k] -= c
	}
	return out
}
