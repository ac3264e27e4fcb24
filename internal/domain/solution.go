package domain

// Solution is an ion vector plus the electrochemical totals derived from it.
// The totals are computed once by NewSolution; treat a Solution as read-only.
type Solution struct {
	Ions IonVector `json:"ions"`

	CAT        float64 `json:"cat"`           // cation equivalents, meq/L
	AN         float64 `json:"an"`            // anion equivalents, meq/L
	EC         float64 `json:"ec"`            // (CAT + AN) / 20
	ECNut      float64 `json:"ec_nut"`        // nutrient ions only
	ECExNaHCO3 float64 `json:"ec_ex_na_hco3"` // EC without Na and HCO3
}

// NewSolution derives the summary values for ions. Missing macro keys count as
// zero. The input map is copied, never retained.
func NewSolution(ions IonVector) Solution {
	v := ions.Clone()

	cat := v[NH4] + v[K] + v[Na] + 2*v[Ca] + 2*v[Mg]
	an := v[NO3] + v[Cl] + 2*v[SO4] + v[PO4] + v[HCO3]
	nut := v[NH4] + v[K] + 2*v[Ca] + 2*v[Mg] + v[NO3] + v[Cl] + 2*v[SO4] + v[PO4]

	return Solution{
		Ions:       v,
		CAT:        cat,
		AN:         an,
		EC:         (cat + an) / 20,
		ECNut:      nut / 20,
		ECExNaHCO3: (cat + an - v[HCO3] - v[Na]) / 20,
	}
}

// Get returns the concentration of ion in the solution.
func (s Solution) Get(ion Ion) float64 {
	return s.Ions[ion]
}

// Imbalance returns CAT - AN.
func (s Solution) Imbalance() float64 {
	return s.CAT - s.AN
}
