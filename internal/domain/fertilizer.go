package domain

import (
	"fmt"
	"strings"
)

// Fertilizer identifies a stock-tank compound.
type Fertilizer string

const (
	HNO3       Fertilizer = "HNO3"
	NH4NO3     Fertilizer = "NH4NO3"
	CaNO34H2O  Fertilizer = "CaNO3_4H2O"
	CaNO310H2O Fertilizer = "CaNO3_10H2O"
	KH2PO4     Fertilizer = "KH2PO4"
	MgSO4      Fertilizer = "MgSO4"
	K2SO4      Fertilizer = "K2SO4"
	KNO3       Fertilizer = "KNO3"
	FeDTPA     Fertilizer = "Fe_DTPA"
	FeEDTA     Fertilizer = "Fe_EDTA"
	FeEDDHA    Fertilizer = "Fe_EDDHA"
	MnSO4      Fertilizer = "MnSO4"
	ZnSO4      Fertilizer = "ZnSO4"
	Borax      Fertilizer = "Borax"
	CuSO4      Fertilizer = "CuSO4"
	NaMoO4     Fertilizer = "NaMoO4"

	// KNO3TankA and KNO3TankB hold the two halves of the potassium nitrate
	// split in Resolution.KgPerStock.
	KNO3TankA Fertilizer = "KNO3_A"
	KNO3TankB Fertilizer = "KNO3_B"
)

// FertilizerSpec is fixed compound data. Density is in kg/L and is zero for
// solids.
type FertilizerSpec struct {
	MolarMass float64 `json:"molar_mass"`
	Density   float64 `json:"density,omitempty"`
}

// Liquid reports whether the fertilizer is dosed by volume.
func (s FertilizerSpec) Liquid() bool {
	return s.Density > 0
}

// FertilizerTable maps compounds to their specs. It is read-only.
type FertilizerTable map[Fertilizer]FertilizerSpec

// fertilizerSpecs holds the commercial-grade figures the tank masses are
// calibrated against. Nitric acid is 38% product, hence 167 g/mol.
var fertilizerSpecs = FertilizerTable{
	HNO3:       {MolarMass: 167, Density: 1.24},
	NH4NO3:     {MolarMass: 156, Density: 1.24},
	CaNO34H2O:  {MolarMass: 236.2},
	CaNO310H2O: {MolarMass: 1080.5},
	KH2PO4:     {MolarMass: 136.1},
	MgSO4:      {MolarMass: 246.4},
	K2SO4:      {MolarMass: 174.3},
	KNO3:       {MolarMass: 101.1},
	// No density is known for Fe-DTPA, so it resolves as a solid. Pass a
	// table with Density set to NewResolver to get LitersPerStock for it.
	FeDTPA:     {MolarMass: 932},
	FeEDTA:     {MolarMass: 446.17},
	FeEDDHA:    {MolarMass: 435.2},
	MnSO4:      {MolarMass: 169},
	ZnSO4:      {MolarMass: 287.5},
	Borax:      {MolarMass: 95.3},
	CuSO4:      {MolarMass: 249.7},
	NaMoO4:     {MolarMass: 241.9},
}

// DefaultFertilizers returns a copy of the built-in compound table.
func DefaultFertilizers() FertilizerTable {
	out := make(FertilizerTable, len(fertilizerSpecs))
	for k, v := range fertilizerSpecs {
		out[k] = v
	}
	return out
}

// NitrogenSource selects the calcium nitrate product.
type NitrogenSource int

const (
	// Tetrahydrate is Ca(NO3)2·4H2O.
	Tetrahydrate NitrogenSource = iota
	// Decahydrate is the 5Ca(NO3)2·NH4NO3·10H2O blend.
	Decahydrate
)

func (n NitrogenSource) String() string {
	switch n {
	case Tetrahydrate:
		return "tetrahydrate"
	case Decahydrate:
		return "decahydrate"
	default:
		return fmt.Sprintf("NitrogenSource(%d)", int(n))
	}
}

// CalciumFertilizer returns the compound carrying calcium for this source.
func (n NitrogenSource) CalciumFertilizer() Fertilizer {
	if n == Decahydrate {
		return CaNO310H2O
	}
	return CaNO34H2O
}

// MarshalText implements encoding.TextMarshaler.
func (n NitrogenSource) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NitrogenSource) UnmarshalText(text []byte) error {
	v, err := ParseNitrogenSource(string(text))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

// ParseNitrogenSource accepts "tetrahydrate"/"4H2O" and "decahydrate"/"10H2O".
// The empty string selects the tetrahydrate.
func ParseNitrogenSource(s string) (NitrogenSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tetrahydrate", "4h2o":
		return Tetrahydrate, nil
	case "decahydrate", "10h2o":
		return Decahydrate, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownNitrogenSource, s)
	}
}

// IronChelate selects the iron carrier.
type IronChelate int

const (
	DTPA IronChelate = iota
	EDTA
	EDDHA
)

func (c IronChelate) String() string {
	switch c {
	case DTPA:
		return "DTPA"
	case EDTA:
		return "EDTA"
	case EDDHA:
		return "EDDHA"
	default:
		return fmt.Sprintf("IronChelate(%d)", int(c))
	}
}

// Fertilizer returns the compound for the chelate.
func (c IronChelate) Fertilizer() Fertilizer {
	switch c {
	case EDTA:
		return FeEDTA
	case EDDHA:
		return FeEDDHA
	default:
		return FeDTPA
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c IronChelate) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *IronChelate) UnmarshalText(text []byte) error {
	v, err := ParseIronChelate(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseIronChelate accepts "DTPA", "EDTA", "EDDHA", optionally prefixed with
// "Fe-". The empty string selects DTPA.
func ParseIronChelate(s string) (IronChelate, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "FE-")
	v = strings.TrimPrefix(v, "FE_")
	switch v {
	case "", "DTPA":
		return DTPA, nil
	case "EDTA":
		return EDTA, nil
	case "EDDHA":
		return EDDHA, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownIronChelate, s)
	}
}
