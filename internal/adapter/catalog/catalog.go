// Package catalog loads standard nutrient recipes and target drain
// compositions from YAML.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/nutrient-calc/internal/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

// document is the YAML layout:
//
//	crops:
//	  <crop>:
//	    compositions:
//	      <substrate>:
//	        <name>: {NO3: 12, K: 7, ...}
//	    target_drains:
//	      <stage>: {K: 8, pH: 5.8, ...}
type document struct {
	Crops map[string]cropDocument `yaml:"crops"`
}

type cropDocument struct {
	Compositions map[string]map[string]map[string]float64 `yaml:"compositions"`
	TargetDrains map[string]map[string]float64            `yaml:"target_drains"`
}

// Recipe identifies one standard composition.
type Recipe struct {
	Crop      string `json:"crop"`
	Substrate string `json:"substrate"`
	Name      string `json:"name"`
}

func (r Recipe) String() string {
	return r.Crop + "/" + r.Substrate + "/" + r.Name
}

// Catalog is an immutable, lower-cased index of recipes and target drains.
// It implements domain.CompositionCatalog.
type Catalog struct {
	compositions map[Recipe]domain.IonVector
	targetDrains map[string]map[string]domain.IonVector
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from a YAML file. An empty path selects Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Unknown ion keys are rejected.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		compositions: make(map[Recipe]domain.IonVector),
		targetDrains: make(map[string]map[string]domain.IonVector),
	}
	for crop, cd := range doc.Crops {
		crop = normalize(crop)
		for substrate, recipes := range cd.Compositions {
			for name, ions := range recipes {
				key := Recipe{Crop: crop, Substrate: normalize(substrate), Name: normalize(name)}
				v, err := toIonVector(ions)
				if err != nil {
					return nil, fmt.Errorf("composition %s: %w", key, err)
				}
				c.compositions[key] = v
			}
		}
		for stage, ions := range cd.TargetDrains {
			v, err := toIonVector(ions)
			if err != nil {
				return nil, fmt.Errorf("target drain %s/%s: %w", crop, stage, err)
			}
			if c.targetDrains[crop] == nil {
				c.targetDrains[crop] = make(map[string]domain.IonVector)
			}
			c.targetDrains[crop][normalize(stage)] = v
		}
	}
	return c, nil
}

// Composition returns a copy of the named standard recipe.
func (c *Catalog) Composition(crop, substrate, name string) (domain.IonVector, error) {
	key := Recipe{Crop: normalize(crop), Substrate: normalize(substrate), Name: normalize(name)}
	v, ok := c.compositions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCompositionNotFound, key)
	}
	return v.Clone(), nil
}

// TargetDrain returns a copy of the target drain for a crop stage.
func (c *Catalog) TargetDrain(crop, stage string) (domain.IonVector, error) {
	v, ok := c.targetDrains[normalize(crop)][normalize(stage)]
	if !ok {
		return nil, fmt.Errorf("%w: target drain %s/%s", domain.ErrCompositionNotFound, crop, stage)
	}
	return v.Clone(), nil
}

// Recipes lists every composition in crop, substrate, name order.
func (c *Catalog) Recipes() []Recipe {
	out := make([]Recipe, 0, len(c.compositions))
	for r := range c.compositions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Stages lists the target drain stages known for crop, sorted.
func (c *Catalog) Stages(crop string) []string {
	stages := c.targetDrains[normalize(crop)]
	out := make([]string, 0, len(stages))
	for s := range stages {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func toIonVector(in map[string]float64) (domain.IonVector, error) {
	out := make(domain.IonVector, len(in))
	for k, v := range in {
		ion := domain.Ion(k)
		if !ion.Valid() {
			return nil, fmt.Errorf("unknown ion %q", k)
		}
		out[ion] = v
	}
	return out, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
