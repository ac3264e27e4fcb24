// Command validate runs every catalog recipe through the calculation engine
// and checks that the resolved fertilizer plan reproduces the target. It
// verifies catalog sanity, open loop resolution accuracy and closed loop
// feasibility for each target drain stage.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -catalog configs/catalog.yaml \
//	  -db data/samples.db -water default-raw-water \
//	  -tolerance 0.05
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/couchcryptid/nutrient-calc/internal/adapter/catalog"
	"github.com/couchcryptid/nutrient-calc/internal/adapter/sqlite"
	"github.com/couchcryptid/nutrient-calc/internal/domain"
)

// checkedIons are supplied by exactly one carrier each, so the resolver must
// hit them. NO3 and SO4 absorb the remainders and are reported only.
var checkedIons = []domain.Ion{
	domain.NH4, domain.K, domain.Ca, domain.Mg, domain.PO4,
	domain.Fe, domain.Mn, domain.Zn, domain.B, domain.Cu, domain.Mo,
}

var reportedIons = []domain.Ion{
	domain.NO3, domain.NH4, domain.K, domain.Ca, domain.Mg, domain.SO4, domain.PO4,
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	catalogPath := flag.String("catalog", "", "YAML composition catalog (default: built in)")
	dbPath := flag.String("db", "", "samples SQLite database; empty validates against pure water")
	water := flag.String("water", "default-raw-water", "raw water sample name in -db")
	tolerance := flag.Float64("tolerance", 0.05, "maximum absolute deviation per checked ion")
	flag.Parse()

	if *tolerance <= 0 {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*catalogPath, *dbPath, *water, *tolerance))
}

func run(catalogPath, dbPath, water string, tolerance float64) int {
	fmt.Println("=== Nutrient Recipe Validation ===")
	fmt.Println()

	c, err := catalog.Load(catalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load catalog: %v\n", err)
		return 1
	}

	raw := domain.IonVector{}
	if dbPath != "" {
		raw, err = loadWater(dbPath, water)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load raw water: %v\n", err)
			return 1
		}
	}

	recipes := c.Recipes()
	phases := []*phase{
		validateCatalog(c, recipes),
		validateOpenLoop(c, recipes, raw, tolerance),
		validateClosedLoop(c, recipes, raw),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Recipes: %d, raw water: %s, tolerance: %.3f\n", len(recipes), waterLabel(dbPath, water), tolerance)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadWater(dbPath, name string) (domain.IonVector, error) {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	s, err := store.Sample(context.Background(), name)
	if err != nil {
		return nil, err
	}
	return s.Ions, nil
}

func waterLabel(dbPath, name string) string {
	if dbPath == "" {
		return "pure"
	}
	return name
}

// ── Phase 1: Catalog ──

func validateCatalog(c *catalog.Catalog, recipes []catalog.Recipe) *phase {
	p := &phase{name: "Phase 1: Catalog Sanity"}

	if len(recipes) == 0 {
		p.errorf("catalog has no recipes")
	}
	for _, r := range recipes {
		v, err := c.Composition(r.Crop, r.Substrate, r.Name)
		if err != nil {
			p.errorf("%s: %v", r, err)
			continue
		}
		for ion, val := range v {
			if val < 0 {
				p.errorf("%s: %s is negative (%.3f)", r, ion, val)
			}
		}
		if s := domain.NewSolution(v); s.EC <= 0 {
			p.errorf("%s: EC is %.3f", r, s.EC)
		}
	}
	return p
}

// ── Phase 2: Open loop ──

func validateOpenLoop(c *catalog.Catalog, recipes []catalog.Recipe, raw domain.IonVector, tolerance float64) *phase {
	p := &phase{name: "Phase 2: Open Loop Resolution"}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "recipe\t")
	for _, ion := range reportedIons {
		fmt.Fprintf(tw, "Δ%s\t", ion)
	}
	fmt.Fprintln(tw, "A kg\tB kg\t")

	for _, r := range recipes {
		standard, err := c.Composition(r.Crop, r.Substrate, r.Name)
		if err != nil {
			p.errorf("%s: %v", r, err)
			continue
		}
		req := domain.CalculationRequest{Mode: domain.ModeOpen, Crop: r.Crop, Substrate: r.Substrate, Composition: r.Name}
		res := domain.Calculate(req, standard, raw, nil, nil)

		fmt.Fprintf(tw, "%s\t", r)
		for _, ion := range reportedIons {
			fmt.Fprintf(tw, "%+.3f\t", res.Deviation.Get(ion))
		}
		fmt.Fprintf(tw, "%.2f\t%.2f\t\n", res.Resolution.Tanks.MassAKg, res.Resolution.Tanks.MassBKg)

		for _, ion := range checkedIons {
			if d := res.Deviation.Get(ion); math.Abs(d) > tolerance {
				p.errorf("%s: %s deviates by %+.3f", r, ion, d)
			}
		}
		for fert, kg := range res.Resolution.KgPerStock {
			if kg < 0 || math.IsNaN(kg) {
				p.errorf("%s: %s mass is %.3f kg", r, fert, kg)
			}
		}
	}
	tw.Flush()
	return p
}

// ── Phase 3: Closed loop ──

func validateClosedLoop(c *catalog.Catalog, recipes []catalog.Recipe, raw domain.IonVector) *phase {
	p := &phase{name: "Phase 3: Closed Loop Feasibility"}

	for _, r := range recipes {
		standard, err := c.Composition(r.Crop, r.Substrate, r.Name)
		if err != nil {
			p.errorf("%s: %v", r, err)
			continue
		}
		for _, stage := range c.Stages(r.Crop) {
			target, err := c.TargetDrain(r.Crop, stage)
			if err != nil {
				p.errorf("%s/%s: %v", r, stage, err)
				continue
			}
			req := domain.CalculationRequest{
				Mode: domain.ModeClosed, Crop: r.Crop, Substrate: r.Substrate,
				Composition: r.Name, TargetDrainStage: stage,
			}
			// Drain equal to target drain means no correction is needed.
			res := domain.Calculate(req, standard, raw, target, target)
			if res.ClosedLoop == nil {
				p.errorf("%s/%s: no closed loop result", r, stage)
				continue
			}
			for ion, v := range res.ClosedLoop.Target.Ions {
				if v < 0 {
					p.errorf("%s/%s: %s is negative (%.3f)", r, stage, ion, v)
				}
			}
			if imb := res.ClosedLoop.Target.Imbalance(); math.Abs(imb) > 1e-6 {
				p.errorf("%s/%s: solution is not electrically neutral (%.6f)", r, stage, imb)
			}
		}
	}
	return p
}
