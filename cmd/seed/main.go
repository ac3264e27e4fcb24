// Command seed loads water analyses into the samples database and can write a
// fixture of calculation requests covering every catalog recipe.
//
// Usage:
//
//	go run ./cmd/seed \
//	  -db data/samples.db \
//	  -csv data/water_analyses.csv \
//	  -requests-out data/mock/calculation_requests.json
//
// Without -csv the default raw water analysis is stored.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nutrient-calc/internal/adapter/catalog"
	"github.com/couchcryptid/nutrient-calc/internal/adapter/sqlite"
	"github.com/couchcryptid/nutrient-calc/internal/domain"
)

const defaultSampleName = "default-raw-water"

// defaultRawWater is the reference analysis shipped with the service.
var defaultRawWater = domain.IonVector{
	domain.PH:  7.76,
	domain.NO3: 0.57,
	domain.K:   0.12,
	domain.Ca:  0.29,
	domain.Mg:  0.40,
	domain.SO4: 0.35,
	domain.Cl:  0.46,
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dbPath := flag.String("db", "data/samples.db", "path to the samples SQLite database")
	csvPath := flag.String("csv", "", "CSV of water analyses (name,taken_at,EC,<ion>...)")
	catalogPath := flag.String("catalog", "", "YAML composition catalog (default: built in)")
	requestsOut := flag.String("requests-out", "", "optional output path for a calculation request fixture")
	flag.Parse()

	clock := clockwork.NewRealClock()

	samples := []domain.Sample{{
		Name:    defaultSampleName,
		TakenAt: clock.Now().UTC(),
		EC:      0.21,
		Ions:    defaultRawWater.Clone(),
	}}
	if *csvPath != "" {
		var err error
		samples, err = readCSV(*csvPath, clock)
		if err != nil {
			return fmt.Errorf("reading %s: %w", *csvPath, err)
		}
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	for _, s := range samples {
		if err := store.Put(ctx, s); err != nil {
			return fmt.Errorf("storing %q: %w", s.Name, err)
		}
		log.Printf("stored %s: EC %.2f, %d ions", s.Name, s.EC, len(s.Ions))
	}
	log.Printf("total: %d samples in %s", len(samples), *dbPath)

	if *requestsOut == "" {
		return nil
	}

	c, err := catalog.Load(*catalogPath)
	if err != nil {
		return err
	}
	reqs := buildRequests(c, samples[0].Name)
	if err := writeJSON(*requestsOut, reqs); err != nil {
		return fmt.Errorf("writing request fixture: %w", err)
	}
	log.Printf("wrote %d requests: %s", len(reqs), *requestsOut)
	return nil
}

// readCSV parses one analysis per row. Columns other than name, taken_at and
// EC must be ion names; blank cells are skipped.
func readCSV(path string, clock clockwork.Clock) ([]domain.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	header := rows[0]
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		switch header[i] {
		case "name", "taken_at", "EC":
		default:
			if !domain.Ion(header[i]).Valid() {
				return nil, fmt.Errorf("unknown column %q", header[i])
			}
		}
	}

	samples := make([]domain.Sample, 0, len(rows)-1)
	for n, row := range rows[1:] {
		s := domain.Sample{TakenAt: clock.Now().UTC(), Ions: domain.IonVector{}}
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" || i >= len(header) {
				continue
			}
			switch header[i] {
			case "name":
				s.Name = cell
			case "taken_at":
				t, err := time.Parse(time.RFC3339, cell)
				if err != nil {
					return nil, fmt.Errorf("row %d: taken_at: %w", n+2, err)
				}
				s.TakenAt = t
			default:
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d: %s: %w", n+2, header[i], err)
				}
				if header[i] == "EC" {
					s.EC = v
				} else {
					s.Ions[domain.Ion(header[i])] = v
				}
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// buildRequests produces one open loop request per recipe, plus a closed loop
// request for every recipe whose crop has target drains.
func buildRequests(c *catalog.Catalog, water string) []domain.CalculationRequest {
	var reqs []domain.CalculationRequest //nolint:prealloc // closed loop count depends on catalog
	for _, r := range c.Recipes() {
		base := domain.CalculationRequest{
			ID:          "seed-open-" + strings.ReplaceAll(r.String(), "/", "-"),
			Mode:        domain.ModeOpen,
			Crop:        r.Crop,
			Substrate:   r.Substrate,
			Composition: r.Name,
			WaterSource: water,
		}
		reqs = append(reqs, base)

		for _, stage := range c.Stages(r.Crop) {
			closed := base
			closed.ID = "seed-closed-" + strings.ReplaceAll(r.String(), "/", "-") + "-" + stage
			closed.Mode = domain.ModeClosed
			closed.DrainSource = water
			closed.TargetDrainStage = stage
			reqs = append(reqs, closed)
		}
	}
	return reqs
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
