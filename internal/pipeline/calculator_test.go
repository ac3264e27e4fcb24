package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/nutrient-calc/internal/domain"
	"github.com/couchcryptid/nutrient-calc/internal/observability"
	"github.com/couchcryptid/nutrient-calc/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)

type memCatalog struct {
	recipes map[string]domain.IonVector
	drains  map[string]domain.IonVector
}

func (c memCatalog) Composition(crop, substrate, name string) (domain.IonVector, error) {
	v, ok := c.recipes[crop+"/"+substrate+"/"+name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s/%s", domain.ErrCompositionNotFound, crop, substrate, name)
	}
	return v.Clone(), nil
}

func (c memCatalog) TargetDrain(crop, stage string) (domain.IonVector, error) {
	v, ok := c.drains[crop+"/"+stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s target drain %s", domain.ErrCompositionNotFound, crop, stage)
	}
	return v.Clone(), nil
}

type memSamples map[string]domain.Sample

func (m memSamples) Sample(_ context.Context, name string) (domain.Sample, error) {
	s, ok := m[name]
	if !ok {
		return domain.Sample{}, fmt.Errorf("%w: %s", domain.ErrSampleNotFound, name)
	}
	return s, nil
}

func newTestCalculator(t *testing.T) (*pipeline.Calculator, *observability.Metrics) {
	t.Helper()
	catalog := memCatalog{
		recipes: map[string]domain.IonVector{
			"tomato/rockwool/standard": {
				domain.NO3: 12, domain.K: 7, domain.Ca: 4, domain.Mg: 1.5, domain.SO4: 1.5,
				domain.PO4: 1.25, domain.NH4: 0.5, domain.Fe: 15, domain.B: 30,
			},
		},
		drains: map[string]domain.IonVector{
			"tomato/generative": {
				domain.K: 7, domain.Ca: 8, domain.Mg: 3.5, domain.NO3: 20, domain.SO4: 3,
				domain.PO4: 0.8, domain.HCO3: 1, domain.Fe: 25, domain.B: 50, domain.PH: 5.8,
			},
		},
	}
	samples := memSamples{
		"well": {Name: "well", Ions: domain.IonVector{
			domain.NO3: 0.5, domain.K: 0.1, domain.Ca: 0.3, domain.Mg: 0.4, domain.SO4: 0.35, domain.PH: 7.76,
		}},
		"drain-week-12": {Name: "drain-week-12", Ions: domain.IonVector{
			domain.K: 5, domain.Ca: 9, domain.Mg: 4, domain.NO3: 18, domain.SO4: 3, domain.PO4: 0.6,
			domain.HCO3: 0.4, domain.Fe: 12, domain.B: 60,
		}},
	}
	metrics := observability.NewMetricsForTesting()
	defaults := domain.ResolveOptions{TankVolumeLiters: 1000, ConcentrationFactor: 100}
	calc := pipeline.NewCalculator(catalog, samples, clockwork.NewFakeClockAt(fixedNow), defaults, slog.Default(), metrics)
	return calc, metrics
}

func openRequest() domain.CalculationRequest {
	return domain.CalculationRequest{
		ID:          "req-1",
		Crop:        "tomato",
		Substrate:   "rockwool",
		Composition: "standard",
		WaterSource: "well",
	}
}

func TestCalculator_Calculate_OpenLoop(t *testing.T) {
	calc, metrics := newTestCalculator(t)

	res, err := calc.Calculate(context.Background(), openRequest())
	require.NoError(t, err)

	assert.Equal(t, "req-1", res.ID)
	assert.Equal(t, domain.ModeOpen, res.Mode)
	assert.Equal(t, fixedNow, res.CalculatedAt)
	assert.InDelta(t, 11.5, res.Target[domain.NO3], 1e-12)
	assert.InDelta(t, 87.394, res.Resolution.KgPerStock[domain.CaNO34H2O], 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Calculations.WithLabelValues("open", "success")))
}

func TestCalculator_Calculate_MatchesEngine(t *testing.T) {
	calc, _ := newTestCalculator(t)
	req := openRequest()

	got, err := calc.Calculate(context.Background(), req)
	require.NoError(t, err)

	req.Mode = domain.ModeOpen
	req.TankVolumeLiters = 1000
	req.ConcentrationFactor = 100
	want := domain.Calculate(req,
		domain.IonVector{
			domain.NO3: 12, domain.K: 7, domain.Ca: 4, domain.Mg: 1.5, domain.SO4: 1.5,
			domain.PO4: 1.25, domain.NH4: 0.5, domain.Fe: 15, domain.B: 30,
		},
		domain.IonVector{domain.NO3: 0.5, domain.K: 0.1, domain.Ca: 0.3, domain.Mg: 0.4, domain.SO4: 0.35, domain.PH: 7.76},
		nil, nil)

	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(domain.CalculationResult{}, "CalculatedAt"), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("calculator result mismatch (-want +got):\n%s", diff)
	}
}

func TestCalculator_Calculate_ClosedLoop(t *testing.T) {
	calc, metrics := newTestCalculator(t)
	req := openRequest()
	req.Mode = domain.ModeClosed
	req.DrainSource = "drain-week-12"
	req.TargetDrainStage = "generative"

	res, err := calc.Calculate(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, res.ClosedLoop)
	assert.InDelta(t, 0, domain.NewSolution(res.Target).Imbalance(), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Calculations.WithLabelValues("closed", "success")))
}

func TestCalculator_Calculate_AssignsID(t *testing.T) {
	calc, _ := newTestCalculator(t)
	req := openRequest()
	req.ID = ""

	res, err := calc.Calculate(context.Background(), req)
	require.NoError(t, err)

	_, err = uuid.Parse(res.ID)
	assert.NoError(t, err)
}

func TestCalculator_Calculate_AppliesTankDefaults(t *testing.T) {
	calc, _ := newTestCalculator(t)
	req := openRequest()
	req.TankVolumeLiters = 500

	res, err := calc.Calculate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 500.0, res.Resolution.Options.TankVolumeLiters)
	assert.Equal(t, 100.0, res.Resolution.Options.ConcentrationFactor)
}

func TestCalculator_Calculate_NoWaterSource(t *testing.T) {
	calc, _ := newTestCalculator(t)
	req := openRequest()
	req.WaterSource = ""

	res, err := calc.Calculate(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, res.Target[domain.NO3], 1e-12)
}

func TestCalculator_Calculate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CalculationRequest)
		want   error
	}{
		{"invalid", func(r *domain.CalculationRequest) { r.Crop = "" }, domain.ErrInvalidRequest},
		{"unknown composition", func(r *domain.CalculationRequest) { r.Composition = "winter" }, domain.ErrCompositionNotFound},
		{"unknown water", func(r *domain.CalculationRequest) { r.WaterSource = "river" }, domain.ErrSampleNotFound},
		{"unknown drain", func(r *domain.CalculationRequest) {
			r.Mode = domain.ModeClosed
			r.DrainSource = "missing"
			r.TargetDrainStage = "generative"
		}, domain.ErrSampleNotFound},
		{"unknown stage", func(r *domain.CalculationRequest) {
			r.Mode = domain.ModeClosed
			r.DrainSource = "drain-week-12"
			r.TargetDrainStage = "seedling"
		}, domain.ErrCompositionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, metrics := newTestCalculator(t)
			req := openRequest()
			tt.mutate(&req)

			_, err := calc.Calculate(context.Background(), req)
			require.ErrorIs(t, err, tt.want)

			mode := string(domain.ModeOpen)
			if req.Mode == domain.ModeClosed {
				mode = string(domain.ModeClosed)
			}
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Calculations.WithLabelValues(mode, "error")))
		})
	}
}

func TestCalculator_Transform(t *testing.T) {
	calc, _ := newTestCalculator(t)
	body, err := json.Marshal(map[string]any{
		"crop":            "tomato",
		"substrate":       "rockwool",
		"composition":     "standard",
		"water_source":    "well",
		"nitrogen_source": "decahydrate",
		"iron_chelate":    "Fe-EDTA",
	})
	require.NoError(t, err)

	out, err := calc.Transform(context.Background(), domain.RawMessage{Key: []byte("greenhouse-3"), Value: body})
	require.NoError(t, err)

	assert.Equal(t, []byte("greenhouse-3"), out.Key)
	assert.Equal(t, "open", out.Headers["mode"])
	assert.Equal(t, fixedNow.Format(time.RFC3339), out.Headers["calculated_at"])

	var res domain.CalculationResult
	require.NoError(t, json.Unmarshal(out.Value, &res))
	assert.Equal(t, "greenhouse-3", res.ID)
	assert.Equal(t, domain.Decahydrate, res.Resolution.NitrogenSource)
	assert.Equal(t, domain.EDTA, res.Resolution.IronChelate)
	assert.Contains(t, res.Resolution.KgPerStock, domain.CaNO310H2O)
}

func TestCalculator_Transform_BadPayload(t *testing.T) {
	calc, _ := newTestCalculator(t)

	tests := map[string]string{
		"not json":         `not json`,
		"unknown chelate":  `{"crop":"tomato","substrate":"rockwool","composition":"standard","iron_chelate":"HEDTA"}`,
		"missing recipe":   `{"crop":"tomato"}`,
		"unknown nitrogen": `{"crop":"tomato","substrate":"rockwool","composition":"standard","nitrogen_source":"urea"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := calc.Transform(context.Background(), domain.RawMessage{Value: []byte(body)})
			assert.Error(t, err)
		})
	}
}

func TestSerializeResult(t *testing.T) {
	res := domain.CalculationResult{ID: "req-9", Mode: domain.ModeClosed, CalculatedAt: fixedNow}

	out, err := pipeline.SerializeResult(res)
	require.NoError(t, err)

	assert.Equal(t, []byte("req-9"), out.Key)
	assert.Equal(t, map[string]string{"mode": "closed", "calculated_at": "2024-04-26T15:10:00Z"}, out.Headers)
	assert.Contains(t, string(out.Value), `"mode":"closed"`)
}
