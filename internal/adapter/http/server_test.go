package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	httpadapter "github.com/couchcryptid/nutrient-calc/internal/adapter/http"
	"github.com/couchcryptid/nutrient-calc/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockCalculator struct {
	got domain.CalculationRequest
	res domain.CalculationResult
	err error
}

func (m *mockCalculator) Calculate(_ context.Context, req domain.CalculationRequest) (domain.CalculationResult, error) {
	m.got = req
	return m.res, m.err
}

type memSamples struct {
	samples map[string]domain.Sample
	err     error
}

func newMemSamples(samples ...domain.Sample) *memSamples {
	m := &memSamples{samples: map[string]domain.Sample{}}
	for _, s := range samples {
		m.samples[s.Name] = s
	}
	return m
}

func (m *memSamples) Sample(_ context.Context, name string) (domain.Sample, error) {
	s, ok := m.samples[name]
	if !ok {
		return domain.Sample{}, fmt.Errorf("%w: %s", domain.ErrSampleNotFound, name)
	}
	return s, nil
}

func (m *memSamples) Put(_ context.Context, s domain.Sample) error {
	if m.err != nil {
		return m.err
	}
	if len(s.Ions) == 0 {
		return fmt.Errorf("%w: sample has no ions", domain.ErrInvalidRequest)
	}
	m.samples[s.Name] = s
	return nil
}

func (m *memSamples) List(context.Context) ([]domain.Sample, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.Sample, 0, len(m.samples))
	for _, s := range m.samples {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memSamples) Delete(_ context.Context, name string) error {
	if _, ok := m.samples[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrSampleNotFound, name)
	}
	delete(m.samples, name)
	return nil
}

func wellWater() domain.Sample {
	return domain.Sample{
		Name: "well",
		EC:   0.21,
		Ions: domain.IonVector{domain.K: 0.12, domain.Ca: 0.29, domain.HCO3: 1.2},
	}
}

func newTestServer(readyErr error, calc *mockCalculator, samples *memSamples) *httpadapter.Server {
	if calc == nil {
		calc = &mockCalculator{}
	}
	if samples == nil {
		samples = newMemSamples()
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, calc, samples, slog.Default())
}

func serve(srv *httpadapter.Server, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(newTestServer(nil, nil, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(newTestServer(nil, nil, nil), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := serve(newTestServer(fmt.Errorf("not ready yet"), nil, nil), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(nil, nil, nil), http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCalculate_OK(t *testing.T) {
	calc := &mockCalculator{res: domain.CalculationResult{
		ID:   "req-1",
		Mode: domain.ModeOpen,
		Target: domain.IonVector{
			domain.NO3: 12,
		},
	}}
	srv := newTestServer(nil, calc, nil)

	rec := serve(srv, http.MethodPost, "/v1/calculations", `{
		"crop": "tomato",
		"substrate": "rockwool",
		"composition": "standard",
		"water_source": "well",
		"nitrogen_source": "tetrahydrate",
		"iron_chelate": "Fe-DTPA"
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "tomato", calc.got.Crop)
	assert.Equal(t, "well", calc.got.WaterSource)

	var res domain.CalculationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "req-1", res.ID)
	assert.Equal(t, 12.0, res.Target[domain.NO3])
}

func TestCalculate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid request", fmt.Errorf("%w: crop is required", domain.ErrInvalidRequest), http.StatusBadRequest},
		{"unknown composition", fmt.Errorf("%w: tomato/nft/x", domain.ErrCompositionNotFound), http.StatusNotFound},
		{"unknown sample", fmt.Errorf("%w: lake", domain.ErrSampleNotFound), http.StatusNotFound},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(nil, &mockCalculator{err: tt.err}, nil)
			rec := serve(srv, http.MethodPost, "/v1/calculations", `{"crop":"tomato"}`)

			assert.Equal(t, tt.status, rec.Code)
			msg := decodeError(t, rec)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "Internal Server Error", msg, "internal errors are not leaked")
			} else {
				assert.Equal(t, tt.err.Error(), msg)
			}
		})
	}
}

func TestCalculate_BadBody(t *testing.T) {
	tests := map[string]string{
		"malformed json":        `{"crop":`,
		"unknown nitrogen form": `{"crop":"tomato","nitrogen_source":"anhydrous"}`,
		"unknown iron chelate":  `{"crop":"tomato","iron_chelate":"Fe-XYZ"}`,
		"wrong field type":      `{"crop":12}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			calc := &mockCalculator{}
			rec := serve(newTestServer(nil, calc, nil), http.MethodPost, "/v1/calculations", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, calc.got.Crop, "calculator must not be called")
		})
	}
}

func TestCalculate_MethodNotAllowed(t *testing.T) {
	rec := serve(newTestServer(nil, nil, nil), http.MethodGet, "/v1/calculations", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSamples_List(t *testing.T) {
	other := wellWater()
	other.Name = "rain"
	srv := newTestServer(nil, nil, newMemSamples(wellWater(), other))

	rec := serve(srv, http.MethodGet, "/v1/samples", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Samples []domain.Sample `json:"samples"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Samples, 2)
	assert.Equal(t, "rain", body.Samples[0].Name)
	assert.Equal(t, "well", body.Samples[1].Name)
}

func TestSamples_ListError(t *testing.T) {
	samples := newMemSamples()
	samples.err = errors.New("database is locked")

	rec := serve(newTestServer(nil, nil, samples), http.MethodGet, "/v1/samples", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSamples_Get(t *testing.T) {
	srv := newTestServer(nil, nil, newMemSamples(wellWater()))

	rec := serve(srv, http.MethodGet, "/v1/samples/well", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 0.21, got.EC)
	assert.Equal(t, 1.2, got.Ions[domain.HCO3])

	rec = serve(srv, http.MethodGet, "/v1/samples/lake", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSamples_PutUsesPathName(t *testing.T) {
	samples := newMemSamples()
	srv := newTestServer(nil, nil, samples)

	rec := serve(srv, http.MethodPut, "/v1/samples/borehole", `{"name":"ignored","ec":0.4,"ions":{"Ca":1.1,"HCO3":2.5}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, ok := samples.samples["borehole"]
	require.True(t, ok)
	assert.Equal(t, 2.5, stored.Ions[domain.HCO3])
	assert.NotContains(t, samples.samples, "ignored")
}

func TestSamples_PutInvalid(t *testing.T) {
	srv := newTestServer(nil, nil, newMemSamples())

	rec := serve(srv, http.MethodPut, "/v1/samples/borehole", `{"ec":0.4}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(srv, http.MethodPut, "/v1/samples/borehole", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSamples_Delete(t *testing.T) {
	samples := newMemSamples(wellWater())
	srv := newTestServer(nil, nil, samples)

	rec := serve(srv, http.MethodDelete, "/v1/samples/well", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, samples.samples)

	rec = serve(srv, http.MethodDelete, "/v1/samples/well", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
