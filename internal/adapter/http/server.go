package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/nutrient-calc/internal/domain"
)

// maxBodyBytes caps request bodies on the API routes.
const maxBodyBytes = 1 << 20

// Calculator runs a calculation request end to end.
type Calculator interface {
	Calculate(ctx context.Context, req domain.CalculationRequest) (domain.CalculationResult, error)
}

// SampleRepository stores named water analyses.
type SampleRepository interface {
	Sample(ctx context.Context, name string) (domain.Sample, error)
	Put(ctx context.Context, sample domain.Sample) error
	List(ctx context.Context) ([]domain.Sample, error)
	Delete(ctx context.Context, name string) error
}

// Server exposes health, readiness, metrics, and the calculation and sample
// APIs.
type Server struct {
	httpServer *http.Server
	calc       Calculator
	samples    SampleRepository
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1 routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, calc Calculator, samples SampleRepository, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		calc:    calc,
		samples: samples,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/calculations", s.handleCalculate)
	mux.HandleFunc("GET /v1/samples", s.handleListSamples)
	mux.HandleFunc("GET /v1/samples/{name}", s.handleGetSample)
	mux.HandleFunc("PUT /v1/samples/{name}", s.handlePutSample)
	mux.HandleFunc("DELETE /v1/samples/{name}", s.handleDeleteSample)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
