// Command nutrientd serves nutrient solution calculations over HTTP and, when
// Kafka is enabled, consumes calculation requests from a topic and publishes
// the results to another.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nutrient-calc/internal/adapter/catalog"
	httpadapter "github.com/couchcryptid/nutrient-calc/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/nutrient-calc/internal/adapter/kafka"
	"github.com/couchcryptid/nutrient-calc/internal/adapter/sqlite"
	"github.com/couchcryptid/nutrient-calc/internal/config"
	"github.com/couchcryptid/nutrient-calc/internal/domain"
	"github.com/couchcryptid/nutrient-calc/internal/observability"
	"github.com/couchcryptid/nutrient-calc/internal/pipeline"
)

// readiness is ready when every check passes.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	compositions, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to load catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}
	logger.Info("catalog loaded", "recipes", len(compositions.Recipes()))

	store, err := sqlite.Open(cfg.SamplesDBPath)
	if err != nil {
		logger.Error("failed to open samples db", "path", cfg.SamplesDBPath, "error", err)
		os.Exit(1)
	}
	samples := sqlite.NewCachedStore(store, cfg.SamplesCacheSize, metrics)

	calc := pipeline.NewCalculator(compositions, samples, clockwork.NewRealClock(), domain.ResolveOptions{
		TankVolumeLiters:    cfg.DefaultTankVolumeLiters,
		ConcentrationFactor: cfg.DefaultConcentrationFactor,
	}, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := readiness{store}

	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		p := pipeline.New(reader, calc, writer, logger, metrics, cfg.BatchSize)
		checks = append(checks, p)

		// Start calculation pipeline.
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		logger.Info("kafka disabled, serving http only")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, checks, calc, samples, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("samples db close error", "error", err)
	}

	logger.Info("shutdown complete")
}
