package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/nutrient-calc/internal/domain"
	"github.com/couchcryptid/nutrient-calc/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw requests from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Transformer turns a raw request into a serialized result.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawMessage) (domain.OutputMessage, error)
}

// BatchLoader writes multiple results to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, msgs []domain.OutputMessage) error
}

// Pipeline runs the extract-calculate-load loop over the request topic.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	running     atomic.Bool
	loaded      atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// Running reports whether Run is consuming the request topic.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Loaded reports whether at least one batch of results has been written.
func (p *Pipeline) Loaded() bool {
	return p.loaded.Load()
}

// CheckReadiness returns nil while the pipeline is consuming requests. An idle
// request topic does not make the service unready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("pipeline is not running")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	p.running.Store(true)
	defer func() {
		p.running.Store(false)
		p.metrics.PipelineRunning.Set(0)
	}()

	retry := newBackoff(initialBackoff, maxBackoff)
	for ctx.Err() == nil {
		if !p.runBatch(ctx, retry) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// runBatch runs one extract-calculate-load cycle. A batch is not left until
// its results are written, so nothing behind a failure is committed. Returns
// false if the pipeline should stop.
func (p *Pipeline) runBatch(ctx context.Context, retry *backoff) bool {
	start := time.Now()

	requests, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return retry.wait(ctx)
	}
	if len(requests) == 0 {
		return true
	}

	p.metrics.RequestsConsumed.Add(float64(len(requests)))
	p.metrics.BatchSize.Observe(float64(len(requests)))
	retry.reset()

	var results []domain.OutputMessage
	for {
		results, err = p.calculateAll(ctx, requests)
		if err == nil {
			break
		}
		p.logger.Error("calculation failed, retrying batch", "error", err, "batch_size", len(requests))
		if !retry.wait(ctx) {
			return false
		}
	}
	retry.reset()

	if len(results) > 0 {
		for {
			err := p.loader.LoadBatch(ctx, results)
			if err == nil {
				break
			}
			p.logger.Error("load batch failed", "error", err, "batch_size", len(results))
			if !retry.wait(ctx) {
				return false
			}
		}
		retry.reset()
		p.metrics.ResultsProduced.Add(float64(len(results)))
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.loaded.Store(true)
	}

	// Rejected requests are committed with the rest, in offset order.
	for _, raw := range requests {
		p.commit(ctx, raw)
	}
	return true
}

// calculateAll runs every request through the transformer. Rejected requests
// are logged, counted and dropped. Any other failure aborts the batch so it
// can be retried.
func (p *Pipeline) calculateAll(ctx context.Context, requests []domain.RawMessage) ([]domain.OutputMessage, error) {
	results := make([]domain.OutputMessage, 0, len(requests))
	rejected := 0

	for _, raw := range requests {
		out, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			if !domain.IsRejected(err) {
				return nil, err
			}
			p.logger.Warn("calculation rejected, skipping request",
				"error", err,
				"request_key", string(raw.Key),
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			rejected++
			continue
		}
		results = append(results, out)
	}
	p.metrics.CalculationErrors.Add(float64(rejected))
	return results, nil
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// backoff is a doubling retry delay capped at limit.
type backoff struct {
	initial, limit, current time.Duration
}

func newBackoff(initial, limit time.Duration) *backoff {
	return &backoff{initial: initial, limit: limit, current: initial}
}

func (b *backoff) reset() { b.current = b.initial }

// wait sleeps for the current delay and doubles it. Returns false if ctx
// ended first.
func (b *backoff) wait(ctx context.Context) bool {
	timer := time.NewTimer(b.current)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	b.current = min(b.current*2, b.limit)
	return true
}
