//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/nutrient-calc/internal/adapter/catalog"
	"github.com/couchcryptid/nutrient-calc/internal/adapter/sqlite"
	"github.com/couchcryptid/nutrient-calc/internal/domain"
	"github.com/couchcryptid/nutrient-calc/internal/observability"
	"github.com/couchcryptid/nutrient-calc/internal/pipeline"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

var fixedNow = time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := kafkatc.Run(ctx, kafkaImage, kafkatc.WithClusterID("nutrient-calc-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// rawWater is the reference raw water analysis.
func rawWater() domain.Sample {
	return domain.Sample{
		Name:    "default-raw-water",
		TakenAt: fixedNow,
		EC:      0.21,
		Ions: domain.IonVector{
			domain.PH: 7.76, domain.NO3: 0.57, domain.K: 0.12, domain.Ca: 0.29,
			domain.Mg: 0.40, domain.SO4: 0.35, domain.Cl: 0.46,
		},
	}
}

// newCalculator wires the built-in catalog and a temporary SQLite sample store
// holding the given samples.
func newCalculator(t *testing.T, metrics *observability.Metrics, samples ...domain.Sample) *pipeline.Calculator {
	t.Helper()

	c, err := catalog.Default()
	require.NoError(t, err)

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "samples.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, s := range samples {
		require.NoError(t, store.Put(context.Background(), s))
	}

	return pipeline.NewCalculator(
		c,
		sqlite.NewCachedStore(store, 16, metrics),
		clockwork.NewFakeClockAt(fixedNow),
		domain.ResolveOptions{},
		discardLogger(),
		metrics,
	)
}
