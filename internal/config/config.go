package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	KafkaEnabled     bool
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Samples store.
	SamplesDBPath    string
	SamplesCacheSize int

	// CatalogPath points at a YAML composition catalog. Empty selects the
	// catalog compiled into the binary.
	CatalogPath string

	// Stock tank defaults for requests that leave them unset.
	DefaultTankVolumeLiters    float64
	DefaultConcentrationFactor float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	kafkaEnabled, err := parseBool("KAFKA_ENABLED", true)
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("SAMPLES_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	tankVolume, err := parsePositiveFloat("DEFAULT_TANK_VOLUME_LITERS", 1000)
	if err != nil {
		return nil, err
	}

	concentration, err := parsePositiveFloat("DEFAULT_CONCENTRATION_FACTOR", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "nutrient-calculation-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "nutrient-calculation-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "nutrient-calc"),
		KafkaEnabled:       kafkaEnabled,
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		SamplesDBPath:    sharedcfg.EnvOrDefault("SAMPLES_DB_PATH", "nutrient-samples.db"),
		SamplesCacheSize: cacheSize,
		CatalogPath:      sharedcfg.EnvOrDefault("CATALOG_PATH", ""),

		DefaultTankVolumeLiters:    tankVolume,
		DefaultConcentrationFactor: concentration,
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	if cfg.SamplesDBPath == "" {
		return nil, errors.New("SAMPLES_DB_PATH is required")
	}

	return cfg, nil
}

func parseBool(name string, def bool) (bool, error) {
	s := sharedcfg.EnvOrDefault(name, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := sharedcfg.EnvOrDefault(name, "")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, s)
	}
	return n, nil
}

func parsePositiveFloat(name string, def float64) (float64, error) {
	s := sharedcfg.EnvOrDefault(name, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive number", name, s)
	}
	return v, nil
}
