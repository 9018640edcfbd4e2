package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/radar-merge-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Merge configuration.
	OutputBaseDir string
	CycleInterval time.Duration
	TaskName      string

	// Decode/persist bridge.
	BridgeBinary  string
	BridgeTimeout time.Duration

	// Ledger of processed archives; empty disables it.
	LedgerPath string
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

	batchFlushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	bridgeTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("BRIDGE_TIMEOUT", "60s"))
	if err != nil || bridgeTimeout <= 0 {
		return nil, errors.New("invalid BRIDGE_TIMEOUT")
	}

	interval, err := parseCycleInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "rb5-archive-jobs"),
		KafkaSinkTopic:   sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "rb5-products"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "rb5-merge"),
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		BatchSize:        batchSize,

		BatchFlushInterval: batchFlushInterval,

		OutputBaseDir: sharedcfg.EnvOrDefault("OUTPUT_BASE_DIR", "."),
		CycleInterval: interval,
		TaskName:      sharedcfg.EnvOrDefault("VOLUME_TASK_NAME", "dummy"),

		BridgeBinary:  sharedcfg.EnvOrDefault("BRIDGE_BINARY", "rb5bridge"),
		BridgeTimeout: bridgeTimeout,

		LedgerPath: os.Getenv("LEDGER_PATH"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.BridgeBinary == "" {
		return nil, errors.New("BRIDGE_BINARY is required")
	}

	return cfg, nil
}

func parseCycleInterval() (time.Duration, error) {
	s := sharedcfg.EnvOrDefault("CYCLE_INTERVAL_MINUTES", "5")
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("invalid CYCLE_INTERVAL_MINUTES")
	}
	d := domain.MinutesToInterval(n)
	if d <= 0 {
		return 0, errors.New("invalid CYCLE_INTERVAL_MINUTES")
	}
	return d, nil
}
