// Package config defines the daemon configuration: defaults, YAML file
// loading with ${VAR} environment expansion, environment overrides for
// deployment-sensitive settings, and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amadeus-ai/nexuskit/errors"
)

// Config is the complete daemon configuration.
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Bus          BusConfig          `yaml:"bus"`
	Stream       StreamConfig       `yaml:"stream"`
	Batcher      BatcherConfig      `yaml:"batcher"`
	Fallback     FallbackConfig     `yaml:"fallback"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Storage      StorageConfig      `yaml:"storage"`
	Inference    InferenceConfig    `yaml:"inference"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// BusConfig controls the NATS connection. An empty URL resolves from
// NEXUS_NATS_URL / NATS_URL with a fixed fallback.
type BusConfig struct {
	URL            string        `yaml:"url"`
	Name           string        `yaml:"name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// StreamConfig controls the producer/consumer pipeline.
type StreamConfig struct {
	QueueCapacity   int           `yaml:"queue_capacity"`
	WorkerCount     int           `yaml:"worker_count"`
	PopTimeout      time.Duration `yaml:"pop_timeout"`
	SummaryInterval time.Duration `yaml:"summary_interval"`
	EventTypes      []string      `yaml:"event_types"`
}

// BatcherConfig controls batching.
type BatcherConfig struct {
	Size     int           `yaml:"size"`
	Interval time.Duration `yaml:"interval"`
}

// FallbackConfig controls retry and circuit behavior for persistence.
type FallbackConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// StorageConfig controls the metadata store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// InferenceConfig controls the model adapter. The API key is read from
// OPENAI_API_KEY when empty.
type InferenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Adapter string `yaml:"adapter"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// CampaignConfig registers one campaign at startup.
type CampaignConfig struct {
	ID     string  `yaml:"id"`
	Goal   string  `yaml:"goal"`
	Budget float64 `yaml:"budget"`
}

// OrchestratorConfig controls pattern orchestration.
type OrchestratorConfig struct {
	KPIWindow        time.Duration    `yaml:"kpi_window"`
	AnomalyTokenCost float64          `yaml:"anomaly_token_cost"`
	Campaigns        []CampaignConfig `yaml:"campaigns"`
}

// EnrichmentConfig lists the event-type prefixes routed to the AI handler.
type EnrichmentConfig struct {
	Prefixes []string `yaml:"prefixes"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Bus: BusConfig{
			Name:           "nexuskit",
			ConnectTimeout: 5 * time.Second,
		},
		Stream: StreamConfig{
			QueueCapacity:   1000,
			WorkerCount:     4,
			PopTimeout:      200 * time.Millisecond,
			SummaryInterval: time.Minute,
		},
		Batcher: BatcherConfig{
			Size:     32,
			Interval: 2 * time.Second,
		},
		Fallback: FallbackConfig{
			MaxRetries:    3,
			BackoffFactor: 2.0,
			InitialDelay:  time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Storage: StorageConfig{
			Path: "nexuskit.db",
		},
		Inference: InferenceConfig{
			Adapter: "openai",
		},
		Orchestrator: OrchestratorConfig{
			KPIWindow:        time.Minute,
			AnomalyTokenCost: 1,
		},
	}
}

// Load reads the YAML file at path over the defaults. ${VAR} references in
// the file are expanded from the environment before parsing. An empty path
// returns the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
		}

		expanded := os.Expand(string(data), os.Getenv)
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides deployment-sensitive settings from the environment.
func (c *Config) applyEnv() {
	if level := os.Getenv("NEXUS_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("NEXUS_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
	if path := os.Getenv("NEXUS_DB_PATH"); path != "" {
		c.Storage.Path = path
	}
	if c.Inference.APIKey == "" {
		c.Inference.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	invalid := func(field, reason string) error {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("%s %s", field, reason))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", "must be text or json")
	}

	if c.Stream.QueueCapacity <= 0 {
		return invalid("stream.queue_capacity", "must be positive")
	}
	if c.Stream.WorkerCount <= 0 {
		return invalid("stream.worker_count", "must be positive")
	}
	if c.Stream.PopTimeout <= 0 {
		return invalid("stream.pop_timeout", "must be positive")
	}

	if c.Batcher.Size <= 0 {
		return invalid("batcher.size", "must be positive")
	}
	if c.Batcher.Interval <= 0 {
		return invalid("batcher.interval", "must be positive")
	}

	if c.Fallback.MaxRetries < 0 {
		return invalid("fallback.max_retries", "must not be negative")
	}
	if c.Fallback.BackoffFactor < 1 {
		return invalid("fallback.backoff_factor", "must be at least 1")
	}
	if c.Fallback.InitialDelay <= 0 {
		return invalid("fallback.initial_delay", "must be positive")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return invalid("metrics.addr", "required when metrics are enabled")
	}
	if c.Storage.Path == "" {
		return invalid("storage.path", "must not be empty")
	}

	if c.Inference.Enabled {
		if c.Inference.Adapter == "" {
			return invalid("inference.adapter", "required when inference is enabled")
		}
		if c.Inference.APIKey == "" {
			return invalid("inference.api_key", "required when inference is enabled")
		}
	}

	for _, campaign := range c.Orchestrator.Campaigns {
		if campaign.ID == "" {
			return invalid("orchestrator.campaigns", "campaign id must not be empty")
		}
		if campaign.Budget < 0 {
			return invalid("orchestrator.campaigns", "budget must not be negative")
		}
	}

	return nil
}
