package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the triage engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Tiers    TiersConfig    `yaml:"tiers"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Storage  StorageConfig  `yaml:"storage"`
	Activity ActivityConfig `yaml:"activity"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	HealthCacheTTL  time.Duration `yaml:"healthCacheTTL"`
}

// TiersConfig groups the three resolver backends plus the shared escalation
// threshold.
type TiersConfig struct {
	Tool  ToolTierConfig  `yaml:"tool"`
	Edge  EdgeTierConfig  `yaml:"edge"`
	Cloud CloudTierConfig `yaml:"cloud"`
	// Threshold is the confidence floor for accepting a resolution. Zero
	// means the engine default of 0.70.
	Threshold float64 `yaml:"threshold"`
}

// ToolTierConfig configures the system-tools execution service.
type ToolTierConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// EdgeTierConfig configures the local inference agent.
type EdgeTierConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// CloudTierConfig configures the cloud inference backend.
type CloudTierConfig struct {
	APIKey    string        `yaml:"apiKey"`
	Endpoint  string        `yaml:"endpoint"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"maxTokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PricingConfig points at an optional YAML price-book override pack.
type PricingConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig selects the session store backend.
type StorageConfig struct {
	// Driver is sqlite (default), postgres, or memory.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ActivityConfig controls optional activity-event publishing.
type ActivityConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the activity stream producer.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// ArchiveConfig controls optional ticket archiving to object storage.
type ArchiveConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config configures the ticket archive bucket.
type S3Config struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TRIAGE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			HealthCacheTTL:  10 * time.Second,
		},
		Tiers: TiersConfig{
			Tool: ToolTierConfig{
				Enabled: true,
				BaseURL: "http://localhost:8001",
				Timeout: 30 * time.Second,
			},
			Edge: EdgeTierConfig{
				BaseURL: "http://localhost:8002",
				Timeout: 60 * time.Second,
			},
			Cloud: CloudTierConfig{
				Model:   "gpt-4o",
				Timeout: 120 * time.Second,
			},
		},
		Storage: StorageConfig{Driver: "sqlite", DSN: "data/triage.db"},
		Activity: ActivityConfig{
			Kafka: KafkaConfig{
				Topic:        "triage.activity",
				WriteTimeout: 5 * time.Second,
			},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRIAGE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("TRIAGE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("TRIAGE_TOOL_ENABLED"); v != "" {
		cfg.Tiers.Tool.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TRIAGE_TOOL_URL"); v != "" {
		cfg.Tiers.Tool.BaseURL = v
	}
	if v := os.Getenv("TRIAGE_EDGE_URL"); v != "" {
		cfg.Tiers.Edge.BaseURL = v
	}
	if v := os.Getenv("TRIAGE_EDGE_MODEL"); v != "" {
		cfg.Tiers.Edge.Model = v
	}
	if v := os.Getenv("TRIAGE_CLOUD_API_KEY"); v != "" {
		cfg.Tiers.Cloud.APIKey = v
	}
	if v := os.Getenv("TRIAGE_CLOUD_ENDPOINT"); v != "" {
		cfg.Tiers.Cloud.Endpoint = v
	}
	if v := os.Getenv("TRIAGE_CLOUD_MODEL"); v != "" {
		cfg.Tiers.Cloud.Model = v
	}
	if v := os.Getenv("TRIAGE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tiers.Threshold = f
		}
	}
	if v := os.Getenv("TRIAGE_PRICING_PATH"); v != "" {
		cfg.Pricing.Path = v
	}
	if v := os.Getenv("TRIAGE_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("TRIAGE_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("TRIAGE_KAFKA_ENABLED"); v != "" {
		cfg.Activity.Kafka.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TRIAGE_KAFKA_BROKERS"); v != "" {
		cfg.Activity.Kafka.Brokers = splitAndTrim(v)
	}
	if v := os.Getenv("TRIAGE_KAFKA_TOPIC"); v != "" {
		cfg.Activity.Kafka.Topic = v
	}
	if v := os.Getenv("TRIAGE_ARCHIVE_S3_ENABLED"); v != "" {
		cfg.Archive.S3.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TRIAGE_ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3.Bucket = v
	}
	if v := os.Getenv("TRIAGE_ARCHIVE_S3_PREFIX"); v != "" {
		cfg.Archive.S3.Prefix = v
	}
	if v := os.Getenv("TRIAGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRIAGE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
