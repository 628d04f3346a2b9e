package config

import (
	"fmt"
	"time"

	"github.com/dpup/prefab"
	"github.com/go-playground/validator/v10"
)

// Config represents the complete server configuration
type Config struct {
	Trails   TrailsConfig   `koanf:"trails"`
	Storage  StorageConfig  `koanf:"storage"`
	Database DatabaseConfig `koanf:"database"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Backfill BackfillConfig `koanf:"backfill"`
}

// TrailsConfig holds trail geometry settings
type TrailsConfig struct {
	Bucket          string        `koanf:"bucket" validate:"required"`
	MainKey         string        `koanf:"main_key" validate:"required"`
	SpursKey        string        `koanf:"spurs_key" validate:"required"`
	ToleranceMeters float64       `koanf:"tolerance_meters" validate:"gt=0"`
	CacheTTL        time.Duration `koanf:"cache_ttl" validate:"gte=0"`

	// Upstream GeoJSON sources used by the trail refresh.
	MainURL         string        `koanf:"main_url" validate:"omitempty,url"`
	SpursURL        string        `koanf:"spurs_url" validate:"omitempty,url"`
	DownloadTimeout time.Duration `koanf:"download_timeout" validate:"gt=0"`
	MaxRetries      uint64        `koanf:"max_retries"`
}

// StorageConfig selects and configures the object storage backend
type StorageConfig struct {
	Backend string `koanf:"backend" validate:"oneof=s3 minio fs"`

	// s3
	Region       string `koanf:"region"`
	UsePathStyle bool   `koanf:"use_path_style"`

	// s3 (custom endpoint) and minio
	Endpoint        string `koanf:"endpoint" validate:"required_if=Backend minio"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	UseSSL          bool   `koanf:"use_ssl"`

	// fs
	Root string `koanf:"root" validate:"required_if=Backend fs"`
}

// DatabaseConfig holds the activity database connection
type DatabaseConfig struct {
	Driver       string `koanf:"driver" validate:"oneof=postgres sqlite"`
	DSN          string `koanf:"dsn" validate:"required"`
	EnsureSchema bool   `koanf:"ensure_schema"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"gte=0"`
}

// DispatchConfig configures asynchronous invocation of the matcher
type DispatchConfig struct {
	Mode string `koanf:"mode" validate:"oneof=local lambda"`

	// Target name to Lambda function name or ARN, used in lambda mode.
	Functions map[string]string `koanf:"functions"`

	// Admission limits for the in-process dispatcher.
	MaxConcurrent     int64         `koanf:"max_concurrent" validate:"gt=0"`
	QueueSize         int           `koanf:"queue_size" validate:"gt=0"`
	RatePerSecond     float64       `koanf:"rate_per_second" validate:"gt=0"`
	Burst             int           `koanf:"burst" validate:"gt=0"`
	InvocationTimeout time.Duration `koanf:"invocation_timeout" validate:"gt=0"`
}

// BackfillConfig controls the backlog scan
type BackfillConfig struct {
	Limit    int    `koanf:"limit" validate:"gt=0"`
	Enabled  bool   `koanf:"enabled"`
	Schedule string `koanf:"schedule" validate:"required_if=Enabled true"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Trails: TrailsConfig{
			Bucket:          "rabbitmiles-data",
			MainKey:         "trails/main.geojson",
			SpursKey:        "trails/spurs.geojson",
			ToleranceMeters: 50,
			CacheTTL:        15 * time.Minute,
			MainURL:         "https://greenvilleopenmap.info/SwampRabbitWays.geojson",
			SpursURL:        "https://greenvilleopenmap.info/SwampRabbitConnectors.geojson",
			DownloadTimeout: 30 * time.Second,
			MaxRetries:      3,
		},
		Storage: StorageConfig{
			Backend: "fs",
			Root:    "./data",
			Region:  "us-east-1",
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "file:rabbitmiles.db",
			EnsureSchema: true,
		},
		Dispatch: DispatchConfig{
			Mode: "local",
			Functions: map[string]string{
				"match": "match_activity_trail",
			},
			MaxConcurrent:     8,
			QueueSize:         100,
			RatePerSecond:     20,
			Burst:             100,
			InvocationTimeout: 60 * time.Second,
		},
		Backfill: BackfillConfig{
			Limit:    75,
			Enabled:  true,
			Schedule: "@every 15m",
		},
	}
}

// Validate checks the configuration against its field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// A single backfill run queues up to Limit invocations at once
	if c.Dispatch.Mode == "local" {
		if c.Dispatch.QueueSize < c.Backfill.Limit {
			return fmt.Errorf("invalid configuration: dispatch.queue_size (%d) must be at least backfill.limit (%d)",
				c.Dispatch.QueueSize, c.Backfill.Limit)
		}
		if c.Dispatch.Burst < c.Backfill.Limit {
			return fmt.Errorf("invalid configuration: dispatch.burst (%d) must be at least backfill.limit (%d)",
				c.Dispatch.Burst, c.Backfill.Limit)
		}
	}
	return nil
}

// Load reads configuration using Prefab's config system over the defaults.
// Configuration is loaded from prefab.yaml and environment variables with PF__ prefix
func Load() (*Config, error) {
	appConfig := DefaultConfig()

	sections := []struct {
		key    string
		target any
	}{
		{"trails", &appConfig.Trails},
		{"storage", &appConfig.Storage},
		{"database", &appConfig.Database},
		{"dispatch", &appConfig.Dispatch},
		{"backfill", &appConfig.Backfill},
	}

	// Unmarshal specific sections from Prefab's config using exact key paths
	for _, s := range sections {
		if err := prefab.Config.Unmarshal(s.key, s.target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s section: %w", s.key, err)
		}
	}

	if err := appConfig.Validate(); err != nil {
		return nil, err
	}
	return appConfig, nil
}
