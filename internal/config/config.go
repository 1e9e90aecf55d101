// Package config loads service settings from an optional YAML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Staging backends.
const (
	StagingMemory   = "memory"
	StagingRedis    = "redis"
	StagingPostgres = "postgres"
)

// Config holds every setting the binaries read.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	DatabaseURL string `yaml:"database_url"`
	DBMaxConns  int32  `yaml:"db_max_conns"`
	RedisURL    string `yaml:"redis_url"`

	StagingBackend string        `yaml:"staging_backend"`
	StagingTTL     time.Duration `yaml:"staging_ttl"`
	SweepSpec      string        `yaml:"sweep_spec"`

	CommitConcurrency int `yaml:"commit_concurrency"`
	QueueWorkers      int `yaml:"queue_workers"`
	QueueBuffer       int `yaml:"queue_buffer"`

	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`

	GCSBucket   string `yaml:"gcs_bucket"`
	BQProjectID string `yaml:"bq_project_id"`
	BQDatasetID string `yaml:"bq_dataset_id"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Port:              "8080",
		LogLevel:          "info",
		DBMaxConns:        10,
		StagingBackend:    StagingMemory,
		StagingTTL:        6 * time.Hour,
		SweepSpec:         "@every 10m",
		CommitConcurrency: 4,
		QueueWorkers:      5,
		QueueBuffer:       100,
	}
}

// Load builds the configuration. CONFIG_FILE names an optional YAML file;
// a .env file in the working directory is loaded if present and never
// overrides variables already set.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("STAGING_BACKEND", &c.StagingBackend)
	str("STAGING_SWEEP", &c.SweepSpec)
	str("GEMINI_API_KEY", &c.GeminiAPIKey)
	str("GEMINI_MODEL", &c.GeminiModel)
	str("GCS_BUCKET", &c.GCSBucket)
	str("BQ_PROJECT_ID", &c.BQProjectID)
	str("BQ_DATASET_ID", &c.BQDatasetID)

	if v := os.Getenv("LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: LOG_JSON: %w", err)
		}
		c.LogJSON = b
	}
	if v := os.Getenv("STAGING_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: STAGING_TTL: %w", err)
		}
		c.StagingTTL = d
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"COMMIT_CONCURRENCY", &c.CommitConcurrency},
		{"QUEUE_WORKERS", &c.QueueWorkers},
		{"QUEUE_BUFFER", &c.QueueBuffer},
	}
	for _, it := range ints {
		v := os.Getenv(it.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", it.key, err)
		}
		*it.dst = n
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("config: DB_MAX_CONNS: %w", err)
		}
		c.DBMaxConns = int32(n)
	}
	return nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.StagingBackend {
	case StagingMemory:
	case StagingRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("config: REDIS_URL is required for the redis staging backend")
		}
	case StagingPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres staging backend")
		}
	default:
		return fmt.Errorf("config: unknown staging backend %q", c.StagingBackend)
	}
	if c.StagingTTL <= 0 {
		return fmt.Errorf("config: staging TTL must be positive, got %s", c.StagingTTL)
	}
	if c.CommitConcurrency < 1 {
		return fmt.Errorf("config: commit concurrency must be at least 1, got %d", c.CommitConcurrency)
	}
	return nil
}

// MirrorEnabled reports whether BigQuery mirroring is configured.
func (c Config) MirrorEnabled() bool {
	return c.BQProjectID != "" && c.BQDatasetID != ""
}
