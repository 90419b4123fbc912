// Package config provides TOML-file-plus-env-override configuration for the
// report worker, the same layered precedence (defaults -> file -> env) the
// rest of this codebase's ecosystem uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds every knob spec.md §6 enumerates, plus the ambient logging
// knobs every service in this codebase's ecosystem carries.
type Config struct {
	Environment string        `toml:"environment"`
	Logging     LoggingConfig `toml:"logging"`
	Bucket      BucketConfig  `toml:"bucket"`
	Metadata    MetadataConfig `toml:"metadata"`
	Lock        LockConfig    `toml:"lock"`
	Queue       QueueConfig   `toml:"queue"`
	Pipeline    PipelineConfig `toml:"pipeline"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// BucketConfig describes the GCS bucket backing the object store adapter.
type BucketConfig struct {
	Name            string `toml:"name"`
	CredentialsFile string `toml:"credentials_file"`
}

// MetadataConfig describes the SurrealDB connection backing the metadata
// store adapter. CollectionName follows the reportRef / reportRef_dev
// table-name split spec.md §6 requires.
type MetadataConfig struct {
	Address        string `toml:"address"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	Namespace      string `toml:"namespace"`
	Database       string `toml:"database"`
	CollectionName string `toml:"collection"`
}

// CollectionFor returns the environment-qualified table name: prod uses
// CollectionName as-is, every other environment gets a "_dev" suffix.
func (m MetadataConfig) CollectionFor(env string) string {
	if strings.EqualFold(env, "production") || strings.EqualFold(env, "prod") {
		return m.CollectionName
	}
	return m.CollectionName + "_dev"
}

// LockConfig describes the Redis connection backing the state/lock store,
// plus the lease TTL every acquire/extend call uses.
type LockConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	TTL      string `toml:"ttl"`
}

// GetTTL parses LockConfig.TTL, defaulting to five minutes on a bad or
// missing value — long enough to exceed a slow pipeline step, short enough
// that a crashed holder's lease clears well inside an operator's patience.
func (l LockConfig) GetTTL() time.Duration {
	d, err := time.ParseDuration(l.TTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// QueueConfig describes the Pub/Sub topic/subscription and ack deadline.
type QueueConfig struct {
	ProjectID      string `toml:"project_id"`
	Topic          string `toml:"topic"`
	Subscription   string `toml:"subscription"`
	AckDeadline    string `toml:"ack_deadline"`
	LegacyOwnerID  string `toml:"legacy_owner_id"`
}

// GetAckDeadline parses QueueConfig.AckDeadline, defaulting to 10 minutes.
func (q QueueConfig) GetAckDeadline() time.Duration {
	d, err := time.ParseDuration(q.AckDeadline)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// PipelineConfig describes the default genai model/rate limit used when a
// JobMessage does not override them.
type PipelineConfig struct {
	DefaultModel      string  `toml:"default_model"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ConcurrencyConfig caps how many messages one worker processes at once.
type ConcurrencyConfig struct {
	Cap int `toml:"cap"`
}

// Default returns a Config with sensible defaults, mirroring the rest of
// this ecosystem's NewDefaultConfig constructors.
func Default() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Bucket: BucketConfig{},
		Metadata: MetadataConfig{
			Address:        "ws://localhost:8000/rpc",
			Namespace:      "reports",
			Database:       "reports",
			CollectionName: "reportRef",
		},
		Lock: LockConfig{
			Addr: "localhost:6379",
			TTL:  "5m",
		},
		Queue: QueueConfig{
			AckDeadline: "10m",
		},
		Pipeline: PipelineConfig{
			DefaultModel:      "gemini-2.0-flash",
			RequestsPerSecond: 2,
		},
		Concurrency: ConcurrencyConfig{Cap: 5},
	}
}

// Load reads and merges TOML config files in order (later files override
// earlier ones), then applies environment variable overrides. Missing files
// are skipped, not an error.
func Load(paths ...string) (*Config, error) {
	cfg := Default()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPORT_WORKER_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("REPORT_WORKER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REPORT_WORKER_BUCKET"); v != "" {
		cfg.Bucket.Name = v
	}
	if v := os.Getenv("REPORT_WORKER_BUCKET_CREDENTIALS_FILE"); v != "" {
		cfg.Bucket.CredentialsFile = v
	}
	if v := os.Getenv("REPORT_WORKER_SURREALDB_ADDRESS"); v != "" {
		cfg.Metadata.Address = v
	}
	if v := os.Getenv("REPORT_WORKER_SURREALDB_USERNAME"); v != "" {
		cfg.Metadata.Username = v
	}
	if v := os.Getenv("REPORT_WORKER_SURREALDB_PASSWORD"); v != "" {
		cfg.Metadata.Password = v
	}
	if v := os.Getenv("REPORT_WORKER_SURREALDB_NAMESPACE"); v != "" {
		cfg.Metadata.Namespace = v
	}
	if v := os.Getenv("REPORT_WORKER_SURREALDB_DATABASE"); v != "" {
		cfg.Metadata.Database = v
	}
	if v := os.Getenv("REPORT_WORKER_REDIS_ADDR"); v != "" {
		cfg.Lock.Addr = v
	}
	if v := os.Getenv("REPORT_WORKER_REDIS_PASSWORD"); v != "" {
		cfg.Lock.Password = v
	}
	if v := os.Getenv("REPORT_WORKER_LOCK_TTL"); v != "" {
		cfg.Lock.TTL = v
	}
	if v := os.Getenv("REPORT_WORKER_PUBSUB_PROJECT"); v != "" {
		cfg.Queue.ProjectID = v
	}
	if v := os.Getenv("REPORT_WORKER_PUBSUB_TOPIC"); v != "" {
		cfg.Queue.Topic = v
	}
	if v := os.Getenv("REPORT_WORKER_PUBSUB_SUBSCRIPTION"); v != "" {
		cfg.Queue.Subscription = v
	}
	if v := os.Getenv("REPORT_WORKER_LEGACY_OWNER_ID"); v != "" {
		cfg.Queue.LegacyOwnerID = v
	}
	if v := os.Getenv("REPORT_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency.Cap = n
		}
	}
}

// IsProduction reports whether Config.Environment denotes production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
