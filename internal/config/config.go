// Package config loads and validates webapp and consumer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/assignment-webapp/internal/logging"
	"github.com/JakeFAU/assignment-webapp/internal/storage/local"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Accounts  AccountsConfig  `mapstructure:"accounts"`
	Events    EventsConfig    `mapstructure:"events"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Mail      MailConfig      `mapstructure:"mail"`
	Consumer  ConsumerConfig  `mapstructure:"consumer"`
	Logging   logging.Config  `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig tunes Basic authentication.
type AuthConfig struct {
	Realm      string `mapstructure:"realm"`
	BcryptCost int    `mapstructure:"bcrypt_cost"`
}

// DatabaseConfig controls access to PostgreSQL. An empty DSN selects the
// in-memory repository.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// AccountsConfig points at the CSV used to seed accounts.
type AccountsConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// EventsConfig selects how submission events travel to the consumer.
type EventsConfig struct {
	// Backend is "pubsub" or "memory". Memory runs the consumer in-process.
	Backend    string `mapstructure:"backend"`
	QueueDepth int    `mapstructure:"queue_depth"`
}

// PubSubConfig holds Pub/Sub topic and subscription names.
type PubSubConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	Topic          string `mapstructure:"topic"`
	Subscription   string `mapstructure:"subscription"`
	MaxOutstanding int    `mapstructure:"max_outstanding"`
}

// StorageConfig selects the archive blob store.
type StorageConfig struct {
	// Backend is "gcs", "local" or "memory".
	Backend string       `mapstructure:"backend"`
	Bucket  string       `mapstructure:"bucket"`
	Prefix  string       `mapstructure:"prefix"`
	Local   local.Config `mapstructure:"local"`
}

// AuditConfig selects the audit key-value store.
type AuditConfig struct {
	// Backend is "redis" or "memory".
	Backend   string      `mapstructure:"backend"`
	KeyPrefix string      `mapstructure:"key_prefix"`
	Redis     RedisConfig `mapstructure:"redis"`
}

// RedisConfig addresses the audit Redis instance.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MailConfig configures outbound notification email.
type MailConfig struct {
	// Backend is "smtp" or "log".
	Backend  string `mapstructure:"backend"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// ConsumerConfig governs the archive pipeline.
type ConsumerConfig struct {
	Workers           int           `mapstructure:"workers"`
	InvocationTimeout time.Duration `mapstructure:"invocation_timeout"`
	DedupWindow       time.Duration `mapstructure:"dedup_window"`
	UserAgent         string        `mapstructure:"user_agent"`
	MaxArchiveBytes   int           `mapstructure:"max_archive_bytes"`
	// FetchRPS limits downloads per site; zero means unlimited.
	FetchRPS   float64 `mapstructure:"fetch_rps"`
	FetchBurst int     `mapstructure:"fetch_burst"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	Version     string  `mapstructure:"version"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("auth.realm", "webapp")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.ping_timeout", 2*time.Second)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("accounts.seed_file", "")
	v.SetDefault("events.backend", "memory")
	v.SetDefault("events.queue_depth", 64)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "submissions")
	v.SetDefault("pubsub.subscription", "submissions-consumer")
	v.SetDefault("pubsub.max_outstanding", 8)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.local.base_dir", "./data/submissions")
	v.SetDefault("audit.backend", "memory")
	v.SetDefault("audit.key_prefix", "submission-audit")
	v.SetDefault("audit.redis.addr", "localhost:6379")
	v.SetDefault("audit.redis.password", "")
	v.SetDefault("audit.redis.db", 0)
	v.SetDefault("mail.backend", "log")
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("consumer.workers", 4)
	v.SetDefault("consumer.invocation_timeout", 5*time.Minute)
	v.SetDefault("consumer.dedup_window", time.Duration(0))
	v.SetDefault("consumer.user_agent", "assignment-webapp/0.1")
	v.SetDefault("consumer.max_archive_bytes", 50<<20)
	v.SetDefault("consumer.fetch_rps", 0.0)
	v.SetDefault("consumer.fetch_burst", 1)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.service_name", "webapp")
	v.SetDefault("telemetry.version", "dev")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Events.Backend {
	case "memory":
		if c.Events.QueueDepth <= 0 {
			return fmt.Errorf("events.queue_depth must be > 0 for the memory backend")
		}
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic are required for the pubsub backend")
		}
	default:
		return fmt.Errorf("events.backend must be memory or pubsub, got %q", c.Events.Backend)
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	case "local":
		if strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be gcs, local or memory, got %q", c.Storage.Backend)
	}
	switch c.Audit.Backend {
	case "redis":
		if c.Audit.Redis.Addr == "" {
			return fmt.Errorf("audit.redis.addr is required for the redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("audit.backend must be redis or memory, got %q", c.Audit.Backend)
	}
	switch c.Mail.Backend {
	case "smtp":
		if c.Mail.Host == "" || c.Mail.From == "" {
			return fmt.Errorf("mail.host and mail.from are required for the smtp backend")
		}
	case "log":
	default:
		return fmt.Errorf("mail.backend must be smtp or log, got %q", c.Mail.Backend)
	}
	if c.Consumer.Workers <= 0 {
		return fmt.Errorf("consumer.workers must be > 0")
	}
	if c.Consumer.InvocationTimeout <= 0 {
		return fmt.Errorf("consumer.invocation_timeout must be > 0")
	}
	if c.Consumer.DedupWindow < 0 {
		return fmt.Errorf("consumer.dedup_window must be >= 0")
	}
	if c.Consumer.FetchRPS < 0 {
		return fmt.Errorf("consumer.fetch_rps must be >= 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// UsesDatabase reports whether a PostgreSQL DSN is configured.
func (c Config) UsesDatabase() bool {
	return strings.TrimSpace(c.Database.DSN) != ""
}
