// Package config provides configuration loading and management for the job queue.
// It loads configuration from a YAML file, applies defaults and validates the result.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultWaitTimeout is the queue wait timeout when none is configured.
	DefaultWaitTimeout = 60 * time.Second

	writeTimeoutMargin = 10 * time.Second
)

// StorageMode represents the storage backend mode.
type StorageMode string

const (
	// StorageModeMemory keeps queues in process memory.
	StorageModeMemory StorageMode = "memory"
	// StorageModeRedis keeps queues in Redis lists and sets.
	StorageModeRedis StorageMode = "redis"
	// StorageModePostgres keeps queues in PostgreSQL tables.
	StorageModePostgres StorageMode = "postgres"
)

// IsValid returns true if the storage mode is valid.
func (m StorageMode) IsValid() bool {
	switch m {
	case StorageModeMemory, StorageModeRedis, StorageModePostgres:
		return true
	default:
		return false
	}
}

// IDFormat selects how message identifiers are generated.
type IDFormat string

const (
	// IDFormatUUID generates random UUIDv4 identifiers.
	IDFormatUUID IDFormat = "uuid"
	// IDFormatULID generates time-sortable ULID identifiers.
	IDFormatULID IDFormat = "ulid"
)

// IsValid returns true if the id format is known.
func (f IDFormat) IsValid() bool {
	return f == IDFormatUUID || f == IDFormatULID
}

// Config represents the complete application configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Queue    QueueConfig    `yaml:"queue"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// StorageConfig holds the storage mode configuration.
type StorageConfig struct {
	Mode StorageMode `yaml:"mode"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// QueueConfig holds queue protocol settings shared by every named queue.
type QueueConfig struct {
	// KeyPrefix namespaces every store key.
	KeyPrefix string `yaml:"key_prefix"`

	// PollIntervalMs is the minimum polling interval for stores without native blocking.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// MaxPollIntervalMs caps the exponential polling backoff.
	MaxPollIntervalMs int `yaml:"max_poll_interval_ms"`

	// DefaultTimeout is used when a consumer does not pass its own timeout.
	// Omitted means DefaultWaitTimeout; an explicit 0 makes a single attempt.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// IDFormat is the identifier generator for messages created without an id.
	IDFormat IDFormat `yaml:"id_format"`
}

// PollInterval returns PollIntervalMs as a duration.
func (c *QueueConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// MaxPollInterval returns MaxPollIntervalMs as a duration.
func (c *QueueConfig) MaxPollInterval() time.Duration {
	return time.Duration(c.MaxPollIntervalMs) * time.Millisecond
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`
}

// KafkaConfig holds settings for the optional Kafka relay.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
	// Queue is the job queue that relayed records are published to.
	Queue string `yaml:"queue"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Load reads configuration from the specified YAML file path.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	// Clean the path to prevent path traversal attacks
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults for any unset values
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := newConfig()
	applyDefaults(cfg)
	return cfg
}

// newConfig presets the fields whose zero value is meaningful, so that
// decoding only overrides them when the key is present.
func newConfig() *Config {
	return &Config{
		Queue: QueueConfig{DefaultTimeout: DefaultWaitTimeout},
	}
}

// MaxWait is the longest take or reserve wait a client may request over
// HTTP. The response must still fit in the server write timeout.
func (c *Config) MaxWait() time.Duration {
	if d := c.Server.WriteTimeout - writeTimeoutMargin; d > 0 {
		return d
	}
	return c.Server.WriteTimeout / 2
}

// applyDefaults sets sensible default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	// Storage defaults
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeMemory
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	// Queue defaults
	if cfg.Queue.KeyPrefix == "" {
		cfg.Queue.KeyPrefix = "jobqueue"
	}
	if cfg.Queue.PollIntervalMs == 0 {
		cfg.Queue.PollIntervalMs = 50
	}
	if cfg.Queue.MaxPollIntervalMs == 0 {
		cfg.Queue.MaxPollIntervalMs = 1000
	}
	if cfg.Queue.IDFormat == "" {
		cfg.Queue.IDFormat = IDFormatUUID
	}

	// Long-polling requests must outlive the longest wait.
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = max(cfg.Queue.DefaultTimeout, DefaultWaitTimeout) + writeTimeoutMargin
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 20
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}

	// Postgres defaults
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}

	// Kafka defaults
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "jobqueue-jobs"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "jobqueue-relay"
	}
	if cfg.Kafka.Queue == "" {
		cfg.Kafka.Queue = "default"
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}
}

// Validation errors for Config.
var (
	ErrInvalidStorageMode  = errors.New("storage.mode must be 'memory', 'redis' or 'postgres'")
	ErrInvalidIDFormat     = errors.New("queue.id_format must be 'uuid' or 'ulid'")
	ErrInvalidPollInterval = errors.New("queue.poll_interval_ms must be positive and not exceed queue.max_poll_interval_ms")
	ErrInvalidTimeout      = errors.New("queue.default_timeout must not be negative")
	ErrInvalidLogFormat    = errors.New("logger.format must be 'json' or 'text'")
)

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if !c.Storage.Mode.IsValid() {
		return ErrInvalidStorageMode
	}
	if !c.Queue.IDFormat.IsValid() {
		return ErrInvalidIDFormat
	}
	if c.Queue.PollIntervalMs <= 0 || c.Queue.PollIntervalMs > c.Queue.MaxPollIntervalMs {
		return ErrInvalidPollInterval
	}
	if c.Queue.DefaultTimeout < 0 {
		return ErrInvalidTimeout
	}
	if c.Logger.Format != "json" && c.Logger.Format != "text" {
		return ErrInvalidLogFormat
	}
	return nil
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// URL returns the PostgreSQL connection URL understood by pgxpool.
func (c *PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
