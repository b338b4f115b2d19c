// Package config loads the service configuration from a YAML file and
// applies defaults. Validation that can fail fast (timezone, backend
// selector) happens at load time so a misconfigured process never starts.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Appender backend selectors.
const (
	AppenderBackendQueue = "queue"
	AppenderBackendRedis = "redis"
)

// Config is the root configuration object.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Quota    QuotaConfig    `yaml:"quota"`
	Appender AppenderConfig `yaml:"appender"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds the SQL store connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds the optional Redis connection settings. An empty Addr
// means no external cache/queue is available: the quota cache falls back to
// an in-process map and the redis appender backend cannot be selected.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QuotaConfig holds quota ledger settings.
type QuotaConfig struct {
	// Timezone is the IANA zone in which calendar months roll over.
	Timezone string `yaml:"timezone"`
	// SoftWindowPercent bounds optimistic cache overshoot as a percentage
	// of the monthly limit (minimum 10 units).
	SoftWindowPercent int `yaml:"soft-window-percent"`
	// WriteThroughPercent forces a database reconciliation every time the
	// cached counter crosses a multiple of this percentage of the limit.
	WriteThroughPercent int `yaml:"write-through-percent"`
	// CacheTTLSeconds caps the lifetime of quota cache entries. Entries
	// otherwise live until the month boundary; 0 keeps that behavior.
	CacheTTLSeconds int `yaml:"cache-ttl-seconds"`
}

// AppenderConfig holds execution-log appender settings.
type AppenderConfig struct {
	// Backend selects the buffer implementation: "queue" (in-process,
	// drop-new) or "redis" (external list, drop-oldest).
	Backend string `yaml:"backend"`
	// QueueName is the Redis list key for the redis backend.
	QueueName string `yaml:"queue-name"`
	// MaxQueue is the buffer capacity in events.
	MaxQueue int `yaml:"max-queue"`
	// FlushIntervalMS is the consumer tick in milliseconds.
	FlushIntervalMS int `yaml:"flush-interval-ms"`
	// MaxBatch caps how many events one flush transaction inserts.
	MaxBatch int `yaml:"max-batch"`
	// RetentionDays is how long flushed logs are kept; 0 disables cleanup.
	RetentionDays int `yaml:"retention-days"`
}

// LoggingConfig holds process log settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// File enables rotated file output when set; empty logs to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
}

// Defaults mirror the original deployment values.
const (
	defaultTimezone            = "Asia/Bangkok"
	defaultSoftWindowPercent   = 5
	defaultWriteThroughPercent = 10
	defaultQueueName           = "execution_logs"
	defaultMaxQueue            = 5000
	defaultFlushIntervalMS     = 200
	defaultMaxBatch            = 500
	defaultServerAddr          = ":8000"
)

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	var cfg Config
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	cfg.applyDefaults()
	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = defaultServerAddr
	}
	if strings.TrimSpace(c.Quota.Timezone) == "" {
		c.Quota.Timezone = defaultTimezone
	}
	if c.Quota.SoftWindowPercent <= 0 {
		c.Quota.SoftWindowPercent = defaultSoftWindowPercent
	}
	if c.Quota.WriteThroughPercent <= 0 {
		c.Quota.WriteThroughPercent = defaultWriteThroughPercent
	}
	if strings.TrimSpace(c.Appender.Backend) == "" {
		c.Appender.Backend = AppenderBackendQueue
	}
	if strings.TrimSpace(c.Appender.QueueName) == "" {
		c.Appender.QueueName = defaultQueueName
	}
	if c.Appender.MaxQueue <= 0 {
		c.Appender.MaxQueue = defaultMaxQueue
	}
	if c.Appender.FlushIntervalMS <= 0 {
		c.Appender.FlushIntervalMS = defaultFlushIntervalMS
	}
	if c.Appender.MaxBatch <= 0 {
		c.Appender.MaxBatch = defaultMaxBatch
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if _, errLoad := time.LoadLocation(c.Quota.Timezone); errLoad != nil {
		return fmt.Errorf("config: invalid quota.timezone %q: %w", c.Quota.Timezone, errLoad)
	}
	switch c.Appender.Backend {
	case AppenderBackendQueue:
	case AppenderBackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("config: appender.backend=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("config: unknown appender.backend %q", c.Appender.Backend)
	}
	return nil
}

// Location returns the validated quota timezone.
func (c *Config) Location() *time.Location {
	loc, errLoad := time.LoadLocation(c.Quota.Timezone)
	if errLoad != nil {
		// validate() already rejected bad zones.
		return time.UTC
	}
	return loc
}

// FlushInterval returns the appender tick as a duration.
func (a AppenderConfig) FlushInterval() time.Duration {
	return time.Duration(a.FlushIntervalMS) * time.Millisecond
}
