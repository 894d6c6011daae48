// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arunpatilgithub/twitter-microservices/internal/api"
	"github.com/arunpatilgithub/twitter-microservices/internal/database"
	"github.com/arunpatilgithub/twitter-microservices/internal/directory"
	"github.com/arunpatilgithub/twitter-microservices/internal/search"
)

const (
	defaultServerPort      = 8080
	defaultFanoutThreshold = 10
	defaultCacheTTL        = time.Hour

	defaultPublishAttempts       = 3
	defaultPublishInitialDelay   = 100 * time.Millisecond
	defaultPublishMaxDelay       = 5 * time.Second
	defaultPublishAttemptTimeout = 2 * time.Second

	defaultBreakerWindow  = 10
	defaultBreakerRate    = 0.5
	defaultBreakerReset   = 10 * time.Second
	defaultConsumerBlock  = 5 * time.Second
	defaultConsumerBatch  = 10
	defaultClaimMinIdle   = 5 * time.Minute
	defaultConsumerSuffix = "worker-1"
)

// Config is the root configuration for the fanout service.
type Config struct {
	Debug     bool             `yaml:"debug"`
	Server    api.ServerConfig `yaml:"server"`
	Database  database.Config  `yaml:"database"`
	Redis     RedisConfig      `yaml:"redis"`
	Search    search.Config    `yaml:"search"`
	Directory directory.Config `yaml:"directory"`
	Fanout    FanoutConfig     `yaml:"fanout"`
	Publisher PublisherConfig  `yaml:"publisher"`
	Breaker   BreakerConfig    `yaml:"breaker"`
	Consumers ConsumersConfig  `yaml:"consumers"`
	Cache     CacheConfig      `yaml:"cache"`
}

// RedisConfig holds the connection shared by the stream broker and the
// hot-content cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FanoutConfig tunes the push/pull decision.
type FanoutConfig struct {
	Threshold int `yaml:"threshold"`
}

// PublisherConfig tunes the resilient publisher's retry budget.
type PublisherConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// BreakerConfig tunes the circuit breakers. The same shape applies to
// the directory-lookup and broker-publish breakers.
type BreakerConfig struct {
	WindowSize       int           `yaml:"window_size"`
	FailureThreshold float64       `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// ConsumersConfig tunes the stream consumers.
type ConsumersConfig struct {
	ConsumerID   string        `yaml:"consumer_id"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
	BatchSize    int           `yaml:"batch_size"`
	ClaimMinIdle time.Duration `yaml:"claim_min_idle"`
}

// CacheConfig tunes the hot-content cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// Load reads the config file, applies environment overrides and
// defaults, and validates the result. A missing file is not an error;
// environment variables and defaults carry a container deployment.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("parse config: %w", unmarshalErr)
		}
	case os.IsNotExist(err):
		// Fall through to env vars and defaults.
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	overrideWithEnvVars(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Search.URL == "" {
		return errors.New("search.url is required")
	}
	if c.Directory.URL == "" {
		return errors.New("directory.url is required")
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1 {
		return fmt.Errorf("breaker.failure_threshold must be in (0, 1], got %v", c.Breaker.FailureThreshold)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultServerPort
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Fanout.Threshold == 0 {
		cfg.Fanout.Threshold = defaultFanoutThreshold
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = defaultCacheTTL
	}

	if cfg.Publisher.MaxAttempts == 0 {
		cfg.Publisher.MaxAttempts = defaultPublishAttempts
	}
	if cfg.Publisher.InitialDelay == 0 {
		cfg.Publisher.InitialDelay = defaultPublishInitialDelay
	}
	if cfg.Publisher.MaxDelay == 0 {
		cfg.Publisher.MaxDelay = defaultPublishMaxDelay
	}
	if cfg.Publisher.AttemptTimeout == 0 {
		cfg.Publisher.AttemptTimeout = defaultPublishAttemptTimeout
	}

	if cfg.Breaker.WindowSize == 0 {
		cfg.Breaker.WindowSize = defaultBreakerWindow
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = defaultBreakerRate
	}
	if cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker.ResetTimeout = defaultBreakerReset
	}

	if cfg.Consumers.ConsumerID == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = defaultConsumerSuffix
		}
		cfg.Consumers.ConsumerID = hostname
	}
	if cfg.Consumers.BlockTimeout == 0 {
		cfg.Consumers.BlockTimeout = defaultConsumerBlock
	}
	if cfg.Consumers.BatchSize == 0 {
		cfg.Consumers.BatchSize = defaultConsumerBatch
	}
	if cfg.Consumers.ClaimMinIdle == 0 {
		cfg.Consumers.ClaimMinIdle = defaultClaimMinIdle
	}
}

func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Database = v
	}

	if v := os.Getenv("ES_URL"); v != "" {
		cfg.Search.URL = v
	}
	if v := os.Getenv("ES_USERNAME"); v != "" {
		cfg.Search.Username = v
	}
	if v := os.Getenv("ES_PASSWORD"); v != "" {
		cfg.Search.Password = v
	}

	if v := os.Getenv("DIRECTORY_URL"); v != "" {
		cfg.Directory.URL = v
	}
	if v := os.Getenv("FANOUT_THRESHOLD"); v != "" {
		if threshold, err := strconv.Atoi(v); err == nil {
			cfg.Fanout.Threshold = threshold
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
