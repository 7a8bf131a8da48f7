// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Definitions DefinitionsConfig `mapstructure:"definitions"`
	Health      HealthConfig      `mapstructure:"health"`
	Search      SearchConfig      `mapstructure:"search"`
	Solver      SolverConfig      `mapstructure:"solver"`
	Metadata    MetadataConfig    `mapstructure:"metadata"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DefinitionsConfig holds upstream definition repository configuration.
type DefinitionsConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Version   string `mapstructure:"version"`
	CachePath string `mapstructure:"cache_path"`
	UserAgent string `mapstructure:"user_agent"`
	SyncCron  string `mapstructure:"sync_cron"`
}

// HealthConfig holds health probe loop configuration.
type HealthConfig struct {
	Cron             string        `mapstructure:"cron"`
	BatchSize        int           `mapstructure:"batch_size"`
	MaxDomains       int           `mapstructure:"max_domains"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	MaxCronTimeoutMS int           `mapstructure:"max_cron_timeout_ms"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// SearchConfig holds search dispatcher configuration.
type SearchConfig struct {
	InteractiveDeadline time.Duration `mapstructure:"interactive_deadline"`
	BackgroundDeadline  time.Duration `mapstructure:"background_deadline"`
	CandidateLimit      int           `mapstructure:"candidate_limit"`
	FastTierSize        int           `mapstructure:"fast_tier_size"`
	SlowTierSize        int           `mapstructure:"slow_tier_size"`
	MinSuccessRate      float64       `mapstructure:"min_success_rate"`
	SlowTierSkipCount   int           `mapstructure:"slow_tier_skip_count"`
	RelevanceThreshold  float64       `mapstructure:"relevance_threshold"`
}

// SolverConfig holds FlareSolverr client configuration.
type SolverConfig struct {
	URL        string        `mapstructure:"url"`
	MaxTimeout time.Duration `mapstructure:"max_timeout"`
}

// MetadataConfig holds metadata resolver configuration.
type MetadataConfig struct {
	CinemetaURL string        `mapstructure:"cinemeta_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// RateLimitConfig holds per-client request rate limiting configuration.
type RateLimitConfig struct {
	RedisURL  string `mapstructure:"redis_url"`
	PerMinute int    `mapstructure:"per_minute"`
	Burst     int    `mapstructure:"burst"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.streamsieve")
	}

	v.SetEnvPrefix("STREAMSIEVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy deployment env names used by existing installs.
	_ = v.BindEnv("health.max_cron_timeout_ms", "MAX_CRON_TIMEOUT_MS")
	_ = v.BindEnv("solver.url", "SOLVER_URL")
	_ = v.BindEnv("database.path", "HEALTH_STORE_URL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7000)

	v.SetDefault("database.path", "./data/streamsieve.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.compress", true)

	v.SetDefault("definitions.base_url", "https://indexers.prowlarr.com")
	v.SetDefault("definitions.version", "v11")
	v.SetDefault("definitions.cache_path", "./data/definitions")
	v.SetDefault("definitions.user_agent", "StreamSieve/1.0")
	v.SetDefault("definitions.sync_cron", "0 4 * * *")

	v.SetDefault("health.cron", "*/15 * * * *")
	v.SetDefault("health.batch_size", 5)
	v.SetDefault("health.max_domains", 5)
	v.SetDefault("health.probe_timeout", 10*time.Second)
	v.SetDefault("health.max_cron_timeout_ms", 280000)
	v.SetDefault("health.failure_threshold", 5)
	v.SetDefault("health.cooldown", 2*time.Hour)

	v.SetDefault("search.interactive_deadline", 15*time.Second)
	v.SetDefault("search.background_deadline", 45*time.Second)
	v.SetDefault("search.candidate_limit", 30)
	v.SetDefault("search.fast_tier_size", 8)
	v.SetDefault("search.slow_tier_size", 5)
	v.SetDefault("search.min_success_rate", 20.0)
	v.SetDefault("search.slow_tier_skip_count", 10)
	v.SetDefault("search.relevance_threshold", 0.6)

	v.SetDefault("solver.url", "")
	v.SetDefault("solver.max_timeout", 60*time.Second)

	v.SetDefault("metadata.cinemeta_url", "https://v3-cinemeta.strem.io")
	v.SetDefault("metadata.timeout", 5*time.Second)
	v.SetDefault("metadata.cache_ttl", 24*time.Hour)

	v.SetDefault("ratelimit.redis_url", "")
	v.SetDefault("ratelimit.per_minute", 30)
	v.SetDefault("ratelimit.burst", 10)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CronBudget returns the wall-clock budget for one health loop invocation.
func (c *HealthConfig) CronBudget() time.Duration {
	if c.MaxCronTimeoutMS <= 0 {
		return 280 * time.Second
	}
	return time.Duration(c.MaxCronTimeoutMS) * time.Millisecond
}
