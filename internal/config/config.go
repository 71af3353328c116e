// Package config loads and validates the service configuration at startup.
// Fail-fast: an invalid configuration stops the process before anything
// connects to PostgreSQL, Redis or a job board.
//
// Values come from a YAML file, then .env files, then environment variables
// named by `env` struct tags. Environment always wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/model"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Prep-kit providers.
const (
	PrepKitNone   = "none"
	PrepKitHTTP   = "http"
	PrepKitGemini = "gemini"
)

// Config holds all runtime configuration for the campaign service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Sources       SourcesConfig       `yaml:"sources"`
	Dispatcher    DispatcherConfig    `yaml:"dispatcher"`
	PrepKit       PrepKitConfig       `yaml:"prepkit"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Matching      MatchingConfig      `yaml:"matching"`
	Logging       logger.Config       `yaml:"logging"`
}

type ServerConfig struct {
	HTTPPort        string        `yaml:"http_port"        env:"CAMPAIGN_HTTP_PORT"`
	GRPCPort        string        `yaml:"grpc_port"        env:"CAMPAIGN_GRPC_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER"`
}

type DatabaseConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

type RedisConfig struct {
	URL     string        `yaml:"url"      env:"REDIS_URL"`
	SeenTTL time.Duration `yaml:"seen_ttl" env:"REDIS_SEEN_TTL"`
}

type SchedulerConfig struct {
	// TickSpec is the robfig/cron spec that triggers RunDueCampaigns.
	TickSpec        string        `yaml:"tick_spec"        env:"SCHEDULER_TICK_SPEC"`
	Workers         int           `yaml:"workers"          env:"SCHEDULER_WORKERS"`
	SourceTimeout   time.Duration `yaml:"source_timeout"   env:"SCHEDULER_SOURCE_TIMEOUT"`
	DefaultInterval time.Duration `yaml:"default_interval" env:"SCHEDULER_DEFAULT_INTERVAL"`
}

type SourcesConfig struct {
	Adzuna   AdzunaConfig   `yaml:"adzuna"`
	Remotive RemotiveConfig `yaml:"remotive"`
}

type AdzunaConfig struct {
	AppID     string  `yaml:"app_id"     env:"ADZUNA_APP_ID"`
	AppKey    string  `yaml:"app_key"    env:"ADZUNA_APP_KEY"`
	Country   string  `yaml:"country"    env:"ADZUNA_COUNTRY"`
	RateLimit float64 `yaml:"rate_limit" env:"ADZUNA_RATE_LIMIT"`
}

type RemotiveConfig struct {
	Enabled   bool    `yaml:"enabled"    env:"REMOTIVE_ENABLED"`
	BaseURL   string  `yaml:"base_url"   env:"REMOTIVE_BASE_URL"`
	RateLimit float64 `yaml:"rate_limit" env:"REMOTIVE_RATE_LIMIT"`
}

type DispatcherConfig struct {
	Consumers      int           `yaml:"consumers"       env:"DISPATCHER_CONSUMERS"`
	MaxAttempts    int           `yaml:"max_attempts"    env:"DISPATCHER_MAX_ATTEMPTS"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"DISPATCHER_INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff"     env:"DISPATCHER_MAX_BACKOFF"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" env:"DISPATCHER_ATTEMPT_TIMEOUT"`
}

type PrepKitConfig struct {
	Provider string `yaml:"provider" env:"PREPKIT_PROVIDER"`
	URL      string `yaml:"url"      env:"PREPKIT_URL"`
	APIKey   string `yaml:"api_key"  env:"PREPKIT_API_KEY"`
	Model    string `yaml:"model"    env:"PREPKIT_MODEL"`
}

type NotificationsConfig struct {
	Enabled bool   `yaml:"enabled" env:"NOTIFICATIONS_ENABLED"`
	Channel string `yaml:"channel" env:"NOTIFICATIONS_CHANNEL"`
}

type MatchingConfig struct {
	SynonymsFile string `yaml:"synonyms_file" env:"MATCHING_SYNONYMS_FILE"`
}

// Load reads path (optional), applies .env files, environment overrides and
// defaults, and returns a validated Config.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// env-only deployment
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns CONFIG_PATH or def.
func Path(def string) string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return def
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.Server.HTTPPort == "" {
		c.Server.HTTPPort = "8083"
	}
	if c.Server.GRPCPort == "" {
		c.Server.GRPCPort = "9083"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	if c.Redis.SeenTTL == 0 {
		c.Redis.SeenTTL = 30 * 24 * time.Hour
	}
	if c.Scheduler.TickSpec == "" {
		c.Scheduler.TickSpec = "@every 1m"
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = 4
	}
	if c.Scheduler.SourceTimeout == 0 {
		c.Scheduler.SourceTimeout = 30 * time.Second
	}
	if c.Scheduler.DefaultInterval == 0 {
		c.Scheduler.DefaultInterval = model.DefaultRunInterval
	}
	if c.Sources.Adzuna.Country == "" {
		c.Sources.Adzuna.Country = "fr"
	}
	if c.Sources.Adzuna.RateLimit == 0 {
		c.Sources.Adzuna.RateLimit = 1
	}
	if c.Sources.Remotive.BaseURL == "" {
		c.Sources.Remotive.BaseURL = "https://remotive.com"
	}
	if c.Sources.Remotive.RateLimit == 0 {
		c.Sources.Remotive.RateLimit = 0.5
	}
	if c.Dispatcher.Consumers == 0 {
		c.Dispatcher.Consumers = 2
	}
	if c.Dispatcher.MaxAttempts == 0 {
		c.Dispatcher.MaxAttempts = 5
	}
	if c.Dispatcher.InitialBackoff == 0 {
		c.Dispatcher.InitialBackoff = 500 * time.Millisecond
	}
	if c.Dispatcher.MaxBackoff == 0 {
		c.Dispatcher.MaxBackoff = 30 * time.Second
	}
	if c.Dispatcher.AttemptTimeout == 0 {
		c.Dispatcher.AttemptTimeout = 60 * time.Second
	}
	if c.PrepKit.Provider == "" {
		c.PrepKit.Provider = PrepKitNone
	}
	if c.PrepKit.Provider == PrepKitGemini && c.PrepKit.Model == "" {
		c.PrepKit.Model = "gemini-2.0-flash"
	}
	if c.Notifications.Channel == "" {
		c.Notifications.Channel = "EVENT_CARD_MOVED"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when storage.driver is %q", StoragePostgres)
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage.Driver)
	}

	if c.Notifications.Enabled && c.Redis.URL == "" {
		return errors.New("REDIS_URL is required when notifications are enabled")
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be positive, got %d", c.Scheduler.Workers)
	}
	if c.Scheduler.SourceTimeout <= 0 {
		return errors.New("scheduler.source_timeout must be positive")
	}
	if c.Dispatcher.Consumers < 1 {
		return fmt.Errorf("dispatcher.consumers must be positive, got %d", c.Dispatcher.Consumers)
	}
	if c.Dispatcher.MaxAttempts < 1 {
		return fmt.Errorf("dispatcher.max_attempts must be positive, got %d", c.Dispatcher.MaxAttempts)
	}

	switch c.PrepKit.Provider {
	case PrepKitNone:
	case PrepKitHTTP:
		if c.PrepKit.URL == "" {
			return errors.New("prepkit.url is required for the http provider")
		}
	case PrepKitGemini:
		if c.PrepKit.APIKey == "" {
			return errors.New("PREPKIT_API_KEY is required for the gemini provider")
		}
	default:
		return fmt.Errorf("prepkit.provider must be one of none, http, gemini, got %q", c.PrepKit.Provider)
	}
	return nil
}
