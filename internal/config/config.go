// Package config loads the service and search configuration from a YAML file
// with EVRP_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"evrptw/internal/apperr"
	"evrptw/internal/logger"
	"evrptw/internal/model"
	"evrptw/internal/opt"
)

type Config struct {
	App     AppConfig     `yaml:"app"`
	Log     logger.Config `yaml:"log"`
	Search  SearchConfig  `yaml:"search"`
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	API     APIConfig     `yaml:"api"`
	Webhook WebhookConfig `yaml:"webhook"`
}

type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
	Addr string `yaml:"addr"`
}

// SearchConfig embeds the search constants and adds the default seed.
type SearchConfig struct {
	opt.Config `yaml:",inline"`
	Seed       int64 `yaml:"seed"`
}

// StoreConfig picks the run store: memory, postgres or sqlite.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type APIConfig struct {
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
	RunTimeout    time.Duration `yaml:"run_timeout"`
}

type WebhookConfig struct {
	Enabled       bool                 `yaml:"enabled"`
	PollInterval  time.Duration        `yaml:"poll_interval"`
	BatchSize     int                  `yaml:"batch_size"`
	Subscriptions []model.Subscription `yaml:"subscriptions"`
}

func Default() *Config {
	return &Config{
		App:    AppConfig{Name: "evrptw", Env: "development", Addr: ":8080"},
		Log:    logger.DefaultConfig(),
		Search: SearchConfig{Config: opt.DefaultConfig(), Seed: 42},
		Store:  StoreConfig{Driver: "memory", SQLitePath: "evrptw.db"},
		API: APIConfig{
			RatePerSecond: 2,
			Burst:         4,
			MaxBodyBytes:  8 << 20,
			RunTimeout:    30 * time.Minute,
		},
		Webhook: WebhookConfig{PollInterval: 2 * time.Second, BatchSize: 25},
	}
}

// Load reads path over the defaults when path is not empty, then applies the
// environment. The search section is validated before returning.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInvalidConfig, fmt.Sprintf("read config %s", path))
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInvalidConfig, fmt.Sprintf("parse config %s", path))
		}
	}
	cfg.applyEnv()
	if err := cfg.Search.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "memory", "postgres", "sqlite":
	default:
		return nil, apperr.InvalidConfig("store.driver", fmt.Sprintf("unknown driver %q", cfg.Store.Driver))
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.App.Env = getEnv("EVRP_ENV", c.App.Env)
	c.App.Addr = getEnv("EVRP_ADDR", c.App.Addr)
	c.Log.Level = getEnv("EVRP_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("EVRP_LOG_FORMAT", c.Log.Format)

	c.Search.Iterations = getEnvInt("EVRP_ITERATIONS", c.Search.Iterations)
	c.Search.PartialRun = getEnvBool("EVRP_PARTIAL_RUN", c.Search.PartialRun)
	c.Search.TimeLimitSeconds = getEnvFloat("EVRP_TIME_LIMIT_SECONDS", c.Search.TimeLimitSeconds)
	c.Search.Seed = int64(getEnvInt("EVRP_SEED", int(c.Search.Seed)))
	c.Search.Policy.Kind = opt.PolicyKind(getEnv("EVRP_POLICY", string(c.Search.Policy.Kind)))

	// DATABASE_URL and REDIS_URL are honoured unprefixed, the way hosting platforms set them.
	if url := getEnv("DATABASE_URL", ""); url != "" {
		c.Store.DatabaseURL = url
		if c.Store.Driver == "memory" {
			c.Store.Driver = "postgres"
		}
	}
	c.Store.Driver = getEnv("EVRP_STORE", c.Store.Driver)
	c.Store.SQLitePath = getEnv("EVRP_SQLITE_PATH", c.Store.SQLitePath)
	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)

	c.API.RatePerSecond = getEnvFloat("EVRP_RATE_PER_SECOND", c.API.RatePerSecond)
	c.API.Burst = getEnvInt("EVRP_RATE_BURST", c.API.Burst)
	c.API.RunTimeout = getEnvDuration("EVRP_RUN_TIMEOUT", c.API.RunTimeout)
	c.Webhook.Enabled = getEnvBool("EVRP_WEBHOOKS", c.Webhook.Enabled)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
