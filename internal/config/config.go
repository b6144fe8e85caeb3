// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Cache backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	APIToken  string `env:"API_TOKEN"`
	RedisAddr string `env:"REDIS_ADDR"`

	Cache     CacheConfig     `envPrefix:"CACHE_"`
	Fetch     FetchConfig     `envPrefix:"FETCH_"`
	OAuth     OAuthConfig     `envPrefix:"OAUTH_"`
	Scheduler SchedulerConfig `envPrefix:"SCHEDULER_"`
}

// CacheConfig selects and sizes the response cache
type CacheConfig struct {
	Backend    string        `env:"BACKEND" envDefault:"memory"`
	TTL        time.Duration `env:"TTL" envDefault:"5m"`
	MaxEntries int           `env:"MAX_ENTRIES" envDefault:"1024"`
	Retention  time.Duration `env:"RETENTION" envDefault:"1h"`
	Prefix     string        `env:"PREFIX" envDefault:"finboard:cache:"`
}

// FetchConfig tunes outbound requests
type FetchConfig struct {
	MaxRetries int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelay time.Duration `env:"RETRY_DELAY" envDefault:"1s"`
	Timeout    time.Duration `env:"TIMEOUT"`
	RelayURL   string        `env:"RELAY_URL"`
	RelayHosts []string      `env:"RELAY_HOSTS" envSeparator:","`
	Origin     string        `env:"ORIGIN"`
	RateLimit  float64       `env:"RATE_LIMIT"`
	RateBurst  int           `env:"RATE_BURST" envDefault:"1"`
}

// OAuthConfig holds client credentials for APIs behind OAuth2
type OAuthConfig struct {
	TokenURL     string   `env:"TOKEN_URL"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// SchedulerConfig controls the widget refresh loop
type SchedulerConfig struct {
	Tick time.Duration `env:"TICK" envDefault:"1s"`
}

// Load reads an optional .env file and then the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables only
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasRedis returns true if a Redis server is configured
func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

// HasOAuth returns true if client credentials are complete
func (c *OAuthConfig) HasOAuth() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

// Validate rejects settings the services cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("FETCH_MAX_RETRIES must not be negative, got %d", c.Fetch.MaxRetries))
	}
	if c.Fetch.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("FETCH_RETRY_DELAY must not be negative, got %s", c.Fetch.RetryDelay))
	}
	if c.Fetch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must not be negative, got %s", c.Fetch.Timeout))
	}
	if c.Fetch.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("FETCH_RATE_LIMIT must not be negative, got %g", c.Fetch.RateLimit))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must not be negative, got %s", c.Cache.TTL))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("CACHE_MAX_ENTRIES must not be negative, got %d", c.Cache.MaxEntries))
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if !c.HasRedis() {
			errs = append(errs, errors.New("CACHE_BACKEND=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend))
	}

	if c.Scheduler.Tick <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_TICK must be positive, got %s", c.Scheduler.Tick))
	}
	return errors.Join(errs...)
}
