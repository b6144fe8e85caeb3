// Package bootstrap builds the fetch stack from configuration
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/briangreenhill/finboard/cache"
	"github.com/briangreenhill/finboard/fetch"
	"github.com/briangreenhill/finboard/internal/config"
)

// Logger returns a timestamped logger at the named level. Unknown levels
// fall back to info.
func Logger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Stack is the wired data layer
type Stack struct {
	Coordinator *fetch.Coordinator
	Cache       cache.Cache
	Redis       *redis.Client
}

// New wires cache, executor and coordinator. A nil reg disables metrics.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log zerolog.Logger) (*Stack, error) {
	var (
		fetchMetrics *fetch.Metrics
		cacheMetrics *cache.Metrics
		err          error
	)
	if reg != nil {
		if fetchMetrics, err = fetch.NewMetrics(reg); err != nil {
			return nil, fmt.Errorf("register fetch metrics: %w", err)
		}
		if cacheMetrics, err = cache.NewMetrics(reg); err != nil {
			return nil, fmt.Errorf("register cache metrics: %w", err)
		}
	}

	s := &Stack{}
	if cfg.HasRedis() {
		s.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	switch cfg.Cache.Backend {
	case config.BackendRedis:
		if s.Redis == nil {
			return nil, fmt.Errorf("redis cache backend needs REDIS_ADDR")
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.Redis.Ping(pingCtx).Err(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		s.Cache = cache.NewRedis(s.Redis,
			cache.WithPrefix(cfg.Cache.Prefix),
			cache.WithRetention(cfg.Cache.Retention),
			cache.WithRedisTTL(cfg.Cache.TTL),
			cache.WithRedisLogger(log.With().Str("component", "cache").Logger()),
			cache.WithRedisMetrics(cacheMetrics),
		)
	default:
		mem, err := cache.NewMemory(
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithMaxEntries(cfg.Cache.MaxEntries),
			cache.WithLogger(log.With().Str("component", "cache").Logger()),
			cache.WithMetrics(cacheMetrics),
		)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("create memory cache: %w", err)
		}
		s.Cache = mem
	}

	exec := fetch.NewExecutor(ExecutorOptions(ctx, cfg, log, fetchMetrics)...)
	s.Coordinator = fetch.NewCoordinator(s.Cache, exec,
		fetch.WithCoordinatorLogger(log.With().Str("component", "coordinator").Logger()),
		fetch.WithCoordinatorMetrics(fetchMetrics),
	)

	log.Info().
		Str("cache", cfg.Cache.Backend).
		Dur("ttl", cfg.Cache.TTL).
		Int("max_retries", cfg.Fetch.MaxRetries).
		Bool("oauth", cfg.OAuth.HasOAuth()).
		Msg("fetch stack ready")
	return s, nil
}

// ExecutorOptions translates fetch configuration into executor options
func ExecutorOptions(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *fetch.Metrics) []fetch.Option {
	opts := []fetch.Option{
		fetch.WithMaxRetries(cfg.Fetch.MaxRetries),
		fetch.WithRetryDelay(cfg.Fetch.RetryDelay),
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithRelay(fetch.NewRelay(cfg.Fetch.RelayURL, cfg.Fetch.RelayHosts)),
		fetch.WithRateLimit(cfg.Fetch.RateLimit, cfg.Fetch.RateBurst),
		fetch.WithLogger(log.With().Str("component", "executor").Logger()),
		fetch.WithMetrics(m),
	}
	if cfg.Fetch.Origin != "" {
		opts = append(opts, fetch.WithOrigin(cfg.Fetch.Origin))
	}
	if cfg.OAuth.HasOAuth() {
		cc := &clientcredentials.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			Scopes:       cfg.OAuth.Scopes,
		}
		opts = append(opts, fetch.WithTokenSource(cc.TokenSource(ctx)))
	}
	return opts
}

// Close releases the Redis connection, if any
func (s *Stack) Close() error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Close()
}
