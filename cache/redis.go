package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

const (
	// DefaultPrefix namespaces cache keys in a shared Redis
	DefaultPrefix = "finboard:cache:"
	// DefaultRetention keeps stale entries around after their TTL so they
	// can still be read back
	DefaultRetention = time.Hour
)

// Redis stores entries as JSON documents in Redis. Each key expires
// TTL+retention after it is written.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
	metrics   *Metrics
}

// RedisOption configures a Redis cache
type RedisOption func(*Redis)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithRetention sets how long entries outlive their TTL
func WithRetention(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d >= 0 {
			r.retention = d
		}
	}
}

// WithRedisTTL sets the freshness window for new entries
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRedisClock replaces time.Now
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) { r.now = now }
}

// WithRedisLogger sets the logger for backend errors
func WithRedisLogger(log zerolog.Logger) RedisOption {
	return func(r *Redis) { r.log = log }
}

// WithRedisMetrics records lookups and writes
func WithRedisMetrics(m *Metrics) RedisOption {
	return func(r *Redis) { r.metrics = m }
}

// NewRedis wraps an existing client
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:    client,
		prefix:    DefaultPrefix,
		ttl:       DefaultTTL,
		retention: DefaultRetention,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Get implements Reader. Backend errors are logged and reported as misses.
func (r *Redis) Get(ctx context.Context, d Descriptor) (*Entry, bool) {
	key := StorageKey(r.prefix, d)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Str("key", key).Msg("redis cache read failed")
		}
		r.metrics.recordLookup(false)
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("corrupt redis cache entry")
		r.metrics.recordLookup(false)
		return nil, false
	}
	r.metrics.recordLookup(true)
	return &e, true
}

// Put implements Writer
func (r *Redis) Put(ctx context.Context, d Descriptor, payload jsonvalue.Value, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	data, err := json.Marshal(&Entry{Payload: payload, StoredAt: r.now(), TTL: ttl})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := r.client.Set(ctx, StorageKey(r.prefix, d), data, ttl+r.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	r.metrics.recordPut()
	return nil
}

// TTL implements Cache
func (r *Redis) TTL() time.Duration { return r.ttl }

// Len implements Cache by scanning the prefix. Errors yield the count so far.
func (r *Redis) Len(ctx context.Context) int {
	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		r.log.Warn().Err(err).Msg("redis cache scan failed")
	}
	return n
}

// Purge implements Cache
func (r *Redis) Purge(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}
