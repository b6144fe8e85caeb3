package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

// DefaultMaxEntries bounds the in-memory cache when no size is configured
const DefaultMaxEntries = 1024

// Memory is an in-process cache. Entries are kept until the least recently
// used one has to make room for a new descriptor; staleness never evicts.
type Memory struct {
	entries    *lru.Cache[string, *Entry]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	log        zerolog.Logger
	metrics    *Metrics
}

// MemoryOption configures a Memory cache
type MemoryOption func(*Memory)

// WithTTL sets the freshness window for new entries
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithMaxEntries sets the LRU capacity
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithLogger sets the logger used for eviction events
func WithLogger(log zerolog.Logger) MemoryOption {
	return func(m *Memory) { m.log = log }
}

// WithMetrics records lookups, writes and evictions
func WithMetrics(metrics *Metrics) MemoryOption {
	return func(m *Memory) { m.metrics = metrics }
}

// NewMemory creates an in-memory cache
func NewMemory(opts ...MemoryOption) (*Memory, error) {
	m := &Memory{
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}

	entries, err := lru.NewWithEvict(m.maxEntries, m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	m.entries = entries
	return m, nil
}

func (m *Memory) onEvict(key string, e *Entry) {
	m.log.Debug().Str("key", key).Time("stored_at", e.StoredAt).Msg("cache entry evicted")
	m.metrics.recordEviction()
}

// Get implements Reader
func (m *Memory) Get(_ context.Context, d Descriptor) (*Entry, bool) {
	e, ok := m.entries.Get(d.Key())
	m.metrics.recordLookup(ok)
	return e, ok
}

// Put implements Writer
func (m *Memory) Put(_ context.Context, d Descriptor, payload jsonvalue.Value, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.entries.Add(d.Key(), &Entry{Payload: payload, StoredAt: m.now(), TTL: ttl})
	m.metrics.recordPut()
	m.metrics.setSize(m.entries.Len())
	return nil
}

// TTL implements Cache
func (m *Memory) TTL() time.Duration { return m.ttl }

// Len implements Cache
func (m *Memory) Len(context.Context) int { return m.entries.Len() }

// Cap returns the configured capacity
func (m *Memory) Cap() int { return m.maxEntries }

// Purge implements Cache
func (m *Memory) Purge(context.Context) error {
	m.entries.Purge()
	m.metrics.setSize(0)
	return nil
}
