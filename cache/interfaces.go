// Package cache stores fetched JSON payloads keyed by request descriptor
// with a per-instance TTL.
package cache

import (
	"context"
	"time"

	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

// DefaultTTL is the freshness window used when none is configured
const DefaultTTL = 5 * time.Minute

// Entry represents a cached payload with metadata. Entries are never
// modified after they are stored; a new Put replaces the whole entry.
type Entry struct {
	Payload  jsonvalue.Value `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
}

// Fresh reports whether the entry is still inside its TTL at now
func (e *Entry) Fresh(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// Age returns how long ago the entry was stored
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Reader defines the interface for reading cache entries
type Reader interface {
	// Get returns the entry for d whether or not it is fresh.
	// Callers decide what to do with stale entries.
	Get(ctx context.Context, d Descriptor) (*Entry, bool)
}

// Writer defines the interface for writing cache entries
type Writer interface {
	// Put stores payload under d, replacing any existing entry.
	// A non-positive ttl means the cache's own TTL.
	Put(ctx context.Context, d Descriptor, payload jsonvalue.Value, ttl time.Duration) error
}

// Cache is the main interface that combines all cache operations
type Cache interface {
	Reader
	Writer
	// TTL is the freshness window applied to new entries
	TTL() time.Duration
	// Len counts the stored entries, stale ones included
	Len(ctx context.Context) int
	// Purge drops every entry
	Purge(ctx context.Context) error
}
