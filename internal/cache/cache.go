package cache

import (
	"context"
	"time"
)

// Cache memoizes expensive orchestration results by content-derived key
// with category-scoped expiry.
type Cache interface {
	// Get returns the payload for key in category, or false on a miss.
	// A stale or unreadable entry is a miss, never an error.
	Get(ctx context.Context, key, category string) ([]byte, bool)

	// Put stores payload under key, overwriting any existing entry.
	// Durable-tier failures are absorbed; the in-process tier always holds
	// the fresh value for the remainder of the process.
	Put(ctx context.Context, key, category string, payload []byte, metadata map[string]string) error

	// Clear drops matching entries from all tiers. No categories means all.
	Clear(ctx context.Context, categories ...string) error

	// Stats reports usage counters and entry counts per category.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any durable-tier connections.
	Close() error
}

// Entry is one immutable cached payload. A new computation under the same
// key creates a new entry that atomically replaces the old one.
type Entry struct {
	Key       string            `json:"key"`
	Category  string            `json:"category"`
	Payload   []byte            `json:"payload"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Stats summarizes cache behavior since process start.
type Stats struct {
	Hits              int64            `json:"hits"`
	Misses            int64            `json:"misses"`
	Writes            int64            `json:"writes"`
	Errors            int64            `json:"errors"`
	HitRate           float64          `json:"hit_rate"`
	EntriesByCategory map[string]int64 `json:"entries_by_category"`
}

// Durable is the second, process-surviving tier behind Store. TTL policy
// lives in Store; a Durable only persists entries and reports what it holds.
// Implementations must report corrupted rows as not-found after removing
// them, never as errors that reach the caller.
type Durable interface {
	Get(ctx context.Context, key, category string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key, category string) error
	Clear(ctx context.Context, categories ...string) error
	CountByCategory(ctx context.Context) (map[string]int64, error)
	Close() error
}
