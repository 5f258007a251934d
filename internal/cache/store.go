package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTTLs mirrors the categories the application caches under. The
// table is configuration; these are only the fallback values.
var DefaultTTLs = map[string]time.Duration{
	"document":   24 * time.Hour,
	"analysis":   time.Hour,
	"enrichment": 7 * 24 * time.Hour,
	"search":     2 * time.Hour,
	"general":    6 * time.Hour,
}

// DefaultTTL applies to categories absent from the table.
const DefaultTTL = time.Hour

// Store is a two-tier cache: a mutex-guarded in-process map in front of an
// optional durable backend. Entries never mutate; a put replaces the whole
// entry. Safe for concurrent use from multiple dispatches in flight.
type Store struct {
	log        *slog.Logger
	durable    Durable
	ttls       map[string]time.Duration
	defaultTTL time.Duration

	mu  sync.RWMutex
	mem map[string]Entry

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
	errs   atomic.Int64
}

// NewStore builds a Store. durable may be nil for a memory-only cache; a
// nil or empty ttls table falls back to DefaultTTLs.
func NewStore(log *slog.Logger, durable Durable, ttls map[string]time.Duration, defaultTTL time.Duration) *Store {
	if len(ttls) == 0 {
		ttls = DefaultTTLs
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Store{
		log:        log,
		durable:    durable,
		ttls:       ttls,
		defaultTTL: defaultTTL,
		mem:        make(map[string]Entry),
	}
}

// TTLFor returns the expiry for a category.
func (s *Store) TTLFor(category string) time.Duration {
	if ttl, ok := s.ttls[category]; ok {
		return ttl
	}
	return s.defaultTTL
}

func memKey(key, category string) string {
	return category + "\x00" + key
}

// Get checks the in-process tier, then the durable tier. A stale entry is a
// miss and is removed rather than revived; durable read errors count as
// misses too.
func (s *Store) Get(ctx context.Context, key, category string) ([]byte, bool) {
	ttl := s.TTLFor(category)
	mk := memKey(key, category)

	s.mu.RLock()
	entry, ok := s.mem[mk]
	s.mu.RUnlock()
	if ok {
		if time.Since(entry.CreatedAt) < ttl {
			s.hits.Add(1)
			return entry.Payload, true
		}
		s.mu.Lock()
		delete(s.mem, mk)
		s.mu.Unlock()
		// The durable copy carries the same timestamp; drop it too.
		if s.durable != nil {
			if err := s.durable.Delete(ctx, key, category); err != nil {
				s.errs.Add(1)
				s.log.Warn("failed to delete expired cache entry", "key", key, "category", category, "err", err)
			}
		}
		s.misses.Add(1)
		return nil, false
	}

	if s.durable != nil {
		entry, found, err := s.durable.Get(ctx, key, category)
		if err != nil {
			s.errs.Add(1)
			s.log.Warn("durable cache read failed", "key", key, "category", category, "err", err)
		} else if found {
			if time.Since(entry.CreatedAt) < ttl {
				s.mu.Lock()
				s.mem[mk] = entry
				s.mu.Unlock()
				s.hits.Add(1)
				return entry.Payload, true
			}
			if err := s.durable.Delete(ctx, key, category); err != nil {
				s.errs.Add(1)
				s.log.Warn("failed to delete expired cache entry", "key", key, "category", category, "err", err)
			}
		}
	}

	s.misses.Add(1)
	return nil, false
}

// Put writes to both tiers. The durable write is best-effort: a failure is
// logged and counted, and the call still succeeds with the in-process copy.
// Last writer wins for a given key.
func (s *Store) Put(ctx context.Context, key, category string, payload []byte, metadata map[string]string) error {
	entry := Entry{
		Key:       key,
		Category:  category,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}

	s.mu.Lock()
	s.mem[memKey(key, category)] = entry
	s.mu.Unlock()
	s.writes.Add(1)

	if s.durable != nil {
		if err := s.durable.Put(ctx, entry); err != nil {
			s.errs.Add(1)
			s.log.Warn("durable cache write failed", "key", key, "category", category, "err", err)
		}
	}
	return nil
}

// Clear drops matching entries from both tiers. No categories means all.
func (s *Store) Clear(ctx context.Context, categories ...string) error {
	s.mu.Lock()
	if len(categories) == 0 {
		s.mem = make(map[string]Entry)
	} else {
		for mk, e := range s.mem {
			for _, c := range categories {
				if e.Category == c {
					delete(s.mem, mk)
					break
				}
			}
		}
	}
	s.mu.Unlock()

	if s.durable != nil {
		if err := s.durable.Clear(ctx, categories...); err != nil {
			s.errs.Add(1)
			return err
		}
	}
	return nil
}

// Stats reports counters and per-category entry counts. Counts come from
// the durable tier when present, the in-process tier otherwise.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Writes: s.writes.Load(),
		Errors: s.errs.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	if s.durable != nil {
		counts, err := s.durable.CountByCategory(ctx)
		if err == nil {
			stats.EntriesByCategory = counts
			return stats, nil
		}
		s.errs.Add(1)
		s.log.Warn("durable cache count failed", "err", err)
		stats.Errors = s.errs.Load()
	}

	counts := make(map[string]int64)
	s.mu.RLock()
	for _, e := range s.mem {
		counts[e.Category]++
	}
	s.mu.RUnlock()
	stats.EntriesByCategory = counts
	return stats, nil
}

// Close closes the durable tier, if any.
func (s *Store) Close() error {
	if s.durable != nil {
		return s.durable.Close()
	}
	return nil
}
