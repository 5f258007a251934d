package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(testLogger(), nil, nil, 0)
	ctx := context.Background()

	if _, ok := s.Get(ctx, "k1", "analysis"); ok {
		t.Fatal("empty store should miss")
	}
	if err := s.Put(ctx, "k1", "analysis", []byte("payload"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok := s.Get(ctx, "k1", "analysis")
	if !ok || string(got) != "payload" {
		t.Fatalf("expected hit with payload, got ok=%v %q", ok, got)
	}
}

func TestStoreIsolatesCategories(t *testing.T) {
	s := NewStore(testLogger(), nil, nil, 0)
	ctx := context.Background()

	if err := s.Put(ctx, "shared-key", "analysis", []byte("analysis payload"), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "shared-key", "search", []byte("search payload"), nil); err != nil {
		t.Fatal(err)
	}

	got, ok := s.Get(ctx, "shared-key", "analysis")
	if !ok || string(got) != "analysis payload" {
		t.Errorf("analysis entry clobbered: ok=%v %q", ok, got)
	}
	got, ok = s.Get(ctx, "shared-key", "search")
	if !ok || string(got) != "search payload" {
		t.Errorf("search entry clobbered: ok=%v %q", ok, got)
	}
}

func TestStoreExpiresByCategoryTTL(t *testing.T) {
	ttls := map[string]time.Duration{
		"short": 20 * time.Millisecond,
		"long":  time.Hour,
	}
	s := NewStore(testLogger(), nil, ttls, time.Hour)
	ctx := context.Background()

	if err := s.Put(ctx, "k", "short", []byte("fleeting"), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "k", "long", []byte("durable"), nil); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Get(ctx, "k", "short"); !ok {
		t.Fatal("fresh entry should hit")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := s.Get(ctx, "k", "short"); ok {
		t.Error("expired entry should miss")
	}
	if _, ok := s.Get(ctx, "k", "long"); !ok {
		t.Error("the other category's TTL must not apply")
	}
	// A second read confirms the stale entry was removed, not revived.
	if _, ok := s.Get(ctx, "k", "short"); ok {
		t.Error("stale entry should stay gone")
	}
}

func TestStoreTTLForFallsBackToDefault(t *testing.T) {
	s := NewStore(testLogger(), nil, map[string]time.Duration{"analysis": time.Hour}, 30*time.Minute)
	if ttl := s.TTLFor("analysis"); ttl != time.Hour {
		t.Errorf("expected configured TTL, got %s", ttl)
	}
	if ttl := s.TTLFor("unmapped"); ttl != 30*time.Minute {
		t.Errorf("expected default TTL, got %s", ttl)
	}
}

func TestStoreStatsCountHitsMissesWrites(t *testing.T) {
	s := NewStore(testLogger(), nil, nil, 0)
	ctx := context.Background()

	s.Get(ctx, "absent", "general")
	s.Put(ctx, "k", "general", []byte("v"), nil)
	s.Get(ctx, "k", "general")
	s.Get(ctx, "k", "general")

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Hits != 2 || stats.Misses != 1 || stats.Writes != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if want := 2.0 / 3.0; stats.HitRate < want-0.001 || stats.HitRate > want+0.001 {
		t.Errorf("expected hit rate ~%.3f, got %.3f", want, stats.HitRate)
	}
	if stats.EntriesByCategory["general"] != 1 {
		t.Errorf("expected 1 general entry, got %+v", stats.EntriesByCategory)
	}
}

func TestStoreClearByCategory(t *testing.T) {
	s := NewStore(testLogger(), nil, nil, 0)
	ctx := context.Background()

	s.Put(ctx, "a", "analysis", []byte("1"), nil)
	s.Put(ctx, "b", "search", []byte("2"), nil)
	s.Put(ctx, "c", "general", []byte("3"), nil)

	if err := s.Clear(ctx, "analysis", "search"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := s.Get(ctx, "a", "analysis"); ok {
		t.Error("cleared category should miss")
	}
	if _, ok := s.Get(ctx, "b", "search"); ok {
		t.Error("cleared category should miss")
	}
	if _, ok := s.Get(ctx, "c", "general"); !ok {
		t.Error("untouched category should survive")
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear all failed: %v", err)
	}
	if _, ok := s.Get(ctx, "c", "general"); ok {
		t.Error("clear with no categories should drop everything")
	}
}

// brokenDurable fails every operation, standing in for an unreachable
// backend.
type brokenDurable struct{}

func (brokenDurable) Get(context.Context, string, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("backend unreachable")
}
func (brokenDurable) Put(context.Context, Entry) error      { return errors.New("backend unreachable") }
func (brokenDurable) Delete(context.Context, string, string) error {
	return errors.New("backend unreachable")
}
func (brokenDurable) Clear(context.Context, ...string) error { return errors.New("backend unreachable") }
func (brokenDurable) CountByCategory(context.Context) (map[string]int64, error) {
	return nil, errors.New("backend unreachable")
}
func (brokenDurable) Close() error { return nil }

func TestStoreAbsorbsDurableWriteFailure(t *testing.T) {
	s := NewStore(testLogger(), brokenDurable{}, nil, 0)
	ctx := context.Background()

	if err := s.Put(ctx, "k", "general", []byte("payload"), nil); err != nil {
		t.Fatalf("a durable write failure must not surface: %v", err)
	}
	// The in-process tier still serves the fresh value.
	got, ok := s.Get(ctx, "k", "general")
	if !ok || string(got) != "payload" {
		t.Fatalf("expected in-process hit, got ok=%v %q", ok, got)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Errors == 0 {
		t.Error("durable failures should be counted")
	}
	// Counting falls back to the in-process tier when the backend is down.
	if stats.EntriesByCategory["general"] != 1 {
		t.Errorf("expected in-process counts, got %+v", stats.EntriesByCategory)
	}
}

func TestStorePromotesFromDurableTier(t *testing.T) {
	durable, err := NewSQLiteDurable(t.TempDir() + "/cache.db")
	if err != nil {
		t.Fatalf("open durable tier: %v", err)
	}
	ctx := context.Background()

	writer := NewStore(testLogger(), durable, nil, 0)
	if err := writer.Put(ctx, "k", "general", []byte("persisted"), map[string]string{"origin": "test"}); err != nil {
		t.Fatal(err)
	}

	// A fresh store with an empty in-process tier must find the entry in the
	// durable tier and serve it as a hit.
	reader := NewStore(testLogger(), durable, nil, 0)
	got, ok := reader.Get(ctx, "k", "general")
	if !ok || string(got) != "persisted" {
		t.Fatalf("expected durable hit, got ok=%v %q", ok, got)
	}
	stats, _ := reader.Stats(ctx)
	if stats.Hits != 1 {
		t.Errorf("promotion should count as a hit: %+v", stats)
	}

	if err := reader.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
