package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestDurable(t *testing.T) *SQLiteDurable {
	t.Helper()
	d, err := NewSQLiteDurable(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open sqlite durable: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSQLiteDurableRoundTrip(t *testing.T) {
	d := newTestDurable(t)
	ctx := context.Background()

	_, found, err := d.Get(ctx, "missing", "general")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("empty database should report not found")
	}

	entry := Entry{
		Key:       "k1",
		Category:  "analysis",
		Payload:   []byte(`{"text":"answer"}`),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Metadata:  map[string]string{"strategy": "best_of"},
	}
	if err := d.Put(ctx, entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := d.Get(ctx, "k1", "analysis")
	if err != nil || !found {
		t.Fatalf("expected entry back, found=%v err=%v", found, err)
	}
	if string(got.Payload) != string(entry.Payload) {
		t.Errorf("payload mismatch: %q", got.Payload)
	}
	if got.Metadata["strategy"] != "best_of" {
		t.Errorf("metadata mismatch: %+v", got.Metadata)
	}
}

func TestSQLiteDurablePutReplacesExisting(t *testing.T) {
	d := newTestDurable(t)
	ctx := context.Background()

	first := Entry{Key: "k", Category: "general", Payload: []byte("old"), CreatedAt: time.Now().UTC()}
	if err := d.Put(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := first
	second.Payload = []byte("new")
	if err := d.Put(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, found, err := d.Get(ctx, "k", "general")
	if err != nil || !found {
		t.Fatalf("expected entry, found=%v err=%v", found, err)
	}
	if string(got.Payload) != "new" {
		t.Errorf("last write should win, got %q", got.Payload)
	}

	counts, err := d.CountByCategory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["general"] != 1 {
		t.Errorf("replace must not duplicate rows: %+v", counts)
	}
}

func TestSQLiteDurableDropsCorruptedRows(t *testing.T) {
	d := newTestDurable(t)
	ctx := context.Background()

	// Write a row whose metadata is not valid JSON, bypassing Put.
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, category, payload, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		"bad", "general", []byte("payload"), "{not json", time.Now().UTC())
	if err != nil {
		t.Fatalf("seed corrupted row: %v", err)
	}

	_, found, err := d.Get(ctx, "bad", "general")
	if err != nil {
		t.Fatalf("corrupted row must not surface an error: %v", err)
	}
	if found {
		t.Error("corrupted row should be treated as absent")
	}

	counts, err := d.CountByCategory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["general"] != 0 {
		t.Errorf("corrupted row should have been deleted: %+v", counts)
	}
}

func TestSQLiteDurableClear(t *testing.T) {
	d := newTestDurable(t)
	ctx := context.Background()

	for _, e := range []Entry{
		{Key: "a", Category: "analysis", Payload: []byte("1"), CreatedAt: time.Now().UTC()},
		{Key: "b", Category: "analysis", Payload: []byte("2"), CreatedAt: time.Now().UTC()},
		{Key: "c", Category: "search", Payload: []byte("3"), CreatedAt: time.Now().UTC()},
	} {
		if err := d.Put(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	if err := d.Clear(ctx, "analysis"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	counts, err := d.CountByCategory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["analysis"] != 0 || counts["search"] != 1 {
		t.Errorf("unexpected counts after targeted clear: %+v", counts)
	}

	if err := d.Clear(ctx); err != nil {
		t.Fatalf("Clear all failed: %v", err)
	}
	counts, _ = d.CountByCategory(ctx)
	if len(counts) != 0 {
		t.Errorf("expected empty table, got %+v", counts)
	}
}
