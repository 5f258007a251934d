package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT NOT NULL,
	category TEXT NOT NULL,
	payload BLOB NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	PRIMARY KEY (key, category)
);
`

// SQLiteDurable persists cache entries in a local SQLite file, for single
// node deployments that want the cache to survive restarts without a
// network dependency.
type SQLiteDurable struct {
	db *sql.DB
}

// NewSQLiteDurable opens (and migrates) the database at path.
func NewSQLiteDurable(path string) (*SQLiteDurable, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &SQLiteDurable{db: db}, nil
}

func (d *SQLiteDurable) Get(ctx context.Context, key, category string) (Entry, bool, error) {
	var payload []byte
	var metadataJSON string
	var createdAt time.Time

	err := d.db.QueryRowContext(ctx,
		`SELECT payload, metadata, created_at FROM cache_entries WHERE key = ? AND category = ?`,
		key, category,
	).Scan(&payload, &metadataJSON, &createdAt)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var metadata map[string]string
	if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil || len(payload) == 0 {
		// Corrupted row: drop it and treat as absent.
		_ = d.Delete(ctx, key, category)
		return Entry{}, false, nil
	}

	return Entry{
		Key:       key,
		Category:  category,
		Payload:   payload,
		CreatedAt: createdAt,
		Metadata:  metadata,
	}, true, nil
}

func (d *SQLiteDurable) Put(ctx context.Context, e Entry) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	if e.Metadata == nil {
		metadataJSON = []byte(`{}`)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, category, payload, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.Key, e.Category, e.Payload, string(metadataJSON), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (d *SQLiteDurable) Delete(ctx context.Context, key, category string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key = ? AND category = ?`, key, category)
	return err
}

func (d *SQLiteDurable) Clear(ctx context.Context, categories ...string) error {
	if len(categories) == 0 {
		_, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries`)
		return err
	}
	for _, c := range categories {
		if _, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE category = ?`, c); err != nil {
			return fmt.Errorf("cache clear: %w", err)
		}
	}
	return nil
}

func (d *SQLiteDurable) CountByCategory(ctx context.Context) (map[string]int64, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM cache_entries GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var category string
		var n int64
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[category] = n
	}
	return counts, rows.Err()
}

func (d *SQLiteDurable) Close() error {
	return d.db.Close()
}
