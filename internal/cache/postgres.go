package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

// PostgresDurable persists cache entries in Postgres, for deployments that
// already run one and want the cache shared across gateway and worker.
type PostgresDurable struct {
	db *sql.DB
}

// NewPostgresDurable opens the database and ensures the cache table exists.
func NewPostgresDurable(dsn string) (*PostgresDurable, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	d := &PostgresDurable{db: db}
	if err := d.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *PostgresDurable) migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT NOT NULL,
			category TEXT NOT NULL,
			payload BYTEA NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (key, category)
		)`)
	if err != nil {
		return fmt.Errorf("failed to migrate cache table: %w", err)
	}
	return nil
}

func (d *PostgresDurable) Get(ctx context.Context, key, category string) (Entry, bool, error) {
	var payload []byte
	var metadataJSON []byte
	var createdAt time.Time

	err := d.db.QueryRowContext(ctx,
		`SELECT payload, metadata, created_at FROM cache_entries WHERE key = $1 AND category = $2`,
		key, category,
	).Scan(&payload, &metadataJSON, &createdAt)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var metadata map[string]string
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil || len(payload) == 0 {
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

func (d *PostgresDurable) Put(ctx context.Context, e Entry) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	if e.Metadata == nil {
		metadataJSON = []byte(`{}`)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, category, payload, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key, category) DO UPDATE
		 SET payload = EXCLUDED.payload, metadata = EXCLUDED.metadata, created_at = EXCLUDED.created_at`,
		e.Key, e.Category, e.Payload, metadataJSON, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (d *PostgresDurable) Delete(ctx context.Context, key, category string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key = $1 AND category = $2`, key, category)
	return err
}

func (d *PostgresDurable) Clear(ctx context.Context, categories ...string) error {
	if len(categories) == 0 {
		_, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries`)
		return err
	}
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE category = ANY($1)`, pq.Array(categories))
	return err
}

func (d *PostgresDurable) CountByCategory(ctx context.Context) (map[string]int64, error) {
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

func (d *PostgresDurable) Close() error {
	return d.db.Close()
}
