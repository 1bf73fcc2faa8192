package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
)

// PostgresLibrarian is the shared-deployment Librarian backed by Postgres.
// The schema is created out of band (see migrations in the deploy repo);
// EnsureSchema exists for development convenience.
type PostgresLibrarian struct {
	db *sql.DB
}

// NewPostgresLibrarian wraps an existing connection pool.
func NewPostgresLibrarian(db *sql.DB) *PostgresLibrarian {
	return &PostgresLibrarian{db: db}
}

// OpenPostgresLibrarian opens a pool against dsn and verifies connectivity.
func OpenPostgresLibrarian(ctx context.Context, dsn string) (*PostgresLibrarian, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresLibrarian{db: db}, nil
}

// Close releases the pool.
func (l *PostgresLibrarian) Close() error { return l.db.Close() }

// EnsureSchema creates the memory_items table if missing.
func (l *PostgresLibrarian) EnsureSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memory_items (
			item_id    TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
			provenance TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure memory schema: %w", err)
	}
	return nil
}

// Store implements Librarian.
func (l *PostgresLibrarian) Store(ctx context.Context, item Item) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO memory_items (item_id, content, metadata, provenance, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			provenance = EXCLUDED.provenance`,
		item.ItemID, item.Content, meta, item.Provenance, item.CreatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("store memory item: %w", err)
	}
	return item.ItemID, nil
}

// Retrieve implements Librarian.
func (l *PostgresLibrarian) Retrieve(ctx context.Context, q Query) ([]Item, error) {
	if q.Limit < 0 {
		return nil, ErrNegativeLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if q.Text == "" {
		rows, err = l.db.QueryContext(ctx, `
			SELECT item_id, content, metadata, provenance, created_at
			FROM memory_items ORDER BY created_at, item_id`)
	} else {
		rows, err = l.db.QueryContext(ctx, `
			SELECT item_id, content, metadata, provenance, created_at
			FROM memory_items
			WHERE content ILIKE $1 ESCAPE '\'
			ORDER BY created_at, item_id`,
			"%"+escapeLike(strings.ToLower(q.Text))+"%")
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve memory items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var item Item
		var meta []byte
		if err := rows.Scan(&item.ItemID, &item.Content, &meta, &item.Provenance, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory item: %w", err)
		}
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &item.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		if !matchesFilters(item, q.Filters) {
			continue
		}
		out = append(out, item)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, rows.Err()
}
