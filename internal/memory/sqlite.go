package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register the sqlite driver
)

// createdAtLayout is fixed width so the lexicographic ORDER BY on the text
// column matches chronological order; RFC3339Nano drops trailing fractional
// zeros and breaks that property.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

const memoryDDL = `
CREATE TABLE IF NOT EXISTS memory_items (
	item_id    TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	provenance TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_created ON memory_items(created_at, item_id);
`

// SQLiteLibrarian is the durable Librarian backed by embedded SQLite.
type SQLiteLibrarian struct {
	db *sql.DB
}

// OpenSQLiteLibrarian opens (creating if needed) the memory database.
func OpenSQLiteLibrarian(path string) (*SQLiteLibrarian, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	if _, err := db.Exec(memoryDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory db: %w", err)
	}
	return &SQLiteLibrarian{db: db}, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLibrarian) Close() error { return l.db.Close() }

// Store implements Librarian. Writes to the same item ID serialize on the
// row; last write wins.
func (l *SQLiteLibrarian) Store(ctx context.Context, item Item) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO memory_items (item_id, content, metadata, provenance, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			provenance = excluded.provenance`,
		item.ItemID, item.Content, string(meta), item.Provenance,
		item.CreatedAt.UTC().Format(createdAtLayout),
	)
	if err != nil {
		return "", fmt.Errorf("store memory item: %w", err)
	}
	return item.ItemID, nil
}

// Retrieve implements Librarian. The content match runs in SQL with LIKE
// metacharacters escaped so literal '%' and '_' are not wildcards;
// metadata filters apply after scan.
func (l *SQLiteLibrarian) Retrieve(ctx context.Context, q Query) ([]Item, error) {
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
			WHERE lower(content) LIKE ? ESCAPE '\'
			ORDER BY created_at, item_id`,
			"%"+escapeLike(strings.ToLower(q.Text))+"%")
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve memory items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var meta, created string
	if err := row.Scan(&item.ItemID, &item.Content, &meta, &item.Provenance, &created); err != nil {
		return Item{}, fmt.Errorf("scan memory item: %w", err)
	}
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &item.Metadata); err != nil {
			return Item{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Item{}, fmt.Errorf("parse created_at: %w", err)
	}
	item.CreatedAt = ts
	return item, nil
}

func matchesFilters(item Item, filters map[string]string) bool {
	for k, v := range filters {
		if item.Metadata[k] != v {
			return false
		}
	}
	return true
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
