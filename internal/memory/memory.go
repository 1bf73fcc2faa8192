// Package memory implements the provenance-tagged context store read by the
// kernel before planning. Retrieval ordering is stable by (created_at,
// item_id) so context assembly is reproducible across runs with identical
// store state. The librarian emits no audit events itself; the kernel is
// the single writer of record.
package memory

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMissingProvenance rejects items without a source reference.
	ErrMissingProvenance = errors.New("memory item has no provenance")

	// ErrMissingID rejects items without an item ID.
	ErrMissingID = errors.New("memory item has no id")

	// ErrNegativeLimit rejects retrieval with a negative limit.
	ErrNegativeLimit = errors.New("retrieve limit must be non-negative")
)

// Item is one stored context record. Written by domain programs, read by
// the kernel.
type Item struct {
	ItemID     string            `json:"item_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Provenance string            `json:"provenance"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Validate checks the mandatory fields. Provenance is required: context
// without a source reference cannot be traced and is refused at the door.
func (i Item) Validate() error {
	if i.ItemID == "" {
		return ErrMissingID
	}
	if i.Provenance == "" {
		return ErrMissingProvenance
	}
	return nil
}

// Query selects items by case-insensitive content substring and exact
// metadata matches. A zero Limit means no cap.
type Query struct {
	Text    string
	Filters map[string]string
	Limit   int
}

// Librarian is the context store contract.
type Librarian interface {
	// Store persists the item, returning its ID. Items lacking
	// provenance are rejected.
	Store(ctx context.Context, item Item) (string, error)

	// Retrieve returns matching items ordered by (CreatedAt, ItemID).
	Retrieve(ctx context.Context, q Query) ([]Item, error)
}

// matches reports whether the item satisfies the query's filters.
func matches(item Item, q Query, loweredText string) bool {
	if loweredText != "" && !containsFold(item.Content, loweredText) {
		return false
	}
	for k, v := range q.Filters {
		if item.Metadata[k] != v {
			return false
		}
	}
	return true
}
