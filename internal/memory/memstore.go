package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryLibrarian is the non-durable Librarian for tests and local runs.
// Writes to the same item ID are serialized by the mutex; reads are
// concurrent.
type InMemoryLibrarian struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewInMemoryLibrarian creates an empty in-memory store.
func NewInMemoryLibrarian() *InMemoryLibrarian {
	return &InMemoryLibrarian{items: make(map[string]Item)}
}

// Store implements Librarian.
func (l *InMemoryLibrarian) Store(_ context.Context, item Item) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[item.ItemID] = item
	return item.ItemID, nil
}

// Retrieve implements Librarian.
func (l *InMemoryLibrarian) Retrieve(_ context.Context, q Query) ([]Item, error) {
	if q.Limit < 0 {
		return nil, ErrNegativeLimit
	}

	lowered := strings.ToLower(q.Text)

	l.mu.RLock()
	matched := make([]Item, 0, len(l.items))
	for _, item := range l.items {
		if matches(item, q, lowered) {
			matched = append(matched, item)
		}
	}
	l.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ItemID < matched[j].ItemID
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func containsFold(haystack, loweredNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), loweredNeedle)
}
