package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryLog is the non-durable Log used by tests and local development.
// Appends are serialized; reads copy, so callers can never mutate the
// stored records.
type InMemoryLog struct {
	mu       sync.RWMutex
	events   []Event
	byID     map[string]struct{}
	lastSeq  map[string]uint64
	lastHash map[string]string
	mirror   EventWriter
}

// NewInMemoryLog creates an empty in-memory audit log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{
		byID:     make(map[string]struct{}),
		lastSeq:  make(map[string]uint64),
		lastHash: make(map[string]string),
	}
}

// Append implements Log.
func (l *InMemoryLog) Append(_ context.Context, e Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAppend, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.byID[e.EventID]; dup {
		return "", fmt.Errorf("%w: %s", ErrDuplicateEvent, e.EventID)
	}

	e = redacted(e)
	e.Timestamp = e.Timestamp.UTC()
	e.Seq = l.lastSeq[e.CorrelationID] + 1
	if err := seal(&e, l.lastHash[e.CorrelationID]); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAppend, err)
	}

	l.events = append(l.events, e)
	l.byID[e.EventID] = struct{}{}
	l.lastSeq[e.CorrelationID] = e.Seq
	l.lastHash[e.CorrelationID] = e.Hash
	if l.mirror != nil {
		l.mirror.Write(e)
	}
	return e.EventID, nil
}

// SetMirror attaches an async observer that receives each sealed event
// after a successful append. Must be called before the log is shared.
func (l *InMemoryLog) SetMirror(w EventWriter) { l.mirror = w }

// Read implements Log.
func (l *InMemoryLog) Read(_ context.Context, correlationID string) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, e := range l.events {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ExpireBefore implements Retention for the in-memory log.
func (l *InMemoryLog) ExpireBefore(_ context.Context, cutoff time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.events[:0]
	removed := 0
	for _, e := range l.events {
		if e.Timestamp.Before(cutoff) {
			delete(l.byID, e.EventID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.events = kept
	return removed, nil
}

// Len reports the total number of stored events across correlations.
func (l *InMemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
