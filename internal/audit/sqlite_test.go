package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestLog(t *testing.T) *SQLiteLog {
	t.Helper()
	log, err := OpenSQLiteLog(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open sqlite log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestSQLiteLog_AppendAndRead(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		e := testEvent(fmt.Sprintf("e%d", i), "c1")
		e.Rationale = fmt.Sprintf("step %d", i)
		if _, err := log.Append(ctx, e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	events, err := log.Read(ctx, "c1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d: seq = %d", i, e.Seq)
		}
		if e.Rationale != fmt.Sprintf("step %d", i+1) {
			t.Errorf("event %d out of order: %q", i, e.Rationale)
		}
	}
	if err := VerifyChain(events); err != nil {
		t.Errorf("chain should verify after round-trip: %v", err)
	}
}

func TestSQLiteLog_DuplicateEventID(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	if _, err := log.Append(ctx, testEvent("e1", "c1")); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Append(ctx, testEvent("e1", "c2")); !errors.Is(err, ErrDuplicateEvent) {
		t.Errorf("got %v, want ErrDuplicateEvent", err)
	}
}

func TestSQLiteLog_RedactsBeforeStore(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	e := testEvent("e1", "c1")
	e.InputsSummary = "pay with api_key=sk-abcDEF1234567890"
	if _, err := log.Append(ctx, e); err != nil {
		t.Fatal(err)
	}
	events, _ := log.Read(ctx, "c1")
	if strings.Contains(events[0].InputsSummary, "sk-abc") {
		t.Errorf("key stored unredacted: %q", events[0].InputsSummary)
	}
}

func TestSQLiteLog_ExpireBefore(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	old := testEvent("e1", "c1")
	old.Timestamp = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := testEvent("e2", "c1")
	recent.Timestamp = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := log.Append(ctx, old); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Append(ctx, recent); err != nil {
		t.Fatal(err)
	}

	removed, err := log.ExpireBefore(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	events, _ := log.Read(ctx, "c1")
	if len(events) != 1 || events[0].EventID != "e2" {
		t.Errorf("surviving events = %+v, want only e2", events)
	}
}

func TestSQLiteLog_ExpireBeforeFractionalBoundary(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	whole := testEvent("e1", "c1")
	whole.Timestamp = base
	frac := testEvent("e2", "c1")
	frac.Timestamp = base.Add(500 * time.Millisecond)
	if _, err := log.Append(ctx, whole); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Append(ctx, frac); err != nil {
		t.Fatal(err)
	}

	// Sub-second cutoff between the two events: exactly the whole-second
	// event is older than it.
	removed, err := log.ExpireBefore(ctx, base.Add(250*time.Millisecond))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	events, _ := log.Read(ctx, "c1")
	if len(events) != 1 || events[0].EventID != "e2" {
		t.Errorf("surviving events = %+v, want only e2", events)
	}
}

func TestSQLiteLog_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	log, err := OpenSQLiteLog(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := log.Append(ctx, testEvent("e1", "c1")); err != nil {
		t.Fatal(err)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenSQLiteLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	events, err := reopened.Read(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events after reopen, want 1", len(events))
	}
	if _, err := reopened.Append(ctx, testEvent("e2", "c1")); err != nil {
		t.Fatal(err)
	}
	events, _ = reopened.Read(ctx, "c1")
	if err := VerifyChain(events); err != nil {
		t.Errorf("chain should continue across reopen: %v", err)
	}
}
