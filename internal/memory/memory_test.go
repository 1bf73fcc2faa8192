package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func item(id, content string, created time.Time, meta map[string]string) Item {
	return Item{
		ItemID:     id,
		Content:    content,
		Metadata:   meta,
		Provenance: "test:fixture",
		CreatedAt:  created,
	}
}

func TestInMemoryLibrarian_RejectsMissingProvenance(t *testing.T) {
	l := NewInMemoryLibrarian()
	_, err := l.Store(context.Background(), Item{ItemID: "i1", Content: "x"})
	if !errors.Is(err, ErrMissingProvenance) {
		t.Errorf("got %v, want ErrMissingProvenance", err)
	}
	_, err = l.Store(context.Background(), Item{Content: "x", Provenance: "p"})
	if !errors.Is(err, ErrMissingID) {
		t.Errorf("got %v, want ErrMissingID", err)
	}
}

func TestInMemoryLibrarian_StableOrdering(t *testing.T) {
	l := NewInMemoryLibrarian()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	// Same timestamp for b and a: order falls back to item ID.
	for _, it := range []Item{
		item("i-b", "groceries receipt", base.Add(time.Hour), nil),
		item("i-a", "groceries list", base.Add(time.Hour), nil),
		item("i-c", "groceries budget", base, nil),
	} {
		if _, err := l.Store(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	for run := 0; run < 3; run++ {
		got, err := l.Retrieve(ctx, Query{Text: "groceries"})
		if err != nil {
			t.Fatal(err)
		}
		ids := []string{got[0].ItemID, got[1].ItemID, got[2].ItemID}
		want := []string{"i-c", "i-a", "i-b"}
		for i := range want {
			if ids[i] != want[i] {
				t.Fatalf("run %d: order = %v, want %v", run, ids, want)
			}
		}
	}
}

func TestInMemoryLibrarian_TextMatchCaseInsensitive(t *testing.T) {
	l := NewInMemoryLibrarian()
	ctx := context.Background()
	if _, err := l.Store(ctx, item("i1", "Rent payment to LANDLORD", time.Now(), nil)); err != nil {
		t.Fatal(err)
	}

	got, err := l.Retrieve(ctx, Query{Text: "landlord"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("got %d items, want 1", len(got))
	}

	got, _ = l.Retrieve(ctx, Query{Text: "mortgage"})
	if len(got) != 0 {
		t.Errorf("got %d items for non-matching text, want 0", len(got))
	}
}

func TestInMemoryLibrarian_MetadataFilters(t *testing.T) {
	l := NewInMemoryLibrarian()
	ctx := context.Background()
	now := time.Now()

	if _, err := l.Store(ctx, item("i1", "coffee", now, map[string]string{"type": "transaction", "category": "food"})); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Store(ctx, item("i2", "coffee notes", now, map[string]string{"type": "note"})); err != nil {
		t.Fatal(err)
	}

	got, err := l.Retrieve(ctx, Query{Text: "coffee", Filters: map[string]string{"type": "transaction"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ItemID != "i1" {
		t.Errorf("filters: got %+v, want only i1", got)
	}
}

func TestInMemoryLibrarian_Limit(t *testing.T) {
	l := NewInMemoryLibrarian()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		if _, err := l.Store(ctx, item(fmt.Sprintf("i%02d", i), "entry", base.Add(time.Duration(i)*time.Minute), nil)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := l.Retrieve(ctx, Query{Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d items, want 3", len(got))
	}
	// Limit keeps the earliest items in the stable order.
	if got[0].ItemID != "i00" || got[2].ItemID != "i02" {
		t.Errorf("limited window = %v", []string{got[0].ItemID, got[1].ItemID, got[2].ItemID})
	}

	if _, err := l.Retrieve(ctx, Query{Limit: -1}); !errors.Is(err, ErrNegativeLimit) {
		t.Errorf("got %v, want ErrNegativeLimit", err)
	}
}

func TestInMemoryLibrarian_UpsertReplaces(t *testing.T) {
	l := NewInMemoryLibrarian()
	ctx := context.Background()
	now := time.Now()

	if _, err := l.Store(ctx, item("i1", "draft one", now, nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Store(ctx, item("i1", "draft two", now, nil)); err != nil {
		t.Fatal(err)
	}

	got, _ := l.Retrieve(ctx, Query{})
	if len(got) != 1 || got[0].Content != "draft two" {
		t.Errorf("got %+v, want single replaced item", got)
	}
}
