package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *captureSink) Publish(e Entry) {
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
}

func (c *captureSink) all() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

func TestRecorderStoresAndPublishes(t *testing.T) {
	store := NewInMemory()
	sink := &captureSink{}
	rec := NewRecorder(store, sink, 8)

	rec.Record(Entry{Action: "access.authorize", Result: ResultSuccess, KeyID: "k1"})
	rec.Record(Entry{Action: "access.authorize", Result: ResultDenied, KeyID: "k1", Reason: "key_disabled"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	stored, err := store.List(context.Background(), 10, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d entries, want 2", len(stored))
	}
	for _, e := range stored {
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Fatalf("entry missing id or timestamp: %+v", e)
		}
	}

	published := sink.all()
	if len(published) != 2 {
		t.Fatalf("published %d entries, want 2", len(published))
	}
	// Per-key order: the single writer drains the buffer in order.
	if published[0].Result != ResultSuccess || published[1].Result != ResultDenied {
		t.Fatalf("publish order = %s, %s", published[0].Result, published[1].Result)
	}
}

func TestRecorderNeverBlocks(t *testing.T) {
	store := NewInMemory()
	rec := NewRecorder(store, nil, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10_000; i++ {
			rec.Record(Entry{Action: "access.authorize", Result: ResultSuccess})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked under a full buffer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

type failingStore struct{ Store }

func (failingStore) Append(ctx context.Context, e *Entry) error {
	return errors.New("disk on fire")
}

func TestRecorderSurvivesAppendFailure(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(failingStore{}, sink, 8)

	rec.Record(Entry{Action: "access.authorize", Result: ResultSuccess})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Entries that never became durable are not fanned out.
	if got := sink.all(); len(got) != 0 {
		t.Fatalf("published %d entries after append failure, want 0", len(got))
	}
}

func TestInMemoryListAndPurge(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := store.Append(ctx, &Entry{
			Action:    "access.authorize",
			Result:    ResultSuccess,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.List(ctx, 3, base.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	// Newest first.
	if !got[0].Timestamp.After(got[1].Timestamp) {
		t.Fatalf("list order: %v before %v", got[0].Timestamp, got[1].Timestamp)
	}

	removed, err := store.Purge(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 2 {
		t.Fatalf("purged %d, want 2", removed)
	}
	rest, err := store.List(ctx, 10, base.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("kept %d entries, want 3", len(rest))
	}
}
