package audit

import (
	"context"
	"sync"
	"time"

	"nostrgate.org/internal/ids"
)

// InMemory implements Store for tests and deployments without Postgres.
type InMemory struct {
	mu      sync.RWMutex
	entries []*Entry
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty audit store.
func NewInMemory() *InMemory { return &InMemory{} }

func (s *InMemory) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	cp := *e
	s.mu.Lock()
	s.entries = append(s.entries, &cp)
	s.mu.Unlock()
	return nil
}

func (s *InMemory) List(ctx context.Context, limit int, before time.Time) ([]*Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if before.IsZero() {
		before = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	// Newest first, matching the Postgres implementation.
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].Timestamp.Before(before) {
			cp := *s.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) Purge(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if e.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}
