package stream

import (
	"context"
	"sync"

	"nostrgate.org/internal/audit"
)

// Stream fans audit entries out to all active subscribers (SSE clients
// watching the live log feed).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan audit.Entry
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan audit.Entry)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// entries. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan audit.Entry {
	ch := make(chan audit.Entry, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fans the entry out to all subscribers.
func (s *Stream) Publish(e audit.Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Drop when a subscriber is slow to avoid blocking.
		}
	}
}
