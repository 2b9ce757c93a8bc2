package audit

import (
	"context"
	"time"

	"nostrgate.org/internal/ids"
	"nostrgate.org/internal/obs"
)

const defaultBuffer = 256

// Recorder accepts entries without blocking the decision that produced
// them. A single writer goroutine drains the buffer, which preserves
// chronological order for any one key; once an entry is durably stored it
// is fanned out to the live sink best-effort.
//
// A full buffer drops the entry and increments a counter: loss is
// observable to operators but never stalls an authorization.
type Recorder struct {
	store Store
	sink  Sink
	ch    chan Entry
	done  chan struct{}
}

// NewRecorder starts the writer goroutine. sink may be nil.
func NewRecorder(store Store, sink Sink, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	r := &Recorder{
		store: store,
		sink:  sink,
		ch:    make(chan Entry, buffer),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an entry. It never blocks and never returns an error.
func (r *Recorder) Record(e Entry) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case r.ch <- e:
	default:
		obs.CountAuditDrop()
	}
}

// Close stops accepting entries and drains the buffer. Safe to call once.
func (r *Recorder) Close(ctx context.Context) error {
	close(r.ch)
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		// Bounded timeout so a wedged store cannot pin the worker forever.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.store.Append(ctx, &e)
		cancel()
		if err != nil {
			obs.CountAuditAppendFailure()
			obs.LogRequest(map[string]any{
				"ts":    time.Now().UTC().Format(time.RFC3339Nano),
				"level": "error",
				"msg":   "audit append failed",
				"error": err.Error(),
			})
			continue
		}
		if r.sink != nil {
			r.sink.Publish(e)
		}
	}
}
