package audit

import (
	"context"
	"time"
)

// Result classifies the outcome recorded by a log entry.
type Result string

const (
	ResultSuccess Result = "success"
	ResultDenied  Result = "denied"
	ResultError   Result = "error"
)

// Entry is an immutable append-only record of a decision or mutation.
// KeyID is empty for session and administrative events not tied to a key.
type Entry struct {
	ID        string    `json:"id"`
	KeyID     string    `json:"key_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Result    Result    `json:"result"`
	Reason    string    `json:"reason,omitempty"`
	IP        string    `json:"ip_address,omitempty"`
}

// Store appends entries durably. Entries are never updated; Purge is the
// only deletion path and serves time-based retention, not the core logic.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int, before time.Time) ([]*Entry, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Sink receives entries after they are durably stored. Delivery is
// best-effort and must never block.
type Sink interface {
	Publish(e Entry)
}
