package access

import (
	"context"
	"errors"
	"time"

	"nostrgate.org/internal/audit"
	"nostrgate.org/internal/obs"
)

// Recorder is the slice of the audit recorder the engine needs.
type Recorder interface {
	Record(e audit.Entry)
}

// Engine loads a consistent snapshot of a key and its references, runs the
// pure Authorize function against the gate's local time, and emits exactly
// one audit entry per call regardless of outcome.
type Engine struct {
	store    Store
	recorder Recorder
	now      func() time.Time
	loc      *time.Location
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// WithLocation sets the time zone in which day and time-of-day windows are
// interpreted. Defaults to UTC.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewEngine constructs an Engine. recorder may be nil (decisions are then
// unaudited, which only tests should do).
func NewEngine(store Store, recorder Recorder, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		recorder: recorder,
		now:      time.Now,
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// snapshotLookup adapts loaded rows to the pure Lookup interface.
type snapshotLookup struct {
	policies map[string]*Policy
	groups   map[string]*Group
}

func (s snapshotLookup) PolicyByID(id string) (*Policy, bool) {
	p, ok := s.policies[id]
	return p, ok
}

func (s snapshotLookup) GroupByID(id string) (*Group, bool) {
	g, ok := s.groups[id]
	return g, ok
}

// AuthorizeKey authorizes the key with the given id. origin is the caller's
// network origin, recorded in the audit trail. A storage failure is
// returned as an error, never disguised as a denial; the failed attempt is
// still audited with result=error.
func (e *Engine) AuthorizeKey(ctx context.Context, keyID, origin string) (Decision, error) {
	now := e.now().In(e.loc)

	key, err := e.store.Keys(ctx).Find(ctx, keyID)
	if err != nil {
		e.record(audit.Entry{
			KeyID:  keyID,
			Action: "access.authorize",
			Result: audit.ResultError,
			Reason: err.Error(),
			IP:     origin,
		})
		return Decision{}, err
	}

	lookup, err := e.loadReferences(ctx, key)
	if err != nil {
		e.record(audit.Entry{
			KeyID:  key.ID,
			Action: "access.authorize",
			Result: audit.ResultError,
			Reason: err.Error(),
			IP:     origin,
		})
		return Decision{}, err
	}

	decision := Authorize(key, lookup, now)

	result := audit.ResultDenied
	if decision.Allowed {
		result = audit.ResultSuccess
	}
	obs.CountDecision(string(result), string(decision.Reason))
	e.record(audit.Entry{
		KeyID:  key.ID,
		Action: "access.authorize",
		Result: result,
		Reason: string(decision.Reason),
		IP:     origin,
	})
	return decision, nil
}

// AuthorizeNpub resolves the key by its public identifier first; the gate's
// door-side callers know the npub, not the row id.
func (e *Engine) AuthorizeNpub(ctx context.Context, npub, origin string) (Decision, error) {
	key, err := e.store.Keys(ctx).FindByNpub(ctx, npub)
	if err != nil {
		e.record(audit.Entry{
			Action: "access.authorize",
			Result: audit.ResultError,
			Reason: err.Error(),
			IP:     origin,
		})
		return Decision{}, err
	}
	return e.AuthorizeKey(ctx, key.ID, origin)
}

func (e *Engine) loadReferences(ctx context.Context, key *Key) (Lookup, error) {
	lookup := snapshotLookup{
		policies: make(map[string]*Policy, 2),
		groups:   make(map[string]*Group, 1),
	}
	if key.GroupID != "" {
		group, err := e.store.Groups(ctx).Find(ctx, key.GroupID)
		switch {
		case err == nil:
			lookup.groups[group.ID] = group
		case errors.Is(err, ErrNotFound):
			// Dangling reference behaves like no group.
		default:
			return nil, err
		}
	}
	for _, id := range policyRefs(key, lookup.groups) {
		policy, err := e.store.Policies(ctx).Find(ctx, id)
		switch {
		case err == nil:
			lookup.policies[policy.ID] = policy
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}
	}
	return lookup, nil
}

func policyRefs(key *Key, groups map[string]*Group) []string {
	var refs []string
	if key.PolicyID != "" {
		refs = append(refs, key.PolicyID)
	}
	if g, ok := groups[key.GroupID]; ok && g.PolicyID != "" && g.PolicyID != key.PolicyID {
		refs = append(refs, g.PolicyID)
	}
	return refs
}

func (e *Engine) record(entry audit.Entry) {
	if e.recorder != nil {
		e.recorder.Record(entry)
	}
}
