package invite

import (
	"context"
	"sort"
	"sync"
	"time"

	"nostrgate.org/internal/access"
	"nostrgate.org/internal/ids"
)

// KeyProvisioner creates the key a successful redemption provisions. The
// access store's KeyStore satisfies it.
type KeyProvisioner interface {
	Create(ctx context.Context, k *access.Key) error
}

// InMemory implements Ledger with a mutex serializing redemptions, which
// makes the check-and-increment indivisible in-process.
type InMemory struct {
	mu      sync.Mutex
	byID    map[string]*Invite
	byToken map[string]*Invite
	keys    KeyProvisioner
	now     func() time.Time
}

var _ Ledger = (*InMemory)(nil)

// NewInMemory creates an empty ledger provisioning keys through keys.
func NewInMemory(keys KeyProvisioner) *InMemory {
	return &InMemory{
		byID:    make(map[string]*Invite),
		byToken: make(map[string]*Invite),
		keys:    keys,
		now:     time.Now,
	}
}

// WithClock overrides the time source (useful for tests).
func (s *InMemory) WithClock(fn func() time.Time) *InMemory {
	if fn != nil {
		s.now = fn
	}
	return s
}

func (s *InMemory) Create(ctx context.Context, params CreateParams) (*Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var token string
	for {
		t, err := NewToken()
		if err != nil {
			return nil, err
		}
		if _, exists := s.byToken[t]; !exists {
			token = t
			break
		}
	}

	inv := &Invite{
		ID:        ids.New(),
		Token:     token,
		ExpiresAt: params.ExpiresAt,
		MaxUses:   params.MaxUses,
		Enabled:   true,
		Comment:   params.Comment,
		CreatedAt: s.now().UTC(),
	}
	s.byID[inv.ID] = inv
	s.byToken[inv.Token] = inv
	cp := *inv
	return &cp, nil
}

func (s *InMemory) Find(ctx context.Context, id string) (*Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *InMemory) List(ctx context.Context) ([]*Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Invite, 0, len(s.byID))
	for _, inv := range s.byID {
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Redeem checks and increments under one lock acquisition. Two concurrent
// redemptions of a max_uses=1 invite yield exactly one success and one
// ErrExhausted.
func (s *InMemory) Redeem(ctx context.Context, token string, key NewKey) (*Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	if !inv.Enabled {
		return nil, ErrDisabled
	}
	if inv.Expired(s.now()) {
		return nil, ErrExpired
	}
	if inv.Exhausted() {
		return nil, ErrExhausted
	}

	provisioned := &access.Key{
		Npub:        key.Npub,
		Nip05:       key.Nip05,
		ProfileName: key.ProfileName,
		Status:      true,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.keys.Create(ctx, provisioned); err != nil {
		// Provisioning failed: the use is not consumed.
		return nil, err
	}

	inv.Uses++
	cp := *inv
	return &Redemption{Invite: &cp, Key: provisioned}, nil
}

func (s *InMemory) SetEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	inv.Enabled = enabled
	return nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byToken, inv.Token)
	delete(s.byID, id)
	return nil
}
