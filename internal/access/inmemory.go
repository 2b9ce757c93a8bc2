package access

import (
	"context"
	"sort"
	"sync"
	"time"

	"nostrgate.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. It backs
// tests and single-node deployments without Postgres.
type InMemory struct {
	mu       sync.RWMutex
	keys     map[string]*Key
	policies map[string]*Policy
	groups   map[string]*Group
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		keys:     make(map[string]*Key),
		policies: make(map[string]*Policy),
		groups:   make(map[string]*Group),
	}
}

func (s *InMemory) Keys(ctx context.Context) KeyStore        { return (*memKeys)(s) }
func (s *InMemory) Policies(ctx context.Context) PolicyStore { return (*memPolicies)(s) }
func (s *InMemory) Groups(ctx context.Context) GroupStore    { return (*memGroups)(s) }

// Key store --------------------------------------------------------------

type memKeys InMemory

func (s *memKeys) Create(ctx context.Context, k *Key) error {
	if err := ValidateNpub(k.Npub); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.keys {
		if existing.Npub == k.Npub {
			return ErrAlreadyExists
		}
	}
	if k.ID == "" {
		k.ID = ids.New()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	cp := *k
	s.keys[k.ID] = &cp
	return nil
}

func (s *memKeys) Find(ctx context.Context, id string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *memKeys) FindByNpub(ctx context.Context, npub string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.Npub == npub {
			cp := *k
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memKeys) List(ctx context.Context) ([]*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Key, 0, len(s.keys))
	for _, k := range s.keys {
		cp := *k
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memKeys) Update(ctx context.Context, k *Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k.ID]; !ok {
		return ErrNotFound
	}
	cp := *k
	s.keys[k.ID] = &cp
	return nil
}

func (s *memKeys) Toggle(ctx context.Context, id string) (*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, ErrNotFound
	}
	k.Status = !k.Status
	cp := *k
	return &cp, nil
}

func (s *memKeys) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		return ErrNotFound
	}
	delete(s.keys, id)
	return nil
}

// Policy store -----------------------------------------------------------

type memPolicies InMemory

func (s *memPolicies) Create(ctx context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	s.policies[p.ID] = &cp
	return nil
}

func (s *memPolicies) Find(ctx context.Context, id string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memPolicies) List(ctx context.Context) ([]*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Policy, 0, len(s.policies))
	for _, p := range s.policies {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memPolicies) Update(ctx context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	s.policies[p.ID] = &cp
	return nil
}

// Delete cascade-nulls references from keys and groups, matching the
// `on delete set null` foreign keys in the Postgres schema.
func (s *memPolicies) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return ErrNotFound
	}
	delete(s.policies, id)
	for _, k := range s.keys {
		if k.PolicyID == id {
			k.PolicyID = ""
		}
	}
	for _, g := range s.groups {
		if g.PolicyID == id {
			g.PolicyID = ""
		}
	}
	return nil
}

// Group store ------------------------------------------------------------

type memGroups InMemory

func (s *memGroups) Create(ctx context.Context, g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = ids.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *memGroups) Find(ctx context.Context, id string) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *memGroups) List(ctx context.Context) ([]*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memGroups) Update(ctx context.Context, g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		return ErrNotFound
	}
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *memGroups) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return ErrNotFound
	}
	delete(s.groups, id)
	for _, k := range s.keys {
		if k.GroupID == id {
			k.GroupID = ""
		}
	}
	return nil
}

func (s *memGroups) Members(ctx context.Context, groupID string) ([]*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.groups[groupID]; !ok {
		return nil, ErrNotFound
	}
	var out []*Key
	for _, k := range s.keys {
		if k.GroupID == groupID {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
