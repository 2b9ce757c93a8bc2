package access

import "context"

// Store describes persistence operations for the access-control entities.
type Store interface {
	Keys(ctx context.Context) KeyStore
	Policies(ctx context.Context) PolicyStore
	Groups(ctx context.Context) GroupStore
}

// KeyStore manages keys.
type KeyStore interface {
	Create(ctx context.Context, k *Key) error
	Find(ctx context.Context, id string) (*Key, error)
	FindByNpub(ctx context.Context, npub string) (*Key, error)
	List(ctx context.Context) ([]*Key, error)
	Update(ctx context.Context, k *Key) error
	Toggle(ctx context.Context, id string) (*Key, error)
	Delete(ctx context.Context, id string) error
}

// PolicyStore manages policies. Delete must null out references from keys
// and groups rather than failing or orphaning them.
type PolicyStore interface {
	Create(ctx context.Context, p *Policy) error
	Find(ctx context.Context, id string) (*Policy, error)
	List(ctx context.Context) ([]*Policy, error)
	Update(ctx context.Context, p *Policy) error
	Delete(ctx context.Context, id string) error
}

// GroupStore manages groups and membership. Delete nulls out key references.
type GroupStore interface {
	Create(ctx context.Context, g *Group) error
	Find(ctx context.Context, id string) (*Group, error)
	List(ctx context.Context) ([]*Group, error)
	Update(ctx context.Context, g *Group) error
	Delete(ctx context.Context, id string) error
	Members(ctx context.Context, groupID string) ([]*Key, error)
}
