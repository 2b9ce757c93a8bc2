package invite

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"nostrgate.org/internal/access"
)

// Invite is a single- or multi-use token that provisions a new key.
// MaxUses == 0 means unbounded.
type Invite struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxUses   int       `json:"max_uses"`
	Uses      int       `json:"uses"`
	Enabled   bool      `json:"enabled"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Exhausted reports whether the invite has no redemptions left.
func (i *Invite) Exhausted() bool {
	return i.MaxUses > 0 && i.Uses >= i.MaxUses
}

// Expired reports whether the invite's deadline has passed.
func (i *Invite) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// CreateParams are the caller-supplied fields of a new invite.
type CreateParams struct {
	ExpiresAt time.Time
	MaxUses   int
	Comment   string
}

// NewKey carries the identity the redeemer wants provisioned.
type NewKey struct {
	Npub        string
	Nip05       string
	ProfileName string
}

// Redemption is the outcome of a successful redeem: the invite with its
// incremented counter and the freshly provisioned key.
type Redemption struct {
	Invite *Invite     `json:"invite"`
	Key    *access.Key `json:"key"`
}

// Client-facing denial reasons, distinct from storage failures which
// propagate as ordinary errors and must never be conflated with these.
var (
	ErrNotFound  = errors.New("invite: not found")
	ErrDisabled  = errors.New("invite: disabled")
	ErrExpired   = errors.New("invite: expired")
	ErrExhausted = errors.New("invite: exhausted")
)

// Ledger manages invite lifecycle. Redeem is atomic: the check of
// enabled/expiry/uses and the increment happen in one indivisible step per
// token, so concurrent redemptions can never push Uses past MaxUses.
type Ledger interface {
	Create(ctx context.Context, params CreateParams) (*Invite, error)
	Find(ctx context.Context, id string) (*Invite, error)
	List(ctx context.Context) ([]*Invite, error)
	Redeem(ctx context.Context, token string, key NewKey) (*Redemption, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
}

const tokenBytes = 32 // 256 bits of entropy

// NewToken mints an unguessable invite token. Uniqueness is by
// construction; the ledger retries on the astronomically unlikely
// collision.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
