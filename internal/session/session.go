package session

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer     = "nostrgate"
	defaultTTL = 24 * time.Hour

	// AdminSubject is the single administrative identity: the gate is
	// single-tenant behind one shared password.
	AdminSubject = "admin"
)

var (
	// ErrInvalidToken covers signature failure and malformed tokens alike;
	// callers cannot tell which check failed.
	ErrInvalidToken = errors.New("session: invalid token")
	// ErrTokenExpired marks a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("session: token expired")
	// ErrBadCredentials is returned on a failed password check.
	ErrBadCredentials = errors.New("session: bad credentials")
)

// Manager issues, validates and revalidates signed session tokens. It is
// stateless: validity is determined by the HS256 signature and the embedded
// expiry, never by a lookup table, so validation has no shared-state
// contention. The shared admin password is fixed at construction.
type Manager struct {
	secret   []byte
	password string // bcrypt hash or plaintext
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the default 24h token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager. password may be a bcrypt hash
// (recommended) or a plaintext value compared in constant time.
func NewManager(secret, password string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session: secret is required")
	}
	if password == "" {
		return nil, errors.New("session: admin password is required")
	}
	m := &Manager{
		secret:   []byte(secret),
		password: password,
		ttl:      defaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Login verifies the shared password and issues a fresh token.
func (m *Manager) Login(password string) (string, time.Time, error) {
	if !m.checkPassword(password) {
		return "", time.Time{}, ErrBadCredentials
	}
	return m.Issue(AdminSubject)
}

func (m *Manager) checkPassword(password string) bool {
	if strings.HasPrefix(m.password, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(m.password), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(m.password), []byte(password)) == 1
}

// Issue signs a token for the subject, valid for the configured TTL.
func (m *Manager) Issue(subject string) (string, time.Time, error) {
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies the token signature and expiry and returns the subject.
func (m *Manager) Validate(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Revalidate implements the sliding window: a still-valid token is
// exchanged for a fresh one expiring TTL from now, carrying the same
// subject. The presented token is not revoked and keeps its original
// expiry, so continuous activity never logs the user out while any gap
// longer than TTL forces re-authentication.
func (m *Manager) Revalidate(token string) (fresh, subject string, expiresAt time.Time, err error) {
	subject, err = m.Validate(token)
	if err != nil {
		return "", "", time.Time{}, err
	}
	fresh, expiresAt, err = m.Issue(subject)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return fresh, subject, expiresAt, nil
}
