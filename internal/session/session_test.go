package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "correct horse battery staple"
)

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(testSecret, testPassword, opts...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerRequiresSecretAndPassword(t *testing.T) {
	if _, err := NewManager("", testPassword); err == nil {
		t.Fatal("empty secret must be rejected")
	}
	if _, err := NewManager(testSecret, ""); err == nil {
		t.Fatal("empty password must be rejected")
	}
}

func TestLoginIssuesValidToken(t *testing.T) {
	m := newManager(t)

	token, expiresAt, err := m.Login(testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" || !expiresAt.After(time.Now()) {
		t.Fatalf("token=%q expiresAt=%v", token, expiresAt)
	}

	subject, err := m.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if subject != AdminSubject {
		t.Fatalf("subject = %q, want %q", subject, AdminSubject)
	}
}

func TestLoginBadPassword(t *testing.T) {
	m := newManager(t)
	if _, _, err := m.Login("wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("got %v, want ErrBadCredentials", err)
	}
}

func TestLoginBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(testSecret, string(hash))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Login(testPassword); err != nil {
		t.Fatalf("login against bcrypt hash: %v", err)
	}
	if _, _, err := m.Login("wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("got %v, want ErrBadCredentials", err)
	}
}

func TestValidateExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := issued
	m := newManager(t, WithClock(func() time.Time { return clock }))

	token, _, err := m.Issue(AdminSubject)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock = issued.Add(23*time.Hour + 59*time.Minute)
	if _, err := m.Validate(token); err != nil {
		t.Fatalf("valid just inside TTL: %v", err)
	}

	clock = issued.Add(24*time.Hour + time.Minute)
	if _, err := m.Validate(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("past TTL: got %v, want ErrTokenExpired", err)
	}
}

func TestRevalidateSlidesWindow(t *testing.T) {
	issued := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := issued
	m := newManager(t, WithClock(func() time.Time { return clock }))

	original, originalExpiry, err := m.Issue(AdminSubject)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock = issued.Add(12 * time.Hour)
	fresh, subject, freshExpiry, err := m.Revalidate(original)
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if subject != AdminSubject {
		t.Fatalf("subject = %q, want %q", subject, AdminSubject)
	}
	if !freshExpiry.After(originalExpiry) {
		t.Fatalf("fresh expiry %v must extend past original %v", freshExpiry, originalExpiry)
	}

	// The original token keeps its own expiry: revoked by time, not by
	// the revalidation.
	clock = issued.Add(25 * time.Hour)
	if _, err := m.Validate(original); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("original token: got %v, want ErrTokenExpired", err)
	}
	if _, err := m.Validate(fresh); err != nil {
		t.Fatalf("fresh token must still be valid: %v", err)
	}

	// A gap longer than TTL ends the session.
	clock = issued.Add(12*time.Hour).Add(24*time.Hour + time.Minute)
	if _, _, _, err := m.Revalidate(fresh); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("idle past TTL: got %v, want ErrTokenExpired", err)
	}
}

func TestValidateTamperedToken(t *testing.T) {
	m := newManager(t)
	token, _, err := m.Issue(AdminSubject)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := m.Validate(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered signature: got %v, want ErrInvalidToken", err)
	}

	if _, err := m.Validate("not a token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: got %v, want ErrInvalidToken", err)
	}
	if _, err := m.Validate(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty: got %v, want ErrInvalidToken", err)
	}
}

func TestValidateForeignIssuer(t *testing.T) {
	other, err := NewManager("another-secret-another-secret!!", testPassword)
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := other.Issue(AdminSubject)
	if err != nil {
		t.Fatal(err)
	}

	m := newManager(t)
	if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token signed with another secret: got %v, want ErrInvalidToken", err)
	}
}

func TestWithTTL(t *testing.T) {
	issued := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := issued
	m := newManager(t, WithTTL(time.Hour), WithClock(func() time.Time { return clock }))

	token, expiresAt, err := m.Issue(AdminSubject)
	if err != nil {
		t.Fatal(err)
	}
	if got := expiresAt.Sub(issued); got != time.Hour {
		t.Fatalf("ttl = %v, want 1h", got)
	}
	clock = issued.Add(2 * time.Hour)
	if _, err := m.Validate(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}
