// Package nip05 resolves NIP-05 identifiers (name@domain) against the
// domain's /.well-known/nostr.json document. The gate uses it only to
// verify the identifier a key was created with; resolution failures never
// block key creation.
package nip05

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrMalformed   = errors.New("nip05: malformed identifier")
	ErrNotFound    = errors.New("nip05: name not listed")
	ErrUnreachable = errors.New("nip05: lookup failed")
)

// Resolver performs well-known lookups with a bounded timeout.
type Resolver struct {
	client *http.Client
}

// NewResolver constructs a Resolver. timeout bounds the whole lookup.
func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{client: &http.Client{Timeout: timeout}}
}

type wellKnown struct {
	Names map[string]string `json:"names"`
}

// Resolve returns the hex public key the domain publishes for the name.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	name, domain, err := split(identifier)
	if err != nil {
		return "", err
	}

	u := url.URL{
		Scheme:   "https",
		Host:     domain,
		Path:     "/.well-known/nostr.json",
		RawQuery: "name=" + url.QueryEscape(name),
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	var doc wellKnown
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	pubkey, ok := doc.Names[name]
	if !ok || pubkey == "" {
		return "", ErrNotFound
	}
	return pubkey, nil
}

func split(identifier string) (name, domain string, err error) {
	parts := strings.Split(strings.TrimSpace(identifier), "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrMalformed
	}
	return parts[0], parts[1], nil
}
