package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nostrgate.org/internal/access"
	"nostrgate.org/internal/audit"
	"nostrgate.org/internal/ids"
	"nostrgate.org/internal/obs"
)

type keyRequest struct {
	Npub        string     `json:"npub"`
	Nip05       string     `json:"nip05"`
	ProfileName string     `json:"profile_name"`
	Status      *bool      `json:"status"`
	PolicyID    string     `json:"policy_id"`
	GroupID     string     `json:"group_id"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (a *API) handleKeysCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		keys, err := a.store.Keys(r.Context()).List(r.Context())
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
	case http.MethodPost:
		a.createKey(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := access.ValidateNpub(req.Npub); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.checkReferences(r.Context(), req.PolicyID, req.GroupID); err != nil {
		handleStoreError(w, r, err)
		return
	}

	key := &access.Key{
		ID:          ids.New(),
		Npub:        req.Npub,
		Nip05:       strings.TrimSpace(req.Nip05),
		ProfileName: strings.TrimSpace(req.ProfileName),
		Status:      true,
		PolicyID:    req.PolicyID,
		GroupID:     req.GroupID,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   time.Now().UTC(),
	}
	if req.Status != nil {
		key.Status = *req.Status
	}

	if err := a.store.Keys(r.Context()).Create(r.Context(), key); err != nil {
		handleStoreError(w, r, err)
		return
	}

	a.audit(r, "key.create", audit.ResultSuccess, key.ID, "")
	a.verifyNip05(key)
	writeJSON(w, http.StatusCreated, key)
}

// verifyNip05 checks the identifier against the domain's well-known
// document in the background. Failures are logged, never surfaced: the
// lookup must not block or fail key creation.
func (a *API) verifyNip05(key *access.Key) {
	if a.resolver == nil || key.Nip05 == "" {
		return
	}
	nip05 := key.Nip05
	keyID := key.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := a.resolver.Resolve(ctx, nip05); err != nil {
			obs.Warn("nip05.unverified", map[string]any{
				"key_id": keyID,
				"nip05":  nip05,
				"error":  err.Error(),
			})
		}
	}()
}

func (a *API) handleKeyResource(w http.ResponseWriter, r *http.Request) {
	id, action := splitResource(r.URL.Path, "/v1/keys/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		a.keyByID(w, r, id)
	case "toggle":
		a.toggleKey(w, r, id)
	case "authorize":
		a.authorizeKey(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) keyByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		key, err := a.store.Keys(r.Context()).Find(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, key)
	case http.MethodPut:
		a.updateKey(w, r, id)
	case http.MethodDelete:
		if err := a.store.Keys(r.Context()).Delete(r.Context(), id); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r, "key.delete", audit.ResultSuccess, id, "")
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) updateKey(w http.ResponseWriter, r *http.Request, id string) {
	var req keyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	key, err := a.store.Keys(r.Context()).Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if req.Npub != "" && req.Npub != key.Npub {
		if err := access.ValidateNpub(req.Npub); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		key.Npub = req.Npub
	}
	if err := a.checkReferences(r.Context(), req.PolicyID, req.GroupID); err != nil {
		handleStoreError(w, r, err)
		return
	}
	key.Nip05 = strings.TrimSpace(req.Nip05)
	key.ProfileName = strings.TrimSpace(req.ProfileName)
	key.PolicyID = req.PolicyID
	key.GroupID = req.GroupID
	key.ExpiresAt = req.ExpiresAt
	if req.Status != nil {
		key.Status = *req.Status
	}

	if err := a.store.Keys(r.Context()).Update(r.Context(), key); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r, "key.update", audit.ResultSuccess, key.ID, "")
	writeJSON(w, http.StatusOK, key)
}

func (a *API) toggleKey(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	key, err := a.store.Keys(r.Context()).Toggle(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	reason := "disabled"
	if key.Status {
		reason = "enabled"
	}
	a.audit(r, "key.toggle", audit.ResultSuccess, key.ID, reason)
	writeJSON(w, http.StatusOK, key)
}

func (a *API) authorizeKey(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	decision, err := a.engine.AuthorizeKey(r.Context(), id, clientIP(r))
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// checkReferences confirms the policy and group a key points at exist.
// A missing reference is a client error, not a 404 on the key route.
func (a *API) checkReferences(ctx context.Context, policyID, groupID string) error {
	if policyID != "" {
		if _, err := a.store.Policies(ctx).Find(ctx, policyID); err != nil {
			if errors.Is(err, access.ErrNotFound) {
				return fmt.Errorf("%w: unknown policy %q", access.ErrInvalidInput, policyID)
			}
			return err
		}
	}
	if groupID != "" {
		if _, err := a.store.Groups(ctx).Find(ctx, groupID); err != nil {
			if errors.Is(err, access.ErrNotFound) {
				return fmt.Errorf("%w: unknown group %q", access.ErrInvalidInput, groupID)
			}
			return err
		}
	}
	return nil
}

// splitResource extracts "{id}" and an optional trailing "{action}" from a
// path below the prefix. Deeper nesting returns empty values.
func splitResource(path, prefix string) (id, action string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], ""
	case 2:
		return parts[0], parts[1]
	default:
		return "", ""
	}
}
