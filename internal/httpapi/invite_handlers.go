package httpapi

import (
	"errors"
	"net/http"
	"time"

	"nostrgate.org/internal/audit"
	"nostrgate.org/internal/invite"
)

type inviteCreateRequest struct {
	ExpiresAt time.Time `json:"expires_at"`
	MaxUses   int       `json:"max_uses"`
	Comment   string    `json:"comment"`
}

func (a *API) handleInvitesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		invites, err := a.invites.List(r.Context())
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
	case http.MethodPost:
		a.createInvite(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ExpiresAt.IsZero() || !req.ExpiresAt.After(time.Now()) {
		writeError(w, r, http.StatusBadRequest, "expires_at must be in the future")
		return
	}
	if req.MaxUses < 0 {
		writeError(w, r, http.StatusBadRequest, "max_uses must be zero or positive")
		return
	}

	inv, err := a.invites.Create(r.Context(), invite.CreateParams{
		ExpiresAt: req.ExpiresAt.UTC(),
		MaxUses:   req.MaxUses,
		Comment:   req.Comment,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r, "invite.create", audit.ResultSuccess, "", inv.ID)
	writeJSON(w, http.StatusCreated, inv)
}

type redeemRequest struct {
	Token       string `json:"token"`
	Npub        string `json:"npub"`
	Nip05       string `json:"nip05"`
	ProfileName string `json:"profile_name"`
}

// handleInviteRedeem is public: the redeemer holds an invite token, not a
// session. Denials map to client statuses; storage failures stay 500s.
func (a *API) handleInviteRedeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req redeemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" {
		writeError(w, r, http.StatusBadRequest, "token is required")
		return
	}

	redemption, err := a.invites.Redeem(r.Context(), req.Token, invite.NewKey{
		Npub:        req.Npub,
		Nip05:       req.Nip05,
		ProfileName: req.ProfileName,
	})
	if err != nil {
		a.audit(r, "invite.redeem", auditResultFor(err), "", err.Error())
		switch {
		case errors.Is(err, invite.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "invite not found")
		case errors.Is(err, invite.ErrDisabled):
			writeError(w, r, http.StatusForbidden, "invite disabled")
		case errors.Is(err, invite.ErrExpired):
			writeError(w, r, http.StatusGone, "invite expired")
		case errors.Is(err, invite.ErrExhausted):
			writeError(w, r, http.StatusConflict, "invite exhausted")
		default:
			handleStoreError(w, r, err)
		}
		return
	}

	a.audit(r, "invite.redeem", audit.ResultSuccess, redemption.Key.ID, redemption.Invite.ID)
	writeJSON(w, http.StatusCreated, redemption)
}

// auditResultFor separates refused redemptions from infrastructure
// failures in the trail.
func auditResultFor(err error) audit.Result {
	switch {
	case errors.Is(err, invite.ErrNotFound),
		errors.Is(err, invite.ErrDisabled),
		errors.Is(err, invite.ErrExpired),
		errors.Is(err, invite.ErrExhausted):
		return audit.ResultDenied
	default:
		return audit.ResultError
	}
}

func (a *API) handleInviteResource(w http.ResponseWriter, r *http.Request) {
	id, action := splitResource(r.URL.Path, "/v1/invites/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		a.inviteByID(w, r, id)
	case "enable":
		a.setInviteEnabled(w, r, id, true)
	case "disable":
		a.setInviteEnabled(w, r, id, false)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) inviteByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		inv, err := a.invites.Find(r.Context(), id)
		if err != nil {
			handleInviteLookupError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	case http.MethodDelete:
		if err := a.invites.Delete(r.Context(), id); err != nil {
			handleInviteLookupError(w, r, err)
			return
		}
		a.audit(r, "invite.delete", audit.ResultSuccess, "", id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) setInviteEnabled(w http.ResponseWriter, r *http.Request, id string, enabled bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.invites.SetEnabled(r.Context(), id, enabled); err != nil {
		handleInviteLookupError(w, r, err)
		return
	}
	action := "invite.disable"
	if enabled {
		action = "invite.enable"
	}
	a.audit(r, action, audit.ResultSuccess, "", id)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "enabled": enabled})
}

func handleInviteLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, invite.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "invite not found")
		return
	}
	handleStoreError(w, r, err)
}
