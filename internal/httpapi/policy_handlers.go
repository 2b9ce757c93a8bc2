package httpapi

import (
	"net/http"
	"strings"
	"time"

	"nostrgate.org/internal/access"
	"nostrgate.org/internal/audit"
	"nostrgate.org/internal/ids"
	"nostrgate.org/internal/obs"
)

type policyRequest struct {
	Name       string `json:"name"`
	ActiveDays string `json:"active_days"`
	TimeStart  string `json:"time_start"`
	TimeEnd    string `json:"time_end"`
	ExpiryDays int    `json:"expiry_days"`
}

func (req *policyRequest) toPolicy() (*access.Policy, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, access.ErrInvalidInput
	}
	days, err := access.ParseDaySet(req.ActiveDays)
	if err != nil {
		return nil, err
	}
	var start, end access.TimeOfDay
	if req.TimeStart != "" {
		if start, err = access.ParseTimeOfDay(req.TimeStart); err != nil {
			return nil, err
		}
	}
	if req.TimeEnd != "" {
		if end, err = access.ParseTimeOfDay(req.TimeEnd); err != nil {
			return nil, err
		}
	}
	if req.ExpiryDays < 0 {
		return nil, access.ErrInvalidInput
	}
	return &access.Policy{
		Name:       name,
		ActiveDays: days,
		TimeStart:  start,
		TimeEnd:    end,
		ExpiryDays: req.ExpiryDays,
	}, nil
}

func (a *API) handlePoliciesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		policies, err := a.store.Policies(r.Context()).List(r.Context())
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"policies": policies})
	case http.MethodPost:
		a.createPolicy(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	policy, err := req.toPolicy()
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	policy.ID = ids.New()
	policy.CreatedAt = time.Now().UTC()

	if err := a.store.Policies(r.Context()).Create(r.Context(), policy); err != nil {
		handleStoreError(w, r, err)
		return
	}

	warnUnrestrictedDays(policy)
	a.audit(r, "policy.create", audit.ResultSuccess, "", policy.ID)
	writeJSON(w, http.StatusCreated, policy)
}

// warnUnrestrictedDays flags a policy that matches every weekday. An empty
// day set means no restriction, which is valid but easy to write by
// accident.
func warnUnrestrictedDays(p *access.Policy) {
	if p.ActiveDays.Empty() {
		obs.Warn("policy.days.unrestricted", map[string]any{
			"policy_id": p.ID,
			"name":      p.Name,
		})
	}
}

func (a *API) handlePolicyResource(w http.ResponseWriter, r *http.Request) {
	id, action := splitResource(r.URL.Path, "/v1/policies/")
	if id == "" || action != "" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		policy, err := a.store.Policies(r.Context()).Find(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, policy)
	case http.MethodPut:
		a.updatePolicy(w, r, id)
	case http.MethodDelete:
		if err := a.store.Policies(r.Context()).Delete(r.Context(), id); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r, "policy.delete", audit.ResultSuccess, "", id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) updatePolicy(w http.ResponseWriter, r *http.Request, id string) {
	var req policyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	existing, err := a.store.Policies(r.Context()).Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	policy, err := req.toPolicy()
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	policy.ID = existing.ID
	policy.CreatedAt = existing.CreatedAt

	if err := a.store.Policies(r.Context()).Update(r.Context(), policy); err != nil {
		handleStoreError(w, r, err)
		return
	}
	warnUnrestrictedDays(policy)
	a.audit(r, "policy.update", audit.ResultSuccess, "", policy.ID)
	writeJSON(w, http.StatusOK, policy)
}
