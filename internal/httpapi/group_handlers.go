package httpapi

import (
	"net/http"
	"strings"
	"time"

	"nostrgate.org/internal/access"
	"nostrgate.org/internal/audit"
	"nostrgate.org/internal/ids"
)

type groupRequest struct {
	Name     string `json:"name"`
	PolicyID string `json:"policy_id"`
}

func (a *API) handleGroupsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups, err := a.store.Groups(r.Context()).List(r.Context())
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
	case http.MethodPost:
		a.createGroup(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "group name is required")
		return
	}
	if err := a.checkReferences(r.Context(), req.PolicyID, ""); err != nil {
		handleStoreError(w, r, err)
		return
	}

	group := &access.Group{
		ID:        ids.New(),
		Name:      name,
		PolicyID:  req.PolicyID,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.Groups(r.Context()).Create(r.Context(), group); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r, "group.create", audit.ResultSuccess, "", group.ID)
	writeJSON(w, http.StatusCreated, group)
}

func (a *API) handleGroupResource(w http.ResponseWriter, r *http.Request) {
	id, action := splitResource(r.URL.Path, "/v1/groups/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		a.groupByID(w, r, id)
	case "members":
		a.groupMembers(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) groupByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		group, err := a.store.Groups(r.Context()).Find(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, group)
	case http.MethodPut:
		a.updateGroup(w, r, id)
	case http.MethodDelete:
		if err := a.store.Groups(r.Context()).Delete(r.Context(), id); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r, "group.delete", audit.ResultSuccess, "", id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) updateGroup(w http.ResponseWriter, r *http.Request, id string) {
	var req groupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	group, err := a.store.Groups(r.Context()).Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		group.Name = name
	}
	if err := a.checkReferences(r.Context(), req.PolicyID, ""); err != nil {
		handleStoreError(w, r, err)
		return
	}
	group.PolicyID = req.PolicyID

	if err := a.store.Groups(r.Context()).Update(r.Context(), group); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r, "group.update", audit.ResultSuccess, "", group.ID)
	writeJSON(w, http.StatusOK, group)
}

func (a *API) groupMembers(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	members, err := a.store.Groups(r.Context()).Members(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}
