package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"nostrgate.org/internal/audit"
)

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listLogs(w, r)
	case http.MethodDelete:
		a.purgeLogs(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) listLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	var before time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := parseTimestamp(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "before must be an RFC3339 timestamp")
			return
		}
		before = parsed
	}

	entries, err := a.logs.List(r.Context(), limit, before)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

// purgeLogs is the only deletion path for the trail; it serves retention
// and requires an explicit cutoff.
func (a *API) purgeLogs(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("before")
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, "before query parameter is required")
		return
	}
	before, err := parseTimestamp(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "before must be an RFC3339 timestamp")
		return
	}

	purged, err := a.logs.Purge(r.Context(), before)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r, "logs.purge", audit.ResultSuccess, "", strconv.FormatInt(purged, 10)+" purged")
	writeJSON(w, http.StatusOK, map[string]any{"purged": purged})
}
