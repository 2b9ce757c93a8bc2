package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"nostrgate.org/internal/access"
	"nostrgate.org/internal/audit"
	"nostrgate.org/internal/invite"
	"nostrgate.org/internal/nip05"
	"nostrgate.org/internal/obs"
	"nostrgate.org/internal/session"
	"nostrgate.org/internal/stream"
)

// ReadyProbe reports readiness (e.g. a database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps collects everything the HTTP layer is wired with.
type Deps struct {
	Store      access.Store
	Engine     *access.Engine
	Invites    invite.Ledger
	Sessions   *session.Manager
	Recorder   *audit.Recorder
	Logs       audit.Store
	Stream     *stream.Stream
	Resolver   *nip05.Resolver
	ReadyProbe ReadyProbe
	Version    string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	store      access.Store
	engine     *access.Engine
	invites    invite.Ledger
	sessions   *session.Manager
	recorder   *audit.Recorder
	logs       audit.Store
	stream     *stream.Stream
	resolver   *nip05.Resolver
	readyProbe ReadyProbe
	version    string
}

// New wires routes. All /v1 paths except login and invite redemption pass
// through the session middleware.
func New(deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		store:      deps.Store,
		engine:     deps.Engine,
		invites:    deps.Invites,
		sessions:   deps.Sessions,
		recorder:   deps.Recorder,
		logs:       deps.Logs,
		stream:     deps.Stream,
		resolver:   deps.Resolver,
		readyProbe: deps.ReadyProbe,
		version:    deps.Version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/login", a.handleLogin)
	a.mux.HandleFunc("/v1/logout", a.handleLogout)

	a.mux.HandleFunc("/v1/keys", a.handleKeysCollection)
	a.mux.HandleFunc("/v1/keys/", a.handleKeyResource)

	a.mux.HandleFunc("/v1/policies", a.handlePoliciesCollection)
	a.mux.HandleFunc("/v1/policies/", a.handlePolicyResource)

	a.mux.HandleFunc("/v1/groups", a.handleGroupsCollection)
	a.mux.HandleFunc("/v1/groups/", a.handleGroupResource)

	a.mux.HandleFunc("/v1/invites", a.handleInvitesCollection)
	a.mux.HandleFunc("/v1/invites/redeem", a.handleInviteRedeem)
	a.mux.HandleFunc("/v1/invites/", a.handleInviteResource)

	a.mux.HandleFunc("/v1/logs", a.handleLogs)
	a.mux.HandleFunc("/v1/logs/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

// --- health ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "nostrgate-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- audit ---

// audit records an administrative event; the recorder never blocks.
func (a *API) audit(r *http.Request, action string, result audit.Result, keyID, reason string) {
	if a.recorder == nil {
		return
	}
	a.recorder.Record(audit.Entry{
		KeyID:  keyID,
		Action: action,
		Result: result,
		Reason: reason,
		IP:     clientIP(r),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleStoreError maps domain sentinels onto HTTP statuses. Storage
// failures stay 500s, never disguised as client errors.
func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, access.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, access.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(raw))
}
