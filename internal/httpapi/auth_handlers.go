package httpapi

import (
	"errors"
	"net/http"
	"time"

	"nostrgate.org/internal/audit"
	"nostrgate.org/internal/session"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, expiresAt, err := a.sessions.Login(req.Password)
	if err != nil {
		if errors.Is(err, session.ErrBadCredentials) {
			a.audit(r, "session.login", audit.ResultDenied, "", "bad credentials")
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.audit(r, "session.login", audit.ResultSuccess, "", "")
	setAuthCookie(w, token, expiresAt)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// handleLogout clears the session cookie. Tokens are stateless so the
// presented one stays structurally valid until its expiry; logout only
// removes it from the browser.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.audit(r, "session.logout", audit.ResultSuccess, "", "")
	clearAuthCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}
