package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"nostrgate.org/internal/session"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
	cookieName = "auth_token"
)

var publicPaths = []string{
	"/v1/login",
	"/v1/invites/redeem",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

type ctxKey string

const subjectKey ctxKey = "session_subject"

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey).(string)
	return v, ok && v != ""
}

// withAuth guards every non-public path behind a valid session token,
// taken from the auth cookie or a bearer header. A successful validation
// also slides the window: the response carries a fresh cookie expiring TTL
// from now, so continuous activity never logs the admin out.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.sessions == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		fresh, subject, expiresAt, err := a.sessions.Revalidate(token)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrTokenExpired):
				writeError(w, r, http.StatusUnauthorized, "session expired")
			default:
				writeError(w, r, http.StatusUnauthorized, "invalid session")
			}
			return
		}

		setAuthCookie(w, fresh, expiresAt)
		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

func setAuthCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
