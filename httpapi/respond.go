package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/clubsuite/clubauth"
	"github.com/clubsuite/clubauth/middleware"
)

const maxBodyBytes = 64 << 10

func decode(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requestContext attaches client IP and user agent for unguarded routes.
// Guarded routes get the same values from the middleware.
func requestContext(r *http.Request) context.Context {
	ctx := clubauth.WithClientIP(r.Context(), middleware.ClientIP(r))
	return clubauth.WithUserAgent(ctx, r.UserAgent())
}

func bearerOrCookie(r *http.Request) (string, bool) {
	const bearer = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, bearer) && len(auth) > len(bearer) {
		return auth[len(bearer):], true
	}
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

func (s *Server) refreshMaxAge() time.Duration {
	return s.engine.Config().Token.RefreshTTL
}

// writeEngineError maps the engine's typed errors onto HTTP statuses.
// Clients distinguish "try again" (503) from "re-authenticate" (401) from
// "contact support" (403/423) by status alone.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clubauth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, clubauth.ErrAccountLocked):
		writeError(w, http.StatusLocked, "account locked")
	case errors.Is(err, clubauth.ErrAccountSuspended):
		writeError(w, http.StatusForbidden, "account suspended")
	case errors.Is(err, clubauth.ErrAccountTerminated):
		writeError(w, http.StatusForbidden, "account terminated")
	case errors.Is(err, clubauth.ErrAccountInactive):
		writeError(w, http.StatusForbidden, "account inactive")
	case errors.Is(err, clubauth.ErrSecurityBreach):
		writeError(w, http.StatusUnauthorized, "security breach detected, re-authentication required")
	case errors.Is(err, clubauth.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "session expired")
	case errors.Is(err, clubauth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, clubauth.ErrPasswordPolicy):
		writeError(w, http.StatusUnprocessableEntity, "password does not meet the strength policy")
	case errors.Is(err, clubauth.ErrPasswordReuse):
		writeError(w, http.StatusUnprocessableEntity, "new password must differ from the current one")
	case errors.Is(err, clubauth.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, clubauth.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
