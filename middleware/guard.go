package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/clubsuite/clubauth"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validation result injected by [Guard].
func AuthResultFromContext(ctx context.Context) (*clubauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*clubauth.AuthResult)
	return res, ok
}

// Guard authenticates every request through engine.Validate. The access
// token is read from the Authorization header, falling back to the
// access_token cookie for browser clients. On success the [clubauth.AuthResult]
// and the session id land in the request context.
func Guard(engine *clubauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			tokenStr, ok := accessToken(r)
			if !ok {
				unauthorized(w)
				return
			}

			ctx := clubauth.WithClientIP(r.Context(), ClientIP(r))
			ctx = clubauth.WithUserAgent(ctx, r.UserAgent())

			res, err := engine.Validate(ctx, tokenStr)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			if res.SessionID != "" {
				ctx = clubauth.WithSessionID(ctx, res.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects requests whose validated principal lacks perm.
// The wrapped route must sit behind [Guard].
func RequirePermission(perm clubauth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if !res.HasPermission(perm) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func accessToken(r *http.Request) (string, bool) {
	if tok, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return tok, true
	}
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	tok := value[len(bearer):]
	return tok, tok != ""
}

// ClientIP resolves the caller address, preferring the first entry of
// X-Forwarded-For when a proxy set it.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
