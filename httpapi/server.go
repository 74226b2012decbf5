package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clubsuite/clubauth"
	"github.com/clubsuite/clubauth/middleware"
)

const (
	refreshCookieName = "refresh_token"
	defaultBasePath   = "/auth"
)

// Config tunes the HTTP surface.
type Config struct {
	// BasePath is the mount point of the auth routes and the cookie scope.
	// Defaults to "/auth".
	BasePath string
	// InsecureCookies drops the Secure attribute for plain-HTTP development
	// setups. Never enable in production.
	InsecureCookies bool
}

// Server holds the handler set for one Engine.
type Server struct {
	engine *clubauth.Engine
	cfg    Config
}

// NewServer wires a [Server] for the given engine.
func NewServer(engine *clubauth.Engine, cfg Config) *Server {
	if cfg.BasePath == "" {
		cfg.BasePath = defaultBasePath
	}
	return &Server{engine: engine, cfg: cfg}
}

// Router builds the route table. The caller mounts it as the root handler
// or a subrouter.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	auth := r.PathPrefix(s.cfg.BasePath).Subrouter()
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	auth.HandleFunc("/password-reset/request", s.handleResetRequest).Methods(http.MethodPost)
	auth.HandleFunc("/password-reset/complete", s.handleResetComplete).Methods(http.MethodPost)
	auth.HandleFunc("/password-change", s.handlePasswordChange).Methods(http.MethodPost)

	guarded := auth.NewRoute().Subrouter()
	guarded.Use(mux.MiddlewareFunc(middleware.Guard(s.engine)))
	guarded.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	guarded.HandleFunc("/validate", s.handleValidate).Methods(http.MethodGet)
	guarded.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	guarded.HandleFunc("/sessions/{id}", s.handleTerminateSession).Methods(http.MethodDelete)

	return r
}

// setRefreshCookie binds the refresh token to the auth path so it is only
// sent where rotation can happen.
func (s *Server) setRefreshCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     s.cfg.BasePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !s.cfg.InsecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     s.cfg.BasePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !s.cfg.InsecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
