package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clubsuite/clubauth"
	"github.com/clubsuite/clubauth/middleware"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Credential string `json:"credential"`
}

type loginResponse struct {
	AccessToken              string                    `json:"accessToken,omitempty"`
	RefreshToken             string                    `json:"refreshToken,omitempty"`
	ExpiresIn                int64                     `json:"expiresIn,omitempty"`
	RequiresCredentialChange bool                      `json:"requiresCredentialChange"`
	ChangeToken              string                    `json:"changeToken,omitempty"`
	Principal                clubauth.PrincipalSummary `json:"principal"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.engine.Login(requestContext(r), req.Identifier, req.Credential)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if result.RefreshToken != "" {
		s.setRefreshCookie(w, result.RefreshToken, int(s.refreshMaxAge().Seconds()))
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:              result.AccessToken,
		RefreshToken:             result.RefreshToken,
		ExpiresIn:                int64(result.ExpiresIn.Seconds()),
		RequiresCredentialChange: result.RequiresCredentialChange,
		ChangeToken:              result.ChangeToken,
		Principal:                result.Principal,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = decode(r, &req)

	tokenStr := req.RefreshToken
	if tokenStr == "" {
		if cookie, err := r.Cookie(refreshCookieName); err == nil {
			tokenStr = cookie.Value
		}
	}
	if tokenStr == "" {
		writeError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	pair, err := s.engine.Refresh(requestContext(r), tokenStr)
	if err != nil {
		if errors.Is(err, clubauth.ErrSecurityBreach) {
			s.clearRefreshCookie(w)
		}
		s.writeEngineError(w, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken, int(s.refreshMaxAge().Seconds()))
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresIn":    int64(pair.ExpiresIn.Seconds()),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	tokenStr, _ := bearerOrCookie(r)
	if err := s.engine.Logout(r.Context(), tokenStr); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       true,
		"principal":   summaryOf(res),
		"permissions": res.Permissions,
	})
}

type resetRequestBody struct {
	Email string `json:"email"`
}

// handleResetRequest always answers with the same generic message so the
// endpoint cannot confirm whether an email is registered.
func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequestBody
	if err := decode(r, &req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.engine.RequestPasswordReset(requestContext(r), req.Email); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if the account exists, a reset link has been sent",
	})
}

type resetCompleteBody struct {
	Token         string `json:"token"`
	NewCredential string `json:"newCredential"`
}

func (s *Server) handleResetComplete(w http.ResponseWriter, r *http.Request) {
	var req resetCompleteBody
	if err := decode(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.engine.CompletePasswordReset(requestContext(r), req.Token, req.NewCredential); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

type passwordChangeBody struct {
	ChangeToken       string `json:"changeToken"`
	CurrentCredential string `json:"currentCredential"`
	NewCredential     string `json:"newCredential"`
}

func (s *Server) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	var req passwordChangeBody
	if err := decode(r, &req); err != nil || req.ChangeToken == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.engine.ChangePassword(requestContext(r), req.ChangeToken, req.CurrentCredential, req.NewCredential)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessions, err := s.engine.ListSessions(r.Context(), res.Principal.ID, res.SessionID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessionID := mux.Vars(r)["id"]
	if err := s.engine.TerminateSession(r.Context(), res.Principal.ID, sessionID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "session terminated"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	latency, err := s.engine.Ping(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  "session store unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"storeMs":   latency.Milliseconds(),
		"auditDrop": s.engine.AuditDropped(),
	})
}

func summaryOf(res *clubauth.AuthResult) clubauth.PrincipalSummary {
	s := clubauth.PrincipalSummary{
		ID:       res.Principal.ID,
		TenantID: res.Principal.TenantID,
		Email:    res.Principal.Email,
	}
	for _, g := range res.Principal.Groups {
		s.Groups = append(s.Groups, g.Name)
	}
	return s
}
