package clubauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clubsuite/clubauth/internal"
	"github.com/clubsuite/clubauth/notify"
	"github.com/clubsuite/clubauth/password"
	"github.com/clubsuite/clubauth/revocation"
	"github.com/clubsuite/clubauth/session"
	"github.com/clubsuite/clubauth/token"
)

// Engine orchestrates the full authentication lifecycle: login, refresh,
// validation, logout, and credential recovery. Construct one with [New] and
// share it across goroutines; it is immutable after Build.
type Engine struct {
	config     Config
	principals PrincipalStore
	sessions   *session.Store
	tokens     *token.Manager
	denylist   *revocation.Store
	hasher     *password.Argon2
	notifier   notify.Notifier
	resetLimit *resetLimiter
	audit      *auditDispatcher
	metrics    *Metrics

	// dummyHash absorbs a credential verification when the account does not
	// exist, keeping the miss path the same cost as a real mismatch.
	dummyHash string
}

// Login authenticates an email/credential pair. On success it creates a
// session and returns the token pair; a principal flagged for a forced
// credential change instead receives only a change token.
//
// A wrong email and a wrong credential produce the same
// [ErrInvalidCredentials] with no observable difference.
func (e *Engine) Login(ctx context.Context, email, credential string) (*LoginResult, error) {
	if e == nil || e.principals == nil {
		return nil, ErrEngineNotReady
	}

	principal, err := e.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			_, _ = e.hasher.Verify(credential, e.dummyHash)
			e.metrics.Inc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if statusErr := statusError(principal.Status); statusErr != nil {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, "", statusErr, nil)
		return nil, statusErr
	}

	if time.Now().Before(principal.LockedUntil) {
		e.metrics.Inc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, principal.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	ok, err := e.hasher.Verify(credential, principal.CredentialHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.recordFailedAttempt(ctx, principal)
	}

	if principal.FailedAttempts > 0 || !principal.LockedUntil.IsZero() {
		principal.FailedAttempts = 0
		principal.LockedUntil = time.Time{}
		if err := e.principals.Update(ctx, principal); err != nil {
			return nil, err
		}
	}

	if principal.MustChangeCredential {
		changeToken, err := e.tokens.IssuePasswordChange(principal.ID)
		if err != nil {
			return nil, err
		}
		e.metrics.Inc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, principal.ID, "", nil, func() map[string]string {
			return map[string]string{"credential_change_required": "true"}
		})
		return &LoginResult{
			RequiresCredentialChange: true,
			ChangeToken:              changeToken,
			Principal:                summarize(principal),
		}, nil
	}

	e.assessLoginRisk(ctx, principal)

	result, err := e.openSession(ctx, principal)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, principal.ID, result.SessionID, nil, nil)

	if e.config.Notify.LoginNoticeForHighPrivilege && e.isHighPrivilege(principal) {
		e.send(ctx, notify.Message{
			Event:  notify.EventLoginNotice,
			Email:  principal.Email,
			Detail: "login from " + clientIPFromContext(ctx),
		})
	}

	return result, nil
}

// recordFailedAttempt bumps the per-principal counter, notifies at the warn
// threshold, and locks at the max. Counter updates are best-effort against
// the principal store.
func (e *Engine) recordFailedAttempt(ctx context.Context, principal *Principal) error {
	principal.FailedAttempts++
	loginErr := ErrInvalidCredentials

	switch {
	case principal.FailedAttempts >= e.config.Lockout.MaxAttempts:
		principal.LockedUntil = time.Now().Add(e.config.Lockout.Duration)
		loginErr = ErrAccountLocked
	case principal.FailedAttempts == e.config.Lockout.WarnThreshold:
		e.send(ctx, notify.Message{
			Event:  notify.EventLockoutWarning,
			Email:  principal.Email,
			Detail: strconv.Itoa(principal.FailedAttempts) + " failed logins",
		})
	}

	if err := e.principals.Update(ctx, principal); err != nil {
		return err
	}

	attempts := principal.FailedAttempts
	if errors.Is(loginErr, ErrAccountLocked) {
		e.metrics.Inc(MetricLockoutTriggered)
		e.send(ctx, notify.Message{
			Event:  notify.EventAccountLocked,
			Email:  principal.Email,
			Detail: "locked until " + principal.LockedUntil.Format(time.RFC3339),
		})
		e.emitAudit(ctx, auditEventLoginLocked, false, principal.ID, "", loginErr, func() map[string]string {
			return map[string]string{"failed_attempts": strconv.Itoa(attempts)}
		})
	} else {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, "", loginErr, func() map[string]string {
			return map[string]string{"failed_attempts": strconv.Itoa(attempts)}
		})
	}

	return loginErr
}

// assessLoginRisk scores the attempt and raises an alert above the
// threshold. Scoring never blocks the login.
func (e *Engine) assessLoginRisk(ctx context.Context, principal *Principal) {
	ip := clientIPFromContext(ctx)

	known := false
	if ip != "" {
		// IP history reads fail open: no history means more risk, not an
		// unavailable login path.
		if seen, err := e.sessions.HasLoginFromIP(ctx, principal.ID, ip); err == nil {
			known = seen
		}
	}

	score, reasons := riskScore(e.config.Risk, RiskSignals{
		KnownIP:             known,
		LoginAt:             time.Now(),
		CredentialChangedAt: principal.CredentialChangedAt,
		HighPrivilege:       e.isHighPrivilege(principal),
	})
	if score < e.config.Risk.AlertThreshold {
		return
	}

	e.metrics.Inc(MetricRiskAlert)
	e.emitAudit(ctx, auditEventRiskAlert, true, principal.ID, "", nil, func() map[string]string {
		return map[string]string{
			"score":   strconv.FormatFloat(score, 'f', 2, 64),
			"reasons": strings.Join(reasons, ","),
		}
	})
	e.send(ctx, notify.Message{
		Event:  notify.EventSecurityAlert,
		Email:  principal.Email,
		Detail: "unusual login (" + strings.Join(reasons, ", ") + ")",
	})
}

// openSession issues the token pair and writes the session record.
func (e *Engine) openSession(ctx context.Context, principal *Principal) (*LoginResult, error) {
	sessionID, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	accessToken, err := e.tokens.IssueAccess(principal.ID, sessionID, groupNames(principal), permissionNames(principal))
	if err != nil {
		return nil, err
	}
	refreshToken, err := e.tokens.IssueRefresh(principal.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	sess := &session.Session{
		SessionID:      sessionID,
		PrincipalID:    principal.ID,
		IP:             clientIPFromContext(ctx),
		UserAgent:      userAgentFromContext(ctx),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := e.sessions.Create(ctx, sess, refreshToken); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metrics.Inc(MetricSessionCreated)

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    e.config.Token.AccessTTL,
		SessionID:    sessionID,
		Principal:    summarize(principal),
	}, nil
}

// Refresh rotates a refresh token and returns a fresh pair. Presenting a
// token that was already rotated away revokes every session of the principal
// and returns [ErrSecurityBreach].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.principals == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Validate(ctx, refreshToken, token.TypeRefresh)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, nil)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	principal, err := e.principals.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.metrics.Inc(MetricRefreshFailure)
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if statusErr := statusError(principal.Status); statusErr != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, principal.ID, "", statusErr, nil)
		return nil, statusErr
	}

	newRefresh, err := e.tokens.IssueRefresh(principal.ID)
	if err != nil {
		return nil, err
	}

	sess, err := e.sessions.Rotate(ctx, refreshToken, newRefresh)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenReused):
			return nil, e.handleReuse(ctx, claims, principal)
		case errors.Is(err, session.ErrSessionNotFound):
			e.metrics.Inc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, principal.ID, "", err, nil)
			return nil, ErrInvalidToken
		case errors.Is(err, session.ErrSessionExpired):
			e.metrics.Inc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, principal.ID, "", err, nil)
			return nil, ErrSessionExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	accessToken, err := e.tokens.IssueAccess(principal.ID, sess.SessionID, groupNames(principal), permissionNames(principal))
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, principal.ID, sess.SessionID, nil, nil)

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresIn:    e.config.Token.AccessTTL,
	}, nil
}

// handleReuse is the breach path: a rotated-away token came back. Every
// session of the principal dies before the caller learns anything.
func (e *Engine) handleReuse(ctx context.Context, claims *token.Claims, principal *Principal) error {
	e.metrics.Inc(MetricRefreshReuseDetected)

	if err := e.sessions.RevokeAll(ctx, principal.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metrics.Inc(MetricSessionRevoked)
	_ = e.tokens.RevokeClaims(ctx, claims)

	e.emitAudit(ctx, auditEventRefreshReuse, false, principal.ID, "", ErrSecurityBreach, nil)
	e.emitAudit(ctx, auditEventSessionsRevoked, true, principal.ID, "", nil, func() map[string]string {
		return map[string]string{"reason": "refresh_token_reuse"}
	})
	e.send(ctx, notify.Message{
		Event:  notify.EventSecurityAlert,
		Email:  principal.Email,
		Detail: "refresh token reuse detected, all sessions revoked",
	})

	return ErrSecurityBreach
}

// Validate authenticates a request by its access token. Permissions in the
// result are recomputed from the principal's current groups; the token's
// snapshot is never trusted for authorization.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.principals == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()

	claims, err := e.tokens.Validate(ctx, accessToken, token.TypeAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	principal, err := e.principals.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if statusErr := statusError(principal.Status); statusErr != nil {
		return nil, statusErr
	}

	return &AuthResult{
		Principal:   principal,
		SessionID:   claims.SessionID,
		TokenID:     claims.ID,
		Permissions: principal.Permissions(),
	}, nil
}

// Logout terminates the access token's session and denylists the token for
// its remaining validity. Idempotent: a second logout with the same token is
// still success.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	result, err := e.Validate(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil
		}
		return err
	}

	sessionID := result.SessionID
	if ctxSID, ok := SessionIDFromContext(ctx); ok {
		sessionID = ctxSID
	}
	if sessionID != "" {
		if err := e.sessions.Terminate(ctx, sessionID); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metrics.Inc(MetricSessionRevoked)
	}

	if err := e.tokens.Revoke(ctx, accessToken); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, result.Principal.ID, sessionID, nil, nil)
	return nil
}

// Close flushes and stops the audit dispatcher. Call once on shutdown.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

// Metrics exposes the engine's counters for scraping.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were shed under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Ping reports session store reachability for health checks.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Ping(ctx)
}

func (e *Engine) isHighPrivilege(principal *Principal) bool {
	return len(e.config.Risk.HighPrivilegePermissions) > 0 &&
		principal.HasAnyPermission(e.config.Risk.HighPrivilegePermissions...)
}

func (e *Engine) send(ctx context.Context, msg notify.Message) {
	if e.notifier == nil {
		return
	}
	// Notification delivery is best-effort and never fails the caller.
	_ = e.notifier.Send(ctx, msg)
}

func groupNames(p *Principal) []string {
	names := make([]string, 0, len(p.Groups))
	for _, g := range p.Groups {
		names = append(names, g.Name)
	}
	return names
}

func permissionNames(p *Principal) []string {
	perms := p.Permissions()
	names := make([]string, 0, len(perms))
	for _, perm := range perms {
		names = append(names, string(perm))
	}
	return names
}
