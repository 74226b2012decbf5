package clubauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clubsuite/clubauth/notify"
	"github.com/clubsuite/clubauth/password"
	"github.com/clubsuite/clubauth/token"
)

// RequestPasswordReset issues a reset token and mails it to the account.
// The return value is nil for unknown accounts, rate-limited accounts, and
// successful issuance alike; only infrastructure failures surface. Callers
// must show the same "check your email" response in every case.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.principals == nil {
		return ErrEngineNotReady
	}

	principal, err := e.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil
		}
		return err
	}
	if principal.Status == PrincipalTerminated {
		return nil
	}

	allowed, err := e.resetLimit.Allow(ctx, principal.ID)
	if err != nil {
		// Limiter reads fail open; issuing one extra mail beats refusing a
		// legitimate recovery because Redis blinked.
		allowed = true
	}
	if !allowed {
		e.emitAudit(ctx, auditEventResetRequested, false, principal.ID, "", ErrResetRateLimited, nil)
		return nil
	}

	resetToken, err := e.tokens.IssuePasswordReset(principal.ID)
	if err != nil {
		return err
	}

	e.metrics.Inc(MetricResetRequested)
	e.emitAudit(ctx, auditEventResetRequested, true, principal.ID, "", nil, nil)
	e.send(ctx, notify.Message{
		Event: notify.EventPasswordReset,
		Email: principal.Email,
		Token: resetToken,
	})
	return nil
}

// CompletePasswordReset consumes a reset token and installs the new
// credential. On success every session of the principal is revoked and the
// token is denylisted so it cannot be replayed.
func (e *Engine) CompletePasswordReset(ctx context.Context, resetToken, newCredential string) error {
	if e == nil || e.principals == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Validate(ctx, resetToken, token.TypePasswordReset)
	if err != nil {
		e.emitAudit(ctx, auditEventResetFailed, false, "", "", err, nil)
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	principal, err := e.principals.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if principal.Status == PrincipalTerminated {
		e.emitAudit(ctx, auditEventResetFailed, false, principal.ID, "", ErrAccountTerminated, nil)
		return ErrInvalidToken
	}

	if err := e.installCredential(ctx, principal, newCredential); err != nil {
		e.emitAudit(ctx, auditEventResetFailed, false, principal.ID, "", err, nil)
		return err
	}

	// Burn the token before reporting success; a crash after the credential
	// write at worst lets the token pass validation once more against a
	// hash it can no longer change back.
	_ = e.tokens.RevokeClaims(ctx, claims)

	e.metrics.Inc(MetricResetCompleted)
	e.emitAudit(ctx, auditEventResetCompleted, true, principal.ID, "", nil, nil)
	e.send(ctx, notify.Message{
		Event: notify.EventPasswordChanged,
		Email: principal.Email,
	})
	return nil
}

// installCredential validates, hashes, and stores a new credential, clears
// lockout state, and revokes all sessions. Shared by reset and change flows.
func (e *Engine) installCredential(ctx context.Context, principal *Principal, newCredential string) error {
	if err := password.CheckPolicy(newCredential); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	same, err := e.hasher.Verify(newCredential, principal.CredentialHash)
	if err == nil && same {
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(newCredential)
	if err != nil {
		return err
	}

	principal.CredentialHash = hash
	principal.CredentialChangedAt = time.Now()
	principal.MustChangeCredential = false
	principal.FailedAttempts = 0
	principal.LockedUntil = time.Time{}
	if err := e.principals.Update(ctx, principal); err != nil {
		return err
	}

	if err := e.sessions.RevokeAll(ctx, principal.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metrics.Inc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionsRevoked, true, principal.ID, "", nil, func() map[string]string {
		return map[string]string{"reason": "credential_change"}
	})
	return nil
}
