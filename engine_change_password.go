package clubauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/clubsuite/clubauth/notify"
	"github.com/clubsuite/clubauth/token"
)

// ChangePassword completes a forced credential change. The change token is
// the one issued by [Engine.Login] for a flagged principal; it authorizes
// nothing else. The current credential is re-verified so a stolen change
// token alone cannot take over the account.
func (e *Engine) ChangePassword(ctx context.Context, changeToken, currentCredential, newCredential string) error {
	if e == nil || e.principals == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Validate(ctx, changeToken, token.TypePasswordChange)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	principal, err := e.principals.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if statusErr := statusError(principal.Status); statusErr != nil {
		return statusErr
	}

	ok, err := e.hasher.Verify(currentCredential, principal.CredentialHash)
	if err != nil {
		return err
	}
	if !ok {
		e.emitAudit(ctx, auditEventCredentialChanged, false, principal.ID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.installCredential(ctx, principal, newCredential); err != nil {
		e.emitAudit(ctx, auditEventCredentialChanged, false, principal.ID, "", err, nil)
		return err
	}
	_ = e.tokens.RevokeClaims(ctx, claims)

	e.emitAudit(ctx, auditEventCredentialChanged, true, principal.ID, "", nil, nil)
	e.send(ctx, notify.Message{
		Event: notify.EventPasswordChanged,
		Email: principal.Email,
	})
	return nil
}

// ChangePasswordAuthenticated changes the credential of an already
// authenticated principal, verifying the current credential first.
func (e *Engine) ChangePasswordAuthenticated(ctx context.Context, principalID, currentCredential, newCredential string) error {
	if e == nil || e.principals == nil {
		return ErrEngineNotReady
	}

	principal, err := e.principals.GetByID(ctx, principalID)
	if err != nil {
		return err
	}
	if statusErr := statusError(principal.Status); statusErr != nil {
		return statusErr
	}

	ok, err := e.hasher.Verify(currentCredential, principal.CredentialHash)
	if err != nil {
		return err
	}
	if !ok {
		e.emitAudit(ctx, auditEventCredentialChanged, false, principal.ID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.installCredential(ctx, principal, newCredential); err != nil {
		e.emitAudit(ctx, auditEventCredentialChanged, false, principal.ID, "", err, nil)
		return err
	}

	e.emitAudit(ctx, auditEventCredentialChanged, true, principal.ID, "", nil, nil)
	e.send(ctx, notify.Message{
		Event: notify.EventPasswordChanged,
		Email: principal.Email,
	})
	return nil
}
