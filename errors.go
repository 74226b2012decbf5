package clubauth

import "errors"

var (
	// ErrInvalidCredentials is returned for a wrong identifier or credential.
	// The response is identical whether or not the account exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the lockout window is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountSuspended is returned for suspended accounts after identity is confirmed.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountTerminated is returned for terminated accounts after identity is confirmed.
	ErrAccountTerminated = errors.New("account terminated")
	// ErrAccountInactive is returned for inactive accounts after identity is confirmed.
	ErrAccountInactive = errors.New("account inactive")
	// ErrInvalidToken covers malformed, expired, wrong-type, and revoked tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionExpired means the session record exists but is past its activity window.
	ErrSessionExpired = errors.New("session expired")
	// ErrSecurityBreach signals refresh-token reuse. All sessions of the
	// principal are revoked before this error is returned; it is terminal
	// and never retried.
	ErrSecurityBreach = errors.New("refresh token reuse detected")
	// ErrStoreUnavailable is a retryable storage failure on a write path.
	// Read-path risk checks swallow store failures instead of surfacing this.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrPasswordPolicy is returned when a new credential fails the strength policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a new credential matches the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrResetRateLimited is returned internally when reset requests exceed the
	// hourly budget. Callers surface a generic success to avoid enumeration.
	ErrResetRateLimited = errors.New("password reset rate limited")
	// ErrPermissionDenied is returned by authorization checks.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrPrincipalNotFound is returned by PrincipalStore lookups.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrEngineNotReady is returned when the engine was not built correctly.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// statusError maps a non-active principal status to its typed error.
// Returns nil for PrincipalActive.
func statusError(status PrincipalStatus) error {
	switch status {
	case PrincipalActive:
		return nil
	case PrincipalSuspended:
		return ErrAccountSuspended
	case PrincipalTerminated:
		return ErrAccountTerminated
	case PrincipalInactive:
		return ErrAccountInactive
	default:
		return ErrAccountInactive
	}
}
