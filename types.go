package clubauth

import (
	"context"
	"time"
)

// PrincipalStatus represents the lifecycle state of an account.
type PrincipalStatus uint8

const (
	// PrincipalActive is the only status allowed to authenticate.
	PrincipalActive PrincipalStatus = iota
	// PrincipalSuspended is an administratively paused account.
	PrincipalSuspended
	// PrincipalTerminated is a permanently closed account.
	PrincipalTerminated
	// PrincipalInactive is a lapsed account (e.g. expired membership).
	PrincipalInactive
)

// Permission is a named capability (e.g. "bookings:write", "staff:admin").
type Permission string

// Group is a named permission group. A principal's effective permission set
// is the union of all its groups, recomputed on every access and never
// cached on the principal itself.
type Group struct {
	Name        string
	Permissions []Permission
}

// Principal is the account record owned by the external account-management
// service. clubauth reads it on every authenticated request and mutates only
// credential hash, lockout state, and the must-change flag.
type Principal struct {
	ID             string
	TenantID       string
	Email          string
	CredentialHash string
	Status         PrincipalStatus

	FailedAttempts int
	LockedUntil    time.Time

	MustChangeCredential bool
	CredentialChangedAt  time.Time

	Groups []Group
}

// Permissions returns the union of all group permissions, deduplicated.
func (p *Principal) Permissions() []Permission {
	seen := make(map[Permission]struct{})
	var out []Permission
	for _, g := range p.Groups {
		for _, perm := range g.Permissions {
			if _, ok := seen[perm]; ok {
				continue
			}
			seen[perm] = struct{}{}
			out = append(out, perm)
		}
	}
	return out
}

// HasPermission reports whether the principal's effective set contains perm.
func (p *Principal) HasPermission(perm Permission) bool {
	for _, g := range p.Groups {
		for _, have := range g.Permissions {
			if have == perm {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission is a typed set-intersection test over the effective set.
func (p *Principal) HasAnyPermission(perms ...Permission) bool {
	for _, perm := range perms {
		if p.HasPermission(perm) {
			return true
		}
	}
	return false
}

// PrincipalStore is the interface callers implement to connect clubauth to
// their account database. Lookups must return [ErrPrincipalNotFound]
// (possibly wrapped) when no record matches. Update follows optimistic
// read-modify-write semantics; principal mutations here are low-frequency
// (lockout counters, credential changes).
type PrincipalStore interface {
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	Update(ctx context.Context, p *Principal) error
}

// PrincipalSummary is the client-facing slice of a principal returned by
// login and validate responses.
type PrincipalSummary struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId,omitempty"`
	Email    string   `json:"email"`
	Groups   []string `json:"groups,omitempty"`
}

func summarize(p *Principal) PrincipalSummary {
	s := PrincipalSummary{
		ID:       p.ID,
		TenantID: p.TenantID,
		Email:    p.Email,
	}
	for _, g := range p.Groups {
		s.Groups = append(s.Groups, g.Name)
	}
	return s
}

// LoginResult is returned by [Engine.Login]. When the principal must change
// its credential, only ChangeToken is set: no refresh token, no session.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	SessionID    string

	RequiresCredentialChange bool
	ChangeToken              string

	Principal PrincipalSummary
}

// TokenPair is returned by [Engine.Refresh].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// AuthResult is produced by [Engine.Validate] for every authenticated
// request. Permissions are the fresh group union, not the token snapshot.
type AuthResult struct {
	Principal   *Principal
	SessionID   string
	TokenID     string
	Permissions []Permission
}

// HasPermission reports whether the authenticated principal holds perm.
func (r *AuthResult) HasPermission(perm Permission) bool {
	if r == nil {
		return false
	}
	for _, have := range r.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// SessionInfo is an introspection view of one active session.
type SessionInfo struct {
	SessionID    string    `json:"sessionId"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Current      bool      `json:"current"`
}
