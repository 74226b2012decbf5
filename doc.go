// Package clubauth implements authentication and session lifecycle for the
// clubsuite facility-management backend: JWT access tokens, rotating refresh
// tokens with reuse detection, Redis-backed revocable sessions, account
// lockout, and risk-based login alerting.
//
// The package is the public surface. It exposes [Engine], [Builder], [Config],
// the typed error set, and value types (LoginResult, AuthResult, SessionInfo).
// Token encoding lives in token/, session persistence in session/, the token
// denylist in revocation/, password hashing in password/, and the HTTP surface
// in middleware/ and httpapi/.
//
// # Architecture boundaries
//
// clubauth orchestrates; it never owns business entities. Bookings, courts,
// memberships, and payments are external collaborators that only ask "who is
// this principal and what may they do". Principal records are read and
// mutated through the [PrincipalStore] interface; clubauth never creates or
// destroys accounts.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. Correctness under concurrency
// relies on the session store's per-record atomicity, not on in-process
// locks.
package clubauth
