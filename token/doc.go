// Package token creates and validates the signed, typed, time-bounded tokens
// used by clubauth: access, refresh, password_reset, and password_change.
//
// Every token carries a type tag that is checked on every validation. This
// closes token-confusion replay: a password-reset token can never be accepted
// where an access token is expected, even when otherwise well-formed.
//
// # Architecture boundaries
//
// This package owns token encoding and verification only. It consults a
// [Denylist] for early revocation but does not manage sessions, principals,
// or authorization policy.
//
// # What this package must NOT do
//
//   - Import clubauth or session (no upward imports).
//   - Persist anything beyond denylist entries written through [Denylist].
//   - Embed permission claims in anything but access tokens.
package token
