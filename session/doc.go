// Package session provides Redis-backed session persistence for clubauth.
//
// Each active session is written under three keys sharing one TTL: by
// refresh-token hash (the hot path, hit on every refresh), by session id
// (direct termination), and a per-principal index key (mass revocation). A
// fourth, independently TTLed key records login IP history per principal for
// risk scoring.
//
// # Rotation protocol
//
// Rotation runs as a single Lua script: the old refresh record is checked
// for its used flag, marked used and kept alive for a short reuse window,
// and the fresh record is written under the new token hash — all atomically.
// A replayed, already-rotated token therefore hits a residual record with
// used=true and is reported as reuse, never as a lost update. Two rotations
// racing on the same token cannot both succeed.
//
// # Architecture boundaries
//
// This package owns Redis operations and the [Session] model. It does NOT
// interpret JWT tokens, evaluate permissions, or enforce authentication
// policy — those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import clubauth or token (no upward imports).
//   - Store raw refresh tokens; only SHA-256 hashes reach Redis keys.
//   - Make authorization decisions.
package session
