// Package password provides argon2id credential hashing in PHC string
// format and the credential strength policy applied on every change.
//
// # What this package must NOT do
//
//   - Import clubauth (no upward imports).
//   - Log or retain plaintext credentials.
package password
