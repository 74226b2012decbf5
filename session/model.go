package session

// Session is one authenticated client connection. The session id is stable
// across rotations while the refresh-token value changes; at any instant a
// session and its refresh token are 1:1.
type Session struct {
	SessionID   string `json:"sid"`
	PrincipalID string `json:"pid"`
	// TokenHash is the SHA-256 hex of the current refresh token.
	TokenHash string `json:"th"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"ua,omitempty"`

	CreatedAt      int64 `json:"ca"`
	LastActivityAt int64 `json:"la"`

	// Used marks a refresh record that has already been rotated away.
	// A lookup that finds Used=true is a reuse signal, not a valid session.
	Used bool `json:"used"`
}
