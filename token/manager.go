package token

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type tags a token with its single permitted use.
type Type string

const (
	// TypeAccess is a short-lived credential proving identity and permissions.
	TypeAccess Type = "access"
	// TypeRefresh obtains new access tokens; single-use per rotation.
	TypeRefresh Type = "refresh"
	// TypePasswordReset authorizes exactly one password-reset completion.
	TypePasswordReset Type = "password_reset"
	// TypePasswordChange authorizes exactly the password-change endpoint.
	// It deliberately carries no permission claims.
	TypePasswordChange Type = "password_change"
)

// Validation failures, distinguishable by errors.Is.
var (
	// ErrMalformed means the token could not be parsed at all.
	ErrMalformed = errors.New("token malformed")
	// ErrExpired means the token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrSignatureInvalid means the signature did not verify.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrTypeMismatch means the type tag differs from the expected type.
	ErrTypeMismatch = errors.New("token type mismatch")
	// ErrRevoked means the token id is on the denylist.
	ErrRevoked = errors.New("token revoked")
)

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// Claims is the self-contained claim set carried by every clubauth token.
// Subject is the principal id; ID is the unique token identifier used for
// revocation. Group and permission names appear on access tokens only.
type Claims struct {
	TokenType Type `json:"typ"`
	// SessionID binds access tokens to their session. Empty on other types.
	SessionID   string   `json:"sid,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// Denylist is the revocation list consulted on every validation.
type Denylist interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

// Config holds codec keys and per-type TTLs.
type Config struct {
	SigningMethod SigningMethod
	SigningKey    []byte
	PublicKey     []byte
	Issuer        string

	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	PasswordResetTTL  time.Duration
	PasswordChangeTTL time.Duration
}

// Manager issues and validates tokens. Immutable after construction.
type Manager struct {
	config   Config
	denylist Denylist
}

// NewManager validates cfg and returns a [Manager]. denylist may be nil, in
// which case revocation checks are skipped (tests only; production wiring
// always supplies one).
func NewManager(cfg Config, denylist Denylist) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.PasswordResetTTL <= 0 {
		cfg.PasswordResetTTL = time.Hour
	}
	if cfg.PasswordChangeTTL <= 0 {
		cfg.PasswordChangeTTL = time.Hour
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.SigningKey) == 0 {
			return nil, errors.New("hs256 requires signing key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.SigningKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg, denylist: denylist}, nil
}

// IssueAccess creates an access token bound to a session, with a snapshot of
// the principal's current group and permission names. Pure with respect to
// stored state.
func (m *Manager) IssueAccess(principalID, sessionID string, groups, perms []string) (string, error) {
	return m.issue(principalID, sessionID, TypeAccess, m.config.AccessTTL, groups, perms)
}

// IssueRefresh creates a refresh token. It carries no permission data,
// minimizing blast radius if leaked.
func (m *Manager) IssueRefresh(principalID string) (string, error) {
	return m.issue(principalID, "", TypeRefresh, m.config.RefreshTTL, nil, nil)
}

// IssuePasswordReset creates a single-purpose reset token.
func (m *Manager) IssuePasswordReset(principalID string) (string, error) {
	return m.issue(principalID, "", TypePasswordReset, m.config.PasswordResetTTL, nil, nil)
}

// IssuePasswordChange creates a token that authorizes nothing except the
// password-change endpoint.
func (m *Manager) IssuePasswordChange(principalID string) (string, error) {
	return m.issue(principalID, "", TypePasswordChange, m.config.PasswordChangeTTL, nil, nil)
}

func (m *Manager) issue(principalID, sessionID string, typ Type, ttl time.Duration, groups, perms []string) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType:   typ,
		SessionID:   sessionID,
		Groups:      groups,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// Validate verifies signature, expiry, and type tag, and consults the
// denylist before signature verification so revoked tokens are rejected
// cheaply. The returned error matches exactly one of the package sentinels.
func (m *Manager) Validate(ctx context.Context, tokenStr string, expected Type) (*Claims, error) {
	if m.denylist != nil {
		if id, ok := peekTokenID(tokenStr); ok {
			revoked, err := m.denylist.IsRevoked(ctx, id)
			// Denylist reads fail open: an unreachable store must not take
			// down the request path.
			if err == nil && revoked {
				return nil, ErrRevoked
			}
		}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.verifyKey()
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignatureInvalid
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}
	if claims.TokenType != expected {
		return nil, ErrTypeMismatch
	}

	return claims, nil
}

// Revoke denylists the token for its remaining validity. Expired or
// unverifiable tokens are a no-op: there is nothing left to force-expire.
func (m *Manager) Revoke(ctx context.Context, tokenStr string) error {
	if m.denylist == nil {
		return nil
	}

	claims, err := m.parseAnyType(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}
	return m.denylist.Revoke(ctx, claims.ID, remaining)
}

// RevokeClaims denylists already-validated claims for their remaining validity.
func (m *Manager) RevokeClaims(ctx context.Context, claims *Claims) error {
	if m.denylist == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}
	return m.denylist.Revoke(ctx, claims.ID, remaining)
}

func (m *Manager) parseAnyType(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{m.method().Alg()}))
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.verifyKey()
	})
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok {
		return nil, ErrMalformed
	}
	return claims, nil
}

// peekTokenID extracts the token id without verifying the signature. Used
// only to address the denylist; authorization always requires full
// verification afterwards.
func peekTokenID(tokenStr string) (string, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return "", false
	}
	return claims.ID, claims.ID != ""
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(m.config.SigningKey)
	default:
		return m.config.SigningKey, nil
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		if len(m.config.PublicKey) > 0 {
			return parseEdPublicKey(m.config.PublicKey)
		}
		priv, err := parseEdPrivateKey(m.config.SigningKey)
		if err != nil {
			return nil, err
		}
		return priv.Public(), nil
	default:
		return m.config.SigningKey, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
