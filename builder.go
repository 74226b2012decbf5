package clubauth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/clubsuite/clubauth/notify"
	"github.com/clubsuite/clubauth/password"
	"github.com/clubsuite/clubauth/revocation"
	"github.com/clubsuite/clubauth/session"
	"github.com/clubsuite/clubauth/token"
)

// Builder assembles an [Engine]. Defaults cover everything except the Redis
// client, the principal store, and the token signing key.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	principals PrincipalStore
	notifier   notify.Notifier
	auditSink  AuditSink
}

// New starts a builder with default configuration.
func New() *Builder {
	return &Builder{
		config:   defaultConfig(),
		notifier: notify.NoOp{},
	}
}

// WithConfig replaces the entire configuration. Zero-valued sections fall
// back to their defaults at Build time.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = mergeDefaults(cfg)
	return b
}

// WithSigningKey sets the HS256 secret without touching the rest of the
// token configuration.
func (b *Builder) WithSigningKey(key []byte) *Builder {
	b.config.Token.SigningKey = key
	return b
}

// WithRedis sets the client backing sessions, revocation, and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPrincipalStore connects the account database.
func (b *Builder) WithPrincipalStore(store PrincipalStore) *Builder {
	b.principals = store
	return b
}

// WithNotifier sets the out-of-band message sender. Defaults to a no-op.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	if n != nil {
		b.notifier = n
	}
	return b
}

// WithAuditSink sets the audit event consumer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.principals == nil {
		return nil, errors.New("principal store is required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	denylist := revocation.NewStore(b.redis, "")

	tokens, err := token.NewManager(token.Config{
		SigningMethod:     b.config.Token.SigningMethod,
		SigningKey:        b.config.Token.SigningKey,
		PublicKey:         b.config.Token.PublicKey,
		Issuer:            b.config.Token.Issuer,
		AccessTTL:         b.config.Token.AccessTTL,
		RefreshTTL:        b.config.Token.RefreshTTL,
		PasswordResetTTL:  b.config.Token.PasswordResetTTL,
		PasswordChangeTTL: b.config.Token.PasswordChangeTTL,
	}, denylist)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(b.redis, session.Config{
		KeyPrefix:    b.config.Session.KeyPrefix,
		TTL:          b.config.Session.TTL,
		ReuseWindow:  b.config.Session.ReuseWindow,
		IPHistoryTTL: b.config.Session.IPHistoryTTL,
		Timeout:      b.config.Session.StoreTimeout,
	})

	hasher, err := password.NewArgon2(b.config.Password)
	if err != nil {
		return nil, err
	}

	// Hashing a throwaway credential gives the miss path in Login a real
	// verification to perform.
	dummyHash, err := hasher.Hash("clubauth-nonexistent-principal")
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:     b.config,
		principals: b.principals,
		sessions:   sessions,
		tokens:     tokens,
		denylist:   denylist,
		hasher:     hasher,
		notifier:   b.notifier,
		resetLimit: newResetLimiter(b.redis, b.config.PasswordReset.MaxRequestsPerWindow, b.config.PasswordReset.Window),
		audit:      newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:    NewMetrics(b.config.Metrics),
		dummyHash:  dummyHash,
	}, nil
}
