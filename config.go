package clubauth

import (
	"errors"
	"time"

	"github.com/clubsuite/clubauth/password"
	"github.com/clubsuite/clubauth/token"
)

// Config drives all engine behavior. There are no package-level tunables:
// every threshold and TTL lives here so environments and tests can override
// them at construction.
type Config struct {
	Token         TokenConfig
	Session       SessionConfig
	Lockout       LockoutConfig
	PasswordReset PasswordResetConfig
	Password      password.Config
	Risk          RiskConfig
	Notify        NotifyConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

// TokenConfig configures the token codec.
type TokenConfig struct {
	SigningMethod token.SigningMethod
	SigningKey    []byte
	PublicKey     []byte
	Issuer        string

	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	PasswordResetTTL  time.Duration
	PasswordChangeTTL time.Duration
}

// SessionConfig configures the Redis session store.
type SessionConfig struct {
	KeyPrefix string
	// TTL is the session lifetime, refreshed on every rotation.
	TTL time.Duration
	// ReuseWindow keeps a rotated-away refresh record alive so a replayed
	// old token is recognized as "seen" instead of "unknown".
	ReuseWindow time.Duration
	// IPHistoryTTL bounds the per-principal IP history used for risk scoring.
	IPHistoryTTL time.Duration
	// StoreTimeout caps each Redis round trip.
	StoreTimeout time.Duration
}

// LockoutConfig configures failed-login handling. Counters persist on the
// principal record, not in Redis, so lockout survives a cache flush.
type LockoutConfig struct {
	// WarnThreshold triggers a warning notification to the account holder.
	WarnThreshold int
	// MaxAttempts sets lockout when reached.
	MaxAttempts int
	// Duration is the lockout window once MaxAttempts is hit.
	Duration time.Duration
}

// PasswordResetConfig configures the reset flow.
type PasswordResetConfig struct {
	// MaxRequestsPerWindow bounds reset-mail issuance per account.
	MaxRequestsPerWindow int
	Window               time.Duration
}

// RiskConfig configures the login risk scorer. Scores alert, never block.
type RiskConfig struct {
	AlertThreshold float64
	// NormalHoursStart/End define the expected login window (local hour,
	// 0–23). Logins outside it add to the score.
	NormalHoursStart int
	NormalHoursEnd   int
	// RecentCredentialChangeWindow marks a credential change as suspicious
	// context for logins that follow it.
	RecentCredentialChangeWindow time.Duration
	// HighPrivilegePermissions add to the score and trigger login notices.
	HighPrivilegePermissions []Permission
}

// NotifyConfig selects which out-of-band notices are sent.
type NotifyConfig struct {
	LoginNoticeForHighPrivilege bool
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the caller when the
	// buffer is saturated.
	DropIfFull bool
}

// MetricsConfig configures the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod:     token.MethodHS256,
			Issuer:            "clubauth",
			AccessTTL:         15 * time.Minute,
			RefreshTTL:        7 * 24 * time.Hour,
			PasswordResetTTL:  time.Hour,
			PasswordChangeTTL: time.Hour,
		},
		Session: SessionConfig{
			KeyPrefix:    "session",
			TTL:          8 * time.Hour,
			ReuseWindow:  5 * time.Minute,
			IPHistoryTTL: 30 * 24 * time.Hour,
			StoreTimeout: 300 * time.Millisecond,
		},
		Lockout: LockoutConfig{
			WarnThreshold: 3,
			MaxAttempts:   5,
			Duration:      30 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			MaxRequestsPerWindow: 3,
			Window:               time.Hour,
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Risk: RiskConfig{
			AlertThreshold:               0.7,
			NormalHoursStart:             6,
			NormalHoursEnd:               23,
			RecentCredentialChangeWindow: 24 * time.Hour,
		},
		Notify: NotifyConfig{
			LoginNoticeForHighPrivilege: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// mergeDefaults fills zero-valued sections of a caller-supplied config so a
// partial literal stays usable.
func mergeDefaults(cfg Config) Config {
	def := defaultConfig()

	if cfg.Token.SigningMethod == "" {
		cfg.Token.SigningMethod = def.Token.SigningMethod
	}
	if cfg.Token.Issuer == "" {
		cfg.Token.Issuer = def.Token.Issuer
	}
	if cfg.Token.AccessTTL <= 0 {
		cfg.Token.AccessTTL = def.Token.AccessTTL
	}
	if cfg.Token.RefreshTTL <= 0 {
		cfg.Token.RefreshTTL = def.Token.RefreshTTL
	}
	if cfg.Token.PasswordResetTTL <= 0 {
		cfg.Token.PasswordResetTTL = def.Token.PasswordResetTTL
	}
	if cfg.Token.PasswordChangeTTL <= 0 {
		cfg.Token.PasswordChangeTTL = def.Token.PasswordChangeTTL
	}

	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = def.Session.KeyPrefix
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = def.Session.TTL
	}
	if cfg.Session.ReuseWindow <= 0 {
		cfg.Session.ReuseWindow = def.Session.ReuseWindow
	}
	if cfg.Session.IPHistoryTTL <= 0 {
		cfg.Session.IPHistoryTTL = def.Session.IPHistoryTTL
	}
	if cfg.Session.StoreTimeout <= 0 {
		cfg.Session.StoreTimeout = def.Session.StoreTimeout
	}

	if cfg.Lockout.MaxAttempts <= 0 {
		cfg.Lockout = def.Lockout
	}
	if cfg.PasswordReset.MaxRequestsPerWindow <= 0 {
		cfg.PasswordReset = def.PasswordReset
	}
	if cfg.Password.Memory == 0 {
		cfg.Password = def.Password
	}
	if cfg.Risk.AlertThreshold <= 0 {
		cfg.Risk.AlertThreshold = def.Risk.AlertThreshold
	}
	if cfg.Risk.NormalHoursStart == 0 && cfg.Risk.NormalHoursEnd == 0 {
		cfg.Risk.NormalHoursStart = def.Risk.NormalHoursStart
		cfg.Risk.NormalHoursEnd = def.Risk.NormalHoursEnd
	}
	if cfg.Risk.RecentCredentialChangeWindow <= 0 {
		cfg.Risk.RecentCredentialChangeWindow = def.Risk.RecentCredentialChangeWindow
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize <= 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}
	return cfg
}

func validateConfig(cfg Config) error {
	if len(cfg.Token.SigningKey) == 0 {
		return errors.New("token signing key is required")
	}
	if cfg.Token.AccessTTL <= 0 || cfg.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if cfg.Token.AccessTTL >= cfg.Token.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if cfg.Session.ReuseWindow <= 0 {
		return errors.New("session reuse window must be positive")
	}
	if cfg.Lockout.MaxAttempts <= 0 {
		return errors.New("lockout max attempts must be positive")
	}
	if cfg.Lockout.WarnThreshold < 0 || cfg.Lockout.WarnThreshold > cfg.Lockout.MaxAttempts {
		return errors.New("lockout warn threshold must be within max attempts")
	}
	if cfg.Risk.AlertThreshold < 0 || cfg.Risk.AlertThreshold > 1 {
		return errors.New("risk alert threshold must be in [0,1]")
	}
	if cfg.PasswordReset.MaxRequestsPerWindow <= 0 || cfg.PasswordReset.Window <= 0 {
		return errors.New("password reset rate limit must be positive")
	}
	return nil
}
