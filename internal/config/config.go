// Package config loads daemon configuration from env and an optional .env
// file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds clubauthd configuration loaded from the environment.
type Config struct {
	// ListenAddr is the HTTP listen address (e.g. :8443).
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	// RedisAddr is the Redis host:port backing sessions and revocation.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is optional.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB selects the logical database.
	RedisDB int `mapstructure:"REDIS_DB"`

	// TokenSigningKey is the HS256 secret. Required.
	TokenSigningKey string `mapstructure:"TOKEN_SIGNING_KEY"`
	// TokenIssuer is the iss claim on every token.
	TokenIssuer string `mapstructure:"TOKEN_ISSUER"`
	// AccessTTL and RefreshTTL are Go duration strings (e.g. "15m", "168h").
	AccessTTL  string `mapstructure:"ACCESS_TTL"`
	RefreshTTL string `mapstructure:"REFRESH_TTL"`

	// ResendAPIKey enables the Resend email notifier when set.
	ResendAPIKey string `mapstructure:"RESEND_API_KEY"`
	FromEmail    string `mapstructure:"NOTIFY_FROM_EMAIL"`
	FromName     string `mapstructure:"NOTIFY_FROM_NAME"`
	// ResetURL is the page that consumes password-reset tokens.
	ResetURL string `mapstructure:"PASSWORD_RESET_URL"`

	// InsecureCookies drops the Secure cookie attribute for local HTTP
	// development.
	InsecureCookies bool `mapstructure:"INSECURE_COOKIES"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8443")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TOKEN_ISSUER", "clubauth")
	v.SetDefault("ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "168h")
	v.SetDefault("NOTIFY_FROM_EMAIL", "")
	v.SetDefault("NOTIFY_FROM_NAME", "ClubSuite Security")
	v.SetDefault("PASSWORD_RESET_URL", "")
	v.SetDefault("INSECURE_COOKIES", false)
	v.SetDefault("APP_ENV", "development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.TokenSigningKey == "" {
		return nil, errors.New("config: TOKEN_SIGNING_KEY must be set")
	}
	if cfg.InsecureCookies && cfg.Env == "production" {
		return nil, errors.New("config: INSECURE_COOKIES must not be true when APP_ENV=production")
	}

	return &cfg, nil
}

// AccessTokenTTL parses AccessTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTokenTTL() time.Duration {
	d, err := time.ParseDuration(c.AccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTokenTTL parses RefreshTTL. Returns 168h if unset or invalid.
func (c *Config) RefreshTokenTTL() time.Duration {
	d, err := time.ParseDuration(c.RefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}
