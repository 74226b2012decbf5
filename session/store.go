package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps any underlying Redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrSessionNotFound is returned when no record matches the lookup.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the record exists but is past its
	// activity window.
	ErrSessionExpired = errors.New("session expired")
	// ErrTokenReused is returned by Rotate when the provided refresh token
	// was already rotated away. The caller must treat this as a breach
	// signal, not an ordinary invalid token.
	ErrTokenReused = errors.New("refresh token already used")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusReused   int64 = 1
	rotateStatusExpired  int64 = 2
	rotateStatusRotated  int64 = 3
)

// rotateScript is the crux of reuse detection. It runs as one atomic unit:
// two rotations racing on the same old token cannot both observe used=false.
//
// KEYS[1] old token key, KEYS[2] new token key
// ARGV[1] reuse window ms, ARGV[2] session TTL ms, ARGV[3] new token hash,
// ARGV[4] now unix sec, ARGV[5] inactivity window sec, ARGV[6] key prefix
const rotateScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end

local sess = cjson.decode(data)
if sess.used then
  return {1}
end

local last = sess.la or sess.ca or 0
local now = tonumber(ARGV[4])
local idkey = ARGV[6] .. ":id:" .. sess.sid
local pkey = ARGV[6] .. ":principal:" .. sess.pid .. ":" .. sess.sid

if now - last > tonumber(ARGV[5]) then
  redis.call("DEL", KEYS[1], idkey, pkey)
  return {2}
end

sess.used = true
redis.call("SET", KEYS[1], cjson.encode(sess), "PX", tonumber(ARGV[1]))

sess.used = false
sess.th = ARGV[3]
sess.la = now
local fresh = cjson.encode(sess)
redis.call("SET", KEYS[2], fresh, "PX", tonumber(ARGV[2]))
redis.call("SET", idkey, fresh, "PX", tonumber(ARGV[2]))
redis.call("SET", pkey, sess.sid, "PX", tonumber(ARGV[2]))

return {3, fresh}
`

var rotateLua = redis.NewScript(rotateScript)

// Store is the Redis-backed session store. Immutable after construction.
type Store struct {
	redis        redis.UniversalClient
	prefix       string
	ttl          time.Duration
	reuseWindow  time.Duration
	ipHistoryTTL time.Duration
	timeout      time.Duration
}

// Config holds store tuning. Zero durations fall back to safe defaults.
type Config struct {
	KeyPrefix    string
	TTL          time.Duration
	ReuseWindow  time.Duration
	IPHistoryTTL time.Duration
	// Timeout caps each Redis round trip.
	Timeout time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, cfg Config) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 8 * time.Hour
	}
	if cfg.ReuseWindow <= 0 {
		cfg.ReuseWindow = 5 * time.Minute
	}
	if cfg.IPHistoryTTL <= 0 {
		cfg.IPHistoryTTL = 30 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Millisecond
	}
	return &Store{
		redis:        redisClient,
		prefix:       cfg.KeyPrefix,
		ttl:          cfg.TTL,
		reuseWindow:  cfg.ReuseWindow,
		ipHistoryTTL: cfg.IPHistoryTTL,
		timeout:      cfg.Timeout,
	}
}

// HashToken returns the SHA-256 hex of a refresh token. Raw token values
// never appear in Redis keys.
func HashToken(tokenStr string) string {
	sum := sha256.Sum256([]byte(tokenStr))
	return hex.EncodeToString(sum[:])
}

func (s *Store) tokenKey(tokenHash string) string {
	return s.prefix + ":token:" + tokenHash
}

func (s *Store) idKey(sessionID string) string {
	return s.prefix + ":id:" + sessionID
}

func (s *Store) principalKey(principalID, sessionID string) string {
	return s.prefix + ":principal:" + principalID + ":" + sessionID
}

func (s *Store) ipKey(principalID, ip string) string {
	return s.prefix + ":ip:" + principalID + ":" + ip
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Create writes the three session keys in one transaction and records the
// login IP under its own 30-day TTL. A concurrent reader never observes a
// partial key set.
func (s *Store) Create(ctx context.Context, sess *Session, refreshToken string) error {
	sess.TokenHash = HashToken(refreshToken)
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(sess.TokenHash), data, s.ttl)
		pipe.Set(ctx, s.idKey(sess.SessionID), data, s.ttl)
		pipe.Set(ctx, s.principalKey(sess.PrincipalID, sess.SessionID), sess.SessionID, s.ttl)
		if sess.IP != "" {
			pipe.Set(ctx, s.ipKey(sess.PrincipalID, sess.IP), "1", s.ipHistoryTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// FindByRefreshToken returns the session bound to the token, including
// records already marked used (callers inspect Used for reuse handling).
func (s *Store) FindByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	return s.get(ctx, s.tokenKey(HashToken(refreshToken)))
}

// FindByID returns the session with the given id.
func (s *Store) FindByID(ctx context.Context, sessionID string) (*Session, error) {
	return s.get(ctx, s.idKey(sessionID))
}

func (s *Store) get(ctx context.Context, key string) (*Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	return &sess, nil
}

// Rotate atomically replaces oldToken with newToken on the session it
// belongs to. The old record stays alive briefly with Used=true so a
// replayed token is recognized as "seen"; the fresh record gets a full TTL.
// Returns [ErrTokenReused] when the old token was already rotated away.
func (s *Store) Rotate(ctx context.Context, oldToken, newToken string) (*Session, error) {
	oldHash := HashToken(oldToken)
	newHash := HashToken(newToken)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.tokenKey(oldHash), s.tokenKey(newHash)},
		s.reuseWindow.Milliseconds(),
		s.ttl.Milliseconds(),
		newHash,
		time.Now().Unix(),
		int64(s.ttl.Seconds()),
		s.prefix,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrSessionNotFound
	case rotateStatusReused:
		return nil, ErrTokenReused
	case rotateStatusExpired:
		return nil, ErrSessionExpired
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing rotated session payload", ErrRedisUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid rotated session payload", ErrRedisUnavailable)
		}
		var sess Session
		if err := json.Unmarshal(blob, &sess); err != nil {
			return nil, fmt.Errorf("corrupt session record: %w", err)
		}
		return &sess, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// Terminate deletes every key belonging to the session. Idempotent: a
// missing session is not an error.
func (s *Store) Terminate(ctx context.Context, sessionID string) error {
	sess, err := s.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx,
			s.tokenKey(sess.TokenHash),
			s.idKey(sessionID),
			s.principalKey(sess.PrincipalID, sessionID),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAll deletes every session of the principal. Used on detected breach
// and on credential change. IP history is left intact: it is a risk signal,
// not an authorization input.
func (s *Store) RevokeAll(ctx context.Context, principalID string) error {
	ids, err := s.ActiveSessionIDs(ctx, principalID)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(ids)*3)
	for _, id := range ids {
		sess, err := s.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				keys = append(keys, s.principalKey(principalID, id))
				continue
			}
			return err
		}
		keys = append(keys,
			s.tokenKey(sess.TokenHash),
			s.idKey(id),
			s.principalKey(principalID, id),
		)
	}
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs enumerates the principal's index keys.
func (s *Store) ActiveSessionIDs(ctx context.Context, principalID string) ([]string, error) {
	pattern := s.prefix + ":principal:" + principalID + ":*"
	prefixLen := len(s.prefix + ":principal:" + principalID + ":")

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		cursor uint64
		ids    []string
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for _, key := range keys {
			if len(key) > prefixLen {
				ids = append(ids, key[prefixLen:])
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

// ActiveSessions returns the full records for the principal's sessions.
func (s *Store) ActiveSessions(ctx context.Context, principalID string) ([]*Session, error) {
	ids, err := s.ActiveSessionIDs(ctx, principalID)
	if err != nil {
		return nil, err
	}

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// HasLoginFromIP is an O(1) existence check against the IP-history key.
// Callers treat an error as "unknown IP": the risk scorer fails open so
// the login path stays available when Redis is degraded.
func (s *Store) HasLoginFromIP(ctx context.Context, principalID, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.redis.Exists(ctx, s.ipKey(principalID, ip)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
