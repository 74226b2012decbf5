package clubauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/clubsuite/clubauth/notify"
	"github.com/clubsuite/clubauth/password"
)

type notifyRecorder struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (r *notifyRecorder) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *notifyRecorder) byEvent(event notify.Event) []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Message
	for _, msg := range r.messages {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

func testEngineConfig() Config {
	cfg := defaultConfig()
	cfg.Token.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *MemoryPrincipalStore, *notifyRecorder, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := NewMemoryPrincipalStore()
	recorder := &notifyRecorder{}

	engine, err := New().
		WithConfig(testEngineConfig()).
		WithRedis(rdb).
		WithPrincipalStore(store).
		WithNotifier(recorder).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	return engine, store, recorder, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func seedPrincipal(t *testing.T, engine *Engine, store *MemoryPrincipalStore, id, email, credential string) *Principal {
	t.Helper()

	hash, err := engine.hasher.Hash(credential)
	if err != nil {
		t.Fatalf("seed hash failed: %v", err)
	}
	p := &Principal{
		ID:             id,
		TenantID:       "club-1",
		Email:          email,
		CredentialHash: hash,
		Status:         PrincipalActive,
		Groups: []Group{
			{Name: "members", Permissions: []Permission{"bookings:read", "bookings:write"}},
		},
	}
	store.Put(p)
	return p
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	engine, store, _, cleanup := newTestEngine(t)
	defer cleanup()

	seedPrincipal(t, engine, store, "p1", "anna@club.test", "member pass 1")

	// A prior failure leaves a counter behind; success must clear it.
	if _, err := engine.Login(ctx, "anna@club.test", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	result, err := engine.Login(ctx, "anna@club.test", "member pass 1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("missing tokens in result")
	}
	if result.SessionID == "" {
		t.Fatalf("missing session id")
	}
	if result.RequiresCredentialChange {
		t.Fatalf("unexpected credential-change flag")
	}
	if result.Principal.Email != "anna@club.test" {
		t.Fatalf("wrong principal summary: %+v", result.Principal)
	}

	stored, err := store.GetByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.FailedAttempts != 0 {
		t.Fatalf("failed-attempt counter not reset, got %d", stored.FailedAttempts)
	}

	sessions, err := engine.ListSessions(ctx, "p1", result.SessionID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || !sessions[0].Current {
		t.Fatalf("expected one current session, got %+v", sessions)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	ctx := context.Background()
	engine, _, recorder, cleanup := newTestEngine(t)
	defer cleanup()

	if _, err := engine.Login(ctx, "ghost@club.test", "whatever 1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(recorder.messages) != 0 {
		t.Fatalf("unknown account must not trigger notifications")
	}
}

func TestLoginStatusErrors(t *testing.T) {
	ctx := context.Background()
	engine, store, _, cleanup := newTestEngine(t)
	defer cleanup()

	cases := []struct {
		status PrincipalStatus
		want   error
	}{
		{PrincipalSuspended, ErrAccountSuspended},
		{PrincipalTerminated, ErrAccountTerminated},
		{PrincipalInactive, ErrAccountInactive},
	}

	for i, tc := range cases {
		id := "p-status-" + string(rune('a'+i))
		p := seedPrincipal(t, engine, store, id, id+"@club.test", "member pass 1")
		p.Status = tc.status
		store.Put(p)

		if _, err := engine.Login(ctx, id+"@club.test", "member pass 1"); !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}

		// Status wins over the credential outcome and never touches the counter.
		if _, err := engine.Login(ctx, id+"@club.test", "wrong"); !errors.Is(err, tc.want) {
			t.Fatalf("status %d with bad credential: expected %v, got %v", tc.status, tc.want, err)
		}
		stored, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if stored.FailedAttempts != 0 {
			t.Fatalf("status %d: counter moved to %d", tc.status, stored.FailedAttempts)
		}
	}
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	ctx := context.Background()
	engine, store, recorder, cleanup := newTestEngine(t)
	defer cleanup()

	seedPrincipal(t, engine, store, "p1", "anna@club.test", "member pass 1")

	for i := 1; i <= 4; i++ {
		if _, err := engine.Login(ctx, "anna@club.test", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	// Warning fires at the third failure.
	if warnings := recorder.byEvent(notify.EventLockoutWarning); len(warnings) != 1 {
		t.Fatalf("expected one lockout warning, got %d", len(warnings))
	}

	// Fifth failure sets the lockout.
	if _, err := engine.Login(ctx, "anna@club.test", "wrong"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("fifth failure: expected ErrAccountLocked, got %v", err)
	}
	if locked := recorder.byEvent(notify.EventAccountLocked); len(locked) != 1 {
		t.Fatalf("expected one locked notification, got %d", len(locked))
	}

	// A sixth attempt with the CORRECT credential still fails while locked.
	if _, err := engine.Login(ctx, "anna@club.test", "member pass 1"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked login: expected ErrAccountLocked, got %v", err)
	}

	stored, _ := store.GetByID(ctx, "p1")
	if stored.FailedAttempts != 5 {
		t.Fatalf("expected 5 recorded failures, got %d", stored.FailedAttempts)
	}
	if !stored.LockedUntil.After(time.Now()) {
		t.Fatalf("lockout window not set")
	}
}

func TestLockoutExpires(t *testing.T) {
	ctx := context.Background()
	engine, store, _, cleanup := newTestEngine(t)
	defer cleanup()

	p := seedPrincipal(t, engine, store, "p1", "anna@club.test", "member pass 1")
	p.FailedAttempts = 5
	p.LockedUntil = time.Now().Add(-time.Minute)
	store.Put(p)

	result, err := engine.Login(ctx, "anna@club.test", "member pass 1")
	if err != nil {
		t.Fatalf("login after lockout expiry failed: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatalf("missing access token")
	}

	stored, _ := store.GetByID(ctx, "p1")
	if stored.FailedAttempts != 0 || !stored.LockedUntil.IsZero() {
		t.Fatalf("lockout state not cleared: %+v", stored)
	}
}

func TestLoginMustChangeCredential(t *testing.T) {
	ctx := context.Background()
	engine, store, _, cleanup := newTestEngine(t)
	defer cleanup()

	p := seedPrincipal(t, engine, store, "p1", "anna@club.test", "member pass 1")
	p.MustChangeCredential = true
	store.Put(p)

	result, err := engine.Login(ctx, "anna@club.test", "member pass 1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.RequiresCredentialChange {
		t.Fatalf("expected credential-change flag")
	}
	if result.ChangeToken == "" {
		t.Fatalf("missing change token")
	}
	if result.AccessToken != "" || result.RefreshToken != "" || result.SessionID != "" {
		t.Fatalf("flagged principal must not receive a session: %+v", result)
	}

	sessions, err := engine.ListSessions(ctx, "p1", "")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("no session should exist, got %d", len(sessions))
	}
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	engine, store, _, cleanup := newTestEngine(t)
	defer cleanup()

	seedPrincipal(t, engine, store, "p1", "anna@club.test", "member pass 1")
	login, err := engine.Login(ctx, "anna@club.test", "member pass 1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	pair, err := engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if pair.RefreshToken == login.RefreshToken {
		t.Fatalf("refresh token not rotated")
	}
	if pair.AccessToken == "" {
		t.Fatalf("missing access token")
	}

	// The session id is stable across rotation.
	res, err := engine.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.SessionID != login.SessionID {
		t.Fatalf("session id changed across rotation")
	}
}

func TestRefreshReuseIsBreach(t *testing.T) {
	ctx := context.Background()
	engine, store, recorder, cleanup := newTestEngine(t)
	defer cleanup()

	seedPrincipal(t, engine, store, "p1", "anna@club.test", "member pass 1")
	login, err := engine.Login(ctx, "anna@club.test", "member pass 1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	pair, err := engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Replay of the rotated-away token.
	if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrSecurityBreach) {
		t.Fatalf("expected ErrSecurityBreach, got %v", err)
	}

	// Every session is gone, including the one holding the fresh token.
	sessions, err := engine.ListSessions(ctx, "p1", "")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected zero sessions after breach, got %d", len(sessions))
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatalf("fresh token must be dead after breach")
	}

	if alerts := recorder.byEvent(notify.EventSecurityAlert); len(alerts) == 0 {
		t.Fatalf("expected a security alert")
	}
}

func TestRefreshRejectsWrongTokenType(t *testing.T) {
	ctx := context.Background()
	engine, store, _, cleanup := newTestEngine(t)
	defer cleanup()

	seedPrincipal(t, engine, store, "p1", "anna@club.test", "member pass 1")
	login, err := engine.Login(ctx, "anna@club.test", "member pass 1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, login.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access token, got %v", err)
	}
}

func TestValidateFreshPermissions(t *testing.T) {
	ctx := context.Background()
	engine, store, _, cleanup := newTestEngine(t)
	defer cleanup()

	seedPrincipal(t, engine, store, "p1", "anna@club.test", "member pass 1")
	login, err := engine.Login(ctx, "anna@club.test", "member pass 1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Group change after issuance must be visible on the next validation,
	// not at the next token refresh.
	p, _ := store.GetByID(ctx, "p1")
	p.Groups = []Group{{Name: "front-desk", Permissions: []Permission{"courts:read"}}}
	store.Put(p)

	res, err := engine.Validate(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if len(res.Permissions) != 1 || res.Permissions[0] != "courts:read" {
		t.Fatalf("stale permissions served: %v", res.Permissions)
	}
	if res.HasPermission("bookings:write") {
		t.Fatalf("revoked permission still granted")
	}
}

func TestValidateRejectsNonActive(t *testing.T) {
	ctx := context.Background()
	engine, store, _, cleanup := newTestEngine(t)
	defer cleanup()

	seedPrincipal(t, engine, store, "p1", "anna@club.test", "member pass 1")
	login, err := engine.Login(ctx, "anna@club.test", "member pass 1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	p, _ := store.GetByID(ctx, "p1")
	p.Status = PrincipalSuspended
	store.Put(p)

	if _, err := engine.Validate(ctx, login.AccessToken); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	engine, store, _, cleanup := newTestEngine(t)
	defer cleanup()

	seedPrincipal(t, engine, store, "p1", "anna@club.test", "member pass 1")
	login, err := engine.Login(ctx, "anna@club.test", "member pass 1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := engine.Logout(ctx, login.AccessToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	// The access token is denylisted and the session is gone.
	if _, err := engine.Validate(ctx, login.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
	sessions, err := engine.ListSessions(ctx, "p1", "")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("session survived logout")
	}
	if _, err := engine.Refresh(ctx, login.RefreshToken); err == nil {
		t.Fatalf("refresh token must be dead after logout")
	}

	// Logout is idempotent.
	if err := engine.Logout(ctx, login.AccessToken); err != nil {
		t.Fatalf("second logout should succeed: %v", err)
	}
}

func TestTerminateSessionOwnership(t *testing.T) {
	ctx := context.Background()
	engine, store, _, cleanup := newTestEngine(t)
	defer cleanup()

	seedPrincipal(t, engine, store, "p1", "anna@club.test", "member pass 1")
	seedPrincipal(t, engine, store, "p2", "ben@club.test", "member pass 2")

	login, err := engine.Login(ctx, "anna@club.test", "member pass 1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := engine.TerminateSession(ctx, "p2", login.SessionID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for foreign session, got %v", err)
	}
	if err := engine.TerminateSession(ctx, "p1", login.SessionID); err != nil {
		t.Fatalf("TerminateSession failed: %v", err)
	}
	if err := engine.TerminateSession(ctx, "p1", login.SessionID); err != nil {
		t.Fatalf("terminating a gone session should succeed: %v", err)
	}
}
