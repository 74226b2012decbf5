package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, Config{
		TTL:         time.Hour,
		ReuseWindow: 5 * time.Minute,
	})

	return store, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func makeSession(principalID, sessionID string) *Session {
	now := time.Now().Unix()
	return &Session{
		SessionID:      sessionID,
		PrincipalID:    principalID,
		IP:             "10.0.0.1",
		UserAgent:      "test-agent",
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	sess := makeSession("p1", "sid-1")
	if err := store.Create(ctx, sess, "refresh-t0"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	byToken, err := store.FindByRefreshToken(ctx, "refresh-t0")
	if err != nil {
		t.Fatalf("FindByRefreshToken failed: %v", err)
	}
	if byToken.SessionID != "sid-1" || byToken.PrincipalID != "p1" {
		t.Fatalf("wrong session: %+v", byToken)
	}
	if byToken.TokenHash != HashToken("refresh-t0") {
		t.Fatalf("token hash not recorded")
	}

	byID, err := store.FindByID(ctx, "sid-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if byID.SessionID != "sid-1" {
		t.Fatalf("wrong session by id: %+v", byID)
	}
}

func TestFindMissing(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	if _, err := store.FindByID(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.FindByRefreshToken(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRotate(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	if err := store.Create(ctx, makeSession("p1", "sid-1"), "t0"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rotated, err := store.Rotate(ctx, "t0", "t1")
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if rotated.SessionID != "sid-1" {
		t.Fatalf("session id changed on rotation: %q", rotated.SessionID)
	}
	if rotated.TokenHash != HashToken("t1") {
		t.Fatalf("rotated record carries old hash")
	}
	if rotated.Used {
		t.Fatalf("fresh record marked used")
	}

	fresh, err := store.FindByRefreshToken(ctx, "t1")
	if err != nil {
		t.Fatalf("new token not bound: %v", err)
	}
	if fresh.SessionID != "sid-1" {
		t.Fatalf("new token bound to wrong session")
	}
}

func TestRotateReuseDetection(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	if err := store.Create(ctx, makeSession("p1", "sid-1"), "t0"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Rotate(ctx, "t0", "t1"); err != nil {
		t.Fatalf("first rotation failed: %v", err)
	}

	if _, err := store.Rotate(ctx, "t0", "t2"); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused, got %v", err)
	}

	// The old record stays addressable inside the reuse window and stays
	// flagged used.
	old, err := store.FindByRefreshToken(ctx, "t0")
	if err != nil {
		t.Fatalf("used record should remain during reuse window: %v", err)
	}
	if !old.Used {
		t.Fatalf("old record not marked used")
	}
}

func TestRotateUnknownToken(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	if _, err := store.Rotate(ctx, "never-issued", "t1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRotateExpiredByInactivity(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	sess := makeSession("p1", "sid-1")
	sess.CreatedAt = time.Now().Add(-3 * time.Hour).Unix()
	sess.LastActivityAt = sess.CreatedAt
	if err := store.Create(ctx, sess, "t0"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := store.Rotate(ctx, "t0", "t1"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	// Expiry cleanup removes the id key too.
	if _, err := store.FindByID(ctx, "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired session still readable: %v", err)
	}
}

func TestRotateRaceSingleWinner(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	if err := store.Create(ctx, makeSession("p1", "sid-race"), "t0"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		next := "next-" + string(rune('a'+i))
		go func(tok string) {
			defer wg.Done()
			<-start
			_, err := store.Rotate(ctx, "t0", tok)
			results <- err
		}(next)
	}

	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrTokenReused):
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}

func TestTerminate(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	if err := store.Create(ctx, makeSession("p1", "sid-1"), "t0"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Terminate(ctx, "sid-1"); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	if _, err := store.FindByID(ctx, "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session survived terminate")
	}
	if _, err := store.FindByRefreshToken(ctx, "t0"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("token key survived terminate")
	}

	// Idempotent.
	if err := store.Terminate(ctx, "sid-1"); err != nil {
		t.Fatalf("second terminate should be a no-op: %v", err)
	}
}

func TestRevokeAll(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	for i, tok := range []string{"t0", "t1", "t2"} {
		sess := makeSession("p1", "sid-"+string(rune('a'+i)))
		if err := store.Create(ctx, sess, tok); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := store.Create(ctx, makeSession("p2", "sid-other"), "t-other"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.RevokeAll(ctx, "p1"); err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}

	ids, err := store.ActiveSessionIDs(ctx, "p1")
	if err != nil {
		t.Fatalf("ActiveSessionIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected zero sessions after RevokeAll, got %v", ids)
	}

	// Another principal's sessions are untouched.
	if _, err := store.FindByID(ctx, "sid-other"); err != nil {
		t.Fatalf("unrelated session removed: %v", err)
	}

	// IP history survives revocation.
	known, err := store.HasLoginFromIP(ctx, "p1", "10.0.0.1")
	if err != nil {
		t.Fatalf("HasLoginFromIP failed: %v", err)
	}
	if !known {
		t.Fatalf("IP history removed by RevokeAll")
	}
}

func TestActiveSessions(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	if err := store.Create(ctx, makeSession("p1", "sid-a"), "t0"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, makeSession("p1", "sid-b"), "t1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sessions, err := store.ActiveSessions(ctx, "p1")
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
}

func TestHasLoginFromIP(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	if err := store.Create(ctx, makeSession("p1", "sid-1"), "t0"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	known, err := store.HasLoginFromIP(ctx, "p1", "10.0.0.1")
	if err != nil || !known {
		t.Fatalf("expected known IP, got known=%v err=%v", known, err)
	}

	known, err = store.HasLoginFromIP(ctx, "p1", "192.168.9.9")
	if err != nil || known {
		t.Fatalf("expected unknown IP, got known=%v err=%v", known, err)
	}

	// Empty IP never matches and never errors.
	known, err = store.HasLoginFromIP(ctx, "p1", "")
	if err != nil || known {
		t.Fatalf("empty IP should report unknown, got known=%v err=%v", known, err)
	}
}

func TestHashTokenStable(t *testing.T) {
	a := HashToken("some-token")
	b := HashToken("some-token")
	if a != b {
		t.Fatalf("hash not deterministic")
	}
	if a == HashToken("other-token") {
		t.Fatalf("distinct tokens collide")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex, got %d chars", len(a))
	}
}
