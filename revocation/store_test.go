package revocation

import (
	"context"
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
	return NewStore(rdb, ""), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRevokeAndCheck(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	revoked, err := store.IsRevoked(ctx, "tok-1")
	if err != nil || revoked {
		t.Fatalf("fresh id should not be revoked, got revoked=%v err=%v", revoked, err)
	}

	if err := store.Revoke(ctx, "tok-1", time.Hour); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	revoked, err = store.IsRevoked(ctx, "tok-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got revoked=%v err=%v", revoked, err)
	}
}

func TestRevokeNonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	// A token with no remaining validity needs no denylist entry.
	if err := store.Revoke(ctx, "tok-1", 0); err != nil {
		t.Fatalf("Revoke with zero ttl should be a no-op: %v", err)
	}
	revoked, err := store.IsRevoked(ctx, "tok-1")
	if err != nil || revoked {
		t.Fatalf("no entry expected, got revoked=%v err=%v", revoked, err)
	}
}

func TestEntryExpires(t *testing.T) {
	ctx := context.Background()
	store, mr, cleanup := newTestStore(t)
	defer cleanup()

	if err := store.Revoke(ctx, "tok-1", time.Minute); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	revoked, err := store.IsRevoked(ctx, "tok-1")
	if err != nil || revoked {
		t.Fatalf("entry should expire with the token, got revoked=%v err=%v", revoked, err)
	}
}

func TestLift(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	if err := store.Revoke(ctx, "tok-1", time.Hour); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := store.Lift(ctx, "tok-1"); err != nil {
		t.Fatalf("Lift failed: %v", err)
	}
	revoked, err := store.IsRevoked(ctx, "tok-1")
	if err != nil || revoked {
		t.Fatalf("expected lifted, got revoked=%v err=%v", revoked, err)
	}
}
