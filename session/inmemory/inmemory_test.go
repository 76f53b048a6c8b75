package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohammad-safakhou/enroller/session"
)

func TestStoreLifecycle(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewInMemorySessionStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	sess, err := store.Create(ctx, " admin ", time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Subject != "admin" || !sess.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected session: %+v", sess)
	}
	got, err := store.Get(ctx, sess.ID)
	if err != nil || got.ID != sess.ID {
		t.Fatalf("Get: %+v %v", got, err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expired session must not be returned, got %v", err)
	}
	n, err := store.PurgeExpired(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpired = %d, %v", n, err)
	}
}

func TestStoreDeleteAndDefaultTTL(t *testing.T) {
	store := NewInMemorySessionStore()
	ctx := context.Background()
	sess, _ := store.Create(ctx, "admin", 0)
	if sess.ExpiresAt.Sub(sess.CreatedAt) != session.DefaultTTL {
		t.Fatalf("expected default ttl, got %s", sess.ExpiresAt.Sub(sess.CreatedAt))
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("deleted session returned: %v", err)
	}
}
