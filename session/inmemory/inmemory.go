package inmemory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/enroller/session"
)

type Store struct {
	sessions map[string]session.Session
	mu       sync.RWMutex
	now      func() time.Time
}

func NewInMemorySessionStore() *Store {
	return &Store{sessions: make(map[string]session.Session), now: time.Now}
}

// WithClock overrides the time source.
func (store *Store) WithClock(now func() time.Time) *Store {
	store.now = now
	return store
}

func (store *Store) Create(ctx context.Context, subject string, ttl time.Duration) (session.Session, error) {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	now := store.now().UTC()
	sess := session.Session{
		ID:        uuid.NewString(),
		Subject:   strings.TrimSpace(subject),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	store.mu.Lock()
	store.sessions[sess.ID] = sess
	store.mu.Unlock()
	return sess, nil
}

func (store *Store) Get(ctx context.Context, id string) (session.Session, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	sess, ok := store.sessions[id]
	if !ok || sess.Expired(store.now()) {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (store *Store) Delete(ctx context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.sessions, id)
	return nil
}

func (store *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var n int64
	for id, sess := range store.sessions {
		if sess.Expired(now) {
			delete(store.sessions, id)
			n++
		}
	}
	return n, nil
}
