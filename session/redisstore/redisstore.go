// Package redisstore keeps sessions in redis so every replica sees the same
// logins.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/enroller/session"
)

const keyPrefix = "session:"

type Store struct {
	rdb *redis.Client
	now func() time.Time
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, now: time.Now}
}

// WithClock overrides the time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Create(ctx context.Context, subject string, ttl time.Duration) (session.Session, error) {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	now := s.now().UTC()
	sess := session.Session{
		ID:        uuid.NewString(),
		Subject:   strings.TrimSpace(subject),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return session.Session{}, err
	}
	if err := s.rdb.Set(ctx, keyPrefix+sess.ID, raw, ttl).Err(); err != nil {
		return session.Session{}, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

func (s *Store) Get(ctx context.Context, id string) (session.Session, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("load session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return session.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if sess.Expired(s.now()) {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, keyPrefix+id).Err()
}

// PurgeExpired removes sessions whose recorded expiry has passed. Keys normally
// expire on their own; this catches entries whose TTL was lost or extended.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return n, err
		}
		var sess session.Session
		if err := json.Unmarshal(raw, &sess); err != nil || sess.Expired(now) {
			deleted, err := s.rdb.Del(ctx, key).Result()
			if err != nil {
				return n, err
			}
			n += deleted
		}
	}
	return n, iter.Err()
}
