// Package session tracks admin login sessions independently of the process
// that created them.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session: not found")

// DefaultTTL applies when a caller passes a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// Session is one authenticated admin login.
type Session struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Store persists sessions. Get never returns an expired session.
type Store interface {
	Create(ctx context.Context, subject string, ttl time.Duration) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// StoreType selects a Store implementation.
type StoreType string

const (
	InMemoryStore StoreType = "memory"
	RedisStore    StoreType = "redis"
)
