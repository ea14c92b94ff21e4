// Package reminder tracks the one-shot "end your charge" nudge per session.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store latches reminders in Redis so each open session nags at most once.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns a redis-backed reminder latch. TTL bounds how long the
// latch outlives the session.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(sessionID string) string {
	return fmt.Sprintf("sessions:reminded:%s", sessionID)
}

// MarkReminded returns true exactly once per session.
func (s *Store) MarkReminded(ctx context.Context, sessionID string) (bool, error) {
	return s.client.SetNX(ctx, s.key(sessionID), 1, s.ttl).Result()
}

// Clear drops the latch, used when the session ends.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}
