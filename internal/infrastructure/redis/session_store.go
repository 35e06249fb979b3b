// Package redis keeps operator session state in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "verification:session"

// DefaultTTL bounds how long an idle pointer survives
const DefaultTTL = 12 * time.Hour

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client and pings it
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// SessionStore implements domain.SessionStore. Each pointer lives under its
// own key and its TTL is refreshed on every read or write.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(planID, staffCode string) string {
	return keyPrefix + ":" + planID + ":" + staffCode
}

// GetPointer returns the stored sequence number and whether one exists
func (s *SessionStore) GetPointer(ctx context.Context, planID, staffCode string) (int, bool, error) {
	key := sessionKey(planID, staffCode)
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read session pointer: %w", err)
	}

	seq, err := strconv.Atoi(val)
	if err != nil {
		// Unreadable values are dropped rather than served.
		s.client.Del(ctx, key)
		return 0, false, nil
	}
	s.client.Expire(ctx, key, s.ttl)
	return seq, true, nil
}

func (s *SessionStore) SetPointer(ctx context.Context, planID, staffCode string, sequenceNo int) error {
	if err := s.client.Set(ctx, sessionKey(planID, staffCode), strconv.Itoa(sequenceNo), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session pointer: %w", err)
	}
	return nil
}

func (s *SessionStore) ClearPointer(ctx context.Context, planID, staffCode string) error {
	if err := s.client.Del(ctx, sessionKey(planID, staffCode)).Err(); err != nil {
		return fmt.Errorf("failed to clear session pointer: %w", err)
	}
	return nil
}

// HealthCheck pings the server
func (s *SessionStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
