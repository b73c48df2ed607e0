package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore persists sessions in Redis as JSON values under a per-user key.
// A zero TTL keeps sessions until they are cleared.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and returns a session store backed by it.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &redisStore{client: client, ttl: ttl}, nil
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

func (r *redisStore) Get(ctx context.Context, userID int64) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session for user %d: %w", userID, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session for user %d: %w", userID, err)
	}
	return &s, nil
}

func (r *redisStore) Put(ctx context.Context, userID int64, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session for user %d: %w", userID, err)
	}

	if err := r.client.Set(ctx, sessionKey(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session for user %d: %w", userID, err)
	}
	return nil
}

func (r *redisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session for user %d: %w", userID, err)
	}
	return nil
}
