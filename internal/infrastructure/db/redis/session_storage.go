package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "bugwars:session:"

// SessionStorage keeps a client's session keys as fields of one Redis hash,
// so several named profiles can share a server.
// Key format: bugwars:session:<profile>
type SessionStorage struct {
	client *redis.Client
	key    string
}

// NewSessionStorage returns the storage for profile ("default" when empty).
func NewSessionStorage(client *redis.Client, profile string) *SessionStorage {
	if profile == "" {
		profile = "default"
	}
	return &SessionStorage{client: client, key: sessionKeyPrefix + profile}
}

func (s *SessionStorage) Get(ctx context.Context, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session storage get %s: %w", field, err)
	}
	return v, true, nil
}

func (s *SessionStorage) Set(ctx context.Context, field, value string) error {
	if err := s.client.HSet(ctx, s.key, field, value).Err(); err != nil {
		return fmt.Errorf("session storage set %s: %w", field, err)
	}
	return nil
}

func (s *SessionStorage) Remove(ctx context.Context, field string) error {
	if err := s.client.HDel(ctx, s.key, field).Err(); err != nil {
		return fmt.Errorf("session storage remove %s: %w", field, err)
	}
	return nil
}
