package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "webclient:token:"

// RedisScope stores the credential under a single Redis key, letting several
// processes on different hosts share one remembered session.
type RedisScope struct {
	name   string
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisScope creates a Redis-backed scope. A zero ttl keeps the key
// until it is deleted.
func NewRedisScope(name string, client *redis.Client, key string, ttl time.Duration) *RedisScope {
	return &RedisScope{
		name:   name,
		client: client,
		key:    keyPrefix + key,
		ttl:    ttl,
	}
}

func (s *RedisScope) Name() string { return s.name }

// Key returns the full Redis key.
func (s *RedisScope) Key() string { return s.key }

func (s *RedisScope) Load(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis get %s scope: %w", s.name, err)
	}
	return token, nil
}

func (s *RedisScope) Save(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key, token, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s scope: %w", s.name, err)
	}
	return nil
}

func (s *RedisScope) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del %s scope: %w", s.name, err)
	}
	return nil
}
