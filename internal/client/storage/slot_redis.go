package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSlot keeps the value under prefix:key in Redis. Useful when several
// console processes on one host must share the snapshot.
type RedisSlot struct {
	client redis.UniversalClient
	key    string
}

// NewRedisSlot wraps an existing client.
func NewRedisSlot(client redis.UniversalClient, prefix, key string) *RedisSlot {
	if prefix != "" {
		key = prefix + ":" + key
	}
	return &RedisSlot{client: client, key: key}
}

// DialRedis connects to addr and pings it.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", ErrStorageUnavailable, err)
	}
	return client, nil
}

// Key returns the full Redis key.
func (s *RedisSlot) Key() string { return s.key }

func (s *RedisSlot) Get(ctx context.Context) (string, error) {
	v, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSlotEmpty
		}
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return v, nil
}

func (s *RedisSlot) Set(ctx context.Context, value string) error {
	if err := s.client.Set(ctx, s.key, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *RedisSlot) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
