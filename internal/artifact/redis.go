package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces artifact keys.
const RedisKeyPrefix = "fraudlens:artifact:"

// RedisSource serves artifacts stored as Redis strings.
type RedisSource struct {
	client *redis.Client
}

// NewRedisSource connects to Redis and verifies the connection.
func NewRedisSource(addr, password string, db int) (*RedisSource, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSource{client: client}, nil
}

// Fetch implements Source.
func (s *RedisSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	val, err := s.client.Get(ctx, RedisKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Put implements Store. Artifacts never expire.
func (s *RedisSource) Put(ctx context.Context, name string, payload []byte) error {
	return s.client.Set(ctx, RedisKeyPrefix+name, payload, 0).Err()
}

// Close closes the Redis connection.
func (s *RedisSource) Close() error {
	return s.client.Close()
}
