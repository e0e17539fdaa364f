package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of the go-redis client used by RedisStore.
type redisClient interface {
	HSetNX(ctx context.Context, key, field string, value interface{}) *redis.BoolCmd
	HExists(ctx context.Context, key, field string) *redis.BoolCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	Close() error
}

// RedisOptions configures the shared Redis Seen-Set.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Timeout  time.Duration
}

// RedisStore keeps the Seen-Set in a Redis hash of id -> RFC3339 first-seen time, so
// several instances can share it.
type RedisStore struct {
	client  redisClient
	key     string
	timeout time.Duration
	now     func() time.Time
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Key == "" {
		return nil, fmt.Errorf("redis key is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, unavailable(fmt.Sprintf("connect redis at %s", opts.Addr), err)
	}
	return newRedisStore(client, opts.Key, opts.Timeout), nil
}

func newRedisStore(client redisClient, key string, timeout time.Duration) *RedisStore {
	return &RedisStore{client: client, key: key, timeout: timeout, now: time.Now}
}

func (s *RedisStore) HasSeen(ctx context.Context, id string) (bool, error) {
	if err := validID(id); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	seen, err := s.client.HExists(ctx, s.key, id).Result()
	if err != nil {
		return false, unavailable("redis hexists", err)
	}
	return seen, nil
}

func (s *RedisStore) MarkSeen(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// HSETNX leaves an existing first-seen time untouched.
	if err := s.client.HSetNX(ctx, s.key, id, s.now().UTC().Format(time.RFC3339)).Err(); err != nil {
		return unavailable("redis hsetnx", err)
	}
	return nil
}

func (s *RedisStore) FirstSeen(ctx context.Context, id string) (time.Time, bool, error) {
	if err := validID(id); err != nil {
		return time.Time{}, false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.HGet(ctx, s.key, id).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, unavailable("redis hget", err)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("parse first-seen time for %s: %w", id, err)
	}
	return ts, true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
