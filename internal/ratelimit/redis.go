package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares windows between processes. It implements Counter so
// the open-or-increment step is a single Redis transaction.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreFromClient(client), nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "skilldash:ratelimit:"}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error) {
	k := s.prefix + key
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		// NX: only the request that opens the window sets its expiry.
		pipe.ExpireNX(ctx, k, window)
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Window{}, fmt.Errorf("redis incr %s: %w", k, err)
	}
	ttl := pttl.Val()
	if ttl < 0 {
		ttl = window
	}
	return Window{Count: int(incr.Val()), ResetAt: now.Add(ttl)}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Window, bool, error) {
	k := s.prefix + key
	count, err := s.client.Get(ctx, k).Int()
	if err == redis.Nil {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, fmt.Errorf("redis get %s: %w", k, err)
	}
	ttl, err := s.client.PTTL(ctx, k).Result()
	if err != nil {
		return Window{}, false, fmt.Errorf("redis pttl %s: %w", k, err)
	}
	return Window{Count: count, ResetAt: time.Now().Add(ttl)}, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, w Window, ttl time.Duration) error {
	k := s.prefix + key
	if err := s.client.Set(ctx, k, w.Count, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.client.Close() }
