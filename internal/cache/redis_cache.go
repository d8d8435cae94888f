package cache

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// RedisKV keeps collection snapshots in Redis without expiry. Keys survive
// process restarts, which is the whole point.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(addr string, password string, db int) *RedisKV {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisKV{client: client}
}

func (c *RedisKV) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisKV) Close() error {
	return c.client.Close()
}

func (c *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, key, value, 0).Err()
}
