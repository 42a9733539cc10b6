package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore implementa Store usando Redis.
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis crea un store sobre un cliente Redis ya conectado.
func NewRedis(client *redis.Client, prefix string) *redisStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (c *redisStore) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *redisStore) Get(ctx context.Context, key string) (Entry, error) {
	pipe := c.client.Pipeline()
	get := pipe.Get(ctx, c.key(key))
	pttl := pipe.PTTL(ctx, c.key(key))
	_, err := pipe.Exec(ctx)
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}

	body, err := get.Bytes()
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Body: body}
	if ttl := pttl.Val(); ttl > 0 {
		e.ExpiresAt = time.Now().Add(ttl)
	}
	return e, nil
}

func (c *redisStore) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.key(key), body, ttl).Err()
}

func (c *redisStore) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *redisStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close no cierra el cliente: lo comparte el rate limiter y lo cierra quien lo abrió.
func (c *redisStore) Close() error {
	return nil
}

func (c *redisStore) Stats(ctx context.Context) (Stats, error) {
	// Info memory
	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return Stats{}, err
	}

	var usedMemory string
	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, "used_memory_human:") {
			usedMemory = strings.TrimPrefix(line, "used_memory_human:")
			break
		}
	}

	// DB Size (keys in current DB)
	keys, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{}, err
	}

	statsInfo, _ := c.client.Info(ctx, "stats").Result()
	var hits, misses int64
	for _, line := range strings.Split(statsInfo, "\r\n") {
		if strings.HasPrefix(line, "keyspace_hits:") {
			fmt.Sscanf(strings.TrimPrefix(line, "keyspace_hits:"), "%d", &hits)
		}
		if strings.HasPrefix(line, "keyspace_misses:") {
			fmt.Sscanf(strings.TrimPrefix(line, "keyspace_misses:"), "%d", &misses)
		}
	}

	return Stats{
		Driver:     "redis",
		Keys:       keys,
		UsedMemory: usedMemory,
		Hits:       hits,
		Misses:     misses,
	}, nil
}
