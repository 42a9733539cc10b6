package rate

import (
	"context"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// UndefinedKey agrupa los requests sin API key extraíble.
const UndefinedKey = "undefined"

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter: fixed window (INCR + PEXPIRE en el primer hit).
// La ventana arranca con el primer request y vence Window después.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	redisKey := l.Prefix + strings.ReplaceAll(key, " ", "_")

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	ttl := pttl.Val()
	// set expiry on first hit (o si quedó una key sin TTL)
	if incr.Val() == 1 || ttl < 0 {
		if err := l.Client.PExpire(ctx, redisKey, l.Window).Err(); err != nil {
			return Result{}, err
		}
		ttl = l.Window
	}

	return result(incr.Val(), l.Max, ttl, l.Window), nil
}

func result(hits, max int64, ttl, window time.Duration) Result {
	allowed := hits <= max
	remaining := max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !allowed {
		// Retry after: resto de la ventana
		res.RetryAfter = ttl
		if res.RetryAfter <= 0 {
			res.RetryAfter = window
		}
	}
	return res
}
