package middlewares

import (
	"math"
	"net/http"
	"strconv"
	"time"

	httperrors "github.com/dropDatabas3/rpcgate/internal/http/errors"
	"github.com/dropDatabas3/rpcgate/internal/observability/logger"
	"github.com/dropDatabas3/rpcgate/internal/rate"
	"github.com/dropDatabas3/rpcgate/internal/rpc"
)

// RateLimitConfig configura el middleware de rate limiting.
type RateLimitConfig struct {
	Limiter rate.Limiter
	// Max se informa en X-RateLimit-Limit.
	Max int
	// Skip indica si una key queda fuera del límite (la key privilegiada).
	Skip func(key string) bool
}

// WithRateLimit limita por API key en ventanas fijas. Los requests sin key
// comparten el bucket "undefined". Si el limiter falla, el request pasa.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			call := rpc.CallFrom(r.Context())
			key := rate.UndefinedKey
			if call.HasKey() {
				if cfg.Skip != nil && cfg.Skip(call.Key) {
					next.ServeHTTP(w, r)
					return
				}
				key = call.Key
			}

			res, err := cfg.Limiter.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable, allowing request", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if res.WindowTTL > 0 {
				resetAt := time.Now().Add(res.WindowTTL)
				h.Set("X-RateLimit-Reset", strconv.FormatInt(int64(math.Ceil(float64(resetAt.UnixMilli())/1000)), 10))
			}

			if !res.Allowed {
				h.Set("Retry-After", strconv.Itoa(ceilSeconds(res.RetryAfter)))
				reject(w, r, httperrors.ErrTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ceilSeconds redondea hacia arriba; nunca retorna menos de 1.
func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
