package middlewares

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dropDatabas3/rpcgate/internal/observability/logger"
)

// WithRequestID genera o propaga un Request ID único para cada request.
// Si el cliente envía X-Request-ID, lo usa. Si no, genera uno nuevo.
// También inyecta el RequestInfo y un logger scoped con request_id.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if rid == "" || len(rid) > 128 {
				rid = uuid.NewString()
			}

			w.Header().Set("X-Request-ID", rid)

			ctx := withInfo(r.Context(), &RequestInfo{ID: rid})
			ctx = logger.ToContext(ctx, logger.L().With(
				logger.RequestID(rid),
				logger.ClientIP(clientIP(r)),
			))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
