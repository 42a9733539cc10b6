package middlewares

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/rpcgate/internal/metrics"
)

// otherMethod agrupa los métodos fuera de la allow-list para acotar la
// cardinalidad de los labels.
const otherMethod = "other"

// WithMetrics instrumenta requests con métricas Prometheus por método RPC.
// known decide qué métodos tienen label propio.
func WithMetrics(known func(method string) bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			method := otherMethod
			if c := GetInfo(r.Context()).Call; c != nil && known != nil && known(c.Method) {
				method = c.Method
			}
			metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
			metrics.RequestsTotal.WithLabelValues(method, strconv.Itoa(rec.code())).Inc()
		})
	}
}
