// Package server arma los handlers HTTP del gateway y del listener de administración.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/rpcgate/internal/access"
	"github.com/dropDatabas3/rpcgate/internal/cache"
	mw "github.com/dropDatabas3/rpcgate/internal/http/middlewares"
	"github.com/dropDatabas3/rpcgate/internal/observability/logger"
	"github.com/dropDatabas3/rpcgate/internal/rate"
)

// GatewayDeps contiene las dependencias del handler público.
type GatewayDeps struct {
	// Forwarder es el handler terminal (proxy al nodo).
	Forwarder  http.Handler
	Controller *access.Controller

	Limiter rate.Limiter
	RateMax int

	Cache         cache.Store // nil deshabilita el cache
	CachePolicy   *cache.Policy
	MaxEntryBytes int

	BodyLimit   int64
	CORSOrigins []string
	AccessLog   *logger.AccessLog
}

// NewGateway construye el handler público. Cualquier path y método se
// reenvía al nodo después de pasar el pipeline:
//
//	Recover -> RequestID -> Metrics -> Logging -> CORS ->
//	Extract -> RateLimit -> Access -> Cache -> Forwarder
func NewGateway(deps GatewayDeps) http.Handler {
	ctrl := deps.Controller

	chain := []mw.Middleware{
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithMetrics(ctrl.MethodAllowed),
		mw.WithLogging(deps.AccessLog),
		mw.WithCORS(deps.CORSOrigins),
		mw.WithExtract(deps.BodyLimit),
		mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: deps.Limiter,
			Max:     deps.RateMax,
			Skip:    ctrl.IsPrivileged,
		}),
		mw.WithAccess(ctrl),
		mw.WithCache(mw.CacheConfig{
			Store:         deps.Cache,
			Policy:        deps.CachePolicy,
			MaxEntryBytes: deps.MaxEntryBytes,
		}),
	}

	r := chi.NewRouter()
	for _, m := range chain {
		if m != nil {
			r.Use(m)
		}
	}
	r.Handle("/*", deps.Forwarder)
	return r
}
