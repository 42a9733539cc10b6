package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/rpcgate/internal/cache"
	httperrors "github.com/dropDatabas3/rpcgate/internal/http/errors"
	mw "github.com/dropDatabas3/rpcgate/internal/http/middlewares"
	"github.com/dropDatabas3/rpcgate/internal/keys"
	"github.com/dropDatabas3/rpcgate/internal/observability/logger"
)

// AdminDeps contiene las dependencias del listener de administración.
type AdminDeps struct {
	Directory keys.Directory
	Cache     cache.Store // opcional
	// RedisPing es opcional; si falla el estado es "degraded".
	RedisPing func(ctx context.Context) error
	Gatherer  prometheus.Gatherer
	Version   string
}

// HealthStatus es el estado de un componente.
type HealthStatus struct {
	Status  string `json:"status"` // ok | error
	Message string `json:"message,omitempty"`
}

// HealthResponse es el body de /readyz.
type HealthResponse struct {
	Status     string                  `json:"status"` // ready | degraded | unavailable
	Version    string                  `json:"version,omitempty"`
	Keys       *keys.Status            `json:"keys,omitempty"`
	Components map[string]HealthStatus `json:"components"`
	Timestamp  time.Time               `json:"timestamp"`
}

type statusReporter interface {
	Status() keys.Status
}

// NewAdmin construye el router de administración (health, readiness, métricas
// y estadísticas del cache). Va en un listener aparte para no tapar ningún
// path del nodo.
func NewAdmin(deps AdminDeps) http.Handler {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(mw.WithRecover(), mw.WithRequestID())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", deps.readyz)
	r.Get("/cachez", deps.cachez)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func (d AdminDeps) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := d.check(ctx)
	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	logger.From(ctx).Debug("readiness check", logger.String("status", resp.Status))
	httperrors.WriteJSON(w, status, resp)
}

func (d AdminDeps) check(ctx context.Context) HealthResponse {
	resp := HealthResponse{
		Version:    d.Version,
		Components: map[string]HealthStatus{},
		Timestamp:  time.Now().UTC(),
	}
	critical, degraded := false, false

	// 1) Directorio de keys (crítico)
	switch {
	case d.Directory == nil:
		resp.Components["keys"] = HealthStatus{Status: "error", Message: "directory not configured"}
		critical = true
	case !d.Directory.Ready():
		resp.Components["keys"] = HealthStatus{Status: "error", Message: "keys not loaded yet"}
		critical = true
	default:
		resp.Components["keys"] = HealthStatus{Status: "ok"}
	}
	if sr, ok := d.Directory.(statusReporter); ok {
		st := sr.Status()
		resp.Keys = &st
	}

	// 2) Redis (no crítico: rate limiter y cache fallan abiertos)
	if d.RedisPing != nil {
		if err := d.RedisPing(ctx); err != nil {
			resp.Components["redis"] = HealthStatus{Status: "error", Message: err.Error()}
			degraded = true
		} else {
			resp.Components["redis"] = HealthStatus{Status: "ok"}
		}
	}

	switch {
	case critical:
		resp.Status = "unavailable"
	case degraded:
		resp.Status = "degraded"
	default:
		resp.Status = "ready"
	}
	return resp
}

func (d AdminDeps) cachez(w http.ResponseWriter, r *http.Request) {
	if d.Cache == nil {
		httperrors.WriteJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	st, err := d.Cache.Stats(r.Context())
	if err != nil {
		logger.From(r.Context()).Warn("cache stats failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, map[string]any{"enabled": true, "stats": st})
}
