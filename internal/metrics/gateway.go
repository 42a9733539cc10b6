package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Gateway metrics. Se definen en un paquete aparte para que keys, cache y los
// middlewares HTTP puedan instrumentarse sin ciclos de imports.

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpcgate_requests_total",
		Help: "Requests procesadas por método RPC y status HTTP",
	}, []string{"method", "status"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rpcgate_request_duration_seconds",
		Help:    "Latencia de los requests por método RPC",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	Rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpcgate_rejections_total",
		Help: "Requests rechazadas antes de llegar al nodo, por motivo",
	}, []string{"reason"}) // method_not_available|invalid_key|not_started|rate_limited|body_too_large

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpcgate_cache_lookups_total",
		Help: "Consultas al cache de respuestas por resultado",
	}, []string{"result"}) // hit|miss|stored|skipped|error

	UpstreamErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rpcgate_upstream_errors_total",
		Help: "Errores de conexión con el nodo upstream",
	})

	KeyRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpcgate_key_refresh_total",
		Help: "Intentos de carga de API keys remotas por resultado",
	}, []string{"result"}) // ok|error

	KeysLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rpcgate_keys_loaded",
		Help: "Cantidad de API keys en el set vigente",
	})

	KeysReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rpcgate_keys_ready",
		Help: "1 si el directorio de keys completó al menos una carga",
	})
)

// Register registra las métricas del gateway en el registry dado (o el default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		RequestsTotal,
		RequestDuration,
		Rejections,
		CacheLookups,
		UpstreamErrors,
		KeyRefreshes,
		KeysLoaded,
		KeysReady,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
