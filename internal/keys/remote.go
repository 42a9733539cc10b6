package keys

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dropDatabas3/rpcgate/internal/metrics"
	"github.com/dropDatabas3/rpcgate/internal/observability/logger"
)

const (
	DefaultInterval   = time.Minute
	DefaultRetryDelay = 5 * time.Second
)

// Status es una foto del estado del directorio remoto.
type Status struct {
	Ready       bool      `json:"ready"`
	Keys        int       `json:"keys"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success,omitempty"`
}

// Remote es un Directory alimentado por un Fetcher en background.
//
// Arranca sin estar listo. La primera carga exitosa lo marca listo y, desde ahí,
// un fallo posterior deja el último set bueno en uso sin revertir la readiness.
type Remote struct {
	fetcher    Fetcher
	interval   time.Duration
	retryDelay time.Duration

	set   atomic.Pointer[Set]
	ready atomic.Bool

	mu          sync.Mutex
	lastErr     error
	lastSuccess time.Time
}

// RemoteConfig configura el refresco.
type RemoteConfig struct {
	// Interval es la espera entre cargas exitosas.
	Interval time.Duration
	// RetryDelay es la espera fija tras un fallo.
	RetryDelay time.Duration
}

func NewRemote(f Fetcher, cfg RemoteConfig) *Remote {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Remote{
		fetcher:    f,
		interval:   cfg.Interval,
		retryDelay: cfg.RetryDelay,
	}
}

func (r *Remote) Ready() bool { return r.ready.Load() }

func (r *Remote) Contains(key string) bool { return r.set.Load().Contains(key) }

func (r *Remote) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		Ready:       r.ready.Load(),
		Keys:        r.set.Load().Len(),
		LastSuccess: r.lastSuccess,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

// Refresh hace una sola carga y publica el set si tuvo éxito.
func (r *Remote) Refresh(ctx context.Context) error {
	list, err := r.fetcher.Fetch(ctx)
	if err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		metrics.KeyRefreshes.WithLabelValues("error").Inc()
		return err
	}

	set := NewSet(list)
	r.set.Store(set)
	r.ready.Store(true)

	r.mu.Lock()
	r.lastErr = nil
	r.lastSuccess = time.Now()
	r.mu.Unlock()

	metrics.KeyRefreshes.WithLabelValues("ok").Inc()
	metrics.KeysLoaded.Set(float64(set.Len()))
	metrics.KeysReady.Set(1)
	return nil
}

// Run refresca el set hasta que ctx se cancele. Tras un fallo reintenta cada
// retryDelay; tras un éxito espera interval. Nunca retorna por un fallo de carga.
func (r *Remote) Run(ctx context.Context) error {
	log := logger.Named("keys").With(logger.Component("remote_directory"))
	metrics.KeysReady.Set(0)

	for {
		b := backoff.WithContext(backoff.NewConstantBackOff(r.retryDelay), ctx)
		err := backoff.RetryNotify(func() error {
			return r.Refresh(ctx)
		}, b, func(err error, next time.Duration) {
			log.Error("error while loading keys",
				logger.Err(err),
				logger.Bool("ready", r.Ready()),
				logger.Duration(next),
			)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nilIfCanceled(ctxErr)
			}
			// Con ConstantBackOff solo se sale por el contexto.
			continue
		}

		log.Debug("keys loaded", logger.Count(r.set.Load().Len()))

		t := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nilIfCanceled(ctx.Err())
		case <-t.C:
		}
	}
}

func nilIfCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
