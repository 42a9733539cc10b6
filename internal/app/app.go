// Package app arma el gateway a partir de la configuración y maneja su ciclo de vida.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/rpcgate/internal/access"
	"github.com/dropDatabas3/rpcgate/internal/cache"
	"github.com/dropDatabas3/rpcgate/internal/config"
	"github.com/dropDatabas3/rpcgate/internal/http/server"
	"github.com/dropDatabas3/rpcgate/internal/keys"
	"github.com/dropDatabas3/rpcgate/internal/metrics"
	"github.com/dropDatabas3/rpcgate/internal/observability/logger"
	"github.com/dropDatabas3/rpcgate/internal/proxy"
	"github.com/dropDatabas3/rpcgate/internal/rate"
)

// ShutdownTimeout es lo que se espera a los requests en vuelo al apagar.
const ShutdownTimeout = 10 * time.Second

// Options son dependencias opcionales, pensadas para tests.
type Options struct {
	// Registry donde se registran las métricas. Default: prometheus.DefaultRegisterer.
	Registry *prometheus.Registry
	// Fetcher reemplaza al HTTPFetcher de keys remotas.
	Fetcher keys.Fetcher
	Version string
}

// App es el gateway armado: listener público, listener de administración y
// el refresco de keys en background.
type App struct {
	cfg *config.Config

	Gateway http.Handler
	Admin   http.Handler

	remote    *keys.Remote
	redis     *redis.Client
	store     cache.Store
	accessLog *logger.AccessLog
}

// New construye el App. Cfg ya debe estar validada.
func New(cfg *config.Config, opts Options) (*App, error) {
	log := logger.Named("app")
	a := &App{cfg: cfg}

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("app: register metrics: %w", err)
	}

	// 1. Redis (compartido por rate limiter y cache)
	if cfg.RedisRequired() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	// 2. Directorio de keys
	var dir keys.Directory
	if cfg.RemoteKeys.Enabled {
		f := opts.Fetcher
		if f == nil {
			f = keys.NewHTTPFetcher(cfg.RemoteKeys.URL, cfg.RemoteKeys.Authorization, cfg.RemoteKeys.TimeoutDuration())
		}
		a.remote = keys.NewRemote(f, keys.RemoteConfig{
			Interval:   cfg.RemoteKeys.IntervalDuration(),
			RetryDelay: cfg.RemoteKeys.RetryDelayDuration(),
		})
		dir = a.remote
	} else {
		static := keys.NewStatic(cfg.APIKeys)
		metrics.KeysLoaded.Set(float64(static.Len()))
		metrics.KeysReady.Set(1)
		dir = static
	}

	// 3. Rate limiter
	var limiter rate.Limiter
	switch cfg.RateLimit.Store {
	case config.StoreRedis:
		limiter = rate.NewRedisLimiter(a.redis, cfg.Redis.Prefix+":rl:", cfg.RateLimit.Max, cfg.RateLimit.Window())
	default:
		limiter = rate.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window())
	}

	// 4. Cache de respuestas (solo si hay métodos cacheables)
	rules := make([]cache.Rule, 0, len(cfg.Cache))
	for _, r := range cfg.Cache {
		rules = append(rules, cache.Rule{Method: r.Method, TTL: r.TTL()})
	}
	policy := cache.NewPolicy(rules)
	if policy.Enabled() {
		store, err := cache.New(cache.Config{
			Driver:   cfg.CacheStore.Kind,
			Capacity: cfg.CacheStore.Capacity,
			Prefix:   cfg.Redis.Prefix + ":cache",
			Redis:    a.redis,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: cache store: %w", err)
		}
		a.store = store
	}

	// 5. Forwarder
	fwd, err := proxy.New(proxy.Config{
		URL:                cfg.Node.URL,
		Key:                cfg.Node.Key,
		InsecureSkipVerify: cfg.Node.InsecureSkipVerify,
		Timeout:            cfg.Node.TimeoutDuration(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	// 6. Access log
	a.accessLog, err = logger.NewAccessLog(logger.AccessConfig{
		Output:     cfg.Logs.Output,
		Filename:   cfg.Logs.File,
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	ctrl := access.NewController(access.Policy{
		Methods: cfg.Methods,
		PrivKey: cfg.GodAPIKey,
		Checked: access.CheckedPolicy{Methods: cfg.Check.Methods, Key: cfg.Check.Key},
	}, dir)

	a.Gateway = server.NewGateway(server.GatewayDeps{
		Forwarder:     fwd,
		Controller:    ctrl,
		Limiter:       limiter,
		RateMax:       cfg.RateLimit.Max,
		Cache:         a.store,
		CachePolicy:   policy,
		MaxEntryBytes: cfg.CacheStore.MaxEntryBytes,
		BodyLimit:     cfg.BodyLimit,
		CORSOrigins:   cfg.CORS.AllowedOrigins,
		AccessLog:     a.accessLog,
	})

	adminDeps := server.AdminDeps{
		Directory: dir,
		Cache:     a.store,
		Gatherer:  gatherer,
		Version:   opts.Version,
	}
	if rc := a.redis; rc != nil {
		adminDeps.RedisPing = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}
	a.Admin = server.NewAdmin(adminDeps)

	log.Info("gateway configured",
		logger.Upstream(fwd.Target().Redacted()),
		logger.Bool("remote_keys", cfg.RemoteKeys.Enabled),
		logger.String("rate_store", cfg.RateLimit.Store),
		logger.Bool("cache", policy.Enabled()),
		logger.Count(len(cfg.Methods)),
	)
	return a, nil
}

// Run sirve ambos listeners y el refresco de keys hasta que ctx se cancele,
// y después apaga los servidores esperando a lo sumo ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	gw, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Addr(), err)
	}
	adm, err := net.Listen("tcp", a.cfg.Admin.Addr)
	if err != nil {
		_ = gw.Close()
		return fmt.Errorf("app: listen admin %s: %w", a.cfg.Admin.Addr, err)
	}
	return a.Serve(ctx, gw, adm)
}

// Serve es Run sobre listeners ya abiertos.
func (a *App) Serve(ctx context.Context, gatewayLn, adminLn net.Listener) error {
	log := logger.Named("app")

	gwSrv := &http.Server{
		Handler:           a.Gateway,
		ReadHeaderTimeout: 10 * time.Second,
	}
	admSrv := &http.Server{
		Handler:           a.Admin,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.remote != nil {
		g.Go(func() error { return a.remote.Run(gctx) })
	}
	g.Go(func() error {
		log.Info("gateway listening", logger.Addr(gatewayLn.Addr().String()))
		return serve(gwSrv, gatewayLn)
	})
	g.Go(func() error {
		log.Info("admin listening", logger.Addr(adminLn.Addr().String()))
		return serve(admSrv, adminLn)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return errors.Join(gwSrv.Shutdown(sctx), admSrv.Shutdown(sctx))
	})

	err := g.Wait()
	a.Close()
	return err
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close libera stores, redis y el access log. Es idempotente.
func (a *App) Close() {
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.accessLog != nil {
		_ = a.accessLog.Close()
		a.accessLog = nil
	}
}
