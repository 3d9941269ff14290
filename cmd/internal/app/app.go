// Package app wires the AQI server runtime: config, logging, storage, HTTP routes, and the live feed.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Emjay-16/aqi-project/cmd/identity"
	authapi "github.com/Emjay-16/aqi-project/cmd/internal/auth/api"
	"github.com/Emjay-16/aqi-project/cmd/internal/live"
	"github.com/Emjay-16/aqi-project/cmd/internal/metrics"
	"github.com/Emjay-16/aqi-project/cmd/internal/migrations"
	"github.com/Emjay-16/aqi-project/cmd/internal/node"
	"github.com/Emjay-16/aqi-project/cmd/internal/notify"
	"github.com/Emjay-16/aqi-project/cmd/internal/telemetry"
	"github.com/Emjay-16/aqi-project/cmd/security/password"
	"github.com/Emjay-16/aqi-project/cmd/security/token"
)

// App is the AQI server runtime: it owns the HTTP server and every long-lived dependency.
type App struct {
	cfg Config
	log Logger

	handler http.Handler

	dbPool *pgxpool.Pool
	influx *telemetry.InfluxStore
	queue  *notify.Queue
	auth   *authapi.Handler
	hub    *live.Hub
}

// New constructs a fully wired App from cfg and the package-level env configs.
// Without AQI_DATABASE_URL identities and nodes live in memory; without
// InfluxDB settings the /aqi endpoints answer 503.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	mailCfg, err := notify.FromEnv()
	if err != nil {
		return nil, err
	}
	if mailCfg.VerifyBaseURL == "" {
		mailCfg.VerifyBaseURL = publicBaseURL(cfg)
	}
	if err := ValidateSecurityConfig(cfg, mailCfg); err != nil {
		return nil, err
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	digester, err := token.DigesterFromEnv(cfg.RequireTokenHMAC)
	if err != nil {
		return nil, err
	}
	authCfg := authapi.LoadConfigFromEnv()
	telCfg, err := telemetry.FromEnv()
	if err != nil {
		return nil, err
	}
	liveCfg, err := live.FromEnv()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}

	var (
		collector *metrics.Collector
		metricsH  http.Handler
	)
	if cfg.MetricsEnabled {
		reg := metrics.NewRegistry()
		collector = metrics.NewCollector(reg)
		metricsH = metrics.Handler(reg)
	}

	idStore, nodeStore, err := a.openStores(ctx, digester)
	if err != nil {
		return nil, err
	}

	var sender notify.Sender = notify.LogSender{Log: log}
	if mailCfg.SMTPEnabled() {
		smtp, err := notify.NewSMTPSender(mailCfg)
		if err != nil {
			a.closeResources()
			return nil, err
		}
		sender = smtp
		log.Info("notify.smtp.enabled", "host", mailCfg.Host, "port", mailCfg.Port)
	} else {
		log.Info("notify.smtp.disabled.log_only")
	}
	a.queue = notify.NewQueue(mailCfg, sender, notify.WithLogger(log), notify.WithRecorder(collector))

	svc, err := identity.NewService(idStore,
		identity.WithHasher(pwCfg),
		identity.WithNotifier(a.queue),
		identity.WithEventRecorder(collector),
		identity.WithLogger(log),
		identity.WithTokenTTL(authCfg.VerificationTTL),
		identity.WithRequireVerified(authCfg.RequireVerified),
	)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	a.auth, err = authapi.NewHandler(log, svc, authCfg)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	nodes, err := node.NewHandler(log, nodeStore, authCfg.MaxBodyBytes)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	a.hub = live.NewHub(log, collector)
	gateway := live.NewGateway(log, a.hub, liveCfg)

	var readingStore telemetry.Store
	if telCfg.Enabled() {
		a.influx, err = telemetry.NewInfluxStore(telCfg)
		if err != nil {
			a.closeResources()
			return nil, err
		}
		readingStore = a.influx
		log.Info("telemetry.influx.enabled", "url", telCfg.URL, "org", telCfg.Org, "bucket", telCfg.Bucket)
	} else {
		log.Info("telemetry.influx.disabled")
	}
	tel := telemetry.NewHandler(log, readingStore,
		telemetry.WithPublisher(a.hub),
		telemetry.WithRecorder(collector),
		telemetry.WithMaxBodyBytes(authCfg.MaxBodyBytes),
	)

	rt := routes{
		auth:      a.auth,
		nodes:     nodes,
		telemetry: tel,
		live:      gateway,
		metrics:   metricsH,
		dbEnabled: a.dbPool != nil,
	}
	if a.dbPool != nil {
		pool := a.dbPool
		rt.ready = append(rt.ready, readinessCheck{name: "db", check: func(ctx context.Context) error {
			return PingDB(ctx, pool, 2*time.Second)
		}})
	}
	if a.influx != nil {
		rt.ready = append(rt.ready, readinessCheck{name: "influxdb", check: a.influx.Ping})
	}

	a.handler = wrapMiddleware(newRouter(log, cfg, rt), log, cfg, collector)
	return a, nil
}

// openStores decides between Postgres-backed persistence and the in-memory dev store.
func (a *App) openStores(ctx context.Context, digester token.Digester) (identity.Store, node.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		mem := identity.NewMemoryStore(identity.WithMemoryTokenDigester(digester))
		return mem, node.NewMemoryStore(mem), nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}
	a.dbPool = pool
	a.log.Info("db.enabled.postgres_store")

	if a.cfg.AutoMigrate {
		if err := migrations.UpPool(ctx, pool); err != nil {
			a.closeResources()
			return nil, nil, err
		}
		a.log.Info("db.migrate.ok")
	}

	// Ownership model:
	// - app owns pool lifecycle
	// - stores never close the pool
	idStore, err := identity.NewPostgresStore(pool, identity.WithTokenDigester(digester))
	if err != nil {
		a.closeResources()
		return nil, nil, err
	}
	nodeStore, err := node.NewPostgresStore(pool, identity.DefaultSchema)
	if err != nil {
		a.closeResources()
		return nil, nil, err
	}
	return idStore, nodeStore, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and the notify worker and blocks until context
// cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	// Hijacked WebSocket connections outlive Shutdown; their request contexts
	// hang off baseCtx, which is cancelled as soon as shutdown begins.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()
	go a.queue.Run(workerCtx)

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"root_path", a.cfg.RootPath,
		"base_url", publicBaseURL(a.cfg),
		"live_url", wsBaseURL(publicBaseURL(a.cfg))+"/aqi/live",
		"db_enabled", a.dbPool != nil,
		"influx_enabled", a.influx != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	// Drain queued verification emails until the shutdown deadline.
	a.queue.Close()
	select {
	case <-a.queue.Done():
	case <-shutdownCtx.Done():
		a.log.Warn("notify.drain.timeout", "pending", a.queue.Len())
		stopWorker()
		<-a.queue.Done()
	}

	a.closeResources()
	a.log.Info("server.stopped")
	return runErr
}

// closeResources releases everything New opened. Safe to call more than once.
func (a *App) closeResources() {
	if a.auth != nil {
		a.auth.Close()
		a.auth = nil
	}
	if a.influx != nil {
		a.influx.Close()
		a.influx = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
