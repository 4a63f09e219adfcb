package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/logsync/internal/backend"
	"github.com/dmitrijs2005/logsync/internal/backend/postgres"
	"github.com/dmitrijs2005/logsync/internal/client/api"
	"github.com/dmitrijs2005/logsync/internal/client/audit"
	"github.com/dmitrijs2005/logsync/internal/client/config"
	"github.com/dmitrijs2005/logsync/internal/client/connectivity"
	"github.com/dmitrijs2005/logsync/internal/client/health"
	"github.com/dmitrijs2005/logsync/internal/client/integrity"
	"github.com/dmitrijs2005/logsync/internal/client/legacy"
	"github.com/dmitrijs2005/logsync/internal/client/reconcile"
	"github.com/dmitrijs2005/logsync/internal/client/services"
	"github.com/dmitrijs2005/logsync/internal/client/session"
	"github.com/dmitrijs2005/logsync/internal/client/store"
	"github.com/dmitrijs2005/logsync/internal/client/syncctx"
	"github.com/dmitrijs2005/logsync/internal/client/syncqueue"
	"github.com/dmitrijs2005/logsync/internal/logging"
	"github.com/dmitrijs2005/logsync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// App wires the sync engine and its collaborators from a Config.
type App struct {
	config   *config.Config
	log      logging.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store   store.Store
	db      *sql.DB
	backend backend.Backend

	state    *syncctx.Context
	monitor  *connectivity.Monitor
	resolver *reconcile.Reconciler
	engine   *syncqueue.Engine
	verifier *integrity.Verifier
	history  *audit.Log
	entries  services.EntryService
	importer *legacy.Importer
}

// Option replaces a dependency NewApp would otherwise build from config.
type Option func(*appOptions)

type appOptions struct {
	backend backend.Backend
	store   store.Store
	log     logging.Logger
}

func WithBackend(b backend.Backend) Option { return func(o *appOptions) { o.backend = b } }
func WithStore(s store.Store) Option       { return func(o *appOptions) { o.store = s } }
func WithLogger(l logging.Logger) Option   { return func(o *appOptions) { o.log = l } }

func NewApp(ctx context.Context, c *config.Config, logOut io.Writer, opts ...Option) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{config: c, log: o.log, state: syncctx.New()}
	if a.log == nil {
		a.log = logging.New(logOut, c.Log.Level, c.Log.Format)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	a.store = o.store
	if a.store == nil {
		st, err := store.OpenOrMemory(ctx, c.Store.Path, a.log)
		if err != nil {
			return nil, err
		}
		a.store = st
	}

	a.backend = o.backend
	if a.backend == nil {
		b, db, err := openBackend(c.Backend)
		if err != nil {
			_ = a.store.Close()
			return nil, err
		}
		a.backend, a.db = b, db
	}

	a.monitor = connectivity.NewMonitor(a.backend, a.state, connectivity.Config{
		ProbeInterval: c.Connectivity.ProbeInterval,
		ProbeTimeout:  c.Connectivity.ProbeTimeout,
	}, a.log.With("module", "connectivity"), a.metrics)

	resolver, err := reconcile.New(a.backend, reconcile.Config{
		CandidateLimit: c.Sync.CandidateLimit,
		CacheSize:      c.Sync.ResolveCache,
	}, a.log.With("module", "reconcile"), a.metrics)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.resolver = resolver

	a.engine = syncqueue.New(a.store, a.backend, a.resolver, a.state, syncqueue.Config{
		RetryCeiling: c.Sync.RetryCeiling,
		BaseDelay:    c.Sync.BaseDelay,
		ItemDelay:    c.Sync.ItemDelay,
		TickInterval: c.Sync.TickInterval,
		RedrainDelay: c.Sync.RedrainDelay,
	}, a.log.With("module", "syncqueue"), a.metrics, syncqueue.WithProber(a.monitor))

	a.history = audit.New(a.backend, a.store, a.resolver, a.log.With("module", "audit"))
	a.verifier = integrity.New(a.store, a.backend, a.resolver, a.history, integrity.Config{
		CacheTTL:    c.Integrity.CacheTTL,
		CacheSize:   c.Integrity.CacheSize,
		Concurrency: c.Integrity.Concurrency,
		AuditMode:   integrity.AuditMode(c.Integrity.AuditMode),
	}, a.log.With("module", "integrity"), a.metrics)

	a.entries = services.NewEntryService(a.store, a.engine, a.log)
	a.importer = legacy.NewImporter(a.store, a.engine, a.backend, a.log.With("module", "legacy"))

	if a.store.Degraded() {
		a.log.Warn(ctx, "queued mutations will be lost on exit", "store", c.Store.Path)
	}
	return a, nil
}

// openBackend resolves the owner and opens the PostgreSQL pool.
func openBackend(c config.BackendConfig) (backend.Backend, *sql.DB, error) {
	if c.DSN == "" {
		return nil, nil, errors.New("backend.dsn is required")
	}
	owner, err := session.New(c.AccessToken, c.TokenSecret, c.OwnerID).OwnerID()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve owner: %w", err)
	}
	db, err := postgres.OpenPool(c.DSN, c.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewClient(db, owner), db, nil
}

// Probe refreshes the online flag before a one-shot command.
func (a *App) Probe(ctx context.Context) bool {
	return a.monitor.CheckNow(ctx)
}

// Serve runs the background loops and the optional listeners until ctx is
// cancelled.
func (a *App) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var events connectivity.EventSource
	if a.config.Connectivity.WatchInterfaces {
		events = connectivity.NewInterfaceWatcher(a.config.Connectivity.WatchInterval)
	}
	g.Go(func() error {
		a.monitor.Run(ctx, events)
		return nil
	})
	g.Go(func() error {
		a.engine.Run(ctx)
		return nil
	})

	if addr := a.config.API.Addr; addr != "" {
		srv := api.New(api.Deps{
			Entries:  a.entries,
			Sync:     a.engine,
			Verifier: a.verifier,
			History:  a.history,
			State:    a.state,
			Gatherer: a.registry,
		}, a.log.With("module", "api"), a.metrics)
		g.Go(func() error {
			return srv.ListenAndServe(ctx, addr, a.config.API.ReadTimeout, a.config.API.ShutdownTimeout)
		})
	}
	if addr := a.config.API.HealthAddr; addr != "" {
		hs := health.NewServer(addr, a.state, a.log)
		g.Go(func() error { return hs.Run(ctx) })
	}

	a.log.Info(ctx, "logsync running", "store", a.config.Store.Path, "degraded", a.store.Degraded())
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Migrate applies the backend schema. It needs a configured DSN.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	if a.db == nil {
		return nil, errors.New("migrate: no backend database configured")
	}
	return postgres.Migrate(ctx, a.db)
}

func (a *App) Close() error {
	a.state.Close()
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
