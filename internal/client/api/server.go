// Package api serves the local control API: records, the sync queue,
// integrity checks, history and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/audit"
	"github.com/dmitrijs2005/logsync/internal/client/integrity"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/services"
	"github.com/dmitrijs2005/logsync/internal/client/syncctx"
	"github.com/dmitrijs2005/logsync/internal/client/syncqueue"
	"github.com/dmitrijs2005/logsync/internal/logging"
	"github.com/dmitrijs2005/logsync/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Syncer is the part of the sync engine exposed over HTTP.
type Syncer interface {
	Drain(ctx context.Context) (syncqueue.DrainReport, error)
	Pending(ctx context.Context) ([]models.QueueEntry, error)
	RetryFailed(ctx context.Context) (int, error)
}

type Verifier interface {
	Verify(ctx context.Context, entryID string) (integrity.Result, error)
	VerifyAll(ctx context.Context) (integrity.Summary, error)
}

type History interface {
	History(ctx context.Context, entryID string) ([]models.AuditEntry, error)
	Revisions(ctx context.Context, entryID string) ([]models.RevisionEntry, error)
	Restore(ctx context.Context, entryID string, version int64) (audit.RestoreResult, error)
}

// Deps are the components behind the handlers.
type Deps struct {
	Entries  services.EntryService
	Sync     Syncer
	Verifier Verifier
	History  History
	State    *syncctx.Context
	Gatherer prometheus.Gatherer
}

type Server struct {
	deps    Deps
	log     logging.Logger
	metrics *metrics.Metrics
	router  chi.Router
}

func New(deps Deps, log logging.Logger, m *metrics.Metrics) *Server {
	s := &Server{deps: deps, log: log, metrics: m}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.healthz)
	r.Get("/status", s.status)

	r.Route("/records", func(r chi.Router) {
		r.Get("/", s.listRecords)
		r.Post("/", s.createRecord)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getRecord)
			r.Put("/", s.updateRecord)
			r.Delete("/", s.deleteRecord)
			r.Get("/verify", s.verifyRecord)
			r.Get("/history", s.recordHistory)
			r.Get("/revisions", s.recordRevisions)
			r.Post("/restore", s.restoreRecord)
		})
	})

	r.Get("/queue", s.queue)
	r.Post("/queue/retry", s.retryQueue)
	r.Post("/sync", s.sync)
	r.Post("/verify", s.verifyAll)

	g := s.deps.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "control API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info(ctx, "control API stopped")
	return nil
}
