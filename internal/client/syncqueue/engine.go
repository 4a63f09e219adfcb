// Package syncqueue replays locally queued mutations against the backend.
//
// Entries are attempted one at a time, fewest retries first and oldest first
// within equal retry counts. A failed entry is retried with exponential
// backoff until it reaches the retry ceiling, where it stays until RetryFailed
// is called. Entries targeting the same record are never reordered: a later
// entry waits while an earlier one for the same record is still queued.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/logsync/internal/backend"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/logsync/internal/client/store"
	"github.com/dmitrijs2005/logsync/internal/client/syncctx"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/logging"
	"github.com/dmitrijs2005/logsync/internal/metrics"
)

type Config struct {
	RetryCeiling int
	BaseDelay    time.Duration
	ItemDelay    time.Duration
	TickInterval time.Duration
	RedrainDelay time.Duration
}

func (c *Config) setDefaults() {
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.ItemDelay < 0 {
		c.ItemDelay = 0
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 10 * time.Second
	}
	if c.RedrainDelay <= 0 {
		c.RedrainDelay = 2 * time.Second
	}
}

// Resolver maps local record ids to canonical backend ids.
type Resolver interface {
	ResolveCanonicalID(ctx context.Context, localID string, hint *models.BusinessKey) (string, error)
	Forget(localID string)
}

// Prober re-checks reachability after a transport failure.
type Prober interface {
	CheckNow(ctx context.Context) bool
}

type Option func(*Engine)

// WithClock replaces time.Now, used for enqueue timestamps and backoff.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithProber lets a drain stop early when the backend went away.
func WithProber(p Prober) Option {
	return func(e *Engine) { e.prober = p }
}

type Engine struct {
	store    store.Store
	backend  backend.Backend
	resolver Resolver
	state    *syncctx.Context
	cfg      Config
	log      logging.Logger
	metrics  *metrics.Metrics
	prober   Prober
	now      func() time.Time
	kick     chan struct{}
}

func New(st store.Store, b backend.Backend, r Resolver, state *syncctx.Context, cfg Config,
	log logging.Logger, m *metrics.Metrics, opts ...Option) *Engine {
	cfg.setDefaults()
	e := &Engine{
		store:    st,
		backend:  b,
		resolver: r,
		state:    state,
		cfg:      cfg,
		log:      log,
		metrics:  m,
		now:      time.Now,
		kick:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	// Ran is false when the drain was skipped because the client is offline
	// or another drain is in flight.
	Ran       bool `json:"ran"`
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	// Abandoned counts entries that reached the retry ceiling in this pass.
	Abandoned int `json:"abandoned"`
	// Deferred counts entries skipped because of backoff or because an
	// earlier entry for the same record is still queued.
	Deferred int `json:"deferred"`
	// Stuck counts entries already at the retry ceiling.
	Stuck int `json:"stuck"`
	// Remaining is the queue length after the pass.
	Remaining int `json:"remaining"`
	// NextAttempt is the earliest backoff deadline among retryable entries.
	NextAttempt *time.Time `json:"next_attempt,omitempty"`
	Errors      []error    `json:"-"`
}

// CeilingError is reported when an entry exhausts its retries.
type CeilingError struct {
	QueueID   int64
	Operation models.Operation
	EntryID   string
	Retries   int
	Cause     error
}

func (e *CeilingError) Error() string {
	return fmt.Sprintf("sync failed after %d retries: %v", e.Retries, e.Cause)
}

func (e *CeilingError) Unwrap() error { return e.Cause }

func (e *CeilingError) Is(target error) bool { return target == common.ErrRetryCeilingReached }

// Enqueue durably appends a mutation and nudges the background loop.
func (e *Engine) Enqueue(ctx context.Context, op models.Operation, entryID string, payload *models.Record) (int64, error) {
	return e.EnqueueWith(ctx, op, entryID, payload, nil)
}

// EnqueueWith runs apply and appends the queue entry in one local
// transaction, so a record change and its pending mutation are stored
// together or not at all. The payload is encoded after apply returns, so
// apply may fill it from what it read inside the transaction.
func (e *Engine) EnqueueWith(ctx context.Context, op models.Operation, entryID string, payload *models.Record,
	apply func(ctx context.Context, tx store.Store) error) (int64, error) {
	if !op.Valid() {
		return 0, fmt.Errorf("enqueue: unknown operation %q", op)
	}
	if op != models.OpDelete && payload == nil {
		return 0, fmt.Errorf("enqueue %s %s: payload is required", op, entryID)
	}

	var id int64
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if apply != nil {
			if err := apply(ctx, tx); err != nil {
				return err
			}
		}
		raw, err := models.EncodePayload(payload)
		if err != nil {
			return err
		}
		id, err = tx.Queue().Add(ctx, &models.QueueEntry{
			Operation:  op,
			EntryID:    entryID,
			Payload:    raw,
			EnqueuedAt: e.now(),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue %s %s: %w", op, entryID, err)
	}

	e.log.Debug(ctx, "mutation queued", "queue_id", id, "operation", op, "entry_id", entryID)
	e.refreshQueueLength(ctx)
	e.Kick()
	return id, nil
}

// Kick requests a drain from the background loop without blocking. It does
// nothing while offline or while a drain is running.
func (e *Engine) Kick() {
	s := e.state.Snapshot()
	if !s.IsOnline || s.IsSyncing {
		return
	}
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Pending returns the queue in processing order.
func (e *Engine) Pending(ctx context.Context) ([]models.QueueEntry, error) {
	entries, err := e.store.Queue().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	sortForDrain(entries)
	return entries, nil
}

// RetryFailed resets every entry that reached the retry ceiling, clears the
// terminal error and requests a drain.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	n, err := e.store.Queue().ResetFailed(ctx, e.cfg.RetryCeiling)
	if err != nil {
		return 0, fmt.Errorf("retry failed entries: %w", err)
	}
	e.state.ClearLastError()
	e.log.Info(ctx, "failed entries reset", "count", n)
	e.refreshQueueLength(ctx)
	e.Kick()
	return n, nil
}

// Drain attempts every eligible queue entry once. Remote failures are
// recorded on the entry and do not abort the pass; local storage failures
// do and are returned.
func (e *Engine) Drain(ctx context.Context) (report DrainReport, err error) {
	if !e.state.TryBeginDrain() {
		return report, nil
	}
	report.Ran = true
	started := time.Now()

	defer func() {
		e.state.EndDrain()
		e.state.SetProgress(0, 0)
		e.refreshQueueLength(ctx)
		outcome := "completed"
		if err != nil {
			outcome = "error"
			e.state.SetLastError(err.Error())
		}
		e.metrics.ObserveDrain(outcome, time.Since(started))
	}()

	entries, err := e.store.Queue().List(ctx)
	if err != nil {
		return report, fmt.Errorf("load queue: %w", err)
	}
	sortForDrain(entries)

	for _, q := range entries {
		if q.RetryCount >= e.cfg.RetryCeiling {
			report.Stuck++
		}
	}
	if report.Stuck == 0 {
		e.state.ClearLastError()
	}

	// queued tracks entries still in the queue, per record, in enqueue order.
	queued := newLedger(entries)

	now := e.now()
	var work []models.QueueEntry
	for _, q := range entries {
		if q.Eligible(now, e.cfg.RetryCeiling) {
			work = append(work, q)
		} else if q.RetryCount < e.cfg.RetryCeiling {
			report.Deferred++
		}
	}

	total := len(work)
	e.state.SetProgress(0, total)
	if total > 0 {
		e.log.Info(ctx, "drain started", "eligible", total, "queued", len(entries))
	}

	// Entries blocked behind an earlier mutation of the same record are
	// retried in another pass once that mutation went through.
	done := 0
	pending := work
	for len(pending) > 0 {
		var blocked []models.QueueEntry
		progressed := false

		for i := 0; i < len(pending); i++ {
			q := pending[i]

			if !e.state.IsOnline() {
				report.Deferred += len(pending) - i + len(blocked)
				pending, blocked = nil, nil
				break
			}
			if !queued.isHead(q) {
				blocked = append(blocked, q)
				continue
			}
			if report.Attempted > 0 && e.cfg.ItemDelay > 0 {
				if err := sleep(ctx, e.cfg.ItemDelay); err != nil {
					return report, err
				}
			}

			report.Attempted++
			done++
			e.state.SetProgress(done, total)

			out, remoteErr := e.send(ctx, q)
			if remoteErr != nil {
				if errors.Is(remoteErr, context.Canceled) && ctx.Err() != nil {
					return report, ctx.Err()
				}
				abandoned, err := e.recordFailure(ctx, q, remoteErr)
				if err != nil {
					return report, err
				}
				report.Errors = append(report.Errors, remoteErr)
				if abandoned {
					report.Abandoned++
				} else {
					report.Failed++
				}
				if errors.Is(remoteErr, common.ErrUnreachable) && e.prober != nil && !e.prober.CheckNow(ctx) {
					e.log.Warn(ctx, "backend went away, pausing drain")
					report.Deferred += len(pending) - i - 1 + len(blocked)
					pending, blocked = nil, nil
					break
				}
				continue
			}

			if err := e.commit(ctx, q, out); err != nil {
				return report, err
			}
			report.Succeeded++
			progressed = true
			e.metrics.ItemProcessed(string(q.Operation), "success")

			queued.remove(q)
			if out.canonicalID != "" && out.canonicalID != q.EntryID {
				queued.rekey(q.EntryID, out.canonicalID)
				retarget(pending[i+1:], q.EntryID, out.canonicalID)
				retarget(blocked, q.EntryID, out.canonicalID)
			}
		}

		if !progressed {
			report.Deferred += len(blocked)
			break
		}
		pending = blocked
	}
	e.state.SetProgress(total, total)

	if err := e.finishReport(ctx, &report); err != nil {
		return report, err
	}
	if report.Attempted > 0 {
		e.log.Info(ctx, "drain finished",
			"succeeded", report.Succeeded, "failed", report.Failed,
			"abandoned", report.Abandoned, "remaining", report.Remaining)
	}
	return report, nil
}

// recordFailure stores a failed attempt. It reports whether the entry has
// now reached the retry ceiling.
func (e *Engine) recordFailure(ctx context.Context, q models.QueueEntry, cause error) (bool, error) {
	retries := q.RetryCount + 1
	abandoned := retries >= e.cfg.RetryCeiling

	var notBefore *time.Time
	if !abandoned {
		t := e.now().Add(e.backoff(retries))
		notBefore = &t
	}

	if err := e.store.Queue().MarkFailed(ctx, q.ID, retries, cause.Error(), notBefore); err != nil {
		return false, fmt.Errorf("record failure of queue entry %d: %w", q.ID, err)
	}

	if abandoned {
		ce := &CeilingError{QueueID: q.ID, Operation: q.Operation, EntryID: q.EntryID, Retries: retries, Cause: cause}
		e.state.SetLastError(ce.Error())
		e.metrics.ItemProcessed(string(q.Operation), "abandoned")
		e.log.Error(ctx, "queue entry abandoned",
			"queue_id", q.ID, "operation", q.Operation, "entry_id", q.EntryID, "error", ce)
		return true, nil
	}

	e.metrics.ItemProcessed(string(q.Operation), "failure")
	e.log.Warn(ctx, "queue entry failed",
		"queue_id", q.ID, "operation", q.Operation, "entry_id", q.EntryID,
		"retry_count", retries, "not_before", notBefore, "error", cause)
	return false, nil
}

// backoff is BaseDelay * 2^retries.
func (e *Engine) backoff(retries int) time.Duration {
	if retries > 20 {
		retries = 20
	}
	return e.cfg.BaseDelay * time.Duration(1<<uint(retries))
}

func retarget(entries []models.QueueEntry, oldID, newID string) {
	for i := range entries {
		if entries[i].EntryID == oldID {
			entries[i].EntryID = newID
		}
	}
}

func (e *Engine) finishReport(ctx context.Context, report *DrainReport) error {
	entries, err := e.store.Queue().List(ctx)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	report.Remaining = len(entries)
	heads := newLedger(entries)
	for _, q := range entries {
		if q.RetryCount >= e.cfg.RetryCeiling || !heads.isHead(q) {
			continue
		}
		at := q.EnqueuedAt
		if q.NotBefore != nil {
			at = *q.NotBefore
		}
		if report.NextAttempt == nil || at.Before(*report.NextAttempt) {
			t := at
			report.NextAttempt = &t
		}
	}
	return nil
}

func (e *Engine) refreshQueueLength(ctx context.Context) {
	n, err := e.store.Queue().Count(ctx)
	if err != nil {
		e.log.Warn(ctx, "count queue entries", "error", err)
		return
	}
	e.state.SetQueueLength(n)
	e.metrics.SetQueueLength(n)
}

// LastSync returns the time of the last successful remote write.
func (e *Engine) LastSync(ctx context.Context) (*time.Time, error) {
	return metadata.GetTime(ctx, e.store.Metadata(), common.MetaLastSyncTimestamp)
}

// sortForDrain orders entries by retry count, then enqueue time, then id.
func sortForDrain(entries []models.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.RetryCount != b.RetryCount {
			return a.RetryCount < b.RetryCount
		}
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		return a.ID < b.ID
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
