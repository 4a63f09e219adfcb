// Package integrity asks the backend to recompute content hashes and compares
// them with the stored ones.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/logsync/internal/backend"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/reconcile"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/logsync/internal/client/store"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/logging"
	"github.com/dmitrijs2005/logsync/internal/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
)

// AuditMode selects when a verification is written to the audit trail.
type AuditMode string

const (
	AuditOnMismatch AuditMode = "mismatch"
	AuditAlways     AuditMode = "always"
	AuditNever      AuditMode = "never"
)

type Config struct {
	CacheTTL    time.Duration
	CacheSize   int
	Concurrency int
	AuditMode   AuditMode
}

// Resolver maps local ids to canonical backend ids.
type Resolver interface {
	Resolve(ctx context.Context, localID string, hint *models.BusinessKey) (reconcile.Resolution, error)
}

// AuditRecorder appends to the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, a models.AuditEntry) (models.AuditEntry, error)
}

// Result of one verification. An unresolved record is reported invalid with
// nil hashes and no error.
type Result struct {
	EntryID      string  `json:"entry_id"`
	CanonicalID  string  `json:"canonical_id,omitempty"`
	IsValid      bool    `json:"is_valid"`
	CurrentHash  *string `json:"current_hash"`
	ComputedHash *string `json:"computed_hash"`
	// LocalHash is the hash held by the local store; LocalStale is set when
	// it differs from the backend's current hash.
	LocalHash     *string   `json:"local_hash,omitempty"`
	LocalStale    bool      `json:"local_stale,omitempty"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
	Err           error     `json:"-"`
	Error         string    `json:"error,omitempty"`
}

// Summary aggregates a VerifyAll run.
type Summary struct {
	Total        int       `json:"total"`
	Valid        int       `json:"valid"`
	Invalid      int       `json:"invalid"`
	Failed       int       `json:"failed"`
	ValidPercent float64   `json:"valid_percent"`
	CheckedAt    time.Time `json:"checked_at"`
	Results      []Result  `json:"results,omitempty"`
}

type Verifier struct {
	store    store.Store
	backend  backend.Backend
	resolver Resolver
	audit    AuditRecorder
	cfg      Config
	cache    *expirable.LRU[string, Result]
	log      logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(st store.Store, b backend.Backend, r Resolver, a AuditRecorder, cfg Config,
	log logging.Logger, m *metrics.Metrics) *Verifier {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.AuditMode == "" {
		cfg.AuditMode = AuditOnMismatch
	}
	return &Verifier{
		store:    st,
		backend:  b,
		resolver: r,
		audit:    a,
		cfg:      cfg,
		cache:    expirable.NewLRU[string, Result](cfg.CacheSize, nil, cfg.CacheTTL),
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// Verify checks one record.
func (v *Verifier) Verify(ctx context.Context, entryID string) (Result, error) {
	res := Result{EntryID: entryID, CheckedAt: v.now()}

	var hint *models.BusinessKey
	rec, err := v.store.Records().Get(ctx, entryID)
	switch {
	case err == nil:
		k := rec.Key()
		hint = &k
		res.LocalHash = rec.ContentHash
	case !errors.Is(err, common.ErrNotFound):
		return Result{}, fmt.Errorf("verify %s: %w", entryID, err)
	}

	resolution, err := v.resolver.Resolve(ctx, entryID, hint)
	if err != nil {
		v.metrics.Verified("error")
		return Result{}, fmt.Errorf("verify %s: %w", entryID, err)
	}
	if resolution.Kind == reconcile.NotFound {
		v.metrics.Verified("unresolved")
		return res, nil
	}
	res.CanonicalID = resolution.ID
	res.LowConfidence = resolution.Kind == reconcile.Ambiguous

	check, err := v.backend.RecomputeIntegrity(ctx, resolution.ID)
	if errors.Is(err, common.ErrNotFound) {
		v.metrics.Verified("unresolved")
		return res, nil
	}
	if err != nil {
		v.metrics.Verified("error")
		return Result{}, fmt.Errorf("verify %s: %w", entryID, err)
	}

	res.IsValid = check.IsValid
	res.CurrentHash = check.CurrentHash
	res.ComputedHash = check.ComputedHash
	res.LocalStale = res.LocalHash != nil && (check.CurrentHash == nil || *res.LocalHash != *check.CurrentHash)

	if res.IsValid {
		v.metrics.Verified("valid")
	} else {
		v.metrics.Verified("invalid")
		v.log.Warn(ctx, "integrity mismatch", "entry_id", entryID, "canonical_id", res.CanonicalID,
			"current_hash", deref(check.CurrentHash), "computed_hash", deref(check.ComputedHash))
	}

	v.cache.Add(entryID, res)
	v.emitAudit(ctx, res)
	return res, nil
}

// Cached returns the last result for entryID if it has not expired.
func (v *Verifier) Cached(entryID string) (Result, bool) {
	return v.cache.Get(entryID)
}

// VerifyAll verifies every local record concurrently. Failing to list the
// records fails the batch; a failure on one record is kept in its Result.
func (v *Verifier) VerifyAll(ctx context.Context) (Summary, error) {
	recs, err := v.store.Records().GetAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("verify all: %w", err)
	}

	results := make([]Result, len(recs))
	var g errgroup.Group
	g.SetLimit(v.cfg.Concurrency)
	for i, rec := range recs {
		g.Go(func() error {
			res, err := v.Verify(ctx, rec.ID)
			if err != nil {
				res = Result{EntryID: rec.ID, CheckedAt: v.now(), Err: err, Error: err.Error()}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Total: len(results), CheckedAt: v.now(), Results: results}
	for _, r := range results {
		switch {
		case r.Err != nil:
			sum.Failed++
		case r.IsValid:
			sum.Valid++
		default:
			sum.Invalid++
		}
	}
	if sum.Total > 0 {
		sum.ValidPercent = float64(sum.Valid) * 100 / float64(sum.Total)
	}

	stats := sum
	stats.Results = nil
	if err := metadata.SetJSON(ctx, v.store.Metadata(), common.MetaIntegritySummary, stats); err != nil {
		v.log.Warn(ctx, "store integrity summary", "error", err)
	}

	v.log.Info(ctx, "integrity check finished",
		"total", sum.Total, "valid", sum.Valid, "invalid", sum.Invalid, "failed", sum.Failed)
	return sum, nil
}

// LastSummary returns the statistics of the previous VerifyAll run.
func (v *Verifier) LastSummary(ctx context.Context) (*Summary, error) {
	var s Summary
	ok, err := metadata.GetJSON(ctx, v.store.Metadata(), common.MetaIntegritySummary, &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (v *Verifier) emitAudit(ctx context.Context, res Result) {
	switch v.cfg.AuditMode {
	case AuditNever:
		return
	case AuditOnMismatch:
		if res.IsValid {
			return
		}
	}
	if v.audit == nil {
		return
	}

	reason := models.ValidationReason
	_, err := v.audit.Record(ctx, models.AuditEntry{
		EntryID: res.CanonicalID,
		Action:  models.ActionExport,
		NewData: map[string]any{
			"validation_result": map[string]any{
				"is_valid":      res.IsValid,
				"current_hash":  res.CurrentHash,
				"computed_hash": res.ComputedHash,
			},
			"validated_at": res.CheckedAt.UTC().Format(time.RFC3339),
		},
		IsComplianceEvent: true,
		ComplianceReason:  &reason,
	})
	if err != nil {
		v.log.Warn(ctx, "failed to record integrity audit entry", "entry_id", res.CanonicalID, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
