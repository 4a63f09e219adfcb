// Package reconcile maps locally minted record identifiers to the identifiers
// the backend assigned.
package reconcile

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/logsync/internal/backend"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/logging"
	"github.com/dmitrijs2005/logsync/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
)

type Kind int

const (
	NotFound Kind = iota
	Resolved
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Resolution is the outcome of a lookup. For Ambiguous, ID holds the first
// candidate in backend order.
type Resolution struct {
	Kind       Kind
	ID         string
	Candidates []string
}

// Err reports common.ErrReconciliationAmbiguous for low confidence results.
func (r Resolution) Err() error {
	if r.Kind == Ambiguous {
		return fmt.Errorf("%w: %d candidates", common.ErrReconciliationAmbiguous, len(r.Candidates))
	}
	return nil
}

type Config struct {
	CandidateLimit int
	CacheSize      int
}

type Reconciler struct {
	backend backend.Backend
	limit   int
	memo    *lru.Cache[string, Resolution]
	log     logging.Logger
	metrics *metrics.Metrics
}

func New(b backend.Backend, cfg Config, log logging.Logger, m *metrics.Metrics) (*Reconciler, error) {
	if cfg.CandidateLimit < 2 {
		cfg.CandidateLimit = 5
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	memo, err := lru.New[string, Resolution](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create reconciliation cache: %w", err)
	}
	return &Reconciler{
		backend: b,
		limit:   cfg.CandidateLimit,
		memo:    memo,
		log:     log,
		metrics: m,
	}, nil
}

// Resolve looks up the canonical identifier of localID. Canonical ids are
// returned as is without contacting the backend. Otherwise hint is matched
// against the backend's business keys; a nil hint resolves to NotFound.
func (r *Reconciler) Resolve(ctx context.Context, localID string, hint *models.BusinessKey) (Resolution, error) {
	if models.IsCanonicalID(localID) {
		r.metrics.Reconciled("canonical")
		return Resolution{Kind: Resolved, ID: localID}, nil
	}
	if res, ok := r.memo.Get(localID); ok {
		return res, nil
	}
	if hint == nil {
		r.metrics.Reconciled(NotFound.String())
		return Resolution{Kind: NotFound}, nil
	}

	ids, err := r.backend.FindByBusinessKey(ctx, *hint, r.limit)
	if err != nil {
		r.metrics.Reconciled("error")
		return Resolution{}, fmt.Errorf("resolve %s: %w", localID, err)
	}

	var res Resolution
	switch len(ids) {
	case 0:
		res = Resolution{Kind: NotFound}
	case 1:
		res = Resolution{Kind: Resolved, ID: ids[0], Candidates: ids}
	default:
		res = Resolution{Kind: Ambiguous, ID: ids[0], Candidates: ids}
	}
	r.metrics.Reconciled(res.Kind.String())

	if res.Kind != NotFound {
		r.memo.Add(localID, res)
	}
	return res, nil
}

// ResolveCanonicalID returns the best known canonical id for localID, or ""
// when none can be found. Ambiguous matches resolve to the first candidate.
func (r *Reconciler) ResolveCanonicalID(ctx context.Context, localID string, hint *models.BusinessKey) (string, error) {
	res, err := r.Resolve(ctx, localID, hint)
	if err != nil {
		return "", err
	}
	if res.Kind == Ambiguous {
		r.log.Warn(ctx, "low confidence reconciliation",
			"local_id", localID, "key", hint.String(), "chosen", res.ID, "candidates", len(res.Candidates))
	}
	return res.ID, nil
}

// Forget drops the memoized resolution of localID.
func (r *Reconciler) Forget(localID string) {
	r.memo.Remove(localID)
}
