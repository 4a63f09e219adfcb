package syncqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/logsync/internal/backend"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/logsync/internal/client/store"
	"github.com/dmitrijs2005/logsync/internal/common"
)

// outcome is what a successful remote call tells the local store.
type outcome struct {
	// canonicalID is the backend id of the record when it differs from or
	// confirms the queued one.
	canonicalID string
	integrity   *models.Integrity
	deleted     bool
}

func (e *Engine) send(ctx context.Context, q models.QueueEntry) (outcome, error) {
	rec, err := q.Record()
	if err != nil {
		return outcome{}, err
	}

	switch q.Operation {
	case models.OpInsert:
		return e.sendInsert(ctx, q, rec)
	case models.OpUpdate:
		return e.sendUpdate(ctx, q, rec)
	case models.OpDelete:
		return e.sendDelete(ctx, q, rec)
	}
	return outcome{}, fmt.Errorf("queue entry %d: unknown operation %q", q.ID, q.Operation)
}

func (e *Engine) sendInsert(ctx context.Context, q models.QueueEntry, rec *models.Record) (outcome, error) {
	if rec == nil {
		return outcome{}, fmt.Errorf("insert %s: entry data missing", q.EntryID)
	}

	row := backend.NewRow{Entry: rec.Entry}
	// non-canonical ids are left for the backend to assign
	if models.IsCanonicalID(q.EntryID) {
		row.ID = q.EntryID
	}

	remote, err := e.backend.Insert(ctx, row)
	if err != nil {
		return outcome{}, fmt.Errorf("insert %s: %w", q.EntryID, err)
	}
	if remote.ContentHash == nil {
		e.log.Warn(ctx, "backend returned no content hash", "entry_id", remote.ID)
	}
	return outcome{
		canonicalID: remote.ID,
		integrity:   integrityOf(remote),
	}, nil
}

func (e *Engine) sendUpdate(ctx context.Context, q models.QueueEntry, rec *models.Record) (outcome, error) {
	if rec == nil {
		return outcome{}, fmt.Errorf("update %s: entry data missing", q.EntryID)
	}

	id, err := e.canonical(ctx, q.EntryID, rec)
	if err != nil {
		return outcome{}, fmt.Errorf("update %s: %w", q.EntryID, err)
	}
	if id == "" {
		return outcome{}, fmt.Errorf("update %s: %w: no matching backend record", q.EntryID, common.ErrNotCanonical)
	}

	// only the business payload is sent; server-owned fields never are
	remote, err := e.backend.Update(ctx, id, rec.Entry)
	if err != nil {
		return outcome{}, fmt.Errorf("update %s: %w", id, err)
	}
	return outcome{
		canonicalID: remote.ID,
		integrity:   integrityOf(remote),
	}, nil
}

func (e *Engine) sendDelete(ctx context.Context, q models.QueueEntry, rec *models.Record) (outcome, error) {
	id, err := e.canonical(ctx, q.EntryID, rec)
	if err != nil {
		return outcome{}, fmt.Errorf("delete %s: %w", q.EntryID, err)
	}
	if id == "" {
		e.log.Debug(ctx, "delete of a record the backend never saw", "entry_id", q.EntryID)
		return outcome{deleted: true}, nil
	}

	n, err := e.backend.Delete(ctx, id)
	if err != nil {
		return outcome{}, fmt.Errorf("delete %s: %w", id, err)
	}
	if n == 0 {
		e.log.Debug(ctx, "record already deleted on backend", "entry_id", id)
	}
	e.resolver.Forget(q.EntryID)
	return outcome{deleted: true}, nil
}

// canonical resolves id using the payload's business key as a hint. A
// payload without an id carries no business key.
func (e *Engine) canonical(ctx context.Context, id string, rec *models.Record) (string, error) {
	if models.IsCanonicalID(id) {
		return id, nil
	}
	var hint *models.BusinessKey
	if rec != nil && rec.ID != "" {
		k := rec.Key()
		hint = &k
	}
	return e.resolver.ResolveCanonicalID(ctx, id, hint)
}

// commit applies a successful remote call to the local store.
func (e *Engine) commit(ctx context.Context, q models.QueueEntry, out outcome) error {
	now := e.now()

	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		target := q.EntryID
		if out.canonicalID != "" && out.canonicalID != q.EntryID {
			if err := tx.Records().Rekey(ctx, q.EntryID, out.canonicalID); err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}
			if err := tx.Queue().Retarget(ctx, q.EntryID, out.canonicalID); err != nil {
				return err
			}
			target = out.canonicalID
		}

		if err := tx.Queue().Remove(ctx, q.ID); err != nil {
			return err
		}

		if !out.deleted && out.integrity != nil {
			remaining, err := tx.Queue().CountForEntry(ctx, target)
			if err != nil {
				return err
			}
			synced := remaining == 0 && out.integrity.ContentHash != nil
			err = tx.Records().ApplyIntegrity(ctx, target, *out.integrity, synced, now)
			// the record may have been deleted locally in the meantime
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}
		}

		return metadata.SetTime(ctx, tx.Metadata(), common.MetaLastSyncTimestamp, now)
	})
	if err != nil {
		return fmt.Errorf("commit queue entry %d: %w", q.ID, err)
	}

	e.state.SetLastSync(now)
	if out.canonicalID != "" && out.canonicalID != q.EntryID {
		e.log.Info(ctx, "record identity reconciled", "local_id", q.EntryID, "canonical_id", out.canonicalID)
	}
	return nil
}

func integrityOf(r models.Record) *models.Integrity {
	return &models.Integrity{
		ContentHash: r.ContentHash,
		Version:     r.Version,
		UpdatedAt:   r.UpdatedAt,
	}
}
