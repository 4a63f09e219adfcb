// Package audit reads and appends the backend's audit trail and restores
// records from revision snapshots.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/logsync/internal/backend"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/store"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/logging"
)

// Resolver maps local ids to canonical backend ids.
type Resolver interface {
	ResolveCanonicalID(ctx context.Context, localID string, hint *models.BusinessKey) (string, error)
}

type Log struct {
	backend  backend.Backend
	store    store.Store
	resolver Resolver
	log      logging.Logger
}

func New(b backend.Backend, st store.Store, r Resolver, log logging.Logger) *Log {
	return &Log{backend: b, store: st, resolver: r, log: log}
}

// Record appends a to the audit trail. The backend assigns the timestamp.
func (l *Log) Record(ctx context.Context, a models.AuditEntry) (models.AuditEntry, error) {
	if !a.Action.Valid() {
		return models.AuditEntry{}, fmt.Errorf("record audit entry: unknown action %q", a.Action)
	}
	if a.EntryID == "" {
		return models.AuditEntry{}, errors.New("record audit entry: entry id is required")
	}
	out, err := l.backend.InsertAudit(ctx, a)
	if err != nil {
		return models.AuditEntry{}, fmt.Errorf("record %s audit entry for %s: %w", a.Action, a.EntryID, err)
	}
	return out, nil
}

// History returns the audit trail of entryID newest first, keeping only the
// newest automated validation per minute.
func (l *Log) History(ctx context.Context, entryID string) ([]models.AuditEntry, error) {
	id, err := l.canonical(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", entryID, err)
	}
	if id == "" {
		return nil, nil
	}

	entries, err := l.backend.ListAudit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", entryID, err)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	return Dedup(entries), nil
}

// Dedup drops automated validation entries that are followed by a newer one
// for the same record within the same calendar minute. entries must be
// ordered newest first.
func Dedup(entries []models.AuditEntry) []models.AuditEntry {
	type key struct {
		entryID string
		minute  time.Time
	}
	seen := map[key]bool{}

	out := make([]models.AuditEntry, 0, len(entries))
	for _, a := range entries {
		if a.IsValidation() {
			k := key{a.EntryID, a.Timestamp.UTC().Truncate(time.Minute)}
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, a)
	}
	return out
}

// Revisions returns the snapshots of entryID, newest version first.
func (l *Log) Revisions(ctx context.Context, entryID string) ([]models.RevisionEntry, error) {
	id, err := l.canonical(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("revisions of %s: %w", entryID, err)
	}
	if id == "" {
		return nil, nil
	}

	revs, err := l.backend.ListRevisions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("revisions of %s: %w", entryID, err)
	}
	sort.SliceStable(revs, func(i, j int) bool { return revs[i].Version > revs[j].Version })
	return revs, nil
}

// RestoreResult is the outcome of a restore.
type RestoreResult struct {
	Record models.Record      `json:"record"`
	Audit  models.AuditEntry  `json:"audit"`
	Diff   []models.FieldDiff `json:"diff"`
}

// Restore writes the business payload of revision version back to the
// record. Identity, ownership, timestamps, hash and version are never
// restored; the backend assigns new ones. A record with queued mutations is
// refused with common.ErrPendingChanges until they have synced.
func (l *Log) Restore(ctx context.Context, entryID string, version int64) (RestoreResult, error) {
	id, err := l.canonical(ctx, entryID)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("restore %s: %w", entryID, err)
	}
	if id == "" {
		return RestoreResult{}, fmt.Errorf("restore %s: %w: record was never synced", entryID, common.ErrNotCanonical)
	}
	if err := l.ensureNothingPending(ctx, l.store, entryID, id); err != nil {
		return RestoreResult{}, fmt.Errorf("restore %s: %w", entryID, err)
	}

	target, err := l.backend.GetRevision(ctx, id, version)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("restore %s to version %d: %w", id, version, err)
	}
	revs, err := l.backend.ListRevisions(ctx, id)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("restore %s: %w", id, err)
	}
	var current models.Entry
	if len(revs) > 0 {
		sort.SliceStable(revs, func(i, j int) bool { return revs[i].Version > revs[j].Version })
		current = revs[0].Data
	}

	updated, err := l.backend.Update(ctx, id, target.Data)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("restore %s to version %d: %w", id, version, err)
	}

	if err := l.refreshLocal(ctx, entryID, updated); err != nil {
		return RestoreResult{}, fmt.Errorf("restore %s: %w", id, err)
	}

	oldData, newData := current.Fields(), target.Data.Fields()
	changed := models.ChangedFields(current, target.Data)
	reason := fmt.Sprintf("Restored to version %d", version)
	res := RestoreResult{Record: updated, Diff: Diff(oldData, newData, changed)}

	res.Audit, err = l.Record(ctx, models.AuditEntry{
		EntryID:           id,
		Action:            models.ActionRestore,
		OldData:           oldData,
		NewData:           newData,
		ChangedFields:     changed,
		IsComplianceEvent: true,
		ComplianceReason:  &reason,
	})
	if err != nil {
		return res, fmt.Errorf("restore %s: %w", id, err)
	}

	l.log.Info(ctx, "record restored", "entry_id", id, "version", version, "new_version", updated.Version)
	return res, nil
}

// ensureNothingPending fails when a mutation for any of ids is queued.
func (l *Log) ensureNothingPending(ctx context.Context, st store.Store, ids ...string) error {
	for _, id := range ids {
		n, err := st.Queue().CountForEntry(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d queued for %s", common.ErrPendingChanges, n, id)
		}
	}
	return nil
}

// refreshLocal stores the restored row, replacing a record still kept under
// its local id. A mutation queued after the backend write is newer than the
// restore, so the local record is then left for it to sync.
func (l *Log) refreshLocal(ctx context.Context, localID string, rec models.Record) error {
	return l.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		err := l.ensureNothingPending(ctx, tx, localID, rec.ID)
		if errors.Is(err, common.ErrPendingChanges) {
			l.log.Warn(ctx, "local edit queued during restore, keeping it", "entry_id", rec.ID)
			return nil
		}
		if err != nil {
			return err
		}

		if localID != rec.ID {
			if err := tx.Records().Rekey(ctx, localID, rec.ID); err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}
		}

		stored := &models.StoredRecord{Record: rec, Synced: rec.ContentHash != nil}
		if stored.Synced {
			now := time.Now()
			stored.SyncedAt = &now
		}
		return tx.Records().Put(ctx, stored)
	})
}

func (l *Log) canonical(ctx context.Context, entryID string) (string, error) {
	if models.IsCanonicalID(entryID) {
		return entryID, nil
	}
	var hint *models.BusinessKey
	rec, err := l.store.Records().Get(ctx, entryID)
	switch {
	case err == nil:
		k := rec.Key()
		hint = &k
	case !errors.Is(err, common.ErrNotFound):
		return "", err
	}
	return l.resolver.ResolveCanonicalID(ctx, entryID, hint)
}
