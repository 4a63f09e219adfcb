// Package legacy imports the logbook exported from the old browser-only
// application. Imported entries keep their legacy identifiers and are
// queued as inserts; the backend assigns canonical ids on first sync.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/logsync/internal/client/store"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/logging"
)

// Source is the import_source of every imported entry.
const Source = "localStorage"

// Status is stored under the legacy_import metadata key once an import
// completes.
type Status struct {
	Completed  bool      `json:"completed"`
	MigratedAt time.Time `json:"migrated_at"`
	Imported   int       `json:"entries_count"`
	Skipped    int       `json:"skipped"`
	Invalid    int       `json:"invalid"`
}

// Queuer appends a mutation together with a local change.
type Queuer interface {
	EnqueueWith(ctx context.Context, op models.Operation, entryID string, payload *models.Record,
		apply func(ctx context.Context, tx store.Store) error) (int64, error)
}

// Remote lists the legacy ids the backend already holds, so an export
// imported on another device is not imported twice.
type Remote interface {
	ImportedOriginalIDs(ctx context.Context, source string) ([]string, error)
}

type Importer struct {
	store  store.Store
	queue  Queuer
	remote Remote
	log    logging.Logger
	now    func() time.Time
}

// NewImporter builds an importer. remote may be nil, in which case only
// local records and markers are consulted.
func NewImporter(st store.Store, q Queuer, remote Remote, log logging.Logger) *Importer {
	return &Importer{store: st, queue: q, remote: remote, log: log, now: time.Now}
}

// Status returns the stored import status, or nil when no import ran.
func (im *Importer) Status(ctx context.Context) (*Status, error) {
	var s Status
	ok, err := metadata.GetJSON(ctx, im.store.Metadata(), common.MetaLegacyImport, &s)
	if err != nil {
		return nil, fmt.Errorf("load import status: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Import reads a JSON array of legacy entries from r. A completed import is
// not repeated unless force is set; entries whose legacy id was already
// imported are skipped either way.
func (im *Importer) Import(ctx context.Context, r io.Reader, force bool) (Status, error) {
	prev, err := im.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	if prev != nil && prev.Completed && !force {
		im.log.Info(ctx, "legacy import already completed", "migrated_at", prev.MigratedAt)
		return *prev, nil
	}

	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return Status{}, fmt.Errorf("decode legacy logbook: %w", err)
	}

	seen, err := im.importedIDs(ctx)
	if err != nil {
		return Status{}, err
	}

	now := im.now()
	stamp := now.UTC().Format(time.RFC3339Nano)
	status := Status{Completed: true, MigratedAt: now}

	for _, l := range entries {
		if l.ID != "" && seen[l.ID] {
			status.Skipped++
			continue
		}
		e := l.convert(stamp)
		if err := e.Validate(); err != nil {
			im.log.Warn(ctx, "legacy entry skipped", "original_id", l.ID, "error", err)
			status.Invalid++
			continue
		}

		id := l.ID
		if id == "" {
			id = models.NewID()
		}
		rec := models.Record{ID: id, Entry: e, CreatedAt: now, UpdatedAt: now}
		_, err := im.queue.EnqueueWith(ctx, models.OpInsert, id, &rec, func(ctx context.Context, tx store.Store) error {
			if err := tx.Records().Put(ctx, &models.StoredRecord{Record: rec}); err != nil {
				return err
			}
			if l.ID == "" {
				return nil
			}
			return tx.Metadata().Set(ctx, common.MetaLegacyImportedPrefix+l.ID, []byte(stamp))
		})
		if err != nil {
			return status, fmt.Errorf("import legacy entry %s: %w", l.ID, err)
		}
		if l.ID != "" {
			seen[l.ID] = true
		}
		status.Imported++
	}

	if err := metadata.SetJSON(ctx, im.store.Metadata(), common.MetaLegacyImport, status); err != nil {
		return status, fmt.Errorf("save import status: %w", err)
	}
	im.log.Info(ctx, "legacy import finished",
		"imported", status.Imported, "skipped", status.Skipped, "invalid", status.Invalid)
	return status, nil
}

// Reset forgets the import status so the next Import runs again.
func (im *Importer) Reset(ctx context.Context) error {
	if err := im.store.Metadata().Delete(ctx, common.MetaLegacyImport); err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("reset import status: %w", err)
	}
	return nil
}

// importedIDs collects the legacy ids imported before: the markers written by
// Import, those found on local records and those the backend reports.
// Markers outlive deleted records, so a forced re-import does not bring them
// back. An unreachable backend leaves only the local view.
func (im *Importer) importedIDs(ctx context.Context) (map[string]bool, error) {
	keys, err := im.store.Metadata().Keys(ctx, common.MetaLegacyImportedPrefix)
	if err != nil {
		return nil, fmt.Errorf("load import markers: %w", err)
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[strings.TrimPrefix(k, common.MetaLegacyImportedPrefix)] = true
	}

	recs, err := im.store.Records().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	for _, r := range recs {
		if !r.IsImported || r.ImportSource == nil || *r.ImportSource != Source {
			continue
		}
		if id, ok := r.ImportMetadata["original_id"].(string); ok && id != "" {
			out[id] = true
		}
	}

	if im.remote == nil {
		return out, nil
	}
	remote, err := im.remote.ImportedOriginalIDs(ctx, Source)
	switch {
	case errors.Is(err, common.ErrUnreachable):
		im.log.Warn(ctx, "backend unreachable, checking imported entries locally only", "error", err)
	case err != nil:
		return nil, fmt.Errorf("load imported entries from backend: %w", err)
	}
	for _, id := range remote {
		out[id] = true
	}
	return out, nil
}
