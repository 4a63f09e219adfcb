package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/store"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/logging"
)

// EntryService is the logbook API used by the CLI and the control API.
// Reads come from the local store; every write changes the local record and
// queues the matching mutation in one transaction.
type EntryService interface {
	Add(ctx context.Context, e models.Entry) (models.Record, error)
	Update(ctx context.Context, id string, e models.Entry) (models.Record, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.StoredRecord, error)
	List(ctx context.Context) ([]models.Record, error)
	ListByDate(ctx context.Context, date string) ([]models.Record, error)
	Unsynced(ctx context.Context) ([]models.StoredRecord, error)
}

// Queuer is the part of the sync engine the service writes through.
type Queuer interface {
	EnqueueWith(ctx context.Context, op models.Operation, entryID string, payload *models.Record,
		apply func(ctx context.Context, tx store.Store) error) (int64, error)
}

type entryService struct {
	store store.Store
	queue Queuer
	log   logging.Logger
	now   func() time.Time
}

func NewEntryService(st store.Store, q Queuer, log logging.Logger) EntryService {
	return &entryService{store: st, queue: q, log: log, now: time.Now}
}

func (s *entryService) Add(ctx context.Context, e models.Entry) (models.Record, error) {
	if err := e.Validate(); err != nil {
		return models.Record{}, err
	}

	now := s.now()
	rec := models.Record{ID: models.NewID(), Entry: e, CreatedAt: now, UpdatedAt: now}
	if err := s.write(ctx, models.OpInsert, rec); err != nil {
		return models.Record{}, fmt.Errorf("add entry: %w", err)
	}
	return rec, nil
}

// Update re-reads the record inside the queueing transaction, so a drain
// that rekeyed it in the meantime is never undone by a stale copy.
func (s *entryService) Update(ctx context.Context, id string, e models.Entry) (models.Record, error) {
	if err := e.Validate(); err != nil {
		return models.Record{}, err
	}

	rec := &models.Record{}
	_, err := s.queue.EnqueueWith(ctx, models.OpUpdate, id, rec, func(ctx context.Context, tx store.Store) error {
		cur, err := tx.Records().Get(ctx, id)
		if err != nil {
			return err
		}
		cur.Entry = e
		cur.UpdatedAt = s.now()
		cur.Synced = false
		cur.SyncedAt = nil
		*rec = cur.Record
		return tx.Records().Put(ctx, cur)
	})
	if err != nil {
		return models.Record{}, fmt.Errorf("update entry %s: %w", id, err)
	}
	s.log.Debug(ctx, "entry saved locally", "entry_id", id, "operation", models.OpUpdate)
	return *rec, nil
}

// Delete removes the local record and queues the remote delete. The local
// copy travels with the mutation so a record without a backend id can still
// be found by its business key. A record that only exists remotely is
// deleted there as well.
func (s *entryService) Delete(ctx context.Context, id string) error {
	rec := &models.Record{}
	_, err := s.queue.EnqueueWith(ctx, models.OpDelete, id, rec, func(ctx context.Context, tx store.Store) error {
		cur, err := tx.Records().Get(ctx, id)
		switch {
		case err == nil:
			*rec = cur.Record
		case !errors.Is(err, common.ErrNotFound):
			return err
		}
		return tx.Records().Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	return nil
}

func (s *entryService) write(ctx context.Context, op models.Operation, rec models.Record) error {
	_, err := s.queue.EnqueueWith(ctx, op, rec.ID, &rec, func(ctx context.Context, tx store.Store) error {
		return tx.Records().Put(ctx, &models.StoredRecord{Record: rec})
	})
	if err != nil {
		return err
	}
	s.log.Debug(ctx, "entry saved locally", "entry_id", rec.ID, "operation", op)
	return nil
}

func (s *entryService) Get(ctx context.Context, id string) (*models.StoredRecord, error) {
	rec, err := s.store.Records().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	return rec, nil
}

func (s *entryService) List(ctx context.Context) ([]models.Record, error) {
	recs, err := s.store.Records().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return recs, nil
}

func (s *entryService) ListByDate(ctx context.Context, date string) ([]models.Record, error) {
	recs, err := s.store.Records().ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list entries for %s: %w", date, err)
	}
	return recs, nil
}

func (s *entryService) Unsynced(ctx context.Context) ([]models.StoredRecord, error) {
	recs, err := s.store.Records().ListUnsynced(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unsynced entries: %w", err)
	}
	return recs, nil
}
