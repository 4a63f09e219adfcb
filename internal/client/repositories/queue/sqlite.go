package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, e *models.QueueEntry) (int64, error) {
	if !e.Operation.Valid() {
		return 0, fmt.Errorf("unknown operation %q", e.Operation)
	}
	var payload any
	if len(e.Payload) > 0 {
		payload = []byte(e.Payload)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_queue (operation, entry_id, payload, enqueued_at, retry_count, last_error, not_before)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(e.Operation), e.EntryID, payload, e.EnqueuedAt.UnixNano(), e.RetryCount, e.LastError, unixPtr(e.NotBefore))
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s %s: %w", e.Operation, e.EntryID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue id: %w", err)
	}
	e.ID = id
	return id, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, operation, entry_id, payload, enqueued_at, retry_count, last_error, not_before
		FROM sync_queue ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var out []models.QueueEntry
	for rows.Next() {
		var (
			e          models.QueueEntry
			op         string
			payload    []byte
			enqueuedAt int64
			lastError  sql.NullString
			notBefore  sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &op, &e.EntryID, &payload, &enqueuedAt, &e.RetryCount, &lastError, &notBefore); err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}
		e.Operation = models.Operation(op)
		if len(payload) > 0 {
			e.Payload = payload
		}
		e.EnqueuedAt = time.Unix(0, enqueuedAt).UTC()
		if lastError.Valid {
			s := lastError.String
			e.LastError = &s
		}
		if notBefore.Valid {
			t := time.Unix(0, notBefore.Int64).UTC()
			e.NotBefore = &t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, retryCount int, lastError string, notBefore *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET retry_count = ?, last_error = ?, not_before = ? WHERE id = ?
	`, retryCount, lastError, unixPtr(notBefore), id)
	if err != nil {
		return fmt.Errorf("failed to update queue entry %d: %w", id, err)
	}
	n, err := dbx.Affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue entry %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove queue entry %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CountForEntry(ctx context.Context, entryID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue WHERE entry_id = ?`, entryID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue entries for %s: %w", entryID, err)
	}
	return n, nil
}

func (r *SQLiteRepository) ResetFailed(ctx context.Context, ceiling int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET retry_count = 0, not_before = NULL, last_error = NULL WHERE retry_count >= ?
	`, ceiling)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed queue entries: %w", err)
	}
	n, err := dbx.Affected(res)
	return int(n), err
}

func (r *SQLiteRepository) Retarget(ctx context.Context, oldID, newID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE sync_queue SET entry_id = ? WHERE entry_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("failed to retarget queue entries %s -> %s: %w", oldID, newID, err)
	}
	return nil
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixNano()
	return &v
}
