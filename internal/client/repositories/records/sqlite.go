package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/dbx"
)

var ErrUnsyncedWithoutHash = errors.New("record cannot be marked synced without a content hash")

const selectColumns = `id, owner_id, data, content_hash, version, synced, synced_at, created_at, updated_at`

// SQLiteRepository implements Repository on top of a DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, rec *models.StoredRecord) error {
	data, err := json.Marshal(rec.Entry)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO records (id, owner_id, date, registration, departure, destination, data,
			content_hash, version, synced, synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			date = excluded.date,
			registration = excluded.registration,
			departure = excluded.departure,
			destination = excluded.destination,
			data = excluded.data,
			content_hash = excluded.content_hash,
			version = excluded.version,
			synced = excluded.synced,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at
	`,
		rec.ID, rec.OwnerID, rec.Date, rec.Registration, rec.Departure, rec.Destination, data,
		rec.ContentHash, rec.Version, rec.Synced, unixPtr(rec.SyncedAt),
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to put record %s: %w", rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.StoredRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM records WHERE id = ?`, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Record, error) {
	stored, err := r.query(ctx, `SELECT `+selectColumns+` FROM records ORDER BY date DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	return public(stored), nil
}

func (r *SQLiteRepository) ListByDate(ctx context.Context, date string) ([]models.Record, error) {
	stored, err := r.query(ctx, `SELECT `+selectColumns+` FROM records WHERE date = ? ORDER BY created_at`, date)
	if err != nil {
		return nil, err
	}
	return public(stored), nil
}

func (r *SQLiteRepository) ListUnsynced(ctx context.Context) ([]models.StoredRecord, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM records WHERE synced = 0 ORDER BY created_at`)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) ApplyIntegrity(ctx context.Context, id string, in models.Integrity, synced bool, at time.Time) error {
	if synced && in.ContentHash == nil {
		return fmt.Errorf("record %s: %w", id, ErrUnsyncedWithoutHash)
	}

	var syncedAt *int64
	if synced {
		v := at.UnixNano()
		syncedAt = &v
	}
	updatedAt := in.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = at
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE records
		SET content_hash = COALESCE(?, content_hash), version = ?, synced = ?, synced_at = ?, updated_at = ?
		WHERE id = ?
	`, in.ContentHash, in.Version, synced, syncedAt, updatedAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to apply integrity to record %s: %w", id, err)
	}
	n, err := dbx.Affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Rekey(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	// the old row wins over a copy already stored under the new id; callers
	// run this inside a transaction
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM records WHERE id = ? AND EXISTS (SELECT 1 FROM records WHERE id = ?)
	`, newID, oldID); err != nil {
		return fmt.Errorf("failed to rekey record %s -> %s: %w", oldID, newID, err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE records SET id = ? WHERE id = ?`, newID, oldID)
	if err != nil {
		return fmt.Errorf("failed to rekey record %s -> %s: %w", oldID, newID, err)
	}
	n, err := dbx.Affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", oldID, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]models.StoredRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var out []models.StoredRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.StoredRecord, error) {
	var (
		rec                  models.StoredRecord
		data                 []byte
		hash                 sql.NullString
		syncedAt             sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := s.Scan(&rec.ID, &rec.OwnerID, &data, &hash, &rec.Version, &rec.Synced, &syncedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &rec.Entry); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", rec.ID, err)
	}
	if hash.Valid {
		h := hash.String
		rec.ContentHash = &h
	}
	if syncedAt.Valid {
		t := time.Unix(0, syncedAt.Int64).UTC()
		rec.SyncedAt = &t
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &rec, nil
}

func public(in []models.StoredRecord) []models.Record {
	out := make([]models.Record, 0, len(in))
	for _, s := range in {
		out = append(out, s.Record)
	}
	return out
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixNano()
	return &v
}
