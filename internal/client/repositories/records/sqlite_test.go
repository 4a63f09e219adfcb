package records

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/migrations"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

func newRecord(id, date string) *models.StoredRecord {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.StoredRecord{
		Record: models.Record{
			ID: id,
			Entry: models.Entry{
				Date:         date,
				Registration: "ABC123",
				Departure:    "KPAO",
				Destination:  "KSQL",
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func TestPutAndGet_RoundTrip(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	rec := newRecord("local-1", "2024-03-01")
	rec.FlightConditions = []string{"IMC"}
	require.NoError(t, r.Put(ctx, rec))

	got, err := r.Get(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Entry, got.Entry)
	assert.False(t, got.Synced)
	assert.Nil(t, got.ContentHash)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestPut_UpsertReplacesPayload(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	rec := newRecord("r1", "2024-03-01")
	require.NoError(t, r.Put(ctx, rec))
	rec.Registration = "N999"
	require.NoError(t, r.Put(ctx, rec))

	got, err := r.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "N999", got.Registration)
}

func TestGet_Missing_ReturnsNotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	_, err := r.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetAll_OrderAndNoBookkeeping(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, newRecord("a", "2024-03-01")))
	require.NoError(t, r.Put(ctx, newRecord("b", "2024-03-05")))

	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "a", all[1].ID)
}

func TestListByDateAndUnsynced(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, newRecord("a", "2024-03-01")))
	require.NoError(t, r.Put(ctx, newRecord("b", "2024-03-01")))
	require.NoError(t, r.Put(ctx, newRecord("c", "2024-03-02")))

	hash := "h1"
	require.NoError(t, r.ApplyIntegrity(ctx, "a", models.Integrity{ContentHash: &hash, Version: 1}, true, time.Now()))

	byDate, err := r.ListByDate(ctx, "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	unsynced, err := r.ListUnsynced(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, u := range unsynced {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
}

func TestApplyIntegrity(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, newRecord("a", "2024-03-01")))

	err := r.ApplyIntegrity(ctx, "a", models.Integrity{Version: 1}, true, time.Now())
	require.ErrorIs(t, err, ErrUnsyncedWithoutHash)

	hash := "h1"
	at := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.ApplyIntegrity(ctx, "a", models.Integrity{ContentHash: &hash, Version: 2}, true, at))

	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Synced)
	require.NotNil(t, got.ContentHash)
	assert.Equal(t, "h1", *got.ContentHash)
	assert.Equal(t, int64(2), got.Version)
	require.NotNil(t, got.SyncedAt)
	assert.True(t, at.Equal(*got.SyncedAt))

	err = r.ApplyIntegrity(ctx, "missing", models.Integrity{ContentHash: &hash}, true, at)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestRekey(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, newRecord("local-1", "2024-03-01")))

	canonical := models.NewID()
	require.NoError(t, r.Rekey(ctx, "local-1", canonical))

	_, err := r.Get(ctx, "local-1")
	require.ErrorIs(t, err, common.ErrNotFound)
	got, err := r.Get(ctx, canonical)
	require.NoError(t, err)
	assert.Equal(t, canonical, got.ID)

	require.ErrorIs(t, r.Rekey(ctx, "local-1", "x"), common.ErrNotFound)
	require.NoError(t, r.Rekey(ctx, canonical, canonical))
}

func TestRekey_ReplacesExistingTarget(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	canonical := models.NewID()
	stale := newRecord(canonical, "2024-03-01")
	stale.Role = "SIC"
	require.NoError(t, r.Put(ctx, stale))
	local := newRecord("legacy-1", "2024-03-01")
	local.Role = "PIC"
	require.NoError(t, r.Put(ctx, local))

	require.NoError(t, r.Rekey(ctx, "legacy-1", canonical))

	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, canonical, all[0].ID)
	assert.Equal(t, "PIC", all[0].Role)

	require.ErrorIs(t, r.Rekey(ctx, "legacy-1", canonical), common.ErrNotFound)
	_, err = r.Get(ctx, canonical)
	require.NoError(t, err)
}

func TestDelete_Idempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, newRecord("a", "2024-03-01")))

	require.NoError(t, r.Delete(ctx, "a"))
	require.NoError(t, r.Delete(ctx, "a"))

	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
