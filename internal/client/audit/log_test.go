package audit

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/logsync/internal/backend/backendtest"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/reconcile"
	"github.com/dmitrijs2005/logsync/internal/client/store"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/logging"
	"github.com/dmitrijs2005/logsync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ticking returns a clock that advances one second per call.
func ticking(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newLog(t *testing.T) (*Log, *backendtest.Fake, store.Store) {
	t.Helper()
	fake := backendtest.New()
	fake.Now = ticking(time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC))
	r, err := reconcile.New(fake, reconcile.Config{}, logging.Discard(), metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)
	st := store.NewMemory()
	return New(fake, st, r, logging.Discard()), fake, st
}

func entry(remarks string) models.Entry {
	return models.Entry{
		Date: "2024-06-10", Registration: "F-GKXA", Departure: "LFPG", Destination: "EGLL",
		Remarks: &remarks,
	}
}

func validation(entryID string, at time.Time) models.AuditEntry {
	reason := models.ValidationReason
	return models.AuditEntry{
		EntryID:           entryID,
		Action:            models.ActionExport,
		NewData:           map[string]any{"validation_result": map[string]any{"is_valid": true}},
		Timestamp:         at,
		IsComplianceEvent: true,
		ComplianceReason:  &reason,
	}
}

func TestRecord_RejectsUnknownAction(t *testing.T) {
	l, fake, _ := newLog(t)
	_, err := l.Record(context.Background(), models.AuditEntry{EntryID: models.NewID(), Action: "archive"})
	require.Error(t, err)
	assert.Zero(t, fake.Calls("InsertAudit"))
}

func TestRecord_AssignsTimestamp(t *testing.T) {
	l, _, _ := newLog(t)
	out, err := l.Record(context.Background(), models.AuditEntry{EntryID: models.NewID(), Action: models.ActionSign})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ID)
	assert.False(t, out.Timestamp.IsZero())
}

func TestHistory_DedupsValidationsPerMinute(t *testing.T) {
	l, fake, _ := newLog(t)
	rec := fake.Seed(entry("first"))

	base := time.Date(2024, 6, 11, 12, 0, 0, 0, time.UTC)
	fake.AppendAudit(validation(rec.ID, base.Add(5*time.Second)))
	fake.AppendAudit(validation(rec.ID, base.Add(40*time.Second)))
	fake.AppendAudit(validation(rec.ID, base.Add(5*time.Minute)))

	got, err := l.History(context.Background(), rec.ID)
	require.NoError(t, err)

	var stamps []time.Time
	for _, a := range got {
		if a.IsValidation() {
			stamps = append(stamps, a.Timestamp)
		}
	}
	assert.Equal(t, []time.Time{base.Add(5 * time.Minute), base.Add(40 * time.Second)}, stamps)
	// the create entry survives
	assert.Len(t, got, 3)
	assert.Equal(t, models.ActionCreate, got[2].Action)
}

func TestDedup_KeepsNonValidationEntries(t *testing.T) {
	at := time.Date(2024, 6, 11, 12, 0, 0, 0, time.UTC)
	id := models.NewID()
	in := []models.AuditEntry{
		{EntryID: id, Action: models.ActionUpdate, Timestamp: at.Add(30 * time.Second)},
		validation(id, at.Add(20*time.Second)),
		{EntryID: id, Action: models.ActionUpdate, Timestamp: at.Add(10 * time.Second)},
		validation(id, at),
		validation(models.NewID(), at),
	}
	got := Dedup(in)
	require.Len(t, got, 4)
	assert.Equal(t, models.ActionUpdate, got[2].Action)
	assert.NotEqual(t, id, got[3].EntryID)
}

func TestHistory_UnsyncedRecord(t *testing.T) {
	l, fake, st := newLog(t)
	require.NoError(t, st.Records().Put(context.Background(), &models.StoredRecord{
		Record: models.Record{ID: "local-1", Entry: entry("offline")},
	}))

	got, err := l.History(context.Background(), "local-1")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, fake.Calls("ListAudit"))
}

func TestRevisions_NewestFirst(t *testing.T) {
	l, fake, _ := newLog(t)
	rec := fake.Seed(entry("v1"))
	_, err := fake.Update(context.Background(), rec.ID, entry("v2"))
	require.NoError(t, err)

	revs, err := l.Revisions(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, int64(2), revs[0].Version)
	assert.Equal(t, "v1", *revs[1].Data.Remarks)
}

func TestRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l, fake, st := newLog(t)
	rec := fake.Seed(entry("original"))
	_, err := fake.Update(ctx, rec.ID, entry("edited"))
	require.NoError(t, err)

	res, err := l.Restore(ctx, rec.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, "original", *res.Record.Remarks)
	assert.Equal(t, int64(3), res.Record.Version)
	assert.Equal(t, []string{"remarks"}, res.Audit.ChangedFields)
	require.Len(t, res.Diff, 1)
	assert.Equal(t, models.FieldDiff{Field: "remarks", OldValue: "edited", NewValue: "original"}, res.Diff[0])

	local, err := st.Records().Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, local.Synced)
	assert.Equal(t, "original", *local.Remarks)

	history, err := l.History(ctx, rec.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, models.ActionRestore, history[0].Action)
	assert.True(t, history[0].IsComplianceEvent)
	assert.Equal(t, "Restored to version 1", *history[0].ComplianceReason)
}

func queueUpdate(t *testing.T, st store.Store, id string, e models.Entry) {
	t.Helper()
	ctx := context.Background()
	rec := models.Record{ID: id, Entry: e}
	require.NoError(t, st.Records().Put(ctx, &models.StoredRecord{Record: rec}))
	payload, err := models.EncodePayload(&rec)
	require.NoError(t, err)
	_, err = st.Queue().Add(ctx, &models.QueueEntry{Operation: models.OpUpdate, EntryID: id, Payload: payload, EnqueuedAt: time.Now()})
	require.NoError(t, err)
}

func TestRestore_RefusedWhileLocalEditPending(t *testing.T) {
	ctx := context.Background()
	l, fake, st := newLog(t)
	rec := fake.Seed(entry("v1"))
	_, err := fake.Update(ctx, rec.ID, entry("v2"))
	require.NoError(t, err)
	queueUpdate(t, st, rec.ID, entry("local-edit"))
	updates := fake.Calls("Update")

	_, err = l.Restore(ctx, rec.ID, 1)
	require.ErrorIs(t, err, common.ErrPendingChanges)
	assert.Equal(t, updates, fake.Calls("Update"))

	local, err := st.Records().Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, local.Synced)
	assert.Equal(t, "local-edit", *local.Remarks)
	row, _ := fake.Row(rec.ID)
	assert.Equal(t, "v2", *row.Remarks)
}

func TestRestore_RefusedWhileLegacyIDPending(t *testing.T) {
	ctx := context.Background()
	l, fake, st := newLog(t)
	fake.Seed(entry("v1"))
	queueUpdate(t, st, "legacy-3", entry("local-edit"))

	_, err := l.Restore(ctx, "legacy-3", 1)
	require.ErrorIs(t, err, common.ErrPendingChanges)
	assert.Zero(t, fake.Calls("Update"))
}

// editingBackend queues a local edit while the restore's backend write is
// in flight.
type editingBackend struct {
	*backendtest.Fake
	t  *testing.T
	st store.Store
}

func (b editingBackend) Update(ctx context.Context, id string, e models.Entry) (models.Record, error) {
	rec, err := b.Fake.Update(ctx, id, e)
	queueUpdate(b.t, b.st, id, entry("local-edit"))
	return rec, err
}

func TestRestore_KeepsEditQueuedDuringRestore(t *testing.T) {
	ctx := context.Background()
	_, fake, st := newLog(t)
	r, err := reconcile.New(fake, reconcile.Config{}, logging.Discard(), metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)
	l := New(editingBackend{Fake: fake, t: t, st: st}, st, r, logging.Discard())

	rec := fake.Seed(entry("v1"))
	_, err = fake.Update(ctx, rec.ID, entry("v2"))
	require.NoError(t, err)

	_, err = l.Restore(ctx, rec.ID, 1)
	require.NoError(t, err)

	local, err := st.Records().Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, local.Synced)
	assert.Equal(t, "local-edit", *local.Remarks)
}

func TestRestore_MissingVersion(t *testing.T) {
	l, fake, _ := newLog(t)
	rec := fake.Seed(entry("original"))

	_, err := l.Restore(context.Background(), rec.ID, 7)
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Zero(t, fake.Calls("Update"))
}

func TestRestore_NeverSynced(t *testing.T) {
	l, _, _ := newLog(t)
	_, err := l.Restore(context.Background(), "local-9", 1)
	require.ErrorIs(t, err, common.ErrNotCanonical)
}

func TestDiff(t *testing.T) {
	oldData := map[string]any{"remarks": "a", "route": nil, "flight_conditions": []any{"day"}}
	newData := map[string]any{"remarks": "a", "route": "DCT", "flight_conditions": []any{"night"}}

	got := Diff(oldData, newData, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "flight_conditions", got[0].Field)
	assert.Equal(t, "[\n  \"day\"\n]", got[0].OldValue)
	assert.Equal(t, models.FieldDiff{Field: "route", OldValue: nil, NewValue: "DCT"}, got[1])

	only := Diff(oldData, newData, []string{"remarks"})
	assert.Equal(t, []models.FieldDiff{{Field: "remarks", OldValue: "a", NewValue: "a"}}, only)
}
