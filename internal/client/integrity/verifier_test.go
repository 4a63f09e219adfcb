package integrity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/logsync/internal/backend/backendtest"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/reconcile"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/logsync/internal/client/store"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/logging"
	"github.com/dmitrijs2005/logsync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendAudit struct{ fake *backendtest.Fake }

func (a backendAudit) Record(ctx context.Context, e models.AuditEntry) (models.AuditEntry, error) {
	return a.fake.InsertAudit(ctx, e)
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, models.AuditEntry) (models.AuditEntry, error) {
	return models.AuditEntry{}, errors.New("audit_logs: permission denied")
}

func newVerifier(t *testing.T, st store.Store, cfg Config, audit func(*backendtest.Fake) AuditRecorder) (*Verifier, *backendtest.Fake) {
	t.Helper()
	fake := backendtest.New()
	m := metrics.New(prometheus.NewRegistry())
	r, err := reconcile.New(fake, reconcile.Config{}, logging.Discard(), m)
	require.NoError(t, err)
	var a AuditRecorder = backendAudit{fake}
	if audit != nil {
		a = audit(fake)
	}
	return New(st, fake, r, a, cfg, logging.Discard(), m), fake
}

func entry(reg string) models.Entry {
	return models.Entry{Date: "2024-06-10", Registration: reg, Departure: "LFPG", Destination: "EGLL"}
}

// synced stores a backend row locally as a synced record.
func synced(t *testing.T, st store.Store, rec models.Record) {
	t.Helper()
	require.NoError(t, st.Records().Put(context.Background(), &models.StoredRecord{Record: rec, Synced: true}))
}

func validationAudits(t *testing.T, fake *backendtest.Fake, id string) []models.AuditEntry {
	t.Helper()
	all, err := fake.ListAudit(context.Background(), id)
	require.NoError(t, err)
	var out []models.AuditEntry
	for _, a := range all {
		if a.IsComplianceEvent {
			out = append(out, a)
		}
	}
	return out
}

func TestVerify_MatchingHash(t *testing.T) {
	st := store.NewMemory()
	v, fake := newVerifier(t, st, Config{}, nil)
	remote := fake.Seed(entry("F-GKXA"))
	synced(t, st, remote)

	res, err := v.Verify(context.Background(), remote.ID)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, remote.ID, res.CanonicalID)
	assert.Equal(t, *res.CurrentHash, *res.ComputedHash)
	assert.False(t, res.LocalStale)
	assert.Empty(t, validationAudits(t, fake, remote.ID), "valid results are not audited by default")

	cached, ok := v.Cached(remote.ID)
	require.True(t, ok)
	assert.True(t, cached.IsValid)
}

func TestVerify_MismatchIsAudited(t *testing.T) {
	st := store.NewMemory()
	v, fake := newVerifier(t, st, Config{}, nil)
	remote := fake.Seed(entry("F-GKXB"))
	synced(t, st, remote)
	fake.Tamper(remote.ID, "deadbeef")

	res, err := v.Verify(context.Background(), remote.ID)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "deadbeef", *res.CurrentHash)
	assert.True(t, res.LocalStale)

	audits := validationAudits(t, fake, remote.ID)
	require.Len(t, audits, 1)
	assert.Equal(t, models.ActionExport, audits[0].Action)
	require.NotNil(t, audits[0].ComplianceReason)
	assert.Equal(t, models.ValidationReason, *audits[0].ComplianceReason)
	vr, ok := audits[0].NewData["validation_result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, vr["is_valid"])
}

func TestVerify_AuditModes(t *testing.T) {
	st := store.NewMemory()
	v, fake := newVerifier(t, st, Config{AuditMode: AuditAlways}, nil)
	remote := fake.Seed(entry("F-GKXC"))

	_, err := v.Verify(context.Background(), remote.ID)
	require.NoError(t, err)
	assert.Len(t, validationAudits(t, fake, remote.ID), 1)

	v2, fake2 := newVerifier(t, st, Config{AuditMode: AuditNever}, nil)
	remote2 := fake2.Seed(entry("F-GKXD"))
	fake2.Tamper(remote2.ID, "x")
	res, err := v2.Verify(context.Background(), remote2.ID)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Empty(t, validationAudits(t, fake2, remote2.ID))
}

func TestVerify_AuditFailureDoesNotFailVerification(t *testing.T) {
	st := store.NewMemory()
	v, fake := newVerifier(t, st, Config{}, func(*backendtest.Fake) AuditRecorder { return failingAudit{} })
	remote := fake.Seed(entry("F-GKXE"))
	fake.Tamper(remote.ID, "x")

	res, err := v.Verify(context.Background(), remote.ID)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
}

func TestVerify_UnresolvedRecord(t *testing.T) {
	st := store.NewMemory()
	v, fake := newVerifier(t, st, Config{}, nil)
	synced(t, st, models.Record{ID: "local-1", Entry: entry("F-LOCAL")})

	res, err := v.Verify(context.Background(), "local-1")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Nil(t, res.CurrentHash)
	assert.Nil(t, res.ComputedHash)
	assert.Zero(t, fake.Calls("RecomputeIntegrity"))
}

func TestVerify_BackendError(t *testing.T) {
	st := store.NewMemory()
	v, fake := newVerifier(t, st, Config{}, nil)
	fake.SetOffline(true)

	_, err := v.Verify(context.Background(), models.NewID())
	assert.ErrorIs(t, err, common.ErrUnreachable)
}

func TestVerifyAll_IsolatesFailures(t *testing.T) {
	st := store.NewMemory()
	v, fake := newVerifier(t, st, Config{Concurrency: 2}, nil)

	good := fake.Seed(entry("G-GOOD"))
	bad := fake.Seed(entry("G-BAD"))
	fake.Tamper(bad.ID, "tampered")
	synced(t, st, good)
	synced(t, st, bad)
	synced(t, st, models.Record{ID: "local-c", Entry: entry("G-LOCAL")})
	fake.Fail("FindByBusinessKey", -1, fmt.Errorf("%w: connection reset", common.ErrUnreachable))

	sum, err := v.VerifyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Valid)
	assert.Equal(t, 1, sum.Invalid)
	assert.Equal(t, 1, sum.Failed)
	assert.InDelta(t, 33.33, sum.ValidPercent, 0.01)

	for _, r := range sum.Results {
		if r.EntryID == "local-c" {
			assert.ErrorIs(t, r.Err, common.ErrUnreachable)
			assert.NotEmpty(t, r.Error)
		}
	}

	last, err := v.LastSummary(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 3, last.Total)
	assert.Empty(t, last.Results)
}

type brokenRecords struct{ records.Repository }

func (brokenRecords) GetAll(context.Context) ([]models.Record, error) {
	return nil, common.ErrStorageUnavailable
}

type brokenStore struct{ store.Store }

func (s brokenStore) Records() records.Repository { return brokenRecords{s.Store.Records()} }

func TestVerifyAll_ListErrorIsFatal(t *testing.T) {
	v, _ := newVerifier(t, brokenStore{store.NewMemory()}, Config{}, nil)

	_, err := v.VerifyAll(context.Background())
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
}
