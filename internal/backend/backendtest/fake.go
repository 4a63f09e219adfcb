// Package backendtest provides an in-memory backend.Backend for tests. It
// mimics the server triggers: content hashes, versions, revision snapshots
// and audit rows are produced on every write.
package backendtest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/logsync/internal/backend"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/google/uuid"
)

type failure struct {
	err   error
	times int // <0 means forever
}

// Fake is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	Owner string
	// Now stamps rows and audit entries. Defaults to time.Now.
	Now func() time.Time
	// OmitHash makes Insert return rows without a content hash.
	OmitHash bool

	rows      map[string]models.Record
	order     []string
	revisions map[string][]models.RevisionEntry
	audit     []models.AuditEntry
	calls     map[string]int
	failures  map[string]*failure
	offline   bool
}

var _ backend.Backend = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Owner:     "00000000-0000-4000-8000-000000000001",
		Now:       time.Now,
		rows:      map[string]models.Record{},
		revisions: map[string][]models.RevisionEntry{},
		calls:     map[string]int{},
		failures:  map[string]*failure{},
	}
}

// SetOffline makes every call fail with common.ErrUnreachable.
func (f *Fake) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// Fail makes the next n calls of method return err. n < 0 fails forever.
func (f *Fake) Fail(method string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = &failure{err: err, times: n}
}

// Calls reports how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls reports invocations of every method except Ping.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for m, c := range f.calls {
		if m != "Ping" {
			n += c
		}
	}
	return n
}

// Rows returns a copy of the stored rows in insertion order.
func (f *Fake) Rows() []models.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Record, 0, len(f.order))
	for _, id := range f.order {
		if r, ok := f.rows[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Row returns the stored row with the given id.
func (f *Fake) Row(id string) (models.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	return r, ok
}

// Tamper overwrites the stored hash of id without touching the payload.
func (f *Fake) Tamper(id, hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[id]
	r.ContentHash = &hash
	f.rows[id] = r
}

// Seed stores a row as if it had been inserted by another client.
func (f *Fake) Seed(e models.Entry) models.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(uuid.NewString(), f.Owner, e)
}

func (f *Fake) enter(method string) error {
	f.calls[method]++
	if f.offline {
		return fmt.Errorf("%s: %w: connection refused", method, common.ErrUnreachable)
	}
	fl, ok := f.failures[method]
	if !ok || fl.times == 0 {
		return nil
	}
	if fl.times > 0 {
		fl.times--
	}
	return fl.err
}

func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("Ping")
}

func (f *Fake) Insert(ctx context.Context, row backend.NewRow) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Insert"); err != nil {
		return models.Record{}, err
	}

	id := row.ID
	if id == "" {
		id = uuid.NewString()
	} else if !models.IsCanonicalID(id) {
		return models.Record{}, fmt.Errorf("insert: %w: invalid input syntax for type uuid", common.ErrRemoteRejected)
	}
	if _, dup := f.rows[id]; dup {
		return models.Record{}, fmt.Errorf("insert: %w: duplicate key", common.ErrRemoteRejected)
	}
	owner := row.OwnerID
	if owner == "" {
		owner = f.Owner
	}

	rec := f.insertLocked(id, owner, row.Entry)
	if f.OmitHash {
		rec.ContentHash = nil
	}
	return rec, nil
}

func (f *Fake) insertLocked(id, owner string, e models.Entry) models.Record {
	now := f.Now()
	hash := Hash(e)
	rec := models.Record{
		ID:          id,
		OwnerID:     owner,
		Entry:       e,
		ContentHash: &hash,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.rows[id] = rec
	f.order = append(f.order, id)
	f.revisions[id] = append(f.revisions[id], models.RevisionEntry{EntryID: id, Version: 1, Data: e, CreatedAt: now})
	f.audit = append(f.audit, models.AuditEntry{
		ID: uuid.NewString(), EntryID: id, UserID: owner, Action: models.ActionCreate,
		NewData: e.Fields(), Timestamp: now,
	})
	return rec
}

func (f *Fake) Update(ctx context.Context, id string, e models.Entry) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Update"); err != nil {
		return models.Record{}, err
	}

	old, ok := f.rows[id]
	if !ok {
		return models.Record{}, fmt.Errorf("update entry %s: %w: %w", id, common.ErrRemoteRejected, common.ErrNotFound)
	}

	now := f.Now()
	hash := Hash(e)
	rec := old
	rec.Entry = e
	rec.ContentHash = &hash
	rec.Version = old.Version + 1
	rec.UpdatedAt = now
	f.rows[id] = rec
	f.revisions[id] = append(f.revisions[id], models.RevisionEntry{EntryID: id, Version: rec.Version, Data: e, CreatedAt: now})
	f.audit = append(f.audit, models.AuditEntry{
		ID: uuid.NewString(), EntryID: id, UserID: old.OwnerID, Action: models.ActionUpdate,
		OldData: old.Entry.Fields(), NewData: e.Fields(),
		ChangedFields: models.ChangedFields(old.Entry, e), Timestamp: now,
	})
	return rec, nil
}

func (f *Fake) Delete(ctx context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Delete"); err != nil {
		return 0, err
	}

	old, ok := f.rows[id]
	if !ok {
		return 0, nil
	}
	delete(f.rows, id)
	f.audit = append(f.audit, models.AuditEntry{
		ID: uuid.NewString(), EntryID: id, UserID: old.OwnerID, Action: models.ActionDelete,
		OldData: old.Entry.Fields(), Timestamp: f.Now(),
	})
	return 1, nil
}

func (f *Fake) FindByBusinessKey(ctx context.Context, k models.BusinessKey, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("FindByBusinessKey"); err != nil {
		return nil, err
	}

	var ids []string
	for _, id := range f.order {
		r, ok := f.rows[id]
		if !ok || r.Key() != k {
			continue
		}
		ids = append(ids, id)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (f *Fake) ImportedOriginalIDs(ctx context.Context, source string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ImportedOriginalIDs"); err != nil {
		return nil, err
	}

	var ids []string
	for _, id := range f.order {
		r, ok := f.rows[id]
		if !ok || !r.IsImported || r.ImportSource == nil || *r.ImportSource != source {
			continue
		}
		if orig, ok := r.ImportMetadata["original_id"].(string); ok && orig != "" {
			ids = append(ids, orig)
		}
	}
	return ids, nil
}

func (f *Fake) RecomputeIntegrity(ctx context.Context, id string) (backend.IntegrityCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("RecomputeIntegrity"); err != nil {
		return backend.IntegrityCheck{}, err
	}

	r, ok := f.rows[id]
	if !ok {
		return backend.IntegrityCheck{}, fmt.Errorf("validate entry integrity %s: %w: %w", id, common.ErrRemoteRejected, common.ErrNotFound)
	}
	computed := Hash(r.Entry)
	return backend.IntegrityCheck{
		IsValid:      r.ContentHash != nil && *r.ContentHash == computed,
		CurrentHash:  r.ContentHash,
		ComputedHash: &computed,
	}, nil
}

func (f *Fake) InsertAudit(ctx context.Context, a models.AuditEntry) (models.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("InsertAudit"); err != nil {
		return models.AuditEntry{}, err
	}

	a.ID = uuid.NewString()
	if a.UserID == "" {
		a.UserID = f.Owner
	}
	a.Timestamp = f.Now()
	f.audit = append(f.audit, a)
	return a, nil
}

// AppendAudit stores a with its own timestamp, bypassing the server clock.
func (f *Fake) AppendAudit(a models.AuditEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	f.audit = append(f.audit, a)
}

func (f *Fake) ListAudit(ctx context.Context, entryID string) ([]models.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListAudit"); err != nil {
		return nil, err
	}

	var out []models.AuditEntry
	for i := len(f.audit) - 1; i >= 0; i-- {
		if f.audit[i].EntryID == entryID {
			out = append(out, f.audit[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (f *Fake) ListRevisions(ctx context.Context, entryID string) ([]models.RevisionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListRevisions"); err != nil {
		return nil, err
	}

	revs := f.revisions[entryID]
	out := make([]models.RevisionEntry, 0, len(revs))
	for i := len(revs) - 1; i >= 0; i-- {
		out = append(out, revs[i])
	}
	return out, nil
}

func (f *Fake) GetRevision(ctx context.Context, entryID string, version int64) (models.RevisionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetRevision"); err != nil {
		return models.RevisionEntry{}, err
	}

	for _, r := range f.revisions[entryID] {
		if r.Version == version {
			return r, nil
		}
	}
	return models.RevisionEntry{}, fmt.Errorf("get revision %d of %s: %w: %w", version, entryID, common.ErrRemoteRejected, common.ErrNotFound)
}

// Hash is the fake's content hash: sha256 of the JSON payload.
func Hash(e models.Entry) string {
	b, _ := json.Marshal(e)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
