package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/logsync/internal/common"
)

type memData struct {
	records map[string]models.StoredRecord
	queue   map[int64]models.QueueEntry
	meta    map[string][]byte
	nextID  int64
}

func (d *memData) clone() *memData {
	return &memData{
		records: maps.Clone(d.records),
		queue:   maps.Clone(d.queue),
		meta:    maps.Clone(d.meta),
		nextID:  d.nextID,
	}
}

// Memory is the degraded, process-local store.
type Memory struct {
	mu     *sync.Mutex
	data   **memData
	locked bool
}

func NewMemory() *Memory {
	d := &memData{
		records: map[string]models.StoredRecord{},
		queue:   map[int64]models.QueueEntry{},
		meta:    map[string][]byte{},
	}
	return &Memory{mu: &sync.Mutex{}, data: &d}
}

func (m *Memory) Records() records.Repository   { return memRecords{m} }
func (m *Memory) Queue() queue.Repository       { return memQueue{m} }
func (m *Memory) Metadata() metadata.Repository { return memMeta{m} }
func (m *Memory) Degraded() bool                { return true }
func (m *Memory) Close() error                  { return nil }

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if m.locked {
		return fn(ctx, m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := (*m.data).clone()
	tx := &Memory{mu: m.mu, data: m.data, locked: true}
	if err := fn(ctx, tx); err != nil {
		*m.data = snapshot
		return err
	}
	return nil
}

// with runs f on the live data, taking the lock unless already inside InTx.
func (m *Memory) with(f func(d *memData) error) error {
	if !m.locked {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	return f(*m.data)
}

type memRecords struct{ m *Memory }

func (r memRecords) Put(_ context.Context, rec *models.StoredRecord) error {
	return r.m.with(func(d *memData) error {
		cp := *rec
		if existing, ok := d.records[rec.ID]; ok {
			cp.CreatedAt = existing.CreatedAt
		}
		d.records[rec.ID] = cp
		return nil
	})
}

func (r memRecords) Get(_ context.Context, id string) (*models.StoredRecord, error) {
	var out *models.StoredRecord
	err := r.m.with(func(d *memData) error {
		rec, ok := d.records[id]
		if !ok {
			return fmt.Errorf("record %s: %w", id, common.ErrNotFound)
		}
		out = &rec
		return nil
	})
	return out, err
}

func (r memRecords) GetAll(_ context.Context) ([]models.Record, error) {
	var out []models.Record
	_ = r.m.with(func(d *memData) error {
		for _, rec := range d.records {
			out = append(out, rec.Record)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r memRecords) ListByDate(_ context.Context, date string) ([]models.Record, error) {
	var out []models.Record
	_ = r.m.with(func(d *memData) error {
		for _, rec := range d.records {
			if rec.Date == date {
				out = append(out, rec.Record)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memRecords) ListUnsynced(_ context.Context) ([]models.StoredRecord, error) {
	var out []models.StoredRecord
	_ = r.m.with(func(d *memData) error {
		for _, rec := range d.records {
			if !rec.Synced {
				out = append(out, rec)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memRecords) Delete(_ context.Context, id string) error {
	return r.m.with(func(d *memData) error {
		delete(d.records, id)
		return nil
	})
}

func (r memRecords) ApplyIntegrity(_ context.Context, id string, in models.Integrity, synced bool, at time.Time) error {
	if synced && in.ContentHash == nil {
		return fmt.Errorf("record %s: %w", id, records.ErrUnsyncedWithoutHash)
	}
	return r.m.with(func(d *memData) error {
		rec, ok := d.records[id]
		if !ok {
			return fmt.Errorf("record %s: %w", id, common.ErrNotFound)
		}
		if in.ContentHash != nil {
			h := *in.ContentHash
			rec.ContentHash = &h
		}
		rec.Version = in.Version
		rec.Synced = synced
		rec.SyncedAt = nil
		if synced {
			t := at
			rec.SyncedAt = &t
		}
		rec.UpdatedAt = at
		if !in.UpdatedAt.IsZero() {
			rec.UpdatedAt = in.UpdatedAt
		}
		d.records[id] = rec
		return nil
	})
}

func (r memRecords) Rekey(_ context.Context, oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	return r.m.with(func(d *memData) error {
		rec, ok := d.records[oldID]
		if !ok {
			return fmt.Errorf("record %s: %w", oldID, common.ErrNotFound)
		}
		delete(d.records, oldID)
		rec.ID = newID
		d.records[newID] = rec
		return nil
	})
}

type memQueue struct{ m *Memory }

func (q memQueue) Add(_ context.Context, e *models.QueueEntry) (int64, error) {
	if !e.Operation.Valid() {
		return 0, fmt.Errorf("unknown operation %q", e.Operation)
	}
	var id int64
	err := q.m.with(func(d *memData) error {
		d.nextID++
		id = d.nextID
		cp := *e
		cp.ID = id
		d.queue[id] = cp
		return nil
	})
	e.ID = id
	return id, err
}

func (q memQueue) List(_ context.Context) ([]models.QueueEntry, error) {
	var out []models.QueueEntry
	_ = q.m.with(func(d *memData) error {
		for _, e := range d.queue {
			out = append(out, e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q memQueue) MarkFailed(_ context.Context, id int64, retryCount int, lastError string, notBefore *time.Time) error {
	return q.m.with(func(d *memData) error {
		e, ok := d.queue[id]
		if !ok {
			return fmt.Errorf("queue entry %d: %w", id, common.ErrNotFound)
		}
		e.RetryCount = retryCount
		e.LastError = &lastError
		e.NotBefore = notBefore
		d.queue[id] = e
		return nil
	})
}

func (q memQueue) Remove(_ context.Context, id int64) error {
	return q.m.with(func(d *memData) error {
		delete(d.queue, id)
		return nil
	})
}

func (q memQueue) Count(_ context.Context) (int, error) {
	var n int
	_ = q.m.with(func(d *memData) error {
		n = len(d.queue)
		return nil
	})
	return n, nil
}

func (q memQueue) CountForEntry(_ context.Context, entryID string) (int, error) {
	var n int
	_ = q.m.with(func(d *memData) error {
		for _, e := range d.queue {
			if e.EntryID == entryID {
				n++
			}
		}
		return nil
	})
	return n, nil
}

func (q memQueue) ResetFailed(_ context.Context, ceiling int) (int, error) {
	var n int
	_ = q.m.with(func(d *memData) error {
		for id, e := range d.queue {
			if e.RetryCount >= ceiling {
				e.RetryCount = 0
				e.NotBefore = nil
				e.LastError = nil
				d.queue[id] = e
				n++
			}
		}
		return nil
	})
	return n, nil
}

func (q memQueue) Retarget(_ context.Context, oldID, newID string) error {
	return q.m.with(func(d *memData) error {
		for id, e := range d.queue {
			if e.EntryID == oldID {
				e.EntryID = newID
				d.queue[id] = e
			}
		}
		return nil
	})
}

type memMeta struct{ m *Memory }

func (s memMeta) Get(_ context.Context, key string) ([]byte, error) {
	var v []byte
	_ = s.m.with(func(d *memData) error {
		if b, ok := d.meta[key]; ok {
			v = append([]byte{}, b...)
		}
		return nil
	})
	return v, nil
}

func (s memMeta) Set(_ context.Context, key string, value []byte) error {
	return s.m.with(func(d *memData) error {
		d.meta[key] = append([]byte{}, value...)
		return nil
	})
}

func (s memMeta) Delete(_ context.Context, key string) error {
	return s.m.with(func(d *memData) error {
		if _, ok := d.meta[key]; !ok {
			return fmt.Errorf("metadata[%s]: %w", key, common.ErrNotFound)
		}
		delete(d.meta, key)
		return nil
	})
}

func (s memMeta) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	_ = s.m.with(func(d *memData) error {
		for k := range d.meta {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		return nil
	})
	slices.Sort(keys)
	return keys, nil
}
