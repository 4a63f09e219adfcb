package syncqueue

import (
	"sort"

	"github.com/dmitrijs2005/logsync/internal/client/models"
)

// ledger keeps, per record id, the queue ids still present in enqueue order.
type ledger map[string][]int64

func newLedger(entries []models.QueueEntry) ledger {
	byEnqueue := make([]models.QueueEntry, len(entries))
	copy(byEnqueue, entries)
	sort.SliceStable(byEnqueue, func(i, j int) bool {
		a, b := byEnqueue[i], byEnqueue[j]
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		return a.ID < b.ID
	})

	l := ledger{}
	for _, q := range byEnqueue {
		l[q.EntryID] = append(l[q.EntryID], q.ID)
	}
	return l
}

// isHead reports whether q is the oldest queued mutation of its record.
func (l ledger) isHead(q models.QueueEntry) bool {
	ids := l[q.EntryID]
	return len(ids) > 0 && ids[0] == q.ID
}

func (l ledger) remove(q models.QueueEntry) {
	ids := l[q.EntryID]
	for i, id := range ids {
		if id == q.ID {
			l[q.EntryID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(l[q.EntryID]) == 0 {
		delete(l, q.EntryID)
	}
}

// rekey moves the remaining ids of oldID under newID, keeping them ahead of
// anything already queued for newID.
func (l ledger) rekey(oldID, newID string) {
	ids, ok := l[oldID]
	if !ok {
		return
	}
	delete(l, oldID)
	l[newID] = append(ids, l[newID]...)
}
