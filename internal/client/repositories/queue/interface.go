// Package queue persists pending mutations (the sync queue) in the local store.
package queue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/models"
)

type Repository interface {
	// Add appends an entry and returns its monotonic id.
	Add(ctx context.Context, e *models.QueueEntry) (int64, error)

	// List returns all entries ordered by id.
	List(ctx context.Context) ([]models.QueueEntry, error)

	// MarkFailed stores the outcome of a failed attempt.
	MarkFailed(ctx context.Context, id int64, retryCount int, lastError string, notBefore *time.Time) error

	// Remove deletes an entry; removing an absent entry is not an error.
	Remove(ctx context.Context, id int64) error

	Count(ctx context.Context) (int, error)
	CountForEntry(ctx context.Context, entryID string) (int, error)

	// ResetFailed zeroes retry_count and clears not_before and last_error
	// for entries at or above ceiling. It reports how many were reset.
	ResetFailed(ctx context.Context, ceiling int) (int, error)

	// Retarget points every entry for oldID at newID.
	Retarget(ctx context.Context, oldID, newID string) error
}
