package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/models"
)

type Repository interface {
	// Put inserts or replaces a record.
	Put(ctx context.Context, rec *models.StoredRecord) error

	// Get returns a record with its sync bookkeeping or common.ErrNotFound.
	Get(ctx context.Context, id string) (*models.StoredRecord, error)

	// GetAll returns every record, newest flight first.
	GetAll(ctx context.Context) ([]models.Record, error)

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) error

	ListByDate(ctx context.Context, date string) ([]models.Record, error)
	ListUnsynced(ctx context.Context) ([]models.StoredRecord, error)

	// ApplyIntegrity stores backend-computed fields and sets the sync flag.
	// synced requires a non-nil content hash.
	ApplyIntegrity(ctx context.Context, id string, in models.Integrity, synced bool, at time.Time) error

	// Rekey renames a record to the identifier assigned by the backend. A
	// record already stored under newID is replaced.
	Rekey(ctx context.Context, oldID, newID string) error
}
