// Package backend describes the remote system of record as seen by the sync
// engine: typed logbook rows, the audit trail, revision snapshots and the
// server-side integrity check.
package backend

import (
	"context"

	"github.com/dmitrijs2005/logsync/internal/client/models"
)

// NewRow is the payload of an insert. ID is empty when the backend should
// assign one.
type NewRow struct {
	ID      string
	OwnerID string
	Entry   models.Entry
}

// IntegrityCheck is the result of a server-side hash recomputation.
type IntegrityCheck struct {
	IsValid      bool    `json:"is_valid"`
	CurrentHash  *string `json:"current_hash"`
	ComputedHash *string `json:"computed_hash"`
}

// Backend is implemented by the PostgreSQL client and by test fakes.
// Errors wrap common.ErrUnreachable for transport failures and
// common.ErrRemoteRejected for row-level rejections.
type Backend interface {
	// Ping is the lightweight reachability probe.
	Ping(ctx context.Context) error

	Insert(ctx context.Context, row NewRow) (models.Record, error)
	// Update returns common.ErrNotFound when no row matched.
	Update(ctx context.Context, id string, e models.Entry) (models.Record, error)
	// Delete reports the number of deleted rows.
	Delete(ctx context.Context, id string) (int64, error)

	// FindByBusinessKey returns ids of rows matching k in a stable order.
	FindByBusinessKey(ctx context.Context, k models.BusinessKey, limit int) ([]string, error)
	// ImportedOriginalIDs lists the legacy ids of rows imported from source.
	ImportedOriginalIDs(ctx context.Context, source string) ([]string, error)

	RecomputeIntegrity(ctx context.Context, id string) (IntegrityCheck, error)

	InsertAudit(ctx context.Context, a models.AuditEntry) (models.AuditEntry, error)
	ListAudit(ctx context.Context, entryID string) ([]models.AuditEntry, error)

	// ListRevisions returns snapshots newest version first.
	ListRevisions(ctx context.Context, entryID string) ([]models.RevisionEntry, error)
	GetRevision(ctx context.Context, entryID string, version int64) (models.RevisionEntry, error)
}
