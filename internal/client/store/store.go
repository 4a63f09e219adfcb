// Package store is the durable local store: records, the sync queue and
// metadata behind one transactional facade. The SQLite implementation
// survives restarts; the in-memory one is the degraded mode used when the
// database cannot be opened.
package store

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/logsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/logging"
)

type Store interface {
	Records() records.Repository
	Queue() queue.Repository
	Metadata() metadata.Repository

	// InTx runs fn atomically. Inside fn only tx may be used; calling the
	// outer store blocks until fn returns.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Degraded reports whether the store keeps data in memory only.
	Degraded() bool
	Close() error
}

// OpenOrMemory opens the SQLite store at path and falls back to an in-memory
// store when that fails with common.ErrStorageUnavailable.
func OpenOrMemory(ctx context.Context, path string, logger logging.Logger) (Store, error) {
	s, err := OpenSQLite(ctx, path)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, common.ErrStorageUnavailable) {
		return nil, err
	}
	logger.Warn(ctx, "local storage unavailable, running in memory-only mode", "path", path, "error", err)
	return NewMemory(), nil
}
