// Package records persists logbook records in the local store.
//
// The SQLite implementation keeps the business payload as a JSON blob and
// duplicates the business-key columns so records can be looked up by date
// and by sync status. Sync bookkeeping (synced, synced_at) is only returned
// by Get and ListUnsynced; GetAll and ListByDate hand out plain
// models.Record values.
//
// A repository is bound to a dbx.DBTX, so the same type works on *sql.DB and
// inside a transaction:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    return records.NewSQLiteRepository(tx).Rekey(ctx, "local-1", canonical)
//	})
package records
