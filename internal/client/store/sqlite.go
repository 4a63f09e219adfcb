package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/logsync/internal/client/migrations"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/logsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/dbx"
	"github.com/dmitrijs2005/logsync/internal/filex"

	_ "modernc.org/sqlite"
)

type SQLite struct {
	db   *sql.DB
	conn dbx.DBTX
	inTx bool
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations. Every failure wraps common.ErrStorageUnavailable.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if !strings.Contains(path, ":memory:") && !strings.HasPrefix(path, "file:") {
		if _, err := filex.EnsureParentDir(path); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
		}
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrStorageUnavailable, path, err)
	}
	// One connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", common.ErrStorageUnavailable, path, err)
	}
	if !strings.Contains(path, ":memory:") {
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: enable WAL: %v", common.ErrStorageUnavailable, err)
		}
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return &SQLite{db: db, conn: db}, nil
}

func dsn(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

func (s *SQLite) Records() records.Repository   { return records.NewSQLiteRepository(s.conn) }
func (s *SQLite) Queue() queue.Repository       { return queue.NewSQLiteRepository(s.conn) }
func (s *SQLite) Metadata() metadata.Repository { return metadata.NewSQLiteRepository(s.conn) }
func (s *SQLite) Degraded() bool                { return false }

func (s *SQLite) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &SQLite{db: s.db, conn: tx, inTx: true})
	})
}

func (s *SQLite) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}
