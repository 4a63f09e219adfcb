package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/logsync/internal/backend"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupBackend starts PostgreSQL in a container and applies the schema.
// Set TEST_INTEGRATION to run it.
func setupBackend(t *testing.T) *Client {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("integration test skipped: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		tcpostgres.WithDatabase("logbook"),
		tcpostgres.WithUsername("logbook"),
		tcpostgres.WithPassword("logbook"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applied, err := Migrate(ctx, db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("want 2 migrations applied, got %v", applied)
	}

	return NewClient(db, testOwner)
}

func TestIntegration_InsertUpdateHistory(t *testing.T) {
	c := setupBackend(t)
	ctx := context.Background()

	rec, err := c.Insert(ctx, backend.NewRow{Entry: sampleEntry()})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if rec.Version != 1 || rec.ContentHash == nil {
		t.Fatalf("insert not stamped: %+v", rec)
	}

	check, err := c.RecomputeIntegrity(ctx, rec.ID)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	if !check.IsValid {
		t.Fatalf("fresh row must validate: %+v", check)
	}

	e := sampleEntry()
	e.Role = "SIC"
	upd, err := c.Update(ctx, rec.ID, e)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Version != 2 || *upd.ContentHash == *rec.ContentHash {
		t.Fatalf("update not stamped: %+v", upd)
	}

	revs, err := c.ListRevisions(ctx, rec.ID)
	if err != nil {
		t.Fatalf("revisions: %v", err)
	}
	if len(revs) != 2 || revs[0].Version != 2 || revs[1].Data.Role != "PIC" {
		t.Fatalf("unexpected revisions: %+v", revs)
	}

	audit, err := c.ListAudit(ctx, rec.ID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(audit) != 2 || audit[0].Action != "update" {
		t.Fatalf("unexpected audit trail: %+v", audit)
	}
	if len(audit[0].ChangedFields) != 1 || audit[0].ChangedFields[0] != "role" {
		t.Fatalf("unexpected changed fields: %v", audit[0].ChangedFields)
	}

	ids, err := c.FindByBusinessKey(ctx, e.Key(), 2)
	if err != nil || len(ids) != 1 || ids[0] != rec.ID {
		t.Fatalf("business key lookup: %v %v", ids, err)
	}

	n, err := c.Delete(ctx, rec.ID)
	if err != nil || n != 1 {
		t.Fatalf("delete: %d %v", n, err)
	}
	if _, err := c.Update(ctx, rec.ID, e); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
}

func TestIntegration_ImportedOriginalIDs(t *testing.T) {
	c := setupBackend(t)
	ctx := context.Background()

	source := "localStorage"
	imported := sampleEntry()
	imported.IsImported = true
	imported.ImportSource = &source
	imported.ImportMetadata = map[string]any{"original_id": "1717000000000-a1"}
	if _, err := c.Insert(ctx, backend.NewRow{Entry: imported}); err != nil {
		t.Fatalf("insert imported: %v", err)
	}
	if _, err := c.Insert(ctx, backend.NewRow{Entry: sampleEntry()}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ids, err := c.ImportedOriginalIDs(ctx, source)
	if err != nil {
		t.Fatalf("imported ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != "1717000000000-a1" {
		t.Fatalf("unexpected imported ids: %v", ids)
	}
}
