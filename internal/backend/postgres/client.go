// Package postgres implements backend.Backend over database/sql with the pgx
// driver. Every query is scoped to one owner, mirroring row-level security on
// the hosted database.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/logsync/internal/backend"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/dmitrijs2005/logsync/internal/dbx"
)

const (
	tableEntries   = "log_entries"
	tableAudit     = "audit_logs"
	tableRevisions = "entry_revisions"
)

var entryColumns = []string{
	"date", "role", "aircraft_category_class", "category_class_time", "aircraft_make_model",
	"registration", "flight_number", "departure", "destination", "route",
	"training_elements", "training_instructor", "instructor_certificate", "flight_conditions",
	"remarks", "flight_time", "performance", "oooi", "flagged", "is_imported",
	"import_source", "import_metadata",
}

var returningColumns = "id::text, user_id::text, " + strings.Join(entryColumns, ", ") +
	", data_hash, version, created_at, updated_at"

var auditColumns = "id::text, entry_id::text, user_id::text, action, old_data, new_data, changed_fields, " +
	"is_compliance_event, compliance_reason, created_at"

type Client struct {
	db      dbx.DBTX
	ownerID string
	sb      sq.StatementBuilderType
}

func NewClient(db dbx.DBTX, ownerID string) *Client {
	return &Client{
		db:      db,
		ownerID: ownerID,
		sb:      sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var _ backend.Backend = (*Client)(nil)

func (c *Client) Ping(ctx context.Context) error {
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return mapError(err, "ping")
	}
	return nil
}

func (c *Client) Insert(ctx context.Context, row backend.NewRow) (models.Record, error) {
	owner := row.OwnerID
	if owner == "" {
		owner = c.ownerID
	}
	if owner == "" {
		return models.Record{}, fmt.Errorf("insert entry: %w", common.ErrUnauthenticated)
	}

	values, err := entryValues(row.Entry)
	if err != nil {
		return models.Record{}, err
	}

	cols := append([]string{"user_id"}, entryColumns...)
	vals := append([]any{owner}, values...)
	if row.ID != "" {
		cols = append([]string{"id"}, cols...)
		vals = append([]any{row.ID}, vals...)
	}

	query, args, err := c.sb.Insert(tableEntries).
		Columns(cols...).
		Values(vals...).
		Suffix("RETURNING " + returningColumns).
		ToSql()
	if err != nil {
		return models.Record{}, fmt.Errorf("build insert: %w", err)
	}

	rec, err := scanRecord(c.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return models.Record{}, mapError(err, "insert entry")
	}
	return rec, nil
}

func (c *Client) Update(ctx context.Context, id string, e models.Entry) (models.Record, error) {
	values, err := entryValues(e)
	if err != nil {
		return models.Record{}, err
	}

	set := make(map[string]any, len(entryColumns))
	for i, col := range entryColumns {
		set[col] = values[i]
	}

	query, args, err := c.ownedUpdate(c.sb.Update(tableEntries).
		SetMap(set).
		Where(sq.Eq{"id": id})).
		Suffix("RETURNING " + returningColumns).
		ToSql()
	if err != nil {
		return models.Record{}, fmt.Errorf("build update: %w", err)
	}

	rec, err := scanRecord(c.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return models.Record{}, mapError(err, "update entry "+id)
	}
	return rec, nil
}

func (c *Client) Delete(ctx context.Context, id string) (int64, error) {
	b := c.sb.Delete(tableEntries).Where(sq.Eq{"id": id})
	if c.ownerID != "" {
		b = b.Where(sq.Eq{"user_id": c.ownerID})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err, "delete entry "+id)
	}
	return dbx.Affected(res)
}

func (c *Client) FindByBusinessKey(ctx context.Context, k models.BusinessKey, limit int) ([]string, error) {
	b := c.sb.Select("id::text").
		From(tableEntries).
		Where(sq.Eq{
			"date":         k.Date,
			"registration": k.Registration,
			"departure":    k.Departure,
			"destination":  k.Destination,
		})
	if c.ownerID != "" {
		b = b.Where(sq.Eq{"user_id": c.ownerID})
	}
	b = b.OrderBy("created_at", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build business key query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "find entry by business key")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err, "scan entry id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "iterate entry ids")
	}
	return ids, nil
}

func (c *Client) ImportedOriginalIDs(ctx context.Context, source string) ([]string, error) {
	b := c.sb.Select("import_metadata->>'original_id'").
		From(tableEntries).
		Where(sq.Eq{"is_imported": true, "import_source": source}).
		Where(sq.NotEq{"import_metadata->>'original_id'": nil})
	if c.ownerID != "" {
		b = b.Where(sq.Eq{"user_id": c.ownerID})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build imported ids query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list imported entries")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err, "scan original id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "iterate original ids")
	}
	return ids, nil
}

func (c *Client) RecomputeIntegrity(ctx context.Context, id string) (backend.IntegrityCheck, error) {
	var res backend.IntegrityCheck
	err := c.db.QueryRowContext(ctx,
		`SELECT is_valid, current_hash, computed_hash FROM validate_entry_integrity($1)`, id,
	).Scan(&res.IsValid, &res.CurrentHash, &res.ComputedHash)
	if err != nil {
		return backend.IntegrityCheck{}, mapError(err, "validate entry integrity "+id)
	}
	return res, nil
}

func (c *Client) InsertAudit(ctx context.Context, a models.AuditEntry) (models.AuditEntry, error) {
	owner := a.UserID
	if owner == "" {
		owner = c.ownerID
	}
	if owner == "" {
		return models.AuditEntry{}, fmt.Errorf("insert audit entry: %w", common.ErrUnauthenticated)
	}

	oldData, err := jsonOrNil(a.OldData)
	if err != nil {
		return models.AuditEntry{}, err
	}
	newData, err := jsonOrNil(a.NewData)
	if err != nil {
		return models.AuditEntry{}, err
	}
	fields := a.ChangedFields
	if fields == nil {
		fields = []string{}
	}
	changed, err := json.Marshal(fields)
	if err != nil {
		return models.AuditEntry{}, fmt.Errorf("encode changed fields: %w", err)
	}

	query, args, err := c.sb.Insert(tableAudit).
		Columns("entry_id", "user_id", "action", "old_data", "new_data", "changed_fields",
			"is_compliance_event", "compliance_reason").
		Values(a.EntryID, owner, string(a.Action), oldData, newData, string(changed),
			a.IsComplianceEvent, a.ComplianceReason).
		Suffix("RETURNING " + auditColumns).
		ToSql()
	if err != nil {
		return models.AuditEntry{}, fmt.Errorf("build audit insert: %w", err)
	}

	out, err := scanAudit(c.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return models.AuditEntry{}, mapError(err, "insert audit entry for "+a.EntryID)
	}
	return out, nil
}

func (c *Client) ListAudit(ctx context.Context, entryID string) ([]models.AuditEntry, error) {
	query, args, err := c.ownedSelect(c.sb.Select(auditColumns).
		From(tableAudit).
		Where(sq.Eq{"entry_id": entryID})).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list audit entries for "+entryID)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, mapError(err, "scan audit entry")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "iterate audit entries")
	}
	return out, nil
}

func (c *Client) ListRevisions(ctx context.Context, entryID string) ([]models.RevisionEntry, error) {
	query, args, err := c.ownedSelect(c.sb.Select("entry_id::text", "version", "entry_data", "created_at").
		From(tableRevisions).
		Where(sq.Eq{"entry_id": entryID})).
		OrderBy("version DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build revisions query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list revisions for "+entryID)
	}
	defer rows.Close()

	var out []models.RevisionEntry
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, mapError(err, "scan revision")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "iterate revisions")
	}
	return out, nil
}

func (c *Client) GetRevision(ctx context.Context, entryID string, version int64) (models.RevisionEntry, error) {
	query, args, err := c.ownedSelect(c.sb.Select("entry_id::text", "version", "entry_data", "created_at").
		From(tableRevisions).
		Where(sq.Eq{"entry_id": entryID, "version": version})).
		ToSql()
	if err != nil {
		return models.RevisionEntry{}, fmt.Errorf("build revision query: %w", err)
	}

	r, err := scanRevision(c.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return models.RevisionEntry{}, mapError(err, fmt.Sprintf("get revision %d of %s", version, entryID))
	}
	return r, nil
}

// ownedSelect and ownedUpdate narrow a query to the configured owner.
func (c *Client) ownedSelect(b sq.SelectBuilder) sq.SelectBuilder {
	if c.ownerID == "" {
		return b
	}
	return b.Where(sq.Eq{"user_id": c.ownerID})
}

func (c *Client) ownedUpdate(b sq.UpdateBuilder) sq.UpdateBuilder {
	if c.ownerID == "" {
		return b
	}
	return b.Where(sq.Eq{"user_id": c.ownerID})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (models.Record, error) {
	var (
		r                                                     models.Record
		conditions, flightTime, performance, oooi, importMeta []byte
	)
	err := s.Scan(
		&r.ID, &r.OwnerID,
		&r.Date, &r.Role, &r.AircraftCategoryClass, &r.CategoryClassTime, &r.AircraftMakeModel,
		&r.Registration, &r.FlightNumber, &r.Departure, &r.Destination, &r.Route,
		&r.TrainingElements, &r.TrainingInstructor, &r.InstructorCertificate, &conditions,
		&r.Remarks, &flightTime, &performance, &oooi, &r.Flagged, &r.IsImported,
		&r.ImportSource, &importMeta,
		&r.ContentHash, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return models.Record{}, err
	}

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{conditions, &r.FlightConditions},
		{flightTime, &r.FlightTime},
		{performance, &r.Performance},
		{oooi, &r.OOOI},
		{importMeta, &r.ImportMetadata},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return models.Record{}, fmt.Errorf("decode entry %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func scanAudit(s rowScanner) (models.AuditEntry, error) {
	var (
		a                         models.AuditEntry
		action                    string
		oldData, newData, changed []byte
	)
	err := s.Scan(&a.ID, &a.EntryID, &a.UserID, &action, &oldData, &newData, &changed,
		&a.IsComplianceEvent, &a.ComplianceReason, &a.Timestamp)
	if err != nil {
		return models.AuditEntry{}, err
	}
	a.Action = models.AuditAction(action)
	if len(oldData) > 0 {
		if err := json.Unmarshal(oldData, &a.OldData); err != nil {
			return models.AuditEntry{}, fmt.Errorf("decode old_data: %w", err)
		}
	}
	if len(newData) > 0 {
		if err := json.Unmarshal(newData, &a.NewData); err != nil {
			return models.AuditEntry{}, fmt.Errorf("decode new_data: %w", err)
		}
	}
	if len(changed) > 0 {
		if err := json.Unmarshal(changed, &a.ChangedFields); err != nil {
			return models.AuditEntry{}, fmt.Errorf("decode changed_fields: %w", err)
		}
	}
	return a, nil
}

func scanRevision(s rowScanner) (models.RevisionEntry, error) {
	var (
		r    models.RevisionEntry
		data []byte
	)
	if err := s.Scan(&r.EntryID, &r.Version, &data, &r.CreatedAt); err != nil {
		return models.RevisionEntry{}, err
	}
	if err := json.Unmarshal(data, &r.Data); err != nil {
		return models.RevisionEntry{}, fmt.Errorf("decode revision %d: %w", r.Version, err)
	}
	return r, nil
}

// entryValues lists e's column values in entryColumns order. JSON columns
// are sent as text.
func entryValues(e models.Entry) ([]any, error) {
	conditions := e.FlightConditions
	if conditions == nil {
		conditions = []string{}
	}

	jsonCols := map[string]any{
		"flight_conditions": conditions,
		"flight_time":       e.FlightTime,
		"performance":       e.Performance,
	}
	encoded := make(map[string]string, len(jsonCols))
	for k, v := range jsonCols {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		encoded[k] = string(b)
	}

	var oooi any
	if e.OOOI != nil {
		b, err := json.Marshal(e.OOOI)
		if err != nil {
			return nil, fmt.Errorf("encode oooi: %w", err)
		}
		oooi = string(b)
	}
	importMeta, err := jsonOrNil(e.ImportMetadata)
	if err != nil {
		return nil, err
	}

	return []any{
		e.Date, e.Role, e.AircraftCategoryClass, e.CategoryClassTime, e.AircraftMakeModel,
		e.Registration, e.FlightNumber, e.Departure, e.Destination, e.Route,
		e.TrainingElements, e.TrainingInstructor, e.InstructorCertificate, encoded["flight_conditions"],
		e.Remarks, encoded["flight_time"], encoded["performance"], oooi, e.Flagged, e.IsImported,
		e.ImportSource, importMeta,
	}, nil
}

func jsonOrNil(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return string(b), nil
}
