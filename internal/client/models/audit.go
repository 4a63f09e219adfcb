package models

import "time"

type AuditAction string

const (
	ActionCreate  AuditAction = "create"
	ActionUpdate  AuditAction = "update"
	ActionDelete  AuditAction = "delete"
	ActionSign    AuditAction = "sign"
	ActionExport  AuditAction = "export"
	ActionRestore AuditAction = "restore"
)

func (a AuditAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionSign, ActionExport, ActionRestore:
		return true
	}
	return false
}

// ValidationReason is the compliance reason of audit entries written by the
// integrity verifier.
const ValidationReason = "Automatic integrity validation"

// AuditEntry is an immutable record of one change to an entry.
type AuditEntry struct {
	ID                string         `json:"id,omitempty"`
	EntryID           string         `json:"entry_id"`
	UserID            string         `json:"user_id,omitempty"`
	Action            AuditAction    `json:"action"`
	OldData           map[string]any `json:"old_data,omitempty"`
	NewData           map[string]any `json:"new_data,omitempty"`
	ChangedFields     []string       `json:"changed_fields,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	IsComplianceEvent bool           `json:"is_compliance_event"`
	ComplianceReason  *string        `json:"compliance_reason,omitempty"`
}

// RevisionEntry is the full payload of an entry at one backend version.
type RevisionEntry struct {
	EntryID   string    `json:"entry_id"`
	Version   int64     `json:"version"`
	Data      Entry     `json:"entry_data"`
	CreatedAt time.Time `json:"created_at"`
}

// FieldDiff is one row of a field-level comparison.
type FieldDiff struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// IsValidation reports whether a was written by an automated integrity check.
func (a AuditEntry) IsValidation() bool {
	if !a.IsComplianceEvent || a.Action != ActionExport {
		return false
	}
	if _, ok := a.NewData["validation_result"]; ok {
		return true
	}
	return a.ComplianceReason != nil && *a.ComplianceReason == ValidationReason
}
