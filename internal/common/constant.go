package common

// Metadata keys stored in the local key/value table.
const (
	MetaLastSyncTimestamp = "last_sync_timestamp"
	MetaLegacyImport      = "legacy_import"
	MetaIntegritySummary  = "integrity_summary"
	// MetaLegacyImportedPrefix prefixes one marker key per imported legacy id.
	MetaLegacyImportedPrefix = "legacy_import/id/"
)

// DateLayout is the layout of the business date field.
const DateLayout = "2006-01-02"
