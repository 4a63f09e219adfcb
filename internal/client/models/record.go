package models

import "time"

// Record is a logbook entry together with its identity and the integrity
// fields assigned by the backend.
type Record struct {
	ID      string `json:"id"`
	OwnerID string `json:"user_id,omitempty"`
	Entry
	ContentHash *string   `json:"data_hash,omitempty"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StoredRecord is a Record plus sync bookkeeping that never leaves the
// local store through its public listing.
type StoredRecord struct {
	Record
	Synced   bool       `json:"synced"`
	SyncedAt *time.Time `json:"synced_at,omitempty"`
}

// Integrity holds the server-computed fields returned after a write.
type Integrity struct {
	ContentHash *string
	Version     int64
	UpdatedAt   time.Time
}
