package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation is the kind of mutation a queue entry replays.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) Valid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// QueueEntry is one pending mutation.
type QueueEntry struct {
	ID         int64           `json:"id"`
	Operation  Operation       `json:"operation"`
	EntryID    string          `json:"entry_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
	LastError  *string         `json:"last_error,omitempty"`
	NotBefore  *time.Time      `json:"not_before,omitempty"`
}

// Record decodes the payload snapshot. It returns nil for an empty payload.
func (q QueueEntry) Record() (*Record, error) {
	if len(q.Payload) == 0 || string(q.Payload) == "null" {
		return nil, nil
	}
	var r Record
	if err := json.Unmarshal(q.Payload, &r); err != nil {
		return nil, fmt.Errorf("decode payload of queue entry %d: %w", q.ID, err)
	}
	return &r, nil
}

// Eligible reports whether the entry may be attempted at now given the
// retry ceiling.
func (q QueueEntry) Eligible(now time.Time, ceiling int) bool {
	if q.RetryCount >= ceiling {
		return false
	}
	return q.NotBefore == nil || !q.NotBefore.After(now)
}

// EncodePayload snapshots r for a queue entry.
func EncodePayload(r *Record) (json.RawMessage, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}
