// Package common defines sentinel errors shared by the logsync client
// packages. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Local store errors.
	ErrStorageUnavailable = errors.New("local storage unavailable")
	ErrNotFound           = errors.New("not found")

	// Remote backend errors.
	ErrUnreachable    = errors.New("backend unreachable")
	ErrRemoteRejected = errors.New("backend rejected request")

	// Sync engine errors.
	ErrRetryCeilingReached     = errors.New("retry ceiling reached")
	ErrReconciliationAmbiguous = errors.New("ambiguous reconciliation")
	ErrNotCanonical            = errors.New("identifier is not canonical")
	ErrPendingChanges          = errors.New("local changes are waiting to sync")

	// Session errors.
	ErrUnauthenticated = errors.New("not authenticated")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")

	// Validation errors.
	ErrInvalidEntry = errors.New("invalid entry")
)
