// Package metadata stores small key/value pairs in the local store, such as
// the last successful sync time and the legacy import status.
package metadata

import "context"

// Repository is a flat key/value table. Get returns (nil, nil) for a missing
// key; Delete of a missing key reports common.ErrNotFound.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists the stored keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
