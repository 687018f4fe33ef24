// Package store persists sealed credential blobs and the request status
// log in a local libSQL database.
package store

import (
	"context"
	"time"
)

// Store is safe for concurrent use.
type Store interface {
	// Sealed blobs arrive encrypted; the store never sees plaintext.
	PutSealed(ctx context.Context, key string, blob []byte) error
	GetSealed(ctx context.Context, key string) ([]byte, error)
	DeleteSealed(ctx context.Context, key string) error
	SealedKeys(ctx context.Context) ([]string, error)

	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, requestID string, since int64) ([]*Event, error)
	LastSequence(ctx context.Context, requestID string) (int64, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error
	Close() error
}
