package storage

import (
	"context"
)

// Storage defines the contract for record persistence backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Write stores data with the given key, replacing any previous value.
	Write(ctx context.Context, key string, data []byte) error

	// Read retrieves data for the given key.
	// Returns os.ErrNotExist if the key does not exist.
	Read(ctx context.Context, key string) ([]byte, error)

	// List returns keys matching the given prefix, sorted alphabetically descending.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the storage backend.
	Close() error
}
