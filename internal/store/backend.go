package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("store: backend is closed")

// Write replaces the value stored under Key.
type Write struct {
	Key   string
	Value []byte
}

// Batch is an ordered set of writes committed together.
// When a key appears twice the later write wins.
type Batch []Write

// Backend is the durable keyed store.
//
// Implementations must make Commit atomic: after it returns an error, none of
// the batch is visible. Values returned by Get are owned by the caller.
type Backend interface {
	// Get returns the value under key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set replaces the value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Commit applies every write in the batch or none of them.
	Commit(ctx context.Context, batch Batch) error

	// Keys lists keys starting with prefix, sorted by byte order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the backend.
	Close() error
}
