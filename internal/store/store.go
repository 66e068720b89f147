// Package store defines the storage contract the job queue runs on.
// A Store exposes ordered lists and sets shared between processes; the queue
// engine composes these primitives into publish, take, reserve and finish.
// Implementations exist for Redis, PostgreSQL and in-memory use.
package store

import (
	"context"
	"time"
)

// Store is the set of atomic primitives the queue engine depends on.
// All methods must be safe for concurrent use.
type Store interface {
	// --- Set Operations ---

	// AddMember adds member to the set at setKey.
	// Returns true only if this call added it (it was absent before).
	AddMember(ctx context.Context, setKey, member string) (bool, error)

	// RemoveMember removes member from the set at setKey.
	// Removing an absent member is not an error.
	RemoveMember(ctx context.Context, setKey, member string) error

	// --- List Operations ---

	// Append adds an encoded entry to the tail of the list at listKey.
	Append(ctx context.Context, listKey string, entry []byte) error

	// PopHead removes and returns the head of the list at listKey.
	// A positive block asks the store to wait up to that long for an entry;
	// stores without native blocking ignore it and return immediately.
	// Returns nil, nil if the list is empty.
	PopHead(ctx context.Context, listKey string, block time.Duration) ([]byte, error)

	// MoveHead atomically removes the head of srcKey and appends it to the
	// tail of dstKey, returning the moved entry. Block behaves as in PopHead.
	// Returns nil, nil if srcKey is empty.
	MoveHead(ctx context.Context, srcKey, dstKey string, block time.Duration) ([]byte, error)

	// Range returns up to count entries starting at position start, head
	// first. It never blocks and never mutates the list.
	Range(ctx context.Context, listKey string, start, count int64) ([][]byte, error)

	// RemoveByID removes the first entry in listKey whose decoded id equals id.
	// Returns true if an entry was removed.
	RemoveByID(ctx context.Context, listKey, id string) (bool, error)

	// Len returns the number of entries in the list at listKey.
	Len(ctx context.Context, listKey string) (int64, error)

	// --- Lifecycle ---

	// Blocking reports whether PopHead and MoveHead honor block natively.
	Blocking() bool

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
