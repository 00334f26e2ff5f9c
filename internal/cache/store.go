package cache

import (
	"context"
	"errors"
)

// Static errors for store operations.
var (
	// ErrEntryNotFound is returned when no entry exists for a key.
	ErrEntryNotFound = errors.New("cache: entry not found")
	// ErrEntryExists is returned by Create when the key is already taken.
	ErrEntryExists = errors.New("cache: entry already exists")
)

// Store is the durable tier of the cache. Implementations must make Create
// atomic so that a duplicate insert race has exactly one winner.
type Store interface {
	// Create inserts a new entry. Returns ErrEntryExists if the composite
	// key is already present.
	Create(ctx context.Context, entry *Entry) error

	// Update overwrites an existing entry (usage counters, embedding backfill).
	Update(ctx context.Context, entry *Entry) error

	// Get retrieves an entry by composite key.
	// Returns ErrEntryNotFound if the key does not exist.
	Get(ctx context.Context, key string) (*Entry, error)

	// List returns all entries. Used by similarity scans and admin tooling.
	List(ctx context.Context) ([]*Entry, error)

	// Delete removes an entry by composite key.
	Delete(ctx context.Context, key string) error
}
