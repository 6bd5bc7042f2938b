package ports

import "github.com/vigilproject/vigil/internal/core/domain"

// EntryStore persists cache entries in a single on-disk document. All
// mutation is read-modify-write under the store's own lock so concurrent
// writes to different keys never lose each other.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type EntryStore interface {
	// Get retrieves the entry for a key. Returns nil, nil if not found.
	Get(key string) (*domain.Entry, error)

	// Put stores the entry, replacing any previous entry for the same key.
	Put(entry domain.Entry) error

	// Delete removes the entry for a key. Deleting a missing key is not an error.
	Delete(key string) error

	// Entries returns all stored entries.
	Entries() ([]domain.Entry, error)
}
