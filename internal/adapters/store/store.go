// Package store implements the on-disk entry store: one JSON document
// holding every cache entry, mutated only via read-modify-write under a
// single lock.
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
	"go.trai.ch/zerr"
)

// Store implements ports.EntryStore backed by a single JSON document.
//
// Every mutation re-reads the document first so concurrent writes to other
// keys are never lost: the lock is held across the whole read-modify-write.
// Disk write failures degrade to in-memory-only for that write; the mirror
// keeps serving the entry and the error is reported to the caller's logger.
type Store struct {
	mu     sync.Mutex
	path   string
	mirror *domain.Document
}

var _ ports.EntryStore = (*Store)(nil)

// New creates a Store persisting to the document at path. A missing document
// is treated as empty; a document written under an older schema version is
// logically reset.
func New(path string) (*Store, error) {
	s := &Store{path: path}
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	s.mirror = doc
	return s, nil
}

// Get retrieves the entry for a key. Returns nil, nil if not found.
func (s *Store) Get(key string) (*domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.mirror.Entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Put stores the entry, replacing any previous entry for the same key.
func (s *Store) Put(entry domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(doc *domain.Document) {
		doc.Entries[entry.Key] = entry
	})
}

// Delete removes the entry for a key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(doc *domain.Document) {
		delete(doc.Entries, key)
	})
}

// Entries returns all stored entries sorted by key.
func (s *Store) Entries() ([]domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := slices.Collect(maps.Values(s.mirror.Entries))
	slices.SortFunc(entries, func(a, b domain.Entry) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		default:
			return 0
		}
	})
	return entries, nil
}

// mutate applies fn to a freshly re-read document and writes it back.
// Callers must hold s.mu.
func (s *Store) mutate(fn func(*domain.Document)) error {
	doc, err := s.read()
	if err != nil {
		// Fall back to the in-memory mirror if the disk copy is unreadable.
		doc = s.mirror
	}

	fn(doc)
	s.mirror = doc

	if writeErr := s.write(doc); writeErr != nil {
		// In-memory mirror stays authoritative for this process.
		return zerr.Wrap(writeErr, domain.ErrStoreWriteFailed.Error())
	}
	return err
}

func (s *Store) read() (*domain.Document, error) {
	//nolint:gosec // Path comes from validated configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.NewDocument(), nil
		}
		return nil, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreUnmarshalFailed.Error())
	}
	if doc.SchemaVersion != domain.DocumentSchemaVersion || doc.Entries == nil {
		// Dependency semantics changed since this document was written.
		return domain.NewDocument(), nil
	}
	return &doc, nil
}

// write marshals the document and replaces the file atomically so a crashed
// process never leaves a torn document behind.
func (s *Store) write(doc *domain.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, domain.CacheFileName+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), domain.FilePerm); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
