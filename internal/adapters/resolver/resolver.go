// Package resolver maps watch path patterns to concrete filesystem state.
package resolver

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
	"go.trai.ch/zerr"
)

// Resolver implements ports.WatchResolver using filepath globs and stat.
// Patterns that match nothing (or paths that have been removed) contribute
// a zero mtime, so a deleted watch path never masks a real change elsewhere.
type Resolver struct{}

var _ ports.WatchResolver = (*Resolver)(nil)

// New creates a new Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve expands patterns to the concrete paths they currently match,
// sorted and deduplicated.
func (r *Resolver) Resolve(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	paths := make([]string, 0, len(patterns))

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, zerr.With(domain.ErrInvalidWatchPattern, "pattern", pattern)
		}
		if matches == nil {
			// Literal paths that do not exist yet still count as watched.
			matches = []string{pattern}
		}
		for _, match := range matches {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			paths = append(paths, match)
		}
	}

	slices.Sort(paths)
	return paths, nil
}

// MaxMtime returns the maximum modification time (UnixNano) across every
// path the patterns match.
func (r *Resolver) MaxMtime(patterns []string) (int64, error) {
	paths, err := r.Resolve(patterns)
	if err != nil {
		return 0, err
	}

	var maxMtime int64
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if mtime := info.ModTime().UnixNano(); mtime > maxMtime {
			maxMtime = mtime
		}
	}
	return maxMtime, nil
}

// Fingerprint digests the resolved (path, mtime) pairs with xxhash. Two
// calls return the same value iff no watched path appeared, disappeared,
// or changed mtime in between.
func (r *Resolver) Fingerprint(patterns []string) (uint64, error) {
	paths, err := r.Resolve(patterns)
	if err != nil {
		return 0, err
	}

	digest := xxhash.New()
	var buf [8]byte
	for _, path := range paths {
		var mtime int64
		if info, err := os.Stat(path); err == nil {
			mtime = info.ModTime().UnixNano()
		}
		_, _ = digest.WriteString(path)
		binary.LittleEndian.PutUint64(buf[:], uint64(mtime))
		_, _ = digest.Write(buf[:])
	}
	return digest.Sum64(), nil
}
