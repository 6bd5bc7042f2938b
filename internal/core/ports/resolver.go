package ports

// WatchResolver maps watch path patterns to concrete filesystem state.
//
//go:generate mockgen -source=resolver.go -destination=mocks/mock_resolver.go -package=mocks
type WatchResolver interface {
	// Resolve expands patterns to the concrete paths they currently match.
	Resolve(patterns []string) ([]string, error)

	// MaxMtime returns the maximum modification time (UnixNano) across every
	// path the patterns match. Paths that do not exist contribute zero.
	MaxMtime(patterns []string) (int64, error)

	// Fingerprint returns a digest of the resolved (path, mtime) pairs,
	// usable for cheap change detection.
	Fingerprint(patterns []string) (uint64, error)
}
