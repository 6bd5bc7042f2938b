package domain

import "go.trai.ch/zerr"

var (
	// ErrCycleDetected is returned when the configured dependency graph contains a cycle.
	ErrCycleDetected = zerr.New("cycle detected in dependency graph")

	// ErrUnknownKey is returned when configuration references a cache key that is not declared.
	ErrUnknownKey = zerr.New("unknown cache key")

	// ErrDuplicateKey is returned when a cache key is declared more than once.
	ErrDuplicateKey = zerr.New("duplicate cache key")

	// ErrInvalidWatchPattern is returned when a watch path pattern does not compile.
	ErrInvalidWatchPattern = zerr.New("invalid watch path pattern")

	// ErrKeyNotFound is returned when a requested cache key has no entry.
	ErrKeyNotFound = zerr.New("cache key not found")

	// ErrGroupNotFound is returned when a bust-by-group request names an unknown group.
	ErrGroupNotFound = zerr.New("probe group not found")

	// ErrComputeFailed is returned when a probe computation fails.
	ErrComputeFailed = zerr.New("probe computation failed")

	// ErrStoreReadFailed is returned when the cache document cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read cache document")

	// ErrStoreWriteFailed is returned when the cache document cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write cache document")

	// ErrStoreMarshalFailed is returned when the cache document cannot be marshaled.
	ErrStoreMarshalFailed = zerr.New("failed to marshal cache document")

	// ErrStoreUnmarshalFailed is returned when the cache document cannot be unmarshaled.
	ErrStoreUnmarshalFailed = zerr.New("failed to unmarshal cache document")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigNotFound is returned when the config file cannot be found.
	ErrConfigNotFound = zerr.New("could not find vigil.yaml")

	// ErrNoProbesConfigured is returned when the config declares no probes.
	ErrNoProbesConfigured = zerr.New("no probes configured")

	// ErrProbeCommandEmpty is returned when a probe declares an empty command.
	ErrProbeCommandEmpty = zerr.New("probe command is empty")

	// ErrResolveFailed is returned when watch path resolution fails.
	ErrResolveFailed = zerr.New("failed to resolve watch paths")

	// ErrServeFailed is returned when the daemon serve loop fails.
	ErrServeFailed = zerr.New("serve loop failed")

	// ErrDaemonUnreachable is returned when a client command cannot reach a running daemon.
	ErrDaemonUnreachable = zerr.New("daemon unreachable, is 'vigil serve' running?")
)
