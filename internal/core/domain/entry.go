// Package domain contains the core types of the cache-and-notify subsystem.
package domain

import (
	"encoding/json"
	"time"
)

// DocumentSchemaVersion is the schema version of the on-disk cache document.
// Bumping it logically resets any document written under an older version.
const DocumentSchemaVersion = 1

// Entry is one cached computation result.
type Entry struct {
	// Key identifies the cached computation.
	Key string `json:"key"`
	// Value is the opaque payload produced by the probe.
	Value json.RawMessage `json:"value"`
	// ComputedAt is the wall-clock time the value was computed.
	ComputedAt time.Time `json:"computedAt"`
	// SourceMtime is the maximum modification time (UnixNano) observed
	// across the key's watched paths when the value was computed.
	SourceMtime int64 `json:"sourceMtime"`
	// Elapsed is how long the computation took.
	Elapsed time.Duration `json:"elapsed"`
}

// ValidAgainst reports whether the entry is still valid given the current
// maximum watched-path mtime.
func (e *Entry) ValidAgainst(maxMtime int64) bool {
	return e.SourceMtime >= maxMtime
}

// Document is the on-disk representation of the entry store: one JSON
// document holding every entry, mutated only via read-modify-write.
type Document struct {
	SchemaVersion int              `json:"schemaVersion"`
	Entries       map[string]Entry `json:"entries"`
}

// NewDocument returns an empty document at the current schema version.
func NewDocument() *Document {
	return &Document{
		SchemaVersion: DocumentSchemaVersion,
		Entries:       make(map[string]Entry),
	}
}
