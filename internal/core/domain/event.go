package domain

import (
	"encoding/json"
	"time"
)

// EventSchemaVersion is the schema version stamped on every published event.
// New fields may be added without bumping it; removals or renames bump it.
const EventSchemaVersion = 1

// EventType is a namespaced event type such as "cache:done".
type EventType string

const (
	// EventCacheHit is published when a get is served from the cache.
	EventCacheHit EventType = "cache:hit"
	// EventCacheMiss is published when a get triggers a computation.
	EventCacheMiss EventType = "cache:miss"
	// EventCacheDone is published when a computation succeeds.
	EventCacheDone EventType = "cache:done"
	// EventCacheError is published when a computation fails.
	EventCacheError EventType = "cache:error"
	// EventCacheBust is published when an entry is invalidated.
	EventCacheBust EventType = "cache:bust"
	// EventStateStale is published when watched paths diverge from a stored entry.
	EventStateStale EventType = "state:stale"
	// EventSysReady is the first event on every stream, carrying the bus instance.
	EventSysReady EventType = "sys:ready"
	// EventSysSnapshot carries the full set of valid entries.
	EventSysSnapshot EventType = "sys:snapshot"
	// EventSysHeartbeat keeps idle streams alive.
	EventSysHeartbeat EventType = "sys:heartbeat"
	// EventSysWarming is published when the warm-up pass starts.
	EventSysWarming EventType = "sys:warming"
	// EventSysWarm is published when the warm-up pass finishes.
	EventSysWarm EventType = "sys:warm"
)

// MissReason explains why a get bypassed the cache.
type MissReason string

const (
	// MissAbsent means no entry existed for the key.
	MissAbsent MissReason = "absent"
	// MissExpired means the entry's source mtime was older than the watched paths.
	MissExpired MissReason = "expired"
	// MissForced means the caller requested recomputation.
	MissForced MissReason = "forced"
)

// Event is one immutable record on the event bus. Events are created at
// publish time, assigned a globally monotonic sequence number, and never
// mutated afterwards.
type Event struct {
	SchemaVersion   int             `json:"schemaVersion"`
	Timestamp       float64         `json:"timestamp"`
	Sequence        uint64          `json:"sequence"`
	Type            EventType       `json:"type"`
	Key             string          `json:"key,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Meta            map[string]any  `json:"meta,omitempty"`
	Error           string          `json:"error,omitempty"`
	DurationSeconds float64         `json:"durationSeconds,omitempty"`
}

// EventOption configures optional fields of an event before it is sealed
// by the bus.
type EventOption func(*Event)

// WithMeta attaches metadata to the event.
func WithMeta(meta map[string]any) EventOption {
	return func(e *Event) {
		e.Meta = meta
	}
}

// WithError records an error message on the event.
func WithError(err error) EventOption {
	return func(e *Event) {
		if err != nil {
			e.Error = err.Error()
		}
	}
}

// WithDuration records the computation duration on the event.
func WithDuration(d time.Duration) EventOption {
	return func(e *Event) {
		e.DurationSeconds = d.Seconds()
	}
}

// EventTimestamp converts a wall-clock time to the float-seconds format
// events carry on the wire.
func EventTimestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
