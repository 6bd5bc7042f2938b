// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"encoding/json"

	"github.com/vigilproject/vigil/internal/core/domain"
)

// Computable is one expensive computation supplied by the calling layer.
// Implementations carry all required context from construction; the cache
// facade treats them as opaque.
//
//go:generate mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks
type Computable interface {
	// Key returns the cache key the computation produces.
	Key() string

	// Compute produces the value. It may block on external I/O and must
	// honor ctx cancellation.
	Compute(ctx context.Context) (json.RawMessage, error)
}

// ComputeFunc adapts a function to the Computable interface.
type ComputeFunc struct {
	K  string
	Fn func(ctx context.Context) (json.RawMessage, error)
}

// Key returns the cache key.
func (f ComputeFunc) Key() string { return f.K }

// Compute invokes the wrapped function.
func (f ComputeFunc) Compute(ctx context.Context) (json.RawMessage, error) { return f.Fn(ctx) }

// EventSink publishes cache lifecycle events. The concrete implementation is
// the event bus; the facade and watchers only see this narrow surface.
type EventSink interface {
	// Publish seals and broadcasts an event, returning it with its assigned
	// sequence number. Publish never blocks on slow subscribers.
	Publish(eventType domain.EventType, key string, payload json.RawMessage, opts ...domain.EventOption) domain.Event
}
