// Package bus implements the in-process event bus: a monotonic sequence
// counter, a bounded replay ring, and non-blocking fan-out to subscriber
// queues.
package bus

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
)

// Bus broadcasts cache lifecycle events to an arbitrary number of transient
// subscribers with bounded memory. Events for the same key are delivered to
// every subscriber in increasing sequence order; the sequence is globally
// monotonic so gap detection and idempotent replay stay trivial.
type Bus struct {
	mu          sync.Mutex
	instance    string
	seq         uint64
	ring        []domain.Event
	capacity    int
	queueSize   int
	subscribers map[*Subscriber]struct{}
	lastPublish time.Time
}

var _ ports.EventSink = (*Bus)(nil)

// New creates a bus retaining up to capacity events for replay, with
// queueSize slots per subscriber queue.
func New(capacity, queueSize int) *Bus {
	return &Bus{
		instance:    newInstanceID(),
		ring:        make([]domain.Event, 0, capacity),
		capacity:    capacity,
		queueSize:   queueSize,
		subscribers: make(map[*Subscriber]struct{}),
		lastPublish: time.Now(),
	}
}

// newInstanceID derives an opaque per-process identifier so observers can
// detect server restarts and discard local state.
func newInstanceID() string {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint64(buf[8:], uint64(os.Getpid()))
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], xxhash.Sum64(buf[:]))
	return hex.EncodeToString(out[:])
}

// Instance returns the opaque identifier of this bus instance.
func (b *Bus) Instance() string {
	return b.instance
}

// LastSequence returns the most recently assigned sequence number.
func (b *Bus) LastSequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Publish seals and broadcasts an event. The lock is held only for the
// counter increment, the ring append, and the fan-out, which is O(live
// subscribers). A subscriber whose queue is full is presumed dead and
// dropped; Publish never blocks.
func (b *Bus) Publish(eventType domain.EventType, key string, payload json.RawMessage, opts ...domain.EventOption) domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	now := time.Now()
	b.lastPublish = now

	event := domain.Event{
		SchemaVersion: domain.EventSchemaVersion,
		Timestamp:     domain.EventTimestamp(now),
		Sequence:      b.seq,
		Type:          eventType,
		Key:           key,
		Payload:       payload,
	}
	for _, opt := range opts {
		opt(&event)
	}

	if len(b.ring) == b.capacity {
		b.ring = append(b.ring[:0], b.ring[1:]...)
	}
	b.ring = append(b.ring, event)

	for sub := range b.subscribers {
		select {
		case sub.queue <- event:
		default:
			// Full queue means the consumer is gone or hopelessly behind.
			delete(b.subscribers, sub)
			close(sub.queue)
		}
	}

	return event
}

// Subscribe registers a new subscriber. If since is non-zero and within the
// ring's range, replayed contains exactly the missed events in order with no
// duplicates and no gaps, and snapshotNeeded is false. Otherwise replayed is
// empty and snapshotNeeded is true: the caller must seed the observer with a
// full snapshot before streaming live events.
func (b *Bus) Subscribe(since uint64) (sub *Subscriber, replayed []domain.Event, snapshotNeeded bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub = &Subscriber{
		bus:   b,
		queue: make(chan domain.Event, b.queueSize),
	}
	b.subscribers[sub] = struct{}{}

	if since == 0 {
		return sub, nil, true
	}
	if since == b.seq {
		return sub, nil, false
	}
	if len(b.ring) == 0 || since < b.ring[0].Sequence-1 || since > b.seq {
		return sub, nil, true
	}

	for _, event := range b.ring {
		if event.Sequence > since {
			replayed = append(replayed, event)
		}
	}
	return sub, replayed, false
}

// Synthetic builds an event stamped at the given sequence without publishing
// it. Used for per-connection events (ready, snapshot) that must not consume
// sequence numbers or enter the replay ring. Callers pass a sequence they
// captured before assembling the payload, so an event published while the
// payload is built sorts after the synthetic one.
func (b *Bus) Synthetic(eventType domain.EventType, sequence uint64, payload json.RawMessage, opts ...domain.EventOption) domain.Event {
	event := domain.Event{
		SchemaVersion: domain.EventSchemaVersion,
		Timestamp:     domain.EventTimestamp(time.Now()),
		Sequence:      sequence,
		Type:          eventType,
		Payload:       payload,
	}
	for _, opt := range opts {
		opt(&event)
	}
	return event
}

// unsubscribe removes the subscriber and closes its queue. Idempotent: the
// subscriber may already have been dropped by a full-queue eviction.
func (b *Bus) unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.queue)
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// idleSince reports how long the bus has gone without a publish.
func (b *Bus) idleSince(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastPublish)
}

// Subscriber is one bounded event queue plus an implicit cursor held by the
// consumer. It is destroyed when the consumer disconnects or falls behind.
type Subscriber struct {
	bus   *Bus
	queue chan domain.Event
}

// C returns the subscriber's event channel. The channel is closed when the
// subscriber is dropped or closed.
func (s *Subscriber) C() <-chan domain.Event {
	return s.queue
}

// Close unsubscribes from the bus.
func (s *Subscriber) Close() {
	s.bus.unsubscribe(s)
}
