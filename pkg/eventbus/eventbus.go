// Package eventbus implements Titan's publish/subscribe event bus: glob
// pattern matching on dotted event names, synchronous best-effort delivery
// in subscriber registration order, and a bounded ring of recent events for
// late subscribers.
package eventbus

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultRingSize is the number of recent events retained per bus.
const DefaultRingSize = 100

// Event is one published occurrence. Payload is expected to be
// JSON-serializable, per the external event taxonomy.
type Event struct {
	ID        string
	Type      string
	Timestamp time.Time
	Payload   map[string]interface{}
}

// Callback receives events matching a subscription's pattern. A callback
// that panics is recovered, logged, and does not affect other subscribers.
type Callback func(Event)

// UnsubscribeHandle cancels a subscription when called. Calling it more
// than once is a no-op.
type UnsubscribeHandle func()

type subscription struct {
	id       uint64
	pattern  string
	segments []string
	callback Callback
}

// Bus is a single process-wide (or per-test) event bus. The zero value is
// not usable; construct with New.
type Bus struct {
	mu      sync.Mutex
	subs    []*subscription
	nextSub uint64
	ring    []Event
	ringCap int
	logger  zerolog.Logger
}

// New creates a Bus with the given ring capacity. A non-positive capacity
// falls back to DefaultRingSize.
func New(ringCapacity int, logger zerolog.Logger) *Bus {
	if ringCapacity <= 0 {
		ringCapacity = DefaultRingSize
	}
	return &Bus{
		ringCap: ringCapacity,
		logger:  logger,
	}
}

// Subscribe registers callback against pattern. Patterns are dotted event
// names where a segment of "*" matches exactly one segment and a trailing
// "**" matches any (possibly empty) remaining suffix.
func (b *Bus) Subscribe(pattern string, callback Callback) UnsubscribeHandle {
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	sub := &subscription{
		id:       id,
		pattern:  pattern,
		segments: strings.Split(pattern, "."),
		callback: callback,
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers an event of the given type to every matching subscriber,
// in subscriber registration order, and appends it to the ring buffer. Both
// the ring append and the delivery fan-out happen under the bus's single
// lock, matching the serialization guarantee in the concurrency model: a
// subscriber observes events from a single Publish call stream in
// publication order.
func (b *Bus) Publish(eventType string, payload map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	b.appendRingLocked(event)

	typeSegments := strings.Split(eventType, ".")
	for _, sub := range b.subs {
		if !matchSegments(sub.segments, typeSegments) {
			continue
		}
		b.invokeLocked(sub, event)
	}
}

func (b *Bus) invokeLocked(sub *subscription, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error().
				Interface("panic", rec).
				Str("pattern", sub.pattern).
				Str("event_type", event.Type).
				Msg("event subscriber panicked")
		}
	}()
	sub.callback(event)
}

func (b *Bus) appendRingLocked(event Event) {
	if len(b.ring) < b.ringCap {
		b.ring = append(b.ring, event)
		return
	}
	// Shift left by one, dropping the oldest. The ring is small (default
	// 100) so this is cheap and keeps Recent() trivially ordered.
	copy(b.ring, b.ring[1:])
	b.ring[len(b.ring)-1] = event
}

// Recent returns a copy of the retained events matching pattern, oldest
// first. Pass "**" to retrieve the full retained window.
func (b *Bus) Recent(pattern string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	segments := strings.Split(pattern, ".")
	out := make([]Event, 0, len(b.ring))
	for _, e := range b.ring {
		if matchSegments(segments, strings.Split(e.Type, ".")) {
			out = append(out, e)
		}
	}
	return out
}

// SubscriberCount reports the number of active subscriptions, for tests and
// metrics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func matchSegments(pattern, name []string) bool {
	i := 0
	for i < len(pattern) {
		seg := pattern[i]
		if seg == "**" {
			return true
		}
		if i >= len(name) {
			return false
		}
		if seg != "*" && seg != name[i] {
			return false
		}
		i++
	}
	return i == len(name)
}
