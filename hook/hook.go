// Package hook delivers host lifecycle events to interested observers by
// topic, isolating failures per observer.
package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/openjudge-dev/openjudge/observability"
)

// Event is one host lifecycle occurrence, identified by topic. The payload is
// an opaque JSON document so observers of any kind (plugin-backed or native)
// can decode the shape they expect.
type Event struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent builds an Event for topic with a JSON-encoded payload.
func NewEvent(topic string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encoding event payload for topic %q: %w", topic, err)
	}
	return Event{
		ID:      uuid.NewString(),
		Topic:   topic,
		Payload: data,
	}, nil
}

// Hook observes events. A hook may or may not be backed by a plugin; the
// dispatcher only requires the capability to handle one event instance and
// fail independently.
type Hook interface {
	// ID identifies the hook for removal and diagnostics.
	ID() string

	// Topics returns the event topics this hook is interested in.
	Topics() []string

	// OnEvent handles one event instance. An error is recorded by the
	// dispatcher and does not affect other hooks or the trigger's caller.
	OnEvent(ctx context.Context, event Event) error
}

// Dispatcher is a registry of observers keyed by topic. Registration order
// defines dispatch order; there are no priorities and no re-ordering.
type Dispatcher struct {
	mu    sync.RWMutex
	hooks map[string][]Hook
	log   *slog.Logger
}

// NewDispatcher creates an empty dispatcher. If log is nil, slog.Default()
// is used.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		hooks: make(map[string][]Hook),
		log:   log,
	}
}

// AddHook subscribes the hook to each of its topics, appending in
// registration order.
func (d *Dispatcher) AddHook(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, topic := range h.Topics() {
		d.hooks[topic] = append(d.hooks[topic], h)
	}
}

// RemoveHook unsubscribes the first hook with the given id from every topic.
// It reports whether anything was removed.
func (d *Dispatcher) RemoveHook(hookID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := false
	for topic, hooks := range d.hooks {
		for i, h := range hooks {
			if h.ID() == hookID {
				d.hooks[topic] = append(hooks[:i:i], hooks[i+1:]...)
				removed = true
				break
			}
		}
	}
	return removed
}

// Trigger delivers the event to every hook registered for its topic,
// sequentially in registration order. A failing hook is logged and counted
// but does not prevent delivery to subsequent hooks, and no failure
// propagates to the caller.
//
// Delivery within one Trigger call is single-threaded: a slow hook delays the
// hooks after it. Concurrent Trigger calls for different events may
// interleave.
func (d *Dispatcher) Trigger(ctx context.Context, event Event) {
	d.mu.RLock()
	hooks := append([]Hook(nil), d.hooks[event.Topic]...)
	d.mu.RUnlock()

	for _, h := range hooks {
		if err := h.OnEvent(ctx, event); err != nil {
			observability.RecordHookFailure(h.ID(), event.Topic)
			d.log.Warn("hook failed",
				"hook", h.ID(), "topic", event.Topic, "event", event.ID, "error", err)
		}
	}
}
