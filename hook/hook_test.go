package hook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHook records the events it receives and optionally fails.
type recordingHook struct {
	id     string
	topics []string
	fail   error

	mu     sync.Mutex
	events []Event
}

func (h *recordingHook) ID() string       { return h.id }
func (h *recordingHook) Topics() []string { return h.topics }

func (h *recordingHook) OnEvent(ctx context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.fail
}

func (h *recordingHook) received() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent("submission_judged", map[string]int{"submission_id": 42})
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "submission_judged", event.Topic)
	assert.JSONEq(t, `{"submission_id":42}`, string(event.Payload))

	other, err := NewEvent("submission_judged", nil)
	require.NoError(t, err)
	assert.NotEqual(t, event.ID, other.ID, "event ids must be unique")
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	_, err := NewEvent("bad", make(chan int))
	assert.Error(t, err)
}

func TestDispatcher_TriggerByTopic(t *testing.T) {
	d := NewDispatcher(nil)
	judged := &recordingHook{id: "judged", topics: []string{"submission_judged"}}
	started := &recordingHook{id: "started", topics: []string{"contest_started"}}
	d.AddHook(judged)
	d.AddHook(started)

	event, err := NewEvent("submission_judged", nil)
	require.NoError(t, err)
	d.Trigger(context.Background(), event)

	require.Len(t, judged.received(), 1)
	assert.Equal(t, event.ID, judged.received()[0].ID)
	assert.Empty(t, started.received(), "hook on another topic must not fire")
}

func TestDispatcher_FailingHookDoesNotStopOthers(t *testing.T) {
	d := NewDispatcher(nil)
	first := &recordingHook{id: "first", topics: []string{"t"}}
	failing := &recordingHook{id: "failing", topics: []string{"t"}, fail: errors.New("boom")}
	last := &recordingHook{id: "last", topics: []string{"t"}}
	d.AddHook(first)
	d.AddHook(failing)
	d.AddHook(last)

	event, err := NewEvent("t", nil)
	require.NoError(t, err)
	d.Trigger(context.Background(), event)

	assert.Len(t, first.received(), 1)
	assert.Len(t, failing.received(), 1)
	assert.Len(t, last.received(), 1, "hooks after a failing one must still run")
}

func TestDispatcher_RegistrationOrder(t *testing.T) {
	d := NewDispatcher(nil)

	var mu sync.Mutex
	var order []string
	mk := func(id string) Hook {
		return &funcHook{id: id, topics: []string{"t"}, fn: func(context.Context, Event) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, id)
			return nil
		}}
	}
	d.AddHook(mk("a"))
	d.AddHook(mk("b"))
	d.AddHook(mk("c"))

	event, err := NewEvent("t", nil)
	require.NoError(t, err)
	d.Trigger(context.Background(), event)

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestDispatcher_RemoveHook(t *testing.T) {
	d := NewDispatcher(nil)
	h := &recordingHook{id: "gone", topics: []string{"a", "b"}}
	d.AddHook(h)

	assert.True(t, d.RemoveHook("gone"))
	assert.False(t, d.RemoveHook("gone"), "second removal finds nothing")

	for _, topic := range []string{"a", "b"} {
		event, err := NewEvent(topic, nil)
		require.NoError(t, err)
		d.Trigger(context.Background(), event)
	}
	assert.Empty(t, h.received())
}

func TestDispatcher_TriggerUnknownTopic(t *testing.T) {
	d := NewDispatcher(nil)
	event, err := NewEvent("nobody-listens", json.RawMessage(`{}`))
	require.NoError(t, err)

	// Must not panic or error; there is simply nothing to do.
	d.Trigger(context.Background(), event)
}

// funcHook adapts a function to the Hook interface.
type funcHook struct {
	id     string
	topics []string
	fn     func(ctx context.Context, event Event) error
}

func (h *funcHook) ID() string       { return h.id }
func (h *funcHook) Topics() []string { return h.topics }
func (h *funcHook) OnEvent(ctx context.Context, event Event) error {
	return h.fn(ctx, event)
}
