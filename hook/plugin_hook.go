package hook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openjudge-dev/openjudge/plugin"
)

// PluginHook forwards events to a plugin's exported function. The JSON event
// envelope is the call input; no meaningful return value is expected, so a
// void guest handler is not an error.
type PluginHook struct {
	manager  plugin.Manager
	pluginID string
	function string
	topics   []string
}

// NewPluginHook creates a hook that calls funcName on pluginID for each of
// the given topics.
func NewPluginHook(manager plugin.Manager, pluginID, funcName string, topics []string) *PluginHook {
	return &PluginHook{
		manager:  manager,
		pluginID: pluginID,
		function: funcName,
		topics:   topics,
	}
}

// ID returns the backing plugin's id.
func (p *PluginHook) ID() string { return p.pluginID }

// Topics returns the subscribed topics.
func (p *PluginHook) Topics() []string { return p.topics }

// OnEvent forwards the event to the plugin. The guest receives the full
// event envelope so it can distinguish topics when subscribed to several;
// whatever the guest returns, including no output at all, is discarded.
func (p *PluginHook) OnEvent(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: encoding event %q: %v", plugin.ErrSerialization, event.ID, err)
	}
	_, err = p.manager.CallRaw(ctx, p.pluginID, p.function, data)
	return err
}
