package plugin

import (
	"log/slog"
	"sync"

	extism "github.com/extism/go-sdk"
)

// HostFunctionFactory produces a concrete host function bound to a specific
// plugin. The factory captures any shared service handles it needs (a logger,
// a storage connection) at registry-build time; the plugin id parameter lets
// the produced function attribute its work to the calling plugin.
type HostFunctionFactory func(pluginID string) extism.HostFunction

// HostFunctionRegistry is a permission-keyed catalog of host-function
// factories. It is built once at host startup and treated as immutable
// afterwards.
//
// Multiple registrations under the same permission accumulate; resolution
// preserves permission-then-registration order.
type HostFunctionRegistry struct {
	mu        sync.RWMutex
	factories map[string][]HostFunctionFactory
	log       *slog.Logger
}

// NewHostFunctionRegistry creates an empty registry. If log is nil,
// slog.Default() is used for resolution diagnostics.
func NewHostFunctionRegistry(log *slog.Logger) *HostFunctionRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &HostFunctionRegistry{
		factories: make(map[string][]HostFunctionFactory),
		log:       log,
	}
}

// Register appends a factory under the given permission key.
//
// This should be called during host startup, before any plugin is built.
func (r *HostFunctionRegistry) Register(permission string, factory HostFunctionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[permission] = append(r.factories[permission], factory)
}

// Resolve instantiates, for each requested permission in the order given,
// every factory registered under it (in registration order) bound to
// pluginID.
//
// Resolve never fails: an unknown permission logs a warning and contributes
// nothing. Permission declarations may be forward-looking or meant for a
// different environment, so absence is not an error condition.
func (r *HostFunctionRegistry) Resolve(pluginID string, permissions []string) []extism.HostFunction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var functions []extism.HostFunction
	for _, perm := range permissions {
		factories, ok := r.factories[perm]
		if !ok {
			r.log.Warn("plugin requested unknown permission",
				"plugin", pluginID, "permission", perm)
			continue
		}
		for _, factory := range factories {
			functions = append(functions, factory(pluginID))
		}
	}
	return functions
}

// Permissions returns all registered permission names. Order is not
// guaranteed.
func (r *HostFunctionRegistry) Permissions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	perms := make([]string, 0, len(r.factories))
	for perm := range r.factories {
		perms = append(perms, perm)
	}
	return perms
}
