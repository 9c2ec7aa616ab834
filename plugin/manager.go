// Package plugin implements a capability-scoped WebAssembly plugin runtime.
//
// A plugin is an independently compiled WASM module plus a plugin.yaml
// manifest declaring which environments it participates in (server, worker,
// web) and which host capabilities it needs. The host grants only the host
// functions matching the declared permissions, so a plugin can never call
// functionality it did not request.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Config holds the runtime settings shared by every embedding.
type Config struct {
	// PluginsDir is the root directory containing one subdirectory per
	// plugin.
	PluginsDir string

	// EnableWasi controls WASI support for built instances.
	EnableWasi bool
}

// DefaultConfig returns the runtime defaults.
func DefaultConfig() Config {
	return Config{
		PluginsDir: "./plugins",
		EnableWasi: true,
	}
}

// SectionResolver selects the manifest section relevant to one embedding.
//
// This indirection is the mechanism by which one plugin package serves
// multiple roles: the manifest is shared, but a server host only consumes the
// server section and a worker host only the worker section.
type SectionResolver interface {
	// Environment names the embedding, for logs and registry entries.
	Environment() string

	// Section returns the manifest section for this environment, or nil if
	// the manifest does not declare one.
	Section(m *Manifest) *EnvSection
}

// ServerResolver selects the server section of a manifest.
type ServerResolver struct{}

func (ServerResolver) Environment() string             { return "server" }
func (ServerResolver) Section(m *Manifest) *EnvSection { return m.Server }

// WorkerResolver selects the worker section of a manifest.
type WorkerResolver struct{}

func (WorkerResolver) Environment() string             { return "worker" }
func (WorkerResolver) Section(m *Manifest) *EnvSection { return m.Worker }

// Manager is the object-safe contract every embedding host implements to
// load, query, and invoke plugins. A single Manager value can be shared
// across unrelated call sites (HTTP handlers, hooks, schedulers); the typed
// convenience layer is the package-level Call function.
type Manager interface {
	// DiscoverPlugins scans the plugins directory and records every
	// candidate plugin. Per-plugin failures are isolated.
	DiscoverPlugins() ([]Info, error)

	// LoadPlugin builds and activates the instance for a discovered plugin.
	// Loading an already-loaded plugin replaces the prior instance.
	LoadPlugin(ctx context.Context, pluginID string) error

	// UnloadPlugin drops a plugin's instance, reverting it to discovered.
	UnloadPlugin(ctx context.Context, pluginID string) error

	// HasPlugin reports whether the plugin id is known to the registry.
	HasPlugin(pluginID string) bool

	// IsLoaded reports whether the plugin currently has a live instance.
	IsLoaded(pluginID string) bool

	// ListPlugins returns discovered metadata for every known plugin. It
	// does not require loading.
	ListPlugins() []Info

	// CallRaw invokes the named exported guest function with a raw byte
	// payload and returns the raw byte result.
	CallRaw(ctx context.Context, pluginID, funcName string, input []byte) ([]byte, error)

	// ResolveWebAsset maps a requested virtual path to a file inside the
	// plugin's declared web root, rejecting traversal outside that root.
	ResolveWebAsset(pluginID, requested string) (string, error)
}

// buildFunc assembles an Instance. It is a field on Host so tests can
// substitute an engine-free implementation.
type buildFunc func(ctx context.Context, wasmPath string, wasi bool, fns *HostFunctionRegistry, pluginID string, permissions []string) (Instance, error)

func defaultBuild(ctx context.Context, wasmPath string, wasi bool, fns *HostFunctionRegistry, pluginID string, permissions []string) (Instance, error) {
	return NewBuilder(wasmPath).
		WithWasi(wasi).
		WithPermissions(pluginID, permissions, fns).
		Build(ctx)
}

// Host is the generic Manager implementation, parameterized by a
// SectionResolver so the same runtime serves both the server and the worker
// embeddings.
type Host struct {
	cfg      Config
	reg      *registry
	hostFns  *HostFunctionRegistry
	resolver SectionResolver
	log      *slog.Logger
	build    buildFunc
}

// NewHost creates a Host bound to a host-function registry and an
// environment strategy. The plugins directory is created if missing. If log
// is nil, slog.Default() is used.
func NewHost(cfg Config, hostFns *HostFunctionRegistry, resolver SectionResolver, log *slog.Logger) *Host {
	if log == nil {
		log = slog.Default()
	}
	if _, err := os.Stat(cfg.PluginsDir); err != nil {
		_ = os.MkdirAll(cfg.PluginsDir, 0o755)
	}
	return &Host{
		cfg:      cfg,
		reg:      newRegistry(),
		hostFns:  hostFns,
		resolver: resolver,
		log:      log.With("environment", resolver.Environment()),
		build:    defaultBuild,
	}
}

// Environment names the embedding this host was built for.
func (h *Host) Environment() string { return h.resolver.Environment() }

// HostFunctions returns the host-function registry this host resolves
// permissions against.
func (h *Host) HostFunctions() *HostFunctionRegistry { return h.hostFns }

// DiscoverPlugins scans the plugins directory and updates the registry with
// discovered plugins. Hollow manifests are recorded but flagged, since no
// host can ever load them.
func (h *Host) DiscoverPlugins() ([]Info, error) {
	infos, err := h.reg.discoverInto(h.cfg.PluginsDir)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Status == StatusFailed {
			h.log.Error("failed to parse plugin", "plugin", info.ID, "error", info.Error)
			continue
		}
		h.log.Info("discovered plugin",
			"plugin", info.ID, "name", info.Name, "version", info.Version)
		if e, ok := h.reg.get(info.ID); ok && e.manifest.IsHollow() {
			h.log.Warn("plugin is hollow and can never be loaded", "plugin", info.ID)
		}
	}
	return infos, nil
}

// ResolvedSection returns the manifest section this host's environment
// consumes for the given plugin, or ErrLoadFailed if the plugin does not
// declare one.
func (h *Host) ResolvedSection(pluginID string) (*EnvSection, error) {
	e, ok := h.reg.get(pluginID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pluginID)
	}
	h.reg.mu.RLock()
	manifest := e.manifest
	h.reg.mu.RUnlock()

	section := h.resolver.Section(manifest)
	if section == nil {
		return nil, fmt.Errorf("%w: plugin %q has no %s section", ErrLoadFailed, pluginID, h.resolver.Environment())
	}
	return section, nil
}

// LoadPlugin builds the instance for a discovered plugin and stores it in
// the registry. Reload is destructive for the old instance but
// all-or-nothing against the registry: a build failure leaves a previously
// loaded instance intact.
func (h *Host) LoadPlugin(ctx context.Context, pluginID string) error {
	e, ok := h.reg.get(pluginID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, pluginID)
	}

	h.reg.mu.RLock()
	manifest := e.manifest
	rootDir := e.rootDir
	h.reg.mu.RUnlock()

	if manifest.IsHollow() {
		return fmt.Errorf("%w: plugin %q is hollow", ErrLoadFailed, pluginID)
	}
	section := h.resolver.Section(manifest)
	if section == nil {
		return fmt.Errorf("%w: plugin %q has no %s section", ErrLoadFailed, pluginID, h.resolver.Environment())
	}

	wasmPath := filepath.Join(rootDir, section.Entry)
	instance, err := h.build(ctx, wasmPath, h.cfg.EnableWasi, h.hostFns, pluginID, section.Permissions)
	if err != nil {
		h.reg.mu.Lock()
		if e.status != StatusLoaded {
			e.status = StatusFailed
			e.failure = err.Error()
		}
		h.reg.mu.Unlock()
		return fmt.Errorf("loading plugin %q: %w", pluginID, err)
	}

	h.reg.mu.Lock()
	e.status = StatusLoaded
	e.failure = ""
	e.permissions = append([]string(nil), section.Permissions...)
	h.reg.mu.Unlock()

	// Swap under the call mutex: an in-flight call finishes against the
	// stale instance before the old handle is closed.
	e.callMu.Lock()
	old := e.instance
	e.instance = instance
	e.callMu.Unlock()

	if old != nil {
		if err := old.Close(ctx); err != nil {
			h.log.Warn("failed to close replaced instance", "plugin", pluginID, "error", err)
		}
	}

	h.log.Info("plugin loaded",
		"plugin", pluginID,
		"name", manifest.Name,
		"version", manifest.Version,
		"permissions", section.Permissions)
	return nil
}

// UnloadPlugin drops the plugin's instance and reverts it to discovered.
func (h *Host) UnloadPlugin(ctx context.Context, pluginID string) error {
	e, ok := h.reg.get(pluginID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, pluginID)
	}

	h.reg.mu.Lock()
	e.status = StatusDiscovered
	e.failure = ""
	e.permissions = nil
	h.reg.mu.Unlock()

	e.callMu.Lock()
	old := e.instance
	e.instance = nil
	e.callMu.Unlock()

	if old != nil {
		if err := old.Close(ctx); err != nil {
			h.log.Warn("failed to close unloaded instance", "plugin", pluginID, "error", err)
		}
	}

	h.log.Info("plugin unloaded", "plugin", pluginID)
	return nil
}

// HasPlugin reports whether the plugin id has a discovered manifest.
func (h *Host) HasPlugin(pluginID string) bool {
	_, ok := h.reg.get(pluginID)
	return ok
}

// IsLoaded reports whether the plugin currently has a live instance.
func (h *Host) IsLoaded(pluginID string) bool {
	e, ok := h.reg.get(pluginID)
	if !ok {
		return false
	}
	h.reg.mu.RLock()
	defer h.reg.mu.RUnlock()
	return e.status == StatusLoaded
}

// ListPlugins returns discovered metadata for all known plugins, ordered by
// id.
func (h *Host) ListPlugins() []Info {
	return h.reg.list()
}

// CallRaw looks up the loaded instance and invokes the named exported
// function with the raw byte payload. Calls to the same plugin serialize;
// calls to different plugins proceed in parallel.
func (h *Host) CallRaw(ctx context.Context, pluginID, funcName string, input []byte) ([]byte, error) {
	e, ok := h.reg.get(pluginID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pluginID)
	}

	h.reg.mu.RLock()
	status := e.status
	h.reg.mu.RUnlock()
	if status != StatusLoaded {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, pluginID)
	}

	e.callMu.Lock()
	defer e.callMu.Unlock()
	if e.instance == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRuntime, pluginID)
	}
	output, err := e.instance.Call(ctx, funcName, input)
	if err != nil {
		return nil, fmt.Errorf("calling %q on plugin %q: %w", funcName, pluginID, err)
	}
	return output, nil
}

// ResolveWebAsset maps a requested virtual path to a file inside the
// plugin's declared web root. The check is re-validated on every request; no
// "safe" path is ever cached.
func (h *Host) ResolveWebAsset(pluginID, requested string) (string, error) {
	e, ok := h.reg.get(pluginID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, pluginID)
	}
	h.reg.mu.RLock()
	defer h.reg.mu.RUnlock()
	return e.resolveWebAsset(requested)
}

var _ Manager = (*Host)(nil)
