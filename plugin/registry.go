package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/openjudge-dev/openjudge/asset"
)

// Status describes where a plugin is in its lifecycle.
type Status string

const (
	// StatusDiscovered means the plugin was found on disk and its manifest
	// parsed, but no instance is running.
	StatusDiscovered Status = "discovered"
	// StatusLoaded means the plugin is fully loaded and invocable.
	StatusLoaded Status = "loaded"
	// StatusFailed means the plugin encountered an error during discovery or
	// activation.
	StatusFailed Status = "failed"
)

// Info is the public view of a registry entry, suitable for API responses.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
}

// entry is one plugin in the registry: parsed manifest plus, when loaded, the
// live engine instance.
//
// callMu serializes invocations of this plugin's instance. It is also
// acquired before swapping the instance on reload, so an in-flight call
// completes against the stale instance and the old handle is only closed once
// that call returns.
type entry struct {
	id          string
	rootDir     string
	manifest    *Manifest
	status      Status
	failure     string
	permissions []string

	callMu   sync.Mutex
	instance Instance
}

func (e *entry) info() Info {
	return Info{
		ID:          e.id,
		Name:        e.manifest.Name,
		Version:     e.manifest.Version,
		Description: e.manifest.Description,
		Status:      e.status,
		Error:       e.failure,
	}
}

// resolveWebAsset maps a requested virtual path to a file inside this
// plugin's declared web root. It fails with asset.ErrNoWebConfig when the
// manifest has no web section.
func (e *entry) resolveWebAsset(requested string) (string, error) {
	if e.manifest.Web == nil {
		return "", asset.ErrNoWebConfig
	}
	return asset.Resolve(filepath.Join(e.rootDir, e.manifest.Web.Root), requested)
}

// registry is the live, process-wide set of plugins, guarded by a
// reader/writer lock: concurrent calls and listings take read access,
// load/unload take write access. This favors read throughput over write
// latency, since loading is comparatively rare.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *registry) list() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, e.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// discoverInto scans pluginsDir for plugin directories and records every
// candidate with a manifest file. A parse failure for one plugin is isolated:
// the entry is recorded as failed and discovery continues with the rest.
//
// Rediscovery of an already-known plugin refreshes its manifest but preserves
// a loaded instance; replacement only happens through an explicit load.
func (r *registry) discoverInto(pluginsDir string) ([]Info, error) {
	dirEntries, err := os.ReadDir(pluginsDir)
	if err != nil {
		return nil, fmt.Errorf("reading plugins directory %q: %w", pluginsDir, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var discovered []Info
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		id := de.Name()
		rootDir := filepath.Join(pluginsDir, id)

		e := r.entries[id]
		if e == nil {
			e = &entry{id: id, rootDir: rootDir, status: StatusDiscovered}
			r.entries[id] = e
		}
		e.rootDir = rootDir

		data, err := os.ReadFile(filepath.Join(rootDir, ManifestFilename))
		if err != nil {
			e.status = StatusFailed
			e.failure = fmt.Sprintf("reading manifest: %v", err)
			if e.manifest == nil {
				e.manifest = &Manifest{Name: id, Version: "0.0.0"}
			}
			discovered = append(discovered, e.info())
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			e.status = StatusFailed
			e.failure = err.Error()
			if e.manifest == nil {
				e.manifest = &Manifest{Name: id, Version: "0.0.0"}
			}
			discovered = append(discovered, e.info())
			continue
		}

		e.manifest = manifest
		e.failure = ""
		if e.status != StatusLoaded {
			e.status = StatusDiscovered
		}
		discovered = append(discovered, e.info())
	}

	return discovered, nil
}
