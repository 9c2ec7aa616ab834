package plugin

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ManifestFilename is the declaration file expected at the root of every
// plugin directory.
const ManifestFilename = "plugin.yaml"

// Manifest is a plugin's identity and capability declaration, parsed from
// plugin.yaml. A manifest is immutable after parse and re-parsed on every
// discovery pass.
//
// Each environment section is optional: the same plugin package can ship a
// server backend, a worker backend, a static frontend bundle, or any
// combination. A host only consumes the section matching its own environment
// and ignores the rest.
type Manifest struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description,omitempty"`

	Server *EnvSection `yaml:"server,omitempty"`
	Worker *EnvSection `yaml:"worker,omitempty"`
	Web    *WebSection `yaml:"web,omitempty"`
}

// EnvSection configures one backend environment (server or worker).
type EnvSection struct {
	// Entry is the path to the WASM artifact, relative to the plugin root.
	Entry string `yaml:"entry"`

	// Permissions lists the host capabilities the plugin requests, in
	// declaration order. An empty list is valid: the plugin receives no
	// host functions beyond what the engine universally provides.
	Permissions []string `yaml:"permissions,omitempty"`

	// Events lists lifecycle topics the plugin wants delivered to its
	// exported on_event function through the hook dispatcher.
	Events []string `yaml:"events,omitempty"`
}

// WebSection configures the static frontend bundle.
type WebSection struct {
	// Root is the directory holding static assets, relative to the plugin
	// root.
	Root string `yaml:"root"`

	// Entry is the JS entry point within Root.
	Entry string `yaml:"entry"`
}

// ParseManifest parses and validates a plugin.yaml document. The caller
// supplies raw manifest content; parsing performs no filesystem or network
// access.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("manifest version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("manifest version %q is not valid semver: %w", m.Version, err)
	}

	if m.Server != nil && m.Server.Entry == "" {
		return fmt.Errorf("server.entry is required when a server section is present")
	}
	if m.Worker != nil && m.Worker.Entry == "" {
		return fmt.Errorf("worker.entry is required when a worker section is present")
	}
	if m.Web != nil {
		if m.Web.Root == "" {
			return fmt.Errorf("web.root is required when a web section is present")
		}
		if m.Web.Entry == "" {
			return fmt.Errorf("web.entry is required when a web section is present")
		}
	}

	return nil
}

// IsHollow reports whether the manifest declares no environment section at
// all. Hollow plugins are discoverable and listable but never loadable by any
// host.
func (m *Manifest) IsHollow() bool {
	return m.Server == nil && m.Worker == nil && m.Web == nil
}
