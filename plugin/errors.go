package plugin

import "errors"

// Sentinel errors for the plugin runtime. Callers classify failures with
// errors.Is and map them to user-facing outcomes; see the httpapi package for
// the HTTP mapping.
var (
	// ErrNotFound indicates the plugin id has no discovered manifest, or a
	// referenced artifact does not exist on disk.
	ErrNotFound = errors.New("plugin not found")

	// ErrNotLoaded indicates the plugin is discovered but has no running
	// instance.
	ErrNotLoaded = errors.New("plugin not loaded")

	// ErrNoRuntime indicates the plugin is loaded for metadata purposes only
	// (frontend-only, or no section for this environment) and cannot be
	// invoked.
	ErrNoRuntime = errors.New("plugin has no runtime")

	// ErrLoadFailed indicates the manifest is unusable for this environment
	// (hollow, missing section) or the engine rejected the module.
	ErrLoadFailed = errors.New("plugin load failed")

	// ErrExecutionFailed indicates a guest trap or engine-level failure
	// during a call.
	ErrExecutionFailed = errors.New("plugin execution failed")

	// ErrSerialization indicates a payload shape mismatch on either side of
	// the host/guest boundary. It is distinct from ErrExecutionFailed so
	// callers can tell "the plugin misbehaved" from "the wrong shape was
	// sent".
	ErrSerialization = errors.New("plugin payload serialization failed")
)
