package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	extism "github.com/extism/go-sdk"
)

// Instance is the runnable form of a compiled plugin module.
//
// A single Instance is not safe for concurrent invocation: the guest's linear
// memory is not reentrant. The registry serializes calls to one instance
// while calls to different plugins proceed in parallel.
type Instance interface {
	// Call invokes the named exported function with a raw byte payload and
	// returns the raw byte result.
	Call(ctx context.Context, funcName string, input []byte) ([]byte, error)

	// FunctionExists reports whether the guest exports the named function.
	FunctionExists(funcName string) bool

	// Close releases the instance's compiled module and linear memory.
	Close(ctx context.Context) error
}

// Builder assembles a ready-to-invoke plugin instance from a WASM artifact, a
// WASI toggle, and an accumulated set of host functions.
//
// Options are independently settable and the zero defaults are safe: WASI is
// disabled and no host functions are linked unless requested.
type Builder struct {
	wasmPath string
	wasi     bool
	fns      []extism.HostFunction
}

// NewBuilder creates a builder for the WASM artifact at wasmPath.
func NewBuilder(wasmPath string) *Builder {
	return &Builder{wasmPath: wasmPath}
}

// WithWasi enables or disables WASI support for the instance.
func (b *Builder) WithWasi(enable bool) *Builder {
	b.wasi = enable
	return b
}

// WithHostFunctions appends host functions to be linked into the instance.
func (b *Builder) WithHostFunctions(fns ...extism.HostFunction) *Builder {
	b.fns = append(b.fns, fns...)
	return b
}

// WithPermissions resolves the given permissions against the registry and
// appends the resulting host functions, bound to pluginID.
func (b *Builder) WithPermissions(pluginID string, permissions []string, registry *HostFunctionRegistry) *Builder {
	b.fns = append(b.fns, registry.Resolve(pluginID, permissions)...)
	return b
}

// Build compiles and instantiates the plugin.
//
// It fails with ErrNotFound if the artifact does not exist at build time;
// any other failure to stat the artifact is returned as a wrapped I/O error.
// Instantiation failures (malformed bytecode, or the module importing a host
// function the builder did not supply) surface wrapped as ErrLoadFailed.
func (b *Builder) Build(ctx context.Context) (Instance, error) {
	if _, err := os.Stat(b.wasmPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: wasm artifact %q", ErrNotFound, b.wasmPath)
		}
		return nil, fmt.Errorf("stat wasm artifact %q: %w", b.wasmPath, err)
	}

	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmFile{Path: b.wasmPath},
		},
	}

	config := extism.PluginConfig{
		EnableWasi: b.wasi,
	}

	p, err := extism.NewPlugin(ctx, manifest, config, b.fns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	return &engineInstance{plugin: p}, nil
}

// engineInstance wraps an Extism plugin. The mutex guards the underlying
// engine handle, which owns mutable linear memory and must not be entered
// concurrently.
type engineInstance struct {
	mu     sync.Mutex
	plugin *extism.Plugin
}

func (e *engineInstance) Call(ctx context.Context, funcName string, input []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exitCode, output, err := e.plugin.CallWithContext(ctx, funcName, input)
	if err != nil {
		return nil, fmt.Errorf("%w: function %q: %v", ErrExecutionFailed, funcName, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%w: function %q returned exit code %d", ErrExecutionFailed, funcName, exitCode)
	}
	return output, nil
}

func (e *engineInstance) FunctionExists(funcName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plugin.FunctionExists(funcName)
}

func (e *engineInstance) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plugin.Close(ctx)
}
