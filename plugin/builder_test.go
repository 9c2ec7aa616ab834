package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBuilder_MissingArtifact(t *testing.T) {
	b := NewBuilder(filepath.Join(t.TempDir(), "missing.wasm"))

	_, err := b.Build(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Build() error = %v, want ErrNotFound", err)
	}
}

func TestBuilder_StatFailureIsNotNotFound(t *testing.T) {
	// A NUL byte makes Stat fail with EINVAL rather than ErrNotExist. A
	// filesystem failure must not be reported as a missing artifact.
	b := NewBuilder(filepath.Join(t.TempDir(), "bad\x00name.wasm"))

	_, err := b.Build(context.Background())
	if err == nil {
		t.Fatal("Build() error = nil, want stat error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("Build() error = %v, want a wrapped I/O error, not ErrNotFound", err)
	}
}

func TestBuilder_InvalidWASM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wasm")
	if err := os.WriteFile(path, []byte("this is not webassembly"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := NewBuilder(path).WithWasi(true).Build(context.Background())
	if !errors.Is(err, ErrLoadFailed) {
		t.Errorf("Build() error = %v, want ErrLoadFailed", err)
	}
}

func TestBuilder_EmptyModule(t *testing.T) {
	// Smallest well-formed module: magic + version, no sections.
	path := filepath.Join(t.TempDir(), "empty.wasm")
	module := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if err := os.WriteFile(path, module, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	inst, err := NewBuilder(path).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer inst.Close(context.Background())

	if inst.FunctionExists("render") {
		t.Error("FunctionExists() = true for export-free module")
	}
}

func TestBuilder_WithPermissionsResolvesRegistry(t *testing.T) {
	reg := NewHostFunctionRegistry(nil)
	reg.Register("logger", namedFactory("log_info"))

	b := NewBuilder("unused.wasm").WithPermissions("p", []string{"logger"}, reg)
	if len(b.fns) != 1 {
		t.Fatalf("len(fns) = %d, want 1", len(b.fns))
	}
	if b.fns[0].Name != "log_info" {
		t.Errorf("fns[0].Name = %q, want log_info", b.fns[0].Name)
	}
}
