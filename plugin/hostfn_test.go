package plugin

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	extism "github.com/extism/go-sdk"
)

func namedFactory(name string) HostFunctionFactory {
	return func(pluginID string) extism.HostFunction {
		return extism.NewHostFunctionWithStack(
			name,
			func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {},
			nil,
			nil,
		)
	}
}

func TestHostFunctionRegistry_ResolveOrder(t *testing.T) {
	reg := NewHostFunctionRegistry(nil)
	reg.Register("logger", namedFactory("log_info"))
	reg.Register("kv", namedFactory("store_set"))
	reg.Register("kv", namedFactory("store_get"))

	fns := reg.Resolve("test-plugin", []string{"kv", "logger"})
	if len(fns) != 3 {
		t.Fatalf("len(Resolve()) = %d, want 3", len(fns))
	}

	// Permission order first, then registration order within a permission.
	want := []string{"store_set", "store_get", "log_info"}
	for i, fn := range fns {
		if fn.Name != want[i] {
			t.Errorf("fns[%d].Name = %q, want %q", i, fn.Name, want[i])
		}
	}
}

func TestHostFunctionRegistry_UnknownPermission(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	reg := NewHostFunctionRegistry(log)
	reg.Register("logger", namedFactory("log_info"))

	fns := reg.Resolve("test-plugin", []string{"logger", "telepathy"})
	if len(fns) != 1 {
		t.Fatalf("len(Resolve()) = %d, want 1", len(fns))
	}
	if !bytes.Contains(buf.Bytes(), []byte("telepathy")) {
		t.Errorf("expected warning naming the unknown permission, got %q", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("test-plugin")) {
		t.Errorf("expected warning naming the plugin, got %q", buf.String())
	}
}

func TestHostFunctionRegistry_EmptyPermissions(t *testing.T) {
	reg := NewHostFunctionRegistry(nil)
	reg.Register("logger", namedFactory("log_info"))

	if fns := reg.Resolve("test-plugin", nil); len(fns) != 0 {
		t.Errorf("Resolve(nil) returned %d functions, want 0", len(fns))
	}
}

func TestHostFunctionRegistry_FactoryReceivesPluginID(t *testing.T) {
	reg := NewHostFunctionRegistry(nil)

	var got string
	reg.Register("logger", func(pluginID string) extism.HostFunction {
		got = pluginID
		return extism.NewHostFunctionWithStack("log_info", nil, nil, nil)
	})

	reg.Resolve("scoreboard", []string{"logger"})
	if got != "scoreboard" {
		t.Errorf("factory pluginID = %q, want %q", got, "scoreboard")
	}
}

func TestHostFunctionRegistry_Permissions(t *testing.T) {
	reg := NewHostFunctionRegistry(nil)
	reg.Register("logger", namedFactory("log_info"))
	reg.Register("kv", namedFactory("store_get"))

	perms := reg.Permissions()
	if len(perms) != 2 {
		t.Fatalf("len(Permissions()) = %d, want 2", len(perms))
	}
	seen := map[string]bool{}
	for _, p := range perms {
		seen[p] = true
	}
	if !seen["logger"] || !seen["kv"] {
		t.Errorf("Permissions() = %v, want logger and kv", perms)
	}
}
