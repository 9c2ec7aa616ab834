package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjudge-dev/openjudge/config"
	"github.com/openjudge-dev/openjudge/hostfuncs"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Plugin.Dir = filepath.Join(base, "plugins")
	cfg.Storage.Path = filepath.Join(base, "openjudge.db")
	cfg.Server.Address = "127.0.0.1:0"
	return cfg
}

func writePlugin(t *testing.T, pluginsDir, id, manifest string) {
	t.Helper()
	dir := filepath.Join(pluginsDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.wasm"), []byte("not wasm"), 0o644))
}

func TestNew_RegistersCapabilities(t *testing.T) {
	srv, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer srv.store.Close()

	perms := srv.host.HostFunctions().Permissions()
	assert.ElementsMatch(t, []string{
		hostfuncs.PermissionLogger,
		hostfuncs.PermissionKV,
		hostfuncs.PermissionHTTP,
	}, perms)
	assert.Equal(t, "server", srv.host.Environment())
}

func TestLoadPlugins_FailuresAreIsolated(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, nil)
	require.NoError(t, err)
	defer srv.store.Close()

	// One plugin with an unloadable artifact, one with no server section,
	// one hollow. None may abort startup.
	writePlugin(t, cfg.Plugin.Dir, "badwasm", "name: badwasm\nversion: 1.0.0\nserver:\n  entry: plugin.wasm\n")
	writePlugin(t, cfg.Plugin.Dir, "webonly", "name: webonly\nversion: 1.0.0\nweb:\n  root: dist\n  entry: index.html\n")
	writePlugin(t, cfg.Plugin.Dir, "hollow", "name: hollow\nversion: 1.0.0\n")

	require.NoError(t, srv.loadPlugins(context.Background()))

	for _, id := range []string{"badwasm", "webonly", "hollow"} {
		assert.True(t, srv.host.HasPlugin(id), "%s should be discovered", id)
		assert.False(t, srv.host.IsLoaded(id), "%s should not be loaded", id)
	}
}

func TestLoadPlugins_EmptyDirectory(t *testing.T) {
	srv, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer srv.store.Close()

	require.NoError(t, srv.loadPlugins(context.Background()))
	assert.Empty(t, srv.host.ListPlugins())
}
