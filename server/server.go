// Package server wires the plugin runtime into the contest server
// embedding: host capabilities, plugin discovery and loading, lifecycle
// hooks, and the HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openjudge-dev/openjudge/config"
	"github.com/openjudge-dev/openjudge/hook"
	"github.com/openjudge-dev/openjudge/hostfuncs"
	"github.com/openjudge-dev/openjudge/httpapi"
	"github.com/openjudge-dev/openjudge/plugin"
	"github.com/openjudge-dev/openjudge/storage"
)

// Lifecycle topics fired by the server embedding.
const (
	TopicServerStarted = "server_started"
	TopicPluginLoaded  = "plugin_loaded"
)

// Server is the server-environment embedding of the plugin runtime.
type Server struct {
	cfg        *config.Config
	log        *slog.Logger
	store      *storage.Store
	host       *plugin.Host
	dispatcher *hook.Dispatcher
	api        *httpapi.Server
}

// New builds the full server embedding: the backing store, the
// permission-gated host-function registry, the plugin host, the hook
// dispatcher, and the HTTP API.
func New(cfg *config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening plugin storage: %w", err)
	}

	hostFns := plugin.NewHostFunctionRegistry(log)
	hostFns.Register(hostfuncs.PermissionLogger, hostfuncs.Logger(log))
	hostFns.Register(hostfuncs.PermissionKV, hostfuncs.StoreSet(store, log))
	hostFns.Register(hostfuncs.PermissionKV, hostfuncs.StoreGet(store, log))
	hostFns.Register(hostfuncs.PermissionHTTP, hostfuncs.HTTPRequest(log))

	pluginCfg := plugin.Config{
		PluginsDir: cfg.Plugin.Dir,
		EnableWasi: cfg.Plugin.EnableWasi,
	}
	host := plugin.NewHost(pluginCfg, hostFns, plugin.ServerResolver{}, log)
	dispatcher := hook.NewDispatcher(log)
	api := httpapi.New(cfg.Server.Address, host, log)

	return &Server{
		cfg:        cfg,
		log:        log,
		store:      store,
		host:       host,
		dispatcher: dispatcher,
		api:        api,
	}, nil
}

// Host returns the plugin manager for this embedding.
func (s *Server) Host() *plugin.Host { return s.host }

// Dispatcher returns the lifecycle hook dispatcher.
func (s *Server) Dispatcher() *hook.Dispatcher { return s.dispatcher }

// Run discovers and loads every plugin with a server section, registers
// their declared event hooks, and serves the HTTP API until ctx is
// cancelled. Per-plugin load failures are isolated and do not abort startup.
func (s *Server) Run(ctx context.Context) error {
	defer s.store.Close()

	if err := s.loadPlugins(ctx); err != nil {
		return err
	}

	event, err := hook.NewEvent(TopicServerStarted, map[string]string{"address": s.cfg.Server.Address})
	if err == nil {
		s.dispatcher.Trigger(ctx, event)
	}

	return s.api.Run(ctx)
}

func (s *Server) loadPlugins(ctx context.Context) error {
	infos, err := s.host.DiscoverPlugins()
	if err != nil {
		return fmt.Errorf("discovering plugins: %w", err)
	}

	for _, info := range infos {
		if info.Status == plugin.StatusFailed {
			continue
		}
		section, err := s.host.ResolvedSection(info.ID)
		if err != nil {
			// Metadata-only for this environment: frontend bundles and
			// worker-only plugins stay discoverable but unloaded.
			continue
		}

		if err := s.host.LoadPlugin(ctx, info.ID); err != nil {
			s.log.Error("failed to load plugin", "plugin", info.ID, "error", err)
			continue
		}

		if len(section.Events) > 0 {
			s.dispatcher.AddHook(hook.NewPluginHook(s.host, info.ID, "on_event", section.Events))
			s.log.Info("registered plugin hook", "plugin", info.ID, "topics", section.Events)
		}

		if event, err := hook.NewEvent(TopicPluginLoaded, info); err == nil {
			s.dispatcher.Trigger(ctx, event)
		}
	}
	return nil
}
