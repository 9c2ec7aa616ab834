// Package httpapi exposes the plugin runtime over HTTP: plugin listing,
// function invocation, request forwarding to plugin-defined handlers, static
// asset serving, health, and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/openjudge-dev/openjudge/asset"
	"github.com/openjudge-dev/openjudge/observability"
	"github.com/openjudge-dev/openjudge/plugin"
)

// maxCallBody caps the JSON payload accepted for a plugin invocation.
const maxCallBody = 1 << 20

// Server serves the plugin runtime's HTTP surface.
type Server struct {
	manager plugin.Manager
	log     *slog.Logger
	httpSrv *http.Server
}

// New creates a server around the given manager. If log is nil,
// slog.Default() is used.
func New(addr string, manager plugin.Manager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{manager: manager, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /plugins", s.handleList)
	mux.HandleFunc("POST /plugins/{plugin}/call/{function}", s.handleCall)
	mux.HandleFunc("/plugins/{plugin}/http/{path...}", s.handleForward)
	mux.HandleFunc("GET /plugins/{plugin}/assets/{path...}", s.handleAsset)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.ListPlugins())
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	pluginID := r.PathValue("plugin")
	funcName := r.PathValue("function")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) == 0 {
		body = []byte("null")
	}
	if !json.Valid(body) {
		observability.RecordPluginCall(pluginID, funcName, "bad_request")
		writeError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}

	output, err := s.manager.CallRaw(r.Context(), pluginID, funcName, body)
	if err != nil {
		status, class := classifyPluginError(err)
		observability.RecordPluginCall(pluginID, funcName, class)
		s.log.Warn("plugin call failed",
			"plugin", pluginID, "function", funcName, "class", class, "error", err)
		writeError(w, status, classMessage(class))
		return
	}

	observability.RecordPluginCall(pluginID, funcName, "ok")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if len(output) == 0 {
		_, _ = w.Write([]byte("null"))
		return
	}
	_, _ = w.Write(output)
}

// guestHTTPHandler is the exported function a plugin must provide to receive
// forwarded HTTP traffic.
const guestHTTPHandler = "handle_request"

// handleForward proxies an HTTP request to the plugin's own handler: the
// request is packed into an envelope, handed to the guest through the typed
// call layer, and the guest's envelope answer shapes the response. The
// guest, not the host, decides status and headers.
func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	pluginID := r.PathValue("plugin")
	subPath := "/" + r.PathValue("path")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}
	headers := make(map[string]string)
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	envelope := plugin.HTTPRequest{
		Method:  r.Method,
		Path:    subPath,
		Query:   query,
		Headers: headers,
	}
	if json.Valid(body) {
		envelope.Body = body
	}

	response, err := plugin.Call[plugin.HTTPRequest, plugin.HTTPResponse](
		r.Context(), s.manager, pluginID, guestHTTPHandler, envelope)
	if err != nil {
		status, class := classifyPluginError(err)
		observability.RecordPluginCall(pluginID, guestHTTPHandler, class)
		s.log.Warn("forwarded request failed",
			"plugin", pluginID, "path", subPath, "class", class, "error", err)
		writeError(w, status, classMessage(class))
		return
	}

	observability.RecordPluginCall(pluginID, guestHTTPHandler, "ok")
	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	if response.Status == 0 {
		response.Status = http.StatusOK
	}
	w.WriteHeader(response.Status)
	if len(response.Body) == 0 {
		_, _ = w.Write([]byte("null"))
		return
	}
	_, _ = w.Write(response.Body)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	pluginID := r.PathValue("plugin")
	requested := r.PathValue("path")

	resolved, err := s.manager.ResolveWebAsset(pluginID, requested)
	if err != nil {
		status, class := classifyAssetError(err)
		observability.RecordAssetRequest(pluginID, class)
		writeError(w, status, classMessage(class))
		return
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		observability.RecordAssetRequest(pluginID, "io_error")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(resolved))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	observability.RecordAssetRequest(pluginID, "ok")
	_, _ = w.Write(content)
}

// classifyPluginError maps a runtime error to an HTTP status and a metric
// class, keeping internal detail out of responses to untrusted clients.
func classifyPluginError(err error) (int, string) {
	switch {
	case errors.Is(err, plugin.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, plugin.ErrNotLoaded), errors.Is(err, plugin.ErrNoRuntime):
		return http.StatusNotFound, "not_loaded"
	case errors.Is(err, plugin.ErrSerialization):
		return http.StatusBadRequest, "serialization"
	case errors.Is(err, plugin.ErrExecutionFailed):
		return http.StatusInternalServerError, "execution_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func classifyAssetError(err error) (int, string) {
	switch {
	case errors.Is(err, asset.ErrNoWebConfig):
		return http.StatusNotFound, "no_web_config"
	case errors.Is(err, asset.ErrPathTraversal):
		return http.StatusForbidden, "path_traversal"
	case errors.Is(err, asset.ErrNotFound), errors.Is(err, plugin.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func classMessage(class string) string {
	switch class {
	case "not_found", "no_web_config":
		return "not found"
	case "not_loaded":
		return "plugin not loaded"
	case "path_traversal":
		return "forbidden"
	case "serialization":
		return "invalid payload"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
