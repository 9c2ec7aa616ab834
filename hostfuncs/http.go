package hostfuncs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	extism "github.com/extism/go-sdk"

	"github.com/openjudge-dev/openjudge/plugin"
)

// PermissionHTTP gates the outbound HTTP capability.
const PermissionHTTP = "http"

// maxHTTPResponseBytes caps the response body a guest can pull through the
// host, keeping one plugin from exhausting host memory.
const maxHTTPResponseBytes = 4 << 20

// httpResult is the JSON shape written back into guest memory.
type httpResult struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body"` // base64
}

// HTTPRequest returns the factory for the "http_request" host function. The
// guest passes method, URL, an optional JSON array of "Name: value" header
// strings, and an optional body; the host performs the request and writes a
// JSON result with a base64 body back into guest memory. Errors yield a zero
// offset.
func HTTPRequest(log *slog.Logger) plugin.HostFunctionFactory {
	if log == nil {
		log = slog.Default()
	}
	client := &http.Client{Timeout: 10 * time.Second}

	return func(pluginID string) extism.HostFunction {
		pluginLog := log.With("plugin", pluginID)
		return extism.NewHostFunctionWithStack(
			"http_request",
			func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
				method, err := p.ReadString(stack[0])
				if err != nil {
					stack[0] = 0
					pluginLog.Error("http_request: failed to read method", "error", err)
					return
				}
				url, err := p.ReadString(stack[1])
				if err != nil {
					stack[0] = 0
					pluginLog.Error("http_request: failed to read url", "error", err)
					return
				}

				var headers []string
				if stack[2] != 0 {
					headersStr, err := p.ReadString(stack[2])
					if err != nil {
						stack[0] = 0
						pluginLog.Error("http_request: failed to read headers", "error", err)
						return
					}
					if headersStr != "" {
						if err := json.Unmarshal([]byte(headersStr), &headers); err != nil {
							stack[0] = 0
							pluginLog.Error("http_request: invalid headers JSON", "error", err)
							return
						}
					}
				}

				var body []byte
				if stack[3] != 0 {
					body, err = p.ReadBytes(stack[3])
					if err != nil {
						stack[0] = 0
						pluginLog.Error("http_request: failed to read body", "error", err)
						return
					}
				}

				req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
				if err != nil {
					stack[0] = 0
					pluginLog.Error("http_request: failed to create request", "error", err)
					return
				}
				for _, header := range headers {
					if idx := strings.Index(header, ":"); idx > 0 {
						req.Header.Add(strings.TrimSpace(header[:idx]), strings.TrimSpace(header[idx+1:]))
					}
				}

				resp, err := client.Do(req)
				if err != nil {
					stack[0] = 0
					pluginLog.Error("http_request: request failed", "method", method, "url", url, "error", err)
					return
				}
				defer resp.Body.Close()

				respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseBytes))
				if err != nil {
					stack[0] = 0
					pluginLog.Error("http_request: failed to read response body", "error", err)
					return
				}

				result, err := json.Marshal(httpResult{
					Status:  resp.StatusCode,
					Headers: resp.Header,
					Body:    base64.StdEncoding.EncodeToString(respBody),
				})
				if err != nil {
					stack[0] = 0
					pluginLog.Error("http_request: failed to encode result", "error", err)
					return
				}

				offset, err := p.WriteBytes(result)
				if err != nil {
					stack[0] = 0
					pluginLog.Error("http_request: failed to write result to plugin memory", "error", err)
					return
				}
				stack[0] = offset
				pluginLog.Debug("http_request completed",
					"method", method, "url", url, "status", resp.StatusCode, "body_len", len(respBody))
			},
			[]extism.ValueType{extism.ValueTypeI64, extism.ValueTypeI64, extism.ValueTypeI64, extism.ValueTypeI64}, // method, url, headers, body offsets
			[]extism.ValueType{extism.ValueTypeI64}, // result offset
		)
	}
}
