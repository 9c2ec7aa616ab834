// Package hostfuncs implements the host functions exposed to guest plugins,
// one constructor per capability. Each constructor returns a factory the
// host-function registry registers under a named permission; the factory
// binds the produced function to the calling plugin's id so every guest
// action is attributed.
package hostfuncs

import (
	"context"
	"log/slog"

	extism "github.com/extism/go-sdk"

	"github.com/openjudge-dev/openjudge/plugin"
)

// PermissionLogger gates the logging capability.
const PermissionLogger = "logger"

// Logger returns the factory for the "log_info" host function: the guest
// passes a single string message, the host logs it with plugin attribution.
func Logger(log *slog.Logger) plugin.HostFunctionFactory {
	if log == nil {
		log = slog.Default()
	}
	return func(pluginID string) extism.HostFunction {
		pluginLog := log.With("plugin", pluginID)
		return extism.NewHostFunctionWithStack(
			"log_info",
			func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
				msg, err := p.ReadString(stack[0])
				if err != nil {
					pluginLog.Error("log_info: failed to read message", "error", err)
					return
				}
				pluginLog.Info(msg)
			},
			[]extism.ValueType{extism.ValueTypeI64}, // msg_offset
			[]extism.ValueType{},                    // void
		)
	}
}
