package hostfuncs

import (
	"context"
	"encoding/json"
	"log/slog"

	extism "github.com/extism/go-sdk"

	"github.com/openjudge-dev/openjudge/plugin"
	"github.com/openjudge-dev/openjudge/storage"
)

// PermissionKV gates the key-value storage capability. Both store functions
// are registered under it.
const PermissionKV = "kv"

// StoreSet returns the factory for "store_set": upserts a JSON value under
// (collection, key), scoped to the calling plugin's own namespace.
func StoreSet(store *storage.Store, log *slog.Logger) plugin.HostFunctionFactory {
	if log == nil {
		log = slog.Default()
	}
	return func(pluginID string) extism.HostFunction {
		pluginLog := log.With("plugin", pluginID)
		return extism.NewHostFunctionWithStack(
			"store_set",
			func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
				collection, err := p.ReadString(stack[0])
				if err != nil {
					pluginLog.Error("store_set: failed to read collection", "error", err)
					return
				}
				key, err := p.ReadString(stack[1])
				if err != nil {
					pluginLog.Error("store_set: failed to read key", "error", err)
					return
				}
				value, err := p.ReadString(stack[2])
				if err != nil {
					pluginLog.Error("store_set: failed to read value", "error", err)
					return
				}

				// The stored document must be JSON so store_get can hand it
				// back to any guest unmodified.
				if !json.Valid([]byte(value)) {
					pluginLog.Error("store_set: value is not valid JSON",
						"collection", collection, "key", key)
					return
				}

				if err := store.Set(ctx, pluginID, collection, key, value); err != nil {
					pluginLog.Error("store_set: database error", "error", err)
				}
			},
			[]extism.ValueType{extism.ValueTypeI64, extism.ValueTypeI64, extism.ValueTypeI64}, // collection, key, value offsets
			[]extism.ValueType{}, // void
		)
	}
}

// StoreGet returns the factory for "store_get": retrieves the JSON value
// under (collection, key) in the calling plugin's namespace. A missing value
// yields the JSON literal null.
func StoreGet(store *storage.Store, log *slog.Logger) plugin.HostFunctionFactory {
	if log == nil {
		log = slog.Default()
	}
	return func(pluginID string) extism.HostFunction {
		pluginLog := log.With("plugin", pluginID)
		return extism.NewHostFunctionWithStack(
			"store_get",
			func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
				collection, err := p.ReadString(stack[0])
				if err != nil {
					stack[0] = 0
					pluginLog.Error("store_get: failed to read collection", "error", err)
					return
				}
				key, err := p.ReadString(stack[1])
				if err != nil {
					stack[0] = 0
					pluginLog.Error("store_get: failed to read key", "error", err)
					return
				}

				value, found, err := store.Get(ctx, pluginID, collection, key)
				if err != nil {
					stack[0] = 0
					pluginLog.Error("store_get: database error", "error", err)
					return
				}
				if !found {
					value = "null"
				}

				offset, err := p.WriteString(value)
				if err != nil {
					stack[0] = 0
					pluginLog.Error("store_get: failed to write value to plugin memory", "error", err)
					return
				}
				stack[0] = offset
			},
			[]extism.ValueType{extism.ValueTypeI64, extism.ValueTypeI64}, // collection, key offsets
			[]extism.ValueType{extism.ValueTypeI64},                      // value offset
		)
	}
}
