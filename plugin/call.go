package plugin

import (
	"context"
	"encoding/json"
	"fmt"
)

// Call is the typed convenience layer over Manager.CallRaw. It serializes
// input to JSON, invokes the guest function, and deserializes the response —
// the same self-describing encoding is used on both sides of the host/guest
// boundary.
//
// Encoding failures are reported as ErrSerialization, distinct from the
// plugin's own execution failures. Call requires no state beyond the Manager,
// so every embedding gets the typed layer without duplicating serialization
// logic per call site.
func Call[In any, Out any](ctx context.Context, m Manager, pluginID, funcName string, input In) (Out, error) {
	var out Out

	data, err := json.Marshal(input)
	if err != nil {
		return out, fmt.Errorf("%w: encoding input for %q: %v", ErrSerialization, funcName, err)
	}

	result, err := m.CallRaw(ctx, pluginID, funcName, data)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(result, &out); err != nil {
		return out, fmt.Errorf("%w: decoding output of %q: %v", ErrSerialization, funcName, err)
	}
	return out, nil
}
