package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SetField sends a control request setting one field on a device and
// validates the server's echoed confirmation before touching local state.
//
// Devices without a control endpoint are read-only; for those the call
// returns (false, nil) rather than an error. When a confirmation check
// fails the local blob is left untouched, so local state never diverges
// from confirmed server state.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - dev: Target device
//   - field: Field to set ("status", "level", ...)
//   - value: Desired value, sent and compared as a string
//
// Returns:
//   - bool: Whether a control request was applicable and confirmed
//   - error: ErrConfirmDeviceID / ErrConfirmValue on a bad echo, or the
//     transport error
func (r *Registry) SetField(ctx context.Context, dev *Device, field, value string) (bool, error) {
	controlURL := dev.ControlURL()
	if controlURL == "" {
		return false, nil
	}
	if !strings.HasPrefix(controlURL, "/") {
		controlURL = "/" + controlURL
	}

	body := map[string]string{field: value}
	respBody, err := r.rt.Request(ctx, "put", controlURL, body)
	if err != nil {
		return false, err
	}

	var resp map[string]any
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return false, fmt.Errorf("decoding control response for %s: %w", dev.ID(), err)
	}

	if echoed := stringValue(resp[keyID]); echoed != dev.ID() {
		return false, fmt.Errorf("%w: requested %s, got %s", ErrConfirmDeviceID, dev.ID(), echoed)
	}
	if echoed := stringValue(resp[field]); echoed != value {
		return false, fmt.Errorf("%w: requested %s=%s, got %s", ErrConfirmValue, field, value, echoed)
	}

	// Confirmed; reflect the new value locally so an immediate read
	// returns what the server just acknowledged.
	dev.setField(field, value)

	r.logger.Info("device field set", "id", dev.ID(), "field", field, "value", value)
	return true, nil
}

// SetStatus sets the generic status field on a device.
func (r *Registry) SetStatus(ctx context.Context, dev *Device, status string) (bool, error) {
	return r.SetField(ctx, dev, keyStatus, status)
}

// SetLevel sets the level field on a dimmable device.
func (r *Registry) SetLevel(ctx context.Context, dev *Device, level string) (bool, error) {
	return r.SetField(ctx, dev, "level", level)
}

// stringValue renders a confirmation field for comparison. The server is
// inconsistent about echoing strings vs numbers, so both are accepted.
func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; the wire values are integers.
		return fmt.Sprintf("%d", int64(val))
	default:
		return fmt.Sprint(val)
	}
}
