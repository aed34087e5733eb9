package device

import (
	"context"
	"encoding/json"
	"fmt"
)

// panelModePath builds the mode-set endpoint for an area.
func panelModePath(area, mode string) string {
	return PanelPath + "/mode/" + area + "/" + mode
}

// Alarm wraps the synthesized panel device with arming operations.
// It shares the underlying Device, so state observed through either view
// is the same.
type Alarm struct {
	*Device
	area string
	reg  *Registry
}

// Area returns the panel area this alarm controls.
func (a *Alarm) Area() string {
	return a.area
}

// SetMode arms or disarms the panel.
//
// The mode is normalised (case-insensitive, surrounding whitespace
// ignored) and validated before any network call is made; an unknown mode
// fails fast with ErrInvalidMode and no wasted round-trip. The response
// must echo both the requested area and mode; mismatches fail with
// distinct errors so callers can tell a wrong-panel bug from a wrong-mode
// bug.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mode: One of standby, home, away (any casing)
//
// Returns:
//   - string: The confirmed canonical mode
//   - error: ErrInvalidMode, ErrAreaMismatch, ErrModeMismatch, or the
//     transport error
func (a *Alarm) SetMode(ctx context.Context, mode string) (string, error) {
	mode = NormalizeMode(mode)
	if !ValidMode(mode) {
		return "", fmt.Errorf("%w: %q (valid: %v)", ErrInvalidMode, mode, AllModes())
	}

	respBody, err := a.reg.rt.Request(ctx, "put", panelModePath(a.area, mode), nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		Area any    `json:"area"`
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decoding mode response: %w", err)
	}

	if echoed := stringValue(resp.Area); echoed != a.area {
		return "", fmt.Errorf("%w: requested area %s, got %s", ErrAreaMismatch, a.area, echoed)
	}
	if NormalizeMode(resp.Mode) != mode {
		return "", fmt.Errorf("%w: requested %s, got %s", ErrModeMismatch, mode, resp.Mode)
	}

	a.ForceMode(mode)

	a.reg.logger.Info("alarm mode set", "id", a.ID(), "mode", mode)
	return mode, nil
}

// SetHome arms the panel to home mode.
func (a *Alarm) SetHome(ctx context.Context) (string, error) {
	return a.SetMode(ctx, ModeHome)
}

// SetAway arms the panel to away mode.
func (a *Alarm) SetAway(ctx context.Context) (string, error) {
	return a.SetMode(ctx, ModeAway)
}

// SetStandby disarms the panel.
func (a *Alarm) SetStandby(ctx context.Context) (string, error) {
	return a.SetMode(ctx, ModeStandby)
}

// SwitchOn arms the panel to the registry's configured default mode.
func (a *Alarm) SwitchOn(ctx context.Context) (string, error) {
	return a.SetMode(ctx, a.reg.DefaultMode())
}

// SwitchOff disarms the panel.
func (a *Alarm) SwitchOff(ctx context.Context) (string, error) {
	return a.SetStandby(ctx)
}

// Mode returns the cached alarm mode for this area, lower-cased.
func (a *Alarm) Mode() string {
	modes, ok := a.GetValue(keyMode).(map[string]any)
	if !ok {
		return ""
	}
	mode, _ := modes[a.ID()].(string)
	return NormalizeMode(mode)
}

// IsOn reports whether the panel is armed (home or away).
func (a *Alarm) IsOn() bool {
	mode := a.Mode()
	return mode == ModeHome || mode == ModeAway
}

// IsStandby reports whether the panel is disarmed.
func (a *Alarm) IsStandby() bool {
	return a.Mode() == ModeStandby
}

// IsHome reports whether the panel is armed to home.
func (a *Alarm) IsHome() bool {
	return a.Mode() == ModeHome
}

// IsAway reports whether the panel is armed to away.
func (a *Alarm) IsAway() bool {
	return a.Mode() == ModeAway
}

// ForceMode overwrites the cached mode for this area without a server
// round-trip. The event path uses this after a mode-change push: a refresh
// issued immediately after the push can race the server's own state
// propagation and return the old mode.
func (a *Alarm) ForceMode(mode string) {
	a.Device.mu.Lock()
	defer a.Device.mu.Unlock()

	modes, ok := a.Device.state[keyMode].(map[string]any)
	if !ok {
		modes = make(map[string]any, 1)
		a.Device.state[keyMode] = modes
	}
	modes[a.Device.id] = mode
}
