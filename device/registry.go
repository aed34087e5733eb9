package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// REST endpoint paths owned by the device layer.
const (
	// DevicesPath lists every device on the account.
	DevicesPath = "/api/v1/devices"

	// devicePathTemplate fetches one device; $DEVID$ is substituted.
	devicePathTemplate = "/api/v1/devices/$DEVID$"

	// PanelPath fetches the hub/gateway summary the alarm device is
	// synthesized from.
	PanelPath = "/api/v1/panel"
)

// AlarmDeviceIDPrefix prefixes the reserved identifier assigned to the
// synthesized alarm device, e.g. "area_1".
const AlarmDeviceIDPrefix = "area_"

// AlarmName is the display name given to the synthesized alarm device.
const AlarmName = "Hearth Alarm"

// Requester is the authenticated transport the registry fetches from.
// *session.Session satisfies it.
type Requester interface {
	Request(ctx context.Context, method, path string, body any) ([]byte, error)
}

// Logger is the minimal logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the canonical in-memory store of device state.
//
// Devices are created when first observed in a listing (or synthesized from
// the panel endpoint) and live until the registry is dropped at logout;
// they are never individually deleted mid-session. Refreshes merge into the
// existing Device in place, so references held by callbacks stay valid.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The map is guarded by a
//     read-write mutex; the caller's synchronous calls and the event-stream
//     goroutine both reach it.
type Registry struct {
	rt     Requester
	logger Logger

	mu      sync.RWMutex
	devices map[string]*Device

	defaultMu   sync.RWMutex
	defaultMode string
}

// NewRegistry creates a device registry over the given transport.
func NewRegistry(rt Requester) *Registry {
	return &Registry{
		rt:          rt,
		logger:      noopLogger{},
		devices:     make(map[string]*Device),
		defaultMode: ModeAway,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// UpsertListing merges a devices-listing response into the registry.
//
// For each raw record: if a Device with that id already exists, new fields
// are merged into its state blob in place (preserving identity); otherwise
// a new Device is constructed and inserted. Records without an id are
// logged and skipped. This is what makes a full refresh safe to run from
// the event path without invalidating references callbacks are holding.
func (r *Registry) UpsertListing(raws []map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, raw := range raws {
		id, _ := raw[keyID].(string)
		if id == "" {
			r.logger.Warn("skipping device record with no id")
			continue
		}

		if existing, ok := r.devices[id]; ok {
			existing.Update(raw)
			continue
		}

		dev, err := New(raw)
		if err != nil {
			r.logger.Warn("skipping unmappable device record", "id", id, "error", err)
			continue
		}
		r.devices[id] = dev
		r.logger.Debug("device added", "id", id, "type", dev.GenericType())
	}
}

// SynthesizeAlarm creates or updates the alarm device from a panel
// response. The panel is modeled as an armable device with the reserved
// identifier "area_<n>".
func (r *Registry) SynthesizeAlarm(panel map[string]any, area string) *Device {
	if area == "" {
		area = "1"
	}
	id := AlarmDeviceIDPrefix + area

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.devices[id]; ok {
		existing.Update(panel)
		return existing
	}

	blob := make(map[string]any, len(panel)+5)
	for k, v := range panel {
		blob[k] = v
	}
	blob[keyID] = id
	blob[keyName] = AlarmName
	blob[keyType] = "Alarm"
	blob[keyTypeTag] = "device_type.alarm"
	if mac, ok := panel["mac"].(string); ok {
		blob[keyUUID] = strings.ToLower(strings.ReplaceAll(mac, ":", ""))
	}

	dev, err := New(blob)
	if err != nil {
		// Unreachable: the id is set above.
		r.logger.Error("synthesizing alarm device", "error", err)
		return nil
	}
	r.devices[id] = dev
	r.logger.Debug("alarm device synthesized", "id", id)
	return dev
}

// Get returns the device with the given id, or nil when unknown.
func (r *Registry) Get(id string) *Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices[id]
}

// All returns every known device.
func (r *Registry) All() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	return devices
}

// ByGenericType returns the devices matching any of the given variants.
func (r *Registry) ByGenericType(types ...GenericType) []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []*Device
	for _, d := range r.devices {
		for _, t := range types {
			if d.GenericType() == t {
				devices = append(devices, d)
				break
			}
		}
	}
	return devices
}

// Count returns the number of known devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Refresh issues a targeted fetch for one device and merges the result via
// the in-place merge rule. The synthesized alarm device refreshes from the
// panel endpoint instead of the per-device one.
//
// Returns:
//   - *Device: The refreshed device (same identity as before the call)
//   - error: ErrDeviceNotFound for unknown ids, ErrRefreshEmpty when the
//     server returns no data, or the transport error
func (r *Registry) Refresh(ctx context.Context, id string) (*Device, error) {
	dev := r.Get(id)
	if dev == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	path := devicePathTemplate
	if strings.HasPrefix(id, AlarmDeviceIDPrefix) {
		path = PanelPath
	}
	path = strings.ReplaceAll(path, "$DEVID$", id)

	body, err := r.rt.Request(ctx, "get", path, nil)
	if err != nil {
		return nil, err
	}

	raws, err := decodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("decoding refresh response for %s: %w", id, err)
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRefreshEmpty, id)
	}

	for _, raw := range raws {
		dev.Update(raw)
	}

	r.logger.Debug("device refreshed", "id", id)
	return dev, nil
}

// Alarm returns the alarm wrapper for the given area ("" means area 1),
// or nil when the panel has not been fetched yet.
func (r *Registry) Alarm(area string) *Alarm {
	if area == "" {
		area = "1"
	}
	dev := r.Get(AlarmDeviceIDPrefix + area)
	if dev == nil {
		return nil
	}
	return &Alarm{Device: dev, area: area, reg: r}
}

// SetDefaultMode sets the mode used when the alarm is switched "on".
// Only home and away are sensible arming defaults.
func (r *Registry) SetDefaultMode(mode string) error {
	mode = NormalizeMode(mode)
	if mode != ModeHome && mode != ModeAway {
		return fmt.Errorf("%w: %q", ErrInvalidDefaultMode, mode)
	}

	r.defaultMu.Lock()
	r.defaultMode = mode
	r.defaultMu.Unlock()
	return nil
}

// DefaultMode returns the mode used when the alarm is switched "on".
func (r *Registry) DefaultMode() string {
	r.defaultMu.RLock()
	defer r.defaultMu.RUnlock()
	return r.defaultMode
}

// decodeRecords parses a server response that may be a single JSON object
// or an array of objects into a uniform slice.
func decodeRecords(body []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var raws []map[string]any
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, err
		}
		return raws, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return []map[string]any{raw}, nil
}
