package device

import (
	"fmt"
	"strings"
	"sync"
)

// GenericType classifies a device into one of a fixed set of variants.
// The wire-level type_tag is mapped onto these; tags the library has never
// seen map to TypeUnknown rather than being rejected, so new hardware
// still shows up as a controllable generic device.
type GenericType string

// Generic device types.
const (
	TypeAlarm         GenericType = "alarm"
	TypeCamera        GenericType = "camera"
	TypeConnectivity  GenericType = "connectivity"
	TypeCover         GenericType = "cover"
	TypeLight         GenericType = "light"
	TypeLock          GenericType = "lock"
	TypeMoisture      GenericType = "moisture"
	TypeMotion        GenericType = "motion"
	TypeOccupancy     GenericType = "occupancy"
	TypeOpening       GenericType = "door"
	TypeSensor        GenericType = "sensor"
	TypeSwitch        GenericType = "switch"
	TypeValve         GenericType = "valve"
	TypeUnknownSensor GenericType = "unknown_sensor"
	TypeUnknown       GenericType = "unknown"
)

// Alarm mode values accepted by the panel.
const (
	ModeStandby = "standby"
	ModeHome    = "home"
	ModeAway    = "away"
)

// AllModes returns the valid alarm modes.
func AllModes() []string {
	return []string{ModeStandby, ModeHome, ModeAway}
}

// ValidMode reports whether mode (already normalised) is a known alarm mode.
func ValidMode(mode string) bool {
	switch mode {
	case ModeStandby, ModeHome, ModeAway:
		return true
	}
	return false
}

// NormalizeMode lower-cases and trims an alarm mode for comparison against
// the canonical values.
func NormalizeMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}

// Device status values seen in state blobs.
const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"
	StatusOn      = "On"
	StatusOff     = "Off"
	StatusOpen    = "Open"
	StatusClosed  = "Closed"
)

// Well-known state blob keys.
const (
	keyID         = "id"
	keyUUID       = "uuid"
	keyName       = "name"
	keyType       = "type"
	keyTypeTag    = "type_tag"
	keyControlURL = "control_url"
	keyStatus     = "status"
	keyStatuses   = "statuses"
	keyVersion    = "version"
	keyMode       = "mode"
)

// typeTagTable maps the wire-level type_tag discriminator to a generic type.
// Unlisted tags fall through to TypeUnknown.
var typeTagTable = map[string]GenericType{
	"device_type.alarm": TypeAlarm,

	// Connectivity-style binary sensors.
	"device_type.glass":             TypeConnectivity,
	"device_type.keypad":            TypeConnectivity,
	"device_type.remote_controller": TypeConnectivity,
	"device_type.siren":             TypeConnectivity,
	"device_type.bx":                TypeConnectivity,

	"device_type.door_contact": TypeOpening,

	"device_type.ir_camera":   TypeCamera,
	"device_type.ir_camcoder": TypeCamera,
	"device_type.ipcam":       TypeCamera,
	"device_type.out_view":    TypeCamera,

	"device_type.secure_barrier": TypeCover,

	"device_type.dimmer":       TypeLight,
	"device_type.dimmer_meter": TypeLight,
	"device_type.hue":          TypeLight,

	"device_type.door_lock": TypeLock,

	"device_type.water_sensor": TypeMoisture,

	"device_type.switch":              TypeSwitch,
	"device_type.night_switch":        TypeSwitch,
	"device_type.power_switch_sensor": TypeSwitch,
	"device_type.power_switch_meter":  TypeSwitch,

	"device_type.valve": TypeValve,

	// Ambiguous multi-sensors; narrowed by classifySensor.
	"device_type.room_sensor":        TypeUnknownSensor,
	"device_type.temperature_sensor": TypeUnknownSensor,
	"device_type.lm":                 TypeUnknownSensor,
	"device_type.pir":                TypeUnknownSensor,
	"device_type.povs":               TypeUnknownSensor,
}

// sensorStatusKeys are the readings whose presence marks a record as an
// ambient sensor rather than a motion/occupancy detector.
var sensorStatusKeys = []string{"temperature", "lux", "humidity"}

// Device represents one physical or virtual entity exposed by the cloud:
// a sensor, lock, switch, camera, or the alarm panel itself.
//
// The state blob holds the last-known server state. It is merged in place
// on refresh so that any previously obtained *Device stays valid after an
// update; callbacks hold device references across updates and rely on this.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The blob is guarded by a
//     read-write mutex because the caller's refresh calls and the event
//     stream goroutine both mutate it.
type Device struct {
	id      string
	typeTag string
	generic GenericType

	mu    sync.RWMutex
	state map[string]any
}

// New constructs a Device from a raw server record.
//
// The type_tag discriminator selects the generic variant via a closed
// table; unrecognised or missing tags produce a generic TypeUnknown device.
//
// Returns:
//   - *Device: Constructed device
//   - error: ErrNoDeviceID when the record carries no id
func New(raw map[string]any) (*Device, error) {
	id, _ := raw[keyID].(string)
	if id == "" {
		return nil, ErrNoDeviceID
	}

	typeTag, _ := raw[keyTypeTag].(string)
	typeTag = strings.ToLower(typeTag)

	generic, ok := typeTagTable[typeTag]
	if !ok {
		generic = TypeUnknown
	}
	if generic == TypeUnknownSensor {
		generic = classifySensor(raw)
	}

	return &Device{
		id:      id,
		typeTag: typeTag,
		generic: generic,
		state:   raw,
	}, nil
}

// classifySensor narrows an ambiguous sensor record to sensor, occupancy
// or motion based on its readings and firmware version string.
func classifySensor(raw map[string]any) GenericType {
	if statuses, ok := raw[keyStatuses].(map[string]any); ok {
		for _, key := range sensorStatusKeys {
			if _, present := statuses[key]; present {
				return TypeSensor
			}
		}
	}

	if version, ok := raw[keyVersion].(string); ok {
		if strings.HasPrefix(strings.ToLower(version), "minipir") {
			return TypeOccupancy
		}
	}
	return TypeMotion
}

// ID returns the stable device identifier. It never changes after creation.
func (d *Device) ID() string {
	return d.id
}

// TypeTag returns the wire-level type discriminator.
func (d *Device) TypeTag() string {
	return d.typeTag
}

// GenericType returns the variant this device was classified as.
func (d *Device) GenericType() GenericType {
	return d.generic
}

// Name returns the display name, falling back to "<type> <id>" when the
// server record has none.
func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if name, ok := d.state[keyName].(string); ok && name != "" {
		return name
	}
	devType, _ := d.state[keyType].(string)
	return strings.TrimSpace(devType + " " + d.id)
}

// Type returns the human-readable device type from the state blob.
func (d *Device) Type() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, _ := d.state[keyType].(string)
	return t
}

// UUID returns the hardware UUID from the state blob, if any.
func (d *Device) UUID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, _ := d.state[keyUUID].(string)
	return u
}

// ControlURL returns the relative control endpoint for this device, or ""
// for read-only devices.
func (d *Device) ControlURL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, _ := d.state[keyControlURL].(string)
	return u
}

// GetValue returns a value from the state blob by (lower-cased) key.
// This is the common data and the best place to read state from; it is
// kept current by the push channel.
func (d *Device) GetValue(name string) any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state[strings.ToLower(name)]
}

// Status returns the generic status field as a string.
func (d *Device) Status() string {
	if v := d.GetValue(keyStatus); v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// BatteryLow reports the battery warning flag from the state blob.
func (d *Device) BatteryLow() bool {
	return truthyInt(d.GetValue("faults"), "low_battery")
}

// NoResponse reports the supervision fault flag from the state blob.
func (d *Device) NoResponse() bool {
	return truthyInt(d.GetValue("faults"), "no_response")
}

// truthyInt digs an integer-ish flag out of a nested fault map.
func truthyInt(v any, key string) bool {
	faults, ok := v.(map[string]any)
	if !ok {
		return false
	}
	switch n := faults[key].(type) {
	case float64:
		return n == 1
	case int:
		return n == 1
	case string:
		return n == "1"
	}
	return false
}

// Update merges new server data into the state blob in place.
//
// Only keys already present in the blob are overwritten; fields absent from
// the original snapshot are never introduced later. This mirrors the
// server's partial-response shapes and keeps transient partial payloads
// from corrupting fully populated state.
func (d *Device) Update(raw map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, v := range raw {
		if _, present := d.state[k]; present {
			d.state[k] = v
		}
	}
}

// StateSnapshot returns a shallow copy of the state blob for read-only
// consumers (bridges, telemetry). Mutating the copy does not affect the
// device.
func (d *Device) StateSnapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cpy := make(map[string]any, len(d.state))
	for k, v := range d.state {
		cpy[k] = v
	}
	return cpy
}

// setField overwrites a single blob field with a confirmed value.
// Used by the command path after the server echo checks pass.
func (d *Device) setField(field string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state[field] = value
}
