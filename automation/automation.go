package automation

import (
	"strconv"
	"sync"
)

// GenericType classifies an automation by how it runs.
type GenericType string

// Generic automation types.
const (
	// TypeQuickAction is a manually triggered automation.
	TypeQuickAction GenericType = "quick_action"

	// TypeAutomation runs on a schedule or trigger condition.
	TypeAutomation GenericType = "automation"
)

// typeManual is the wire-level type value marking a quick action.
const typeManual = "manual"

// Well-known record keys.
const (
	keyID       = "id"
	keyName     = "name"
	keyType     = "type"
	keySubType  = "sub_type"
	keyIsActive = "is_active"
)

// Automation represents one CUE automation or quick action.
//
// The record holds the last-known server state and is merged in place on
// refresh, the same identity rule the device registry follows.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Automation struct {
	id string

	mu     sync.RWMutex
	record map[string]any
}

// New constructs an Automation from a raw server record.
func New(raw map[string]any) (*Automation, error) {
	id := stringValue(raw[keyID])
	if id == "" {
		return nil, ErrNoAutomationID
	}
	return &Automation{id: id, record: raw}, nil
}

// ID returns the stable automation identifier.
func (a *Automation) ID() string {
	return a.id
}

// Name returns the display name.
func (a *Automation) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	name, _ := a.record[keyName].(string)
	return name
}

// Type returns the wire-level automation type ("manual", "location", ...).
func (a *Automation) Type() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, _ := a.record[keyType].(string)
	return t
}

// SubType returns the wire-level automation sub type.
func (a *Automation) SubType() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, _ := a.record[keySubType].(string)
	return st
}

// GenericType returns the variant this automation runs as.
func (a *Automation) GenericType() GenericType {
	if a.IsQuickAction() {
		return TypeQuickAction
	}
	return TypeAutomation
}

// IsQuickAction reports whether this automation is manually triggered.
func (a *Automation) IsQuickAction() bool {
	return a.Type() == typeManual
}

// IsActive reports whether the automation is enabled. The server encodes
// the flag as the strings "0"/"1".
func (a *Automation) IsActive() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return stringValue(a.record[keyIsActive]) == "1"
}

// GetValue returns a value from the record by key.
func (a *Automation) GetValue(name string) any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.record[name]
}

// Update merges new server data into the record in place. Only keys
// already present are overwritten; fields absent from the original
// snapshot are never introduced later.
func (a *Automation) Update(raw map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k, v := range raw {
		if _, present := a.record[k]; present {
			a.record[k] = v
		}
	}
}

// snapshot returns a shallow copy of the record, used as the body of
// edit and trigger requests.
func (a *Automation) snapshot() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cpy := make(map[string]any, len(a.record))
	for k, v := range a.record {
		cpy[k] = v
	}
	return cpy
}

// setField overwrites one record field with a confirmed value.
func (a *Automation) setField(field string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record[field] = value
}

// stringValue renders an id or flag for comparison. The server is
// inconsistent about encoding these as strings vs numbers.
func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return ""
	}
}
