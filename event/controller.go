package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/hearth-go/device"
	"github.com/nerrad567/hearth-go/stream"
)

// Wire event names published by the gateway.
const (
	DeviceUpdateEvent = "com.hearth.device.update"
	GatewayModeEvent  = "com.hearth.gateway.mode"
	TimelineUpdate    = "com.hearth.gateway.timeline"
	AutomationEvent   = "com.hearth.automation"
)

// refreshTimeout bounds the REST fetches triggered by push events.
const refreshTimeout = 15 * time.Second

// DeviceCallback receives the updated device after its state has been
// refreshed and merged.
type DeviceCallback func(dev *device.Device)

// TimelineCallback receives one timeline event.
type TimelineCallback func(ev TimelineEvent)

// ConnectionCallback receives the stream connection state whenever it
// changes.
type ConnectionCallback func(connected bool)

// Refresher re-fetches the full device listing; the Controller runs it
// once per (re)connect so state lost while offline is recovered.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// Logger is the minimal logging interface used by the Controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Controller bridges the push channel to the device registry and to the
// caller's callbacks.
//
// It owns the wiring between wire events and their local effects: device
// updates trigger a targeted refresh, mode broadcasts force the cached
// alarm mode, timeline events fan out by code and by group. Consumers
// never touch the stream client directly.
//
// Thread Safety:
//   - Registration and removal are safe for concurrent use.
//   - Callbacks fire sequentially on the stream goroutine, in
//     registration order, each isolated from the others' panics.
type Controller struct {
	reg       *device.Registry
	sock      *stream.Client
	refresher Refresher
	logger    Logger

	mu                sync.RWMutex
	connected         bool
	deviceCallbacks   map[string][]DeviceCallback
	groupCallbacks    map[Group][]TimelineCallback
	timelineCallbacks map[string][]TimelineCallback
	connCallbacks     map[string][]ConnectionCallback
}

// NewController wires a controller onto a registry and stream client.
// The refresher is optional; without one, reconnects skip the full
// listing refresh.
func NewController(reg *device.Registry, sock *stream.Client, refresher Refresher) *Controller {
	c := &Controller{
		reg:               reg,
		sock:              sock,
		refresher:         refresher,
		logger:            noopLogger{},
		deviceCallbacks:   make(map[string][]DeviceCallback),
		groupCallbacks:    make(map[Group][]TimelineCallback),
		timelineCallbacks: make(map[string][]TimelineCallback),
		connCallbacks:     make(map[string][]ConnectionCallback),
	}

	sock.On(stream.EventConnected, c.onConnected)
	sock.On(stream.EventDisconnected, c.onDisconnected)
	sock.On(DeviceUpdateEvent, c.onDeviceUpdate)
	sock.On(GatewayModeEvent, c.onModeChange)
	sock.On(TimelineUpdate, c.onTimelineUpdate)
	sock.On(AutomationEvent, c.onAutomationUpdate)

	return c
}

// SetLogger sets the logger for the controller. Call before Start.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// Start begins listening for push events.
func (c *Controller) Start() {
	c.sock.Start()
}

// Stop tears down the push channel and blocks until no more callbacks
// will fire.
func (c *Controller) Stop() {
	c.sock.Stop()
}

// Connected reports whether the push channel is currently established.
func (c *Controller) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Stats is a snapshot of callback registration counts.
type Stats struct {
	DeviceCallbacks     int
	GroupCallbacks      int
	TimelineCallbacks   int
	ConnectionCallbacks int
}

// Stats returns the current registration counts, for diagnostics.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s Stats
	for _, list := range c.deviceCallbacks {
		s.DeviceCallbacks += len(list)
	}
	for _, list := range c.groupCallbacks {
		s.GroupCallbacks += len(list)
	}
	for _, list := range c.timelineCallbacks {
		s.TimelineCallbacks += len(list)
	}
	for _, list := range c.connCallbacks {
		s.ConnectionCallbacks += len(list)
	}
	return s
}

// AddDeviceCallback registers cb for state updates to each listed device.
// All ids are validated against the registry before any registration
// happens, so a bad id leaves no partial subscriptions behind.
func (c *Controller) AddDeviceCallback(deviceIDs []string, cb DeviceCallback) error {
	if cb == nil {
		return ErrNoCallback
	}
	for _, id := range deviceIDs {
		if c.reg.Get(id) == nil {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range deviceIDs {
		c.logger.Debug("subscribing to device updates", "id", id)
		c.deviceCallbacks[id] = append(c.deviceCallbacks[id], cb)
	}
	return nil
}

// RemoveAllDeviceCallbacks drops every callback registered for each
// listed device.
func (c *Controller) RemoveAllDeviceCallbacks(deviceIDs []string) error {
	for _, id := range deviceIDs {
		if c.reg.Get(id) == nil {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range deviceIDs {
		delete(c.deviceCallbacks, id)
	}
	return nil
}

// AddEventCallback registers cb for every timeline event falling into
// each listed group.
func (c *Controller) AddEventCallback(groups []Group, cb TimelineCallback) error {
	if cb == nil {
		return ErrNoCallback
	}
	for _, g := range groups {
		if !ValidGroup(g) {
			return fmt.Errorf("%w: %q (valid: %v)", ErrUnknownGroup, g, AllGroups())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range groups {
		c.logger.Debug("subscribing to event group", "group", g)
		c.groupCallbacks[g] = append(c.groupCallbacks[g], cb)
	}
	return nil
}

// AddTimelineCallback registers cb for each specific event code. The
// CodeAllEvents sentinel subscribes to every timeline event.
func (c *Controller) AddTimelineCallback(eventCodes []string, cb TimelineCallback) error {
	if cb == nil {
		return ErrNoCallback
	}
	for _, code := range eventCodes {
		if code == "" {
			return ErrNoEventCode
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range eventCodes {
		c.logger.Debug("subscribing to timeline code", "code", code)
		c.timelineCallbacks[code] = append(c.timelineCallbacks[code], cb)
	}
	return nil
}

// AddConnectionStatusCallback registers cb under a caller-chosen id; the
// id is the handle for later removal.
func (c *Controller) AddConnectionStatusCallback(uniqueID string, cb ConnectionCallback) error {
	if uniqueID == "" {
		return fmt.Errorf("event: empty connection callback id")
	}
	if cb == nil {
		return ErrNoCallback
	}

	c.mu.Lock()
	c.connCallbacks[uniqueID] = append(c.connCallbacks[uniqueID], cb)
	c.mu.Unlock()
	return nil
}

// RemoveConnectionStatusCallback drops the callbacks registered under id.
func (c *Controller) RemoveConnectionStatusCallback(uniqueID string) {
	c.mu.Lock()
	delete(c.connCallbacks, uniqueID)
	c.mu.Unlock()
}

// onConnected runs on every (re)connect: refresh everything missed while
// offline, then tell the connection subscribers. The refresh can fail on
// a flaky backend; subscribers are still notified because the socket IS
// up and availability should reflect that.
func (c *Controller) onConnected([]json.RawMessage) {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	if c.refresher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		if err := c.refresher.RefreshAll(ctx); err != nil {
			c.logger.Warn("post-connect refresh failed", "error", err)
		}
		cancel()
	}

	c.notifyConnection(true)
}

func (c *Controller) onDisconnected([]json.RawMessage) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.notifyConnection(false)
}

func (c *Controller) notifyConnection(connected bool) {
	c.mu.RLock()
	var cbs []ConnectionCallback
	for _, list := range c.connCallbacks {
		cbs = append(cbs, list...)
	}
	c.mu.RUnlock()

	for _, cb := range cbs {
		c.invoke(func() { cb(connected) })
	}
}

// onDeviceUpdate handles a device change notification. The payload is
// just the device id; current state is fetched over REST.
func (c *Controller) onDeviceUpdate(args []json.RawMessage) {
	id := firstString(args)
	if id == "" {
		c.logger.Warn("device update with no device id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	dev, err := c.reg.Refresh(ctx, id)
	if err != nil {
		c.logger.Debug("device update for unknown or unfetchable device",
			"id", id,
			"error", err,
		)
		return
	}

	c.notifyDevice(dev)
}

// onModeChange handles an alarm mode broadcast. The cached mode is forced
// to the broadcast value instead of refreshed: a refresh fired right after
// the broadcast can race the server's own propagation and read the old
// mode back.
func (c *Controller) onModeChange(args []json.RawMessage) {
	mode := device.NormalizeMode(firstString(args))
	if mode == "" {
		c.logger.Warn("mode change event with no mode")
		return
	}
	if !device.ValidMode(mode) {
		c.logger.Warn("mode change event with unknown mode", "mode", mode)
		return
	}

	alarm := c.reg.Alarm("")
	if alarm == nil {
		c.logger.Warn("mode change before panel was loaded", "mode", mode)
		return
	}

	c.logger.Debug("alarm mode change", "mode", mode)
	alarm.ForceMode(mode)

	c.notifyDevice(alarm.Device)
}

func (c *Controller) notifyDevice(dev *device.Device) {
	c.mu.RLock()
	cbs := make([]DeviceCallback, len(c.deviceCallbacks[dev.ID()]))
	copy(cbs, c.deviceCallbacks[dev.ID()])
	c.mu.RUnlock()

	for _, cb := range cbs {
		c.invoke(func() { cb(dev) })
	}
}

// onTimelineUpdate fans one timeline event out three ways: subscribers of
// its exact code, subscribers of the all-events sentinel, and subscribers
// of its mapped group.
func (c *Controller) onTimelineUpdate(args []json.RawMessage) {
	ev, ok := decodeTimeline(args)
	if !ok || ev.EventType == "" || ev.EventCode == "" {
		c.logger.Warn("invalid timeline update event")
		return
	}

	c.logger.Debug("timeline event",
		"name", ev.EventName,
		"type", ev.EventType,
		"code", ev.EventCode,
	)

	c.mu.RLock()
	var cbs []TimelineCallback
	cbs = append(cbs, c.timelineCallbacks[ev.EventCode]...)
	cbs = append(cbs, c.timelineCallbacks[CodeAllEvents]...)
	if group, mapped := MapEventCode(ev.EventCode); mapped {
		cbs = append(cbs, c.groupCallbacks[group]...)
	}
	c.mu.RUnlock()

	for _, cb := range cbs {
		c.invoke(func() { cb(ev) })
	}
}

// onAutomationUpdate routes automation edits to their fixed group; the
// gateway does not assign them timeline codes.
func (c *Controller) onAutomationUpdate(args []json.RawMessage) {
	ev, _ := decodeTimeline(args)

	c.mu.RLock()
	cbs := make([]TimelineCallback, len(c.groupCallbacks[GroupAutomationEdit]))
	copy(cbs, c.groupCallbacks[GroupAutomationEdit])
	c.mu.RUnlock()

	for _, cb := range cbs {
		c.invoke(func() { cb(ev) })
	}
}

// invoke runs one callback, capturing any panic so a broken subscriber
// cannot break its siblings or the stream goroutine.
func (c *Controller) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("captured panic during callback", "panic", r)
		}
	}()
	fn()
}

// firstString decodes the first event argument as a string, tolerating
// both bare strings and single-element arrays.
func firstString(args []json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(args[0], &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(args[0], &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

func decodeTimeline(args []json.RawMessage) (TimelineEvent, bool) {
	if len(args) == 0 {
		return TimelineEvent{}, false
	}
	var ev TimelineEvent
	if err := json.Unmarshal(args[0], &ev); err == nil {
		return ev, true
	}
	var list []TimelineEvent
	if err := json.Unmarshal(args[0], &list); err == nil && len(list) > 0 {
		return list[0], true
	}
	return TimelineEvent{}, false
}
