package hearth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/hearth-go/automation"
	"github.com/nerrad567/hearth-go/config"
	"github.com/nerrad567/hearth-go/device"
	"github.com/nerrad567/hearth-go/event"
	"github.com/nerrad567/hearth-go/history"
	"github.com/nerrad567/hearth-go/logging"
	"github.com/nerrad567/hearth-go/mqttbridge"
	"github.com/nerrad567/hearth-go/session"
	"github.com/nerrad567/hearth-go/stream"
	"github.com/nerrad567/hearth-go/telemetry"
)

// Version is the library version reported in logs.
const Version = "0.9.0"

// historyPruneInterval is how often the history store is trimmed to the
// configured retention window.
const historyPruneInterval = 6 * time.Hour

// Client is the top-level handle for one Hearth account.
//
// It owns the authenticated session, the device registry, the push
// channel and the optional local services (history, MQTT republishing,
// telemetry), wiring them together from one configuration.
//
// Typical use:
//
//	cfg, _ := config.Load("hearth.yaml")
//	client, _ := hearth.New(cfg)
//	defer client.Stop()
//
//	if err := client.Start(ctx); err != nil { ... }
//	alarm, _ := client.Alarm(ctx, "")
//	alarm.SetAway(ctx)
type Client struct {
	cfg    *config.Config
	logger *logging.Logger

	session     *session.Session
	registry    *device.Registry
	automations *automation.Registry
	sock        *stream.Client
	events      *event.Controller

	mu                sync.Mutex
	devicesLoaded     bool
	automationsLoaded bool
	started           bool
	servicesWired     bool

	store  *history.Store
	bridge *mqttbridge.Bridge
	sink   *telemetry.Sink

	pruneStop chan struct{}
	pruneDone chan struct{}
}

// New assembles a client from configuration. No network traffic happens
// until Login, Start, or the first device fetch.
func New(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("hearth: invalid configuration: %w", err)
	}

	logger := logging.New(cfg.Logging, Version)

	sess, err := session.New(session.Config{
		BaseURL: cfg.Cloud.BaseURL,
		Credentials: session.Credentials{
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
		},
		CachePath:    cfg.Auth.CachePath,
		DisableCache: cfg.Auth.DisableCache,
	})
	if err != nil {
		return nil, fmt.Errorf("hearth: creating session: %w", err)
	}
	sess.SetLogger(logger.With("component", "session"))

	registry := device.NewRegistry(sess)
	registry.SetLogger(logger.With("component", "device"))

	automations := automation.NewRegistry(sess)
	automations.SetLogger(logger.With("component", "automation"))

	sock := stream.New(stream.Config{
		URL:          cfg.Cloud.SocketURL,
		Origin:       cfg.Cloud.BaseURL,
		Cookie:       sess.EventCookie,
		PingInterval: cfg.Stream.PingInterval,
		PingTimeout:  cfg.Stream.PingTimeout,
		PollInterval: cfg.Stream.PollInterval,
		BackoffBase:  cfg.Stream.BackoffBase,
		BackoffCap:   cfg.Stream.BackoffCap,
	})
	sock.SetLogger(logger.With("component", "stream"))

	c := &Client{
		cfg:         cfg,
		logger:      logger,
		session:     sess,
		registry:    registry,
		automations: automations,
		sock:        sock,
	}

	c.events = event.NewController(registry, sock, c)
	c.events.SetLogger(logger.With("component", "event"))

	return c, nil
}

// Login authenticates with the cloud. Most callers can skip it: every
// request logs in lazily on demand. Call it directly to surface
// credential problems early or to pass a one-time MFA code.
func (c *Client) Login(ctx context.Context, mfaCode string) error {
	if mfaCode != "" {
		return c.session.LoginWithMFA(ctx, mfaCode)
	}
	return c.session.Login(ctx)
}

// Logout invalidates the cloud session. The device registry keeps its
// last-known state but no further requests will succeed without a new
// login.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// Devices returns all known devices, fetching the account listing on
// first use. With refresh true the listing is re-fetched even if already
// loaded. Generic types filter the result when given.
func (c *Client) Devices(ctx context.Context, refresh bool, types ...device.GenericType) ([]*device.Device, error) {
	if err := c.ensureDevices(ctx, refresh); err != nil {
		return nil, err
	}
	if len(types) > 0 {
		return c.registry.ByGenericType(types...), nil
	}
	return c.registry.All(), nil
}

// Device returns one device by id, or nil when unknown. With refresh
// true the device's state is re-fetched first.
func (c *Client) Device(ctx context.Context, id string, refresh bool) (*device.Device, error) {
	if err := c.ensureDevices(ctx, false); err != nil {
		return nil, err
	}
	dev := c.registry.Get(id)
	if dev != nil && refresh {
		return c.registry.Refresh(ctx, id)
	}
	return dev, nil
}

// Alarm returns the synthesized alarm device for an area ("" means area
// 1), loading the device listing first if needed.
func (c *Client) Alarm(ctx context.Context, area string) (*device.Alarm, error) {
	if err := c.ensureDevices(ctx, false); err != nil {
		return nil, err
	}
	alarm := c.registry.Alarm(area)
	if alarm == nil {
		return nil, fmt.Errorf("hearth: %w: no panel for area %q", device.ErrDeviceNotFound, area)
	}
	return alarm, nil
}

// SetDefaultMode sets the arming mode used by Alarm.SwitchOn. Only home
// and away are accepted.
func (c *Client) SetDefaultMode(mode string) error {
	return c.registry.SetDefaultMode(mode)
}

// Automations returns all configured automations and quick actions,
// fetching the account listing on first use. With refresh true the
// listing is re-fetched even if already loaded.
func (c *Client) Automations(ctx context.Context, refresh bool) ([]*automation.Automation, error) {
	if err := c.ensureAutomations(ctx, refresh); err != nil {
		return nil, err
	}
	return c.automations.All(), nil
}

// Automation returns one automation by id, or nil when unknown. With
// refresh true its state is re-fetched first.
func (c *Client) Automation(ctx context.Context, id string, refresh bool) (*automation.Automation, error) {
	if err := c.ensureAutomations(ctx, false); err != nil {
		return nil, err
	}
	auto := c.automations.Get(id)
	if auto != nil && refresh {
		return c.automations.Refresh(ctx, id)
	}
	return auto, nil
}

// AutomationRegistry exposes the automation registry for direct command
// access (SetActive, Trigger).
func (c *Client) AutomationRegistry() *automation.Registry {
	return c.automations
}

// Events returns the event controller for callback registration.
func (c *Client) Events() *event.Controller {
	return c.events
}

// Registry exposes the device registry for direct command access
// (SetStatus, SetLevel).
func (c *Client) Registry() *device.Registry {
	return c.registry
}

// History returns the local timeline store, or nil when history is not
// enabled or Start has not run.
func (c *Client) History() *history.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// RefreshAll re-fetches the device listing and panel, merging into the
// existing registry, plus the automation listing once it has been loaded.
// The event controller runs this after every (re)connect.
func (c *Client) RefreshAll(ctx context.Context) error {
	if err := c.fetchDevices(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	loaded := c.automationsLoaded
	c.mu.Unlock()
	if loaded {
		if err := c.automations.RefreshAll(ctx); err != nil {
			return fmt.Errorf("hearth: refreshing automations: %w", err)
		}
	}
	return nil
}

// Start brings the client fully online: authenticates, loads the device
// listing, attaches the configured optional services and opens the push
// channel. It is the one-call path for long-running consumers; callers
// that only need REST access can skip it.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	if err := c.ensureDevices(ctx, true); err != nil {
		return err
	}

	if err := c.attachServices(); err != nil {
		return err
	}

	c.events.Start()
	c.logger.Info("client started", "devices", c.registry.Count())
	return nil
}

// Stop closes the push channel and the optional services. The session
// stays valid; call Logout to invalidate it.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	store, bridge, sink := c.store, c.bridge, c.sink
	c.store, c.bridge, c.sink = nil, nil, nil
	pruneStop, pruneDone := c.pruneStop, c.pruneDone
	c.pruneStop, c.pruneDone = nil, nil
	c.mu.Unlock()

	c.events.Stop()

	if pruneStop != nil {
		close(pruneStop)
		<-pruneDone
	}
	if bridge != nil {
		bridge.Close()
	}
	if sink != nil {
		sink.Close()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			c.logger.Warn("closing history store", "error", err)
		}
	}
	c.logger.Info("client stopped")
}

// attachServices opens the optional sinks that the configuration enables
// and wires their event callbacks. Failures here are fatal for Start: a
// service the operator explicitly turned on must not fail silently.
func (c *Client) attachServices() error {
	if c.cfg.History.Enabled {
		store, err := history.Open(c.cfg.History.Path)
		if err != nil {
			return fmt.Errorf("hearth: opening history: %w", err)
		}
		c.mu.Lock()
		c.store = store
		c.pruneStop = make(chan struct{})
		c.pruneDone = make(chan struct{})
		go c.pruneLoop(store, c.cfg.History.Retention, c.pruneStop, c.pruneDone)
		c.mu.Unlock()
	}

	if c.cfg.MQTT.Enabled {
		bridge, err := mqttbridge.Connect(c.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("hearth: connecting mqtt bridge: %w", err)
		}
		bridge.SetLogger(c.logger.With("component", "mqttbridge"))
		c.mu.Lock()
		c.bridge = bridge
		c.mu.Unlock()
	}

	if c.cfg.Telemetry.Enabled {
		sink, err := telemetry.Connect(c.cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("hearth: connecting telemetry: %w", err)
		}
		sink.SetLogger(c.logger.With("component", "telemetry"))
		c.mu.Lock()
		c.sink = sink
		c.mu.Unlock()
	}

	return c.wireServiceCallbacks()
}

// wireServiceCallbacks registers the forwarders that feed the optional
// services from the event controller. Registration happens once per
// Client: the closures resolve the current service instance on every
// call, so a Stop/Start cycle swaps services without stacking a second
// set of callbacks.
func (c *Client) wireServiceCallbacks() error {
	c.mu.Lock()
	if c.servicesWired {
		c.mu.Unlock()
		return nil
	}
	c.servicesWired = true
	c.mu.Unlock()

	if err := c.events.AddTimelineCallback([]string{event.CodeAllEvents}, func(ev event.TimelineEvent) {
		if store := c.History(); store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Record(ctx, ev); err != nil {
				c.logger.Warn("recording timeline event", "error", err)
			}
		}
		if bridge := c.currentBridge(); bridge != nil {
			bridge.PublishTimeline(ev)
		}
	}); err != nil {
		return fmt.Errorf("hearth: wiring timeline forwarder: %w", err)
	}

	if err := c.events.AddConnectionStatusCallback("services", func(connected bool) {
		if bridge := c.currentBridge(); bridge != nil {
			bridge.PublishStreamStatus(connected)
		}
		if sink := c.currentSink(); sink != nil {
			sink.RecordConnection(connected)
		}
	}); err != nil {
		return fmt.Errorf("hearth: wiring connection forwarder: %w", err)
	}

	devices := c.registry.All()
	ids := make([]string, 0, len(devices))
	for _, dev := range devices {
		ids = append(ids, dev.ID())
	}
	if len(ids) > 0 {
		if err := c.events.AddDeviceCallback(ids, func(dev *device.Device) {
			if bridge := c.currentBridge(); bridge != nil {
				bridge.PublishDevice(dev)
			}
			if sink := c.currentSink(); sink != nil {
				sink.WriteDeviceStatus(dev)
			}
		}); err != nil {
			return fmt.Errorf("hearth: wiring device forwarders: %w", err)
		}
	}

	return nil
}

func (c *Client) currentBridge() *mqttbridge.Bridge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bridge
}

func (c *Client) currentSink() *telemetry.Sink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink
}

// pruneLoop trims the history store on a fixed cadence until stop closes.
func (c *Client) pruneLoop(store *history.Store, retention time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := store.Prune(ctx, retention)
			cancel()
			if err != nil {
				c.logger.Warn("pruning history", "error", err)
			} else if n > 0 {
				c.logger.Debug("pruned history entries", "removed", n)
			}
		case <-stop:
			return
		}
	}
}

// ensureAutomations loads the automation listing once, or again when
// refresh is set.
func (c *Client) ensureAutomations(ctx context.Context, refresh bool) error {
	c.mu.Lock()
	loaded := c.automationsLoaded
	c.mu.Unlock()

	if loaded && !refresh {
		return nil
	}
	if err := c.automations.RefreshAll(ctx); err != nil {
		return fmt.Errorf("hearth: fetching automations: %w", err)
	}

	c.mu.Lock()
	c.automationsLoaded = true
	c.mu.Unlock()
	return nil
}

// ensureDevices loads the device listing once, or again when refresh is
// set.
func (c *Client) ensureDevices(ctx context.Context, refresh bool) error {
	c.mu.Lock()
	loaded := c.devicesLoaded
	c.mu.Unlock()

	if loaded && !refresh {
		return nil
	}
	return c.fetchDevices(ctx)
}

// fetchDevices pulls the full listing plus the panel and merges both
// into the registry.
func (c *Client) fetchDevices(ctx context.Context) error {
	body, err := c.session.Request(ctx, "get", device.DevicesPath, nil)
	if err != nil {
		return fmt.Errorf("hearth: fetching devices: %w", err)
	}

	records, err := decodeRecords(body)
	if err != nil {
		return fmt.Errorf("hearth: decoding device listing: %w", err)
	}
	c.registry.UpsertListing(records)

	panelBody, err := c.session.Request(ctx, "get", device.PanelPath, nil)
	if err != nil {
		return fmt.Errorf("hearth: fetching panel: %w", err)
	}
	var panel map[string]any
	if err := json.Unmarshal(panelBody, &panel); err != nil {
		return fmt.Errorf("hearth: decoding panel: %w", err)
	}
	c.registry.SynthesizeAlarm(panel, "1")

	c.mu.Lock()
	c.devicesLoaded = true
	c.mu.Unlock()

	c.logger.Debug("device listing loaded", "count", c.registry.Count())
	return nil
}

// decodeRecords accepts both the array and single-object listing shapes
// the server produces.
func decodeRecords(body []byte) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}
	var single map[string]any
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	if single == nil {
		return nil, nil
	}
	return []map[string]any{single}, nil
}
