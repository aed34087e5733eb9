package hearth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/hearth-go/config"
	"github.com/nerrad567/hearth-go/device"
	"github.com/nerrad567/hearth-go/event"
	"github.com/nerrad567/hearth-go/session"
)

// fakeCloud is an httptest server speaking the cloud REST surface plus
// the push-channel websocket at /socket.io/.
type fakeCloud struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	requests []string          // "METHOD /path"
	bodies   map[string][]byte // last body per path
	mfaType  string            // non-empty: login answers with an MFA challenge
	wsFrames []string          // extra frames pushed after the handshake
	switchOn bool              // per-device fetches report status On
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	fc := &fakeCloud{t: t, bodies: make(map[string][]byte)}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth2/login", func(w http.ResponseWriter, r *http.Request) {
		fc.record(r)

		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)

		fc.mu.Lock()
		mfa := fc.mfaType
		fc.mu.Unlock()
		if mfa != "" {
			if _, ok := req["mfa_code"]; !ok {
				json.NewEncoder(w).Encode(map[string]any{"mfa_type": mfa})
				return
			}
		}

		http.SetCookie(w, &http.Cookie{Name: "SESSION", Value: "s3ss10n"})
		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-1",
			"user":  map[string]any{"id": "user-1"},
			"panel": panelBlob(),
		})
	})
	mux.HandleFunc("/api/auth2/claims", func(w http.ResponseWriter, r *http.Request) {
		fc.record(r)
		json.NewEncoder(w).Encode(map[string]any{"access_token": "jwt-1"})
	})
	mux.HandleFunc("/api/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		fc.record(r)
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/v1/devices", func(w http.ResponseWriter, r *http.Request) {
		fc.record(r)
		json.NewEncoder(w).Encode([]map[string]any{
			cloudSwitch("ZB:001"),
			cloudSwitch("ZB:002"),
		})
	})
	mux.HandleFunc("/api/v1/panel", func(w http.ResponseWriter, r *http.Request) {
		fc.record(r)
		json.NewEncoder(w).Encode(panelBlob())
	})
	mux.HandleFunc("/api/v1/devices/", func(w http.ResponseWriter, r *http.Request) {
		fc.record(r)
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
		rec := cloudSwitch(id)
		fc.mu.Lock()
		if fc.switchOn {
			rec["status"] = "On"
		}
		fc.mu.Unlock()
		json.NewEncoder(w).Encode(rec)
	})
	mux.HandleFunc("/integrations/v1/automations/", func(w http.ResponseWriter, r *http.Request) {
		fc.record(r)
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "10", "name": "Goodnight", "type": "manual", "is_active": "1"},
			{"id": "11", "name": "Auto Away", "type": "location", "is_active": "1"},
		})
	})
	mux.HandleFunc("/socket.io/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fc.mu.Lock()
		frames := append([]string{`0{"sid":"c1","pingInterval":25000,"pingTimeout":60000}`, "40"}, fc.wsFrames...)
		fc.mu.Unlock()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fc.record(r)
		w.Write([]byte(`{}`))
	})

	fc.srv = httptest.NewServer(mux)
	t.Cleanup(fc.srv.Close)
	return fc
}

func (fc *fakeCloud) record(r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	fc.mu.Lock()
	fc.requests = append(fc.requests, r.Method+" "+r.URL.Path)
	fc.bodies[r.URL.Path] = body
	fc.mu.Unlock()
}

func (fc *fakeCloud) count(methodPath string) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n := 0
	for _, r := range fc.requests {
		if r == methodPath {
			n++
		}
	}
	return n
}

func (fc *fakeCloud) lastBody(path string) []byte {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.bodies[path]
}

func panelBlob() map[string]any {
	return map[string]any{
		"mac":   "00:11:22:33:44:55",
		"model": "H100",
		"mode":  map[string]any{"area_1": "standby"},
	}
}

func cloudSwitch(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"name":        "Switch " + id,
		"type":        "Power Switch",
		"type_tag":    "device_type.switch",
		"status":      "Off",
		"control_url": "api/v1/control/power_switch/" + id,
	}
}

func testConfig(fc *fakeCloud) *config.Config {
	cfg := config.Default()
	cfg.Cloud.BaseURL = fc.srv.URL
	cfg.Cloud.SocketURL = "ws" + strings.TrimPrefix(fc.srv.URL, "http") + "/socket.io/"
	cfg.Auth.Username = "user@example.com"
	cfg.Auth.Password = "hunter2"
	cfg.Auth.DisableCache = true
	cfg.Logging.Level = "error"
	cfg.Logging.Output = "stderr"
	return cfg
}

func testClient(t *testing.T, fc *fakeCloud) *Client {
	t.Helper()
	c, err := New(testConfig(fc))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Cloud.BaseURL = ""
	if _, err := New(cfg); err == nil {
		t.Fatal("New() with empty base URL succeeded, want error")
	}
}

func TestDevices_LoadsListingAndPanel(t *testing.T) {
	fc := newFakeCloud(t)
	c := testClient(t, fc)

	devices, err := c.Devices(context.Background(), false)
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	// Two switches plus the synthesized alarm device.
	if len(devices) != 3 {
		t.Fatalf("Devices() returned %d, want 3", len(devices))
	}

	// The listing stays cached on the second call.
	if _, err := c.Devices(context.Background(), false); err != nil {
		t.Fatalf("Devices() second call error = %v", err)
	}
	if got := fc.count("GET /api/v1/devices"); got != 1 {
		t.Errorf("devices endpoint hit %d times, want 1", got)
	}

	// refresh=true re-fetches.
	if _, err := c.Devices(context.Background(), true); err != nil {
		t.Fatalf("Devices(refresh) error = %v", err)
	}
	if got := fc.count("GET /api/v1/devices"); got != 2 {
		t.Errorf("devices endpoint hit %d times after refresh, want 2", got)
	}
}

func TestDevices_FilterByGenericType(t *testing.T) {
	fc := newFakeCloud(t)
	c := testClient(t, fc)

	switches, err := c.Devices(context.Background(), false, device.TypeSwitch)
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(switches) != 2 {
		t.Fatalf("Devices(TypeSwitch) returned %d, want 2", len(switches))
	}
	for _, d := range switches {
		if d.GenericType() != device.TypeSwitch {
			t.Errorf("device %s classified as %s, want switch", d.ID(), d.GenericType())
		}
	}

	alarms, err := c.Devices(context.Background(), false, device.TypeAlarm)
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(alarms) != 1 {
		t.Fatalf("Devices(TypeAlarm) returned %d, want 1", len(alarms))
	}
}

func TestDevice_ByID(t *testing.T) {
	fc := newFakeCloud(t)
	c := testClient(t, fc)

	dev, err := c.Device(context.Background(), "ZB:001", false)
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if dev == nil || dev.ID() != "ZB:001" {
		t.Fatalf("Device(ZB:001) = %v", dev)
	}

	missing, err := c.Device(context.Background(), "ZB:999", false)
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if missing != nil {
		t.Errorf("Device(ZB:999) = %v, want nil", missing)
	}
}

func TestAlarm_SynthesizedFromPanel(t *testing.T) {
	fc := newFakeCloud(t)
	c := testClient(t, fc)

	alarm, err := c.Alarm(context.Background(), "")
	if err != nil {
		t.Fatalf("Alarm() error = %v", err)
	}
	if !alarm.IsStandby() {
		t.Errorf("Mode() = %q, want standby", alarm.Mode())
	}
	if alarm.UUID() != "001122334455" {
		t.Errorf("UUID() = %q, want the colon-stripped mac", alarm.UUID())
	}

	if _, err := c.Alarm(context.Background(), "9"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Alarm(9) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestLogin_MFAChallenge(t *testing.T) {
	fc := newFakeCloud(t)
	fc.mfaType = "google_authenticator"
	c := testClient(t, fc)

	err := c.Login(context.Background(), "")
	if !errors.Is(err, session.ErrMFARequired) {
		t.Fatalf("Login() error = %v, want ErrMFARequired", err)
	}

	if err := c.Login(context.Background(), "123456"); err != nil {
		t.Fatalf("Login(mfa) error = %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(fc.lastBody("/api/auth2/login"), &body); err != nil {
		t.Fatalf("decoding login body: %v", err)
	}
	if body["mfa_code"] != "123456" {
		t.Errorf("login body mfa_code = %v, want 123456", body["mfa_code"])
	}
}

func TestLogout(t *testing.T) {
	fc := newFakeCloud(t)
	c := testClient(t, fc)

	if err := c.Login(context.Background(), ""); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if got := fc.count("POST /api/v1/logout"); got != 1 {
		t.Errorf("logout endpoint hit %d times, want 1", got)
	}
}

func TestAutomations_LoadsAndCaches(t *testing.T) {
	fc := newFakeCloud(t)
	c := testClient(t, fc)

	autos, err := c.Automations(context.Background(), false)
	if err != nil {
		t.Fatalf("Automations() error = %v", err)
	}
	if len(autos) != 2 {
		t.Fatalf("Automations() returned %d, want 2", len(autos))
	}

	// Second call without refresh serves from the registry.
	if _, err := c.Automations(context.Background(), false); err != nil {
		t.Fatalf("Automations() second call error = %v", err)
	}
	if got := fc.count("GET /integrations/v1/automations/"); got != 1 {
		t.Errorf("automation listing fetched %d times, want 1", got)
	}

	quick, err := c.Automation(context.Background(), "10", false)
	if err != nil {
		t.Fatalf("Automation() error = %v", err)
	}
	if quick == nil || !quick.IsQuickAction() {
		t.Fatalf("Automation(10) = %v, want the Goodnight quick action", quick)
	}
	if sched, _ := c.Automation(context.Background(), "11", false); sched.IsQuickAction() {
		t.Error("Automation(11) classified as a quick action, want scheduled")
	}

	if err := c.AutomationRegistry().Trigger(context.Background(), quick); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if got := fc.count("PUT /integrations/v1/automations/10/apply"); got != 1 {
		t.Errorf("apply endpoint hit %d times, want 1", got)
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	fc := newFakeCloud(t)
	cfg := testConfig(fc)
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	connected := make(chan struct{})
	var once sync.Once
	err = c.Events().AddConnectionStatusCallback("test", func(up bool) {
		if up {
			once.Do(func() { close(connected) })
		}
	})
	if err != nil {
		t.Fatalf("AddConnectionStatusCallback() error = %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// Second Start is a no-op.
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() second call error = %v", err)
	}

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the push channel to connect")
	}

	if c.History() == nil {
		t.Error("History() = nil with history enabled")
	}

	c.Stop()
	// Stop twice is safe.
	c.Stop()

	if c.History() != nil {
		t.Error("History() != nil after Stop")
	}
}

func TestRestart_DoesNotStackServiceCallbacks(t *testing.T) {
	fc := newFakeCloud(t)
	cfg := testConfig(fc)
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	first := c.Events().Stats()
	c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() after Stop error = %v", err)
	}
	defer c.Stop()

	if got := c.Events().Stats(); got != first {
		t.Errorf("callback registrations after restart = %+v, want %+v", got, first)
	}
	if c.History() == nil {
		t.Error("History() = nil after restart with history enabled")
	}
}

func TestPushDeviceUpdate_EndToEnd(t *testing.T) {
	fc := newFakeCloud(t)
	fc.wsFrames = []string{`42["` + event.DeviceUpdateEvent + `","ZB:001"]`}
	fc.switchOn = true

	c := testClient(t, fc)
	if _, err := c.Devices(context.Background(), false); err != nil {
		t.Fatalf("Devices() error = %v", err)
	}

	updated := make(chan *device.Device, 1)
	err := c.Events().AddDeviceCallback([]string{"ZB:001"}, func(dev *device.Device) {
		select {
		case updated <- dev:
		default:
		}
	})
	if err != nil {
		t.Fatalf("AddDeviceCallback() error = %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	select {
	case dev := <-updated:
		if dev.ID() != "ZB:001" {
			t.Errorf("callback device = %s, want ZB:001", dev.ID())
		}
		if dev.Status() != "On" {
			t.Errorf("Status() = %q, want On (refreshed from the push)", dev.Status())
		}
		if dev != c.Registry().Get("ZB:001") {
			t.Error("callback delivered a different instance than the registry holds")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the device callback")
	}
}

func TestDecodeRecords_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "array", body: `[{"id":"a"},{"id":"b"}]`, want: 2},
		{name: "single object", body: `{"id":"a"}`, want: 1},
		{name: "null", body: `null`, want: 0},
		{name: "garbage", body: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := decodeRecords([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("decodeRecords() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeRecords() error = %v", err)
			}
			if len(records) != tt.want {
				t.Errorf("decodeRecords() returned %d records, want %d", len(records), tt.want)
			}
		})
	}
}

func TestRefreshAll_MergesIntoRegistry(t *testing.T) {
	fc := newFakeCloud(t)
	c := testClient(t, fc)

	if _, err := c.Devices(context.Background(), false); err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	before := c.Registry().Get("ZB:001")

	if err := c.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if after := c.Registry().Get("ZB:001"); after != before {
		t.Error("RefreshAll replaced the device instance instead of merging")
	}
}

var _ event.Refresher = (*Client)(nil)
