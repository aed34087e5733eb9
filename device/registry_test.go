package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// fakeRequester is a scriptable Requester recording every call.
type fakeRequester struct {
	mu      sync.Mutex
	calls   []string
	respond func(method, path string, body any) ([]byte, error)
}

func (f *fakeRequester) Request(_ context.Context, method, path string, body any) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method+" "+path)
	f.mu.Unlock()

	if f.respond == nil {
		return []byte("{}"), nil
	}
	return f.respond(method, path, body)
}

func (f *fakeRequester) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func switchRecord(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"name":        "Test Switch " + id,
		"type":        "Power Switch",
		"type_tag":    "device_type.switch",
		"status":      "Off",
		"control_url": "api/v1/control/power_switch/" + id,
	}
}

func TestUpsertListing_CreatesAndMerges(t *testing.T) {
	reg := NewRegistry(&fakeRequester{})

	reg.UpsertListing([]map[string]any{switchRecord("ZB:001"), switchRecord("ZB:002")})
	if reg.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", reg.Count())
	}

	// Second listing with a changed status merges into the same device.
	updated := switchRecord("ZB:001")
	updated["status"] = "On"
	reg.UpsertListing([]map[string]any{updated})

	if reg.Count() != 2 {
		t.Errorf("Count() = %d after re-listing, want 2", reg.Count())
	}
	if got := reg.Get("ZB:001").Status(); got != "On" {
		t.Errorf("Status() = %q, want %q", got, "On")
	}
}

func TestUpsertListing_IdentityPreserved(t *testing.T) {
	reg := NewRegistry(&fakeRequester{})
	reg.UpsertListing([]map[string]any{switchRecord("ZB:001")})

	before := reg.Get("ZB:001")

	for i := 0; i < 5; i++ {
		rec := switchRecord("ZB:001")
		rec["status"] = fmt.Sprintf("cycle-%d", i)
		reg.UpsertListing([]map[string]any{rec})
	}

	after := reg.Get("ZB:001")
	if before != after {
		t.Fatal("device identity changed across listings; callbacks holding the old reference would go stale")
	}
	if before.Status() != "cycle-4" {
		t.Errorf("Status() through old reference = %q, want %q", before.Status(), "cycle-4")
	}
}

func TestUpsertListing_SkipsRecordsWithoutID(t *testing.T) {
	reg := NewRegistry(&fakeRequester{})
	reg.UpsertListing([]map[string]any{
		{"name": "nameless", "type_tag": "device_type.switch"},
		switchRecord("ZB:001"),
	})

	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (idless record skipped)", reg.Count())
	}
}

func TestUpdate_MergeRestriction(t *testing.T) {
	dev, err := New(map[string]any{
		"id":       "ZB:001",
		"type_tag": "device_type.switch",
		"status":   "Off",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dev.Update(map[string]any{
		"status":          "On",
		"brand_new_field": "x",
	})

	if got := dev.Status(); got != "On" {
		t.Errorf("Status() = %q, want %q", got, "On")
	}
	if got := dev.GetValue("brand_new_field"); got != nil {
		t.Errorf("GetValue(brand_new_field) = %v, want nil (unknown keys are dropped)", got)
	}
}

func TestRefresh_MergesTargetedFetch(t *testing.T) {
	rt := &fakeRequester{
		respond: func(_, path string, _ any) ([]byte, error) {
			if path != "/api/v1/devices/ZB:001" {
				t.Errorf("unexpected path %q", path)
			}
			rec := switchRecord("ZB:001")
			rec["status"] = "On"
			return json.Marshal([]any{rec})
		},
	}
	reg := NewRegistry(rt)
	reg.UpsertListing([]map[string]any{switchRecord("ZB:001")})

	before := reg.Get("ZB:001")
	dev, err := reg.Refresh(context.Background(), "ZB:001")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if dev != before {
		t.Error("Refresh() returned a different object; identity must be preserved")
	}
	if dev.Status() != "On" {
		t.Errorf("Status() = %q, want %q", dev.Status(), "On")
	}
}

func TestRefresh_UnknownDevice(t *testing.T) {
	reg := NewRegistry(&fakeRequester{})

	_, err := reg.Refresh(context.Background(), "nope")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Refresh(unknown) = %v, want ErrDeviceNotFound", err)
	}
}

func TestRefresh_EmptyResponse(t *testing.T) {
	rt := &fakeRequester{
		respond: func(_, _ string, _ any) ([]byte, error) {
			return []byte("[]"), nil
		},
	}
	reg := NewRegistry(rt)
	reg.UpsertListing([]map[string]any{switchRecord("ZB:001")})

	_, err := reg.Refresh(context.Background(), "ZB:001")
	if !errors.Is(err, ErrRefreshEmpty) {
		t.Errorf("Refresh() with empty body = %v, want ErrRefreshEmpty", err)
	}
}

func TestRefresh_AlarmUsesPanelEndpoint(t *testing.T) {
	rt := &fakeRequester{
		respond: func(_, path string, _ any) ([]byte, error) {
			if path != PanelPath {
				t.Errorf("alarm refresh hit %q, want %q", path, PanelPath)
			}
			return []byte(`{"mode": {"area_1": "home"}}`), nil
		},
	}
	reg := NewRegistry(rt)
	reg.SynthesizeAlarm(map[string]any{
		"mac":  "00:11:22:33:44:55",
		"mode": map[string]any{"area_1": "standby"},
	}, "1")

	if _, err := reg.Refresh(context.Background(), "area_1"); err != nil {
		t.Fatalf("Refresh(area_1) error = %v", err)
	}
	if got := reg.Alarm("").Mode(); got != "home" {
		t.Errorf("Mode() = %q, want %q", got, "home")
	}
}

func TestSynthesizeAlarm(t *testing.T) {
	reg := NewRegistry(&fakeRequester{})

	dev := reg.SynthesizeAlarm(map[string]any{
		"mac":  "00:11:22:33:44:55",
		"mode": map[string]any{"area_1": "standby"},
	}, "1")

	if dev.ID() != "area_1" {
		t.Errorf("ID() = %q, want %q", dev.ID(), "area_1")
	}
	if dev.GenericType() != TypeAlarm {
		t.Errorf("GenericType() = %q, want %q", dev.GenericType(), TypeAlarm)
	}
	if dev.Name() != AlarmName {
		t.Errorf("Name() = %q, want %q", dev.Name(), AlarmName)
	}
	if dev.UUID() != "001122334455" {
		t.Errorf("UUID() = %q, want mac without colons", dev.UUID())
	}

	// Synthesizing again updates in place.
	again := reg.SynthesizeAlarm(map[string]any{
		"mode": map[string]any{"area_1": "away"},
	}, "1")
	if again != dev {
		t.Error("second SynthesizeAlarm() returned a different object")
	}
	if reg.Alarm("").Mode() != "away" {
		t.Errorf("Mode() = %q, want %q", reg.Alarm("").Mode(), "away")
	}
}

func TestByGenericType(t *testing.T) {
	reg := NewRegistry(&fakeRequester{})
	reg.UpsertListing([]map[string]any{
		switchRecord("ZB:001"),
		{
			"id":       "ZB:002",
			"type_tag": "device_type.door_lock",
			"status":   "LockClosed",
		},
	})

	locks := reg.ByGenericType(TypeLock)
	if len(locks) != 1 || locks[0].ID() != "ZB:002" {
		t.Errorf("ByGenericType(TypeLock) = %v, want just ZB:002", locks)
	}

	both := reg.ByGenericType(TypeLock, TypeSwitch)
	if len(both) != 2 {
		t.Errorf("ByGenericType(lock, switch) returned %d devices, want 2", len(both))
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	rt := &fakeRequester{
		respond: func(_, _ string, _ any) ([]byte, error) {
			return json.Marshal(switchRecord("ZB:001"))
		},
	}
	reg := NewRegistry(rt)
	reg.UpsertListing([]map[string]any{switchRecord("ZB:001")})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				reg.UpsertListing([]map[string]any{switchRecord("ZB:001")})
				_, _ = reg.Refresh(context.Background(), "ZB:001")
				_ = reg.Get("ZB:001").Status()
			}
		}()
	}
	wg.Wait()
}
