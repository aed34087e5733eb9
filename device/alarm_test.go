package device

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func alarmForTest(t *testing.T, rt *fakeRequester) (*Registry, *Alarm) {
	t.Helper()
	reg := NewRegistry(rt)
	reg.SynthesizeAlarm(map[string]any{
		"mac":  "00:11:22:33:44:55",
		"mode": map[string]any{"area_1": "standby"},
	}, "1")
	return reg, reg.Alarm("1")
}

func modeResponder(t *testing.T) func(method, path string, body any) ([]byte, error) {
	t.Helper()
	return func(method, path string, _ any) ([]byte, error) {
		var area, mode string
		if _, err := fmt.Sscanf(path, "/api/v1/panel/mode/%1s/%s", &area, &mode); err != nil {
			t.Fatalf("unexpected mode path %q: %v", path, err)
		}
		return []byte(fmt.Sprintf(`{"area": %s, "mode": %q}`, area, mode)), nil
	}
}

func TestSetMode_CanonicalisesInput(t *testing.T) {
	rt := &fakeRequester{}
	rt.respond = modeResponder(t)
	_, alarm := alarmForTest(t, rt)

	for _, input := range []string{"AWAY", "away", " Away "} {
		got, err := alarm.SetMode(context.Background(), input)
		if err != nil {
			t.Fatalf("SetMode(%q) error = %v", input, err)
		}
		if got != ModeAway {
			t.Errorf("SetMode(%q) = %q, want %q", input, got, ModeAway)
		}
	}
	if !alarm.IsAway() {
		t.Errorf("Mode() = %q after SetMode, want away", alarm.Mode())
	}
}

func TestSetMode_InvalidFailsBeforeTransport(t *testing.T) {
	rt := &fakeRequester{
		respond: func(_, _ string, _ any) ([]byte, error) {
			t.Fatal("transport reached for an invalid mode")
			return nil, nil
		},
	}
	_, alarm := alarmForTest(t, rt)

	_, err := alarm.SetMode(context.Background(), "vacation")
	if !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("SetMode(vacation) = %v, want ErrInvalidMode", err)
	}
	if rt.callCount() != 0 {
		t.Errorf("invalid mode triggered %d requests, want 0", rt.callCount())
	}
}

func TestSetMode_AreaMismatch(t *testing.T) {
	rt := &fakeRequester{
		respond: func(_, _ string, _ any) ([]byte, error) {
			return []byte(`{"area": 2, "mode": "away"}`), nil
		},
	}
	_, alarm := alarmForTest(t, rt)

	_, err := alarm.SetMode(context.Background(), ModeAway)
	if !errors.Is(err, ErrAreaMismatch) {
		t.Fatalf("SetMode() = %v, want ErrAreaMismatch", err)
	}
	if alarm.Mode() != ModeStandby {
		t.Errorf("Mode() = %q after failed confirmation, want unchanged standby", alarm.Mode())
	}
}

func TestSetMode_ModeMismatch(t *testing.T) {
	rt := &fakeRequester{
		respond: func(_, _ string, _ any) ([]byte, error) {
			return []byte(`{"area": 1, "mode": "standby"}`), nil
		},
	}
	_, alarm := alarmForTest(t, rt)

	_, err := alarm.SetMode(context.Background(), ModeAway)
	if !errors.Is(err, ErrModeMismatch) {
		t.Fatalf("SetMode() = %v, want ErrModeMismatch", err)
	}
}

func TestSetMode_MixedCaseEchoAccepted(t *testing.T) {
	rt := &fakeRequester{
		respond: func(_, _ string, _ any) ([]byte, error) {
			return []byte(`{"area": 1, "mode": "AWAY"}`), nil
		},
	}
	_, alarm := alarmForTest(t, rt)

	got, err := alarm.SetMode(context.Background(), ModeAway)
	if err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if got != ModeAway {
		t.Errorf("SetMode() = %q, want %q", got, ModeAway)
	}
}

func TestSwitchOnUsesDefaultMode(t *testing.T) {
	rt := &fakeRequester{}
	rt.respond = modeResponder(t)
	reg, alarm := alarmForTest(t, rt)

	if err := reg.SetDefaultMode(ModeHome); err != nil {
		t.Fatalf("SetDefaultMode() error = %v", err)
	}
	got, err := alarm.SwitchOn(context.Background())
	if err != nil {
		t.Fatalf("SwitchOn() error = %v", err)
	}
	if got != ModeHome {
		t.Errorf("SwitchOn() = %q, want %q", got, ModeHome)
	}
	if !alarm.IsOn() || !alarm.IsHome() {
		t.Errorf("IsOn()/IsHome() false after SwitchOn, Mode() = %q", alarm.Mode())
	}

	if _, err := alarm.SwitchOff(context.Background()); err != nil {
		t.Fatalf("SwitchOff() error = %v", err)
	}
	if !alarm.IsStandby() {
		t.Errorf("IsStandby() false after SwitchOff, Mode() = %q", alarm.Mode())
	}
}

func TestSetDefaultMode_RejectsStandby(t *testing.T) {
	reg := NewRegistry(&fakeRequester{})

	if err := reg.SetDefaultMode(ModeStandby); !errors.Is(err, ErrInvalidDefaultMode) {
		t.Errorf("SetDefaultMode(standby) = %v, want ErrInvalidDefaultMode", err)
	}
	if err := reg.SetDefaultMode("Away"); err != nil {
		t.Errorf("SetDefaultMode(Away) error = %v", err)
	}
	if got := reg.DefaultMode(); got != ModeAway {
		t.Errorf("DefaultMode() = %q, want %q", got, ModeAway)
	}
}

func TestForceMode(t *testing.T) {
	_, alarm := alarmForTest(t, &fakeRequester{})

	alarm.ForceMode(ModeAway)
	if !alarm.IsAway() {
		t.Errorf("Mode() = %q after ForceMode, want away", alarm.Mode())
	}

	// ForceMode creates the mode map when the blob lacks one.
	bare, err := New(map[string]any{"id": "area_1", "type_tag": "device_type.alarm"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reg := NewRegistry(&fakeRequester{})
	a := &Alarm{Device: bare, area: "1", reg: reg}
	a.ForceMode(ModeHome)
	if !a.IsHome() {
		t.Errorf("Mode() = %q after ForceMode on bare blob, want home", a.Mode())
	}
}
