package hearth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Settings endpoints.
const (
	settingsPath = "/api/v1/panel/setting"
	areasPath    = "/api/v1/areas"
	soundsPath   = "/api/v1/sounds"
	sirenPath    = "/api/v1/siren"
)

// Panel settings.
const (
	SettingCameraResolution = "ircamera_resolution_t"
	SettingCameraGrayscale  = "ircamera_gray_t"
	SettingSilenceSounds    = "beeper_mute"
)

// Area settings.
const (
	SettingEntryDelayAway = "away_entry_delay"
	SettingExitDelayAway  = "away_exit_delay"
	SettingEntryDelayHome = "home_entry_delay"
	SettingExitDelayHome  = "home_exit_delay"
)

// Sound settings.
const (
	SettingDoorChime     = "door_chime"
	SettingWarningBeep   = "warning_beep"
	SettingEntryBeepAway = "entry_beep_away"
	SettingExitBeepAway  = "exit_beep_away"
	SettingEntryBeepHome = "entry_beep_home"
	SettingExitBeepHome  = "exit_beep_home"
	SettingConfirmSound  = "confirm_snd"
	SettingAlarmLength   = "alarm_len"
	SettingFinalBeeps    = "final_beep"
)

// Siren settings.
const (
	SettingSirenEntryExitSounds = "entry"
	SettingSirenTamperSounds    = "tamper"
	SettingSirenConfirmSounds   = "confirm"
)

// Common setting values.
const (
	SettingDisable = "0"
	SettingEnable  = "1"

	SettingCameraRes320x240 = "0"
	SettingCameraRes640x480 = "2"

	SettingSoundOff  = "none"
	SettingSoundLow  = "normal"
	SettingSoundHigh = "loud"
)

// Sentinel errors for setting changes.
var (
	// ErrInvalidSetting is returned for a setting name the panel does
	// not expose.
	ErrInvalidSetting = errors.New("hearth: invalid setting")

	// ErrInvalidSettingValue is returned when a value is outside the
	// set the panel accepts for that setting.
	ErrInvalidSettingValue = errors.New("hearth: invalid setting value")
)

// Value tables, keyed by setting, routing bucket implied by the map the
// setting appears in.
var (
	panelSettings = map[string][]string{
		SettingCameraResolution: {SettingCameraRes320x240, SettingCameraRes640x480},
		SettingCameraGrayscale:  {SettingDisable, SettingEnable},
		SettingSilenceSounds:    {SettingDisable, SettingEnable},
	}

	entryExitDelays = []string{"0", "10", "20", "30", "60", "120", "180", "240"}

	// The panel refuses away exit delays shorter than 30 seconds.
	awayExitDelays = []string{"30", "60", "120", "180", "240"}

	areaSettings = map[string][]string{
		SettingEntryDelayAway: entryExitDelays,
		SettingExitDelayAway:  awayExitDelays,
		SettingEntryDelayHome: entryExitDelays,
		SettingExitDelayHome:  entryExitDelays,
	}

	soundLevels = []string{SettingSoundOff, SettingSoundLow, SettingSoundHigh}

	alarmLengths = []string{
		"0", "60", "120", "180", "240", "300", "360", "420", "480",
		"540", "600", "660", "720", "780", "840", "900",
	}

	soundSettings = map[string][]string{
		SettingDoorChime:     soundLevels,
		SettingWarningBeep:   soundLevels,
		SettingEntryBeepAway: soundLevels,
		SettingExitBeepAway:  soundLevels,
		SettingEntryBeepHome: soundLevels,
		SettingExitBeepHome:  soundLevels,
		SettingConfirmSound:  soundLevels,
		SettingAlarmLength:   alarmLengths,
		SettingFinalBeeps:    finalBeeps,
	}

	// Seconds of final beeping before the exit delay ends; 1 and 2 are
	// not accepted by the panel.
	finalBeeps = []string{"0", "3", "4", "5", "6", "7", "8", "9", "10"}

	sirenSettings = map[string][]string{
		SettingSirenEntryExitSounds: {SettingDisable, SettingEnable},
		SettingSirenTamperSounds:    {SettingDisable, SettingEnable},
		SettingSirenConfirmSounds:   {SettingDisable, SettingEnable},
	}
)

// SetSetting changes one system setting. The setting name picks the
// endpoint (panel, area, sound or siren) and the value is validated
// against that setting's accepted set before any network call.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - setting: Setting name, e.g. SettingDoorChime
//   - value: New value, e.g. SettingSoundLow
//   - area: Panel area for area and sound settings; "" means area 1
//
// Returns:
//   - error: ErrInvalidSetting, ErrInvalidSettingValue, or the transport
//     error
func (c *Client) SetSetting(ctx context.Context, setting, value, area string) error {
	setting = strings.ToLower(strings.TrimSpace(setting))
	if area == "" {
		area = "1"
	}

	var (
		path string
		body map[string]string
	)
	switch {
	case hasSetting(panelSettings, setting):
		if err := checkValue(panelSettings, setting, value); err != nil {
			return err
		}
		path = settingsPath
		body = map[string]string{setting: value}

	case hasSetting(areaSettings, setting):
		if err := checkValue(areaSettings, setting, value); err != nil {
			return err
		}
		path = areasPath
		body = map[string]string{"area": area, setting: value}

	case hasSetting(soundSettings, setting):
		if err := checkValue(soundSettings, setting, value); err != nil {
			return err
		}
		path = soundsPath
		body = map[string]string{"area": area, setting: value}

	case hasSetting(sirenSettings, setting):
		if err := checkValue(sirenSettings, setting, value); err != nil {
			return err
		}
		path = sirenPath
		body = map[string]string{"action": setting, "option": value}

	default:
		return fmt.Errorf("%w: %q", ErrInvalidSetting, setting)
	}

	if _, err := c.session.Request(ctx, "put", path, body); err != nil {
		return fmt.Errorf("hearth: setting %s: %w", setting, err)
	}

	c.logger.Info("setting changed", "setting", setting, "value", value)
	return nil
}

func hasSetting(table map[string][]string, setting string) bool {
	_, ok := table[setting]
	return ok
}

func checkValue(table map[string][]string, setting, value string) error {
	for _, valid := range table[setting] {
		if value == valid {
			return nil
		}
	}
	return fmt.Errorf("%w: %s=%q (valid: %v)", ErrInvalidSettingValue, setting, value, table[setting])
}
