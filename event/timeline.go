package event

import (
	"encoding/json"
	"strconv"
)

// Group buckets timeline events by what happened: an alarm firing, a
// panel arming, a camera capture. Group callbacks receive every event
// whose code falls inside the group's range.
type Group string

// Timeline event groups.
const (
	GroupAlarm          Group = "hearth_alarm"
	GroupAlarmEnd       Group = "hearth_alarm_end"
	GroupPanelFault     Group = "hearth_panel_fault"
	GroupPanelRestore   Group = "hearth_panel_restore"
	GroupDisarm         Group = "hearth_disarm"
	GroupArm            Group = "hearth_arm"
	GroupArmFault       Group = "hearth_arm_fault"
	GroupTest           Group = "hearth_test"
	GroupCapture        Group = "hearth_capture"
	GroupDevice         Group = "hearth_device"
	GroupAutomation     Group = "hearth_automation"
	GroupAutomationEdit Group = "hearth_automation_edited"
)

// AllGroups returns every registrable event group.
func AllGroups() []Group {
	return []Group{
		GroupAlarm, GroupAlarmEnd, GroupPanelFault, GroupPanelRestore,
		GroupDisarm, GroupArm, GroupArmFault, GroupTest, GroupCapture,
		GroupDevice, GroupAutomation, GroupAutomationEdit,
	}
}

// ValidGroup reports whether g is a registrable event group.
func ValidGroup(g Group) bool {
	for _, known := range AllGroups() {
		if g == known {
			return true
		}
	}
	return false
}

// CodeAllEvents is the sentinel event code that matches every timeline
// event. Callbacks registered under it fire for all codes.
const CodeAllEvents = "0"

// TimelineEvent is one entry on the account's activity timeline, as
// delivered on the push channel or read back from the history store.
type TimelineEvent struct {
	EventCode  string      `json:"event_code"`
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	EventUTC   json.Number `json:"event_utc"`
	Date       string      `json:"date"`
	Time       string      `json:"time"`
	DeviceID   string      `json:"device_id"`
	DeviceName string      `json:"device_name"`
	DeviceType string      `json:"device_type"`
}

// UnixTime returns the event's UTC timestamp in seconds, or 0 when the
// server omitted it.
func (e TimelineEvent) UnixTime() int64 {
	n, err := e.EventUTC.Int64()
	if err != nil {
		return 0
	}
	return n
}

// MapEventCode maps a timeline event code onto its group. The ranges are
// fixed by the cloud's event numbering; codes outside every range return
// false.
func MapEventCode(code string) (Group, bool) {
	n, err := strconv.Atoi(code)
	if err != nil {
		return "", false
	}

	switch {
	case 1100 <= n && n <= 1199:
		return GroupAlarm, true
	case 3100 <= n && n <= 3199:
		return GroupAlarmEnd, true
	case 1300 <= n && n <= 1399:
		return GroupPanelFault, true
	case 3300 <= n && n <= 3399:
		return GroupPanelRestore, true
	case 1400 <= n && n <= 1499:
		return GroupDisarm, true
	case 3400 <= n && n <= 3799:
		return GroupArm, true
	case 1600 <= n && n <= 1699:
		return GroupTest, true
	case 5000 <= n && n <= 5099:
		return GroupCapture, true
	case 5100 <= n && n <= 5199:
		return GroupDevice, true
	case 5200 <= n && n <= 5299:
		return GroupAutomation, true
	case 6000 <= n && n <= 6100:
		return GroupArmFault, true
	}
	return "", false
}
