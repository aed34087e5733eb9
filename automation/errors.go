package automation

import "errors"

// Domain errors for the automation package, checkable with errors.Is().
var (
	// ErrAutomationNotFound is returned when an automation id is not in the registry.
	ErrAutomationNotFound = errors.New("automation: not found")

	// ErrNoAutomationID is returned when a server record carries no identifier.
	ErrNoAutomationID = errors.New("automation: record has no id")

	// ErrRefreshEmpty is returned when a targeted fetch returns no data.
	ErrRefreshEmpty = errors.New("automation: refresh returned no data")

	// ErrConfirmID is returned when an edit or refresh response names the wrong automation.
	ErrConfirmID = errors.New("automation: confirmation id mismatch")

	// ErrConfirmActive is returned when an edit response echoes the wrong is_active value.
	ErrConfirmActive = errors.New("automation: confirmation is_active mismatch")

	// ErrNotQuickAction is returned when Trigger is called on a scheduled automation.
	ErrNotQuickAction = errors.New("automation: only quick actions can be triggered")
)
