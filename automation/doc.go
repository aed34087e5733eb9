// Package automation provides access to the CUE automations and quick
// actions configured on a Hearth account.
//
// Automations follow the same identity-preserving rules as devices: the
// registry merges listing data into existing Automation objects in place,
// so references obtained before a refresh stay valid after it.
//
// Writes are confirmed before local state changes. Enabling or disabling
// an automation sends the full edited record and validates the server's
// echoed id and is_active against the request; a failed check leaves the
// local record untouched.
package automation
