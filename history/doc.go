// Package history persists timeline events to a local SQLite database.
//
// The cloud keeps the account timeline server-side and trims it on its
// own schedule; this store gives callers a durable local copy. It is
// typically wired as an all-events timeline callback on the event
// controller, with Prune run periodically against a retention window.
package history
