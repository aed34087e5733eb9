package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// REST endpoint paths owned by the automation layer.
const (
	// AutomationsPath lists every automation on the account.
	AutomationsPath = "/integrations/v1/automations/"

	// automationPathTemplate addresses one automation; $AUTOMATIONID$ is
	// substituted. Edits PUT to it, refreshes GET it.
	automationPathTemplate = "/integrations/v1/automations/$AUTOMATIONID$/"

	// triggerPathTemplate fires a quick action.
	triggerPathTemplate = "/integrations/v1/automations/$AUTOMATIONID$/apply"
)

// Requester is the authenticated transport the registry fetches from.
// *session.Session satisfies it.
type Requester interface {
	Request(ctx context.Context, method, path string, body any) ([]byte, error)
}

// Logger is the minimal logging interface used by the Registry.
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

// Registry is the in-memory store of account automations.
//
// Like the device registry it preserves identity across refreshes: a
// listing merges into existing Automation objects in place rather than
// replacing them.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Registry struct {
	rt     Requester
	logger Logger

	mu          sync.RWMutex
	automations map[string]*Automation
}

// NewRegistry creates an automation registry over the given transport.
func NewRegistry(rt Requester) *Registry {
	return &Registry{
		rt:          rt,
		logger:      noopLogger{},
		automations: make(map[string]*Automation),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshAll fetches the account's automation listing and merges it into
// the registry, preserving the identity of existing entries.
func (r *Registry) RefreshAll(ctx context.Context) error {
	body, err := r.rt.Request(ctx, "get", AutomationsPath, nil)
	if err != nil {
		return fmt.Errorf("fetching automations: %w", err)
	}

	raws, err := decodeRecords(body)
	if err != nil {
		return fmt.Errorf("decoding automation listing: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, raw := range raws {
		id := stringValue(raw[keyID])
		if id == "" {
			r.logger.Warn("skipping automation record with no id")
			continue
		}

		if existing, ok := r.automations[id]; ok {
			existing.Update(raw)
			continue
		}

		auto, err := New(raw)
		if err != nil {
			r.logger.Warn("skipping unmappable automation record", "id", id, "error", err)
			continue
		}
		r.automations[id] = auto
		r.logger.Debug("automation added", "id", id, "type", auto.GenericType())
	}
	return nil
}

// Get returns the automation with the given id, or nil when unknown.
func (r *Registry) Get(id string) *Automation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.automations[id]
}

// All returns every known automation.
func (r *Registry) All() []*Automation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	autos := make([]*Automation, 0, len(r.automations))
	for _, a := range r.automations {
		autos = append(autos, a)
	}
	return autos
}

// Count returns the number of known automations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.automations)
}

// Refresh issues a targeted fetch for one automation and merges the
// result in place after checking the echoed id.
//
// Returns:
//   - *Automation: The refreshed automation (same identity as before)
//   - error: ErrAutomationNotFound for unknown ids, ErrConfirmID when the
//     server answers for a different automation, or the transport error
func (r *Registry) Refresh(ctx context.Context, id string) (*Automation, error) {
	auto := r.Get(id)
	if auto == nil {
		return nil, fmt.Errorf("%w: %s", ErrAutomationNotFound, id)
	}

	path := strings.ReplaceAll(automationPathTemplate, "$AUTOMATIONID$", id)
	body, err := r.rt.Request(ctx, "get", path, nil)
	if err != nil {
		return nil, err
	}

	raw, err := decodeRecord(body)
	if err != nil {
		return nil, fmt.Errorf("decoding refresh response for %s: %w", id, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrRefreshEmpty, id)
	}
	if echoed := stringValue(raw[keyID]); echoed != id {
		return nil, fmt.Errorf("%w: requested %s, got %s", ErrConfirmID, id, echoed)
	}

	auto.Update(raw)
	r.logger.Debug("automation refreshed", "id", id)
	return auto, nil
}

// SetActive enables or disables an automation and validates the server's
// echoed confirmation before touching local state.
//
// The full record is sent with is_active edited to "1" or "0". When the
// echoed id or is_active does not match the request the local record is
// left untouched, so the cache never diverges from confirmed server
// state.
//
// Returns:
//   - error: ErrConfirmID / ErrConfirmActive on a bad echo, or the
//     transport error
func (r *Registry) SetActive(ctx context.Context, auto *Automation, active bool) error {
	want := "0"
	if active {
		want = "1"
	}

	edited := auto.snapshot()
	edited[keyIsActive] = want

	path := strings.ReplaceAll(automationPathTemplate, "$AUTOMATIONID$", auto.ID())
	respBody, err := r.rt.Request(ctx, "put", path, edited)
	if err != nil {
		return err
	}

	resp, err := decodeRecord(respBody)
	if err != nil {
		return fmt.Errorf("decoding edit response for %s: %w", auto.ID(), err)
	}
	if echoed := stringValue(resp[keyID]); echoed != auto.ID() {
		return fmt.Errorf("%w: requested %s, got %s", ErrConfirmID, auto.ID(), echoed)
	}
	if echoed := stringValue(resp[keyIsActive]); echoed != want {
		return fmt.Errorf("%w: requested %s, got %s", ErrConfirmActive, want, echoed)
	}

	auto.setField(keyIsActive, want)
	auto.Update(resp)

	r.logger.Info("automation edited", "id", auto.ID(), "active", active)
	return nil
}

// Trigger fires a quick action. Scheduled automations run on their own
// conditions and cannot be triggered remotely.
func (r *Registry) Trigger(ctx context.Context, auto *Automation) error {
	if !auto.IsQuickAction() {
		return fmt.Errorf("%w: %s is type %q", ErrNotQuickAction, auto.ID(), auto.Type())
	}

	path := strings.ReplaceAll(triggerPathTemplate, "$AUTOMATIONID$", auto.ID())
	if _, err := r.rt.Request(ctx, "put", path, auto.snapshot()); err != nil {
		return err
	}

	r.logger.Info("quick action triggered", "id", auto.ID())
	return nil
}

// decodeRecords parses a listing response that may be a single object or
// an array into a uniform slice.
func decodeRecords(body []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var raws []map[string]any
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, err
		}
		return raws, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return []map[string]any{raw}, nil
}

// decodeRecord parses a single-automation response. Some deployments wrap
// it in a one-element array; the first element is taken.
func decodeRecord(body []byte) (map[string]any, error) {
	raws, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, nil
	}
	return raws[0], nil
}
