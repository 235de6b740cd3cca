package handler

import (
	"fmt"

	"qubeconf/internal/manager"
	"qubeconf/internal/policy"
	"qubeconf/internal/store"
)

// FixedHandler manages a policy file with an exact, known shape: one rule
// per service from a fixed list, where only the action is editable. Used
// for the input-device policies (keyboard, mouse, tablet), which always
// route from the USB qube to the admin qube.
type FixedHandler struct {
	mgr      *manager.Manager
	fileName string
	services []string
	source   string
	target   string

	actions  map[string]policy.Action
	initial  map[string]policy.Action
	token    string
	warnings []string
}

// NewFixed creates a fixed-shape handler for the given services, with
// every rule going source -> target.
func NewFixed(mgr *manager.Manager, fileName string, services []string, source, target string) *FixedHandler {
	return &FixedHandler{
		mgr:      mgr,
		fileName: fileName,
		services: services,
		source:   source,
		target:   target,
		actions:  map[string]policy.Action{},
		initial:  map[string]policy.Action{},
	}
}

// FileName returns the managed policy file name.
func (h *FixedHandler) FileName() string { return h.fileName }

// Services returns the fixed service list in display order.
func (h *FixedHandler) Services() []string { return h.services }

// LoadFromStorage implements Reconciler. Rules outside the expected shape
// are reported as warnings and rewritten on the next save.
func (h *FixedHandler) LoadFromStorage() error {
	rules, token, err := h.mgr.RulesFromFile(h.fileName, h.defaultPolicy())
	if err != nil {
		return err
	}
	h.token = token
	h.warnings = nil
	h.actions = map[string]policy.Action{}

	known := map[string]bool{}
	for _, service := range h.services {
		known[service] = true
		h.actions[service] = policy.Deny
	}
	for _, rule := range rules {
		if !known[rule.Service] || rule.Source != h.source || rule.Target != h.target {
			h.warnings = append(h.warnings,
				fmt.Sprintf("%s: unexpected rule %q will be rewritten on save", h.fileName, rule.String()))
			continue
		}
		h.actions[rule.Service] = rule.Action
	}
	if len(rules) != len(h.services) {
		h.warnings = append(h.warnings,
			fmt.Sprintf("%s: expected %d rules, found %d", h.fileName, len(h.services), len(rules)))
	}

	h.initial = map[string]policy.Action{}
	for service, action := range h.actions {
		h.initial[service] = action
	}
	return nil
}

func (h *FixedHandler) defaultPolicy() string {
	var rules []policy.Rule
	for _, service := range h.services {
		rules = append(rules, h.mgr.NewRule(service, h.source, h.target, policy.Deny))
	}
	text := ""
	for _, rule := range rules {
		text += rule.String() + "\n"
	}
	return text
}

// Warnings lists shape mismatches found at load time.
func (h *FixedHandler) Warnings() []string { return h.warnings }

// Action returns the current action for a service.
func (h *FixedHandler) Action(service string) policy.Action {
	return h.actions[service]
}

// SetAction stages a new action for a service.
func (h *FixedHandler) SetAction(service string, action policy.Action) error {
	if _, ok := h.actions[service]; !ok {
		return fmt.Errorf("service %s is not managed by %s", service, h.fileName)
	}
	h.actions[service] = action
	return nil
}

// ExportToRules implements Reconciler; one rule per service, fixed order.
func (h *FixedHandler) ExportToRules() []policy.Rule {
	var rules []policy.Rule
	for _, service := range h.services {
		rules = append(rules, h.mgr.NewRule(service, h.source, h.target, h.actions[service]))
	}
	return rules
}

// StagedUpdate returns the pending write for transactional multi-file
// saves. Call MarkSaved once the update has been committed.
func (h *FixedHandler) StagedUpdate() store.Update {
	return store.Update{
		Name:  h.fileName,
		Text:  h.mgr.RulesToText(h.ExportToRules()),
		Token: h.token,
	}
}

// MarkSaved refreshes the token and the change baseline after a save.
func (h *FixedHandler) MarkSaved() error {
	_, token, err := h.mgr.RulesFromFile(h.fileName, h.defaultPolicy())
	if err != nil {
		return err
	}
	h.token = token
	for service, action := range h.actions {
		h.initial[service] = action
	}
	return nil
}

// ApplyToStorage implements Reconciler.
func (h *FixedHandler) ApplyToStorage() error {
	if err := h.mgr.SaveRules(h.fileName, h.ExportToRules(), h.token); err != nil {
		return err
	}
	return h.MarkSaved()
}

// Reset discards staged action changes.
func (h *FixedHandler) Reset() {
	for service, action := range h.initial {
		h.actions[service] = action
	}
}

// UnsavedChanges names the services with staged edits, or returns nil.
func (h *FixedHandler) UnsavedChanges() []string {
	var unsaved []string
	for _, service := range h.services {
		if h.actions[service] != h.initial[service] {
			unsaved = append(unsaved, service)
		}
	}
	return unsaved
}
