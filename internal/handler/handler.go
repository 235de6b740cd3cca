// Package handler reconciles structured rule editing state with managed
// policy files. A Handler owns one semantic policy domain (clipboard, file
// copy, update proxy, ...) and maps between its managed file and a fixed
// editing shape: a primary rule list, an exception list, a default/custom
// toggle and a raw-text path for anything the structured shape cannot hold.
package handler

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"qubeconf/internal/manager"
	"qubeconf/internal/policy"
	"qubeconf/internal/store"
)

// Reconciler is the contract between a rule-list domain model and an
// editing surface.
type Reconciler interface {
	// LoadFromStorage reads the managed file and rebuilds editing state.
	LoadFromStorage() error
	// ExportToRules serializes the current editing state in canonical
	// order: protected system rules first, then exceptions that a primary
	// rule would shadow, then the primary rules, then the remaining
	// exceptions in display order.
	ExportToRules() []policy.Rule
	// ApplyToStorage writes the exported rules back, atomically and in
	// full, guarded by the load-time token.
	ApplyToStorage() error
}

// Editing errors surfaced to the UI. They are rejected at the point of the
// attempted mutation, never deferred to save time.
var (
	// ErrProtected marks rules the tool did not author (or cannot fully
	// represent); they are visible but only the raw path may change them.
	ErrProtected = errors.New("rule is not editable through the structured list")
	// ErrLocked marks rules that need an explicit unlock before editing.
	ErrLocked = errors.New("rule must be unlocked before editing")
)

// ConflictError reports an edit that would make a rule dead or shadow
// another rule under first-match-wins.
type ConflictError struct {
	Other string // rendering of the conflicting rule
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("rule conflicts with existing rule: %s", e.Other)
}

// Row is one rule in the editing surface.
type Row struct {
	ID   string
	View policy.View

	// Protected rows were not authored by this tool or cannot be fully
	// represented; the structured surface never mutates or removes them.
	Protected bool
	// RequireConfirm rows existed before this session; they demand an
	// explicit Unlock before the first mutation.
	RequireConfirm bool
	// IsNew rows were added this session and vanish on discard.
	IsNew bool

	unlocked bool
	initial  policy.Rule
}

// Changed reports whether the row differs from its loaded state.
func (r *Row) Changed() bool {
	return !r.View.Rule().Equal(r.initial)
}

// Unlocked reports whether the row may currently be edited.
func (r *Row) Unlocked() bool { return r.unlocked }

// Config fixes a Handler to its domain.
type Config struct {
	// Service is the qrexec service this domain controls.
	Service string
	// FileName is the managed policy file (reserved tool prefix).
	FileName string
	// DefaultPolicy seeds the file when absent and is what "use default"
	// reverts to.
	DefaultPolicy string
	// ViewKind selects how rules fold qualifier parameters for display.
	ViewKind policy.ViewKind
}

// Handler reconciles one policy domain. Not safe for concurrent use; all
// access happens on the UI loop.
type Handler struct {
	mgr *manager.Manager
	cfg Config

	primary    []*Row
	exceptions []*Row
	custom     bool

	token        string
	initialRules []policy.Rule
	conflicts    []string
	loadErr      *policy.ErrorList
}

// New creates a handler; call LoadFromStorage before use.
func New(mgr *manager.Manager, cfg Config) *Handler {
	return &Handler{mgr: mgr, cfg: cfg}
}

// Service returns the handled qrexec service name.
func (h *Handler) Service() string { return h.cfg.Service }

// FileName returns the managed policy file name.
func (h *Handler) FileName() string { return h.cfg.FileName }

// LoadFromStorage implements Reconciler.
func (h *Handler) LoadFromStorage() error {
	conflicts, err := h.mgr.ConflictingFiles(h.cfg.Service, h.cfg.FileName)
	if err != nil {
		return fmt.Errorf("conflict check for %s: %w", h.cfg.Service, err)
	}
	h.conflicts = conflicts

	rules, token, err := h.mgr.RulesFromFile(h.cfg.FileName, h.cfg.DefaultPolicy)
	h.loadErr = nil
	if err != nil {
		var list *policy.ErrorList
		if !errors.As(err, &list) {
			return err
		}
		// Malformed lines in our own file: surface the problem, leave the
		// file untouched, fall back to the raw path only.
		h.loadErr = list
		return list
	}

	h.token = token
	h.initialRules = cloneRules(rules)
	h.populate(rules, false)
	h.custom = !h.mgr.CompareRulesToText(rules, h.cfg.DefaultPolicy)
	return nil
}

// Conflicts lists higher-precedence files that shadow this domain. The UI
// must show them before edits are allowed.
func (h *Handler) Conflicts() []string { return h.conflicts }

// LoadProblems returns parse problems found in the managed file, if any.
func (h *Handler) LoadProblems() *policy.ErrorList { return h.loadErr }

// populate rebuilds the row lists from rules. Existing exception rows
// demand confirmation before edits unless fresh is set (raw-path rebuilds
// count as already confirmed).
func (h *Handler) populate(rules []policy.Rule, fresh bool) {
	h.primary = nil
	h.exceptions = nil
	primaryPairs := h.defaultPairs()
	for _, rule := range rules {
		row := &Row{
			ID:             uuid.NewString(),
			View:           policy.WrapRule(h.cfg.ViewKind, rule),
			initial:        rule.Clone(),
			RequireConfirm: !fresh,
			unlocked:       fresh,
		}
		switch {
		case rule.Source == policy.TokenAdminVM:
			// Admin qube rules ship with the system; read-only here.
			row.Protected = true
			h.exceptions = append(h.exceptions, row)
		case !h.representable(rule):
			row.Protected = true
			h.exceptions = append(h.exceptions, row)
		case primaryPairs[rule.Source+"\x00"+rule.Target]:
			// The default rule for this domain: its action is the main
			// editing control, no unlock step.
			row.RequireConfirm = false
			row.unlocked = true
			h.primary = append(h.primary, row)
		default:
			h.exceptions = append(h.exceptions, row)
		}
	}
}

// defaultPairs returns the (source, target) pairs of the domain's default
// policy. A loaded rule covering one of these pairs is a primary rule, not
// an exception.
func (h *Handler) defaultPairs() map[string]bool {
	pairs := map[string]bool{}
	rules, err := h.mgr.TextToRules(h.cfg.DefaultPolicy)
	if err != nil {
		return pairs
	}
	for _, rule := range rules {
		pairs[rule.Source+"\x00"+rule.Target] = true
	}
	return pairs
}

// representable reports whether the structured surface can fully express a
// rule; everything else flows through the raw path only.
func (h *Handler) representable(rule policy.Rule) bool {
	if rule.Argument != "*" || !rule.MatchesService(h.cfg.Service) {
		return false
	}
	if _, ok := policy.WrapRule(h.cfg.ViewKind, rule).ActionLabels()[rule.Action]; !ok {
		return false
	}
	for key := range rule.Params {
		switch {
		case key == "target" && h.cfg.ViewKind == policy.ViewTargeted:
		case key == "default_target" && h.cfg.ViewKind == policy.ViewTargeted:
		default:
			return false
		}
	}
	return true
}

// Primary returns the primary rule rows.
func (h *Handler) Primary() []*Row { return h.primary }

// Exceptions returns the exception rows in display order.
func (h *Handler) Exceptions() []*Row { return h.exceptions }

// CustomEnabled reports whether custom policy editing is on (as opposed to
// "use default policy").
func (h *Handler) CustomEnabled() bool { return h.custom }

// SetCustom toggles between the default policy and custom editing. Turning
// custom off reverts the rows to the default policy's rules.
func (h *Handler) SetCustom(enabled bool) {
	if h.custom == enabled {
		return
	}
	h.custom = enabled
	if !enabled {
		rules, err := h.mgr.TextToRules(h.cfg.DefaultPolicy)
		if err == nil {
			h.populate(rules, false)
		}
	}
}

// AddRule appends a new, session-local deny rule to the exception list and
// returns it for immediate editing.
func (h *Handler) AddRule() (*Row, error) {
	if !h.custom {
		return nil, errors.New("enable custom policy before adding rules")
	}
	rule := h.mgr.NewRule(h.cfg.Service, policy.TokenAnyVM, policy.TokenAnyVM, policy.Deny)
	row := &Row{
		ID:       uuid.NewString(),
		View:     policy.WrapRule(h.cfg.ViewKind, rule),
		initial:  rule.Clone(),
		IsNew:    true,
		unlocked: true,
	}
	h.exceptions = append(h.exceptions, row)
	return row, nil
}

// Unlock marks a confirmation-gated row as editable for this session.
func (h *Handler) Unlock(id string) error {
	row := h.findRow(id)
	if row == nil {
		return fmt.Errorf("no such rule row %s", id)
	}
	if row.Protected {
		return ErrProtected
	}
	row.unlocked = true
	return nil
}

// UpdateRow applies an edit to a row. Protected rows and still-locked rows
// are rejected; so are edits that collide with another rule. Primary rows
// accept action changes only; their source and target are fixed.
func (h *Handler) UpdateRow(id, source, target string, action policy.Action) error {
	row := h.findRow(id)
	if row == nil {
		return fmt.Errorf("no such rule row %s", id)
	}
	if row.Protected {
		return ErrProtected
	}
	if h.isPrimary(row) {
		if source != row.View.Source() || target != row.View.Target() {
			return ErrProtected
		}
		row.View.SetAction(action)
		return nil
	}
	if row.RequireConfirm && !row.unlocked {
		return ErrLocked
	}
	if err := policy.ValidateSource(source); err != nil {
		return err
	}
	if err := policy.ValidateTarget(target); err != nil {
		return err
	}

	candidate := row.View.Rule()
	view := policy.WrapRule(h.cfg.ViewKind, candidate)
	view.SetSource(source)
	view.SetAction(action)
	view.SetTarget(target)

	if other := h.findConflicting(row, view.Rule()); other != nil {
		return &ConflictError{Other: describeRow(other)}
	}

	row.View.SetSource(source)
	row.View.SetAction(action)
	row.View.SetTarget(target)
	return nil
}

// findConflicting returns a row whose rule overlaps the candidate's
// (source, target) coverage, making one of them dead.
func (h *Handler) findConflicting(self *Row, candidate policy.Rule) *Row {
	for _, row := range h.exceptions {
		if row == self || (row.IsNew && !row.Changed()) {
			continue
		}
		if row.View.Rule().Overlaps(candidate) {
			return row
		}
	}
	return nil
}

// DeleteRow removes an exception row.
func (h *Handler) DeleteRow(id string) error {
	for _, row := range h.primary {
		if row.ID == id {
			return ErrProtected
		}
	}
	for i, row := range h.exceptions {
		if row.ID != id {
			continue
		}
		if row.Protected {
			return ErrProtected
		}
		if row.RequireConfirm && !row.unlocked {
			return ErrLocked
		}
		h.exceptions = append(h.exceptions[:i], h.exceptions[i+1:]...)
		return nil
	}
	return fmt.Errorf("no such rule row %s", id)
}

// MoveRow shifts an exception row up (negative delta) or down within the
// display order. Order is meaningful: first match wins.
func (h *Handler) MoveRow(id string, delta int) error {
	for _, row := range h.primary {
		if row.ID == id {
			return ErrProtected
		}
	}
	for i, row := range h.exceptions {
		if row.ID != id {
			continue
		}
		j := i + delta
		if j < 0 || j >= len(h.exceptions) {
			return nil
		}
		h.exceptions[i], h.exceptions[j] = h.exceptions[j], h.exceptions[i]
		return nil
	}
	return fmt.Errorf("no such rule row %s", id)
}

// ExportToRules implements Reconciler. With custom policy off it returns
// the default policy's rules.
func (h *Handler) ExportToRules() []policy.Rule {
	if !h.custom {
		rules, err := h.mgr.TextToRules(h.cfg.DefaultPolicy)
		if err == nil {
			return rules
		}
	}
	primaries := make([]policy.Rule, 0, len(h.primary))
	for _, row := range h.primary {
		primaries = append(primaries, row.View.Rule())
	}

	var rules []policy.Rule
	// Protected rules keep precedence over everything the tool manages.
	for _, row := range h.exceptions {
		if row.Protected {
			rules = append(rules, row.View.Rule())
		}
	}
	// An exception covered by a primary rule must precede it: under
	// first-match-wins a catch-all default would otherwise make every
	// override dead. Non-overlapping exceptions stay after the primaries.
	var shadowed, rest []policy.Rule
	for _, row := range h.exceptions {
		if row.Protected {
			continue
		}
		if row.IsNew && !row.Changed() {
			// An added-then-abandoned row is not persisted.
			continue
		}
		rule := row.View.Rule()
		if overlapsAny(rule, primaries) {
			shadowed = append(shadowed, rule)
		} else {
			rest = append(rest, rule)
		}
	}
	rules = append(rules, shadowed...)
	rules = append(rules, primaries...)
	rules = append(rules, rest...)
	return rules
}

func overlapsAny(rule policy.Rule, others []policy.Rule) bool {
	for _, other := range others {
		if rule.Overlaps(other) {
			return true
		}
	}
	return false
}

// RawText renders the current editing state the way it would be saved.
func (h *Handler) RawText() string {
	return h.mgr.RulesToText(h.ExportToRules())
}

// SetRaw replaces the editing state from raw policy text. Malformed rule
// lines reject the whole edit; nothing is written to disk.
func (h *Handler) SetRaw(text string) error {
	rules, err := h.mgr.TextToRules(text)
	if err != nil {
		return err
	}
	h.populate(rules, true)
	h.custom = !h.mgr.CompareRulesToText(rules, h.cfg.DefaultPolicy)
	return nil
}

// StagedUpdate returns the pending write for transactional multi-file
// saves. Call MarkSaved once the update has been committed.
func (h *Handler) StagedUpdate() store.Update {
	return store.Update{
		Name:  h.cfg.FileName,
		Text:  h.mgr.RulesToText(h.ExportToRules()),
		Token: h.token,
	}
}

// MarkSaved refreshes the token and the change baseline after a save.
func (h *Handler) MarkSaved() error {
	// Re-read for the fresh token; the content is what was just written.
	_, token, err := h.mgr.RulesFromFile(h.cfg.FileName, h.cfg.DefaultPolicy)
	if err != nil {
		return err
	}
	h.token = token
	h.initialRules = cloneRules(h.ExportToRules())
	return nil
}

// ApplyToStorage implements Reconciler.
func (h *Handler) ApplyToStorage() error {
	if err := h.mgr.SaveRules(h.cfg.FileName, h.ExportToRules(), h.token); err != nil {
		return err
	}
	return h.MarkSaved()
}

// Reset discards all in-memory edits, restoring the last loaded or saved
// state. The on-disk file is untouched.
func (h *Handler) Reset() {
	rules := cloneRules(h.initialRules)
	h.populate(rules, false)
	h.custom = !h.mgr.CompareRulesToText(rules, h.cfg.DefaultPolicy)
}

// UnsavedChanges returns a short description of unsaved edits, or "".
func (h *Handler) UnsavedChanges() string {
	current := h.ExportToRules()
	if len(current) != len(h.initialRules) {
		return "policy rules"
	}
	for i := range current {
		if !current[i].Equal(h.initialRules[i]) {
			return "policy rules"
		}
	}
	return ""
}

func (h *Handler) isPrimary(row *Row) bool {
	for _, p := range h.primary {
		if p == row {
			return true
		}
	}
	return false
}

func (h *Handler) findRow(id string) *Row {
	for _, row := range h.primary {
		if row.ID == id {
			return row
		}
	}
	for _, row := range h.exceptions {
		if row.ID == id {
			return row
		}
	}
	return nil
}

func describeRow(row *Row) string {
	view := row.View
	return fmt.Sprintf("%s -> %s (%s)", view.Source(), view.Target(), view.Action())
}

func cloneRules(rules []policy.Rule) []policy.Rule {
	out := make([]policy.Rule, len(rules))
	for i, rule := range rules {
		out[i] = rule.Clone()
	}
	return out
}
