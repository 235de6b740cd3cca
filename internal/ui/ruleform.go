package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"qubeconf/internal/handler"
	"qubeconf/internal/policy"
)

const (
	fieldSource = iota
	fieldTarget
	fieldAction
)

// RuleFormModel edits one rule: source, target and action. Default rules
// expose only the action.
type RuleFormModel struct {
	styles *Styles

	rowID      string
	source     textinput.Model
	target     textinput.Model
	action     policy.Action
	labels     map[policy.Action]string
	actionOnly bool
	focus      int
	errText    string
	width      int
}

// actionOrder fixes the cycle order for the action field.
var actionOrder = []policy.Action{policy.Allow, policy.Ask, policy.Deny}

// NewRuleForm creates an empty rule form.
func NewRuleForm(styles *Styles) RuleFormModel {
	src := textinput.New()
	src.Placeholder = "source qube or @token"
	src.CharLimit = 64
	tgt := textinput.New()
	tgt.Placeholder = "target qube or @token"
	tgt.CharLimit = 64
	return RuleFormModel{styles: styles, source: src, target: tgt}
}

// Start loads a row into the form. actionOnly restricts editing to the
// action field, used for default rules.
func (m *RuleFormModel) Start(row *handler.Row, actionOnly bool) {
	m.rowID = row.ID
	m.source.SetValue(row.View.Source())
	m.target.SetValue(row.View.Target())
	m.action = row.View.Action()
	m.labels = row.View.ActionLabels()
	m.actionOnly = actionOnly
	m.errText = ""
	m.source.Blur()
	m.target.Blur()
	if actionOnly {
		m.focus = fieldAction
	} else {
		m.focus = fieldSource
		m.source.Focus()
	}
}

// SetWidth updates the form width.
func (m *RuleFormModel) SetWidth(w int) {
	m.width = w
	m.source.Width = w - 16
	m.target.Width = w - 16
}

// RowID returns the row being edited.
func (m *RuleFormModel) RowID() string { return m.rowID }

// Source returns the entered source token.
func (m *RuleFormModel) Source() string { return strings.TrimSpace(m.source.Value()) }

// Target returns the entered target token.
func (m *RuleFormModel) Target() string { return strings.TrimSpace(m.target.Value()) }

// Action returns the selected action.
func (m *RuleFormModel) Action() policy.Action { return m.action }

// SetError shows a validation error inside the form.
func (m *RuleFormModel) SetError(text string) { m.errText = text }

func (m *RuleFormModel) cycleAction(delta int) {
	idx := 0
	for i, a := range actionOrder {
		if a == m.action {
			idx = i
			break
		}
	}
	for range actionOrder {
		idx = (idx + delta + len(actionOrder)) % len(actionOrder)
		if _, ok := m.labels[actionOrder[idx]]; ok {
			m.action = actionOrder[idx]
			return
		}
	}
}

func (m *RuleFormModel) setFocus(field int) {
	m.focus = field
	m.source.Blur()
	m.target.Blur()
	switch field {
	case fieldSource:
		m.source.Focus()
	case fieldTarget:
		m.target.Focus()
	}
}

// Update handles form keys. Enter and esc are interpreted by the caller.
func (m RuleFormModel) Update(msg tea.Msg) (RuleFormModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			if !m.actionOnly {
				m.setFocus((m.focus + 1) % 3)
			}
			return m, nil
		case "shift+tab", "up":
			if !m.actionOnly {
				m.setFocus((m.focus + 2) % 3)
			}
			return m, nil
		case "left":
			if m.focus == fieldAction {
				m.cycleAction(-1)
				return m, nil
			}
		case "right", " ":
			if m.focus == fieldAction {
				m.cycleAction(1)
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	switch m.focus {
	case fieldSource:
		m.source, cmd = m.source.Update(msg)
	case fieldTarget:
		m.target, cmd = m.target.Update(msg)
	}
	return m, cmd
}

func (m RuleFormModel) fieldLabel(field int, text string) string {
	if m.focus == field {
		return m.styles.Selected.Render("> " + text)
	}
	return m.styles.Label.Render("  " + text)
}

// View renders the form dialog.
func (m RuleFormModel) View() string {
	var b strings.Builder
	title := "Edit rule"
	if m.actionOnly {
		title = "Edit default rule"
	}
	b.WriteString(m.styles.DialogTitle.Render(title))
	b.WriteString("\n\n")

	if !m.actionOnly {
		b.WriteString(m.fieldLabel(fieldSource, "Source: "))
		b.WriteString(m.source.View())
		b.WriteString("\n")
		b.WriteString(m.fieldLabel(fieldTarget, "Target: "))
		b.WriteString(m.target.View())
		b.WriteString("\n")
	}

	label := m.labels[m.action]
	if label == "" {
		label = string(m.action)
	}
	b.WriteString(m.fieldLabel(fieldAction, "Action: "))
	b.WriteString(m.styles.Value.Render("< " + label + " >"))
	b.WriteString("\n")

	if m.errText != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.StatusErr.Render(m.errText))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("tab next field   ←/→ change action   enter apply   esc cancel"))

	return m.styles.Dialog.Width(m.width).Render(b.String())
}
