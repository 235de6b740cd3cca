package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmModel is a yes/no prompt. The caller interprets the answer; this
// model only renders and tracks focus.
type ConfirmModel struct {
	styles  *Styles
	Title   string
	Lines   []string
	YesText string
	NoText  string
	yes     bool
	width   int
}

// NewConfirm creates a confirm dialog with default button labels.
func NewConfirm(styles *Styles) ConfirmModel {
	return ConfirmModel{styles: styles, YesText: "Yes", NoText: "No"}
}

// Reset prepares the dialog for a new question, focus on "no".
func (m *ConfirmModel) Reset(title string, lines ...string) {
	m.Title = title
	m.Lines = lines
	m.yes = false
}

// SetWidth updates the dialog width.
func (m *ConfirmModel) SetWidth(w int) { m.width = w }

// Toggle flips the focused button.
func (m *ConfirmModel) Toggle() { m.yes = !m.yes }

// Yes reports whether the "yes" button is focused.
func (m *ConfirmModel) Yes() bool { return m.yes }

// View renders the dialog.
func (m ConfirmModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.DialogTitle.Render(m.Title))
	b.WriteString("\n")
	for _, line := range m.Lines {
		b.WriteString("\n")
		b.WriteString(m.styles.Label.Render(line))
	}

	yes := m.styles.Button.Render(m.YesText)
	no := m.styles.ButtonFocus.Render(m.NoText)
	if m.yes {
		yes = m.styles.ButtonFocus.Render(m.YesText)
		no = m.styles.Button.Render(m.NoText)
	}
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, yes, "  ", no))
	b.WriteString("\n\n")
	b.WriteString(m.styles.Help.Render("←/→ switch   enter confirm   esc cancel"))

	return m.styles.Dialog.Width(m.width).Render(b.String())
}

// PickerModel is a single-choice list used for property values, templates,
// labels and similar option sets.
type PickerModel struct {
	styles  *Styles
	Title   string
	Options []string
	cursor  int
	width   int
}

// NewPicker creates an empty picker.
func NewPicker(styles *Styles) PickerModel {
	return PickerModel{styles: styles}
}

// Reset loads a new option set and positions the cursor on current when
// present.
func (m *PickerModel) Reset(title string, options []string, current string) {
	m.Title = title
	m.Options = options
	m.cursor = 0
	for i, opt := range options {
		if opt == current {
			m.cursor = i
			break
		}
	}
}

// SetWidth updates the dialog width.
func (m *PickerModel) SetWidth(w int) { m.width = w }

// Move shifts the cursor, clamped to the option list.
func (m *PickerModel) Move(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.Options) {
		m.cursor = len(m.Options) - 1
	}
}

// Selected returns the option under the cursor.
func (m *PickerModel) Selected() string {
	if len(m.Options) == 0 {
		return ""
	}
	return m.Options[m.cursor]
}

// View renders the picker.
func (m PickerModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.DialogTitle.Render(m.Title))
	b.WriteString("\n\n")
	for i, opt := range m.Options {
		label := opt
		if label == "" {
			label = "(none)"
		}
		if i == m.cursor {
			b.WriteString(m.styles.Selected.Render("> " + label))
		} else {
			b.WriteString(m.styles.Row.Render("  " + label))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("j/k move   enter select   esc cancel"))

	return m.styles.Dialog.Width(m.width).Render(b.String())
}
