package ui

import (
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"qubeconf/internal/highlight"
)

// RawEditorModel edits a policy file as plain text. A read-only preview
// mode shows the text with syntax highlighting and line numbers; editing
// happens in the unstyled textarea.
type RawEditorModel struct {
	styles      *Styles
	highlighter *highlight.Highlighter
	textarea    textarea.Model

	fileName string
	preview  bool
	errText  string
	width    int
	height   int
}

// NewRawEditor creates an empty raw editor.
func NewRawEditor(styles *Styles, hl *highlight.Highlighter) RawEditorModel {
	ta := textarea.New()
	ta.Placeholder = "# policy rules"
	ta.CharLimit = 0
	return RawEditorModel{styles: styles, highlighter: hl, textarea: ta}
}

// Start loads the file text into the editor.
func (m *RawEditorModel) Start(fileName, text string) {
	m.fileName = fileName
	m.textarea.SetValue(text)
	m.textarea.Focus()
	m.preview = false
	m.errText = ""
}

// SetSize updates the editor dimensions.
func (m *RawEditorModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.textarea.SetWidth(width - 6)
	h := height - 9
	if h < 3 {
		h = 3
	}
	m.textarea.SetHeight(h)
}

// Text returns the current buffer contents.
func (m *RawEditorModel) Text() string { return m.textarea.Value() }

// SetError shows a parse error below the buffer.
func (m *RawEditorModel) SetError(text string) { m.errText = text }

// TogglePreview switches between editing and the highlighted preview.
func (m *RawEditorModel) TogglePreview() {
	m.preview = !m.preview
	if m.preview {
		m.textarea.Blur()
	} else {
		m.textarea.Focus()
	}
}

// Preview reports whether the highlighted preview is showing.
func (m *RawEditorModel) Preview() bool { return m.preview }

// CopyAll puts the buffer on the system clipboard.
func (m *RawEditorModel) CopyAll() error {
	return clipboard.WriteAll(m.textarea.Value())
}

// Update handles textarea input while in edit mode.
func (m RawEditorModel) Update(msg tea.Msg) (RawEditorModel, tea.Cmd) {
	if m.preview {
		return m, nil
	}
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// View renders the raw editor dialog.
func (m RawEditorModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.DialogTitle.Render("Raw editor"))
	b.WriteString("  ")
	b.WriteString(m.styles.Value.Render(m.fileName))
	b.WriteString("\n\n")

	if m.preview {
		text := m.textarea.Value()
		if strings.TrimSpace(text) == "" {
			b.WriteString(m.styles.Help.Render("(empty)"))
		} else {
			b.WriteString(m.highlighter.PolicyWithLineNumbers(strings.TrimSuffix(text, "\n"), 1))
		}
		b.WriteString("\n")
	} else {
		b.WriteString(m.textarea.View())
		b.WriteString("\n")
	}

	if m.errText != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.StatusErr.Render(m.errText))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.preview {
		b.WriteString(m.styles.Help.Render("ctrl+p edit   ctrl+y copy   ctrl+s apply   esc cancel"))
	} else {
		b.WriteString(m.styles.Help.Render("ctrl+p preview   ctrl+y copy   ctrl+s apply   esc cancel"))
	}

	return m.styles.Dialog.Width(m.width - 2).Render(b.String())
}
