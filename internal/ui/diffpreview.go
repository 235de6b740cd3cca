package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sergi/go-diff/diffmatchpatch"

	"qubeconf/internal/highlight"
)

// diffFile is one pending file change shown in the save preview.
type diffFile struct {
	name    string
	oldText string
	newText string
}

// DiffPreviewModel shows the pending policy file changes before a save is
// committed. Several files can be staged at once; tab cycles between them.
type DiffPreviewModel struct {
	styles      *Styles
	highlighter *highlight.Highlighter
	viewport    viewport.Model
	files       []diffFile
	index       int
	width       int
	height      int
}

// NewDiffPreview creates an empty diff preview.
func NewDiffPreview(styles *Styles, hl *highlight.Highlighter) DiffPreviewModel {
	return DiffPreviewModel{
		styles:      styles,
		highlighter: hl,
		viewport:    viewport.New(80, 20),
	}
}

// SetSize updates the preview dimensions.
func (m *DiffPreviewModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width - 4
	m.viewport.Height = height - 8
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
	if len(m.files) > 0 {
		m.refresh()
	}
}

// Show stages the given file changes and resets the preview to the first.
func (m *DiffPreviewModel) Show(files []diffFile) {
	m.files = files
	m.index = 0
	m.refresh()
}

// Files returns how many file changes are staged.
func (m *DiffPreviewModel) Files() int { return len(m.files) }

func (m *DiffPreviewModel) refresh() {
	if m.index >= len(m.files) {
		m.index = 0
	}
	f := m.files[m.index]
	diff := unifiedDiff(f.oldText, f.newText)
	if strings.TrimSpace(diff) == "" {
		diff = "(no changes)"
	}
	m.viewport.SetContent(m.highlighter.HighlightDiff(diff))
	m.viewport.GotoTop()
}

// Update handles navigation inside the preview. Accept and cancel keys are
// interpreted by the caller.
func (m DiffPreviewModel) Update(msg tea.Msg) (DiffPreviewModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab":
			if len(m.files) > 1 {
				m.index = (m.index + 1) % len(m.files)
				m.refresh()
			}
			return m, nil
		case "g":
			m.viewport.GotoTop()
			return m, nil
		case "G":
			m.viewport.GotoBottom()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the preview dialog.
func (m DiffPreviewModel) View() string {
	if len(m.files) == 0 {
		return ""
	}
	f := m.files[m.index]

	title := m.styles.DialogTitle.Render("Save changes?")
	name := m.styles.Value.Render(f.name)
	if len(m.files) > 1 {
		name += m.styles.Help.Render(fmt.Sprintf("  (%d/%d, tab to cycle)", m.index+1, len(m.files)))
	}
	help := m.styles.Help.Render("y save   n cancel   j/k scroll")

	body := lipgloss.JoinVertical(lipgloss.Left, title, name, "", m.viewport.View(), "", help)
	return m.styles.Dialog.Width(m.width - 2).Render(body)
}

// unifiedDiff produces a line-oriented +/- diff between two file bodies.
func unifiedDiff(oldText, newText string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" && d.Text != "\n" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
