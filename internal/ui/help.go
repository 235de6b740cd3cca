package ui

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const helpText = `# qubeconf

Edit global settings and qrexec policy for a qube-based system. Changes are
staged per page and written only after an explicit save with a diff preview.

## Pages

* **Basics** - default template, network qube, disposable template, clock
  qube and kernel.
* **USB Devices** - input device forwarding and U2F proxy access.
* **Updates** - update check toggles and the update proxy policy.
* **Clipboard** - inter-qube clipboard paste policy.
* **File Access** - inter-qube file copy policy.

## Keys

| Key | Action |
|-----|--------|
| ←/→, tab | switch page |
| j/k | move cursor |
| enter | edit the selected item |
| space | toggle the selected checkbox |
| a | add an exception rule |
| d | delete the selected rule |
| J/K | reorder the selected rule |
| u | unlock the selected rule for editing |
| c | toggle custom mode for the page's policy |
| e | open the raw policy editor |
| s | save the page (shows a diff first) |
| x | discard unsaved changes |
| ? | this help |
| q | quit |

Rules shown dimmed were not written by this tool; they are never modified
or removed, only displayed. Rules from earlier sessions must be unlocked
before the first edit.
`

// HelpModel renders the markdown help overlay.
type HelpModel struct {
	styles   *Styles
	viewport viewport.Model
	rendered bool
	width    int
	height   int
}

// NewHelp creates the help overlay.
func NewHelp(styles *Styles) HelpModel {
	return HelpModel{styles: styles, viewport: viewport.New(80, 20)}
}

// SetSize updates the overlay dimensions and re-renders the text.
func (m *HelpModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width - 6
	m.viewport.Height = height - 6
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
	m.render()
}

func (m *HelpModel) render() {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(m.viewport.Width),
	)
	if err != nil {
		m.viewport.SetContent(helpText)
		m.rendered = true
		return
	}
	out, err := renderer.Render(helpText)
	if err != nil {
		out = helpText
	}
	m.viewport.SetContent(out)
	m.rendered = true
}

// Update handles scrolling.
func (m HelpModel) Update(msg tea.Msg) (HelpModel, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the help overlay.
func (m HelpModel) View() string {
	if !m.rendered {
		m.render()
	}
	body := m.viewport.View() + "\n" + m.styles.Help.Render("j/k scroll   esc close")
	return m.styles.Dialog.Width(m.width - 2).Render(body)
}
