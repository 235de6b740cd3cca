package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"qubeconf/internal/preconfig"
	"qubeconf/internal/qubes"
	"qubeconf/internal/wizard"
)

type wizardStep int

const (
	stepPreset wizardStep = iota
	stepName
	stepClass
	stepTemplate
	stepLabel
	stepNetwork
	stepApps
	stepConfirm
)

// wizardLoadedMsg is sent once the form's choice lists are fetched.
type wizardLoadedMsg struct {
	err error
}

const blankChoice = "(start blank)"

// WizardModel walks through creating a new qube: an optional preset, then
// name, class, template, label, network and applications.
type WizardModel struct {
	styles *Styles
	form   *wizard.Form

	presets  []preconfig.Preset
	problems []preconfig.Problem

	step   wizardStep
	cursor int

	nameInput textinput.Model
	appsInput textinput.Model

	errText  string
	loading  bool
	loadErr  error
	creating bool
	created  string
	width    int
	height   int
}

// NewWizard assembles the new-qube wizard. Presets may be empty.
func NewWizard(client qubes.Client, presets []preconfig.Preset, problems []preconfig.Problem) WizardModel {
	name := textinput.New()
	name.Placeholder = "qube name"
	name.CharLimit = 31
	apps := textinput.New()
	apps.Placeholder = "comma-separated applications (optional)"
	apps.CharLimit = 256

	return WizardModel{
		styles:    DefaultStyles(),
		form:      wizard.NewForm(client),
		presets:   presets,
		problems:  problems,
		nameInput: name,
		appsInput: apps,
		loading:   true,
	}
}

// Init implements tea.Model.
func (m WizardModel) Init() tea.Cmd {
	form := m.form
	return func() tea.Msg {
		return wizardLoadedMsg{err: form.Load(context.Background())}
	}
}

func (m *WizardModel) firstStep() {
	if len(m.presets) > 0 {
		m.step = stepPreset
	} else {
		m.step = stepName
		m.nameInput.Focus()
	}
	m.cursor = 0
}

// options returns the choice list for the current step.
func (m *WizardModel) options() []string {
	switch m.step {
	case stepPreset:
		out := []string{blankChoice}
		for _, p := range m.presets {
			label := p.Name
			if p.Subtitle != "" {
				label += "  (" + p.Subtitle + ")"
			}
			out = append(out, label)
		}
		return out
	case stepClass:
		return []string{
			qubes.ClassAppVM,
			qubes.ClassStandaloneVM,
			qubes.ClassTemplateVM,
			qubes.ClassDispVM,
		}
	case stepTemplate:
		if m.form.Class() == qubes.ClassAppVM || m.form.Class() == qubes.ClassDispVM {
			return m.form.Templates()
		}
		return append([]string{""}, m.form.Templates()...)
	case stepLabel:
		return m.form.Labels()
	case stepNetwork:
		out := []string{"default", "none"}
		return append(out, m.form.NetworkQubes()...)
	}
	return nil
}

func (m *WizardModel) stepTitle() string {
	switch m.step {
	case stepPreset:
		return "Start from a preset?"
	case stepName:
		return "Name the new qube"
	case stepClass:
		return "Choose the qube class"
	case stepTemplate:
		return "Choose the template"
	case stepLabel:
		return "Choose a label color"
	case stepNetwork:
		return "Choose networking"
	case stepApps:
		return "Applications for the menu"
	case stepConfirm:
		return "Review and create"
	}
	return ""
}

// advance applies the current selection and moves to the next step.
func (m *WizardModel) advance() error {
	switch m.step {
	case stepPreset:
		if m.cursor > 0 {
			if err := m.form.ApplyPreset(m.presets[m.cursor-1]); err != nil {
				return err
			}
			m.nameInput.SetValue(m.form.Name())
		}
		m.step = stepName
		m.nameInput.Focus()

	case stepName:
		if err := m.form.SetName(strings.TrimSpace(m.nameInput.Value())); err != nil {
			return err
		}
		m.nameInput.Blur()
		m.step = stepClass

	case stepClass:
		if err := m.form.SetClass(m.options()[m.cursor]); err != nil {
			return err
		}
		m.step = stepTemplate

	case stepTemplate:
		if err := m.form.SetTemplate(m.options()[m.cursor]); err != nil {
			return err
		}
		m.step = stepLabel

	case stepLabel:
		opts := m.options()
		if len(opts) == 0 {
			return fmt.Errorf("no labels available")
		}
		if err := m.form.SetLabel(opts[m.cursor]); err != nil {
			return err
		}
		m.step = stepNetwork

	case stepNetwork:
		choice := m.options()[m.cursor]
		var err error
		switch choice {
		case "default":
			err = m.form.SetNetwork(wizard.NetworkDefault, "")
		case "none":
			err = m.form.SetNetwork(wizard.NetworkNone, "")
		default:
			err = m.form.SetNetwork(wizard.NetworkCustom, choice)
		}
		if err != nil {
			return err
		}
		m.step = stepApps
		m.appsInput.Focus()

	case stepApps:
		var apps []string
		for _, app := range strings.Split(m.appsInput.Value(), ",") {
			if app = strings.TrimSpace(app); app != "" {
				apps = append(apps, app)
			}
		}
		m.form.SetApplications(apps)
		m.appsInput.Blur()
		if err := m.form.Complete(); err != nil {
			return err
		}
		m.step = stepConfirm
	}
	m.cursor = 0
	return nil
}

// back returns to the previous step.
func (m *WizardModel) back() {
	switch m.step {
	case stepName:
		if len(m.presets) > 0 {
			m.nameInput.Blur()
			m.step = stepPreset
		}
	case stepClass:
		m.step = stepName
		m.nameInput.Focus()
	case stepTemplate:
		m.step = stepClass
	case stepLabel:
		m.step = stepTemplate
	case stepNetwork:
		m.step = stepLabel
	case stepApps:
		m.appsInput.Blur()
		m.step = stepNetwork
	case stepConfirm:
		m.step = stepApps
		m.appsInput.Focus()
	}
	m.cursor = 0
	m.errText = ""
}

func (m WizardModel) create() tea.Cmd {
	form := m.form
	return func() tea.Msg {
		err := form.Create(context.Background())
		return qubeCreatedMsg{name: form.Name(), err: err}
	}
}

// Update implements tea.Model.
func (m WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.nameInput.Width = min(msg.Width-10, 40)
		m.appsInput.Width = min(msg.Width-10, 60)
		return m, nil

	case wizardLoadedMsg:
		m.loading = false
		m.loadErr = msg.err
		if msg.err == nil {
			m.firstStep()
		}
		return m, nil

	case qubeCreatedMsg:
		m.creating = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.created = msg.name
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m WizardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.loading || m.creating {
		return m, nil
	}
	if m.loadErr != nil {
		if msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "esc":
		m.errText = ""
		if m.step == stepPreset || (m.step == stepName && len(m.presets) == 0) {
			return m, tea.Quit
		}
		m.back()
		return m, nil

	case "enter":
		m.errText = ""
		if m.step == stepConfirm {
			m.creating = true
			return m, m.create()
		}
		if err := m.advance(); err != nil {
			m.errText = err.Error()
		}
		return m, nil

	case "up", "k":
		if !m.textStep() && m.cursor > 0 {
			m.cursor--
		}
		if m.textStep() {
			break
		}
		return m, nil

	case "down", "j":
		if !m.textStep() && m.cursor < len(m.options())-1 {
			m.cursor++
		}
		if m.textStep() {
			break
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.step {
	case stepName:
		m.nameInput, cmd = m.nameInput.Update(msg)
	case stepApps:
		m.appsInput, cmd = m.appsInput.Update(msg)
	}
	return m, cmd
}

func (m WizardModel) textStep() bool {
	return m.step == stepName || m.step == stepApps
}

// Created returns the name of the created qube, or "" when the wizard was
// cancelled.
func (m WizardModel) Created() string { return m.created }

// View implements tea.Model.
func (m WizardModel) View() string {
	title := m.styles.Title.Render("qubeconf · new qube")
	if m.loading {
		return title + "\n\n" + m.styles.Help.Render("Loading system state...")
	}
	if m.loadErr != nil {
		return title + "\n\n" + m.styles.StatusErr.Render(m.loadErr.Error()) +
			"\n\n" + m.styles.Help.Render("q quit")
	}
	if m.creating {
		return title + "\n\n" + m.styles.Help.Render("Creating "+m.form.Name()+"...")
	}

	var b strings.Builder
	b.WriteString(m.styles.DialogTitle.Render(m.stepTitle()))
	b.WriteString("\n\n")

	switch m.step {
	case stepName:
		b.WriteString(m.nameInput.View())
		b.WriteString("\n")
	case stepApps:
		b.WriteString(m.appsInput.View())
		b.WriteString("\n")
	case stepConfirm:
		b.WriteString(m.summary())
	default:
		for i, opt := range m.options() {
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
	}

	if m.step == stepPreset {
		for _, p := range m.problems {
			b.WriteString(m.styles.Protected.Render("  skipped: " + p.String()))
			b.WriteString("\n")
		}
	}

	if m.errText != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.StatusErr.Render(m.errText))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.step == stepConfirm {
		b.WriteString(m.styles.Help.Render("enter create   esc back   ctrl+c cancel"))
	} else {
		b.WriteString(m.styles.Help.Render("enter next   esc back   ctrl+c cancel"))
	}

	dialog := m.styles.Dialog.Width(min(m.width-2, 72)).Render(b.String())
	return lipgloss.JoinVertical(lipgloss.Left, title, "", dialog)
}

func (m WizardModel) summary() string {
	row := func(label, value string) string {
		if value == "" {
			value = "(none)"
		}
		return fmt.Sprintf("%-14s %s\n", label, m.styles.Value.Render(value))
	}
	var b strings.Builder
	b.WriteString(row("Name", m.form.Name()))
	b.WriteString(row("Class", m.form.Class()))
	b.WriteString(row("Template", m.form.Template()))
	b.WriteString(row("Label", m.form.Label()))
	mode, netQube := m.form.Network()
	network := string(mode)
	if mode == wizard.NetworkCustom {
		network = netQube
	}
	b.WriteString(row("Network", network))
	if apps := m.form.Applications(); len(apps) > 0 {
		b.WriteString(row("Applications", strings.Join(apps, ", ")))
	}
	if p := m.form.Preset(); p != nil {
		b.WriteString(row("Preset", p.Name))
	}
	return b.String()
}
