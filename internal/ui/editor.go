package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"qubeconf/internal/handler"
	"qubeconf/internal/highlight"
	"qubeconf/internal/logging"
	"qubeconf/internal/manager"
	"qubeconf/internal/pages"
	"qubeconf/internal/policy"
	"qubeconf/internal/qubes"
	"qubeconf/internal/store"
	"qubeconf/internal/watcher"
)

type editorMode int

const (
	modeList editorMode = iota
	modeForm
	modeRaw
	modeDiff
	modeConfirm
	modePicker
	modeHelp
)

type confirmKind int

const (
	confirmNone confirmKind = iota
	confirmUnlockEdit
	confirmDelete
	confirmSwitch
	confirmQuit
	confirmDiscard
	confirmReload
	confirmSave
)

// stagedSource is anything that can stage a policy file write.
type stagedSource interface {
	StagedUpdate() store.Update
}

// Editor is the top-level settings editor: a tab per page, a cursor list
// of the active page's settings and rules, and modal dialogs for editing,
// previewing and confirming.
type Editor struct {
	styles      *Styles
	highlighter *highlight.Highlighter
	mgr         *manager.Manager
	pages       []pages.Page

	active     int
	pendingTab int
	items      []listItem
	cursor     int

	mode        editorMode
	confirm     ConfirmModel
	confirmKind confirmKind
	picker      PickerModel
	pickerApply func(string) error
	form        RuleFormModel
	formHandler *handler.Handler
	raw         RawEditorModel
	rawHandler  *handler.Handler
	diff        DiffPreviewModel
	help        HelpModel

	// pending unlock/delete context
	pendingHandler *handler.Handler
	pendingRow     *handler.Row

	events chan watcher.Event
	banner string

	status    string
	statusErr bool
	statusSeq int

	width   int
	height  int
	loading bool
	loadErr error
}

// NewEditor assembles the settings editor over the standard page set.
func NewEditor(client qubes.Client, mgr *manager.Manager, theme string) *Editor {
	styles := DefaultStyles()
	hl := highlight.New(themeStyle(theme))
	return &Editor{
		styles:      styles,
		highlighter: hl,
		mgr:         mgr,
		pages: []pages.Page{
			pages.NewBasicsPage(client),
			pages.NewUSBPage(client, mgr, pages.DefaultUSBQube),
			pages.NewUpdatesPage(client, mgr),
			pages.NewClipboardPage(mgr),
			pages.NewFileCopyPage(mgr),
		},
		confirm: NewConfirm(styles),
		picker:  NewPicker(styles),
		form:    NewRuleForm(styles),
		raw:     NewRawEditor(styles, hl),
		diff:    NewDiffPreview(styles, hl),
		help:    NewHelp(styles),
		loading: true,
	}
}

// themeStyle maps the config theme name to a chroma style.
func themeStyle(theme string) string {
	switch theme {
	case "light":
		return "friendly"
	default:
		return "monokai"
	}
}

// AttachWatcher routes external policy directory changes into the UI loop.
func (m *Editor) AttachWatcher(w *watcher.Watcher) {
	m.events = make(chan watcher.Event, 16)
	w.SetHandler(func(ev watcher.Event) {
		select {
		case m.events <- ev:
		default:
		}
	})
}

// Init implements tea.Model.
func (m Editor) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadAll()}
	if m.events != nil {
		cmds = append(cmds, m.waitForChange())
	}
	return tea.Batch(cmds...)
}

func (m Editor) loadAll() tea.Cmd {
	pp := m.pages
	return func() tea.Msg {
		ctx := context.Background()
		for _, p := range pp {
			if err := p.Load(ctx); err != nil {
				return pagesLoadedMsg{err: fmt.Errorf("loading %s: %w", p.Name(), err)}
			}
		}
		return pagesLoadedMsg{}
	}
}

func (m Editor) waitForChange() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return policyChangedMsg{event: ev}
	}
}

func (m Editor) reloadActive() tea.Cmd {
	p := m.pages[m.active]
	return func() tea.Msg {
		if err := p.Load(context.Background()); err != nil {
			return reloadDoneMsg{err: err}
		}
		return reloadDoneMsg{}
	}
}

func (m Editor) saveActive() tea.Cmd {
	p := m.pages[m.active]
	return func() tea.Msg {
		ctx := context.Background()
		if err := p.Save(ctx); err != nil {
			return saveDoneMsg{page: p.Name(), err: err}
		}
		// Reload to pick up fresh tokens and leave the Saved state.
		if err := p.Load(ctx); err != nil {
			return saveDoneMsg{page: p.Name(), err: err}
		}
		return saveDoneMsg{page: p.Name()}
	}
}

func (m *Editor) setStatus(text string, isErr bool) tea.Cmd {
	m.status = text
	m.statusErr = isErr
	m.statusSeq++
	seq := m.statusSeq
	if isErr {
		logging.Warn("editor status", "text", text)
	}
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

func (m *Editor) rebuild() {
	m.items = buildItems(m.pages[m.active])
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if len(m.items) > 0 && !m.items[m.cursor].selectable() {
		m.moveCursor(1)
	}
}

func (m *Editor) moveCursor(delta int) {
	if len(m.items) == 0 {
		return
	}
	i := m.cursor
	for {
		i += delta
		if i < 0 || i >= len(m.items) {
			return
		}
		if m.items[i].selectable() {
			m.cursor = i
			return
		}
	}
}

func (m *Editor) current() *listItem {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return nil
	}
	return &m.items[m.cursor]
}

// sectionHandler finds the structured policy handler governing the cursor
// position, scanning upward through the item list.
func (m *Editor) sectionHandler() *handler.Handler {
	for i := m.cursor; i >= 0; i-- {
		if i < len(m.items) && m.items[i].h != nil {
			return m.items[i].h
		}
	}
	for _, it := range m.items {
		if it.h != nil {
			return it.h
		}
	}
	return nil
}

func (m *Editor) markEditing() {
	if err := m.pages[m.active].MarkEditing(); err != nil {
		logging.Error("page transition rejected", "page", m.pages[m.active].Name(), "error", err)
	}
}

// pageStaged lists the policy file writers behind a page.
func pageStaged(p pages.Page) []stagedSource {
	switch pg := p.(type) {
	case *pages.HandlerPage:
		var out []stagedSource
		for _, h := range pg.Handlers() {
			out = append(out, h)
		}
		return out
	case *pages.UpdatesPage:
		return []stagedSource{pg.Proxy()}
	case *pages.USBPage:
		return []stagedSource{pg.Input(), pg.U2F()}
	}
	return nil
}

// stagedDiffs computes the pending file changes for the active page.
func (m *Editor) stagedDiffs() []diffFile {
	var out []diffFile
	for _, src := range pageStaged(m.pages[m.active]) {
		staged := src.StagedUpdate()
		old, _, err := m.mgr.Store().Get(staged.Name)
		if err != nil {
			old = ""
		}
		if old != staged.Text {
			out = append(out, diffFile{name: staged.Name, oldText: old, newText: staged.Text})
		}
	}
	return out
}

// Update implements tea.Model.
func (m Editor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.confirm.SetWidth(min(msg.Width-4, 70))
		m.picker.SetWidth(min(msg.Width-4, 50))
		m.form.SetWidth(min(msg.Width-4, 70))
		m.raw.SetSize(msg.Width, msg.Height)
		m.diff.SetSize(msg.Width, msg.Height)
		m.help.SetSize(msg.Width, msg.Height)
		return m, nil

	case pagesLoadedMsg:
		m.loading = false
		m.loadErr = msg.err
		if msg.err == nil {
			m.rebuild()
		}
		return m, nil

	case saveDoneMsg:
		m.mode = modeList
		if msg.err != nil {
			if errors.Is(msg.err, store.ErrTokenMismatch) {
				return m, m.setStatus("file changed on disk since it was read; press r to reload", true)
			}
			return m, m.setStatus("save failed: "+msg.err.Error(), true)
		}
		m.banner = ""
		m.rebuild()
		return m, m.setStatus(msg.page+" saved", false)

	case reloadDoneMsg:
		if msg.err != nil {
			return m, m.setStatus("reload failed: "+msg.err.Error(), true)
		}
		m.banner = ""
		m.rebuild()
		return m, m.setStatus("reloaded from disk", false)

	case policyChangedMsg:
		m.banner = fmt.Sprintf("policy directory changed on disk (%s %s); press r to reload",
			msg.event.Operation, msg.event.Name)
		return m, m.waitForChange()

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Editor) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.mode {
	case modeConfirm:
		return m.handleConfirmKey(msg)
	case modePicker:
		return m.handlePickerKey(msg)
	case modeForm:
		return m.handleFormKey(msg)
	case modeRaw:
		return m.handleRawKey(msg)
	case modeDiff:
		return m.handleDiffKey(msg)
	case modeHelp:
		if msg.String() == "esc" || msg.String() == "q" || msg.String() == "?" {
			m.mode = modeList
			return m, nil
		}
		var cmd tea.Cmd
		m.help, cmd = m.help.Update(msg)
		return m, cmd
	}
	return m.handleListKey(msg)
}

func (m Editor) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.loading || m.loadErr != nil {
		if msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "q":
		if m.anyUnsaved() {
			m.confirmKind = confirmQuit
			m.confirm.Reset("Quit without saving?", m.unsavedSummary()...)
			m.mode = modeConfirm
			return m, nil
		}
		return m, tea.Quit

	case "?":
		m.mode = modeHelp
		return m, nil

	case "left", "shift+tab":
		return m.switchTab((m.active + len(m.pages) - 1) % len(m.pages))
	case "right", "tab":
		return m.switchTab((m.active + 1) % len(m.pages))

	case "up", "k":
		m.moveCursor(-1)
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		return m, nil

	case "enter":
		return m.activateCurrent(false)
	case " ":
		return m.activateCurrent(true)

	case "a":
		return m.addException()
	case "d":
		return m.deleteCurrent()
	case "u":
		return m.unlockCurrent()
	case "K":
		return m.moveCurrentRow(-1)
	case "J":
		return m.moveCurrentRow(1)
	case "c":
		return m.toggleCustom()
	case "e":
		return m.openRawEditor()

	case "s":
		return m.beginSave()
	case "x":
		if !m.activeUnsaved() {
			return m, m.setStatus("no changes to discard", false)
		}
		m.confirmKind = confirmDiscard
		m.confirm.Reset("Discard changes on "+m.pages[m.active].Name()+"?",
			m.pages[m.active].Unsaved()...)
		m.mode = modeConfirm
		return m, nil

	case "r":
		if m.activeUnsaved() {
			m.confirmKind = confirmReload
			m.confirm.Reset("Reload from disk and lose unsaved changes?",
				m.pages[m.active].Unsaved()...)
			m.mode = modeConfirm
			return m, nil
		}
		return m, m.reloadActive()
	}
	return m, nil
}

func (m *Editor) activeUnsaved() bool {
	return len(m.pages[m.active].Unsaved()) > 0
}

func (m *Editor) anyUnsaved() bool {
	for _, p := range m.pages {
		if len(p.Unsaved()) > 0 {
			return true
		}
	}
	return false
}

func (m *Editor) unsavedSummary() []string {
	var out []string
	for _, p := range m.pages {
		for _, line := range p.Unsaved() {
			out = append(out, p.Name()+": "+line)
		}
	}
	return out
}

func (m Editor) switchTab(target int) (tea.Model, tea.Cmd) {
	if target == m.active {
		return m, nil
	}
	if m.activeUnsaved() {
		m.pendingTab = target
		m.confirmKind = confirmSwitch
		m.confirm.Reset("Discard changes on "+m.pages[m.active].Name()+"?",
			m.pages[m.active].Unsaved()...)
		m.mode = modeConfirm
		return m, nil
	}
	m.active = target
	m.cursor = 0
	m.rebuild()
	return m, nil
}

// activateCurrent handles enter (space when toggle is true) on the item
// under the cursor.
func (m Editor) activateCurrent(toggle bool) (tea.Model, tea.Cmd) {
	it := m.current()
	if it == nil {
		return m, nil
	}
	switch it.kind {
	case itemSetting:
		if toggle {
			return m, nil
		}
		m.picker.Reset(it.label, it.options, it.value)
		m.pickerApply = it.apply
		m.mode = modePicker
		return m, nil

	case itemToggle:
		if err := it.set(!it.on); err != nil {
			return m, m.setStatus(err.Error(), true)
		}
		m.rebuild()
		return m, nil

	case itemCycle:
		next := nextAction(policy.Action(it.value))
		if err := it.fixed.SetAction(it.service, next); err != nil {
			return m, m.setStatus(err.Error(), true)
		}
		m.markEditing()
		m.rebuild()
		return m, nil

	case itemCustom:
		it.h.SetCustom(!it.h.CustomEnabled())
		m.markEditing()
		m.rebuild()
		return m, nil

	case itemRule:
		if toggle {
			return m, nil
		}
		return m.editRow(it.h, it.row)
	}
	return m, nil
}

func (m Editor) editRow(h *handler.Handler, row *handler.Row) (tea.Model, tea.Cmd) {
	if row.Protected {
		return m, m.setStatus("this rule was not written by qubeconf and is read-only", true)
	}
	if row.RequireConfirm && !row.Unlocked() {
		m.pendingHandler = h
		m.pendingRow = row
		m.confirmKind = confirmUnlockEdit
		m.confirm.Reset("Unlock this rule for editing?", ruleLabel(row))
		m.mode = modeConfirm
		return m, nil
	}
	m.openForm(h, row)
	return m, nil
}

func (m *Editor) openForm(h *handler.Handler, row *handler.Row) {
	actionOnly := false
	for _, p := range h.Primary() {
		if p.ID == row.ID {
			actionOnly = true
			break
		}
	}
	m.formHandler = h
	m.form.Start(row, actionOnly)
	m.mode = modeForm
}

func (m Editor) addException() (tea.Model, tea.Cmd) {
	h := m.sectionHandler()
	if h == nil {
		return m, m.setStatus("no policy rules on this page", true)
	}
	row, err := h.AddRule()
	if err != nil {
		return m, m.setStatus(err.Error(), true)
	}
	m.markEditing()
	m.rebuild()
	for i, it := range m.items {
		if it.row != nil && it.row.ID == row.ID {
			m.cursor = i
			break
		}
	}
	m.openForm(h, row)
	return m, nil
}

func (m Editor) deleteCurrent() (tea.Model, tea.Cmd) {
	it := m.current()
	if it == nil || it.kind != itemRule {
		return m, nil
	}
	if it.row.Protected {
		return m, m.setStatus("this rule was not written by qubeconf and is read-only", true)
	}
	if it.row.IsNew {
		if err := it.h.DeleteRow(it.row.ID); err != nil {
			return m, m.setStatus(err.Error(), true)
		}
		m.rebuild()
		return m, nil
	}
	m.pendingHandler = it.h
	m.pendingRow = it.row
	m.confirmKind = confirmDelete
	m.confirm.Reset("Delete this rule?", ruleLabel(it.row))
	m.mode = modeConfirm
	return m, nil
}

func (m Editor) unlockCurrent() (tea.Model, tea.Cmd) {
	it := m.current()
	if it == nil || it.kind != itemRule {
		return m, nil
	}
	if err := it.h.Unlock(it.row.ID); err != nil {
		return m, m.setStatus(err.Error(), true)
	}
	m.rebuild()
	return m, m.setStatus("rule unlocked for this session", false)
}

func (m Editor) moveCurrentRow(delta int) (tea.Model, tea.Cmd) {
	it := m.current()
	if it == nil || it.kind != itemRule {
		return m, nil
	}
	if err := it.h.MoveRow(it.row.ID, delta); err != nil {
		return m, m.setStatus(err.Error(), true)
	}
	m.markEditing()
	id := it.row.ID
	m.rebuild()
	for i, item := range m.items {
		if item.row != nil && item.row.ID == id {
			m.cursor = i
			break
		}
	}
	return m, nil
}

func (m Editor) toggleCustom() (tea.Model, tea.Cmd) {
	h := m.sectionHandler()
	if h == nil {
		return m, m.setStatus("no policy rules on this page", true)
	}
	h.SetCustom(!h.CustomEnabled())
	m.markEditing()
	m.rebuild()
	if h.CustomEnabled() {
		return m, m.setStatus("custom policy enabled", false)
	}
	return m, m.setStatus("reverted to the default policy", false)
}

func (m Editor) openRawEditor() (tea.Model, tea.Cmd) {
	h := m.sectionHandler()
	if h == nil {
		return m, m.setStatus("no policy rules on this page", true)
	}
	m.rawHandler = h
	m.raw.Start(h.FileName(), h.RawText())
	m.raw.SetSize(m.width, m.height)
	m.mode = modeRaw
	return m, nil
}

func (m Editor) beginSave() (tea.Model, tea.Cmd) {
	if !m.activeUnsaved() {
		return m, m.setStatus("no changes to save", false)
	}
	diffs := m.stagedDiffs()
	if len(diffs) == 0 {
		// Feature and property changes only; no policy file writes.
		m.confirmKind = confirmSave
		m.confirm.Reset("Apply these changes?", m.pages[m.active].Unsaved()...)
		m.mode = modeConfirm
		return m, nil
	}
	m.diff.SetSize(m.width, m.height)
	m.diff.Show(diffs)
	m.mode = modeDiff
	return m, nil
}

func (m Editor) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "n":
		m.mode = modeList
		return m, nil
	case "left", "right", "h", "l":
		m.confirm.Toggle()
		return m, nil
	case "y":
		return m.confirmAccepted()
	case "enter":
		if !m.confirm.Yes() {
			m.mode = modeList
			return m, nil
		}
		return m.confirmAccepted()
	}
	return m, nil
}

func (m Editor) confirmAccepted() (tea.Model, tea.Cmd) {
	kind := m.confirmKind
	m.confirmKind = confirmNone
	m.mode = modeList

	switch kind {
	case confirmUnlockEdit:
		if err := m.pendingHandler.Unlock(m.pendingRow.ID); err != nil {
			return m, m.setStatus(err.Error(), true)
		}
		m.openForm(m.pendingHandler, m.pendingRow)
		return m, nil

	case confirmDelete:
		if !m.pendingRow.Unlocked() {
			if err := m.pendingHandler.Unlock(m.pendingRow.ID); err != nil {
				return m, m.setStatus(err.Error(), true)
			}
		}
		if err := m.pendingHandler.DeleteRow(m.pendingRow.ID); err != nil {
			return m, m.setStatus(err.Error(), true)
		}
		m.markEditing()
		m.rebuild()
		return m, m.setStatus("rule deleted", false)

	case confirmSwitch:
		m.pages[m.active].Discard()
		cmdReload := m.reloadActive()
		m.active = m.pendingTab
		m.cursor = 0
		m.rebuild()
		return m, cmdReload

	case confirmDiscard:
		m.pages[m.active].Discard()
		return m, m.reloadActive()

	case confirmReload:
		m.pages[m.active].Discard()
		return m, m.reloadActive()

	case confirmQuit:
		return m, tea.Quit

	case confirmSave:
		return m, m.saveActive()
	}
	return m, nil
}

func (m Editor) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		return m, nil
	case "up", "k":
		m.picker.Move(-1)
		return m, nil
	case "down", "j":
		m.picker.Move(1)
		return m, nil
	case "enter":
		m.mode = modeList
		if err := m.pickerApply(m.picker.Selected()); err != nil {
			return m, m.setStatus(err.Error(), true)
		}
		m.rebuild()
		return m, nil
	}
	return m, nil
}

func (m Editor) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		m.rebuild()
		return m, nil
	case "enter":
		err := m.formHandler.UpdateRow(
			m.form.RowID(), m.form.Source(), m.form.Target(), m.form.Action())
		if err != nil {
			m.form.SetError(err.Error())
			return m, nil
		}
		m.markEditing()
		m.mode = modeList
		m.rebuild()
		return m, nil
	}
	var cmd tea.Cmd
	m.form, cmd = m.form.Update(msg)
	return m, cmd
}

func (m Editor) handleRawKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		return m, nil
	case "ctrl+p":
		m.raw.TogglePreview()
		return m, nil
	case "ctrl+y":
		if err := m.raw.CopyAll(); err != nil {
			return m, m.setStatus("clipboard copy failed: "+err.Error(), true)
		}
		return m, m.setStatus("copied to clipboard", false)
	case "ctrl+s":
		if err := m.rawHandler.SetRaw(m.raw.Text()); err != nil {
			m.raw.SetError(err.Error())
			return m, nil
		}
		m.markEditing()
		m.mode = modeList
		m.rebuild()
		return m, m.setStatus("buffer applied; press s to save", false)
	}
	var cmd tea.Cmd
	m.raw, cmd = m.raw.Update(msg)
	return m, cmd
}

func (m Editor) handleDiffKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "n":
		m.mode = modeList
		return m, nil
	case "y":
		return m, m.saveActive()
	}
	var cmd tea.Cmd
	m.diff, cmd = m.diff.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Editor) View() string {
	if m.loading {
		return m.styles.Title.Render("qubeconf") + "\n\n" +
			m.styles.Help.Render("Loading system state...")
	}
	if m.loadErr != nil {
		return m.styles.Title.Render("qubeconf") + "\n\n" +
			m.styles.StatusErr.Render(m.loadErr.Error()) + "\n\n" +
			m.styles.Help.Render("q quit")
	}

	switch m.mode {
	case modeHelp:
		return m.help.View()
	case modeRaw:
		return m.raw.View()
	case modeDiff:
		return m.diff.View()
	case modeConfirm:
		return m.overlay(m.confirm.View())
	case modePicker:
		return m.overlay(m.picker.View())
	case modeForm:
		return m.overlay(m.form.View())
	}
	return m.listView()
}

// overlay stacks a dialog under the tab bar so the page context stays
// visible.
func (m Editor) overlay(dialog string) string {
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), "", dialog)
}

func (m Editor) headerView() string {
	var tabs []string
	for i, p := range m.pages {
		name := p.Name()
		if len(p.Unsaved()) > 0 {
			name += " *"
		}
		if i == m.active {
			tabs = append(tabs, m.styles.TabActive.Render(name))
		} else {
			tabs = append(tabs, m.styles.Tab.Render(name))
		}
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	title := m.styles.Title.Render("qubeconf")
	return lipgloss.JoinVertical(lipgloss.Left, title, m.styles.TabBar.Render(bar))
}

func (m Editor) listView() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")

	if m.banner != "" {
		b.WriteString(m.styles.Banner.Render(m.banner))
		b.WriteString("\n")
	}

	visible := m.visibleRange()
	for i := visible[0]; i < visible[1]; i++ {
		b.WriteString(m.renderItem(i))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		if m.statusErr {
			b.WriteString(m.styles.StatusErr.Render(m.status))
		} else {
			b.WriteString(m.styles.StatusOK.Render(m.status))
		}
	} else {
		b.WriteString(m.styles.Help.Render(
			"←/→ page  j/k move  enter edit  a add  d delete  s save  x discard  ? help  q quit"))
	}
	return b.String()
}

// visibleRange windows the item list around the cursor when it does not
// fit the terminal.
func (m Editor) visibleRange() [2]int {
	avail := m.height - 8
	if avail < 5 {
		avail = 5
	}
	if len(m.items) <= avail {
		return [2]int{0, len(m.items)}
	}
	start := m.cursor - avail/2
	if start < 0 {
		start = 0
	}
	end := start + avail
	if end > len(m.items) {
		end = len(m.items)
		start = end - avail
	}
	return [2]int{start, end}
}

func (m Editor) renderItem(i int) string {
	it := m.items[i]
	selected := i == m.cursor

	switch it.kind {
	case itemHeading:
		return m.styles.Heading.Render(it.label)
	case itemNote:
		return m.styles.Protected.Render("  " + it.label)
	case itemSetting:
		value := it.value
		if value == "" {
			value = "(none)"
		}
		line := fmt.Sprintf("%-32s %s", it.label, m.styles.Value.Render(value))
		return m.cursorLine(line, selected)
	case itemToggle, itemCustom:
		on := it.on
		if it.kind == itemCustom {
			on = it.h.CustomEnabled()
		}
		box := "[ ]"
		if on {
			box = "[x]"
		}
		return m.cursorLine(box+" "+it.label, selected)
	case itemCycle:
		line := fmt.Sprintf("%-32s %s", it.label, m.styles.Value.Render("< "+it.value+" >"))
		return m.cursorLine(line, selected)
	case itemRule:
		line := ruleLabel(it.row)
		switch {
		case it.row.Protected:
			line = m.styles.Protected.Render(line + "  (read-only)")
		case it.row.RequireConfirm && !it.row.Unlocked():
			line = m.styles.Locked.Render(line + "  🔒")
		case it.row.Changed() || it.row.IsNew:
			line = m.styles.Changed.Render(line)
		default:
			line = m.styles.Row.Render(line)
		}
		return m.cursorLine(line, selected)
	}
	return ""
}

func (m Editor) cursorLine(line string, selected bool) string {
	if selected {
		return m.styles.Selected.Render("> ") + line
	}
	return "  " + line
}
