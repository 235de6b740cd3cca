// Package pages holds the page controllers behind the settings editor's
// tabs. Each page owns its form state plus zero or more policy handlers
// and walks an explicit lifecycle: Loaded -> Editing -> (Saved | Discarded).
// Leaving a page without an explicit save discards every in-memory edit;
// the UI warns with the Unsaved list before the transition.
package pages

import (
	"context"
	"fmt"

	"qubeconf/internal/handler"
	"qubeconf/internal/manager"
	"qubeconf/internal/policy"
	"qubeconf/internal/store"
)

// State is a page lifecycle state.
type State int

const (
	StateLoaded State = iota
	StateEditing
	StateSaved
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateEditing:
		return "editing"
	case StateSaved:
		return "saved"
	case StateDiscarded:
		return "discarded"
	}
	return "unknown"
}

// Event is a lifecycle transition trigger.
type Event int

const (
	EventLoad Event = iota
	EventEdit
	EventSave
	EventDiscard
)

func (e Event) String() string {
	switch e {
	case EventLoad:
		return "load"
	case EventEdit:
		return "edit"
	case EventSave:
		return "save"
	case EventDiscard:
		return "discard"
	}
	return "unknown"
}

// Next is the lifecycle transition function. Loading is always valid
// (reopening a page starts a fresh cycle); editing, saving and discarding
// are only valid while the page is live.
func Next(s State, e Event) (State, error) {
	switch e {
	case EventLoad:
		return StateLoaded, nil
	case EventEdit:
		if s == StateLoaded || s == StateEditing {
			return StateEditing, nil
		}
	case EventSave:
		if s == StateLoaded || s == StateEditing {
			return StateSaved, nil
		}
	case EventDiscard:
		if s == StateLoaded || s == StateEditing {
			return StateDiscarded, nil
		}
	}
	return s, fmt.Errorf("invalid page transition: %s while %s", e, s)
}

// Page is one tab of the settings editor.
type Page interface {
	Name() string
	Load(ctx context.Context) error
	Save(ctx context.Context) error
	// MarkEditing records the first user edit.
	MarkEditing() error
	// Discard drops in-memory edits; on-disk state is untouched. A page
	// that was already saved stays saved.
	Discard()
	// Unsaved names the pending edits the user would lose by leaving.
	Unsaved() []string
	State() State
}

// lifecycle embeds the transition function into a page.
type lifecycle struct {
	state State
}

func (l *lifecycle) State() State { return l.state }

// MarkEditing records the first user edit.
func (l *lifecycle) MarkEditing() error { return l.advance(EventEdit) }

func (l *lifecycle) advance(e Event) error {
	next, err := Next(l.state, e)
	if err != nil {
		return err
	}
	l.state = next
	return nil
}

// HandlerPage is a page whose entire content is policy handlers, such as
// the clipboard and file-copy tabs. Pages with more than one handler save
// all managed files in a single transaction.
type HandlerPage struct {
	lifecycle
	name     string
	mgr      *manager.Manager
	handlers []*handler.Handler
}

// NewClipboardPage builds the clipboard policy page. The default permits
// pasting on explicit request and keeps the admin qube unreachable.
func NewClipboardPage(mgr *manager.Manager) *HandlerPage {
	return &HandlerPage{
		name: "Clipboard",
		mgr:  mgr,
		handlers: []*handler.Handler{handler.New(mgr, handler.Config{
			Service:  "qubes.ClipboardPaste",
			FileName: "50-config-clipboard.policy",
			DefaultPolicy: "qubes.ClipboardPaste\t*\t@adminvm\t@anyvm\tdeny\n" +
				"qubes.ClipboardPaste\t*\t@anyvm\t@anyvm\task\n",
			ViewKind: policy.ViewAskIsAllow,
		})},
	}
}

// NewFileCopyPage builds the file-copy policy page.
func NewFileCopyPage(mgr *manager.Manager) *HandlerPage {
	return &HandlerPage{
		name: "File Copy",
		mgr:  mgr,
		handlers: []*handler.Handler{handler.New(mgr, handler.Config{
			Service:       "qubes.Filecopy",
			FileName:      "50-config-filecopy.policy",
			DefaultPolicy: "qubes.Filecopy\t*\t@anyvm\t@anyvm\task\n",
			ViewKind:      policy.ViewSimple,
		})},
	}
}

// Name implements Page.
func (p *HandlerPage) Name() string { return p.name }

// Handlers exposes the page's policy handlers for the editing surface.
func (p *HandlerPage) Handlers() []*handler.Handler { return p.handlers }

// Load implements Page.
func (p *HandlerPage) Load(_ context.Context) error {
	for _, h := range p.handlers {
		if err := h.LoadFromStorage(); err != nil {
			return err
		}
	}
	return p.advance(EventLoad)
}

// Save implements Page.
func (p *HandlerPage) Save(_ context.Context) error {
	if _, err := Next(p.state, EventSave); err != nil {
		return err
	}
	if len(p.handlers) == 1 {
		if err := p.handlers[0].ApplyToStorage(); err != nil {
			return err
		}
	} else {
		updates := make([]store.Update, len(p.handlers))
		for i, h := range p.handlers {
			updates[i] = h.StagedUpdate()
		}
		if err := p.mgr.Store().ReplaceAll(updates); err != nil {
			return err
		}
		for _, h := range p.handlers {
			if err := h.MarkSaved(); err != nil {
				return err
			}
		}
	}
	p.state = StateSaved
	return nil
}

// Discard implements Page.
func (p *HandlerPage) Discard() {
	next, err := Next(p.state, EventDiscard)
	if err != nil {
		return
	}
	for _, h := range p.handlers {
		h.Reset()
	}
	p.state = next
}

// Unsaved implements Page.
func (p *HandlerPage) Unsaved() []string {
	var out []string
	for _, h := range p.handlers {
		if what := h.UnsavedChanges(); what != "" {
			out = append(out, fmt.Sprintf("%s: %s", h.FileName(), what))
		}
	}
	return out
}
