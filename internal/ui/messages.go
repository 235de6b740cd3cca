package ui

import "qubeconf/internal/watcher"

// pagesLoadedMsg is sent once every page has loaded its backing state.
type pagesLoadedMsg struct {
	err error
}

// saveDoneMsg reports the outcome of saving the active page.
type saveDoneMsg struct {
	page string
	err  error
}

// policyChangedMsg is delivered when the watcher sees an external edit to
// the policy directory.
type policyChangedMsg struct {
	event watcher.Event
}

// reloadDoneMsg reports the outcome of reloading the active page after an
// external change.
type reloadDoneMsg struct {
	err error
}

// clearStatusMsg expires a transient status line.
type clearStatusMsg struct {
	seq int
}

// qubeCreatedMsg reports the outcome of the wizard's create call.
type qubeCreatedMsg struct {
	name string
	err  error
}
