package pages

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qubeconf/internal/manager"
	"qubeconf/internal/policy"
	"qubeconf/internal/store"
)

func TestLifecycleTransitions(t *testing.T) {
	tests := []struct {
		state State
		event Event
		want  State
		ok    bool
	}{
		{StateLoaded, EventEdit, StateEditing, true},
		{StateEditing, EventEdit, StateEditing, true},
		{StateLoaded, EventSave, StateSaved, true},
		{StateEditing, EventSave, StateSaved, true},
		{StateLoaded, EventDiscard, StateDiscarded, true},
		{StateEditing, EventDiscard, StateDiscarded, true},
		{StateSaved, EventLoad, StateLoaded, true},
		{StateDiscarded, EventLoad, StateLoaded, true},
		{StateSaved, EventEdit, StateSaved, false},
		{StateDiscarded, EventSave, StateDiscarded, false},
		{StateDiscarded, EventDiscard, StateDiscarded, false},
	}
	for _, tc := range tests {
		got, err := Next(tc.state, tc.event)
		if tc.ok {
			require.NoError(t, err, "%s on %s", tc.event, tc.state)
			assert.Equal(t, tc.want, got)
		} else {
			require.Error(t, err, "%s on %s", tc.event, tc.state)
		}
	}
}

func TestClipboardPageLifecycle(t *testing.T) {
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	page := NewClipboardPage(mgr)
	ctx := context.Background()

	require.NoError(t, page.Load(ctx))
	assert.Equal(t, StateLoaded, page.State())
	assert.Empty(t, page.Unsaved())

	h := page.Handlers()[0]
	h.SetCustom(true)
	row, err := h.AddRule()
	require.NoError(t, err)
	require.NoError(t, h.UpdateRow(row.ID, "personal", "banking", policy.Ask))
	require.NoError(t, page.MarkEditing())
	assert.Equal(t, StateEditing, page.State())
	assert.NotEmpty(t, page.Unsaved())

	require.NoError(t, page.Save(ctx))
	assert.Equal(t, StateSaved, page.State())
	assert.Empty(t, page.Unsaved())

	// Editing a saved page requires a fresh load.
	require.Error(t, page.MarkEditing())
}

func TestClipboardPageDiscardKeepsFileIdentical(t *testing.T) {
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	page := NewClipboardPage(mgr)
	ctx := context.Background()
	require.NoError(t, page.Load(ctx))

	path := filepath.Join(dir, "50-config-clipboard.policy")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	h := page.Handlers()[0]
	h.SetCustom(true)
	row, err := h.AddRule()
	require.NoError(t, err)
	require.NoError(t, h.UpdateRow(row.ID, "personal", "banking", policy.Ask))
	require.NoError(t, page.MarkEditing())

	page.Discard()
	assert.Equal(t, StateDiscarded, page.State())
	assert.Empty(t, page.Unsaved())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDiscardAfterSaveIsNoOp(t *testing.T) {
	mgr := manager.New(store.New(t.TempDir()))
	page := NewFileCopyPage(mgr)
	ctx := context.Background()
	require.NoError(t, page.Load(ctx))
	require.NoError(t, page.Save(ctx))

	page.Discard()
	assert.Equal(t, StateSaved, page.State())
}

func TestFileCopyPageSeedsDefault(t *testing.T) {
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	page := NewFileCopyPage(mgr)
	require.NoError(t, page.Load(context.Background()))

	text, _, err := mgr.RawFromFile("50-config-filecopy.policy", "")
	require.NoError(t, err)
	assert.Contains(t, text, "qubes.Filecopy")
}
