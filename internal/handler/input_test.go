package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qubeconf/internal/manager"
	"qubeconf/internal/policy"
	"qubeconf/internal/store"
)

var inputServices = []string{
	"qubes.InputKeyboard",
	"qubes.InputMouse",
	"qubes.InputTablet",
}

func newFixed(t *testing.T) (*FixedHandler, *manager.Manager) {
	t.Helper()
	mgr := manager.New(store.New(t.TempDir()))
	h := NewFixed(mgr, "50-config-input.policy", inputServices, "sys-usb", "@adminvm")
	require.NoError(t, h.LoadFromStorage())
	return h, mgr
}

func TestFixedSeedsDenyAll(t *testing.T) {
	h, _ := newFixed(t)

	for _, service := range inputServices {
		assert.Equal(t, policy.Deny, h.Action(service))
	}
	assert.Empty(t, h.Warnings())
	assert.Empty(t, h.UnsavedChanges())
}

func TestFixedSetActionAndSave(t *testing.T) {
	h, mgr := newFixed(t)

	require.NoError(t, h.SetAction("qubes.InputMouse", policy.Ask))
	assert.Equal(t, []string{"qubes.InputMouse"}, h.UnsavedChanges())
	require.NoError(t, h.ApplyToStorage())
	assert.Empty(t, h.UnsavedChanges())

	rules, _, err := mgr.RulesFromFile("50-config-input.policy", "")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	// Fixed order follows the service list.
	assert.Equal(t, "qubes.InputKeyboard", rules[0].Service)
	assert.Equal(t, policy.Deny, rules[0].Action)
	assert.Equal(t, "qubes.InputMouse", rules[1].Service)
	assert.Equal(t, policy.Ask, rules[1].Action)
	assert.Equal(t, "sys-usb", rules[1].Source)
	assert.Equal(t, policy.TokenAdminVM, rules[1].Target)
}

func TestFixedRejectsUnknownService(t *testing.T) {
	h, _ := newFixed(t)
	require.Error(t, h.SetAction("qubes.ClipboardPaste", policy.Ask))
}

func TestFixedReset(t *testing.T) {
	h, _ := newFixed(t)

	require.NoError(t, h.SetAction("qubes.InputKeyboard", policy.Allow))
	h.Reset()
	assert.Equal(t, policy.Deny, h.Action("qubes.InputKeyboard"))
	assert.Empty(t, h.UnsavedChanges())
}

func TestFixedWarnsOnUnexpectedShape(t *testing.T) {
	mgr := manager.New(store.New(t.TempDir()))
	require.NoError(t, mgr.Store().Replace("50-config-input.policy",
		"qubes.InputMouse\t*\tsys-usb\t@adminvm\tallow\n"+
			"qubes.InputMouse\t*\twork\t@adminvm\tallow\n", ""))

	h := NewFixed(mgr, "50-config-input.policy", inputServices, "sys-usb", "@adminvm")
	require.NoError(t, h.LoadFromStorage())

	// The recognized rule is picked up; the foreign-source one is flagged.
	assert.Equal(t, policy.Allow, h.Action("qubes.InputMouse"))
	assert.Equal(t, policy.Deny, h.Action("qubes.InputKeyboard"))
	require.NotEmpty(t, h.Warnings())
	assert.True(t, strings.Contains(h.Warnings()[0], "work"))

	// Saving rewrites the file into the expected shape.
	require.NoError(t, h.ApplyToStorage())
	require.NoError(t, h.LoadFromStorage())
	assert.Empty(t, h.Warnings())
}

func TestFixedStaleToken(t *testing.T) {
	h, mgr := newFixed(t)
	require.NoError(t, h.SetAction("qubes.InputTablet", policy.Ask))
	require.NoError(t, mgr.Store().Replace("50-config-input.policy", "# external\n", store.AnyToken))

	require.ErrorIs(t, h.ApplyToStorage(), store.ErrTokenMismatch)
}
