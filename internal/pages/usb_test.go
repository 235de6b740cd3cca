package pages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qubeconf/internal/manager"
	"qubeconf/internal/policy"
	"qubeconf/internal/qubes"
	"qubeconf/internal/store"
)

func usbFixture(t *testing.T) (*USBPage, *qubes.FakeClient, *manager.Manager) {
	t.Helper()
	client := qubes.NewFakeClient().
		AddQube(qubes.Qube{Name: "sys-usb", Class: qubes.ClassAppVM, State: "Running"}).
		AddQube(qubes.Qube{Name: "work", Class: qubes.ClassAppVM}).
		WithFeature("work", FeatureU2FProxy, "1")
	mgr := manager.New(store.New(t.TempDir()))
	page := NewUSBPage(client, mgr, "")
	require.NoError(t, page.Load(context.Background()))
	return page, client, mgr
}

func TestUSBLoad(t *testing.T) {
	page, _, mgr := usbFixture(t)

	assert.Equal(t, policy.Deny, page.Input().Action("qubes.InputKeyboard"))
	assert.Equal(t, []string{"work"}, page.U2FQubes())
	assert.True(t, page.U2FEnabled("work"))

	// Both managed files were seeded.
	for _, name := range []string{"50-config-input.policy", "50-config-u2f.policy"} {
		_, _, err := mgr.RawFromFile(name, "")
		require.NoError(t, err, name)
	}
}

func TestUSBSaveWritesBothFilesAndFeatures(t *testing.T) {
	page, client, mgr := usbFixture(t)
	ctx := context.Background()

	require.NoError(t, page.Input().SetAction("qubes.InputMouse", policy.Ask))
	require.Error(t, page.SetU2F("no-such", true))
	require.NoError(t, page.SetU2F("sys-usb", true))
	require.NoError(t, page.SetU2F("work", false))
	require.NoError(t, page.MarkEditing())
	assert.NotEmpty(t, page.Unsaved())

	require.NoError(t, page.Save(ctx))
	assert.Equal(t, StateSaved, page.State())
	assert.Empty(t, page.Unsaved())

	rules, _, err := mgr.RulesFromFile("50-config-input.policy", "")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, policy.Ask, rules[1].Action)
	assert.Equal(t, "sys-usb", rules[1].Source)

	value, set, err := client.GetFeature(ctx, "sys-usb", FeatureU2FProxy)
	require.NoError(t, err)
	assert.True(t, set)
	assert.Equal(t, "1", value)

	_, set, err = client.GetFeature(ctx, "work", FeatureU2FProxy)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestUSBDiscard(t *testing.T) {
	page, _, _ := usbFixture(t)

	require.NoError(t, page.Input().SetAction("qubes.InputTablet", policy.Allow))
	require.NoError(t, page.SetU2F("sys-usb", true))
	page.Discard()

	assert.Equal(t, StateDiscarded, page.State())
	assert.Equal(t, policy.Deny, page.Input().Action("qubes.InputTablet"))
	assert.False(t, page.U2FEnabled("sys-usb"))
	assert.Empty(t, page.Unsaved())
}

func TestUSBStaleTokenBlocksWholeSave(t *testing.T) {
	page, _, mgr := usbFixture(t)

	require.NoError(t, page.Input().SetAction("qubes.InputMouse", policy.Ask))
	// External edit to one of the two files between load and save.
	require.NoError(t, mgr.Store().Replace("50-config-u2f.policy", "# external\n", store.AnyToken))

	u2fText, _, err := mgr.RawFromFile("50-config-u2f.policy", "")
	require.NoError(t, err)

	require.ErrorIs(t, page.Save(context.Background()), store.ErrTokenMismatch)

	// Neither file changed: the input edit was not applied either.
	after, _, err := mgr.RawFromFile("50-config-u2f.policy", "")
	require.NoError(t, err)
	assert.Equal(t, u2fText, after)
	rules, _, err := mgr.RulesFromFile("50-config-input.policy", "")
	require.NoError(t, err)
	assert.Equal(t, policy.Deny, rules[1].Action)
}
