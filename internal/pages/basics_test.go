package pages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qubeconf/internal/qubes"
)

func basicsClient() *qubes.FakeClient {
	return qubes.NewFakeClient().
		AddQube(qubes.Qube{Name: "fedora-40", Class: qubes.ClassTemplateVM}).
		AddQube(qubes.Qube{Name: "debian-12", Class: qubes.ClassTemplateVM}).
		AddQube(qubes.Qube{Name: "work", Class: qubes.ClassAppVM}).
		AddQube(qubes.Qube{Name: "sys-net", Class: qubes.ClassAppVM, State: "Running"}).
		AddQube(qubes.Qube{Name: "sys-firewall", Class: qubes.ClassAppVM, State: "Running"}).
		WithProperty("sys-net", "provides_network", qubes.Property{Value: "True", Type: "bool"}).
		WithProperty("sys-firewall", "provides_network", qubes.Property{Value: "True", Type: "bool"}).
		WithProperty(qubes.AdminQube, PropDefaultTemplate, qubes.Property{Value: "fedora-40", Type: "vm"}).
		WithProperty(qubes.AdminQube, PropDefaultNetVM, qubes.Property{Value: "sys-firewall", Type: "vm"}).
		WithProperty(qubes.AdminQube, PropDefaultDispVM, qubes.Property{Value: "", Type: "vm"}).
		WithProperty(qubes.AdminQube, PropClockVM, qubes.Property{Value: "sys-net", Type: "vm"}).
		WithProperty(qubes.AdminQube, PropDefaultKernel, qubes.Property{Value: "6.6.2", Type: "str"})
}

func loadedBasics(t *testing.T) (*BasicsPage, *qubes.FakeClient) {
	t.Helper()
	client := basicsClient()
	page := NewBasicsPage(client)
	require.NoError(t, page.Load(context.Background()))
	return page, client
}

func TestBasicsLoad(t *testing.T) {
	page, _ := loadedBasics(t)

	assert.Equal(t, "fedora-40", page.Value(PropDefaultTemplate))
	assert.Equal(t, []string{"debian-12", "fedora-40"}, page.Templates())
	assert.Equal(t, []string{"sys-firewall", "sys-net"}, page.NetworkQubes())
	assert.Equal(t, StateLoaded, page.State())
	assert.Empty(t, page.Unsaved())
}

func TestBasicsSelectionTimeValidation(t *testing.T) {
	page, _ := loadedBasics(t)

	// Incompatible qube types are rejected when selected, not at save.
	require.Error(t, page.Set(PropDefaultTemplate, "work"))
	require.Error(t, page.Set(PropDefaultNetVM, "work"))
	require.Error(t, page.Set(PropDefaultKernel, "9.9.9"))
	require.Error(t, page.Set(PropClockVM, "no-such"))
	require.Error(t, page.Set("memory", "4096"))
	assert.Equal(t, StateLoaded, page.State(), "rejected edits do not start editing")

	require.NoError(t, page.Set(PropDefaultTemplate, "debian-12"))
	require.NoError(t, page.Set(PropDefaultNetVM, "sys-net"))
	require.NoError(t, page.Set(PropDefaultKernel, "6.1.1"))
	assert.Equal(t, StateEditing, page.State())
	assert.Equal(t, []string{PropDefaultTemplate, PropDefaultNetVM, PropDefaultKernel}, page.Unsaved())
}

func TestBasicsSaveWritesOnlyChanges(t *testing.T) {
	page, client := loadedBasics(t)
	ctx := context.Background()

	require.NoError(t, page.Set(PropDefaultTemplate, "debian-12"))
	require.NoError(t, page.Save(ctx))
	assert.Equal(t, StateSaved, page.State())

	prop, err := client.GetProperty(ctx, qubes.AdminQube, PropDefaultTemplate)
	require.NoError(t, err)
	assert.Equal(t, "debian-12", prop.Value)

	// Untouched properties keep their inherited state.
	prop, err = client.GetProperty(ctx, qubes.AdminQube, PropDefaultNetVM)
	require.NoError(t, err)
	assert.Equal(t, "sys-firewall", prop.Value)
}

func TestBasicsDiscardRevertsValues(t *testing.T) {
	page, _ := loadedBasics(t)

	require.NoError(t, page.Set(PropDefaultTemplate, "debian-12"))
	page.Discard()
	assert.Equal(t, StateDiscarded, page.State())
	assert.Equal(t, "fedora-40", page.Value(PropDefaultTemplate))
	assert.Empty(t, page.Unsaved())
}
