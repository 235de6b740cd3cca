package qubes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQubeList(t *testing.T) {
	text := "sys-net class=AppVM state=Running\n" +
		"work class=AppVM state=Halted\n" +
		"fedora-40 class=TemplateVM state=Halted\n"

	qubes, err := parseQubeList(text)
	require.NoError(t, err)
	require.Len(t, qubes, 3)
	// Sorted by name.
	assert.Equal(t, "fedora-40", qubes[0].Name)
	assert.True(t, qubes[0].IsTemplate())
	assert.Equal(t, "sys-net", qubes[1].Name)
	assert.True(t, qubes[1].IsRunning())
	assert.Equal(t, "work", qubes[2].Name)
}

func TestParseQubeListMalformed(t *testing.T) {
	_, err := parseQubeList("work classAppVM\n")
	require.Error(t, err)
}

func TestParseQubeListSkipsBlankLines(t *testing.T) {
	qubes, err := parseQubeList("work class=AppVM state=Running\n   \n\n")
	require.NoError(t, err)
	require.Len(t, qubes, 1)
	assert.Equal(t, "work", qubes[0].Name)
}

func TestParseProperty(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Property
	}{
		{
			name: "explicit vm value",
			text: "default=False type=vm sys-firewall",
			want: Property{Value: "sys-firewall", Type: "vm", Default: false},
		},
		{
			name: "inherited default",
			text: "default=True type=str 6.6.2",
			want: Property{Value: "6.6.2", Type: "str", Default: true},
		},
		{
			name: "empty value",
			text: "default=False type=vm ",
			want: Property{Value: "", Type: "vm", Default: false},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prop, err := parseProperty(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.want, prop)
		})
	}
}

func TestParsePropertyMalformed(t *testing.T) {
	_, err := parseProperty("sys-firewall")
	require.Error(t, err)
}

func TestParseResponse(t *testing.T) {
	data, err := parseResponse([]byte("0\x00hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = parseResponse([]byte("2\x00QubesNoSuchVMError\x00traceback\x00no such qube: %s\x00work"))
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "QubesNoSuchVMError", apiErr.Kind)

	_, err = parseResponse([]byte("x"))
	require.Error(t, err)
}

func TestFakeClientCreateQube(t *testing.T) {
	fake := NewFakeClient().
		AddQube(Qube{Name: "fedora-40", Class: ClassTemplateVM}).
		AddQube(Qube{Name: "work", Class: ClassAppVM})

	ctx := context.Background()

	err := fake.CreateQube(ctx, CreateSpec{Name: "work", Class: ClassAppVM, Label: "blue", Template: "fedora-40"})
	require.Error(t, err, "duplicate names are rejected")

	err = fake.CreateQube(ctx, CreateSpec{
		Name: "banking", Class: ClassAppVM, Label: "green", Template: "fedora-40",
		Properties: map[string]string{"netvm": "sys-firewall"},
	})
	require.NoError(t, err)

	prop, err := fake.GetProperty(ctx, "banking", "netvm")
	require.NoError(t, err)
	assert.Equal(t, "sys-firewall", prop.Value)

	// Using a non-template as an AppVM base is rejected.
	err = fake.CreateQube(ctx, CreateSpec{Name: "bad", Class: ClassAppVM, Label: "red", Template: "work"})
	require.Error(t, err)
}

func TestFakeClientFeatures(t *testing.T) {
	fake := NewFakeClient().AddQube(Qube{Name: "work", Class: ClassAppVM})
	ctx := context.Background()

	_, set, err := fake.GetFeature(ctx, "work", "service.qubes-u2f-proxy")
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, fake.SetFeature(ctx, "work", "service.qubes-u2f-proxy", "1"))
	value, set, err := fake.GetFeature(ctx, "work", "service.qubes-u2f-proxy")
	require.NoError(t, err)
	assert.True(t, set)
	assert.Equal(t, "1", value)

	require.NoError(t, fake.RemoveFeature(ctx, "work", "service.qubes-u2f-proxy"))
	_, set, err = fake.GetFeature(ctx, "work", "service.qubes-u2f-proxy")
	require.NoError(t, err)
	assert.False(t, set)
}
