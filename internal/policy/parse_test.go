package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    string
		wantErr string
	}{
		{
			name: "plain allow",
			line: "qubes.ClipboardPaste * work personal allow",
			want: "qubes.ClipboardPaste\t*\twork\tpersonal\tallow",
		},
		{
			name: "tabs and extra spaces normalize",
			line: "qubes.Filecopy   *\twork  @anyvm   deny",
			want: "qubes.Filecopy\t*\twork\t@anyvm\tdeny",
		},
		{
			name: "allow with target param",
			line: "qubes.OpenInVM * work @default allow target=disp-mgmt",
			want: "qubes.OpenInVM\t*\twork\t@default\tallow target=disp-mgmt",
		},
		{
			name: "ask with default_target and notify",
			line: "qubes.Filecopy * personal @default ask default_target=vault notify=yes",
			want: "qubes.Filecopy\t*\tpersonal\t@default\task default_target=vault notify=yes",
		},
		{
			name: "argument",
			line: "u2f.Register +app * sys-usb allow",
			want: "u2f.Register\t+app\t*\tsys-usb\tallow",
		},
		{
			name: "tag selectors",
			line: "qubes.UpdatesProxy * @tag:whonix-updatevm @default allow target=sys-whonix",
			want: "qubes.UpdatesProxy\t*\t@tag:whonix-updatevm\t@default\tallow target=sys-whonix",
		},
		{
			name:    "malformed qualifier",
			line:    "qubes.Filecopy * work @anyvm allow target",
			wantErr: "malformed qualifier",
		},
		{
			name:    "qualifier invalid for deny",
			line:    "qubes.Filecopy * work @anyvm deny target=vault",
			wantErr: `not valid for action "deny"`,
		},
		{
			name:    "bad notify value",
			line:    "qubes.Filecopy * work @anyvm deny notify=maybe",
			wantErr: "must be yes or no",
		},
		{
			name:    "duplicate qualifier",
			line:    "qubes.Filecopy * work @anyvm allow user=root user=user",
			wantErr: "duplicate qualifier",
		},
		{
			name:    "default as source",
			line:    "qubes.Filecopy * @default @anyvm deny",
			wantErr: "only valid as a target",
		},
		{
			name:    "unknown keyword",
			line:    "qubes.Filecopy * @everything @anyvm deny",
			wantErr: "unknown keyword",
		},
		{
			name:    "bad argument",
			line:    "qubes.Filecopy arg work @anyvm deny",
			wantErr: "invalid argument",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rule, err := ParseRule(tc.line)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, rule.String())
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	text := strings.Join([]string{
		"# managed by the configuration tool",
		"",
		"qubes.ClipboardPaste\t*\twork\t@anyvm\tallow",
		"qubes.ClipboardPaste\t*\tpersonal\tbanking\task",
		"qubes.ClipboardPaste\t*\t@anyvm\t@anyvm\tdeny",
	}, "\n") + "\n"

	file, err := Parse("50-config-clipboard.policy", text)
	require.NoError(t, err)
	assert.Equal(t, text, file.String())
	assert.Len(t, file.Rules(), 3)
}

func TestParsePreservesUnrecognizedLines(t *testing.T) {
	text := strings.Join([]string{
		"!include include/admin-global-ro",
		"qubes.Filecopy\t*\twork\t@anyvm\tdeny",
		"some hand edited garbage",
	}, "\n") + "\n"

	file, err := Parse("30-user.policy", text)
	// Lines that do not resemble rules pass through without error.
	require.NoError(t, err)
	require.Len(t, file.Lines, 3)
	assert.Equal(t, LineRaw, file.Lines[0].Kind)
	assert.Equal(t, LineRule, file.Lines[1].Kind)
	assert.Equal(t, LineRaw, file.Lines[2].Kind)
	assert.Equal(t, text, file.String())
}

func TestParseReportsMalformedRuleButKeepsLine(t *testing.T) {
	text := "qubes.Filecopy * work @anyvm deny target=vault\n"

	file, err := Parse("50-config-filecopy.policy", text)
	require.Error(t, err)
	var list *ErrorList
	require.ErrorAs(t, err, &list)
	require.Len(t, list.Errors, 1)
	assert.Equal(t, 1, list.Errors[0].Line)
	assert.Equal(t, "50-config-filecopy.policy", list.Errors[0].File)

	// The offending line is retained verbatim, never dropped.
	assert.Equal(t, text, file.String())
}

func TestParseBlankAndCommentOrdering(t *testing.T) {
	text := "# one\n\n# two\nqubes.Filecopy\t*\t@anyvm\t@anyvm\task\n"
	file, err := Parse("x.policy", text)
	require.NoError(t, err)
	kinds := make([]LineKind, len(file.Lines))
	for i, l := range file.Lines {
		kinds[i] = l.Kind
	}
	assert.Equal(t, []LineKind{LineComment, LineBlank, LineComment, LineRule}, kinds)
}

func TestRuleOverlaps(t *testing.T) {
	base, err := ParseRule("qubes.Filecopy * work @anyvm deny")
	require.NoError(t, err)

	same, err := ParseRule("qubes.Filecopy * work vault allow")
	require.NoError(t, err)
	assert.True(t, base.Overlaps(same))

	other, err := ParseRule("qubes.Filecopy * personal vault allow")
	require.NoError(t, err)
	assert.False(t, base.Overlaps(other))

	tagged, err := ParseRule("qubes.Filecopy * @tag:work-ish vault allow")
	require.NoError(t, err)
	assert.True(t, tagged.Overlaps(same))
}

func TestCompareTokens(t *testing.T) {
	assert.Equal(t, 0, CompareTokens("work", "work"))
	assert.Equal(t, -1, CompareTokens("banking", "work"))
	// Concrete names sort before keywords, @anyvm always last.
	assert.Equal(t, -1, CompareTokens("work", "@tag:audio"))
	assert.Equal(t, 1, CompareTokens("@anyvm", "@tag:audio"))
	assert.Equal(t, -1, CompareTokens("@adminvm", "@anyvm"))
}
