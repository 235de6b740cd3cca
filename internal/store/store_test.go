package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAndReplace(t *testing.T) {
	s := New(t.TempDir())

	// New managed file: empty token means "must not exist yet".
	err := s.Replace("50-config-clipboard.policy", "qubes.ClipboardPaste\t*\t@anyvm\t@anyvm\task\n", "")
	require.NoError(t, err)

	text, token, err := s.Get("50-config-clipboard.policy")
	require.NoError(t, err)
	assert.Contains(t, text, "qubes.ClipboardPaste")
	require.NotEmpty(t, token)

	// A valid token allows rewrite.
	require.NoError(t, s.Replace("50-config-clipboard.policy", "# empty\n", token))

	// The stale token is now rejected.
	err = s.Replace("50-config-clipboard.policy", "# stomp\n", token)
	require.ErrorIs(t, err, ErrTokenMismatch)

	// AnyToken bypasses the check.
	require.NoError(t, s.Replace("50-config-clipboard.policy", "# force\n", AnyToken))
}

func TestReplaceRefusesCreateWithStaleToken(t *testing.T) {
	s := New(t.TempDir())
	err := s.Replace("50-config-input.policy", "x\n", "deadbeef")
	require.ErrorIs(t, err, ErrTokenMismatch)
}

func TestGetMissing(t *testing.T) {
	s := New(t.TempDir())
	_, _, err := s.Get("50-config-missing.policy")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListIsLexical(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"90-default.policy", "30-user.policy", "50-config-clipboard.policy"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("# x\n"), 0644))
	}
	// Non-policy files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi"), 0644))

	s := New(dir)
	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"30-user.policy", "50-config-clipboard.policy", "90-default.policy"}, names)
}

func TestBefore(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"30-user.policy", "50-config-clipboard.policy", "90-default.policy"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("# x\n"), 0644))
	}
	s := New(dir)

	before, err := s.Before("50-config-clipboard.policy")
	require.NoError(t, err)
	assert.Equal(t, []string{"30-user.policy"}, before)

	before, err = s.Before("30-user.policy")
	require.NoError(t, err)
	assert.Empty(t, before)
}

func TestReplaceRefusesForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "30-user.policy"), []byte("# theirs\n"), 0644))
	s := New(dir)

	err := s.Replace("30-user.policy", "# ours\n", AnyToken)
	require.Error(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "30-user.policy"))
	require.NoError(t, err)
	assert.Equal(t, "# theirs\n", string(data))

	// The same guard applies to the transactional path, before any write.
	err = s.ReplaceAll([]Update{
		{Name: "50-config-x.policy", Text: "# ok\n", Token: ""},
		{Name: "30-user.policy", Text: "# ours\n", Token: AnyToken},
	})
	require.Error(t, err)
	_, err = os.Stat(filepath.Join(dir, "50-config-x.policy"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveRefusesForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "30-user.policy"), []byte("# x\n"), 0644))
	s := New(dir)

	err := s.Remove("30-user.policy")
	require.Error(t, err)
	_, err = os.Stat(filepath.Join(dir, "30-user.policy"))
	assert.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "50-config-x.policy"), []byte("# x\n"), 0644))
	require.NoError(t, s.Remove("50-config-x.policy"))
}

func TestTokenTracksContent(t *testing.T) {
	a := Token([]byte("one"))
	b := Token([]byte("two"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Token([]byte("one")))
}

func TestReplaceAllIsAtomic(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Replace("50-config-input.policy", "# input\n", ""))
	_, token, err := s.Get("50-config-input.policy")
	require.NoError(t, err)

	// One stale token blocks the whole batch.
	err = s.ReplaceAll([]Update{
		{Name: "50-config-input.policy", Text: "# new input\n", Token: "bogus"},
		{Name: "50-config-u2f.policy", Text: "# u2f\n", Token: ""},
	})
	require.ErrorIs(t, err, ErrTokenMismatch)
	_, err = os.Stat(filepath.Join(s.Dir(), "50-config-u2f.policy"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.ReplaceAll([]Update{
		{Name: "50-config-input.policy", Text: "# new input\n", Token: token},
		{Name: "50-config-u2f.policy", Text: "# u2f\n", Token: ""},
	}))
	text, _, err := s.Get("50-config-u2f.policy")
	require.NoError(t, err)
	assert.Equal(t, "# u2f\n", text)
}

func TestWriteObserverSeesCommits(t *testing.T) {
	s := New(t.TempDir())
	type write struct {
		name, oldToken, newToken string
	}
	var seen []write
	s.SetWriteObserver(func(name, oldToken, newToken string, size int) {
		seen = append(seen, write{name, oldToken, newToken})
	})

	require.NoError(t, s.Replace("50-config-clipboard.policy", "# v1\n", ""))
	require.Len(t, seen, 1)
	assert.Empty(t, seen[0].oldToken)
	assert.Equal(t, Token([]byte("# v1\n")), seen[0].newToken)

	_, token, err := s.Get("50-config-clipboard.policy")
	require.NoError(t, err)
	require.NoError(t, s.Replace("50-config-clipboard.policy", "# v2\n", token))
	require.Len(t, seen, 2)
	assert.Equal(t, seen[0].newToken, seen[1].oldToken)

	// A rejected write is never observed.
	require.Error(t, s.Replace("50-config-clipboard.policy", "# v3\n", "stale"))
	assert.Len(t, seen, 2)
}
