package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, AtomicWrite(path, []byte("a: 1\n"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(data))

	// Overwrite replaces content in full.
	require.NoError(t, AtomicWrite(path, []byte("b: 2\n"), 0600))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "b: 2\n", string(data))
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AtomicWrite(filepath.Join(dir, "f.policy"), []byte("x\n"), 0644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f.policy", entries[0].Name())
}

func TestTransactionCommit(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "one.policy")
	require.NoError(t, os.WriteFile(existing, []byte("old\n"), 0644))

	tx, err := NewTransaction()
	require.NoError(t, err)
	require.NoError(t, tx.Write(existing, []byte("new\n"), 0644))
	require.NoError(t, tx.Write(filepath.Join(dir, "two.policy"), []byte("fresh\n"), 0644))
	require.NoError(t, tx.Commit())

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))
	data, err = os.ReadFile(filepath.Join(dir, "two.policy"))
	require.NoError(t, err)
	assert.Equal(t, "fresh\n", string(data))
}

func TestTransactionDiscard(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "one.policy")
	require.NoError(t, os.WriteFile(existing, []byte("old\n"), 0644))

	tx, err := NewTransaction()
	require.NoError(t, err)
	require.NoError(t, tx.Write(existing, []byte("new\n"), 0644))
	tx.Discard()

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(data))
}
