package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAndRecent(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, logger.Log(NewEntry("50-config-clipboard.policy", "", "abc", 42)))
	require.NoError(t, logger.Log(NewEntry("50-config-updates.policy", "abc", "def", 80)))

	entries, err := logger.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, "50-config-updates.policy", entries[0].File)
	assert.Equal(t, "50-config-clipboard.policy", entries[1].File)
	assert.Empty(t, entries[1].OldToken)
	assert.NotEmpty(t, entries[0].ID)
}

func TestRecentHonorsLimit(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(NewEntry("50-config-input.policy", "a", "b", 10)))
	}
	entries, err := logger.Recent(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDisabledLoggerIsSilent(t *testing.T) {
	logger := Disabled()
	require.NoError(t, logger.Log(NewEntry("x.policy", "", "t", 1)))
	entries, err := logger.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecentWithoutLogFile(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	require.NoError(t, err)
	entries, err := logger.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
