package handler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qubeconf/internal/manager"
	"qubeconf/internal/policy"
	"qubeconf/internal/store"
)

const clipboardDefault = "qubes.ClipboardPaste\t*\t@adminvm\t@anyvm\tdeny\n" +
	"qubes.ClipboardPaste\t*\t@anyvm\t@anyvm\task\n"

func clipboardConfig() Config {
	return Config{
		Service:       "qubes.ClipboardPaste",
		FileName:      "50-config-clipboard.policy",
		DefaultPolicy: clipboardDefault,
		ViewKind:      policy.ViewAskIsAllow,
	}
}

func newHandler(t *testing.T, cfg Config) (*Handler, *manager.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	h := New(mgr, cfg)
	require.NoError(t, h.LoadFromStorage())
	return h, mgr, dir
}

func findException(t *testing.T, h *Handler, source string) *Row {
	t.Helper()
	for _, row := range h.Exceptions() {
		if row.View.Source() == source {
			return row
		}
	}
	t.Fatalf("no exception row with source %s", source)
	return nil
}

func TestLoadSeedsDefaultAndSplitsRows(t *testing.T) {
	h, _, _ := newHandler(t, clipboardConfig())

	// @anyvm -> @anyvm anchors the primary list; the admin rule is a
	// protected exception.
	require.Len(t, h.Primary(), 1)
	assert.Equal(t, policy.Ask, h.Primary()[0].View.Action())
	require.Len(t, h.Exceptions(), 1)
	assert.True(t, h.Exceptions()[0].Protected)

	// Content equals the default policy, so custom editing is off.
	assert.False(t, h.CustomEnabled())
}

func TestAddExceptionScenario(t *testing.T) {
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	cfg := Config{
		Service:       "qubes.ClipboardPaste",
		FileName:      "50-config-clipboard.policy",
		DefaultPolicy: "qubes.ClipboardPaste\t*\twork\t@anyvm\tallow\n",
		ViewKind:      policy.ViewSimple,
	}
	require.NoError(t, mgr.Store().Replace(cfg.FileName, cfg.DefaultPolicy, ""))

	h := New(mgr, cfg)
	require.NoError(t, h.LoadFromStorage())
	h.SetCustom(true)

	row, err := h.AddRule()
	require.NoError(t, err)
	require.NoError(t, h.UpdateRow(row.ID, "personal", "banking", policy.Ask))
	require.NoError(t, h.ApplyToStorage())

	text, _, err := mgr.RawFromFile(cfg.FileName, "")
	require.NoError(t, err)
	rules, err := mgr.TextToRules(text)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	// Primary rule first, the new exception after it.
	assert.Equal(t, "work", rules[0].Source)
	assert.Equal(t, policy.Allow, rules[0].Action)
	assert.Equal(t, "personal", rules[1].Source)
	assert.Equal(t, "banking", rules[1].Target)
	assert.Equal(t, policy.Ask, rules[1].Action)
}

func TestConfirmationGating(t *testing.T) {
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	cfg := clipboardConfig()
	// Pre-existing custom rule that the user did not create this session.
	require.NoError(t, mgr.Store().Replace(cfg.FileName,
		"qubes.ClipboardPaste\t*\twork\tpersonal\task\n"+clipboardDefault, ""))

	h := New(mgr, cfg)
	require.NoError(t, h.LoadFromStorage())
	assert.True(t, h.CustomEnabled())

	row := findException(t, h, "work")
	require.True(t, row.RequireConfirm)

	err := h.UpdateRow(row.ID, "work", "vault", policy.Ask)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, h.Unlock(row.ID))
	require.NoError(t, h.UpdateRow(row.ID, "work", "vault", policy.Ask))
	assert.Equal(t, "vault", row.View.Target())
}

func TestDeleteRequiresUnlock(t *testing.T) {
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	cfg := clipboardConfig()
	require.NoError(t, mgr.Store().Replace(cfg.FileName,
		"qubes.ClipboardPaste\t*\twork\tpersonal\task\n"+clipboardDefault, ""))

	h := New(mgr, cfg)
	require.NoError(t, h.LoadFromStorage())
	row := findException(t, h, "work")

	require.ErrorIs(t, h.DeleteRow(row.ID), ErrLocked)
	require.NoError(t, h.Unlock(row.ID))
	require.NoError(t, h.DeleteRow(row.ID))
	assert.NotEmpty(t, h.UnsavedChanges())
}

func TestProtectedRulesAreReadOnly(t *testing.T) {
	h, _, _ := newHandler(t, clipboardConfig())

	admin := h.Exceptions()[0]
	require.True(t, admin.Protected)
	assert.ErrorIs(t, h.UpdateRow(admin.ID, "work", "@anyvm", policy.Deny), ErrProtected)
	assert.ErrorIs(t, h.DeleteRow(admin.ID), ErrProtected)
	assert.ErrorIs(t, h.Unlock(admin.ID), ErrProtected)

	primary := h.Primary()[0]
	assert.ErrorIs(t, h.UpdateRow(primary.ID, "work", "@anyvm", policy.Deny), ErrProtected)
}

func TestDiscardLeavesFileByteIdentical(t *testing.T) {
	h, mgr, dir := newHandler(t, clipboardConfig())
	path := filepath.Join(dir, "50-config-clipboard.policy")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	h.SetCustom(true)
	row, err := h.AddRule()
	require.NoError(t, err)
	require.NoError(t, h.UpdateRow(row.ID, "personal", "banking", policy.Ask))
	require.NotEmpty(t, h.UnsavedChanges())

	// Tab switch without save: reset, nothing written.
	h.Reset()
	assert.Empty(t, h.UnsavedChanges())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_ = mgr
}

func TestOrderPreservedThroughSave(t *testing.T) {
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	cfg := Config{
		Service:       "qubes.Filecopy",
		FileName:      "50-config-filecopy.policy",
		DefaultPolicy: "qubes.Filecopy\t*\t@anyvm\t@anyvm\task\n",
		ViewKind:      policy.ViewSimple,
	}
	require.NoError(t, mgr.Store().Replace(cfg.FileName,
		"qubes.Filecopy\t*\twork\tvault\tallow\n"+
			"qubes.Filecopy\t*\tpersonal\tvault\tdeny\n"+
			"qubes.Filecopy\t*\t@anyvm\t@anyvm\task\n", ""))

	h := New(mgr, cfg)
	require.NoError(t, h.LoadFromStorage())
	require.NoError(t, h.ApplyToStorage())

	rules, _, err := mgr.RulesFromFile(cfg.FileName, "")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	// The exceptions keep their relative display order and precede the
	// catch-all that would otherwise shadow them.
	assert.Equal(t, "work", rules[0].Source)
	assert.Equal(t, "personal", rules[1].Source)
	assert.Equal(t, policy.TokenAnyVM, rules[2].Source)
}

func TestExceptionPrecedesCatchAllDefault(t *testing.T) {
	h, _, _ := newHandler(t, clipboardConfig())
	h.SetCustom(true)

	row, err := h.AddRule()
	require.NoError(t, err)
	// The default @anyvm -> @anyvm ask covers vault -> work; the override
	// is only reachable if it is saved ahead of the catch-all.
	require.NoError(t, h.UpdateRow(row.ID, "vault", "work", policy.Deny))

	rules := h.ExportToRules()
	require.Len(t, rules, 3)
	assert.Equal(t, policy.TokenAdminVM, rules[0].Source)
	assert.Equal(t, "vault", rules[1].Source)
	assert.Equal(t, policy.Deny, rules[1].Action)
	assert.Equal(t, policy.TokenAnyVM, rules[2].Source)
	assert.Equal(t, policy.Ask, rules[2].Action)
}

func TestMoveRowReorders(t *testing.T) {
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	cfg := Config{
		Service:       "qubes.Filecopy",
		FileName:      "50-config-filecopy.policy",
		DefaultPolicy: "qubes.Filecopy\t*\t@anyvm\t@anyvm\task\n",
		ViewKind:      policy.ViewSimple,
	}
	require.NoError(t, mgr.Store().Replace(cfg.FileName,
		"qubes.Filecopy\t*\twork\tvault\tallow\n"+
			"qubes.Filecopy\t*\tpersonal\tvault\tdeny\n", ""))
	h := New(mgr, cfg)
	require.NoError(t, h.LoadFromStorage())

	first := h.Exceptions()[0]
	require.NoError(t, h.MoveRow(first.ID, 1))
	assert.Equal(t, "personal", h.Exceptions()[0].View.Source())
	assert.NotEmpty(t, h.UnsavedChanges())

	// Moving past the end is a no-op, not an error.
	require.NoError(t, h.MoveRow(first.ID, 5))
}

func TestUpdateRowRejectsConflicts(t *testing.T) {
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	cfg := clipboardConfig()
	require.NoError(t, mgr.Store().Replace(cfg.FileName,
		"qubes.ClipboardPaste\t*\twork\tpersonal\task\n"+clipboardDefault, ""))
	h := New(mgr, cfg)
	require.NoError(t, h.LoadFromStorage())

	row, err := h.AddRule()
	require.NoError(t, err)
	// work -> personal is already covered by an existing rule.
	err = h.UpdateRow(row.ID, "work", "personal", policy.Deny)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Error(), "work")
}

func TestUpdateRowRejectsBadTokens(t *testing.T) {
	h, _, _ := newHandler(t, clipboardConfig())
	h.SetCustom(true)
	row, err := h.AddRule()
	require.NoError(t, err)

	assert.Error(t, h.UpdateRow(row.ID, "@default", "@anyvm", policy.Deny))
	assert.Error(t, h.UpdateRow(row.ID, "@everything", "@anyvm", policy.Deny))
	assert.Error(t, h.UpdateRow(row.ID, "bad name", "@anyvm", policy.Deny))
}

func TestSetRawRejectsMalformedText(t *testing.T) {
	h, _, _ := newHandler(t, clipboardConfig())
	before := h.RawText()

	err := h.SetRaw("qubes.ClipboardPaste * work @anyvm deny target=x\n")
	require.Error(t, err)
	assert.Equal(t, before, h.RawText(), "failed raw edit must not change state")
}

func TestSetRawRebuildsRows(t *testing.T) {
	h, _, _ := newHandler(t, clipboardConfig())

	err := h.SetRaw("qubes.ClipboardPaste\t*\twork\tpersonal\task\n" + clipboardDefault)
	require.NoError(t, err)
	assert.True(t, h.CustomEnabled())
	row := findException(t, h, "work")
	// Raw-path rebuilds count as confirmed for this session.
	require.NoError(t, h.UpdateRow(row.ID, "work", "vault", policy.Ask))
}

func TestUseDefaultExportsDefaultPolicy(t *testing.T) {
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	cfg := clipboardConfig()
	require.NoError(t, mgr.Store().Replace(cfg.FileName,
		"qubes.ClipboardPaste\t*\twork\tpersonal\task\n"+clipboardDefault, ""))
	h := New(mgr, cfg)
	require.NoError(t, h.LoadFromStorage())
	require.True(t, h.CustomEnabled())

	h.SetCustom(false)
	rules := h.ExportToRules()
	require.Len(t, rules, 2)
	assert.Equal(t, policy.TokenAdminVM, rules[0].Source)
}

func TestConflictingFilesSurfaced(t *testing.T) {
	dir := t.TempDir()
	mgr := manager.New(store.New(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "30-user.policy"),
		[]byte("qubes.ClipboardPaste\t*\t@anyvm\t@anyvm\tdeny\n"), 0644))

	h := New(mgr, clipboardConfig())
	require.NoError(t, h.LoadFromStorage())
	assert.Equal(t, []string{"30-user.policy"}, h.Conflicts())
}

func TestAbandonedNewRowIsNotExported(t *testing.T) {
	h, _, _ := newHandler(t, clipboardConfig())
	h.SetCustom(true)
	_, err := h.AddRule()
	require.NoError(t, err)

	for _, rule := range h.ExportToRules() {
		assert.False(t, rule.Source == policy.TokenAnyVM && rule.Action == policy.Deny &&
			rule.Target == policy.TokenAnyVM, "untouched new row must not be saved")
	}
}

func TestStaleTokenSaveFails(t *testing.T) {
	h, mgr, _ := newHandler(t, clipboardConfig())
	h.SetCustom(true)
	row, err := h.AddRule()
	require.NoError(t, err)
	require.NoError(t, h.UpdateRow(row.ID, "personal", "banking", policy.Ask))

	// External edit between load and save.
	require.NoError(t, mgr.Store().Replace("50-config-clipboard.policy", "# external\n", store.AnyToken))

	err = h.ApplyToStorage()
	require.ErrorIs(t, err, store.ErrTokenMismatch)
}
