package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpox/whitenoise/internal/werrors"
)

func TestStoreAndGetRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Store("abc123", "nsec1whatever"))
	got, err := store.Get("abc123")
	require.NoError(t, err)
	assert.Equal(t, "nsec1whatever", got)
}

func TestStoreIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Store("abc123", "same-value"))
	require.NoError(t, store.Store("abc123", "same-value"))

	got, err := store.Get("abc123")
	require.NoError(t, err)
	assert.Equal(t, "same-value", got)
}

func TestGetMissingPubkeyIsNotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("missing")
	assert.True(t, werrors.Is(err, werrors.NotFound))
}

func TestRemoveMissingPubkeyIsNoop(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Remove("never-stored"))
}

func TestRemoveDeletesEntry(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Store("abc123", "value"))
	require.NoError(t, store.Remove("abc123"))

	_, err = store.Get("abc123")
	assert.True(t, werrors.Is(err, werrors.NotFound))
}

func TestPathRejectsPathTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = store.Store("../escape", "value")
	assert.True(t, werrors.Is(err, werrors.InvalidInput))
}

func TestStorePersistsWithRestrictivePermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Store("abc123", "value"))

	info, err := filepath.Glob(filepath.Join(dir, "abc123"))
	require.NoError(t, err)
	require.Len(t, info, 1)

	st, err := os.Stat(info[0])
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}
