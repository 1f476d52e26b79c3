package mediastore

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpox/whitenoise/internal/werrors"
)

func TestPutThenGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := store.Put("abcd1234", "jpg", []byte("image bytes"))
	require.NoError(t, err)
	assert.FileExists(t, path)

	data, err := store.Get("abcd1234", "jpg")
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))
}

func TestPutIsIdempotentAndDoesNotOverwrite(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	path1, err := store.Put("hash1", "png", []byte("first"))
	require.NoError(t, err)
	path2, err := store.Put("hash1", "png", []byte("second-should-be-ignored"))
	require.NoError(t, err)
	assert.Equal(t, path1, path2)

	data, err := store.Get("hash1", "png")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestHasReflectsPresence(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	assert.False(t, store.Has("missing", "jpg"))
	_, err = store.Put("present", "jpg", []byte("x"))
	require.NoError(t, err)
	assert.True(t, store.Has("present", "jpg"))
}

func TestGetMissingIsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("missing", "jpg")
	assert.True(t, werrors.Is(err, werrors.NotFound))
}

func TestNewCreatesDirIfAbsent(t *testing.T) {
	dir := t.TempDir() + "/nested/media"
	_, err := New(dir)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
