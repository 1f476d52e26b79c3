package media

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpox/whitenoise/internal/database"
	"github.com/pinpox/whitenoise/internal/mediastore"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	files, err := mediastore.New(t.TempDir())
	require.NoError(t, err)
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"), log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(files, db, log.New(io.Discard, "", 0))
}

func TestStoreAndRecordThenFetchRoundTrip(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	mf, err := o.StoreAndRecord(ctx, "alice", "group1", database.MediaTypeChatMedia, Upload{
		Filename: "photo.jpg",
		MimeType: "image/jpeg",
		Data:     []byte("ciphertext-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "group1", mf.MlsGroupID)

	data, err := o.Fetch(mf)
	require.NoError(t, err)
	assert.Equal(t, "ciphertext-bytes", string(data))
}

func TestStoreAndRecordDeduplicatesIdenticalBytes(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	first, err := o.StoreAndRecord(ctx, "alice", "group1", database.MediaTypeChatMedia, Upload{
		Filename: "a.jpg", MimeType: "image/jpeg", Data: []byte("same-bytes"),
	})
	require.NoError(t, err)
	second, err := o.StoreAndRecord(ctx, "alice", "group1", database.MediaTypeChatMedia, Upload{
		Filename: "a.jpg", MimeType: "image/jpeg", Data: []byte("same-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, first.FilePath, second.FilePath)
	assert.Equal(t, first.FileHash, second.FileHash)
}

func TestExtOfDefaultsToBinWithoutExtension(t *testing.T) {
	assert.Equal(t, "bin", extOf("noextension"))
	assert.Equal(t, "jpg", extOf("photo.jpg"))
}
