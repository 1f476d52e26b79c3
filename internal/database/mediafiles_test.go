package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpox/whitenoise/internal/werrors"
)

func TestUpsertMediaFileInsertsThenRefreshesAccessedAt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	in := MediaFileInput{
		MlsGroupID:    "group1",
		AccountPubkey: "alice",
		FilePath:      "/data/media/abc.jpg",
		FileHash:      "abc",
		MimeType:      "image/jpeg",
		MediaType:     MediaTypeChatMedia,
	}
	first, err := db.UpsertMediaFile(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "abc", first.FileHash)

	second, err := db.UpsertMediaFile(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.AccessedAt.Before(first.AccessedAt))
}

func TestUpsertMediaFileIsolatedByGroupAndAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a, err := db.UpsertMediaFile(ctx, MediaFileInput{
		MlsGroupID: "group1", AccountPubkey: "alice", FilePath: "/a", FileHash: "same", MimeType: "image/jpeg", MediaType: MediaTypeChatMedia,
	})
	require.NoError(t, err)
	b, err := db.UpsertMediaFile(ctx, MediaFileInput{
		MlsGroupID: "group2", AccountPubkey: "alice", FilePath: "/b", FileHash: "same", MimeType: "image/jpeg", MediaType: MediaTypeChatMedia,
	})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestMediaFileByHashNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.MediaFileByHash(context.Background(), "missing")
	assert.True(t, werrors.Is(err, werrors.NotFound))
}

func TestMediaFileByHashFindsAcrossGroups(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.UpsertMediaFile(ctx, MediaFileInput{
		MlsGroupID: "group1", AccountPubkey: "alice", FilePath: "/a", FileHash: "shared-hash", MimeType: "image/jpeg", MediaType: MediaTypeChatMedia,
	})
	require.NoError(t, err)

	found, err := db.MediaFileByHash(ctx, "shared-hash")
	require.NoError(t, err)
	assert.Equal(t, "group1", found.MlsGroupID)
}
