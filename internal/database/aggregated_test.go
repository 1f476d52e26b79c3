package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpox/whitenoise/internal/werrors"
)

func TestInsertAndGetAggregatedMessage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := AggregatedMessage{
		ID:         "msg1",
		MlsGroupID: "group1",
		Author:     "alice",
		CreatedAt:  time.Now(),
		Kind:       9,
		Content:    "hello",
	}
	require.NoError(t, db.InsertAggregatedMessage(ctx, msg))

	got, err := db.GetAggregatedMessage(ctx, "group1", "msg1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "alice", got.Author)
	assert.Empty(t, got.Reactions)

	// Duplicate insert is a no-op, not an error.
	require.NoError(t, db.InsertAggregatedMessage(ctx, msg))
}

func TestGetAggregatedMessageNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetAggregatedMessage(context.Background(), "group1", "missing")
	assert.True(t, werrors.Is(err, werrors.NotFound))
}

func TestListAggregatedMessagesOrdersByCreatedAt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, db.InsertAggregatedMessage(ctx, AggregatedMessage{
		ID: "second", MlsGroupID: "group1", Author: "alice", CreatedAt: base.Add(time.Minute), Kind: 9, Content: "b",
	}))
	require.NoError(t, db.InsertAggregatedMessage(ctx, AggregatedMessage{
		ID: "first", MlsGroupID: "group1", Author: "alice", CreatedAt: base, Kind: 9, Content: "a",
	}))

	msgs, err := db.ListAggregatedMessages(ctx, "group1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].ID)
	assert.Equal(t, "second", msgs[1].ID)
}

func TestSetReactionReplacesSameAuthor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertAggregatedMessage(ctx, AggregatedMessage{
		ID: "msg1", MlsGroupID: "group1", Author: "alice", CreatedAt: time.Now(), Kind: 9, Content: "hi",
	}))

	require.NoError(t, db.SetReaction(ctx, "group1", "msg1", "bob", "👍"))
	got, err := db.GetAggregatedMessage(ctx, "group1", "msg1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, got.Reactions["👍"])

	// Bob changes his reaction; the old emoji entry is dropped.
	require.NoError(t, db.SetReaction(ctx, "group1", "msg1", "bob", "❤️"))
	got, err = db.GetAggregatedMessage(ctx, "group1", "msg1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, got.Reactions["❤️"])
	_, stillPresent := got.Reactions["👍"]
	assert.False(t, stillPresent)
}

func TestMarkDeletedNotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.MarkDeleted(context.Background(), "group1", "missing", "alice")
	assert.True(t, werrors.Is(err, werrors.NotFound))
}

func TestMarkDeletedSetsDeleter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertAggregatedMessage(ctx, AggregatedMessage{
		ID: "msg1", MlsGroupID: "group1", Author: "alice", CreatedAt: time.Now(), Kind: 9, Content: "hi",
	}))
	require.NoError(t, db.MarkDeleted(ctx, "group1", "msg1", "alice"))

	got, err := db.GetAggregatedMessage(ctx, "group1", "msg1")
	require.NoError(t, err)
	require.NotNil(t, got.DeletedBy)
	assert.Equal(t, "alice", *got.DeletedBy)
}

func TestApplyEditReplacesContent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertAggregatedMessage(ctx, AggregatedMessage{
		ID: "msg1", MlsGroupID: "group1", Author: "alice", CreatedAt: time.Now(), Kind: 9, Content: "original",
	}))
	require.NoError(t, db.ApplyEdit(ctx, "group1", "msg1", "edited"))

	got, err := db.GetAggregatedMessage(ctx, "group1", "msg1")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)
	require.NotNil(t, got.EditOfID)
	assert.Equal(t, "msg1", *got.EditOfID)
}

func TestDrainOrphanedReactionsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Reaction arrives before its target message.
	require.NoError(t, db.InsertOrphanedReaction(ctx, OrphanedReaction{
		TargetID: "msg1", MlsGroupID: "group1", Author: "bob", Emoji: "👍", CreatedAt: time.Now(),
	}))

	orphans, err := db.DrainOrphanedReactions(ctx, "group1", "msg1")
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "bob", orphans[0].Author)

	// Drained once; a second drain finds nothing left.
	again, err := db.DrainOrphanedReactions(ctx, "group1", "msg1")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDrainOrphanedDeletionsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertOrphanedDeletion(ctx, OrphanedDeletion{
		TargetID: "msg1", MlsGroupID: "group1", Deleter: "alice", CreatedAt: time.Now(),
	}))

	orphans, err := db.DrainOrphanedDeletions(ctx, "group1", "msg1")
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "alice", orphans[0].Deleter)

	again, err := db.DrainOrphanedDeletions(ctx, "group1", "msg1")
	require.NoError(t, err)
	assert.Empty(t, again)
}
