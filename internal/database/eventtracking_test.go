package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackProcessedAccountEventIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	account, err := db.CreateAccount(ctx, "alice")
	require.NoError(t, err)

	seen, err := db.AlreadyProcessedAccountEvent(ctx, "evt1", account.ID)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, db.TrackProcessedAccountEvent(ctx, "evt1", account.ID, 9, "bob", time.Now()))
	require.NoError(t, db.TrackProcessedAccountEvent(ctx, "evt1", account.ID, 9, "bob", time.Now()))

	seen, err = db.AlreadyProcessedAccountEvent(ctx, "evt1", account.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestTrackProcessedAccountEventIsolatedPerAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alice, err := db.CreateAccount(ctx, "alice")
	require.NoError(t, err)
	bob, err := db.CreateAccount(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, db.TrackProcessedAccountEvent(ctx, "evt1", alice.ID, 9, "carol", time.Now()))

	seenAlice, err := db.AlreadyProcessedAccountEvent(ctx, "evt1", alice.ID)
	require.NoError(t, err)
	assert.True(t, seenAlice)

	seenBob, err := db.AlreadyProcessedAccountEvent(ctx, "evt1", bob.ID)
	require.NoError(t, err)
	assert.False(t, seenBob)
}

func TestTrackProcessedGlobalEvent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seen, err := db.AlreadyProcessedGlobalEvent(ctx, "evt1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, db.TrackProcessedGlobalEvent(ctx, "evt1", 0, "carol", time.Now()))

	seen, err = db.AlreadyProcessedGlobalEvent(ctx, "evt1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestTrackPublishedEventPerAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alice, err := db.CreateAccount(ctx, "alice")
	require.NoError(t, err)
	bob, err := db.CreateAccount(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, db.TrackPublishedEvent(ctx, "evt1", alice.ID))

	byAlice, err := db.AccountPublishedEvent(ctx, "evt1", alice.ID)
	require.NoError(t, err)
	assert.True(t, byAlice)

	byBob, err := db.AccountPublishedEvent(ctx, "evt1", bob.ID)
	require.NoError(t, err)
	assert.False(t, byBob)

	global, err := db.GlobalPublishedEvent(ctx, "evt1")
	require.NoError(t, err)
	assert.True(t, global)
}

func TestAppSettingUpsertOverwritesValue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SetAppSetting(ctx, "contacts:alice", "[]"))
	s, err := db.GetAppSetting(ctx, "contacts:alice")
	require.NoError(t, err)
	assert.Equal(t, "[]", s.Value)

	require.NoError(t, db.SetAppSetting(ctx, "contacts:alice", `["bob"]`))
	s, err = db.GetAppSetting(ctx, "contacts:alice")
	require.NoError(t, err)
	assert.Equal(t, `["bob"]`, s.Value)
}

func TestGetAppSettingNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetAppSetting(context.Background(), "missing")
	assert.Error(t, err)
}
