package eventtracker

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpox/whitenoise/internal/database"
)

func newTestTracker(t *testing.T) (*DatabaseTracker, *database.Account) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	db, err := database.Open(context.Background(), path, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	account, err := db.CreateAccount(context.Background(), "alice")
	require.NoError(t, err)

	return New(db), &account
}

func TestDatabaseTrackerProcessedAccountEvent(t *testing.T) {
	tracker, account := newTestTracker(t)
	ctx := context.Background()

	seen, err := tracker.AlreadyProcessedAccountEvent(ctx, "evt1", account.ID)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, tracker.TrackProcessedAccountEvent(ctx, "evt1", account.ID, 9, "bob", time.Now()))

	seen, err = tracker.AlreadyProcessedAccountEvent(ctx, "evt1", account.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestDatabaseTrackerPublishedEvent(t *testing.T) {
	tracker, account := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.TrackPublishedEvent(ctx, "evt1", account.ID))

	published, err := tracker.AccountPublishedEvent(ctx, "evt1", account.ID)
	require.NoError(t, err)
	assert.True(t, published)

	global, err := tracker.GlobalPublishedEvent(ctx, "evt1")
	require.NoError(t, err)
	assert.True(t, global)
}

func TestNoTrackerAlwaysReportsUnseen(t *testing.T) {
	var tr NoTracker
	ctx := context.Background()

	seen, err := tr.AlreadyProcessedAccountEvent(ctx, "evt1", 1)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, tr.TrackProcessedAccountEvent(ctx, "evt1", 1, 9, "bob", time.Now()))

	seen, err = tr.AlreadyProcessedAccountEvent(ctx, "evt1", 1)
	require.NoError(t, err)
	assert.False(t, seen, "NoTracker never actually records anything")
}
