package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpox/whitenoise/internal/werrors"
)

func TestUpsertUserRatchet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	pubkey := "pk1"

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	_, err := db.UpsertUser(ctx, pubkey, UserMetadata{Name: "first"}, older)
	require.NoError(t, err)

	// A newer event wins.
	user, err := db.UpsertUser(ctx, pubkey, UserMetadata{Name: "second"}, newer)
	require.NoError(t, err)
	assert.Equal(t, "second", user.Metadata.Name)

	// An older event arriving after does not roll back the metadata.
	user, err = db.UpsertUser(ctx, pubkey, UserMetadata{Name: "stale"}, older)
	require.NoError(t, err)
	assert.Equal(t, "second", user.Metadata.Name)
}

func TestGetUserByPubkeyNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetUserByPubkey(context.Background(), "missing")
	assert.True(t, werrors.Is(err, werrors.NotFound))
}
