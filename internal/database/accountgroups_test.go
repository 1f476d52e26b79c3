package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAccountGroupDefaultsPending(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	g, err := db.UpsertAccountGroup(ctx, "alice", "group1", ConfirmationPending)
	require.NoError(t, err)
	assert.Equal(t, ConfirmationPending, g.Confirmation)
	assert.True(t, g.Visible())
}

func TestSetAccountGroupConfirmationAcceptDecline(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.UpsertAccountGroup(ctx, "alice", "group1", ConfirmationPending)
	require.NoError(t, err)

	require.NoError(t, db.SetAccountGroupConfirmation(ctx, "alice", "group1", ConfirmationAccepted))
	g, err := db.GetAccountGroup(ctx, "alice", "group1")
	require.NoError(t, err)
	assert.Equal(t, ConfirmationAccepted, g.Confirmation)
	assert.True(t, g.Visible())

	require.NoError(t, db.SetAccountGroupConfirmation(ctx, "alice", "group1", ConfirmationDeclined))
	g, err = db.GetAccountGroup(ctx, "alice", "group1")
	require.NoError(t, err)
	assert.Equal(t, ConfirmationDeclined, g.Confirmation)
	assert.False(t, g.Visible())
}

func TestListVisibleAccountGroupsExcludesDeclined(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.UpsertAccountGroup(ctx, "alice", "pending-group", ConfirmationPending)
	require.NoError(t, err)
	_, err = db.UpsertAccountGroup(ctx, "alice", "accepted-group", ConfirmationAccepted)
	require.NoError(t, err)
	_, err = db.UpsertAccountGroup(ctx, "alice", "declined-group", ConfirmationDeclined)
	require.NoError(t, err)

	visible, err := db.ListVisibleAccountGroups(ctx, "alice")
	require.NoError(t, err)

	var ids []string
	for _, g := range visible {
		ids = append(ids, g.MlsGroupID)
	}
	assert.ElementsMatch(t, []string{"pending-group", "accepted-group"}, ids)
}

func TestUpsertGroupInformationIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.UpsertGroupInformation(ctx, "group1", GroupTypeGroup)
	require.NoError(t, err)
	second, err := db.UpsertGroupInformation(ctx, "group1", GroupTypeDirectMessage)
	require.NoError(t, err)

	// Second call observes the existing row; group_type is not overwritten.
	assert.Equal(t, first.GroupType, second.GroupType)
}
