package accounts

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpox/whitenoise/internal/config"
	"github.com/pinpox/whitenoise/internal/database"
	"github.com/pinpox/whitenoise/internal/relaymanager"
	"github.com/pinpox/whitenoise/internal/secrets"
	"github.com/pinpox/whitenoise/internal/testrelay"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := log.New(io.Discard, "", 0)

	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	secretStore, err := secrets.NewFileStore(t.TempDir())
	require.NoError(t, err)

	relays := relaymanager.New(logger)
	t.Cleanup(relays.Close)

	cfg := config.WhitenoiseConfig{DataDir: t.TempDir(), LogsDir: t.TempDir()}
	return New(db, secretStore, relays, cfg, logger)
}

// pointDefaultRelaysAt swaps config.DefaultRelays to the given urls for
// the duration of the test, since onboardNewAccount publishes there.
func pointDefaultRelaysAt(t *testing.T, urls []string) {
	t.Helper()
	orig := config.DefaultRelays
	config.DefaultRelays = urls
	t.Cleanup(func() { config.DefaultRelays = orig })
}

func TestCreateIdentityOnboardsAndPersistsStatus(t *testing.T) {
	relay := testrelay.Start(t)
	pointDefaultRelaysAt(t, []string{relay.URL})

	svc := newTestService(t)
	ctx := context.Background()

	acc, err := svc.CreateIdentity(ctx)
	require.NoError(t, err)

	status, err := svc.OnboardingStatusFor(ctx, acc.Pubkey)
	require.NoError(t, err)
	assert.True(t, status.MetadataPublished)
	assert.True(t, status.RelayListsPublished)
	assert.True(t, status.KeyPackagePublished)

	metaEvts := relay.Events(t, 0)
	assert.NotEmpty(t, metaEvts)
	kpEvts := relay.Events(t, 443)
	assert.NotEmpty(t, kpEvts)
}

func TestCreateGroupPublishesWelcomeToInvitedMember(t *testing.T) {
	relay := testrelay.Start(t)
	pointDefaultRelaysAt(t, []string{relay.URL})

	svc := newTestService(t)
	ctx := context.Background()

	owner, err := svc.CreateIdentity(ctx)
	require.NoError(t, err)
	member, err := svc.CreateIdentity(ctx)
	require.NoError(t, err)

	group, err := svc.CreateGroup(ctx, owner.Pubkey, "friends", []string{member.Pubkey}, []string{relay.URL})
	require.NoError(t, err)
	assert.Contains(t, group.Members, owner.Pubkey)
	assert.Contains(t, group.Members, member.Pubkey)

	giftWraps := relay.Events(t, 1059)
	foundForMember := false
	for _, gw := range giftWraps {
		for _, tag := range gw.Tags {
			if len(tag) >= 2 && tag[0] == "p" && tag[1] == member.Pubkey {
				foundForMember = true
			}
		}
	}
	assert.True(t, foundForMember, "expected a gift-wrapped welcome tagged for the invited member")
}

func TestAddMemberPublishesFreshWelcome(t *testing.T) {
	relay := testrelay.Start(t)
	pointDefaultRelaysAt(t, []string{relay.URL})

	svc := newTestService(t)
	ctx := context.Background()

	owner, err := svc.CreateIdentity(ctx)
	require.NoError(t, err)
	newMember, err := svc.CreateIdentity(ctx)
	require.NoError(t, err)

	group, err := svc.CreateGroup(ctx, owner.Pubkey, "friends", nil, []string{relay.URL})
	require.NoError(t, err)

	require.NoError(t, svc.AddMember(ctx, owner.Pubkey, group.ID, newMember.Pubkey))

	giftWraps := relay.Events(t, 1059)
	found := false
	for _, gw := range giftWraps {
		for _, tag := range gw.Tags {
			if len(tag) >= 2 && tag[0] == "p" && tag[1] == newMember.Pubkey {
				found = true
			}
		}
	}
	assert.True(t, found, "expected a welcome gift-wrap tagged for the newly added member")
}

func TestRemoveMemberPublishesCommit(t *testing.T) {
	relay := testrelay.Start(t)
	pointDefaultRelaysAt(t, []string{relay.URL})

	svc := newTestService(t)
	ctx := context.Background()

	owner, err := svc.CreateIdentity(ctx)
	require.NoError(t, err)
	member, err := svc.CreateIdentity(ctx)
	require.NoError(t, err)

	group, err := svc.CreateGroup(ctx, owner.Pubkey, "friends", []string{member.Pubkey}, []string{relay.URL})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveMember(ctx, owner.Pubkey, group.ID, member.Pubkey))

	commits := relay.Events(t, 445)
	found := false
	for _, c := range commits {
		for _, tag := range c.Tags {
			if len(tag) >= 2 && tag[0] == "h" && tag[1] == group.ID {
				found = true
			}
		}
	}
	assert.True(t, found, "expected a kind-445 commit tagged with the group id")
}
