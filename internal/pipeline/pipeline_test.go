package pipeline

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpox/whitenoise/internal/accounts"
	"github.com/pinpox/whitenoise/internal/config"
	"github.com/pinpox/whitenoise/internal/database"
	"github.com/pinpox/whitenoise/internal/eventtracker"
	"github.com/pinpox/whitenoise/internal/handlers"
	"github.com/pinpox/whitenoise/internal/nostrkinds"
	"github.com/pinpox/whitenoise/internal/relaymanager"
	"github.com/pinpox/whitenoise/internal/secrets"
	"github.com/pinpox/whitenoise/internal/testrelay"
)

func pointDefaultRelaysAt(t *testing.T, urls []string) {
	t.Helper()
	orig := config.DefaultRelays
	config.DefaultRelays = urls
	t.Cleanup(func() { config.DefaultRelays = orig })
}

// TestRunProcessesOwnMetadataFromSubscription exercises the pipeline
// end to end against a live relay: an account's own onboarding
// metadata, already stored on the relay by the time its subscription
// is installed, arrives over the inbound channel, gets routed to the
// owning account by subscription id, and is folded into the user
// table by the metadata handler exactly once.
func TestRunProcessesOwnMetadataFromSubscription(t *testing.T) {
	relay := testrelay.Start(t)
	pointDefaultRelaysAt(t, []string{relay.URL})

	logger := log.New(io.Discard, "", 0)
	ctx := context.Background()

	db, err := database.Open(ctx, filepath.Join(t.TempDir(), "test.sqlite"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	secretStore, err := secrets.NewFileStore(t.TempDir())
	require.NoError(t, err)

	relays := relaymanager.New(logger)
	t.Cleanup(relays.Close)

	cfg := config.WhitenoiseConfig{DataDir: t.TempDir(), LogsDir: t.TempDir()}
	accountsSvc := accounts.New(db, secretStore, relays, cfg, logger)
	tracker := eventtracker.New(db)
	h := handlers.New(db, accountsSvc, relays, nil, logger)

	acc, err := accountsSvc.CreateIdentity(ctx)
	require.NoError(t, err)

	p := New(relays, h, tracker, db, func() []string { return []string{acc.Pubkey} }, logger)
	go p.Run()
	t.Cleanup(p.Stop)

	metaEvts := relay.Events(t, nostrkinds.Metadata)
	require.NotEmpty(t, metaEvts, "onboarding should have published a metadata event")
	metaID := metaEvts[0].ID

	deadline := time.Now().Add(5 * time.Second)
	var processed bool
	for time.Now().Before(deadline) {
		processed, err = tracker.AlreadyProcessedAccountEvent(ctx, metaID, acc.ID)
		require.NoError(t, err)
		if processed {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	assert.True(t, processed, "pipeline should have routed the account's own metadata event to its handler")

	user, err := db.GetUserByPubkey(ctx, acc.Pubkey)
	require.NoError(t, err)
	assert.Equal(t, acc.Pubkey, user.Pubkey)
}
