// Package handlers implements component K: the per-kind event
// processors the pipeline dispatches to, plus the welcome
// accept/decline flow.
package handlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip59"

	"github.com/pinpox/whitenoise/internal/accounts"
	"github.com/pinpox/whitenoise/internal/aggregator"
	"github.com/pinpox/whitenoise/internal/database"
	"github.com/pinpox/whitenoise/internal/groupengine"
	"github.com/pinpox/whitenoise/internal/nostrkinds"
	"github.com/pinpox/whitenoise/internal/relaymanager"
	"github.com/pinpox/whitenoise/internal/werrors"
)

// Handlers binds every component the per-kind processors need.
type Handlers struct {
	db       *database.DB
	accounts *accounts.Service
	relays   *relaymanager.Manager
	agg      *aggregator.Aggregator
	log      *log.Logger
}

// New constructs Handlers.
func New(db *database.DB, accountsSvc *accounts.Service, relays *relaymanager.Manager, agg *aggregator.Aggregator, logger *log.Logger) *Handlers {
	return &Handlers{db: db, accounts: accountsSvc, relays: relays, agg: agg, log: logger}
}

// Dispatch handles a single decrypted top-level event for accountPubkey
// (empty for global-scope events).
func (h *Handlers) Dispatch(ctx context.Context, accountPubkey string, evt nostr.Event) error {
	switch evt.Kind {
	case nostrkinds.Metadata:
		return h.handleMetadata(ctx, evt)
	case nostrkinds.ContactList:
		return h.handleContactList(ctx, accountPubkey, evt)
	case nostrkinds.RelayList:
		return h.handleRelayList(ctx, evt, database.RelayTypeNip65)
	case nostrkinds.InboxRelays:
		return h.handleRelayList(ctx, evt, database.RelayTypeInbox)
	case nostrkinds.MlsKeyPackageRelays:
		return h.handleRelayList(ctx, evt, database.RelayTypeKeyPackage)
	case nostrkinds.GiftWrap:
		return h.handleGiftWrap(ctx, accountPubkey, evt)
	case nostrkinds.MlsWelcome:
		return h.handleWelcome(ctx, accountPubkey, evt)
	case nostrkinds.MlsGroupMessage:
		return h.handleGroupMessage(ctx, accountPubkey, evt)
	case nostrkinds.MlsKeyPackage:
		// Only consumed indirectly via welcome processing.
		return nil
	default:
		return nil
	}
}

// handleMetadata applies the monotonic ratchet: only updates if the
// event is newer than the stored row.
func (h *Handlers) handleMetadata(ctx context.Context, evt nostr.Event) error {
	var meta database.UserMetadata
	if err := json.Unmarshal([]byte(evt.Content), &meta); err != nil {
		return werrors.Wrap(werrors.ProtocolError, err, "parse metadata event %s", evt.ID)
	}
	_, err := h.db.UpsertUser(ctx, evt.PubKey, meta, evt.CreatedAt.Time())
	return err
}

func (h *Handlers) handleContactList(ctx context.Context, accountPubkey string, evt nostr.Event) error {
	var follows []string
	for _, t := range evt.Tags {
		if len(t) >= 2 && t[0] == "p" {
			follows = append(follows, t[1])
		}
	}
	key := "contacts:" + evt.PubKey
	data, err := json.Marshal(follows)
	if err != nil {
		return werrors.Wrap(werrors.InvalidInput, err, "encode contact list")
	}
	return h.db.SetAppSetting(ctx, key, string(data))
}

func (h *Handlers) handleRelayList(ctx context.Context, evt nostr.Event, relayType database.RelayType) error {
	user, err := h.db.GetUserByPubkey(ctx, evt.PubKey)
	if werrors.Is(err, werrors.NotFound) {
		user, err = h.db.UpsertUser(ctx, evt.PubKey, database.UserMetadata{}, evt.CreatedAt.Time())
	}
	if err != nil {
		return err
	}

	var urls []string
	for _, t := range evt.Tags {
		if len(t) >= 2 && t[0] == "r" {
			urls = append(urls, t[1])
		}
	}
	return h.db.SetUserRelays(ctx, user.ID, relayType, urls)
}

// handleGiftWrap verifies the p-tag, decrypts with the account key, and
// dispatches the inner rumor (MlsWelcome or PrivateDirectMessage).
func (h *Handlers) handleGiftWrap(ctx context.Context, accountPubkey string, evt nostr.Event) error {
	target, ok := firstTag(evt.Tags, "p")
	if !ok || target != accountPubkey {
		return werrors.New(werrors.ProtocolError, "gift wrap %s not addressed to account", evt.ID)
	}

	signer, err := h.accounts.SignerFor(ctx, accountPubkey)
	if err != nil {
		return err
	}

	rumor, err := nip59.GiftUnwrap(evt, func(otherpubkey, ciphertext string) (string, error) {
		return signer.Decrypt(ctx, ciphertext, otherpubkey)
	})
	if err != nil {
		return werrors.Wrap(werrors.Cryptography, err, "unwrap gift wrap %s", evt.ID)
	}

	switch rumor.Kind {
	case nostrkinds.MlsWelcome:
		return h.handleWelcome(ctx, accountPubkey, rumor)
	case nostrkinds.PrivateDirectMessage:
		return h.handleDirectMessage(ctx, accountPubkey, rumor)
	default:
		return nil
	}
}

func (h *Handlers) handleDirectMessage(ctx context.Context, accountPubkey string, rumor nostr.Event) error {
	return h.agg.Apply(ctx, "dm:"+accountPubkey, rumor)
}

// handleWelcome hands the rumor to the group engine, creates a pending
// AccountGroup row on success, deletes the consumed key package, and
// publishes a fresh one.
func (h *Handlers) handleWelcome(ctx context.Context, accountPubkey string, rumor nostr.Event) error {
	signer, err := h.accounts.SignerFor(ctx, accountPubkey)
	if err != nil {
		return err
	}
	eng, err := h.accounts.GroupEngineFor(ctx, accountPubkey, signer)
	if err != nil {
		return err
	}

	welcome, err := eng.ProcessWelcome(ctx, rumor.ID, rumor)
	if err != nil {
		return err
	}

	if _, err := h.db.UpsertGroupInformation(ctx, welcome.GroupID, database.GroupTypeGroup); err != nil {
		return err
	}
	if _, err := h.db.UpsertAccountGroup(ctx, accountPubkey, welcome.GroupID, database.ConfirmationPending); err != nil {
		return err
	}

	consumedKeyPackageID, hasConsumed := firstTag(rumor.Tags, "key_package_event_id")
	if hasConsumed {
		relays, err := h.accounts.RelaysFor(ctx, accountPubkey, database.RelayTypeKeyPackage)
		if err == nil {
			if _, err := h.relays.PublishEventDeletionWithSigner(ctx, consumedKeyPackageID, relays, signer); err != nil {
				h.log.Printf("handle_welcome: delete consumed key package %s: %v", consumedKeyPackageID, err)
			}
		}
		_ = eng.DeleteKeyPackageFromStorage(ctx, consumedKeyPackageID)
	}

	relays, err := h.accounts.RelaysFor(ctx, accountPubkey, database.RelayTypeKeyPackage)
	if err == nil {
		if kp, err := eng.CreateKeyPackageForEvent(ctx, relays); err == nil {
			if _, err := h.relays.PublishKeyPackageWithSigner(ctx, kp.Encoded, relays, nil, signer); err != nil {
				h.log.Printf("handle_welcome: publish fresh key package: %v", err)
			}
		}
	}

	return nil
}

// handleGroupMessage hands evt to the group engine, feeding application
// messages to the aggregator synchronously and logging commits for
// background derived-state sync.
func (h *Handlers) handleGroupMessage(ctx context.Context, accountPubkey string, evt nostr.Event) error {
	groupID, ok := firstTag(evt.Tags, "h")
	if !ok {
		return werrors.New(werrors.ProtocolError, "group message %s has no group tag", evt.ID)
	}

	signer, err := h.accounts.SignerFor(ctx, accountPubkey)
	if err != nil {
		return err
	}
	eng, err := h.accounts.GroupEngineFor(ctx, accountPubkey, signer)
	if err != nil {
		return err
	}

	result, err := eng.ProcessMessage(ctx, groupID, evt)
	if err != nil {
		return err
	}

	switch result.Kind {
	case groupengine.ApplicationMessage:
		return h.agg.Apply(ctx, groupID, *result.Inner)
	case groupengine.Commit:
		h.log.Printf("handle_group_message: commit advanced group %s, scheduling derived-state sync", groupID)
		return nil
	default:
		return nil
	}
}

// SendMessage creates, signs, and publishes a kind-9 chat message to
// groupID, then folds it into the local aggregated-message cache
// immediately so the sender sees their own message without waiting for
// the relay echo (the eventual echo is a harmless no-op insert, since
// InsertAggregatedMessage is keyed by event id).
func (h *Handlers) SendMessage(ctx context.Context, senderPubkey, groupID, content, replyToID string) (nostr.Event, error) {
	signer, err := h.accounts.SignerFor(ctx, senderPubkey)
	if err != nil {
		return nostr.Event{}, err
	}
	eng, err := h.accounts.GroupEngineFor(ctx, senderPubkey, signer)
	if err != nil {
		return nostr.Event{}, err
	}

	rumor := nostr.Event{Kind: nostrkinds.ChatMessage, CreatedAt: nostr.Now(), Content: content}
	if replyToID != "" {
		rumor.Tags = nostr.Tags{{"e", replyToID}}
	}

	wire, err := eng.CreateMessage(ctx, groupID, rumor)
	if err != nil {
		return nostr.Event{}, err
	}
	relays, err := eng.GetRelays(ctx, groupID)
	if err != nil {
		return nostr.Event{}, err
	}
	out, err := h.relays.PublishEventBuilderWithSigner(ctx, wire, relays, signer)
	if err != nil {
		return nostr.Event{}, err
	}
	wire.ID = out.ID

	inner := rumor
	inner.ID = out.ID
	inner.PubKey = senderPubkey
	inner.CreatedAt = wire.CreatedAt
	if err := h.agg.Apply(ctx, groupID, inner); err != nil {
		h.log.Printf("send_message: fold local copy for %s: %v", out.ID, err)
	}
	return wire, nil
}

// EditMessage publishes a kind-9001 edit request replacing targetID's
// content, and folds the edit into the local cache immediately. Only
// the message's own author may edit it — checked here, and again by
// the aggregator's author check for edits arriving from other
// accounts over the relay.
func (h *Handlers) EditMessage(ctx context.Context, senderPubkey, groupID, targetID, newContent string) error {
	msg, err := h.db.GetAggregatedMessage(ctx, groupID, targetID)
	if err != nil {
		return err
	}
	if msg.Author != senderPubkey {
		return werrors.New(werrors.InvalidInput, "sender %s is not the author of message %s", senderPubkey, targetID)
	}

	signer, err := h.accounts.SignerFor(ctx, senderPubkey)
	if err != nil {
		return err
	}
	eng, err := h.accounts.GroupEngineFor(ctx, senderPubkey, signer)
	if err != nil {
		return err
	}

	rumor := nostr.Event{Kind: nostrkinds.EditRequest, CreatedAt: nostr.Now(), Content: newContent, Tags: nostr.Tags{{"e", targetID}}}
	wire, err := eng.CreateMessage(ctx, groupID, rumor)
	if err != nil {
		return err
	}
	relays, err := eng.GetRelays(ctx, groupID)
	if err != nil {
		return err
	}
	out, err := h.relays.PublishEventBuilderWithSigner(ctx, wire, relays, signer)
	if err != nil {
		return err
	}

	inner := rumor
	inner.ID = out.ID
	inner.PubKey = senderPubkey
	inner.CreatedAt = wire.CreatedAt
	return h.agg.Apply(ctx, groupID, inner)
}

// DeleteMessage publishes a kind-5 deletion for targetID in groupID, if
// senderPubkey is the message's author or a group admin (per
// aggregator.CanDelete), and folds the deletion into the local cache
// immediately.
func (h *Handlers) DeleteMessage(ctx context.Context, senderPubkey, groupID, targetID string) error {
	msg, err := h.db.GetAggregatedMessage(ctx, groupID, targetID)
	if err != nil {
		return err
	}

	signer, err := h.accounts.SignerFor(ctx, senderPubkey)
	if err != nil {
		return err
	}
	eng, err := h.accounts.GroupEngineFor(ctx, senderPubkey, signer)
	if err != nil {
		return err
	}

	allowed, err := aggregator.CanDelete(ctx, eng, groupID, msg, senderPubkey)
	if err != nil {
		return err
	}
	if !allowed {
		return werrors.New(werrors.InvalidInput, "sender %s may not delete message %s", senderPubkey, targetID)
	}

	rumor := nostr.Event{Kind: nostrkinds.EventDeletion, CreatedAt: nostr.Now(), Tags: nostr.Tags{{"e", targetID}}}
	wire, err := eng.CreateMessage(ctx, groupID, rumor)
	if err != nil {
		return err
	}
	relays, err := eng.GetRelays(ctx, groupID)
	if err != nil {
		return err
	}
	out, err := h.relays.PublishEventBuilderWithSigner(ctx, wire, relays, signer)
	if err != nil {
		return err
	}

	inner := rumor
	inner.ID = out.ID
	inner.PubKey = senderPubkey
	inner.CreatedAt = wire.CreatedAt
	return h.agg.Apply(ctx, groupID, inner)
}

// AcceptWelcome implements the accept_welcome flow.
func (h *Handlers) AcceptWelcome(ctx context.Context, accountPubkey, welcomeEventID string) error {
	signer, err := h.accounts.SignerFor(ctx, accountPubkey)
	if err != nil {
		return err
	}
	eng, err := h.accounts.GroupEngineFor(ctx, accountPubkey, signer)
	if err != nil {
		return err
	}

	groupID, err := eng.AcceptWelcome(ctx, welcomeEventID)
	if err != nil {
		return err
	}

	groups, err := eng.GetGroups(ctx)
	if err != nil {
		return err
	}
	relaySet := map[string]struct{}{}
	var groupIDs []string
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
		for _, r := range g.Relays {
			relaySet[r] = struct{}{}
		}
	}
	relays := make([]string, 0, len(relaySet))
	for r := range relaySet {
		relays = append(relays, r)
	}

	if err := h.relays.SetupGroupMessagesSubscriptionsWithSigner(ctx, accountPubkey, relays, groupIDs, signer); err != nil {
		h.log.Printf("accept_welcome: subscription setup failed: %v", err)
	}

	return h.db.SetAccountGroupConfirmation(ctx, accountPubkey, groupID, database.ConfirmationAccepted)
}

// DeclineWelcome implements the decline_welcome flow: the
// group remains in protocol state but is hidden from the user.
func (h *Handlers) DeclineWelcome(ctx context.Context, accountPubkey, welcomeEventID string) error {
	signer, err := h.accounts.SignerFor(ctx, accountPubkey)
	if err != nil {
		return err
	}
	eng, err := h.accounts.GroupEngineFor(ctx, accountPubkey, signer)
	if err != nil {
		return err
	}
	groupID, err := eng.DeclineWelcome(ctx, welcomeEventID)
	if err != nil {
		return err
	}
	return h.db.SetAccountGroupConfirmation(ctx, accountPubkey, groupID, database.ConfirmationDeclined)
}

func firstTag(tags nostr.Tags, name string) (string, bool) {
	for _, t := range tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}
