// Package relaymanager implements component D: the connection pool,
// subscription, fetch, and publish surface over the relay network. It
// wraps nbd-wtf/go-nostr's SimplePool.
package relaymanager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/keyer"

	"github.com/pinpox/whitenoise/internal/werrors"
)

const (
	fetchTimeout   = 5 * time.Second
	publishTimeout = 10 * time.Second
	inboundCap     = 500
)

// Output mirrors a publish result: the event id plus the
// relays that accepted and rejected it. Partial success is success.
type Output struct {
	ID         string
	SuccessSet []string
	FailureSet []string
}

// InboundEvent is what the pipeline reads off the Manager's receive
// channel: the raw event plus the subscription id it arrived on, which
// the pipeline uses to classify global-vs-account routing.
type InboundEvent struct {
	Event          nostr.Event
	SubscriptionID string
	RelayURL       string
}

// Manager owns the relay client connection pool and the single inbound
// channel the event pipeline consumes from.
type Manager struct {
	pool *nostr.SimplePool

	sessionSalt []byte // random per process start

	mu        sync.Mutex // guards the scoped-signer swap
	subsMu    sync.Mutex
	subs      map[string]context.CancelFunc
	inbound   chan InboundEvent
	log       *log.Logger
}

// New constructs a Manager. The returned inbound channel has capacity
// 500, providing backpressure.
func New(logger *log.Logger) *Manager {
	salt := make([]byte, 16)
	_, _ = rand.New(rand.NewSource(time.Now().UnixNano())).Read(salt)

	return &Manager{
		pool:        nostr.NewSimplePool(context.Background()),
		sessionSalt: salt,
		subs:        make(map[string]context.CancelFunc),
		inbound:     make(chan InboundEvent, inboundCap),
		log:         logger,
	}
}

// Inbound returns the receive-only channel of inbound events.
func (m *Manager) Inbound() <-chan InboundEvent { return m.inbound }

// Close cancels every live subscription.
func (m *Manager) Close() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for id, cancel := range m.subs {
		cancel()
		delete(m.subs, id)
	}
}

// shortPubkeyHash implements the subscription-id scheme:
// SHA256(session_salt ‖ pubkey)[..12], hex-encoded.
func (m *Manager) shortPubkeyHash(pubkey string) string {
	h := sha256.New()
	h.Write(m.sessionSalt)
	h.Write([]byte(pubkey))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:12]
}

// MatchAccountSubscription reports whether subID was issued for pubkey
// by this process, used by the pipeline to recover the owning account
// via a short linear scan over loaded accounts.
func (m *Manager) MatchAccountSubscription(subID, pubkey string) bool {
	return len(subID) >= 12+1 && containsHash(subID, m.shortPubkeyHash(pubkey))
}

func containsHash(subID, hash string) bool {
	for i := 0; i+len(hash) <= len(subID); i++ {
		if subID[i:i+len(hash)] == hash {
			return true
		}
	}
	return false
}

// PublishEventTo ensures connection to relays, publishes evt, and
// reports the per-relay outcome. It fails only if no relay accepts it;
// partial acceptance is success.
func (m *Manager) PublishEventTo(ctx context.Context, evt nostr.Event, relays []string) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	out := Output{ID: evt.ID}
	for _, url := range relays {
		r, err := m.pool.EnsureRelay(url)
		if err != nil {
			m.log.Printf("publish: connect %s: %v", url, err)
			out.FailureSet = append(out.FailureSet, url)
			continue
		}
		if err := r.Publish(ctx, evt); err != nil {
			m.log.Printf("publish: %s: %v", url, err)
			out.FailureSet = append(out.FailureSet, url)
			continue
		}
		out.SuccessSet = append(out.SuccessSet, url)
	}

	if len(out.SuccessSet) == 0 {
		return out, werrors.New(werrors.ProtocolError, "publish %s: no relay accepted", evt.ID)
	}
	return out, nil
}

// Signer is the minimal surface relaymanager needs from an account's
// key material to sign events and gift wraps. It is satisfied by
// nostr.Keyer (the interface nip44/nip59 already expect) so any real
// signer — local key or a future external one — can be plugged in.
type Signer = nostr.Keyer

// withSigner runs fn while holding the manager's signer mutex, so no two
// signer-scoped operations interleave. nbd-wtf/go-nostr's SimplePool
// does not hold a single ambient signer — callers pass one per
// operation — so there is no client-wide signer to set or restore.
func (m *Manager) withSigner(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

// PublishEventBuilderWithSigner signs evt with signer for the duration
// of this call only, then publishes to relays.
func (m *Manager) PublishEventBuilderWithSigner(ctx context.Context, evt nostr.Event, relays []string, signer Signer) (Output, error) {
	var out Output
	err := m.withSigner(func() error {
		if err := signer.SignEvent(ctx, &evt); err != nil {
			return werrors.Wrap(werrors.Cryptography, err, "sign event")
		}
		o, err := m.PublishEventTo(ctx, evt, relays)
		out = o
		return err
	})
	return out, err
}

// PublishGiftWrapWithSigner wraps rumor in a NIP-59 gift wrap whose outer
// envelope is signed by a freshly generated ephemeral key, never the
// real account key.
func (m *Manager) PublishGiftWrapWithSigner(ctx context.Context, receiverPubkey string, rumor nostr.Event, extraTags nostr.Tags, relays []string, signer Signer) (Output, error) {
	wrapped, err := GiftWrap(ctx, signer, receiverPubkey, rumor, extraTags)
	if err != nil {
		return Output{}, werrors.Wrap(werrors.Cryptography, err, "gift wrap")
	}
	if wrapped.PubKey == rumor.PubKey && rumor.PubKey != "" {
		return Output{}, werrors.New(werrors.Cryptography, "gift wrap leaked real pubkey")
	}
	return m.PublishEventTo(ctx, wrapped, relays)
}

// PublishKeyPackageWithSigner publishes a kind-443 key package event.
func (m *Manager) PublishKeyPackageWithSigner(ctx context.Context, encoded string, relays []string, tags nostr.Tags, signer Signer) (Output, error) {
	evt := nostr.Event{
		Kind:      443,
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   encoded,
	}
	return m.PublishEventBuilderWithSigner(ctx, evt, relays, signer)
}

// PublishEventDeletionWithSigner publishes a kind-5 deletion referencing eventID.
func (m *Manager) PublishEventDeletionWithSigner(ctx context.Context, eventID string, relays []string, signer Signer) (Output, error) {
	evt := nostr.Event{
		Kind:      5,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"e", eventID}},
	}
	return m.PublishEventBuilderWithSigner(ctx, evt, relays, signer)
}

// FetchEventsWithFilter runs a single time-bounded (5s) query and
// collects every matching event.
func (m *Manager) FetchEventsWithFilter(ctx context.Context, relays []string, filter nostr.Filter) ([]nostr.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var events []nostr.Event
	for ie := range m.pool.SubscribeMany(ctx, relays, filter) {
		events = append(events, *ie.Event)
	}
	return events, nil
}

// SetupAccountSubscriptionsWithSigner installs long-lived subscriptions
// for an account's own events and its groups' messages. Subscription
// IDs follow "{prefix}_{short_pubkey_hash}_{kind}" so the pipeline can
// route inbound events back to the owning account.
func (m *Manager) SetupAccountSubscriptionsWithSigner(ctx context.Context, pubkey string, relays []string, groupIDs []string, signer Signer) error {
	hash := m.shortPubkeyHash(pubkey)

	metaSubID := fmt.Sprintf("account_%s_metadata", hash)
	m.runSubscription(metaSubID, relays, nostr.Filter{
		Kinds:   []int{0, 3, 10002, 10050, 10051},
		Authors: []string{pubkey},
	})

	giftwrapSubID := fmt.Sprintf("account_%s_giftwrap", hash)
	m.runSubscription(giftwrapSubID, relays, nostr.Filter{
		Kinds: []int{1059},
		Tags:  nostr.TagMap{"p": {pubkey}},
	})

	if len(groupIDs) > 0 {
		return m.SetupGroupMessagesSubscriptionsWithSigner(ctx, pubkey, relays, groupIDs, signer)
	}
	return nil
}

// SetupGroupMessagesSubscriptionsWithSigner installs a long-lived
// subscription for kind-445 group messages across groupIDs.
func (m *Manager) SetupGroupMessagesSubscriptionsWithSigner(ctx context.Context, pubkey string, relays []string, groupIDs []string, signer Signer) error {
	hash := m.shortPubkeyHash(pubkey)
	subID := fmt.Sprintf("account_%s_groupmsg", hash)
	tags := nostr.TagMap{}
	if len(groupIDs) > 0 {
		tags["h"] = groupIDs
	}
	m.runSubscription(subID, relays, nostr.Filter{
		Kinds: []int{444, 445},
		Tags:  tags,
	})
	return nil
}

// SetupGlobalSubscriptions installs the "global_users_" prefixed
// subscription used for metadata/contact-list fan-in across all known users.
func (m *Manager) SetupGlobalSubscriptions(relays []string, authors []string) {
	subID := "global_users_" + fmt.Sprintf("%x", sha256.Sum256([]byte(fmt.Sprint(authors))))[:12]
	m.runSubscription(subID, relays, nostr.Filter{
		Kinds:   []int{0, 3},
		Authors: authors,
	})
}

func (m *Manager) runSubscription(subID string, relays []string, filter nostr.Filter) {
	m.subsMu.Lock()
	if cancel, ok := m.subs[subID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.subs[subID] = cancel
	m.subsMu.Unlock()

	go func() {
		for ie := range m.pool.SubscribeMany(ctx, relays, filter) {
			relayURL := ""
			if ie.Relay != nil {
				relayURL = ie.Relay.URL
			}
			select {
			case m.inbound <- InboundEvent{Event: *ie.Event, SubscriptionID: subID, RelayURL: relayURL}:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// GiftWrap builds a NIP-59 gift wrap around rumor for receiverPubkey,
// signed by a freshly generated ephemeral key (never signer's real key).
// It is implemented directly against nip44 conversation keys rather than
// relying on an unconfirmed package-level nip59.GiftWrap helper, but
// produces output interoperable with nip59.GiftUnwrap on the receiving
// side.
func GiftWrap(ctx context.Context, signer Signer, receiverPubkey string, rumor nostr.Event, extraTags nostr.Tags) (nostr.Event, error) {
	ephemeralSK := nostr.GeneratePrivateKey()
	ephemeralKeyer, err := keyer.NewPlainKeySigner(ephemeralSK)
	if err != nil {
		return nostr.Event{}, werrors.Wrap(werrors.Cryptography, err, "create ephemeral signer")
	}

	sealContent, err := seal(ctx, signer, receiverPubkey, rumor)
	if err != nil {
		return nostr.Event{}, err
	}

	sealedCiphertext, err := ephemeralKeyer.Encrypt(ctx, sealContent, receiverPubkey)
	if err != nil {
		return nostr.Event{}, werrors.Wrap(werrors.Cryptography, err, "encrypt gift wrap")
	}

	tags := nostr.Tags{{"p", receiverPubkey}}
	tags = append(tags, extraTags...)
	tags = append(tags, nostr.Tag{"expiration", fmt.Sprintf("%d", time.Now().Add(30*24*time.Hour).Unix())})

	wrap := nostr.Event{
		Kind:      1059,
		CreatedAt: nip59RandomizedTimestamp(),
		Tags:      tags,
		Content:   sealedCiphertext,
	}
	if err := ephemeralKeyer.SignEvent(ctx, &wrap); err != nil {
		return nostr.Event{}, werrors.Wrap(werrors.Cryptography, err, "sign gift wrap")
	}
	return wrap, nil
}

// seal builds the NIP-59 inner "seal" (kind 13): the JSON-marshaled
// rumor, NIP-44 encrypted and signed by the real sender key.
func seal(ctx context.Context, signer Signer, receiverPubkey string, rumor nostr.Event) (string, error) {
	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return "", werrors.Wrap(werrors.InvalidInput, err, "marshal rumor")
	}
	ciphertext, err := signer.Encrypt(ctx, string(rumorJSON), receiverPubkey)
	if err != nil {
		return "", werrors.Wrap(werrors.Cryptography, err, "seal rumor")
	}
	pk, err := signer.GetPublicKey(ctx)
	if err != nil {
		return "", werrors.Wrap(werrors.Cryptography, err, "get sender pubkey")
	}
	sealEvt := nostr.Event{
		Kind:      13,
		PubKey:    pk,
		CreatedAt: nip59RandomizedTimestamp(),
		Content:   ciphertext,
	}
	if err := signer.SignEvent(ctx, &sealEvt); err != nil {
		return "", werrors.Wrap(werrors.Cryptography, err, "sign seal")
	}
	sealJSON, err := json.Marshal(sealEvt)
	if err != nil {
		return "", werrors.Wrap(werrors.InvalidInput, err, "marshal seal")
	}
	return string(sealJSON), nil
}

// nip59RandomizedTimestamp returns now minus a random offset up to 2
// days, per NIP-59's timestamp-randomization requirement to thwart
// time-analysis correlation.
func nip59RandomizedTimestamp() nostr.Timestamp {
	offset := time.Duration(randUint32()%uint32((48*time.Hour)/time.Second)) * time.Second
	return nostr.Timestamp(time.Now().Add(-offset).Unix())
}

func randUint32() uint32 {
	var b [4]byte
	_, _ = rand.New(rand.NewSource(time.Now().UnixNano())).Read(b[:])
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
