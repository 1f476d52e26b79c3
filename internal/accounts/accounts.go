// Package accounts implements component I: the identity lifecycle —
// creating, logging into, onboarding, and updating local accounts.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/keyer"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/pinpox/whitenoise/internal/config"
	"github.com/pinpox/whitenoise/internal/database"
	"github.com/pinpox/whitenoise/internal/groupengine"
	"github.com/pinpox/whitenoise/internal/relaymanager"
	"github.com/pinpox/whitenoise/internal/secrets"
	"github.com/pinpox/whitenoise/internal/werrors"
)

// onboardingSettingsKey namespaces the per-account onboarding-flag row
// in app_settings, keyed separately from the contact-list row.
func onboardingSettingsKey(pubkey string) string { return "onboarding:" + pubkey }

// OnboardingStatus records, as discrete queryable flags, whether each of
// the three publications onboardNewAccount attempts actually succeeded.
type OnboardingStatus struct {
	MetadataPublished   bool `json:"metadata_published"`
	RelayListsPublished bool `json:"relay_lists_published"`
	KeyPackagePublished bool `json:"key_package_published"`
}

// Signer is the minimal surface an account's key material must satisfy.
// It is an interface — not a concrete key struct — so a future external
// signer (e.g. an Android Amber-style NIP-55 bridge) could satisfy it
// without changing any caller; only a local, in-process signer ships
// with this module.
type Signer interface {
	nostr.Keyer
}

// Service implements the account lifecycle operations.
type Service struct {
	db     *database.DB
	secret secrets.Store
	relays *relaymanager.Manager
	cfg    config.WhitenoiseConfig
	log    *log.Logger

	enginesMu sync.Mutex
	engines   map[string]*groupengine.Store
}

// New constructs a Service.
func New(db *database.DB, secretStore secrets.Store, relays *relaymanager.Manager, cfg config.WhitenoiseConfig, logger *log.Logger) *Service {
	return &Service{
		db:      db,
		secret:  secretStore,
		relays:  relays,
		cfg:     cfg,
		log:     logger,
		engines: make(map[string]*groupengine.Store),
	}
}

// SignerFor returns the local signer for pubkey, reading its key from
// the secrets store.
func (s *Service) SignerFor(ctx context.Context, pubkey string) (Signer, error) {
	sk, err := s.secret.Get(pubkey)
	if err != nil {
		return nil, err
	}
	kr, err := keyer.NewPlainKeySigner(sk)
	if err != nil {
		return nil, werrors.Wrap(werrors.Cryptography, err, "construct signer for %s", pubkey)
	}
	return kr, nil
}

// GroupEngineFor returns (creating if needed) the per-account group
// engine rooted at <data_dir>/mls/<pubkey_hex>/.
func (s *Service) GroupEngineFor(ctx context.Context, pubkey string, signer Signer) (*groupengine.Store, error) {
	s.enginesMu.Lock()
	defer s.enginesMu.Unlock()
	if eng, ok := s.engines[pubkey]; ok {
		return eng, nil
	}
	dir := groupengine.StoreDirFor(s.cfg.DataDir, pubkey)
	eng, err := groupengine.Open(ctx, dir, signer)
	if err != nil {
		return nil, err
	}
	s.engines[pubkey] = eng
	return eng, nil
}

// CreateIdentity generates a fresh keypair, persists it, creates the DB
// rows in one transaction, and onboards the account. On any failure
// after the key is stored, the key and any partial DB state are rolled
// back.
func (s *Service) CreateIdentity(ctx context.Context) (database.Account, error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return database.Account{}, werrors.Wrap(werrors.Cryptography, err, "derive public key")
	}

	if err := s.secret.Store(pk, sk); err != nil {
		return database.Account{}, err
	}

	acc, err := s.db.CreateAccount(ctx, pk)
	if err != nil {
		_ = s.secret.Remove(pk)
		return database.Account{}, err
	}

	if err := s.onboardNewAccount(ctx, &acc); err != nil {
		s.log.Printf("create_identity: onboarding %s had errors: %v", pk, err)
	}

	signer, err := s.SignerFor(ctx, pk)
	if err != nil {
		_ = s.db.DeleteAccount(ctx, pk)
		_ = s.secret.Remove(pk)
		return database.Account{}, err
	}
	if err := s.installSubscriptions(ctx, pk, signer); err != nil {
		s.log.Printf("create_identity: subscription setup for %s failed: %v", pk, err)
	}

	return acc, nil
}

// Login parses a hex or bech32 (nsec) secret key. If an account row
// already exists for the derived pubkey it is loaded; otherwise a new
// one is atomically added, rolling back the stored key and any DB row
// on failure partway through.
func (s *Service) Login(ctx context.Context, secretHexOrBech32 string) (database.Account, error) {
	sk := secretHexOrBech32
	if strings.HasPrefix(secretHexOrBech32, "nsec") {
		prefix, val, err := nip19.Decode(secretHexOrBech32)
		if err != nil {
			return database.Account{}, werrors.Wrap(werrors.InvalidInput, err, "decode nsec")
		}
		if prefix != "nsec" {
			return database.Account{}, werrors.New(werrors.InvalidInput, "expected nsec prefix, got %s", prefix)
		}
		sk = val.(string)
	}

	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return database.Account{}, werrors.Wrap(werrors.InvalidInput, err, "derive public key")
	}

	newlyAdded := false
	acc, err := s.db.GetAccountByPubkey(ctx, pk)
	if werrors.Is(err, werrors.NotFound) {
		if err := s.secret.Store(pk, sk); err != nil {
			return database.Account{}, err
		}
		acc, err = s.db.CreateAccount(ctx, pk)
		if err != nil {
			_ = s.secret.Remove(pk)
			return database.Account{}, err
		}
		newlyAdded = true
	} else if err != nil {
		return database.Account{}, err
	} else {
		if err := s.secret.Store(pk, sk); err != nil {
			return database.Account{}, err
		}
	}

	signer, err := s.SignerFor(ctx, pk)
	if err != nil {
		return database.Account{}, err
	}
	if err := s.installSubscriptions(ctx, pk, signer); err != nil {
		s.log.Printf("login: subscription setup for %s failed: %v", pk, err)
	}

	if newlyAdded {
		go s.backgroundFetch(pk)
	}

	return acc, nil
}

// Logout removes the account row (cascading) and the stored private
// key, but leaves the per-account group-engine directory intact so a
// later re-login re-attaches to existing group state.
func (s *Service) Logout(ctx context.Context, pubkey string) error {
	if err := s.db.DeleteAccount(ctx, pubkey); err != nil {
		return err
	}
	if err := s.secret.Remove(pubkey); err != nil {
		return err
	}
	s.enginesMu.Lock()
	delete(s.engines, pubkey)
	s.enginesMu.Unlock()
	return nil
}

// onboardNewAccount assigns a default petname, then best-effort
// publishes metadata, the three relay-list kinds, and a key package.
// Each publication failing does not abort the others; the outcome of
// each is recorded as a discrete OnboardingStatus flag so callers (and
// tests) can verify onboarding progress without re-parsing error
// strings.
func (s *Service) onboardNewAccount(ctx context.Context, acc *database.Account) error {
	petname := randomPetname()
	signer, err := s.SignerFor(ctx, acc.Pubkey)
	if err != nil {
		return err
	}

	var status OnboardingStatus
	var errs []string

	metaEvt := nostr.Event{
		Kind:      0,
		CreatedAt: nostr.Now(),
		Content:   fmt.Sprintf(`{"name":%q,"display_name":%q}`, petname, petname),
	}
	if _, err := s.relays.PublishEventBuilderWithSigner(ctx, metaEvt, config.DefaultRelays, signer); err != nil {
		errs = append(errs, fmt.Sprintf("metadata: %v", err))
	} else {
		status.MetadataPublished = true
	}

	relayListsOK := true
	for _, rt := range []database.RelayType{database.RelayTypeNip65, database.RelayTypeInbox, database.RelayTypeKeyPackage} {
		if err := s.publishRelayList(ctx, acc.Pubkey, rt, config.DefaultRelays, signer); err != nil {
			errs = append(errs, fmt.Sprintf("relay list %s: %v", rt, err))
			relayListsOK = false
		}
	}
	status.RelayListsPublished = relayListsOK

	eng, err := s.GroupEngineFor(ctx, acc.Pubkey, signer)
	if err == nil {
		if kp, err := eng.CreateKeyPackageForEvent(ctx, config.DefaultRelays); err == nil {
			if _, err := s.relays.PublishKeyPackageWithSigner(ctx, kp.Encoded, config.DefaultRelays, nil, signer); err != nil {
				errs = append(errs, fmt.Sprintf("key package: %v", err))
			} else {
				status.KeyPackagePublished = true
			}
		} else {
			errs = append(errs, fmt.Sprintf("key package: %v", err))
		}
	} else {
		errs = append(errs, fmt.Sprintf("group engine: %v", err))
	}

	if err := s.saveOnboardingStatus(ctx, acc.Pubkey, status); err != nil {
		errs = append(errs, fmt.Sprintf("persist onboarding status: %v", err))
	}

	if len(errs) > 0 {
		return werrors.New(werrors.ProtocolError, "onboarding had failures: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *Service) saveOnboardingStatus(ctx context.Context, pubkey string, status OnboardingStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return werrors.Wrap(werrors.InvalidInput, err, "encode onboarding status")
	}
	return s.db.SetAppSetting(ctx, onboardingSettingsKey(pubkey), string(data))
}

// OnboardingStatusFor returns the recorded onboarding flags for pubkey,
// or a zero-value OnboardingStatus if onboarding has not run yet.
func (s *Service) OnboardingStatusFor(ctx context.Context, pubkey string) (OnboardingStatus, error) {
	row, err := s.db.GetAppSetting(ctx, onboardingSettingsKey(pubkey))
	if werrors.Is(err, werrors.NotFound) {
		return OnboardingStatus{}, nil
	}
	if err != nil {
		return OnboardingStatus{}, err
	}
	var status OnboardingStatus
	if err := json.Unmarshal([]byte(row.Value), &status); err != nil {
		return OnboardingStatus{}, werrors.Wrap(werrors.IO, err, "decode onboarding status")
	}
	return status, nil
}

// LoadAccount runs the startup sequence for an already-existing account:
// background-fetch of current state, then subscription install.
// Failures are returned for the caller to log, not treated as fatal to
// the account's presence in the loaded set.
func (s *Service) LoadAccount(ctx context.Context, pubkey string) error {
	signer, err := s.SignerFor(ctx, pubkey)
	if err != nil {
		return err
	}
	s.backgroundFetch(pubkey)
	return s.installSubscriptions(ctx, pubkey, signer)
}

func (s *Service) installSubscriptions(ctx context.Context, pubkey string, signer Signer) error {
	relays, err := s.RelaysFor(ctx, pubkey, database.RelayTypeNip65)
	if err != nil || len(relays) == 0 {
		relays = config.DefaultRelays
	}
	return s.relays.SetupAccountSubscriptionsWithSigner(ctx, pubkey, relays, nil, signer)
}

func (s *Service) backgroundFetch(pubkey string) {
	ctx := context.Background()
	if err := s.db.UpdateLastSynced(ctx, pubkey); err != nil {
		s.log.Printf("background_fetch: update last_synced for %s: %v", pubkey, err)
	}
}

// RelaysFor implements fetch_relays_with_fallback: user-configured
// relays if any exist, else the hard-coded default relays.
func (s *Service) RelaysFor(ctx context.Context, pubkey string, relayType database.RelayType) ([]string, error) {
	user, err := s.db.GetUserByPubkey(ctx, pubkey)
	if err != nil {
		return config.DefaultRelays, nil
	}
	urls, err := s.db.UserRelays(ctx, user.ID, relayType)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return config.DefaultRelays, nil
	}
	return urls, nil
}

func (s *Service) publishRelayList(ctx context.Context, pubkey string, relayType database.RelayType, urls []string, signer Signer) error {
	kind := kindForRelayType(relayType)
	tags := make(nostr.Tags, 0, len(urls))
	for _, u := range urls {
		tags = append(tags, nostr.Tag{"r", u})
	}
	evt := nostr.Event{Kind: kind, CreatedAt: nostr.Now(), Tags: tags}
	if _, err := s.relays.PublishEventBuilderWithSigner(ctx, evt, urls, signer); err != nil {
		return err
	}

	user, err := s.db.GetUserByPubkey(ctx, pubkey)
	if err != nil {
		return err
	}
	return s.db.SetUserRelays(ctx, user.ID, relayType, urls)
}

func kindForRelayType(rt database.RelayType) int {
	switch rt {
	case database.RelayTypeInbox:
		return 10050
	case database.RelayTypeKeyPackage:
		return 10051
	default:
		return 10002
	}
}

// CreateGroup creates a new group for ownerPubkey, records it as
// already confirmed locally (the owner never needs to accept their own
// welcome), and gift-wraps a welcome to every invited member.
func (s *Service) CreateGroup(ctx context.Context, ownerPubkey, name string, memberPubkeys, relays []string) (groupengine.Group, error) {
	signer, err := s.SignerFor(ctx, ownerPubkey)
	if err != nil {
		return groupengine.Group{}, err
	}
	eng, err := s.GroupEngineFor(ctx, ownerPubkey, signer)
	if err != nil {
		return groupengine.Group{}, err
	}

	group, err := eng.CreateGroup(ctx, name, memberPubkeys, relays)
	if err != nil {
		return groupengine.Group{}, err
	}

	if _, err := s.db.UpsertGroupInformation(ctx, group.ID, database.GroupTypeGroup); err != nil {
		return groupengine.Group{}, err
	}
	if _, err := s.db.UpsertAccountGroup(ctx, ownerPubkey, group.ID, database.ConfirmationAccepted); err != nil {
		return groupengine.Group{}, err
	}

	rumor, err := eng.CreateWelcomeRumor(ctx, group.ID)
	if err != nil {
		return groupengine.Group{}, err
	}
	for _, member := range memberPubkeys {
		if _, err := s.relays.PublishGiftWrapWithSigner(ctx, member, rumor, nil, relays, signer); err != nil {
			s.log.Printf("create_group: welcome to %s for group %s failed: %v", member, group.ID, err)
		}
	}

	if err := s.relays.SetupGroupMessagesSubscriptionsWithSigner(ctx, ownerPubkey, relays, []string{group.ID}, signer); err != nil {
		s.log.Printf("create_group: subscription setup for %s failed: %v", group.ID, err)
	}

	return group, nil
}

// AddMember adds memberPubkey to groupID and gift-wraps a fresh welcome
// naming the updated member list so the new member can join.
func (s *Service) AddMember(ctx context.Context, ownerPubkey, groupID, memberPubkey string) error {
	signer, err := s.SignerFor(ctx, ownerPubkey)
	if err != nil {
		return err
	}
	eng, err := s.GroupEngineFor(ctx, ownerPubkey, signer)
	if err != nil {
		return err
	}
	if err := eng.AddMembers(ctx, groupID, []string{memberPubkey}); err != nil {
		return err
	}

	relays, err := eng.GetRelays(ctx, groupID)
	if err != nil {
		return err
	}
	rumor, err := eng.CreateWelcomeRumor(ctx, groupID)
	if err != nil {
		return err
	}
	_, err = s.relays.PublishGiftWrapWithSigner(ctx, memberPubkey, rumor, nil, relays, signer)
	return err
}

// RemoveMember removes memberPubkey from groupID and publishes a commit
// so the other members' engines advance their epoch in step.
func (s *Service) RemoveMember(ctx context.Context, ownerPubkey, groupID, memberPubkey string) error {
	signer, err := s.SignerFor(ctx, ownerPubkey)
	if err != nil {
		return err
	}
	eng, err := s.GroupEngineFor(ctx, ownerPubkey, signer)
	if err != nil {
		return err
	}
	if err := eng.RemoveMembers(ctx, groupID, []string{memberPubkey}); err != nil {
		return err
	}

	relays, err := eng.GetRelays(ctx, groupID)
	if err != nil {
		return err
	}
	commit, err := eng.CreateCommitMessage(ctx, groupID)
	if err != nil {
		return err
	}
	_, err = s.relays.PublishEventBuilderWithSigner(ctx, commit, relays, signer)
	return err
}

// UpdateRelays re-publishes the relay-list event for relayType.
func (s *Service) UpdateRelays(ctx context.Context, pubkey string, relayType database.RelayType, urls []string) error {
	signer, err := s.SignerFor(ctx, pubkey)
	if err != nil {
		return err
	}
	return s.publishRelayList(ctx, pubkey, relayType, urls, signer)
}

// UpdateMetadata re-publishes a kind-0 metadata event.
func (s *Service) UpdateMetadata(ctx context.Context, pubkey string, metadata database.UserMetadata) error {
	signer, err := s.SignerFor(ctx, pubkey)
	if err != nil {
		return err
	}
	content, err := json.Marshal(metadata)
	if err != nil {
		return werrors.Wrap(werrors.InvalidInput, err, "encode metadata")
	}
	evt := nostr.Event{Kind: 0, CreatedAt: nostr.Now(), Content: string(content)}
	relays, err := s.RelaysFor(ctx, pubkey, database.RelayTypeNip65)
	if err != nil {
		return err
	}
	_, err = s.relays.PublishEventBuilderWithSigner(ctx, evt, relays, signer)
	return err
}

// contactList loads the current kind-3 follow set as a p-tag slice by
// reading the user's stored contact list; absent any cache this starts
// from an empty set.
func (s *Service) contactList(ctx context.Context, pubkey string) ([]string, error) {
	contacts, err := s.db.GetAppSetting(ctx, "contacts:"+pubkey)
	if werrors.Is(err, werrors.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal([]byte(contacts.Value), &list); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "decode contact list")
	}
	return list, nil
}

func (s *Service) saveContactList(ctx context.Context, pubkey string, contacts []string) error {
	data, err := json.Marshal(contacts)
	if err != nil {
		return werrors.Wrap(werrors.InvalidInput, err, "encode contact list")
	}
	return s.db.SetAppSetting(ctx, "contacts:"+pubkey, string(data))
}

func (s *Service) republishContacts(ctx context.Context, pubkey string, contacts []string, signer Signer) error {
	tags := make(nostr.Tags, 0, len(contacts))
	for _, c := range contacts {
		tags = append(tags, nostr.Tag{"p", c})
	}
	evt := nostr.Event{Kind: 3, CreatedAt: nostr.Now(), Tags: tags}
	relays, err := s.RelaysFor(ctx, pubkey, database.RelayTypeNip65)
	if err != nil {
		return err
	}
	_, err = s.relays.PublishEventBuilderWithSigner(ctx, evt, relays, signer)
	return err
}

// AddContact rejects if contact is already present.
func (s *Service) AddContact(ctx context.Context, pubkey, contact string) error {
	contacts, err := s.contactList(ctx, pubkey)
	if err != nil {
		return err
	}
	for _, c := range contacts {
		if c == contact {
			return werrors.New(werrors.InvalidInput, "contact %s already present", contact)
		}
	}
	contacts = append(contacts, contact)
	return s.updateContacts(ctx, pubkey, contacts)
}

// RemoveContact rejects if contact is absent.
func (s *Service) RemoveContact(ctx context.Context, pubkey, contact string) error {
	contacts, err := s.contactList(ctx, pubkey)
	if err != nil {
		return err
	}
	kept := contacts[:0]
	found := false
	for _, c := range contacts {
		if c == contact {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return werrors.New(werrors.InvalidInput, "contact %s not present", contact)
	}
	return s.updateContacts(ctx, pubkey, kept)
}

// UpdateContacts republishes the given contact set wholesale.
func (s *Service) UpdateContacts(ctx context.Context, pubkey string, contacts []string) error {
	return s.updateContacts(ctx, pubkey, contacts)
}

func (s *Service) updateContacts(ctx context.Context, pubkey string, contacts []string) error {
	signer, err := s.SignerFor(ctx, pubkey)
	if err != nil {
		return err
	}
	if err := s.republishContacts(ctx, pubkey, contacts, signer); err != nil {
		return err
	}
	return s.saveContactList(ctx, pubkey, contacts)
}

// randomPetname returns two capitalized words, e.g. "Curious Falcon",
// used as the default display name for a freshly created identity.
func randomPetname() string {
	adjectives := []string{"Curious", "Bright", "Quiet", "Swift", "Gentle", "Bold", "Steady", "Calm"}
	nouns := []string{"Falcon", "River", "Ember", "Cedar", "Harbor", "Meadow", "Comet", "Lantern"}
	return fmt.Sprintf("%s %s", adjectives[rand.Intn(len(adjectives))], nouns[rand.Intn(len(nouns))])
}
