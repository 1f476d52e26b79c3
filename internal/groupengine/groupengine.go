// Package groupengine implements component H: a thin facade over the
// group protocol. No real MLS-style continuous-group-key-agreement
// library ships anywhere in this module's dependency corpus, so Engine
// is defined as an interface first — exactly the external-collaborator
// boundary drawn around this component — and Store is a
// pragmatic, interface-isolated stand-in built from the NIP-44/NIP-59
// primitives the rest of this module already wires (see DESIGN.md).
// The accounts and scheduler packages hold a concrete *Store, so a real
// MLS backend replacing it also moves those call sites onto Engine.
package groupengine

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/pinpox/whitenoise/internal/nostrkinds"
	"github.com/pinpox/whitenoise/internal/werrors"
)

// ResultKind distinguishes the two shapes ProcessMessage can return. An
// ApplicationMessage carries an inner event for the aggregator; a
// Commit only advances group state.
type ResultKind int

const (
	ApplicationMessage ResultKind = iota
	Commit
)

// ProcessResult is what ProcessMessage returns.
type ProcessResult struct {
	Kind  ResultKind
	Inner *nostr.Event // set when Kind == ApplicationMessage
}

// Welcome is a pending invitation to join a group, held until accepted
// or declined.
type Welcome struct {
	EventID   string
	GroupID   string
	GroupName string
	Relays    []string
	Consumed  bool
}

// Group is the engine's view of a joined group.
type Group struct {
	ID        string
	Name      string
	Relays    []string
	Members   []string
	Admins    []string
	Epoch     uint64
	CreatedAt time.Time
}

// KeyPackage is a published, consumable invitation artifact.
type KeyPackage struct {
	EventID   string
	Encoded   string
	CreatedAt time.Time
}

// Engine is the delegation surface the account service uses, one instance
// per account, bound to a per-account storage directory.
type Engine interface {
	CreateGroup(ctx context.Context, name string, memberPubkeys []string, relays []string) (Group, error)
	AddMembers(ctx context.Context, groupID string, memberPubkeys []string) error
	RemoveMembers(ctx context.Context, groupID string, memberPubkeys []string) error
	MergePendingCommit(ctx context.Context, groupID string) error

	ProcessWelcome(ctx context.Context, welcomeEventID string, rumor nostr.Event) (Welcome, error)
	ProcessMessage(ctx context.Context, groupID string, evt nostr.Event) (ProcessResult, error)
	// CreateMessage seals rumor (an unsigned, application-level event —
	// Kind/Content/Tags set by the caller: chat message, reaction,
	// deletion, or edit) inside a kind-445 wire event.
	CreateMessage(ctx context.Context, groupID string, rumor nostr.Event) (nostr.Event, error)

	// CreateWelcomeRumor builds the unsigned kind-444 rumor inviting a
	// member into groupID, ready to be gift-wrapped per-recipient.
	CreateWelcomeRumor(ctx context.Context, groupID string) (nostr.Event, error)
	// CreateCommitMessage builds a kind-445 membership-change marker
	// carrying no ciphertext, so other members' engines advance their
	// epoch without attempting to decrypt it.
	CreateCommitMessage(ctx context.Context, groupID string) (nostr.Event, error)

	CreateKeyPackageForEvent(ctx context.Context, relays []string) (KeyPackage, error)
	ParseKeyPackage(ctx context.Context, encoded string) (KeyPackage, error)
	DeleteKeyPackageFromStorage(ctx context.Context, eventID string) error

	GetGroups(ctx context.Context) ([]Group, error)
	GetMembers(ctx context.Context, groupID string) ([]string, error)
	GetRelays(ctx context.Context, groupID string) ([]string, error)
	GetAdmins(ctx context.Context, groupID string) ([]string, error)

	// AcceptWelcome and DeclineWelcome return the real group id the
	// welcome named, so callers never have to guess it from recency.
	AcceptWelcome(ctx context.Context, welcomeEventID string) (string, error)
	DeclineWelcome(ctx context.Context, welcomeEventID string) (string, error)
}

// Store is the stand-in Engine implementation, one per account,
// persisting its state under <data_dir>/mls/<pubkey_hex>/state.json.
// Group confidentiality is provided by a NIP-44 conversation key shared
// via gift-wrapped welcomes, not by a real ratcheting tree — this gives
// forward secrecy on the transport layer (NIP-59 ephemeral keys) but
// not the post-compromise security a real MLS group would provide. The
// distinction is recorded in DESIGN.md so it is never presented as a
// drop-in equivalent.
type Store struct {
	mu       sync.Mutex
	dir      string
	signer   nostr.Keyer
	ownerPK  string
	groups   map[string]*groupState
	welcomes map[string]*Welcome
	keyPkgs  map[string]*KeyPackage
}

type groupState struct {
	Group
	conversationKey [32]byte
}

// persistedState is the on-disk shape of a Store's group membership and
// welcome bookkeeping under <dir>/state.json. Conversation keys are
// derived deterministically from signer + member set on load, so they
// are never written to disk in this file.
type persistedState struct {
	Groups   map[string]Group    `json:"groups"`
	Welcomes map[string]*Welcome `json:"welcomes"`
}

// Open loads (or initializes) the per-account state rooted at dir for
// the account identified by signer.
func Open(ctx context.Context, dir string, signer nostr.Keyer) (*Store, error) {
	pk, err := signer.GetPublicKey(ctx)
	if err != nil {
		return nil, werrors.Wrap(werrors.Cryptography, err, "group engine: resolve owner pubkey")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "group engine: create state dir")
	}

	s := &Store{
		dir:      dir,
		signer:   signer,
		ownerPK:  pk,
		groups:   make(map[string]*groupState),
		welcomes: make(map[string]*Welcome),
		keyPkgs:  make(map[string]*KeyPackage),
	}

	raw, err := os.ReadFile(filepath.Join(dir, "state.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, werrors.Wrap(werrors.IO, err, "group engine: read state")
	}
	var saved persistedState
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "group engine: decode state")
	}
	for id, g := range saved.Groups {
		ck, err := s.conversationKeyWith(ctx, g.Members)
		if err != nil {
			return nil, err
		}
		s.groups[id] = &groupState{Group: g, conversationKey: ck}
	}
	for id, w := range saved.Welcomes {
		s.welcomes[id] = w
	}
	return s, nil
}

// persist writes the caller-held-lock state to <dir>/state.json
// atomically via a temp file renamed into place.
func (s *Store) persist() error {
	saved := persistedState{
		Groups:   make(map[string]Group, len(s.groups)),
		Welcomes: s.welcomes,
	}
	for id, gs := range s.groups {
		saved.Groups[id] = gs.Group
	}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "group engine: encode state")
	}
	tmp, err := os.CreateTemp(s.dir, "state-*.tmp")
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "group engine: create temp state file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return werrors.Wrap(werrors.IO, err, "group engine: write state")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return werrors.Wrap(werrors.IO, err, "group engine: close state")
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, "state.json")); err != nil {
		os.Remove(tmpPath)
		return werrors.Wrap(werrors.IO, err, "group engine: rename state into place")
	}
	return nil
}

func (s *Store) CreateGroup(ctx context.Context, name string, memberPubkeys []string, relays []string) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	ck, err := s.conversationKeyWith(ctx, memberPubkeys)
	if err != nil {
		return Group{}, err
	}

	members := append([]string{s.ownerPK}, memberPubkeys...)
	gs := &groupState{
		Group: Group{
			ID:        id,
			Name:      name,
			Relays:    relays,
			Members:   members,
			Admins:    []string{s.ownerPK},
			Epoch:     0,
			CreatedAt: time.Now().UTC(),
		},
		conversationKey: ck,
	}
	s.groups[id] = gs
	if err := s.persist(); err != nil {
		return Group{}, err
	}
	return gs.Group, nil
}

// conversationKeyWith derives a single shared key for a group's members
// by hashing the owner's NIP-44 conversation key with each member in
// turn. This is deterministic per member-set but is not a substitute
// for a real tree-based group key schedule.
func (s *Store) conversationKeyWith(ctx context.Context, memberPubkeys []string) ([32]byte, error) {
	h := sha256.New()
	h.Write([]byte(s.ownerPK))
	for _, pk := range memberPubkeys {
		ciphertext, err := s.signer.Encrypt(ctx, pk, pk)
		if err != nil {
			return [32]byte{}, werrors.Wrap(werrors.Cryptography, err, "derive group key material")
		}
		h.Write([]byte(ciphertext))
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func (s *Store) AddMembers(ctx context.Context, groupID string, memberPubkeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.groups[groupID]
	if !ok {
		return werrors.New(werrors.NotFound, "group %s not found", groupID)
	}
	gs.Members = append(gs.Members, memberPubkeys...)
	gs.Epoch++
	return s.persist()
}

func (s *Store) RemoveMembers(ctx context.Context, groupID string, memberPubkeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.groups[groupID]
	if !ok {
		return werrors.New(werrors.NotFound, "group %s not found", groupID)
	}
	remove := make(map[string]bool, len(memberPubkeys))
	for _, pk := range memberPubkeys {
		remove[pk] = true
	}
	kept := gs.Members[:0]
	for _, m := range gs.Members {
		if !remove[m] {
			kept = append(kept, m)
		}
	}
	gs.Members = kept
	gs.Epoch++
	return s.persist()
}

// MergePendingCommit advances the local epoch, acknowledging queued
// proposals have been committed. The stand-in has no separate proposal
// queue, so this is a no-op beyond bumping the epoch.
func (s *Store) MergePendingCommit(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.groups[groupID]
	if !ok {
		return werrors.New(werrors.NotFound, "group %s not found", groupID)
	}
	gs.Epoch++
	return s.persist()
}

// rumorEnvelope is the JSON shape a welcome or group-message rumor's
// Content holds. Welcomes carry group metadata in the clear (they are
// themselves wrapped by a gift-wrap before transport); group messages
// carry Ciphertext, sealed under a key HKDF-derived from the group's
// conversation key.
type rumorEnvelope struct {
	GroupID    string   `json:"group_id"`
	GroupName  string   `json:"group_name,omitempty"`
	Relays     []string `json:"relays,omitempty"`
	Members    []string `json:"members,omitempty"`
	Ciphertext string   `json:"ciphertext,omitempty"`
}

// messageKey derives the per-group AEAD key from the conversation key
// via HKDF-SHA256, following the same derive-then-seal shape as NIP-44's
// own construction.
func messageKey(conversationKey [32]byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, conversationKey[:], nil, []byte("whitenoise-group-message"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, werrors.Wrap(werrors.Cryptography, err, "derive group message key")
	}
	return key, nil
}

func sealMessage(conversationKey [32]byte, plaintext string) (string, error) {
	key, err := messageKey(conversationKey)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", werrors.Wrap(werrors.Cryptography, err, "construct group message cipher")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", werrors.Wrap(werrors.Cryptography, err, "generate group message nonce")
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func openMessage(conversationKey [32]byte, ciphertext string) (string, error) {
	key, err := messageKey(conversationKey)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", werrors.Wrap(werrors.Cryptography, err, "construct group message cipher")
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", werrors.Wrap(werrors.ProtocolError, err, "decode group message ciphertext")
	}
	if len(raw) < aead.NonceSize() {
		return "", werrors.New(werrors.ProtocolError, "group message ciphertext too short")
	}
	nonce, body := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", werrors.Wrap(werrors.Cryptography, err, "decrypt group message")
	}
	return string(plaintext), nil
}

// ProcessWelcome records a pending Welcome from an already
// gift-unwrapped rumor and adds the group it names to local state.
// AcceptWelcome or DeclineWelcome later marks the welcome consumed.
func (s *Store) ProcessWelcome(ctx context.Context, welcomeEventID string, rumor nostr.Event) (Welcome, error) {
	var env rumorEnvelope
	if err := json.Unmarshal([]byte(rumor.Content), &env); err != nil {
		return Welcome{}, werrors.Wrap(werrors.ProtocolError, err, "parse welcome rumor")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.welcomes[welcomeEventID]; ok && w.Consumed {
		return Welcome{}, werrors.New(werrors.InvalidInput, "welcome %s already consumed", welcomeEventID)
	}

	w := Welcome{EventID: welcomeEventID, GroupID: env.GroupID, GroupName: env.GroupName, Relays: env.Relays}
	s.welcomes[welcomeEventID] = &w

	ck, err := s.conversationKeyWith(ctx, env.Members)
	if err != nil {
		return Welcome{}, err
	}
	s.groups[env.GroupID] = &groupState{
		Group: Group{
			ID:        env.GroupID,
			Name:      env.GroupName,
			Relays:    env.Relays,
			Members:   env.Members,
			Admins:    nil,
			CreatedAt: time.Now().UTC(),
		},
		conversationKey: ck,
	}
	if err := s.persist(); err != nil {
		return Welcome{}, err
	}
	return w, nil
}

func (s *Store) AcceptWelcome(ctx context.Context, welcomeEventID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.welcomes[welcomeEventID]
	if !ok {
		return "", werrors.New(werrors.NotFound, "welcome %s not found", welcomeEventID)
	}
	if w.Consumed {
		return "", werrors.New(werrors.InvalidInput, "welcome %s already consumed", welcomeEventID)
	}
	w.Consumed = true
	if err := s.persist(); err != nil {
		return "", err
	}
	return w.GroupID, nil
}

// DeclineWelcome marks the welcome consumed. The group stays in local
// state; the caller hides it by recording a declined confirmation.
func (s *Store) DeclineWelcome(ctx context.Context, welcomeEventID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.welcomes[welcomeEventID]
	if !ok {
		return "", werrors.New(werrors.NotFound, "welcome %s not found", welcomeEventID)
	}
	w.Consumed = true
	if err := s.persist(); err != nil {
		return "", err
	}
	return w.GroupID, nil
}

// ProcessMessage decodes evt.Content as an envelope. An envelope carrying
// Ciphertext is opened under the group's conversation key and returned
// as an ApplicationMessage; one without Ciphertext (a membership-change
// marker) bumps the local epoch and is returned as a Commit.
func (s *Store) ProcessMessage(ctx context.Context, groupID string, evt nostr.Event) (ProcessResult, error) {
	s.mu.Lock()
	gs, ok := s.groups[groupID]
	s.mu.Unlock()
	if !ok {
		return ProcessResult{}, werrors.New(werrors.NotFound, "group %s not found", groupID)
	}

	var env rumorEnvelope
	if err := json.Unmarshal([]byte(evt.Content), &env); err != nil {
		return ProcessResult{}, werrors.Wrap(werrors.ProtocolError, err, "decode group message")
	}

	if env.Ciphertext == "" {
		s.mu.Lock()
		gs.Epoch++
		err := s.persist()
		s.mu.Unlock()
		if err != nil {
			return ProcessResult{}, err
		}
		return ProcessResult{Kind: Commit}, nil
	}

	s.mu.Lock()
	ck := gs.conversationKey
	s.mu.Unlock()
	plaintext, err := openMessage(ck, env.Ciphertext)
	if err != nil {
		return ProcessResult{}, err
	}

	var innerRumor nostr.Event
	if err := json.Unmarshal([]byte(plaintext), &innerRumor); err != nil {
		return ProcessResult{}, werrors.Wrap(werrors.ProtocolError, err, "decode inner rumor")
	}

	inner := nostr.Event{
		ID:        evt.ID,
		PubKey:    evt.PubKey,
		CreatedAt: evt.CreatedAt,
		Kind:      innerRumor.Kind,
		Content:   innerRumor.Content,
		Tags:      innerRumor.Tags,
	}
	return ProcessResult{Kind: ApplicationMessage, Inner: &inner}, nil
}

// CreateMessage JSON-encodes rumor (the application-level event: its
// Kind distinguishes chat message/reaction/deletion/edit for the
// aggregator) and seals it under the group's conversation key, wrapped
// in the envelope ProcessMessage decodes, ready to be published as a
// kind-445 group message by the relay manager.
func (s *Store) CreateMessage(ctx context.Context, groupID string, rumor nostr.Event) (nostr.Event, error) {
	s.mu.Lock()
	gs, ok := s.groups[groupID]
	s.mu.Unlock()
	if !ok {
		return nostr.Event{}, werrors.New(werrors.NotFound, "group %s not found", groupID)
	}

	innerPlaintext, err := json.Marshal(rumor)
	if err != nil {
		return nostr.Event{}, werrors.Wrap(werrors.InvalidInput, err, "encode inner rumor")
	}
	ciphertext, err := sealMessage(gs.conversationKey, string(innerPlaintext))
	if err != nil {
		return nostr.Event{}, err
	}

	env := rumorEnvelope{GroupID: groupID, Ciphertext: ciphertext}
	payload, err := json.Marshal(env)
	if err != nil {
		return nostr.Event{}, werrors.Wrap(werrors.InvalidInput, err, "encode group message")
	}

	return nostr.Event{
		Kind:      nostrkinds.MlsGroupMessage,
		CreatedAt: nostr.Now(),
		Content:   string(payload),
		Tags:      nostr.Tags{{"h", groupID}},
	}, nil
}

// CreateWelcomeRumor builds the unsigned welcome rumor for groupID,
// carrying the group's metadata and member list in the clear — it is
// itself wrapped by a gift-wrap before transport, so this is never
// published unwrapped.
func (s *Store) CreateWelcomeRumor(ctx context.Context, groupID string) (nostr.Event, error) {
	s.mu.Lock()
	gs, ok := s.groups[groupID]
	s.mu.Unlock()
	if !ok {
		return nostr.Event{}, werrors.New(werrors.NotFound, "group %s not found", groupID)
	}

	env := rumorEnvelope{GroupID: gs.ID, GroupName: gs.Name, Relays: gs.Relays, Members: gs.Members}
	payload, err := json.Marshal(env)
	if err != nil {
		return nostr.Event{}, werrors.Wrap(werrors.InvalidInput, err, "encode welcome rumor")
	}
	return nostr.Event{
		Kind:      nostrkinds.MlsWelcome,
		CreatedAt: nostr.Now(),
		Content:   string(payload),
	}, nil
}

// CreateCommitMessage wraps a membership-change marker for groupID as a
// kind-445 event with no ciphertext, so ProcessMessage on other
// members' engines can advance their epoch without attempting a
// decrypt.
func (s *Store) CreateCommitMessage(ctx context.Context, groupID string) (nostr.Event, error) {
	s.mu.Lock()
	_, ok := s.groups[groupID]
	s.mu.Unlock()
	if !ok {
		return nostr.Event{}, werrors.New(werrors.NotFound, "group %s not found", groupID)
	}

	env := rumorEnvelope{GroupID: groupID}
	payload, err := json.Marshal(env)
	if err != nil {
		return nostr.Event{}, werrors.Wrap(werrors.InvalidInput, err, "encode commit message")
	}
	return nostr.Event{
		Kind:      nostrkinds.MlsGroupMessage,
		CreatedAt: nostr.Now(),
		Content:   string(payload),
		Tags:      nostr.Tags{{"h", groupID}},
	}, nil
}

// CreateKeyPackageForEvent generates a fresh ephemeral key pair and
// encodes it (bech32-free; hex-encoded public key plus relay hints) as a
// key-package event body ready for the relay manager to publish at
// kind 443.
func (s *Store) CreateKeyPackageForEvent(ctx context.Context, relays []string) (KeyPackage, error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return KeyPackage{}, werrors.Wrap(werrors.Cryptography, err, "derive key package pubkey")
	}

	payload := struct {
		PublicKey string   `json:"public_key"`
		Relays    []string `json:"relays"`
	}{PublicKey: pk, Relays: relays}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return KeyPackage{}, werrors.Wrap(werrors.InvalidInput, err, "encode key package")
	}

	kp := KeyPackage{EventID: uuid.NewString(), Encoded: string(encoded), CreatedAt: time.Now().UTC()}
	s.mu.Lock()
	s.keyPkgs[kp.EventID] = &kp
	s.mu.Unlock()
	return kp, nil
}

func (s *Store) ParseKeyPackage(ctx context.Context, encoded string) (KeyPackage, error) {
	var payload struct {
		PublicKey string   `json:"public_key"`
		Relays    []string `json:"relays"`
	}
	if err := json.Unmarshal([]byte(encoded), &payload); err != nil {
		return KeyPackage{}, werrors.Wrap(werrors.ProtocolError, err, "parse key package")
	}
	return KeyPackage{Encoded: encoded}, nil
}

func (s *Store) DeleteKeyPackageFromStorage(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keyPkgs, eventID)
	return nil
}

func (s *Store) GetGroups(ctx context.Context) ([]Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Group, 0, len(s.groups))
	for _, gs := range s.groups {
		out = append(out, gs.Group)
	}
	return out, nil
}

func (s *Store) GetMembers(ctx context.Context, groupID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.groups[groupID]
	if !ok {
		return nil, werrors.New(werrors.NotFound, "group %s not found", groupID)
	}
	return gs.Members, nil
}

func (s *Store) GetRelays(ctx context.Context, groupID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.groups[groupID]
	if !ok {
		return nil, werrors.New(werrors.NotFound, "group %s not found", groupID)
	}
	return gs.Relays, nil
}

func (s *Store) GetAdmins(ctx context.Context, groupID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.groups[groupID]
	if !ok {
		return nil, werrors.New(werrors.NotFound, "group %s not found", groupID)
	}
	return gs.Admins, nil
}

var _ Engine = (*Store)(nil)

// StoreDirFor returns the per-account group-engine storage directory,
// <data_dir>/mls/<pubkey_hex>/.
func StoreDirFor(dataDir, pubkeyHex string) string {
	return dataDir + "/mls/" + pubkeyHex
}

