package database

import "time"

// RelayType enumerates the purpose a relay serves for a given user,
// UserRelay.
type RelayType string

const (
	RelayTypeNip65      RelayType = "nip65"
	RelayTypeInbox      RelayType = "inbox"
	RelayTypeKeyPackage RelayType = "key_package"
)

// GroupType enumerates GroupInformation.group_type.
type GroupType string

const (
	GroupTypeGroup          GroupType = "group"
	GroupTypeDirectMessage  GroupType = "direct_message"
)

// MediaType enumerates MediaFile.media_type.
type MediaType string

const (
	MediaTypeGroupImage MediaType = "group_image"
	MediaTypeChatMedia  MediaType = "chat_media"
)

// User is a party observed on the relay network, owned or remote.
type User struct {
	ID        int64
	Pubkey    string
	Metadata  UserMetadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserMetadata is the JSON blob stored on User.metadata.
type UserMetadata struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
	About       string `json:"about,omitempty"`
	Nip05       string `json:"nip05,omitempty"`
	Lud06       string `json:"lud06,omitempty"`
}

// AccountSettings is the JSON blob stored on Account.settings.
type AccountSettings struct {
	Theme    string `json:"theme,omitempty"`
	Dev      bool   `json:"dev,omitempty"`
	Lockdown bool   `json:"lockdown,omitempty"`
}

// Account is a local identity whose private key lives in the secrets
// store: an Account is a User with local signing material, 1:1 by pubkey.
type Account struct {
	ID           int64
	Pubkey       string
	UserID       int64
	Settings     AccountSettings
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Relay is a globally deduplicated relay URL.
type Relay struct {
	ID        int64
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRelay is the User-Relay join with a purpose tag.
type UserRelay struct {
	UserID    int64
	RelayID   int64
	RelayType RelayType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Confirmation is the three-valued AccountGroup.user_confirmation state.
type Confirmation int

const (
	ConfirmationPending Confirmation = iota
	ConfirmationAccepted
	ConfirmationDeclined
)

// AccountGroup binds an account to an MLS group with a join confirmation
// state: created on welcome-accept or self-create; visible
// iff confirmation != declined).
type AccountGroup struct {
	AccountPubkey string
	MlsGroupID    string
	Confirmation  Confirmation
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Visible reports whether this group should be shown to the user.
func (g AccountGroup) Visible() bool { return g.Confirmation != ConfirmationDeclined }

// GroupInformation is the one-row-per-group metadata record.
type GroupInformation struct {
	MlsGroupID string
	GroupType  GroupType
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ProcessedEvent records that an event has already been applied for an
// account (AccountID == nil means global).
type ProcessedEvent struct {
	EventID      string
	AccountID    *int64
	Kind         int
	AuthorPubkey string
	CreatedAt    time.Time
}

// PublishedEvent records that this account originated an event.
type PublishedEvent struct {
	EventID   string
	AccountID int64
	CreatedAt time.Time
}

// MediaFile is a many-to-many row binding a physical cached file to a
// group and account.
type MediaFile struct {
	ID            int64
	MlsGroupID    string
	AccountPubkey string
	FilePath      string
	FileHash      string
	MimeType      string
	MediaType     MediaType
	BlossomURL    *string
	Width         *int
	Height        *int
	Blurhash      *string
	CreatedAt     time.Time
	AccessedAt    time.Time
}

// AggregatedMessage is the message-aggregator cache's folded view of a
// chat message plus its reactions, edit, and deletion state.
type AggregatedMessage struct {
	ID          string
	MlsGroupID  string
	Author      string
	CreatedAt   time.Time
	Kind        int
	Content     string
	IsReply     bool
	RepliedToID *string
	Reactions   map[string][]string // emoji -> pubkeys, insertion order not preserved
	DeletedBy   *string
	EditOfID    *string
}

// OrphanedReaction is a reaction whose target message hasn't arrived yet.
type OrphanedReaction struct {
	TargetID   string
	MlsGroupID string
	Author     string
	Emoji      string
	CreatedAt  time.Time
}

// OrphanedDeletion is a deletion whose target message hasn't arrived yet.
type OrphanedDeletion struct {
	TargetID   string
	MlsGroupID string
	Deleter    string
	CreatedAt  time.Time
}

// AppSetting is a process-wide key/value setting not tied to one account
// (recovered from original_source's database/app_settings.rs).
type AppSetting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
