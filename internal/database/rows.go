package database

import (
	"encoding/json"

	"github.com/pinpox/whitenoise/internal/werrors"
)

// Each entity has a private Row struct mirroring the table's columns;
// toDomain extracts primitives, parses JSON blobs, and converts
// epoch-millis to UTC timestamps. Only the domain
// struct ever crosses the database package boundary.

type userRow struct {
	ID        int64  `db:"id"`
	Pubkey    string `db:"pubkey"`
	Metadata  string `db:"metadata"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r userRow) toDomain() (User, error) {
	var meta UserMetadata
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
			return User{}, werrors.Wrap(werrors.IO, err, "users.metadata: decode json")
		}
	}
	createdAt, err := decodeTimestamp("users.created_at", r.CreatedAt)
	if err != nil {
		return User{}, err
	}
	updatedAt, err := decodeTimestamp("users.updated_at", r.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return User{
		ID:        r.ID,
		Pubkey:    r.Pubkey,
		Metadata:  meta,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

type accountRow struct {
	ID           int64  `db:"id"`
	Pubkey       string `db:"pubkey"`
	UserID       int64  `db:"user_id"`
	Settings     string `db:"settings"`
	LastSyncedAt *int64 `db:"last_synced_at"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r accountRow) toDomain() (Account, error) {
	var settings AccountSettings
	if r.Settings != "" {
		if err := json.Unmarshal([]byte(r.Settings), &settings); err != nil {
			return Account{}, werrors.Wrap(werrors.IO, err, "accounts.settings: decode json")
		}
	}
	createdAt, err := decodeTimestamp("accounts.created_at", r.CreatedAt)
	if err != nil {
		return Account{}, err
	}
	updatedAt, err := decodeTimestamp("accounts.updated_at", r.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	acc := Account{
		ID:        r.ID,
		Pubkey:    r.Pubkey,
		UserID:    r.UserID,
		Settings:  settings,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if r.LastSyncedAt != nil {
		t, err := decodeTimestamp("accounts.last_synced_at", *r.LastSyncedAt)
		if err != nil {
			return Account{}, err
		}
		acc.LastSyncedAt = &t
	}
	return acc, nil
}

type relayRow struct {
	ID        int64  `db:"id"`
	URL       string `db:"url"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r relayRow) toDomain() (Relay, error) {
	createdAt, err := decodeTimestamp("relays.created_at", r.CreatedAt)
	if err != nil {
		return Relay{}, err
	}
	updatedAt, err := decodeTimestamp("relays.updated_at", r.UpdatedAt)
	if err != nil {
		return Relay{}, err
	}
	return Relay{ID: r.ID, URL: r.URL, CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

type userRelayRow struct {
	UserID    int64  `db:"user_id"`
	RelayID   int64  `db:"relay_id"`
	RelayType string `db:"relay_type"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r userRelayRow) toDomain() (UserRelay, error) {
	createdAt, err := decodeTimestamp("user_relays.created_at", r.CreatedAt)
	if err != nil {
		return UserRelay{}, err
	}
	updatedAt, err := decodeTimestamp("user_relays.updated_at", r.UpdatedAt)
	if err != nil {
		return UserRelay{}, err
	}
	return UserRelay{
		UserID:    r.UserID,
		RelayID:   r.RelayID,
		RelayType: RelayType(r.RelayType),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

type accountGroupRow struct {
	AccountPubkey    string `db:"account_pubkey"`
	MlsGroupID       string `db:"mls_group_id"`
	UserConfirmation *int64 `db:"user_confirmation"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

func (r accountGroupRow) toDomain() (AccountGroup, error) {
	createdAt, err := decodeTimestamp("account_groups.created_at", r.CreatedAt)
	if err != nil {
		return AccountGroup{}, err
	}
	updatedAt, err := decodeTimestamp("account_groups.updated_at", r.UpdatedAt)
	if err != nil {
		return AccountGroup{}, err
	}
	conf := ConfirmationPending
	if r.UserConfirmation != nil {
		if *r.UserConfirmation != 0 {
			conf = ConfirmationAccepted
		} else {
			conf = ConfirmationDeclined
		}
	}
	return AccountGroup{
		AccountPubkey: r.AccountPubkey,
		MlsGroupID:    r.MlsGroupID,
		Confirmation:  conf,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}

type groupInformationRow struct {
	MlsGroupID string `db:"mls_group_id"`
	GroupType  string `db:"group_type"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

func (r groupInformationRow) toDomain() (GroupInformation, error) {
	createdAt, err := decodeTimestamp("group_information.created_at", r.CreatedAt)
	if err != nil {
		return GroupInformation{}, err
	}
	updatedAt, err := decodeTimestamp("group_information.updated_at", r.UpdatedAt)
	if err != nil {
		return GroupInformation{}, err
	}
	return GroupInformation{
		MlsGroupID: r.MlsGroupID,
		GroupType:  GroupType(r.GroupType),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

type mediaFileRow struct {
	ID            int64   `db:"id"`
	MlsGroupID    string  `db:"mls_group_id"`
	AccountPubkey string  `db:"account_pubkey"`
	FilePath      string  `db:"file_path"`
	FileHash      string  `db:"file_hash"`
	MimeType      string  `db:"mime_type"`
	MediaType     string  `db:"media_type"`
	BlossomURL    *string `db:"blossom_url"`
	Width         *int    `db:"width"`
	Height        *int    `db:"height"`
	Blurhash      *string `db:"blurhash"`
	CreatedAt     int64   `db:"created_at"`
	AccessedAt    int64   `db:"accessed_at"`
}

func (r mediaFileRow) toDomain() (MediaFile, error) {
	createdAt, err := decodeTimestamp("media_files.created_at", r.CreatedAt)
	if err != nil {
		return MediaFile{}, err
	}
	accessedAt, err := decodeTimestamp("media_files.accessed_at", r.AccessedAt)
	if err != nil {
		return MediaFile{}, err
	}
	return MediaFile{
		ID:            r.ID,
		MlsGroupID:    r.MlsGroupID,
		AccountPubkey: r.AccountPubkey,
		FilePath:      r.FilePath,
		FileHash:      r.FileHash,
		MimeType:      r.MimeType,
		MediaType:     MediaType(r.MediaType),
		BlossomURL:    r.BlossomURL,
		Width:         r.Width,
		Height:        r.Height,
		Blurhash:      r.Blurhash,
		CreatedAt:     createdAt,
		AccessedAt:    accessedAt,
	}, nil
}

type aggregatedMessageRow struct {
	ID          string  `db:"id"`
	MlsGroupID  string  `db:"mls_group_id"`
	Author      string  `db:"author"`
	CreatedAt   int64   `db:"created_at"`
	Kind        int     `db:"kind"`
	Content     string  `db:"content"`
	IsReply     bool    `db:"is_reply"`
	RepliedToID *string `db:"replied_to_id"`
	Reactions   string  `db:"reactions"`
	DeletedBy   *string `db:"deleted_by"`
	EditOfID    *string `db:"edit_of_id"`
}

func (r aggregatedMessageRow) toDomain() (AggregatedMessage, error) {
	createdAt, err := decodeTimestamp("aggregated_messages.created_at", r.CreatedAt)
	if err != nil {
		return AggregatedMessage{}, err
	}
	reactions := map[string][]string{}
	if r.Reactions != "" {
		if err := json.Unmarshal([]byte(r.Reactions), &reactions); err != nil {
			return AggregatedMessage{}, werrors.Wrap(werrors.IO, err, "aggregated_messages.reactions: decode json")
		}
	}
	return AggregatedMessage{
		ID:          r.ID,
		MlsGroupID:  r.MlsGroupID,
		Author:      r.Author,
		CreatedAt:   createdAt,
		Kind:        r.Kind,
		Content:     r.Content,
		IsReply:     r.IsReply,
		RepliedToID: r.RepliedToID,
		Reactions:   reactions,
		DeletedBy:   r.DeletedBy,
		EditOfID:    r.EditOfID,
	}, nil
}
