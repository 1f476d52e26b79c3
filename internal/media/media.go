// Package media implements component G: the orchestrator coordinating
// the filesystem cache (mediastore) and the database index binding
// cached media to groups.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pinpox/whitenoise/internal/database"
	"github.com/pinpox/whitenoise/internal/mediastore"
	"github.com/pinpox/whitenoise/internal/werrors"
	"log"
)

// Upload is the already-encrypted payload the caller hands in.
// Encryption happens before upload and decryption happens after
// download, both outside this package; the hash recorded here is over
// the ciphertext.
type Upload struct {
	Filename string
	MimeType string
	Data     []byte // ciphertext bytes
	Width    *int
	Height   *int
	Blurhash *string
}

// Orchestrator binds mediastore (C) and database (B) for store-and-record.
type Orchestrator struct {
	files *mediastore.Store
	db    *database.DB
	log   *log.Logger
}

// New constructs an Orchestrator.
func New(files *mediastore.Store, db *database.DB, logger *log.Logger) *Orchestrator {
	return &Orchestrator{files: files, db: db, log: logger}
}

func extOf(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		return filename[i+1:]
	}
	return "bin"
}

// StoreAndRecord writes the ciphertext to the content-addressed cache
// (deduplicating identical bytes) and records/refreshes a MediaFile row
// scoped to (group, account).
func (o *Orchestrator) StoreAndRecord(ctx context.Context, accountPubkey, groupID string, mediaType database.MediaType, u Upload) (database.MediaFile, error) {
	sum := sha256.Sum256(u.Data)
	hashHex := hex.EncodeToString(sum[:])
	ext := extOf(u.Filename)

	path, err := o.files.Put(hashHex, ext, u.Data)
	if err != nil {
		return database.MediaFile{}, werrors.Wrap(werrors.IO, err, "cache media file")
	}

	row, err := o.db.UpsertMediaFile(ctx, database.MediaFileInput{
		MlsGroupID:    groupID,
		AccountPubkey: accountPubkey,
		FilePath:      path,
		FileHash:      hashHex,
		MimeType:      u.MimeType,
		MediaType:     mediaType,
		Width:         u.Width,
		Height:        u.Height,
		Blurhash:      u.Blurhash,
	})
	if err != nil {
		return database.MediaFile{}, err
	}

	o.log.Printf("store_and_record: group=%s account=%s hash=%s size=%s path=%s",
		groupID, accountPubkey, hashHex, humanize.Bytes(uint64(len(u.Data))), path)
	return row, nil
}

// Fetch returns the cached plaintext-or-ciphertext bytes for an already
// recorded media file (caller decrypts if needed).
func (o *Orchestrator) Fetch(mf database.MediaFile) ([]byte, error) {
	return o.files.Get(mf.FileHash, extOf(mf.FilePath))
}
