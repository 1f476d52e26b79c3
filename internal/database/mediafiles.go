package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pinpox/whitenoise/internal/werrors"
)

// MediaFileInput is the data needed to record a cached media file.
type MediaFileInput struct {
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
}

// UpsertMediaFile inserts a MediaFile row, or on conflict with the unique
// (mls_group_id, file_hash, account_pubkey) constraint, refreshes only
// accessed_at.
func (db *DB) UpsertMediaFile(ctx context.Context, in MediaFileInput) (MediaFile, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	now := encodeTimestamp(time.Now().UTC())
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO media_files (mls_group_id, account_pubkey, file_path, file_hash, mime_type, media_type, blossom_url, width, height, blurhash, created_at, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mls_group_id, file_hash, account_pubkey) DO UPDATE SET accessed_at = excluded.accessed_at
	`, in.MlsGroupID, in.AccountPubkey, in.FilePath, in.FileHash, in.MimeType, string(in.MediaType),
		in.BlossomURL, in.Width, in.Height, in.Blurhash, now, now)
	if err != nil {
		return MediaFile{}, werrors.Wrap(werrors.IO, err, "upsert media_file")
	}

	var row mediaFileRow
	err = db.conn.GetContext(ctx, &row, `
		SELECT id, mls_group_id, account_pubkey, file_path, file_hash, mime_type, media_type, blossom_url, width, height, blurhash, created_at, accessed_at
		FROM media_files WHERE mls_group_id = ? AND file_hash = ? AND account_pubkey = ?
	`, in.MlsGroupID, in.FileHash, in.AccountPubkey)
	if err != nil {
		return MediaFile{}, werrors.Wrap(werrors.IO, err, "reload media_file")
	}
	return row.toDomain()
}

// MediaFileByHash finds any existing row with the given file_hash,
// regardless of group/account, used by the media orchestrator to decide
// whether the physical file already exists on disk.
func (db *DB) MediaFileByHash(ctx context.Context, fileHash string) (MediaFile, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var row mediaFileRow
	err := db.conn.GetContext(ctx, &row, `
		SELECT id, mls_group_id, account_pubkey, file_path, file_hash, mime_type, media_type, blossom_url, width, height, blurhash, created_at, accessed_at
		FROM media_files WHERE file_hash = ? LIMIT 1
	`, fileHash)
	if errors.Is(err, sql.ErrNoRows) {
		return MediaFile{}, werrors.New(werrors.NotFound, "no media_file for hash")
	}
	if err != nil {
		return MediaFile{}, werrors.Wrap(werrors.IO, err, "query media_file by hash")
	}
	return row.toDomain()
}
