package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/pinpox/whitenoise/internal/werrors"
)

// UpsertUser inserts a new User row, or updates an existing one's
// metadata only if created_at exceeds the stored updated_at:
// "monotonic ratchet"). Returns the resulting domain row.
func (db *DB) UpsertUser(ctx context.Context, pubkey string, metadata UserMetadata, eventCreatedAt time.Time) (User, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return User{}, werrors.Wrap(werrors.InvalidInput, err, "encode user metadata")
	}

	existing, err := db.GetUserByPubkey(ctx, pubkey)
	switch {
	case werrors.Is(err, werrors.NotFound):
		// updated_at starts at the event's own created_at, not wall-clock
		// time, so the ratchet below compares against the watermark of
		// the last applied event rather than processing time.
		res, err := db.conn.ExecContext(ctx,
			`INSERT INTO users (pubkey, metadata, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			pubkey, string(metaJSON), encodeTimestamp(eventCreatedAt), encodeTimestamp(eventCreatedAt))
		if err != nil {
			return User{}, werrors.Wrap(werrors.IO, err, "insert user")
		}
		id, _ := res.LastInsertId()
		return User{ID: id, Pubkey: pubkey, Metadata: metadata, CreatedAt: eventCreatedAt, UpdatedAt: eventCreatedAt}, nil
	case err != nil:
		return User{}, err
	}

	if !eventCreatedAt.After(existing.UpdatedAt) {
		return existing, nil
	}

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE users SET metadata = ?, updated_at = ? WHERE pubkey = ?`,
		string(metaJSON), encodeTimestamp(eventCreatedAt), pubkey); err != nil {
		return User{}, werrors.Wrap(werrors.IO, err, "update user metadata")
	}
	existing.Metadata = metadata
	existing.UpdatedAt = eventCreatedAt
	return existing, nil
}

// GetUserByPubkey returns the User row for pubkey, or a NotFound error.
func (db *DB) GetUserByPubkey(ctx context.Context, pubkey string) (User, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var row userRow
	err := db.conn.GetContext(ctx, &row, `SELECT id, pubkey, metadata, created_at, updated_at FROM users WHERE pubkey = ?`, pubkey)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, werrors.New(werrors.NotFound, "no user for pubkey")
	}
	if err != nil {
		return User{}, werrors.Wrap(werrors.IO, err, "query user")
	}
	return row.toDomain()
}
