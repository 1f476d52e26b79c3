package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pinpox/whitenoise/internal/werrors"
)

// TrackProcessedAccountEvent records that eventID has been applied for
// accountID. Idempotent: re-tracking the same (event, account) is a no-op.
func (db *DB) TrackProcessedAccountEvent(ctx context.Context, eventID string, accountID int64, kind int, authorPubkey string, createdAt time.Time) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_events (event_id, account_id, kind, author_pubkey, created_at) VALUES (?, ?, ?, ?, ?)
	`, eventID, accountID, kind, authorPubkey, encodeTimestamp(createdAt))
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "track processed account event")
	}
	return nil
}

// AlreadyProcessedAccountEvent reports whether eventID has already been
// applied for accountID.
func (db *DB) AlreadyProcessedAccountEvent(ctx context.Context, eventID string, accountID int64) (bool, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var n int
	if err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(1) FROM processed_events WHERE event_id = ? AND account_id = ?`, eventID, accountID); err != nil {
		return false, werrors.Wrap(werrors.IO, err, "check processed account event")
	}
	return n > 0, nil
}

// TrackProcessedGlobalEvent records a globally-processed event (account_id IS NULL).
func (db *DB) TrackProcessedGlobalEvent(ctx context.Context, eventID string, kind int, authorPubkey string, createdAt time.Time) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_events (event_id, account_id, kind, author_pubkey, created_at) VALUES (?, NULL, ?, ?, ?)
	`, eventID, kind, authorPubkey, encodeTimestamp(createdAt))
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "track processed global event")
	}
	return nil
}

// AlreadyProcessedGlobalEvent reports whether eventID has already been
// applied globally.
func (db *DB) AlreadyProcessedGlobalEvent(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var n int
	if err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(1) FROM processed_events WHERE event_id = ? AND account_id IS NULL`, eventID); err != nil {
		return false, werrors.Wrap(werrors.IO, err, "check processed global event")
	}
	return n > 0, nil
}

// TrackPublishedEvent records that accountID originated eventID.
func (db *DB) TrackPublishedEvent(ctx context.Context, eventID string, accountID int64) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO published_events (event_id, account_id, created_at) VALUES (?, ?, ?)`,
		eventID, accountID, encodeTimestamp(time.Now().UTC()))
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "track published event")
	}
	return nil
}

// AccountPublishedEvent reports whether accountID originated eventID.
func (db *DB) AccountPublishedEvent(ctx context.Context, eventID string, accountID int64) (bool, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var n int
	if err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(1) FROM published_events WHERE event_id = ? AND account_id = ?`, eventID, accountID); err != nil {
		return false, werrors.Wrap(werrors.IO, err, "check account published event")
	}
	return n > 0, nil
}

// GlobalPublishedEvent reports whether any account originated eventID.
func (db *DB) GlobalPublishedEvent(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var n int
	if err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(1) FROM published_events WHERE event_id = ?`, eventID); err != nil {
		return false, werrors.Wrap(werrors.IO, err, "check global published event")
	}
	return n > 0, nil
}

// GetAppSetting returns a process-wide setting, or NotFound.
func (db *DB) GetAppSetting(ctx context.Context, key string) (AppSetting, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	type row struct {
		Key       string `db:"key"`
		Value     string `db:"value"`
		UpdatedAt int64  `db:"updated_at"`
	}
	var r row
	err := db.conn.GetContext(ctx, &r, `SELECT key, value, updated_at FROM app_settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return AppSetting{}, werrors.New(werrors.NotFound, "no app_setting")
	}
	if err != nil {
		return AppSetting{}, werrors.Wrap(werrors.IO, err, "query app_setting")
	}
	updatedAt, err := decodeTimestamp("app_settings.updated_at", r.UpdatedAt)
	if err != nil {
		return AppSetting{}, err
	}
	return AppSetting{Key: r.Key, Value: r.Value, UpdatedAt: updatedAt}, nil
}

// SetAppSetting upserts a process-wide setting.
func (db *DB) SetAppSetting(ctx context.Context, key, value string) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO app_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, encodeTimestamp(time.Now().UTC()))
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "set app_setting")
	}
	return nil
}
