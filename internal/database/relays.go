package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pinpox/whitenoise/internal/werrors"
)

// UpsertRelay returns the Relay row for url, inserting it if new. Relays
// are global and deduplicated by URL.
func (db *DB) UpsertRelay(ctx context.Context, url string) (Relay, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var row relayRow
	err := db.conn.GetContext(ctx, &row, `SELECT id, url, created_at, updated_at FROM relays WHERE url = ?`, url)
	if err == nil {
		return row.toDomain()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Relay{}, werrors.Wrap(werrors.IO, err, "query relay")
	}

	now := encodeTimestamp(time.Now().UTC())
	res, err := db.conn.ExecContext(ctx, `INSERT INTO relays (url, created_at, updated_at) VALUES (?, ?, ?)`, url, now, now)
	if err != nil {
		return Relay{}, werrors.Wrap(werrors.IO, err, "insert relay")
	}
	id, _ := res.LastInsertId()
	return Relay{ID: id, URL: url, CreatedAt: time.UnixMilli(now).UTC(), UpdatedAt: time.UnixMilli(now).UTC()}, nil
}

// SetUserRelays replaces the set of relays of relayType for userID with
// urls ("RelayList | InboxRelays | MlsKeyPackageRelays
// -> replace the corresponding UserRelay set").
func (db *DB) SetUserRelays(ctx context.Context, userID int64, relayType RelayType, urls []string) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "begin set-user-relays")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_relays WHERE user_id = ? AND relay_type = ?`, userID, string(relayType)); err != nil {
		return werrors.Wrap(werrors.IO, err, "clear user relays")
	}

	now := encodeTimestamp(time.Now().UTC())
	for _, url := range urls {
		var relayID int64
		err := tx.GetContext(ctx, &relayID, `SELECT id FROM relays WHERE url = ?`, url)
		if errors.Is(err, sql.ErrNoRows) {
			res, err := tx.ExecContext(ctx, `INSERT INTO relays (url, created_at, updated_at) VALUES (?, ?, ?)`, url, now, now)
			if err != nil {
				return werrors.Wrap(werrors.IO, err, "insert relay %s", url)
			}
			relayID, _ = res.LastInsertId()
		} else if err != nil {
			return werrors.Wrap(werrors.IO, err, "lookup relay %s", url)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_relays (user_id, relay_id, relay_type, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			userID, relayID, string(relayType), now, now); err != nil {
			return werrors.Wrap(werrors.IO, err, "insert user_relay")
		}
	}

	return tx.Commit()
}

// UserRelays returns the relay URLs of relayType configured for userID.
func (db *DB) UserRelays(ctx context.Context, userID int64, relayType RelayType) ([]string, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var urls []string
	err := db.conn.SelectContext(ctx, &urls,
		`SELECT r.url FROM relays r JOIN user_relays ur ON ur.relay_id = r.id WHERE ur.user_id = ? AND ur.relay_type = ?`,
		userID, string(relayType))
	if err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "query user relays")
	}
	return urls, nil
}
