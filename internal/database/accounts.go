package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/pinpox/whitenoise/internal/werrors"
)

// CreateAccount inserts a User (if absent) and an Account row for pubkey
// in a single transaction: accounts are created and deleted
// atomically with rollback on failure."
func (db *DB) CreateAccount(ctx context.Context, pubkey string) (Account, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return Account{}, werrors.Wrap(werrors.IO, err, "begin create-account")
	}
	defer tx.Rollback()

	now := encodeTimestamp(time.Now().UTC())

	var userID int64
	err = tx.GetContext(ctx, &userID, `SELECT id FROM users WHERE pubkey = ?`, pubkey)
	if errors.Is(err, sql.ErrNoRows) {
		// updated_at is the metadata watermark UpsertUser ratchets on; it
		// starts at zero because no metadata event has been applied yet.
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (pubkey, metadata, created_at, updated_at) VALUES (?, '{}', ?, 0)`,
			pubkey, now)
		if err != nil {
			return Account{}, werrors.Wrap(werrors.IO, err, "insert user for account")
		}
		userID, _ = res.LastInsertId()
	} else if err != nil {
		return Account{}, werrors.Wrap(werrors.IO, err, "lookup user for account")
	}

	settingsJSON, _ := json.Marshal(AccountSettings{})
	res, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (pubkey, user_id, settings, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		pubkey, userID, string(settingsJSON), now, now)
	if err != nil {
		return Account{}, werrors.Wrap(werrors.IO, err, "insert account")
	}
	accountID, _ := res.LastInsertId()

	if err := tx.Commit(); err != nil {
		return Account{}, werrors.Wrap(werrors.IO, err, "commit create-account")
	}

	return Account{
		ID:        accountID,
		Pubkey:    pubkey,
		UserID:    userID,
		CreatedAt: time.UnixMilli(now).UTC(),
		UpdatedAt: time.UnixMilli(now).UTC(),
	}, nil
}

// GetAccountByPubkey returns the Account row for pubkey, or NotFound.
func (db *DB) GetAccountByPubkey(ctx context.Context, pubkey string) (Account, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var row accountRow
	err := db.conn.GetContext(ctx, &row,
		`SELECT id, pubkey, user_id, settings, last_synced_at, created_at, updated_at FROM accounts WHERE pubkey = ?`, pubkey)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, werrors.New(werrors.NotFound, "no account for pubkey")
	}
	if err != nil {
		return Account{}, werrors.Wrap(werrors.IO, err, "query account")
	}
	return row.toDomain()
}

// ListAccounts returns every local account row.
func (db *DB) ListAccounts(ctx context.Context) ([]Account, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var rows []accountRow
	if err := db.conn.SelectContext(ctx, &rows,
		`SELECT id, pubkey, user_id, settings, last_synced_at, created_at, updated_at FROM accounts`); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "list accounts")
	}
	accounts := make([]Account, 0, len(rows))
	for _, r := range rows {
		a, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// DeleteAccount removes the account row. The delete cascades to
// processed_events and published_events through their account_id
// foreign keys; account_groups has no foreign key to accounts, so its
// rows are deleted explicitly. The user row and its user_relays are kept.
func (db *DB) DeleteAccount(ctx context.Context, pubkey string) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM accounts WHERE pubkey = ?`, pubkey)
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "delete account")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return werrors.New(werrors.NotFound, "no account for pubkey")
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM account_groups WHERE account_pubkey = ?`, pubkey); err != nil {
		return werrors.Wrap(werrors.IO, err, "delete account_groups")
	}
	return nil
}

// UpdateLastSynced bumps Account.last_synced_at to now.
func (db *DB) UpdateLastSynced(ctx context.Context, pubkey string) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	now := encodeTimestamp(time.Now().UTC())
	if _, err := db.conn.ExecContext(ctx, `UPDATE accounts SET last_synced_at = ?, updated_at = ? WHERE pubkey = ?`, now, now, pubkey); err != nil {
		return werrors.Wrap(werrors.IO, err, "update last_synced_at")
	}
	return nil
}

// UpdateAccountSettings replaces an account's settings blob.
func (db *DB) UpdateAccountSettings(ctx context.Context, pubkey string, settings AccountSettings) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	data, err := json.Marshal(settings)
	if err != nil {
		return werrors.Wrap(werrors.InvalidInput, err, "encode account settings")
	}
	now := encodeTimestamp(time.Now().UTC())
	res, err := db.conn.ExecContext(ctx, `UPDATE accounts SET settings = ?, updated_at = ? WHERE pubkey = ?`, string(data), now, pubkey)
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "update account settings")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return werrors.New(werrors.NotFound, "no account for pubkey")
	}
	return nil
}
