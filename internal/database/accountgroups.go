package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pinpox/whitenoise/internal/werrors"
)

// UpsertGroupInformation creates the group_information row for
// mlsGroupID if absent; group rows are created lazily on first observation.
func (db *DB) UpsertGroupInformation(ctx context.Context, mlsGroupID string, groupType GroupType) (GroupInformation, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var row groupInformationRow
	err := db.conn.GetContext(ctx, &row,
		`SELECT mls_group_id, group_type, created_at, updated_at FROM group_information WHERE mls_group_id = ?`, mlsGroupID)
	if err == nil {
		return row.toDomain()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return GroupInformation{}, werrors.Wrap(werrors.IO, err, "query group_information")
	}

	now := encodeTimestamp(time.Now().UTC())
	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO group_information (mls_group_id, group_type, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		mlsGroupID, string(groupType), now, now); err != nil {
		return GroupInformation{}, werrors.Wrap(werrors.IO, err, "insert group_information")
	}
	return GroupInformation{MlsGroupID: mlsGroupID, GroupType: groupType, CreatedAt: time.UnixMilli(now).UTC(), UpdatedAt: time.UnixMilli(now).UTC()}, nil
}

// UpsertAccountGroup creates or updates the AccountGroup row for
// (accountPubkey, mlsGroupID) with the given confirmation state.
func (db *DB) UpsertAccountGroup(ctx context.Context, accountPubkey, mlsGroupID string, confirmation Confirmation) (AccountGroup, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	now := encodeTimestamp(time.Now().UTC())
	var confVal any
	if confirmation != ConfirmationPending {
		if confirmation == ConfirmationAccepted {
			confVal = 1
		} else {
			confVal = 0
		}
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO account_groups (account_pubkey, mls_group_id, user_confirmation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_pubkey, mls_group_id) DO UPDATE SET user_confirmation = excluded.user_confirmation, updated_at = excluded.updated_at
	`, accountPubkey, mlsGroupID, confVal, now, now)
	if err != nil {
		return AccountGroup{}, werrors.Wrap(werrors.IO, err, "upsert account_group")
	}

	return db.GetAccountGroup(ctx, accountPubkey, mlsGroupID)
}

// GetAccountGroup returns a single AccountGroup row.
func (db *DB) GetAccountGroup(ctx context.Context, accountPubkey, mlsGroupID string) (AccountGroup, error) {
	var row accountGroupRow
	err := db.conn.GetContext(ctx, &row,
		`SELECT account_pubkey, mls_group_id, user_confirmation, created_at, updated_at FROM account_groups WHERE account_pubkey = ? AND mls_group_id = ?`,
		accountPubkey, mlsGroupID)
	if errors.Is(err, sql.ErrNoRows) {
		return AccountGroup{}, werrors.New(werrors.NotFound, "no account_group")
	}
	if err != nil {
		return AccountGroup{}, werrors.Wrap(werrors.IO, err, "query account_group")
	}
	return row.toDomain()
}

// SetAccountGroupConfirmation flips an existing AccountGroup's
// confirmation state set by the welcome accept/decline flow.
func (db *DB) SetAccountGroupConfirmation(ctx context.Context, accountPubkey, mlsGroupID string, confirmation Confirmation) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var confVal any
	if confirmation == ConfirmationAccepted {
		confVal = 1
	} else if confirmation == ConfirmationDeclined {
		confVal = 0
	}
	now := encodeTimestamp(time.Now().UTC())
	res, err := db.conn.ExecContext(ctx,
		`UPDATE account_groups SET user_confirmation = ?, updated_at = ? WHERE account_pubkey = ? AND mls_group_id = ?`,
		confVal, now, accountPubkey, mlsGroupID)
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "update account_group confirmation")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return werrors.New(werrors.NotFound, "no account_group")
	}
	return nil
}

// ListVisibleAccountGroups returns every AccountGroup for accountPubkey
// whose confirmation is not "declined".
func (db *DB) ListVisibleAccountGroups(ctx context.Context, accountPubkey string) ([]AccountGroup, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var rows []accountGroupRow
	if err := db.conn.SelectContext(ctx, &rows,
		`SELECT account_pubkey, mls_group_id, user_confirmation, created_at, updated_at FROM account_groups
		 WHERE account_pubkey = ? AND (user_confirmation IS NULL OR user_confirmation != 0)`, accountPubkey); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "list account_groups")
	}
	groups := make([]AccountGroup, 0, len(rows))
	for _, r := range rows {
		g, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}
