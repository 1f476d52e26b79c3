package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/pinpox/whitenoise/internal/werrors"
)

// InsertAggregatedMessage inserts a new chat-message row.
// at most one row exists per (group, id); a duplicate insert is a no-op.
func (db *DB) InsertAggregatedMessage(ctx context.Context, msg AggregatedMessage) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	if msg.Reactions == nil {
		msg.Reactions = map[string][]string{}
	}
	reactionsJSON, err := json.Marshal(msg.Reactions)
	if err != nil {
		return werrors.Wrap(werrors.InvalidInput, err, "encode reactions")
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO aggregated_messages (id, mls_group_id, author, created_at, kind, content, is_reply, replied_to_id, reactions, deleted_by, edit_of_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.MlsGroupID, msg.Author, encodeTimestamp(msg.CreatedAt), msg.Kind, msg.Content, msg.IsReply,
		msg.RepliedToID, string(reactionsJSON), msg.DeletedBy, msg.EditOfID)
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "insert aggregated_message")
	}
	return nil
}

// GetAggregatedMessage returns a single cached message, or NotFound.
func (db *DB) GetAggregatedMessage(ctx context.Context, mlsGroupID, id string) (AggregatedMessage, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var row aggregatedMessageRow
	err := db.conn.GetContext(ctx, &row, `
		SELECT id, mls_group_id, author, created_at, kind, content, is_reply, replied_to_id, reactions, deleted_by, edit_of_id
		FROM aggregated_messages WHERE mls_group_id = ? AND id = ?
	`, mlsGroupID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return AggregatedMessage{}, werrors.New(werrors.NotFound, "no aggregated_message")
	}
	if err != nil {
		return AggregatedMessage{}, werrors.Wrap(werrors.IO, err, "query aggregated_message")
	}
	return row.toDomain()
}

// ListAggregatedMessages returns every message cached for a group,
// ordered by created_at, oldest first (not by arrival order).
func (db *DB) ListAggregatedMessages(ctx context.Context, mlsGroupID string) ([]AggregatedMessage, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	var rows []aggregatedMessageRow
	if err := db.conn.SelectContext(ctx, &rows, `
		SELECT id, mls_group_id, author, created_at, kind, content, is_reply, replied_to_id, reactions, deleted_by, edit_of_id
		FROM aggregated_messages WHERE mls_group_id = ? ORDER BY created_at ASC
	`, mlsGroupID); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "list aggregated_messages")
	}
	msgs := make([]AggregatedMessage, 0, len(rows))
	for _, r := range rows {
		m, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// SetReaction replaces the reaction recorded by author on target with
// emoji. A second reaction from the same author to the same target
// replaces the first.
func (db *DB) SetReaction(ctx context.Context, mlsGroupID, targetID, author, emoji string) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	msg, err := db.GetAggregatedMessage(ctx, mlsGroupID, targetID)
	if err != nil {
		return err
	}
	if msg.Reactions == nil {
		msg.Reactions = map[string][]string{}
	}
	for e, authors := range msg.Reactions {
		msg.Reactions[e] = removeString(authors, author)
		if len(msg.Reactions[e]) == 0 {
			delete(msg.Reactions, e)
		}
	}
	msg.Reactions[emoji] = append(msg.Reactions[emoji], author)

	reactionsJSON, err := json.Marshal(msg.Reactions)
	if err != nil {
		return werrors.Wrap(werrors.InvalidInput, err, "encode reactions")
	}
	if _, err := db.conn.ExecContext(ctx, `UPDATE aggregated_messages SET reactions = ? WHERE mls_group_id = ? AND id = ?`,
		string(reactionsJSON), mlsGroupID, targetID); err != nil {
		return werrors.Wrap(werrors.IO, err, "update reactions")
	}
	return nil
}

func removeString(ss []string, s string) []string {
	out := ss[:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// MarkDeleted sets deleted_by on an existing message.
func (db *DB) MarkDeleted(ctx context.Context, mlsGroupID, targetID, deleter string) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `UPDATE aggregated_messages SET deleted_by = ? WHERE mls_group_id = ? AND id = ?`,
		deleter, mlsGroupID, targetID)
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "mark deleted")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return werrors.New(werrors.NotFound, "no aggregated_message")
	}
	return nil
}

// ApplyEdit replaces the content of message targetID with newContent and
// sets its edit_of_id to targetID. The caller has already verified that
// the edit's author is the message's author.
func (db *DB) ApplyEdit(ctx context.Context, mlsGroupID, targetID, newContent string) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE aggregated_messages SET content = ?, edit_of_id = ? WHERE mls_group_id = ? AND id = ?`,
		newContent, targetID, mlsGroupID, targetID)
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "apply edit")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return werrors.New(werrors.NotFound, "no aggregated_message")
	}
	return nil
}

// InsertOrphanedReaction records a reaction whose target hasn't arrived.
func (db *DB) InsertOrphanedReaction(ctx context.Context, o OrphanedReaction) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO orphaned_reactions (target_id, mls_group_id, author, emoji, created_at) VALUES (?, ?, ?, ?, ?)
	`, o.TargetID, o.MlsGroupID, o.Author, o.Emoji, encodeTimestamp(o.CreatedAt))
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "insert orphaned_reaction")
	}
	return nil
}

// DrainOrphanedReactions returns and deletes every orphaned reaction
// targeting (mlsGroupID, targetID).
func (db *DB) DrainOrphanedReactions(ctx context.Context, mlsGroupID, targetID string) ([]OrphanedReaction, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	type orphanRow struct {
		TargetID   string `db:"target_id"`
		MlsGroupID string `db:"mls_group_id"`
		Author     string `db:"author"`
		Emoji      string `db:"emoji"`
		CreatedAt  int64  `db:"created_at"`
	}
	var rows []orphanRow
	if err := db.conn.SelectContext(ctx, &rows,
		`SELECT target_id, mls_group_id, author, emoji, created_at FROM orphaned_reactions WHERE mls_group_id = ? AND target_id = ?`,
		mlsGroupID, targetID); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "select orphaned_reactions")
	}
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM orphaned_reactions WHERE mls_group_id = ? AND target_id = ?`, mlsGroupID, targetID); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "delete orphaned_reactions")
	}

	out := make([]OrphanedReaction, 0, len(rows))
	for _, r := range rows {
		createdAt, err := decodeTimestamp("orphaned_reactions.created_at", r.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, OrphanedReaction{TargetID: r.TargetID, MlsGroupID: r.MlsGroupID, Author: r.Author, Emoji: r.Emoji, CreatedAt: createdAt})
	}
	return out, nil
}

// InsertOrphanedDeletion records a deletion whose target hasn't arrived.
func (db *DB) InsertOrphanedDeletion(ctx context.Context, o OrphanedDeletion) error {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO orphaned_deletions (target_id, mls_group_id, deleter, created_at) VALUES (?, ?, ?, ?)
	`, o.TargetID, o.MlsGroupID, o.Deleter, encodeTimestamp(o.CreatedAt))
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "insert orphaned_deletion")
	}
	return nil
}

// DrainOrphanedDeletions returns and deletes the orphaned deletion (if
// any) targeting (mlsGroupID, targetID).
func (db *DB) DrainOrphanedDeletions(ctx context.Context, mlsGroupID, targetID string) ([]OrphanedDeletion, error) {
	ctx, cancel := db.acquire(ctx)
	defer cancel()

	type orphanRow struct {
		TargetID   string `db:"target_id"`
		MlsGroupID string `db:"mls_group_id"`
		Deleter    string `db:"deleter"`
		CreatedAt  int64  `db:"created_at"`
	}
	var rows []orphanRow
	if err := db.conn.SelectContext(ctx, &rows,
		`SELECT target_id, mls_group_id, deleter, created_at FROM orphaned_deletions WHERE mls_group_id = ? AND target_id = ?`,
		mlsGroupID, targetID); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "select orphaned_deletions")
	}
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM orphaned_deletions WHERE mls_group_id = ? AND target_id = ?`, mlsGroupID, targetID); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "delete orphaned_deletions")
	}

	out := make([]OrphanedDeletion, 0, len(rows))
	for _, r := range rows {
		createdAt, err := decodeTimestamp("orphaned_deletions.created_at", r.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, OrphanedDeletion{TargetID: r.TargetID, MlsGroupID: r.MlsGroupID, Deleter: r.Deleter, CreatedAt: createdAt})
	}
	return out, nil
}
