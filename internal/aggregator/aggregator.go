// Package aggregator implements component F: folding incoming decrypted
// messages, reactions, deletions, and edits into the message cache,
// with orphan reconciliation for out-of-order arrival.
package aggregator

import (
	"context"
	"strings"
	"unicode"

	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/whitenoise/internal/database"
	"github.com/pinpox/whitenoise/internal/groupengine"
	"github.com/pinpox/whitenoise/internal/nostrkinds"
	"github.com/pinpox/whitenoise/internal/werrors"
)

// Aggregator folds protocol messages into the database's aggregated
// message cache.
type Aggregator struct {
	db             *database.DB
	normalizeEmoji bool
}

// New constructs an Aggregator. normalizeEmoji toggles variation-selector
// stripping before reaction comparison.
func New(db *database.DB, normalizeEmoji bool) *Aggregator {
	return &Aggregator{db: db, normalizeEmoji: normalizeEmoji}
}

// Apply folds a single decrypted inner event into the cache, dispatched
// by kind.
func (a *Aggregator) Apply(ctx context.Context, groupID string, evt nostr.Event) error {
	switch evt.Kind {
	case nostrkinds.ChatMessage:
		return a.applyChatMessage(ctx, groupID, evt)
	case nostrkinds.Reaction:
		return a.applyReaction(ctx, groupID, evt)
	case nostrkinds.EventDeletion:
		return a.applyDeletion(ctx, groupID, evt)
	case nostrkinds.EditRequest:
		return a.applyEdit(ctx, groupID, evt)
	default:
		return nil
	}
}

func (a *Aggregator) applyChatMessage(ctx context.Context, groupID string, evt nostr.Event) error {
	repliedTo, isReply := firstTag(evt.Tags, "e")

	msg := database.AggregatedMessage{
		ID:         evt.ID,
		MlsGroupID: groupID,
		Author:     evt.PubKey,
		CreatedAt:  evt.CreatedAt.Time(),
		Kind:       evt.Kind,
		Content:    evt.Content,
		IsReply:    isReply,
		Reactions:  map[string][]string{},
	}
	if isReply {
		msg.RepliedToID = &repliedTo
	}
	if err := a.db.InsertAggregatedMessage(ctx, msg); err != nil {
		return err
	}
	return a.drainOrphans(ctx, groupID, evt.ID)
}

// drainOrphans applies any reactions and deletions that arrived before
// this message and were parked in the orphan tables.
func (a *Aggregator) drainOrphans(ctx context.Context, groupID, messageID string) error {
	reactions, err := a.db.DrainOrphanedReactions(ctx, groupID, messageID)
	if err != nil {
		return err
	}
	for _, r := range reactions {
		if err := a.db.SetReaction(ctx, groupID, messageID, r.Author, r.Emoji); err != nil {
			return err
		}
	}

	deletions, err := a.db.DrainOrphanedDeletions(ctx, groupID, messageID)
	if err != nil {
		return err
	}
	for _, d := range deletions {
		if err := a.db.MarkDeleted(ctx, groupID, messageID, d.Deleter); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) applyReaction(ctx context.Context, groupID string, evt nostr.Event) error {
	targetID, ok := firstTag(evt.Tags, "e")
	if !ok {
		return werrors.New(werrors.InvalidInput, "reaction %s has no target e-tag", evt.ID)
	}

	emoji := a.normalize(evt.Content)
	if emoji == "" {
		return werrors.New(werrors.InvalidInput, "reaction %s normalizes to empty emoji", evt.ID)
	}

	_, err := a.db.GetAggregatedMessage(ctx, groupID, targetID)
	if werrors.Is(err, werrors.NotFound) {
		return a.db.InsertOrphanedReaction(ctx, database.OrphanedReaction{
			TargetID:   targetID,
			MlsGroupID: groupID,
			Author:     evt.PubKey,
			Emoji:      emoji,
			CreatedAt:  evt.CreatedAt.Time(),
		})
	}
	if err != nil {
		return err
	}

	return a.db.SetReaction(ctx, groupID, targetID, evt.PubKey, emoji)
}

func (a *Aggregator) applyDeletion(ctx context.Context, groupID string, evt nostr.Event) error {
	targets := allTags(evt.Tags, "e")
	if len(targets) == 0 {
		return werrors.New(werrors.InvalidInput, "deletion %s has no e-tags", evt.ID)
	}

	for _, targetID := range targets {
		_, err := a.db.GetAggregatedMessage(ctx, groupID, targetID)
		if werrors.Is(err, werrors.NotFound) {
			if err := a.db.InsertOrphanedDeletion(ctx, database.OrphanedDeletion{
				TargetID:   targetID,
				MlsGroupID: groupID,
				Deleter:    evt.PubKey,
				CreatedAt:  evt.CreatedAt.Time(),
			}); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := a.db.MarkDeleted(ctx, groupID, targetID, evt.PubKey); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) applyEdit(ctx context.Context, groupID string, evt nostr.Event) error {
	targetID, ok := firstTag(evt.Tags, "e")
	if !ok {
		return werrors.New(werrors.InvalidInput, "edit %s has no target e-tag", evt.ID)
	}

	target, err := a.db.GetAggregatedMessage(ctx, groupID, targetID)
	if werrors.Is(err, werrors.NotFound) {
		// Edit arrived before its target; silently dropped —
		// unlike reactions/deletions, edits have no orphan table.
		return nil
	}
	if err != nil {
		return err
	}
	if target.Author != evt.PubKey {
		// Author mismatch: drop silently.
		return nil
	}
	return a.db.ApplyEdit(ctx, groupID, targetID, evt.Content)
}

// CanDelete reports whether actor may effectively delete a message in
// groupID: either the message's own author, or a group admin. Validated
// at display time, never at storage.
func CanDelete(ctx context.Context, eng groupengine.Engine, groupID string, msg database.AggregatedMessage, actor string) (bool, error) {
	if msg.Author == actor {
		return true, nil
	}
	admins, err := eng.GetAdmins(ctx, groupID)
	if err != nil {
		return false, err
	}
	for _, admin := range admins {
		if admin == actor {
			return true, nil
		}
	}
	return false, nil
}

func (a *Aggregator) normalize(emoji string) string {
	if !a.normalizeEmoji {
		return strings.TrimSpace(emoji)
	}
	var b strings.Builder
	for _, r := range emoji {
		if unicode.Is(unicode.Variation_Selector, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func firstTag(tags nostr.Tags, name string) (string, bool) {
	for _, t := range tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}

func allTags(tags nostr.Tags, name string) []string {
	var out []string
	for _, t := range tags {
		if len(t) >= 2 && t[0] == name {
			out = append(out, t[1])
		}
	}
	return out
}
