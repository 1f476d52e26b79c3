// Package eventtracker implements component E: the idempotency source of
// truth the event pipeline consults before invoking a handler and
// records after success, so at-most-once semantics survive process
// restarts.
package eventtracker

import (
	"context"
	"time"

	"github.com/pinpox/whitenoise/internal/database"
)

// Tracker is the pluggable interface the pipeline dispatches through:
// track/check methods for processed events (account and global scope)
// and for published events.
type Tracker interface {
	TrackPublishedEvent(ctx context.Context, eventID string, accountID int64) error
	AccountPublishedEvent(ctx context.Context, eventID string, accountID int64) (bool, error)
	GlobalPublishedEvent(ctx context.Context, eventID string) (bool, error)

	TrackProcessedAccountEvent(ctx context.Context, eventID string, accountID int64, kind int, authorPubkey string, createdAt time.Time) error
	AlreadyProcessedAccountEvent(ctx context.Context, eventID string, accountID int64) (bool, error)

	TrackProcessedGlobalEvent(ctx context.Context, eventID string, kind int, authorPubkey string, createdAt time.Time) error
	AlreadyProcessedGlobalEvent(ctx context.Context, eventID string) (bool, error)
}

// DatabaseTracker is the real, database-backed implementation.
type DatabaseTracker struct {
	db *database.DB
}

// New wraps db as a Tracker.
func New(db *database.DB) *DatabaseTracker { return &DatabaseTracker{db: db} }

func (t *DatabaseTracker) TrackPublishedEvent(ctx context.Context, eventID string, accountID int64) error {
	return t.db.TrackPublishedEvent(ctx, eventID, accountID)
}

func (t *DatabaseTracker) AccountPublishedEvent(ctx context.Context, eventID string, accountID int64) (bool, error) {
	return t.db.AccountPublishedEvent(ctx, eventID, accountID)
}

func (t *DatabaseTracker) GlobalPublishedEvent(ctx context.Context, eventID string) (bool, error) {
	return t.db.GlobalPublishedEvent(ctx, eventID)
}

func (t *DatabaseTracker) TrackProcessedAccountEvent(ctx context.Context, eventID string, accountID int64, kind int, authorPubkey string, createdAt time.Time) error {
	return t.db.TrackProcessedAccountEvent(ctx, eventID, accountID, kind, authorPubkey, createdAt)
}

func (t *DatabaseTracker) AlreadyProcessedAccountEvent(ctx context.Context, eventID string, accountID int64) (bool, error) {
	return t.db.AlreadyProcessedAccountEvent(ctx, eventID, accountID)
}

func (t *DatabaseTracker) TrackProcessedGlobalEvent(ctx context.Context, eventID string, kind int, authorPubkey string, createdAt time.Time) error {
	return t.db.TrackProcessedGlobalEvent(ctx, eventID, kind, authorPubkey, createdAt)
}

func (t *DatabaseTracker) AlreadyProcessedGlobalEvent(ctx context.Context, eventID string) (bool, error) {
	return t.db.AlreadyProcessedGlobalEvent(ctx, eventID)
}

// NoTracker is a no-op Tracker for tests: every "checked" query returns
// false and every "track" call succeeds without recording anything.
type NoTracker struct{}

func (NoTracker) TrackPublishedEvent(context.Context, string, int64) error   { return nil }
func (NoTracker) AccountPublishedEvent(context.Context, string, int64) (bool, error) {
	return false, nil
}
func (NoTracker) GlobalPublishedEvent(context.Context, string) (bool, error) { return false, nil }
func (NoTracker) TrackProcessedAccountEvent(context.Context, string, int64, int, string, time.Time) error {
	return nil
}
func (NoTracker) AlreadyProcessedAccountEvent(context.Context, string, int64) (bool, error) {
	return false, nil
}
func (NoTracker) TrackProcessedGlobalEvent(context.Context, string, int, string, time.Time) error {
	return nil
}
func (NoTracker) AlreadyProcessedGlobalEvent(context.Context, string) (bool, error) {
	return false, nil
}
