// Package pipeline implements component J: the single-writer async
// event dispatch loop that drains the relay manager's inbound channel,
// classifies and deduplicates each event, and dispatches it to the
// handlers package with bounded retry.
package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/pinpox/whitenoise/internal/database"
	"github.com/pinpox/whitenoise/internal/eventtracker"
	"github.com/pinpox/whitenoise/internal/handlers"
	"github.com/pinpox/whitenoise/internal/relaymanager"
	"github.com/pinpox/whitenoise/internal/werrors"
)

const (
	globalSubscriptionPrefix = "global_users_"
	maxAttempts              = 5
	baseDelay                = 200 * time.Millisecond
	maxDelay                 = 10 * time.Second
)

// Pipeline owns the single goroutine that processes inbound events in
// arrival order. One writer means no two events for the same group or
// account ever race each other into the database.
type Pipeline struct {
	relays   *relaymanager.Manager
	handlers *handlers.Handlers
	tracker  eventtracker.Tracker
	db       *database.DB
	accounts func() []string // snapshot of currently loaded account pubkeys
	log      *log.Logger

	shutdown chan struct{}
	done     chan struct{}
}

// New constructs a Pipeline. accountsFn is called on every account-scoped
// event to get the current set of loaded pubkeys for subscription-id
// matching; it must be safe for concurrent use.
func New(relays *relaymanager.Manager, h *handlers.Handlers, tracker eventtracker.Tracker, db *database.DB, accountsFn func() []string, logger *log.Logger) *Pipeline {
	return &Pipeline{
		relays:   relays,
		handlers: h,
		tracker:  tracker,
		db:       db,
		accounts: accountsFn,
		log:      logger,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run processes the inbound channel until Stop is called, at which
// point it drains whatever is already buffered before returning.
func (p *Pipeline) Run() {
	defer close(p.done)
	inbound := p.relays.Inbound()

	for {
		select {
		case ie, ok := <-inbound:
			if !ok {
				return
			}
			p.processWithRetry(ie)
		case <-p.shutdown:
			p.drain(inbound)
			return
		}
	}
}

// drain consumes whatever is already buffered in inbound without
// blocking for new arrivals, so a shutdown doesn't silently drop events
// that already passed backpressure.
func (p *Pipeline) drain(inbound <-chan relaymanager.InboundEvent) {
	for {
		select {
		case ie, ok := <-inbound:
			if !ok {
				return
			}
			p.processWithRetry(ie)
		default:
			return
		}
	}
}

// Stop signals Run to finish draining and return. It blocks until Run
// has returned.
func (p *Pipeline) Stop() {
	close(p.shutdown)
	<-p.done
}

func (p *Pipeline) processWithRetry(ie relaymanager.InboundEvent) {
	ctx := context.Background()
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = p.process(ctx, ie)
		if err == nil {
			return
		}
		if !werrors.Retryable(err) {
			p.log.Printf("pipeline: dropping event %s (subscription %s): %v", ie.Event.ID, ie.SubscriptionID, err)
			return
		}
		if attempt == maxAttempts {
			break
		}
		delay := baseDelay << uint(attempt-1)
		if delay > maxDelay {
			delay = maxDelay
		}
		time.Sleep(delay)
	}
	p.log.Printf("pipeline: exhausted retries for event %s (subscription %s): %v", ie.Event.ID, ie.SubscriptionID, err)
}

// process classifies, deduplicates, and dispatches a single inbound
// event.
func (p *Pipeline) process(ctx context.Context, ie relaymanager.InboundEvent) error {
	evt := ie.Event

	if strings.HasPrefix(ie.SubscriptionID, globalSubscriptionPrefix) {
		already, err := p.tracker.AlreadyProcessedGlobalEvent(ctx, evt.ID)
		if err != nil {
			return err
		}
		if already {
			return nil
		}
		if err := p.handlers.Dispatch(ctx, "", evt); err != nil {
			return err
		}
		return p.tracker.TrackProcessedGlobalEvent(ctx, evt.ID, evt.Kind, evt.PubKey, evt.CreatedAt.Time())
	}

	accountPubkey, ok := p.matchAccount(ie.SubscriptionID)
	if !ok {
		return werrors.New(werrors.ProtocolError, "no loaded account matches subscription %s", ie.SubscriptionID)
	}

	account, err := p.db.GetAccountByPubkey(ctx, accountPubkey)
	if err != nil {
		return err
	}

	already, err := p.tracker.AlreadyProcessedAccountEvent(ctx, evt.ID, account.ID)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	if err := p.handlers.Dispatch(ctx, accountPubkey, evt); err != nil {
		return err
	}
	return p.tracker.TrackProcessedAccountEvent(ctx, evt.ID, account.ID, evt.Kind, evt.PubKey, evt.CreatedAt.Time())
}

// matchAccount recovers the owning pubkey for an account-scoped
// subscription id via a short linear scan over currently loaded
// accounts.
func (p *Pipeline) matchAccount(subID string) (string, bool) {
	for _, pubkey := range p.accounts() {
		if p.relays.MatchAccountSubscription(subID, pubkey) {
			return pubkey, true
		}
	}
	return "", false
}
