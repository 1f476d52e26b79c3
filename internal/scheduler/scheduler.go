// Package scheduler implements component L: periodic key-package
// rotation. It runs every 10 minutes, bounded to 5 concurrent accounts.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/whitenoise/internal/accounts"
	"github.com/pinpox/whitenoise/internal/database"
	"github.com/pinpox/whitenoise/internal/groupengine"
	"github.com/pinpox/whitenoise/internal/nostrkinds"
	"github.com/pinpox/whitenoise/internal/relaymanager"
)

const (
	interval        = 10 * time.Minute
	keyPackageTTL   = 30 * 24 * time.Hour
	maxConcurrent   = 5
	fetchAllTimeout = 15 * time.Second
)

// Scheduler runs the periodic maintenance tasks.
type Scheduler struct {
	accounts *accounts.Service
	relays   *relaymanager.Manager
	db       *database.DB
	log      *log.Logger

	stop chan struct{}
	done chan struct{}
}

// New constructs a Scheduler.
func New(accountsSvc *accounts.Service, relays *relaymanager.Manager, db *database.DB, logger *log.Logger) *Scheduler {
	return &Scheduler{
		accounts: accountsSvc,
		relays:   relays,
		db:       db,
		log:      logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run loops the maintenance pass every interval until Stop is called.
func (s *Scheduler) Run() {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Stop ends the loop and waits for the in-flight pass to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// RunOnce runs a single maintenance pass immediately; exported for
// tests and for triggering a pass out of band from the ticker.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	accountsList, err := s.db.ListAccounts(ctx)
	if err != nil {
		s.log.Printf("scheduler: list accounts: %v", err)
		return
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	for _, acc := range accountsList {
		acc := acc
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.rotateKeyPackages(ctx, acc.Pubkey); err != nil {
				s.log.Printf("scheduler: rotate key packages for %s: %v", acc.Pubkey, err)
			}
		}()
	}
	wg.Wait()
}

// rotateKeyPackages implements the per-account maintenance steps.
func (s *Scheduler) rotateKeyPackages(ctx context.Context, pubkey string) error {
	relays, err := s.accounts.RelaysFor(ctx, pubkey, database.RelayTypeKeyPackage)
	if err != nil {
		return err
	}
	if len(relays) == 0 {
		return nil
	}

	signer, err := s.accounts.SignerFor(ctx, pubkey)
	if err != nil {
		return err
	}
	eng, err := s.accounts.GroupEngineFor(ctx, pubkey, signer)
	if err != nil {
		return err
	}

	events, err := s.fetchAllKeyPackagesForAccount(ctx, pubkey, relays)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return s.publishFreshKeyPackage(ctx, pubkey, relays, signer, eng)
	}

	cutoff := time.Now().Add(-keyPackageTTL)
	var expired []nostr.Event
	for _, evt := range events {
		if evt.CreatedAt.Time().Before(cutoff) {
			expired = append(expired, evt)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	if err := s.publishFreshKeyPackage(ctx, pubkey, relays, signer, eng); err != nil {
		return err
	}

	for _, evt := range expired {
		if _, err := s.relays.PublishEventDeletionWithSigner(ctx, evt.ID, relays, signer); err != nil {
			s.log.Printf("scheduler: delete expired key package %s: %v", evt.ID, err)
		}
	}
	return nil
}

// fetchAllKeyPackagesForAccount returns every kind-443 key package pubkey
// has published to relays, used both to decide whether rotation is needed
// and, in tests, to verify rotation actually happened.
func (s *Scheduler) fetchAllKeyPackagesForAccount(ctx context.Context, pubkey string, relays []string) ([]nostr.Event, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchAllTimeout)
	defer cancel()
	return s.relays.FetchEventsWithFilter(fetchCtx, relays, nostr.Filter{
		Kinds:   []int{nostrkinds.MlsKeyPackage},
		Authors: []string{pubkey},
	})
}

func (s *Scheduler) publishFreshKeyPackage(ctx context.Context, pubkey string, relays []string, signer accounts.Signer, eng *groupengine.Store) error {
	kp, err := eng.CreateKeyPackageForEvent(ctx, relays)
	if err != nil {
		return err
	}
	_, err = s.relays.PublishKeyPackageWithSigner(ctx, kp.Encoded, relays, nil, signer)
	return err
}
