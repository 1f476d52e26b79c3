// Package engine implements component M: the orchestrator that owns
// every other component's lifecycle and exposes the single entry point
// the CLI (or any other host) constructs.
package engine

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/pinpox/whitenoise/internal/accounts"
	"github.com/pinpox/whitenoise/internal/aggregator"
	"github.com/pinpox/whitenoise/internal/config"
	"github.com/pinpox/whitenoise/internal/database"
	"github.com/pinpox/whitenoise/internal/eventtracker"
	"github.com/pinpox/whitenoise/internal/groupengine"
	"github.com/pinpox/whitenoise/internal/handlers"
	"github.com/pinpox/whitenoise/internal/logging"
	"github.com/pinpox/whitenoise/internal/mediastore"
	"github.com/pinpox/whitenoise/internal/media"
	"github.com/pinpox/whitenoise/internal/pipeline"
	"github.com/pinpox/whitenoise/internal/relaymanager"
	"github.com/pinpox/whitenoise/internal/scheduler"
	"github.com/pinpox/whitenoise/internal/secrets"
	"github.com/pinpox/whitenoise/internal/werrors"
)

// Engine composes every component and owns their shared lifetime.
type Engine struct {
	cfg config.WhitenoiseConfig

	db       *database.DB
	relays   *relaymanager.Manager
	secret   secrets.Store
	tracker  eventtracker.Tracker
	agg      *aggregator.Aggregator
	accounts *accounts.Service
	handlers *handlers.Handlers
	pipeline *pipeline.Pipeline
	sched    *scheduler.Scheduler
	media    *media.Orchestrator

	log *log.Logger

	mu       sync.RWMutex
	loaded   map[string]database.Account // pubkey -> account, the in-memory set step 6 builds
}

// New runs the full initialization sequence. Every step must succeed or
// the partially constructed Engine is torn down and the error returned.
func New(ctx context.Context, cfg config.WhitenoiseConfig) (*Engine, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "create data/logs directories")
	}

	engineLog := logging.New(cfg.LogsDir, "engine")

	db, err := database.Open(ctx, cfg.DatabasePath(), logging.New(cfg.LogsDir, "database"))
	if err != nil {
		return nil, err
	}

	relays := relaymanager.New(logging.New(cfg.LogsDir, "relaymanager"))

	secretStore, err := secrets.NewFileStore(cfg.DataDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	tracker := eventtracker.New(db)
	agg := aggregator.New(db, true)
	accountsSvc := accounts.New(db, secretStore, relays, cfg, logging.New(cfg.LogsDir, "accounts"))
	h := handlers.New(db, accountsSvc, relays, agg, logging.New(cfg.LogsDir, "handlers"))

	mediaStore, err := mediastore.New(cfg.MediaCacheDir())
	if err != nil {
		db.Close()
		return nil, err
	}
	mediaOrch := media.New(mediaStore, db, logging.New(cfg.LogsDir, "media"))

	e := &Engine{
		cfg:      cfg,
		db:       db,
		relays:   relays,
		secret:   secretStore,
		tracker:  tracker,
		agg:      agg,
		accounts: accountsSvc,
		handlers: h,
		media:    mediaOrch,
		log:      engineLog,
		loaded:   make(map[string]database.Account),
	}

	e.pipeline = pipeline.New(relays, h, tracker, db, e.loadedPubkeys, logging.New(cfg.LogsDir, "pipeline"))
	e.sched = scheduler.New(accountsSvc, relays, db, logging.New(cfg.LogsDir, "scheduler"))

	accountRows, err := db.ListAccounts(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	e.mu.Lock()
	for _, acc := range accountRows {
		e.loaded[acc.Pubkey] = acc
	}
	e.mu.Unlock()

	go e.pipeline.Run()
	go e.sched.Run()

	for _, acc := range accountRows {
		if err := accountsSvc.LoadAccount(ctx, acc.Pubkey); err != nil {
			e.log.Printf("engine: load account %s: %v", acc.Pubkey, err)
		}
	}

	return e, nil
}

// loadedPubkeys returns a snapshot of currently loaded account pubkeys,
// used by the pipeline for subscription-id matching.
func (e *Engine) loadedPubkeys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pubkeys := make([]string, 0, len(e.loaded))
	for pk := range e.loaded {
		pubkeys = append(pubkeys, pk)
	}
	return pubkeys
}

// CreateIdentity creates and onboards a new account, adding it to the
// loaded set.
func (e *Engine) CreateIdentity(ctx context.Context) (database.Account, error) {
	acc, err := e.accounts.CreateIdentity(ctx)
	if err != nil {
		return database.Account{}, err
	}
	e.mu.Lock()
	e.loaded[acc.Pubkey] = acc
	e.mu.Unlock()
	return acc, nil
}

// Login imports an existing key, creating its account row if it is new
// (no onboarding publications are made), and adds it to the loaded set.
func (e *Engine) Login(ctx context.Context, secretHexOrBech32 string) (database.Account, error) {
	acc, err := e.accounts.Login(ctx, secretHexOrBech32)
	if err != nil {
		return database.Account{}, err
	}
	e.mu.Lock()
	e.loaded[acc.Pubkey] = acc
	e.mu.Unlock()
	return acc, nil
}

// Logout removes an account from both the database and the loaded set.
func (e *Engine) Logout(ctx context.Context, pubkey string) error {
	if err := e.accounts.Logout(ctx, pubkey); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.loaded, pubkey)
	e.mu.Unlock()
	return nil
}

// Accounts returns the Account service for direct use (relay/metadata/
// contact operations) by a host CLI or UI.
func (e *Engine) Accounts() *accounts.Service { return e.accounts }

// Handlers exposes the welcome accept/decline flow to a host CLI or UI.
func (e *Engine) Handlers() *handlers.Handlers { return e.handlers }

// Media exposes the media pipeline to a host CLI or UI.
func (e *Engine) Media() *media.Orchestrator { return e.media }

// Database exposes read access to the aggregated message cache and
// account-group visibility state to a host CLI or UI.
func (e *Engine) Database() *database.DB { return e.db }

// DeleteAllData drops DB contents, removes every per-account group-
// engine tree on disk, and clears the loaded set. It does not stop the
// pipeline or scheduler; Close does. Idempotent: safe to call on an
// already-empty engine.
func (e *Engine) DeleteAllData(ctx context.Context) error {
	if err := e.db.DeleteAllData(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	pubkeys := make([]string, 0, len(e.loaded))
	for pk := range e.loaded {
		pubkeys = append(pubkeys, pk)
	}
	e.loaded = make(map[string]database.Account)
	e.mu.Unlock()

	for _, pk := range pubkeys {
		dir := groupengine.StoreDirFor(e.cfg.DataDir, pk)
		if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
			e.log.Printf("engine: remove group engine tree %s: %v", dir, err)
		}
	}

	return nil
}

// Close stops the pipeline and scheduler and releases the DB pool.
// Idempotent with DeleteAllData in that both may be called during
// shutdown without double-freeing resources.
func (e *Engine) Close() error {
	e.relays.Close()
	e.pipeline.Stop()
	e.sched.Stop()
	return e.db.Close()
}
