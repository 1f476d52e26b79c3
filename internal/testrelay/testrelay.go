// Package testrelay spins up a real in-process nostr relay, backed by
// an in-memory eventstore, so the rest of this module's components can
// be exercised against a live relay connection in tests instead of a
// mock.
package testrelay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/fiatjaf/eventstore/slicestore"
	"github.com/fiatjaf/khatru"
	"github.com/nbd-wtf/go-nostr"
)

const queryTimeout = 5 * time.Second

// Relay is a running in-process relay and its websocket URL.
type Relay struct {
	URL   string
	store *slicestore.SliceStore
}

// Start launches a relay on a random loopback port, backed by a fresh
// slicestore.SliceStore, and registers a cleanup that shuts it down
// when t completes.
func Start(t *testing.T) *Relay {
	t.Helper()

	store := &slicestore.SliceStore{}
	if err := store.Init(); err != nil {
		t.Fatalf("testrelay: init store: %v", err)
	}

	relay := khatru.NewRelay()
	relay.Info.Name = "whitenoise-test-relay"
	relay.Info.Software = "testrelay"
	relay.StoreEvent = append(relay.StoreEvent, store.SaveEvent)
	relay.QueryEvents = append(relay.QueryEvents, store.QueryEvents)
	relay.DeleteEvent = append(relay.DeleteEvent, store.DeleteEvent)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("testrelay: listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	server := &http.Server{Handler: relay}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Shutdown(context.Background()) })

	return &Relay{
		URL:   fmt.Sprintf("ws://127.0.0.1:%d", port),
		store: store,
	}
}

// Events returns every event the relay has stored matching kinds (all
// events if kinds is empty), used by tests to assert on what a
// component actually published.
func (r *Relay) Events(t *testing.T, kinds ...int) []*nostr.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	filter := nostr.Filter{}
	if len(kinds) > 0 {
		filter.Kinds = kinds
	}
	ch, err := r.store.QueryEvents(ctx, filter)
	if err != nil {
		t.Fatalf("testrelay: query events: %v", err)
	}
	var out []*nostr.Event
	for evt := range ch {
		out = append(out, evt)
	}
	return out
}
