package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"launchfeed/internal/domain"
	"launchfeed/internal/storage/memory"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscriptionServer serves one websocket connection, writes the given
// events, then keeps the connection open until the client goes away.
func subscriptionServer(t *testing.T, events []domain.SubscriptionEvent) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for _, ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func runSubscription(t *testing.T, store *memory.TokenStore, events []domain.SubscriptionEvent, want func() bool) {
	t.Helper()

	srv := subscriptionServer(t, events)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	runner := NewRunner(RunnerOptions{Store: store, Transformer: syncTransformer{}})
	c := NewSubscriptionController(SubscriptionOptions{Endpoint: wsURL}, runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for !want() {
		select {
		case <-deadline:
			t.Fatal("expected state never reached")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

func TestSubscription_InsertPrepends(t *testing.T) {
	store := memory.NewTokenStore(nil)
	store.SetTokens([]*domain.Token{{Mint: "mintOld"}})

	events := []domain.SubscriptionEvent{{
		EventType: domain.EventInsert,
		New:       domain.UpstreamRecord{"mint_address": "mintNew", "name": "fresh"},
	}}
	runSubscription(t, store, events, func() bool {
		return len(store.GetTokens()) == 2
	})

	got := store.GetTokens()
	if got[0].Mint != "mintNew" {
		t.Errorf("feed order = [%s, %s], insert must prepend", got[0].Mint, got[1].Mint)
	}
}

func TestSubscription_UpdateMergesInPlace(t *testing.T) {
	store := memory.NewTokenStore(nil)
	store.SetTokens([]*domain.Token{
		{Mint: "mintA", Name: "alpha", Viewers: 1},
		{Mint: "mintB"},
	})

	events := []domain.SubscriptionEvent{{
		EventType: domain.EventUpdate,
		New:       domain.UpstreamRecord{"mint_address": "mintA", "viewers": float64(9)},
	}}
	runSubscription(t, store, events, func() bool {
		tok, err := store.GetByMint("mintA")
		return err == nil && tok.Viewers == 9
	})

	got := store.GetTokens()
	if len(got) != 2 || got[0].Mint != "mintA" {
		t.Errorf("update changed feed shape: %v", got)
	}
	if got[0].Name != "alpha" {
		t.Error("update dropped metadata the event omitted")
	}
}

func TestSubscription_UpdateForUnknownMintInserts(t *testing.T) {
	store := memory.NewTokenStore(nil)
	store.SetTokens([]*domain.Token{{Mint: "mintA"}})

	events := []domain.SubscriptionEvent{{
		EventType: domain.EventUpdate,
		New:       domain.UpstreamRecord{"mint_address": "mintGhost", "viewers": float64(2)},
	}}
	runSubscription(t, store, events, func() bool {
		_, err := store.GetByMint("mintGhost")
		return err == nil
	})
}

func TestSubscription_DeleteRemoves(t *testing.T) {
	store := memory.NewTokenStore(nil)
	store.SetTokens([]*domain.Token{{Mint: "mintA"}, {Mint: "mintB"}})

	events := []domain.SubscriptionEvent{{
		EventType: domain.EventDelete,
		Old:       domain.UpstreamRecord{"mint_address": "mintA"},
	}}
	runSubscription(t, store, events, func() bool {
		return len(store.GetTokens()) == 1
	})

	if got := store.GetTokens(); got[0].Mint != "mintB" {
		t.Errorf("wrong token deleted: %v", got)
	}
}

func TestSubscription_UnknownEventTypeSkipped(t *testing.T) {
	store := memory.NewTokenStore(nil)
	store.SetTokens([]*domain.Token{{Mint: "mintA"}})

	events := []domain.SubscriptionEvent{
		{EventType: "TRUNCATE", New: domain.UpstreamRecord{"mint_address": "mintX"}},
		{EventType: domain.EventInsert, New: domain.UpstreamRecord{"mint_address": "mintB"}},
	}
	runSubscription(t, store, events, func() bool {
		return len(store.GetTokens()) == 2
	})

	if _, err := store.GetByMint("mintX"); err == nil {
		t.Error("unknown event type was applied")
	}
}

func TestRunnerApplyDelete_UnknownMintIsNoop(t *testing.T) {
	store := memory.NewTokenStore(nil)
	store.SetTokens([]*domain.Token{{Mint: "mintA"}})
	runner := NewRunner(RunnerOptions{Store: store, Transformer: syncTransformer{}})

	var notified bool
	store.Subscribe(func([]*domain.Token) { notified = true })

	if err := runner.ApplyDelete(context.Background(), domain.UpstreamRecord{"mint_address": "ghost"}); err != nil {
		t.Fatalf("ApplyDelete: %v", err)
	}
	if notified {
		t.Error("deleting an unknown mint must not publish a snapshot")
	}
	if len(store.GetTokens()) != 1 {
		t.Error("snapshot shrank on a no-op delete")
	}
}
