package memory

import (
	"errors"
	"testing"

	"launchfeed/internal/domain"
	"launchfeed/internal/storage"
)

func testTokens(mints ...string) []*domain.Token {
	out := make([]*domain.Token, 0, len(mints))
	for _, m := range mints {
		out = append(out, &domain.Token{Mint: m, Name: "t-" + m})
	}
	return out
}

func TestTokenStore_SetAndGet(t *testing.T) {
	s := NewTokenStore(nil)

	s.SetTokens(testTokens("mintA", "mintB", "mintC"))

	got := s.GetTokens()
	if len(got) != 3 {
		t.Fatalf("GetTokens returned %d tokens, want 3", len(got))
	}
	if got[0].Mint != "mintA" || got[2].Mint != "mintC" {
		t.Error("feed order not preserved")
	}

	tok, err := s.GetByMint("mintB")
	if err != nil {
		t.Fatalf("GetByMint: %v", err)
	}
	if tok.Name != "t-mintB" {
		t.Errorf("GetByMint returned %q", tok.Name)
	}
}

func TestTokenStore_GetByMintNotFound(t *testing.T) {
	s := NewTokenStore(nil)
	s.SetTokens(testTokens("mintA"))

	if _, err := s.GetByMint("missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetByMint(""); !errors.Is(err, storage.ErrMissingMint) {
		t.Errorf("err = %v, want ErrMissingMint", err)
	}
}

func TestTokenStore_SetDropsInvalidAndDedupes(t *testing.T) {
	s := NewTokenStore(nil)

	first := &domain.Token{Mint: "dup", Viewers: 1}
	second := &domain.Token{Mint: "dup", Viewers: 2}
	s.SetTokens([]*domain.Token{first, nil, {Mint: ""}, second})

	got := s.GetTokens()
	if len(got) != 1 {
		t.Fatalf("GetTokens returned %d tokens, want 1", len(got))
	}
	if got[0].Viewers != 2 {
		t.Error("later duplicate of the same mint must win")
	}
}

func TestTokenStore_ReplaceIsWholesale(t *testing.T) {
	s := NewTokenStore(nil)
	s.SetTokens(testTokens("mintA", "mintB"))
	s.SetTokens(testTokens("mintC"))

	if got := s.GetTokens(); len(got) != 1 || got[0].Mint != "mintC" {
		t.Errorf("snapshot after replacement = %v, want only mintC", got)
	}
	if _, err := s.GetByMint("mintA"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("replaced token still reachable by mint")
	}
}

func TestTokenStore_SubscribeNotifyUnsubscribe(t *testing.T) {
	s := NewTokenStore(nil)

	var calls int
	var lastLen int
	unsubscribe := s.Subscribe(func(tokens []*domain.Token) {
		calls++
		lastLen = len(tokens)
	})

	s.SetTokens(testTokens("mintA", "mintB"))
	if calls != 1 || lastLen != 2 {
		t.Fatalf("subscriber calls=%d lastLen=%d, want 1/2", calls, lastLen)
	}

	unsubscribe()
	unsubscribe() // second call is a no-op
	s.SetTokens(testTokens("mintC"))
	if calls != 1 {
		t.Errorf("unsubscribed listener still called, calls=%d", calls)
	}
}

func TestTokenStore_SubscriberPanicIsolated(t *testing.T) {
	s := NewTokenStore(nil)

	s.Subscribe(func([]*domain.Token) { panic("boom") })
	var survived bool
	s.Subscribe(func([]*domain.Token) { survived = true })

	s.SetTokens(testTokens("mintA"))
	if !survived {
		t.Error("panicking subscriber prevented delivery to the next one")
	}
	if got := s.GetTokens(); len(got) != 1 {
		t.Error("panicking subscriber corrupted the snapshot")
	}
}

func TestTokenStore_SubscriberGetsOwnCopy(t *testing.T) {
	s := NewTokenStore(nil)

	s.Subscribe(func(tokens []*domain.Token) {
		tokens[0] = nil // mutating the delivered slice must not leak
	})
	s.SetTokens(testTokens("mintA"))

	if got := s.GetTokens(); got[0] == nil {
		t.Error("subscriber mutation leaked into the store snapshot")
	}
}

func TestTokenStore_ConsumeChanges(t *testing.T) {
	s := NewTokenStore(nil)
	tok := &domain.Token{
		Mint:           "mintA",
		IsUpdated:      true,
		PreviousValues: map[string]any{"viewers": 5},
	}
	s.SetTokens([]*domain.Token{tok})

	changes, err := s.ConsumeChanges("mintA")
	if err != nil {
		t.Fatalf("ConsumeChanges: %v", err)
	}
	if changes["viewers"] != 5 {
		t.Errorf("changes = %v, want viewers=5", changes)
	}

	again, err := s.ConsumeChanges("mintA")
	if err != nil {
		t.Fatalf("second ConsumeChanges: %v", err)
	}
	if again != nil {
		t.Errorf("changes not cleared after consumption: %v", again)
	}

	got, _ := s.GetByMint("mintA")
	if got.IsUpdated {
		t.Error("IsUpdated flag not reset on consumption")
	}

	if _, err := s.ConsumeChanges("missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTokenStore_ConsumeChangesDoesNotMutateHandedOutTokens(t *testing.T) {
	s := NewTokenStore(nil)
	s.SetTokens([]*domain.Token{{
		Mint:           "mintA",
		IsUpdated:      true,
		PreviousValues: map[string]any{"viewers": 5},
	}})

	// Readers that grabbed the snapshot before consumption keep their view;
	// consumption must swap a cleared clone into the store, not write through
	// the shared pointer.
	before := s.GetTokens()[0]

	if _, err := s.ConsumeChanges("mintA"); err != nil {
		t.Fatalf("ConsumeChanges: %v", err)
	}

	if !before.IsUpdated || before.PreviousValues["viewers"] != 5 {
		t.Error("consumption wrote through a previously handed out token")
	}
	after, _ := s.GetByMint("mintA")
	if after.IsUpdated || after.PreviousValues != nil {
		t.Errorf("stored token not cleared: %+v", after)
	}
	if got := s.GetTokens(); got[0] != after {
		t.Error("snapshot slice and mint index diverged after consumption")
	}
}

func TestTokenStore_Stats(t *testing.T) {
	s := NewTokenStore(nil)

	stats := s.Stats()
	if stats.HasData || stats.TokenCount != 0 || stats.LastUpdate != "" {
		t.Errorf("empty store stats = %+v", stats)
	}

	s.Subscribe(func([]*domain.Token) {})
	s.SetTokens(testTokens("mintA", "mintB"))

	stats = s.Stats()
	if !stats.HasData || stats.TokenCount != 2 || stats.SubscriberCount != 1 {
		t.Errorf("stats = %+v, want hasData with 2 tokens and 1 subscriber", stats)
	}
	if stats.LastUpdate == "" {
		t.Error("LastUpdate empty after a snapshot replacement")
	}
}

func TestTokenStore_Clear(t *testing.T) {
	s := NewTokenStore(nil)
	s.SetTokens(testTokens("mintA"))
	s.Clear()

	if got := s.GetTokens(); len(got) != 0 {
		t.Errorf("tokens after Clear = %v", got)
	}
	if s.LastUpdate() != "" {
		t.Error("LastUpdate not reset by Clear")
	}
}
