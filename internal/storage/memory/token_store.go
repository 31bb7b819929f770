// Package memory provides the in-memory live feed store. It holds the
// current token snapshot behind a RWMutex and pushes replacements to
// registered subscribers synchronously.
package memory

import (
	"log"
	"sync"
	"time"

	"launchfeed/internal/domain"
	"launchfeed/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu          sync.RWMutex
	tokens      []*domain.Token
	byMint      map[string]*domain.Token
	lastUpdate  time.Time
	subscribers map[int]func(tokens []*domain.Token)
	nextSubID   int

	logger *log.Logger
}

// NewTokenStore creates an empty live feed store. A nil logger falls back
// to the process default.
func NewTokenStore(logger *log.Logger) *TokenStore {
	if logger == nil {
		logger = log.Default()
	}
	return &TokenStore{
		byMint:      make(map[string]*domain.Token),
		subscribers: make(map[int]func(tokens []*domain.Token)),
		logger:      logger,
	}
}

// SetTokens replaces the full snapshot and synchronously notifies every
// subscriber with a copy of the new state. Tokens without a mint are
// dropped, later duplicates of the same mint win.
func (s *TokenStore) SetTokens(tokens []*domain.Token) {
	kept := make([]*domain.Token, 0, len(tokens))
	byMint := make(map[string]*domain.Token, len(tokens))
	for _, t := range tokens {
		if t == nil || t.Mint == "" {
			continue
		}
		if _, seen := byMint[t.Mint]; seen {
			for i, existing := range kept {
				if existing.Mint == t.Mint {
					kept[i] = t
					break
				}
			}
		} else {
			kept = append(kept, t)
		}
		byMint[t.Mint] = t
	}

	s.mu.Lock()
	s.tokens = kept
	s.byMint = byMint
	s.lastUpdate = time.Now()
	subs := make([]func(tokens []*domain.Token), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		s.notify(fn, kept)
	}
}

// notify invokes one subscriber with its own copy of the snapshot. A
// panicking subscriber is logged and does not take down the store.
func (s *TokenStore) notify(fn func(tokens []*domain.Token), tokens []*domain.Token) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("[store] subscriber panic: %v", r)
		}
	}()
	snapshot := make([]*domain.Token, len(tokens))
	copy(snapshot, tokens)
	fn(snapshot)
}

// GetTokens returns a copy of the current snapshot in feed order.
func (s *TokenStore) GetTokens() []*domain.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Token, len(s.tokens))
	copy(out, s.tokens)
	return out
}

// GetByMint retrieves one token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(mint string) (*domain.Token, error) {
	if mint == "" {
		return nil, storage.ErrMissingMint
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.byMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return t, nil
}

// Subscribe registers a listener invoked on every snapshot replacement.
// The returned function removes the listener and is safe to call more
// than once.
func (s *TokenStore) Subscribe(fn func(tokens []*domain.Token)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// ConsumeChanges returns a token's accumulated previous values and clears
// them, so each change is delivered to the durable consumers once. The
// stored token is swapped for a cleared clone rather than rewritten:
// pointers handed out earlier by GetTokens or a subscriber callback may
// still be read on other goroutines.
func (s *TokenStore) ConsumeChanges(mint string) (map[string]any, error) {
	if mint == "" {
		return nil, storage.ErrMissingMint
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.byMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	changes := t.PreviousValues

	cleared := t.Clone()
	cleared.PreviousValues = nil
	cleared.IsUpdated = false
	s.byMint[mint] = cleared
	for i, existing := range s.tokens {
		if existing.Mint == mint {
			s.tokens[i] = cleared
			break
		}
	}
	return changes, nil
}

// LastUpdate returns the time of the last snapshot replacement formatted
// as RFC 3339, or the empty string when no data has arrived yet.
func (s *TokenStore) LastUpdate() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastUpdate.IsZero() {
		return ""
	}
	return s.lastUpdate.UTC().Format(time.RFC3339Nano)
}

// Stats reports snapshot size, freshness and subscriber count.
func (s *TokenStore) Stats() domain.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.StoreStats{
		HasData:         len(s.tokens) > 0,
		TokenCount:      len(s.tokens),
		SubscriberCount: len(s.subscribers),
	}
	if !s.lastUpdate.IsZero() {
		stats.LastUpdate = s.lastUpdate.UTC().Format(time.RFC3339Nano)
	}
	return stats
}

// Clear drops all tokens and resets freshness. Subscribers stay registered.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = nil
	s.byMint = make(map[string]*domain.Token)
	s.lastUpdate = time.Time{}
}

var _ storage.TokenStore = (*TokenStore)(nil)
