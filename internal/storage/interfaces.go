package storage

import (
	"context"

	"launchfeed/internal/domain"
)

// TokenStore is the live feed state: the current snapshot of every known
// token plus change notification for downstream consumers. Implementations
// must be safe for concurrent use.
type TokenStore interface {
	// SetTokens replaces the full snapshot and notifies subscribers.
	SetTokens(tokens []*domain.Token)

	// GetTokens returns a copy of the current snapshot in feed order.
	GetTokens() []*domain.Token

	// GetByMint retrieves one token. Returns ErrNotFound if not exists.
	GetByMint(mint string) (*domain.Token, error)

	// Subscribe registers a listener invoked on every snapshot replacement.
	// The returned function removes the listener.
	Subscribe(fn func(tokens []*domain.Token)) (unsubscribe func())

	// ConsumeChanges returns a token's accumulated previous values and
	// clears them. Returns ErrNotFound if the token does not exist.
	ConsumeChanges(mint string) (map[string]any, error)

	// Stats reports snapshot size, freshness and subscriber count.
	Stats() domain.StoreStats
}

// TokenArchiveStore persists the latest known state of each token durably.
type TokenArchiveStore interface {
	// Upsert writes the token keyed by mint, preserving previously archived
	// non-empty metadata when the incoming row carries blanks.
	Upsert(ctx context.Context, t *domain.Token) error

	// UpsertBulk writes a batch of tokens in one round trip.
	UpsertBulk(ctx context.Context, tokens []*domain.Token) error

	// GetByMint retrieves an archived token. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.Token, error)

	// Count returns the number of archived tokens.
	Count(ctx context.Context) (int, error)
}

// MetricPointStore records the history of tracked-field changes as
// append-only time series points.
type MetricPointStore interface {
	// InsertBulk appends a batch of change points.
	InsertBulk(ctx context.Context, points []*domain.MetricPoint) error

	// GetByMint retrieves all points for a mint, ordered by timestamp ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.MetricPoint, error)
}
