package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"launchfeed/internal/domain"
	"launchfeed/internal/storage"
)

func archivedToken(mint string) *domain.Token {
	return &domain.Token{
		Mint:        mint,
		Name:        "Giga Pepe",
		Symbol:      "GPEPE",
		Description: "archived",
		MarketCap:   45200,
		Volume:      domain.Windowed{H24: 12500},
		Viewers:     42,
		IsLive:      true,
		DevActivity: map[string]any{"buys": float64(2)},
		Raw:         domain.UpstreamRecord{"mint_address": mint},
		CreatedAt:   1_700_000_000_000,
		UpdatedAt:   1_700_000_100_000,
	}
}

func TestTokenArchiveStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenArchiveStore(pool)
	ctx := context.Background()

	tok := archivedToken("mintA")
	require.NoError(t, store.Upsert(ctx, tok))

	got, err := store.GetByMint(ctx, "mintA")
	require.NoError(t, err)
	require.Equal(t, tok.Name, got.Name)
	require.Equal(t, tok.MarketCap, got.MarketCap)
	require.Equal(t, tok.Volume.H24, got.Volume.H24)
	require.Equal(t, tok.Viewers, got.Viewers)
	require.True(t, got.IsLive)
	require.Equal(t, float64(2), got.DevActivity["buys"])
	require.Equal(t, tok.CreatedAt, got.CreatedAt)
}

func TestTokenArchiveStore_UpsertPreservesMetadataOnBlanks(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenArchiveStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, archivedToken("mintA")))

	// A later tick without descriptive metadata must not blank it out.
	partial := &domain.Token{
		Mint:      "mintA",
		MarketCap: 99000,
		UpdatedAt: 1_700_000_200_000,
	}
	require.NoError(t, store.Upsert(ctx, partial))

	got, err := store.GetByMint(ctx, "mintA")
	require.NoError(t, err)
	require.Equal(t, "Giga Pepe", got.Name, "blank name must keep archived value")
	require.Equal(t, "GPEPE", got.Symbol)
	require.Equal(t, float64(99000), got.MarketCap, "numeric fields always take the new value")
	require.Equal(t, int64(1_700_000_000_000), got.CreatedAt, "zero created_at must keep archived value")
	require.Equal(t, int64(1_700_000_200_000), got.UpdatedAt)
}

func TestTokenArchiveStore_UpsertBulk(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenArchiveStore(pool)
	ctx := context.Background()

	tokens := []*domain.Token{
		archivedToken("mintA"),
		archivedToken("mintB"),
		archivedToken("mintC"),
	}
	require.NoError(t, store.UpsertBulk(ctx, tokens))

	for _, tok := range tokens {
		got, err := store.GetByMint(ctx, tok.Mint)
		require.NoError(t, err)
		require.Equal(t, tok.Mint, got.Mint)
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestTokenArchiveStore_GetByMintNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenArchiveStore(pool)

	_, err := store.GetByMint(context.Background(), "missing")
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestTokenArchiveStore_UpsertValidation(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenArchiveStore(pool)
	ctx := context.Background()

	require.True(t, errors.Is(store.Upsert(ctx, nil), storage.ErrMissingMint))
	require.True(t, errors.Is(store.Upsert(ctx, &domain.Token{}), storage.ErrMissingMint))
	require.NoError(t, store.UpsertBulk(ctx, nil))
}
