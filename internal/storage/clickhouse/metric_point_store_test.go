package clickhouse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"launchfeed/internal/domain"
	"launchfeed/internal/storage"
)

func TestMetricPointStore_InsertAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMetricPointStore(conn)
	ctx := context.Background()

	points := []*domain.MetricPoint{
		{Mint: "mintA", Field: "viewers", Value: 8, PrevValue: 1, ObservedAt: 1000},
		{Mint: "mintA", Field: "market_cap", Value: 45200, PrevValue: 40000, ObservedAt: 2000},
		{Mint: "mintB", Field: "viewers", Value: 3, PrevValue: 0, ObservedAt: 1500},
	}
	require.NoError(t, store.InsertBulk(ctx, points))

	got, err := store.GetByMint(ctx, "mintA")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by observed time.
	require.Equal(t, "viewers", got[0].Field)
	require.Equal(t, float64(8), got[0].Value)
	require.Equal(t, float64(1), got[0].PrevValue)
	require.Equal(t, int64(1000), got[0].ObservedAt)
	require.Equal(t, "market_cap", got[1].Field)
}

func TestMetricPointStore_GetUnknownMint(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMetricPointStore(conn)

	got, err := store.GetByMint(context.Background(), "missing")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMetricPointStore_InsertValidation(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMetricPointStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, nil))

	err := store.InsertBulk(ctx, []*domain.MetricPoint{{Field: "viewers"}})
	require.True(t, errors.Is(err, storage.ErrInvalidInput))

	_, err = store.GetByMint(ctx, "")
	require.True(t, errors.Is(err, storage.ErrMissingMint))
}
