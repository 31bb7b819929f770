package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a PostgreSQL container for testing and applies the
// embedded migrations. Returns a cleanup function that must be called
// after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgrescontainer.Run(ctx, "postgres:15-alpine",
		postgrescontainer.WithDatabase("testdb"),
		postgrescontainer.WithUsername("test"),
		postgrescontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	runMigrations(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// runMigrations applies the token archive schema. The embedded migrations
// package depends on this one, so the schema is applied inline here.
func runMigrations(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS token_archive (
			mint          TEXT PRIMARY KEY,
			name          TEXT NOT NULL DEFAULT '',
			symbol        TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			image_uri     TEXT NOT NULL DEFAULT '',
			creator       TEXT NOT NULL DEFAULT '',
			market_cap    DOUBLE PRECISION NOT NULL DEFAULT 0,
			ath           DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_supply  DOUBLE PRECISION NOT NULL DEFAULT 0,
			liquidity     DOUBLE PRECISION NOT NULL DEFAULT 0,
			progress      DOUBLE PRECISION NOT NULL DEFAULT 0,
			viewers       INTEGER NOT NULL DEFAULT 0,
			replies       INTEGER NOT NULL DEFAULT 0,
			complete      BOOLEAN NOT NULL DEFAULT FALSE,
			is_live       BOOLEAN NOT NULL DEFAULT FALSE,
			is_active     BOOLEAN NOT NULL DEFAULT FALSE,
			nsfw          BOOLEAN NOT NULL DEFAULT FALSE,
			volume        JSONB,
			txns          JSONB,
			traders       JSONB,
			price_change  JSONB,
			dev_activity  JSONB,
			raw           JSONB,
			created_at    BIGINT NOT NULL DEFAULT 0,
			updated_at    BIGINT NOT NULL DEFAULT 0,
			archived_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	require.NoError(t, err, "failed to create token_archive")
}
