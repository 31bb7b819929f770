package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"launchfeed/internal/domain"
	"launchfeed/internal/observability"
	"launchfeed/internal/storage"
)

// TokenArchiveStore implements storage.TokenArchiveStore using PostgreSQL.
// One row per mint holds the latest archived state; string metadata columns
// are emptiness-preserving on conflict so a partial tick cannot blank out
// previously archived values.
type TokenArchiveStore struct {
	pool *Pool
}

// NewTokenArchiveStore creates a new TokenArchiveStore.
func NewTokenArchiveStore(pool *Pool) *TokenArchiveStore {
	return &TokenArchiveStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenArchiveStore = (*TokenArchiveStore)(nil)

const upsertTokenQuery = `
	INSERT INTO token_archive (
		mint, name, symbol, description, image_uri, creator,
		market_cap, ath, total_supply, liquidity, progress,
		viewers, replies, complete, is_live, is_active, nsfw,
		volume, txns, traders, price_change,
		dev_activity, raw, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16, $17,
		$18, $19, $20, $21,
		$22, $23, $24, $25
	)
	ON CONFLICT (mint) DO UPDATE SET
		name         = COALESCE(NULLIF(EXCLUDED.name, ''), token_archive.name),
		symbol       = COALESCE(NULLIF(EXCLUDED.symbol, ''), token_archive.symbol),
		description  = COALESCE(NULLIF(EXCLUDED.description, ''), token_archive.description),
		image_uri    = COALESCE(NULLIF(EXCLUDED.image_uri, ''), token_archive.image_uri),
		creator      = COALESCE(NULLIF(EXCLUDED.creator, ''), token_archive.creator),
		market_cap   = EXCLUDED.market_cap,
		ath          = EXCLUDED.ath,
		total_supply = EXCLUDED.total_supply,
		liquidity    = EXCLUDED.liquidity,
		progress     = EXCLUDED.progress,
		viewers      = EXCLUDED.viewers,
		replies      = EXCLUDED.replies,
		complete     = EXCLUDED.complete,
		is_live      = EXCLUDED.is_live,
		is_active    = EXCLUDED.is_active,
		nsfw         = EXCLUDED.nsfw,
		volume       = EXCLUDED.volume,
		txns         = EXCLUDED.txns,
		traders      = EXCLUDED.traders,
		price_change = EXCLUDED.price_change,
		dev_activity = COALESCE(EXCLUDED.dev_activity, token_archive.dev_activity),
		raw          = COALESCE(EXCLUDED.raw, token_archive.raw),
		created_at   = CASE WHEN EXCLUDED.created_at > 0 THEN EXCLUDED.created_at ELSE token_archive.created_at END,
		updated_at   = EXCLUDED.updated_at
`

// Upsert writes the token keyed by mint.
func (s *TokenArchiveStore) Upsert(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrMissingMint
	}

	args, err := upsertArgs(t)
	if err != nil {
		return err
	}

	started := time.Now()
	_, err = s.pool.Exec(ctx, upsertTokenQuery, args...)
	observability.RecordDBQuery("postgres", "upsert_token", time.Since(started).Seconds(), err)
	if err != nil {
		return fmt.Errorf("upsert token %s: %w", t.Mint, err)
	}
	return nil
}

// UpsertBulk writes a batch of tokens in one round trip.
func (s *TokenArchiveStore) UpsertBulk(ctx context.Context, tokens []*domain.Token) error {
	if len(tokens) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range tokens {
		if t == nil || t.Mint == "" {
			return storage.ErrMissingMint
		}
		args, err := upsertArgs(t)
		if err != nil {
			return err
		}
		batch.Queue(upsertTokenQuery, args...)
	}

	started := time.Now()
	err := s.pool.SendBatch(ctx, batch).Close()
	observability.RecordDBQuery("postgres", "upsert_token_bulk", time.Since(started).Seconds(), err)
	if err != nil {
		return fmt.Errorf("upsert %d tokens: %w", len(tokens), err)
	}
	return nil
}

// GetByMint retrieves an archived token. Returns ErrNotFound if not exists.
func (s *TokenArchiveStore) GetByMint(ctx context.Context, mint string) (*domain.Token, error) {
	if mint == "" {
		return nil, storage.ErrMissingMint
	}

	query := `
		SELECT mint, name, symbol, description, image_uri, creator,
			market_cap, ath, total_supply, liquidity, progress,
			viewers, replies, complete, is_live, is_active, nsfw,
			volume, txns, traders, price_change,
			dev_activity, raw, created_at, updated_at
		FROM token_archive
		WHERE mint = $1
	`

	started := time.Now()
	row := s.pool.QueryRow(ctx, query, mint)
	t, err := scanToken(row)
	observability.RecordDBQuery("postgres", "get_token", time.Since(started).Seconds(), err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by mint: %w", err)
	}
	return t, nil
}

// Count returns the number of archived tokens.
func (s *TokenArchiveStore) Count(ctx context.Context) (int, error) {
	started := time.Now()
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM token_archive`).Scan(&count)
	observability.RecordDBQuery("postgres", "count_tokens", time.Since(started).Seconds(), err)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return count, nil
}

// upsertArgs builds the positional arguments of the upsert query.
func upsertArgs(t *domain.Token) ([]any, error) {
	volume, err := json.Marshal(t.Volume)
	if err != nil {
		return nil, fmt.Errorf("marshal volume: %w", err)
	}
	txns, err := json.Marshal(t.Txns)
	if err != nil {
		return nil, fmt.Errorf("marshal txns: %w", err)
	}
	traders, err := json.Marshal(t.Traders)
	if err != nil {
		return nil, fmt.Errorf("marshal traders: %w", err)
	}
	priceChange, err := json.Marshal(t.PriceChange)
	if err != nil {
		return nil, fmt.Errorf("marshal price change: %w", err)
	}

	var devActivity, raw []byte
	if t.DevActivity != nil {
		if devActivity, err = json.Marshal(t.DevActivity); err != nil {
			return nil, fmt.Errorf("marshal dev activity: %w", err)
		}
	}
	if t.Raw != nil {
		if raw, err = json.Marshal(t.Raw); err != nil {
			return nil, fmt.Errorf("marshal raw record: %w", err)
		}
	}

	return []any{
		t.Mint, t.Name, t.Symbol, t.Description, t.ImageURI, t.Creator,
		t.MarketCap, t.ATH, t.TotalSupply, t.Liquidity, t.Progress,
		t.Viewers, t.Replies, t.Complete, t.IsLive, t.IsActive, t.NSFW,
		volume, txns, traders, priceChange,
		devActivity, raw, t.CreatedAt, t.UpdatedAt,
	}, nil
}

// scanToken scans a single row into a Token.
func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var volume, txns, traders, priceChange, devActivity, raw []byte

	err := row.Scan(
		&t.Mint, &t.Name, &t.Symbol, &t.Description, &t.ImageURI, &t.Creator,
		&t.MarketCap, &t.ATH, &t.TotalSupply, &t.Liquidity, &t.Progress,
		&t.Viewers, &t.Replies, &t.Complete, &t.IsLive, &t.IsActive, &t.NSFW,
		&volume, &txns, &traders, &priceChange,
		&devActivity, &raw, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(volume, &t.Volume); err != nil {
		return nil, fmt.Errorf("unmarshal volume: %w", err)
	}
	if err := json.Unmarshal(txns, &t.Txns); err != nil {
		return nil, fmt.Errorf("unmarshal txns: %w", err)
	}
	if err := json.Unmarshal(traders, &t.Traders); err != nil {
		return nil, fmt.Errorf("unmarshal traders: %w", err)
	}
	if err := json.Unmarshal(priceChange, &t.PriceChange); err != nil {
		return nil, fmt.Errorf("unmarshal price change: %w", err)
	}
	if len(devActivity) > 0 {
		if err := json.Unmarshal(devActivity, &t.DevActivity); err != nil {
			return nil, fmt.Errorf("unmarshal dev activity: %w", err)
		}
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &t.Raw); err != nil {
			return nil, fmt.Errorf("unmarshal raw record: %w", err)
		}
	}
	return &t, nil
}
