package domain

import (
	"github.com/mr-tron/base58"
)

// Candle retention limits. Trimming always keeps the most recent points.
const (
	// MaxCandlePoints is the maximum number of candle points retained on a token.
	MaxCandlePoints = 200
	// CandleComparePoints is the number of trailing candle points used for
	// change-detection equality. Bounds diff cost on high-frequency ticks.
	CandleComparePoints = 50
)

// Windowed holds one trading metric replicated across the trailing time
// windows the feed reports. "All" is the unwindowed baseline value.
type Windowed struct {
	M5  float64 `json:"5m"`
	H1  float64 `json:"1h"`
	H6  float64 `json:"6h"`
	H24 float64 `json:"24h"`
	All float64 `json:"all"`
}

// CreatorStats describes historical stats of the token creator.
type CreatorStats struct {
	CoinsCreated int     `json:"coins_created"`
	BalanceSOL   float64 `json:"balance_sol"`
	BalanceUSD   float64 `json:"balance_usd"`
}

// Token is the canonical entity representing one tradable asset launch.
// It is produced by the normalizer from any supported upstream shape and is
// the unit stored, merged and exported by the feed.
type Token struct {
	// Identity. Globally unique, immutable, the join key across all upstream
	// shapes. A token with an empty Mint is non-mergeable.
	Mint string `json:"mint_address"`

	// Descriptive fields.
	Name        string `json:"name,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURI    string `json:"image_uri,omitempty"`
	MetadataURI string `json:"metadata_uri,omitempty"`
	VideoURI    string `json:"video_uri,omitempty"`
	Creator     string `json:"creator,omitempty"`

	// Market fields, coerced from formatted strings upstream.
	MarketCap   float64 `json:"market_cap"`
	ATH         float64 `json:"ath"`
	TotalSupply float64 `json:"total_supply"`
	Liquidity   float64 `json:"liquidity"`
	Progress    float64 `json:"progress"`

	// Windowed trading metrics.
	Volume      Windowed `json:"volume"`
	Txns        Windowed `json:"txns"`
	Traders     Windowed `json:"traders"`
	PriceChange Windowed `json:"price_change"`

	// Activity fields.
	Viewers      int            `json:"viewers"`
	Replies      int            `json:"replies"`
	LiveSince    int64          `json:"live_since,omitempty"`
	LastTrade    int64          `json:"last_trade,omitempty"`
	DevActivity  map[string]any `json:"dev_activity,omitempty"`
	CreatorStats CreatorStats   `json:"creator_stats"`

	// Pool and status flags.
	Complete     bool   `json:"complete"`
	RaydiumPool  string `json:"raydium_pool,omitempty"`
	PumpSwapPool string `json:"pump_swap_pool,omitempty"`
	IsLive       bool   `json:"is_live"`
	IsActive     bool   `json:"is_active"`
	NSFW         bool   `json:"nsfw"`

	// Social links.
	Twitter  string `json:"twitter,omitempty"`
	Telegram string `json:"telegram,omitempty"`
	Website  string `json:"website,omitempty"`

	// Candles holds chart data: either an ordered []any of OHLC-like points
	// or numeric closes (trimmed to MaxCandlePoints), or a non-list value
	// passed through unchanged from upstream.
	Candles any `json:"candle_data,omitempty"`

	// CreatedAt is the launch timestamp in ms since epoch; 0 means unknown.
	CreatedAt int64 `json:"created_at,omitempty"`

	// Bookkeeping, computed locally on merge; never sourced from upstream.
	IsUpdated      bool           `json:"_isUpdated"`
	UpdatedAt      int64          `json:"_updatedAt,omitempty"`
	PreviousValues map[string]any `json:"_previousValues,omitempty"`

	// Raw is the original upstream record, retained verbatim for any field
	// the canonical mapping misses.
	Raw UpstreamRecord `json:"raw,omitempty"`

	// Resolved records which canonical fields were actually present in the
	// upstream record this token was normalized from. The merger uses it to
	// keep prior values for fields a partial update omitted. Nil means all
	// fields are considered resolved.
	Resolved map[string]struct{} `json:"-"`
}

// FieldResolved reports whether the named canonical field was present in the
// upstream record. Tokens without a resolved set report every field present.
func (t *Token) FieldResolved(key string) bool {
	if t.Resolved == nil {
		return true
	}
	_, ok := t.Resolved[key]
	return ok
}

// Clone returns a deep-enough copy of the token for snapshot replacement:
// the maps the store or merger may rewrite are copied, value fields shared.
func (t *Token) Clone() *Token {
	c := *t
	if t.PreviousValues != nil {
		c.PreviousValues = make(map[string]any, len(t.PreviousValues))
		for k, v := range t.PreviousValues {
			c.PreviousValues[k] = v
		}
	}
	return &c
}

// solanaAddressLen is the decoded byte length of a Solana public key.
const solanaAddressLen = 32

// ValidMint reports whether mint decodes as a 32-byte base58 Solana address.
// Mint addresses are PDAs, so no on-curve check applies.
func ValidMint(mint string) bool {
	if mint == "" {
		return false
	}
	decoded, err := base58.Decode(mint)
	if err != nil {
		return false
	}
	return len(decoded) == solanaAddressLen
}
