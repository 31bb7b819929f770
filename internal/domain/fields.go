package domain

// Canonical field keys. Shared by the normalizer (resolved-field set), the
// merger (omitted-field preservation) and the change detector (tracked list
// and previous-value map keys).
const (
	FieldMint        = "mint_address"
	FieldName        = "name"
	FieldSymbol      = "symbol"
	FieldDescription = "description"
	FieldImageURI    = "image_uri"
	FieldMetadataURI = "metadata_uri"
	FieldVideoURI    = "video_uri"
	FieldCreator     = "creator"

	FieldMarketCap   = "market_cap"
	FieldATH         = "ath"
	FieldTotalSupply = "total_supply"
	FieldLiquidity   = "liquidity"
	FieldProgress    = "progress"

	FieldViewers   = "viewers"
	FieldReplies   = "replies"
	FieldLiveSince = "live_since"
	FieldLastTrade = "last_trade"

	FieldDevActivity       = "dev_activity"
	FieldCoinsCreated      = "coins_created"
	FieldCreatorBalanceSOL = "creator_balance_sol"
	FieldCreatorBalanceUSD = "creator_balance_usd"

	FieldComplete     = "complete"
	FieldRaydiumPool  = "raydium_pool"
	FieldPumpSwapPool = "pump_swap_pool"
	FieldIsLive       = "is_live"
	FieldIsActive     = "is_active"
	FieldNSFW         = "nsfw"

	FieldTwitter  = "twitter"
	FieldTelegram = "telegram"
	FieldWebsite  = "website"

	FieldCandles   = "candle_data"
	FieldCreatedAt = "created_at"
)

// Window labels used by windowed metric field keys.
var WindowLabels = []string{"5m", "1h", "6h", "24h", "all"}

// WindowedFieldKey returns the canonical key for one windowed metric cell,
// e.g. WindowedFieldKey("volume", "24h") == "volume_24h".
func WindowedFieldKey(metric, window string) string {
	return metric + "_" + window
}

// Windowed metric base names.
const (
	MetricVolume      = "volume"
	MetricTxns        = "txns"
	MetricTraders     = "traders"
	MetricPriceChange = "price_change"
)

// WindowValue returns the cell of w selected by the window label.
func (w Windowed) WindowValue(window string) float64 {
	switch window {
	case "5m":
		return w.M5
	case "1h":
		return w.H1
	case "6h":
		return w.H6
	case "24h":
		return w.H24
	default:
		return w.All
	}
}

// SetWindowValue sets the cell of w selected by the window label.
func (w *Windowed) SetWindowValue(window string, v float64) {
	switch window {
	case "5m":
		w.M5 = v
	case "1h":
		w.H1 = v
	case "6h":
		w.H6 = v
	case "24h":
		w.H24 = v
	default:
		w.All = v
	}
}
