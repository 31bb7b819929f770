package normalize

import (
	"launchfeed/internal/domain"
	"launchfeed/internal/parse"
)

// Probe tables for canonical fields. Order matters: direct field, nested
// group objects, raw wrapper, then double-nested raw_data.raw_data for
// backend pass-through chains.
var (
	mintPaths = paths(
		"mint_address", "mint",
		"token_info.mint", "token_info.mint_address",
		"raw_data.mint_address", "raw_data.mint",
		"raw.mint_address", "raw.mint",
		"raw_data.raw_data.mint_address", "raw_data.raw_data.mint")

	namePaths = paths(
		"name", "token_info.name", "raw_data.name", "raw.name",
		"raw_data.raw_data.name")

	symbolPaths = paths(
		"symbol", "token_info.symbol", "raw_data.symbol", "raw.symbol",
		"raw_data.raw_data.symbol")

	descriptionPaths = paths(
		"description", "token_info.description", "raw_data.description",
		"raw.description", "raw_data.raw_data.description")

	imageURIPaths = paths(
		"image_uri", "image", "token_info.image_uri", "raw_data.image_uri",
		"raw.image_uri", "raw_data.raw_data.image_uri")

	metadataURIPaths = paths(
		"metadata_uri", "uri", "token_info.metadata_uri",
		"raw_data.metadata_uri", "raw.metadata_uri")

	videoURIPaths = paths(
		"video_uri", "video", "token_info.video_uri", "raw_data.video_uri",
		"raw.video_uri")

	creatorPaths = paths(
		"creator", "creator_address", "creator_info.address",
		"creator_info.creator", "raw_data.creator", "raw.creator",
		"raw_data.raw_data.creator")

	twitterPaths = paths(
		"twitter", "socials.twitter", "token_info.twitter",
		"raw_data.twitter", "raw.twitter")

	telegramPaths = paths(
		"telegram", "socials.telegram", "token_info.telegram",
		"raw_data.telegram", "raw.telegram")

	websitePaths = paths(
		"website", "socials.website", "token_info.website",
		"raw_data.website", "raw.website")

	marketCapPaths = paths(
		"market_cap", "marketCap", "usd_market_cap",
		"market_data.market_cap", "market_data.usd_market_cap",
		"raw_data.market_cap", "raw_data.usd_market_cap",
		"raw.market_cap", "raw_data.raw_data.market_cap")

	athPaths = paths(
		"ath", "all_time_high", "market_data.ath",
		"raw_data.ath", "raw.ath", "raw_data.raw_data.ath")

	totalSupplyPaths = paths(
		"total_supply", "market_data.total_supply",
		"raw_data.total_supply", "raw.total_supply")

	liquidityPaths = paths(
		"liquidity", "market_data.liquidity",
		"raw_data.liquidity", "raw.liquidity")

	progressPaths = paths(
		"progress", "bonding_progress", "market_data.progress",
		"raw_data.progress", "raw.progress")

	viewersPaths = paths(
		"viewers", "viewer_count", "activity_info.viewers",
		"raw_data.viewers", "raw.viewers")

	repliesPaths = paths(
		"replies", "reply_count", "activity_info.replies",
		"raw_data.reply_count", "raw.reply_count")

	coinsCreatedPaths = paths(
		"created_coin_count", "creator_info.coins_created",
		"creator_info.created_coin_count", "raw_data.created_coin_count")

	creatorBalanceSOLPaths = paths(
		"creator_balance_sol", "creator_info.balance_sol",
		"creator_info.sol_balance", "raw_data.creator_balance_sol")

	creatorBalanceUSDPaths = paths(
		"creator_balance_usd", "creator_info.balance_usd",
		"creator_info.usd_balance", "raw_data.creator_balance_usd")

	completePaths = paths(
		"complete", "is_complete", "market_data.complete", "raw_data.complete")

	isLivePaths = paths(
		"is_live", "is_currently_live", "activity_info.is_live",
		"raw_data.is_currently_live", "raw_data.is_live")

	isActivePaths = paths(
		"is_active", "active", "activity_info.is_active", "raw_data.is_active")

	nsfwPaths = paths(
		"nsfw", "is_nsfw", "token_info.nsfw", "raw_data.nsfw")

	raydiumPoolPaths = paths(
		"raydium_pool", "pools.raydium", "raw_data.raydium_pool",
		"raw.raydium_pool")

	pumpSwapPoolPaths = paths(
		"pump_swap_pool", "pumpswap_pool", "pools.pump_swap",
		"raw_data.pump_swap_pool", "raw.pump_swap_pool")

	devActivityPaths = paths(
		"dev_activity", "devActivity", "creator_info.dev_activity",
		"raw_data.dev_activity", "raw.dev_activity")

	candlePaths = paths(
		"candle_data", "candleData", "token_info.candle_data",
		"raw_data.candle_data", "raw.candle_data",
		"raw_data.raw_data.candle_data")

	liveSincePaths = paths(
		"live_since", "timestamps.live_since", "activity_info.live_since",
		"raw_data.live_since")

	lastTradePaths = paths(
		"last_trade", "last_trade_timestamp", "activity_info.last_trade",
		"raw_data.last_trade_timestamp")

	createdStructuredPaths = paths("timestamps.created_at")

	createdFallbackPaths = paths(
		"created_timestamp", "created_formatted", "created_at",
		"activity_info.created_timestamp", "activity_info.created_at",
		"raw_data.created_timestamp", "raw_data.created_formatted",
		"raw_data.created_at", "raw.created_timestamp", "raw.created_at")

	agePaths = paths("age", "raw_data.age")
)

// windowPaths builds the probe list for one windowed metric cell: the
// windowed map entry, the flattened key, and the nested/raw variants of both.
func windowPaths(base, window string) []path {
	flat := base + "_" + window
	return paths(
		base+"."+window, flat,
		"market_data."+base+"."+window, "market_data."+flat,
		"trading_info."+flat,
		"raw_data."+base+"."+window, "raw_data."+flat,
		"raw."+flat,
		"raw_data.raw_data."+flat)
}

// allWindowPaths is windowPaths for the unwindowed baseline: the map's "all"
// entry, the flattened _all key, then the bare field as a scalar.
func allWindowPaths(base string) []path {
	out := windowPaths(base, "all")
	out = append(out, paths(base, "market_data."+base, "raw_data."+base)...)
	return out
}

// Token normalizes an arbitrary upstream record into the canonical Token.
// It never fails: unresolved fields default per their type, and a record
// lacking identity yields a token with an empty Mint that callers must treat
// as non-mergeable. The original record is retained under Raw.
func Token(raw domain.UpstreamRecord) *domain.Token {
	t := &domain.Token{
		Raw:      raw,
		Resolved: make(map[string]struct{}),
	}
	if raw == nil {
		return t
	}

	t.Mint = str(raw, t, domain.FieldMint, mintPaths)
	t.Name = str(raw, t, domain.FieldName, namePaths)
	t.Symbol = str(raw, t, domain.FieldSymbol, symbolPaths)
	t.Description = str(raw, t, domain.FieldDescription, descriptionPaths)
	t.ImageURI = str(raw, t, domain.FieldImageURI, imageURIPaths)
	t.MetadataURI = str(raw, t, domain.FieldMetadataURI, metadataURIPaths)
	t.VideoURI = str(raw, t, domain.FieldVideoURI, videoURIPaths)
	t.Creator = str(raw, t, domain.FieldCreator, creatorPaths)
	t.Twitter = str(raw, t, domain.FieldTwitter, twitterPaths)
	t.Telegram = str(raw, t, domain.FieldTelegram, telegramPaths)
	t.Website = str(raw, t, domain.FieldWebsite, websitePaths)
	t.RaydiumPool = str(raw, t, domain.FieldRaydiumPool, raydiumPoolPaths)
	t.PumpSwapPool = str(raw, t, domain.FieldPumpSwapPool, pumpSwapPoolPaths)

	t.MarketCap = num(raw, t, domain.FieldMarketCap, marketCapPaths)
	t.ATH = num(raw, t, domain.FieldATH, athPaths)
	t.TotalSupply = num(raw, t, domain.FieldTotalSupply, totalSupplyPaths)
	t.Liquidity = num(raw, t, domain.FieldLiquidity, liquidityPaths)
	t.Progress = num(raw, t, domain.FieldProgress, progressPaths)

	t.Viewers = int(num(raw, t, domain.FieldViewers, viewersPaths))
	t.Replies = int(num(raw, t, domain.FieldReplies, repliesPaths))
	t.CreatorStats.CoinsCreated = int(num(raw, t, domain.FieldCoinsCreated, coinsCreatedPaths))
	t.CreatorStats.BalanceSOL = num(raw, t, domain.FieldCreatorBalanceSOL, creatorBalanceSOLPaths)
	t.CreatorStats.BalanceUSD = num(raw, t, domain.FieldCreatorBalanceUSD, creatorBalanceUSDPaths)

	t.Complete = flag(raw, t, domain.FieldComplete, completePaths)
	t.IsLive = flag(raw, t, domain.FieldIsLive, isLivePaths)
	t.IsActive = flag(raw, t, domain.FieldIsActive, isActivePaths)
	t.NSFW = flag(raw, t, domain.FieldNSFW, nsfwPaths)

	normalizeWindowed(raw, t, domain.MetricVolume, &t.Volume)
	normalizeWindowed(raw, t, domain.MetricTxns, &t.Txns)
	normalizeWindowed(raw, t, domain.MetricTraders, &t.Traders)
	normalizePriceChanges(raw, t)

	if m, ok := firstMap(raw, devActivityPaths); ok {
		t.DevActivity = m
		t.Resolved[domain.FieldDevActivity] = struct{}{}
	}

	t.Candles = normalizeCandles(raw, t)
	t.CreatedAt = resolveCreated(raw, t)
	t.LiveSince = ts(raw, t, domain.FieldLiveSince, liveSincePaths)
	t.LastTrade = ts(raw, t, domain.FieldLastTrade, lastTradePaths)

	return t
}

// str resolves a string field, recording it in the resolved set on success.
func str(raw domain.UpstreamRecord, t *domain.Token, key string, candidates []path) string {
	s, ok := firstString(raw, candidates)
	if ok {
		t.Resolved[key] = struct{}{}
	}
	return s
}

// num resolves a numeric field through the formatted-number parser.
func num(raw domain.UpstreamRecord, t *domain.Token, key string, candidates []path) float64 {
	v, ok := firstScalar(raw, candidates)
	if !ok {
		return 0
	}
	t.Resolved[key] = struct{}{}
	return parse.FormattedNumber(v)
}

// flag resolves a boolean field.
func flag(raw domain.UpstreamRecord, t *domain.Token, key string, candidates []path) bool {
	v, ok := firstScalar(raw, candidates)
	if !ok {
		return false
	}
	t.Resolved[key] = struct{}{}
	return asBool(v)
}

// ts resolves a timestamp field into ms since epoch.
func ts(raw domain.UpstreamRecord, t *domain.Token, key string, candidates []path) int64 {
	v, ok := firstScalar(raw, candidates)
	if !ok {
		return 0
	}
	ms := timestampMs(v)
	if ms != 0 {
		t.Resolved[key] = struct{}{}
	}
	return ms
}

// normalizeWindowed fills one windowed metric across all window labels.
func normalizeWindowed(raw domain.UpstreamRecord, t *domain.Token, base string, dst *domain.Windowed) {
	for _, window := range domain.WindowLabels {
		var candidates []path
		if window == "all" {
			candidates = allWindowPaths(base)
		} else {
			candidates = windowPaths(base, window)
		}
		v, ok := firstScalar(raw, candidates)
		if !ok {
			continue
		}
		t.Resolved[domain.WindowedFieldKey(base, window)] = struct{}{}
		dst.SetWindowValue(window, parse.FormattedNumber(v))
	}
}

// normalizePriceChanges resolves the price-change metric, probing both the
// "price_change" and "price_changes" base names used by different producers.
// Resolved keys are recorded under the canonical "price_change" base.
func normalizePriceChanges(raw domain.UpstreamRecord, t *domain.Token) {
	for _, window := range domain.WindowLabels {
		var candidates []path
		for _, base := range []string{domain.MetricPriceChange, "price_changes"} {
			if window == "all" {
				candidates = append(candidates, allWindowPaths(base)...)
			} else {
				candidates = append(candidates, windowPaths(base, window)...)
			}
		}
		v, ok := firstScalar(raw, candidates)
		if !ok {
			continue
		}
		t.Resolved[domain.WindowedFieldKey(domain.MetricPriceChange, window)] = struct{}{}
		t.PriceChange.SetWindowValue(window, parse.PriceChange(v))
	}
}

// normalizeCandles resolves chart data. Arrays are trimmed to the trailing
// MaxCandlePoints; any other resolved value passes through unchanged on the
// assumption it is already a non-list token (null or pre-summarized).
func normalizeCandles(raw domain.UpstreamRecord, t *domain.Token) any {
	v, ok := firstAny(raw, candlePaths)
	if !ok {
		return nil
	}
	t.Resolved[domain.FieldCandles] = struct{}{}
	list, isList := v.([]any)
	if !isList {
		return v
	}
	if len(list) > domain.MaxCandlePoints {
		list = list[len(list)-domain.MaxCandlePoints:]
	}
	return list
}

// resolveCreated resolves the launch timestamp: the structured
// timestamps.created_at first (numeric values are Unix seconds unless they
// are already in the millisecond range), then the nested/raw created_*
// variants, then a generic age field. First success wins.
func resolveCreated(raw domain.UpstreamRecord, t *domain.Token) int64 {
	for _, candidates := range [][]path{createdStructuredPaths, createdFallbackPaths, agePaths} {
		v, ok := firstScalar(raw, candidates)
		if !ok {
			continue
		}
		if ms := timestampMs(v); ms != 0 {
			t.Resolved[domain.FieldCreatedAt] = struct{}{}
			return ms
		}
	}
	return 0
}

// timestampMs coerces a timestamp value of unknown convention to ms since
// epoch. Numbers at or above 1e12 are taken as ms, below as Unix seconds;
// strings go through the ISO/relative age parser. 0 means unparseable.
func timestampMs(v any) int64 {
	switch n := v.(type) {
	case float64:
		if n <= 0 {
			return 0
		}
		if n >= 1e12 {
			return int64(n)
		}
		return int64(n * 1000)
	case int:
		return timestampMs(float64(n))
	case int64:
		return timestampMs(float64(n))
	case string:
		return parse.FormattedAge(n)
	default:
		return 0
	}
}
