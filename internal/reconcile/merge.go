package reconcile

import (
	"strings"

	"launchfeed/internal/domain"
)

// Merge folds an incoming normalized token into the previously known state
// and returns the merged result. prev is never mutated.
//
// Merge rules:
//   - string fields take the incoming value only when it is non-empty, so a
//     partial update cannot blank out known metadata
//   - numeric, flag and map fields take the incoming value only when the
//     incoming token resolved them from its upstream record
//   - candle lists replace only when non-empty; non-list candle values
//     replace whenever present
//   - the raw record is merged one level deep, incoming keys winning
//
// When any tracked field differs after merging, the result is stamped
// IsUpdated with UpdatedAt=now and the changed fields' prior values are
// accumulated into PreviousValues until the store consumes them.
func Merge(prev, incoming *domain.Token, now int64) *domain.Token {
	if incoming == nil {
		return prev
	}
	if prev == nil {
		out := incoming.Clone()
		out.Resolved = nil
		out.IsUpdated = true
		out.UpdatedAt = now
		return out
	}

	merged := prev.Clone()
	merged.Resolved = nil

	mergeStrings(merged, incoming)
	mergeNumbers(merged, incoming)
	mergeFlags(merged, incoming)

	if incoming.FieldResolved(domain.FieldDevActivity) && incoming.DevActivity != nil {
		merged.DevActivity = incoming.DevActivity
	}
	mergeCandles(merged, incoming)

	if incoming.CreatedAt != 0 {
		merged.CreatedAt = incoming.CreatedAt
	}
	if incoming.LiveSince != 0 {
		merged.LiveSince = incoming.LiveSince
	}
	if incoming.LastTrade != 0 {
		merged.LastTrade = incoming.LastTrade
	}

	merged.Raw = mergeRaw(prev.Raw, incoming.Raw)

	changes := DetectChanges(prev, merged)
	if len(changes) == 0 {
		merged.IsUpdated = false
		return merged
	}

	merged.IsUpdated = true
	merged.UpdatedAt = now
	if merged.PreviousValues == nil {
		merged.PreviousValues = make(map[string]any, len(changes))
	}
	for k, v := range changes {
		merged.PreviousValues[k] = v
	}
	return merged
}

func mergeStrings(dst, in *domain.Token) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&dst.Name, in.Name)
	set(&dst.Symbol, in.Symbol)
	set(&dst.Description, in.Description)
	set(&dst.ImageURI, in.ImageURI)
	set(&dst.MetadataURI, in.MetadataURI)
	set(&dst.VideoURI, in.VideoURI)
	set(&dst.Creator, in.Creator)
	set(&dst.RaydiumPool, in.RaydiumPool)
	set(&dst.PumpSwapPool, in.PumpSwapPool)
	set(&dst.Twitter, in.Twitter)
	set(&dst.Telegram, in.Telegram)
	set(&dst.Website, in.Website)
}

func mergeNumbers(dst, in *domain.Token) {
	if in.FieldResolved(domain.FieldMarketCap) {
		dst.MarketCap = in.MarketCap
	}
	if in.FieldResolved(domain.FieldATH) {
		dst.ATH = in.ATH
	}
	if in.FieldResolved(domain.FieldTotalSupply) {
		dst.TotalSupply = in.TotalSupply
	}
	if in.FieldResolved(domain.FieldLiquidity) {
		dst.Liquidity = in.Liquidity
	}
	if in.FieldResolved(domain.FieldProgress) {
		dst.Progress = in.Progress
	}
	if in.FieldResolved(domain.FieldViewers) {
		dst.Viewers = in.Viewers
	}
	if in.FieldResolved(domain.FieldReplies) {
		dst.Replies = in.Replies
	}
	if in.FieldResolved(domain.FieldCoinsCreated) {
		dst.CreatorStats.CoinsCreated = in.CreatorStats.CoinsCreated
	}
	if in.FieldResolved(domain.FieldCreatorBalanceSOL) {
		dst.CreatorStats.BalanceSOL = in.CreatorStats.BalanceSOL
	}
	if in.FieldResolved(domain.FieldCreatorBalanceUSD) {
		dst.CreatorStats.BalanceUSD = in.CreatorStats.BalanceUSD
	}

	mergeWindowed(&dst.Volume, &in.Volume, domain.MetricVolume, in)
	mergeWindowed(&dst.Txns, &in.Txns, domain.MetricTxns, in)
	mergeWindowed(&dst.Traders, &in.Traders, domain.MetricTraders, in)
	mergeWindowed(&dst.PriceChange, &in.PriceChange, domain.MetricPriceChange, in)
}

func mergeWindowed(dst, src *domain.Windowed, metric string, in *domain.Token) {
	for _, label := range domain.WindowLabels {
		if in.FieldResolved(domain.WindowedFieldKey(metric, label)) {
			dst.SetWindowValue(label, src.WindowValue(label))
		}
	}
}

func mergeFlags(dst, in *domain.Token) {
	if in.FieldResolved(domain.FieldComplete) {
		dst.Complete = in.Complete
	}
	if in.FieldResolved(domain.FieldIsLive) {
		dst.IsLive = in.IsLive
	}
	if in.FieldResolved(domain.FieldIsActive) {
		dst.IsActive = in.IsActive
	}
	if in.FieldResolved(domain.FieldNSFW) {
		dst.NSFW = in.NSFW
	}
}

func mergeCandles(dst, in *domain.Token) {
	switch c := in.Candles.(type) {
	case nil:
	case []any:
		if len(c) > 0 {
			dst.Candles = c
		}
	default:
		dst.Candles = c
	}
}

// mergeRaw overlays the incoming raw record on the previous one, one level
// deep, under the same emptiness rule as the canonical string fields: a nil
// or whitespace-only incoming value keeps the previous one. The result is
// always a fresh map.
func mergeRaw(prev, in domain.UpstreamRecord) domain.UpstreamRecord {
	if prev == nil && in == nil {
		return nil
	}
	out := make(domain.UpstreamRecord, len(prev)+len(in))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range in {
		if v == nil {
			if _, known := out[k]; known {
				continue
			}
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			if _, known := out[k]; known {
				continue
			}
		}
		out[k] = v
	}
	return out
}
