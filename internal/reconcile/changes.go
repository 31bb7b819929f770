// Package reconcile computes field-level deltas between token states and
// folds partial upstream updates into the canonical record. The change
// detector only watches the fast-moving display fields; identity and
// descriptive metadata never produce change entries.
package reconcile

import (
	"bytes"
	"encoding/json"

	"launchfeed/internal/domain"
)

// trackedField pairs a canonical field key with its reader. DetectChanges
// reports under these keys only.
type trackedField struct {
	key  string
	read func(t *domain.Token) any
}

var trackedFields = buildTrackedFields()

func buildTrackedFields() []trackedField {
	fields := []trackedField{
		{domain.FieldMarketCap, func(t *domain.Token) any { return t.MarketCap }},
		{domain.FieldATH, func(t *domain.Token) any { return t.ATH }},
		{domain.FieldProgress, func(t *domain.Token) any { return t.Progress }},
		{domain.FieldViewers, func(t *domain.Token) any { return t.Viewers }},
		{domain.FieldReplies, func(t *domain.Token) any { return t.Replies }},
		{domain.FieldIsLive, func(t *domain.Token) any { return t.IsLive }},
		{domain.FieldNSFW, func(t *domain.Token) any { return t.NSFW }},
		{domain.FieldCoinsCreated, func(t *domain.Token) any { return t.CreatorStats.CoinsCreated }},
		{domain.FieldCreatorBalanceSOL, func(t *domain.Token) any { return t.CreatorStats.BalanceSOL }},
		{domain.FieldCreatorBalanceUSD, func(t *domain.Token) any { return t.CreatorStats.BalanceUSD }},
	}

	windowed := []struct {
		metric string
		get    func(t *domain.Token) *domain.Windowed
	}{
		{domain.MetricVolume, func(t *domain.Token) *domain.Windowed { return &t.Volume }},
		{domain.MetricTxns, func(t *domain.Token) *domain.Windowed { return &t.Txns }},
		{domain.MetricTraders, func(t *domain.Token) *domain.Windowed { return &t.Traders }},
		{domain.MetricPriceChange, func(t *domain.Token) *domain.Windowed { return &t.PriceChange }},
	}
	for _, w := range windowed {
		for _, label := range domain.WindowLabels {
			get, label := w.get, label
			fields = append(fields, trackedField{
				key:  domain.WindowedFieldKey(w.metric, label),
				read: func(t *domain.Token) any { return get(t).WindowValue(label) },
			})
		}
	}
	return fields
}

// DetectChanges compares the tracked display fields of prev and next and
// returns a map of field key to the previous value for every field that
// differs. Untracked fields never appear. Nil is returned when nothing
// changed or either side is missing.
func DetectChanges(prev, next *domain.Token) map[string]any {
	if prev == nil || next == nil {
		return nil
	}

	changes := make(map[string]any)
	for _, f := range trackedFields {
		pv, nv := f.read(prev), f.read(next)
		if pv != nv {
			changes[f.key] = pv
		}
	}

	if !equalJSON(prev.DevActivity, next.DevActivity) {
		changes[domain.FieldDevActivity] = prev.DevActivity
	}
	if changed, prevTail := candlesChanged(prev.Candles, next.Candles); changed {
		changes[domain.FieldCandles] = prevTail
	}

	if len(changes) == 0 {
		return nil
	}
	return changes
}

// candlesChanged compares candle values by their trailing
// CandleComparePoints window. The reported previous value is the truncated
// tail, not the full series, to bound the size of previous-value maps on
// chart-heavy tokens.
func candlesChanged(prev, next any) (bool, any) {
	prevTail := candleTail(prev)
	nextTail := candleTail(next)
	if equalJSON(prevTail, nextTail) {
		return false, nil
	}
	return true, prevTail
}

func candleTail(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	if len(list) > domain.CandleComparePoints {
		return list[len(list)-domain.CandleComparePoints:]
	}
	return list
}

// equalJSON compares two values by their canonical JSON serialization.
// Unserializable values compare equal only to each other's failure.
func equalJSON(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	ab, aerr := json.Marshal(a)
	bb, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return aerr != nil && berr != nil
	}
	return bytes.Equal(ab, bb)
}
