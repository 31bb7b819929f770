package reconcile

import (
	"testing"

	"launchfeed/internal/domain"
)

const mergeNow = int64(1_700_000_000_000)

func TestMerge_Idempotent(t *testing.T) {
	prev := baseToken()
	incoming := baseToken()
	incoming.MarketCap = 123_456

	first := Merge(prev, incoming, mergeNow)
	if !first.IsUpdated {
		t.Fatal("first merge with a changed field must set IsUpdated")
	}
	if first.UpdatedAt != mergeNow {
		t.Errorf("UpdatedAt = %d, want %d", first.UpdatedAt, mergeNow)
	}

	second := Merge(first, incoming, mergeNow+1000)
	if second.IsUpdated {
		t.Error("second merge of the same payload must not report an update")
	}
	if second.UpdatedAt != mergeNow {
		t.Errorf("UpdatedAt rewritten to %d on a no-op merge", second.UpdatedAt)
	}
}

func TestMerge_EmptyStringsPreserved(t *testing.T) {
	prev := baseToken()
	incoming := baseToken()
	incoming.Description = ""
	incoming.ImageURI = "   "
	incoming.Name = "Renamed"

	merged := Merge(prev, incoming, mergeNow)
	if merged.Description != prev.Description {
		t.Errorf("Description = %q, empty incoming value must keep previous", merged.Description)
	}
	if merged.Name != "Renamed" {
		t.Errorf("Name = %q, non-empty incoming value must replace", merged.Name)
	}
}

func TestMerge_PartialUpdatePreservesOmittedNumerics(t *testing.T) {
	prev := baseToken()

	// A partial tick that only carried viewers upstream.
	incoming := &domain.Token{
		Mint:     prev.Mint,
		Viewers:  99,
		Resolved: map[string]struct{}{domain.FieldViewers: {}},
	}

	merged := Merge(prev, incoming, mergeNow)
	if merged.Viewers != 99 {
		t.Errorf("Viewers = %d, want 99", merged.Viewers)
	}
	if merged.MarketCap != prev.MarketCap {
		t.Errorf("MarketCap = %v, omitted field must keep previous %v", merged.MarketCap, prev.MarketCap)
	}
	if merged.Volume.H24 != prev.Volume.H24 {
		t.Errorf("Volume.H24 = %v, omitted field must keep previous", merged.Volume.H24)
	}
	if !merged.IsLive {
		t.Error("IsLive flipped by a partial update that never carried it")
	}

	changes := merged.PreviousValues
	if len(changes) != 1 || changes[domain.FieldViewers] != prev.Viewers {
		t.Errorf("PreviousValues = %v, want only viewers=%d", changes, prev.Viewers)
	}
}

func TestMerge_PreviousValuesAccumulate(t *testing.T) {
	prev := baseToken()

	tickOne := baseToken()
	tickOne.MarketCap = 110_000
	afterOne := Merge(prev, tickOne, mergeNow)

	tickTwo := baseToken()
	tickTwo.MarketCap = 110_000
	tickTwo.Viewers = 50
	afterTwo := Merge(afterOne, tickTwo, mergeNow+5000)

	pv := afterTwo.PreviousValues
	if pv[domain.FieldMarketCap] != float64(100_000) {
		t.Errorf("market_cap prior = %v, want the unconsumed original 100000", pv[domain.FieldMarketCap])
	}
	if pv[domain.FieldViewers] != 12 {
		t.Errorf("viewers prior = %v, want 12", pv[domain.FieldViewers])
	}
}

func TestMerge_EmptyCandleListKeepsPrevious(t *testing.T) {
	prev := baseToken()
	incoming := baseToken()
	incoming.Candles = []any{}

	merged := Merge(prev, incoming, mergeNow)
	list, ok := merged.Candles.([]any)
	if !ok || len(list) != 3 {
		t.Errorf("Candles = %v, empty incoming list must keep previous", merged.Candles)
	}
}

func TestMerge_CreatedAtZeroKeepsPrevious(t *testing.T) {
	prev := baseToken()
	prev.CreatedAt = 1_600_000_000_000
	incoming := baseToken()
	incoming.CreatedAt = 0

	merged := Merge(prev, incoming, mergeNow)
	if merged.CreatedAt != prev.CreatedAt {
		t.Errorf("CreatedAt = %d, unknown incoming timestamp must keep previous", merged.CreatedAt)
	}
}

func TestMerge_RawOneLevelDeep(t *testing.T) {
	prev := baseToken()
	prev.Raw = domain.UpstreamRecord{"a": "old", "keep": "me"}
	incoming := baseToken()
	incoming.Raw = domain.UpstreamRecord{"a": "new"}

	merged := Merge(prev, incoming, mergeNow)
	if merged.Raw["a"] != "new" || merged.Raw["keep"] != "me" {
		t.Errorf("Raw = %v, want one-level overlay", merged.Raw)
	}
	if prev.Raw["a"] != "old" {
		t.Error("Merge mutated the previous token's raw record")
	}
}

func TestMerge_RawEmptyIncomingValuesKeepPrevious(t *testing.T) {
	prev := baseToken()
	prev.Raw = domain.UpstreamRecord{
		"description": "a fine token",
		"website":     "https://example.com",
		"supply":      float64(1e9),
	}
	incoming := baseToken()
	incoming.Raw = domain.UpstreamRecord{
		"description": "",
		"website":     "   ",
		"supply":      nil,
		"fresh":       "",
	}

	merged := Merge(prev, incoming, mergeNow)
	if merged.Raw["description"] != "a fine token" {
		t.Errorf("raw description = %q, empty incoming value must keep previous", merged.Raw["description"])
	}
	if merged.Raw["website"] != "https://example.com" {
		t.Errorf("raw website = %q, whitespace incoming value must keep previous", merged.Raw["website"])
	}
	if merged.Raw["supply"] != float64(1e9) {
		t.Errorf("raw supply = %v, nil incoming value must keep previous", merged.Raw["supply"])
	}
	if _, ok := merged.Raw["fresh"]; !ok {
		t.Error("raw key unknown before the update must still appear")
	}
}

func TestMerge_NilPrevious(t *testing.T) {
	incoming := baseToken()
	merged := Merge(nil, incoming, mergeNow)
	if merged == nil || !merged.IsUpdated || merged.UpdatedAt != mergeNow {
		t.Fatalf("Merge(nil, x) = %+v, want stamped clone of incoming", merged)
	}
	if merged == incoming {
		t.Error("Merge(nil, x) must not alias the incoming token")
	}
}
