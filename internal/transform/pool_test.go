package transform

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"launchfeed/internal/domain"
	"launchfeed/internal/normalize"
)

func batchOf(n int) []domain.UpstreamRecord {
	raws := make([]domain.UpstreamRecord, n)
	for i := range raws {
		raws[i] = domain.UpstreamRecord{
			"mint_address": fmt.Sprintf("mint%04d", i),
			"name":         fmt.Sprintf("token %d", i),
			"market_cap":   "12.5K",
			"viewers":      float64(i),
		}
	}
	return raws
}

func TestTransformBatch_PooledMatchesSync(t *testing.T) {
	p := NewPool(PoolOptions{Workers: 4, ChunkSize: 16})
	defer p.Stop()

	raws := batchOf(SyncThreshold * 4)
	pooled := p.TransformBatch(context.Background(), raws)

	want := make([]*domain.Token, len(raws))
	for i, raw := range raws {
		want[i] = normalize.Token(raw)
	}

	if len(pooled) != len(want) {
		t.Fatalf("pooled output length %d, want %d", len(pooled), len(want))
	}
	for i := range want {
		if pooled[i].Mint != want[i].Mint {
			t.Fatalf("output order diverged at %d: %s vs %s", i, pooled[i].Mint, want[i].Mint)
		}
		if !reflect.DeepEqual(pooled[i].Raw, want[i].Raw) || pooled[i].MarketCap != want[i].MarketCap {
			t.Errorf("token %d differs between pooled and sync paths", i)
		}
	}
}

func TestTransformBatch_SmallBatchStaysSync(t *testing.T) {
	p := NewPool(PoolOptions{Workers: 2})
	defer p.Stop()

	out := p.TransformBatch(context.Background(), batchOf(SyncThreshold-1))
	if len(out) != SyncThreshold-1 {
		t.Fatalf("output length %d", len(out))
	}
	if p.running.Load() {
		t.Error("pool started for a batch below the threshold")
	}
}

func TestTransformBatch_LazyStartOnce(t *testing.T) {
	p := NewPool(PoolOptions{Workers: 2, ChunkSize: 8})
	defer p.Stop()

	if p.running.Load() {
		t.Fatal("pool running before first large batch")
	}
	p.TransformBatch(context.Background(), batchOf(SyncThreshold))
	if !p.running.Load() {
		t.Fatal("pool not started by a large batch")
	}
	// Second large batch reuses the same workers.
	p.TransformBatch(context.Background(), batchOf(SyncThreshold))
}

func TestTransformBatch_AfterStopFallsBack(t *testing.T) {
	p := NewPool(PoolOptions{Workers: 2})
	p.TransformBatch(context.Background(), batchOf(SyncThreshold))
	p.Stop()

	out := p.TransformBatch(context.Background(), batchOf(SyncThreshold))
	if len(out) != SyncThreshold {
		t.Fatalf("fallback output length %d", len(out))
	}
	for i, tok := range out {
		if tok == nil || tok.Mint == "" {
			t.Fatalf("fallback token %d not normalized", i)
		}
	}
}

func TestTransform_Single(t *testing.T) {
	p := NewPool(PoolOptions{})
	tok := p.Transform(domain.UpstreamRecord{"mint_address": "mintX", "viewers": float64(3)})
	if tok.Mint != "mintX" || tok.Viewers != 3 {
		t.Errorf("Transform = %+v", tok)
	}
}

func TestTransformBatch_Empty(t *testing.T) {
	p := NewPool(PoolOptions{})
	if out := p.TransformBatch(context.Background(), nil); len(out) != 0 {
		t.Errorf("TransformBatch(nil) = %v", out)
	}
}
