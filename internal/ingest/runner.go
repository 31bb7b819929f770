package ingest

import (
	"context"
	"log"
	"time"

	"launchfeed/internal/domain"
	"launchfeed/internal/observability"
	"launchfeed/internal/reconcile"
	"launchfeed/internal/storage"
)

// Transformer turns raw upstream records into canonical tokens.
type Transformer interface {
	Transform(raw domain.UpstreamRecord) *domain.Token
	TransformBatch(ctx context.Context, raws []domain.UpstreamRecord) []*domain.Token
}

// ChangePublisher delivers consumed field changes to an external consumer.
type ChangePublisher interface {
	PublishChanges(ctx context.Context, mint string, changes map[string]any) error
}

// RunnerOptions configures a Runner. Store and Transformer are required;
// the durable sinks are optional and skipped when nil.
type RunnerOptions struct {
	Store       storage.TokenStore
	Transformer Transformer

	Archive   storage.TokenArchiveStore
	Metrics   storage.MetricPointStore
	Publisher ChangePublisher

	Logger *log.Logger
}

// Runner applies decoded feed events to the live store: bulk snapshot
// replacement, single-token merges and subscription inserts, updates and
// deletes. After each snapshot replacement it drains accumulated field
// changes to the configured durable sinks.
type Runner struct {
	store       storage.TokenStore
	transformer Transformer
	archive     storage.TokenArchiveStore
	metrics     storage.MetricPointStore
	publisher   ChangePublisher
	logger      *log.Logger

	now func() int64
}

// NewRunner creates a runner from options.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		store:       opts.Store,
		transformer: opts.Transformer,
		archive:     opts.Archive,
		metrics:     opts.Metrics,
		publisher:   opts.Publisher,
		logger:      logger,
		now:         func() int64 { return time.Now().UnixMilli() },
	}
}

// ApplyBulk replaces the feed with a full snapshot. When the envelope
// declares a total count larger than the number of usable records, the
// snapshot is rejected and current state is kept.
func (r *Runner) ApplyBulk(ctx context.Context, records []domain.UpstreamRecord, totalCount int) error {
	incoming := r.transformer.TransformBatch(ctx, records)

	valid := make([]*domain.Token, 0, len(incoming))
	for _, t := range incoming {
		if t != nil && t.Mint != "" {
			valid = append(valid, t)
		}
	}

	if totalCount > 0 && len(valid) < totalCount {
		r.logger.Printf("[ingestion] bulk snapshot incomplete: got %d usable tokens, backend declares %d", len(valid), totalCount)
		return storage.ErrIncompleteSnapshot
	}

	now := r.now()
	merged := make([]*domain.Token, 0, len(valid))
	for _, t := range valid {
		prev, err := r.store.GetByMint(t.Mint)
		if err != nil {
			prev = nil
		}
		m := reconcile.Merge(prev, t, now)
		if m.IsUpdated {
			observability.RecordMerge(len(m.PreviousValues))
		}
		merged = append(merged, m)
	}

	r.store.SetTokens(merged)
	observability.UpdateFeedSize(len(merged), float64(now)/1000)
	r.drainChanges(ctx, merged)
	return nil
}

// ApplySingle merges one token event into the current snapshot. Unknown
// mints are prepended as new launches.
func (r *Runner) ApplySingle(ctx context.Context, record domain.UpstreamRecord) error {
	t := r.transformer.Transform(record)
	if t == nil || t.Mint == "" {
		return storage.ErrMissingMint
	}
	return r.upsertOne(ctx, t, false)
}

// ApplyInsert prepends a newly launched token. An existing token with the
// same mint is merged instead of duplicated.
func (r *Runner) ApplyInsert(ctx context.Context, record domain.UpstreamRecord) error {
	t := r.transformer.Transform(record)
	if t == nil || t.Mint == "" {
		return storage.ErrMissingMint
	}
	return r.upsertOne(ctx, t, true)
}

// ApplyUpdate merges an updated token in place, inserting it when the feed
// never saw the insert.
func (r *Runner) ApplyUpdate(ctx context.Context, record domain.UpstreamRecord) error {
	return r.ApplySingle(ctx, record)
}

// ApplyDelete removes a token from the feed. Deleting an unknown mint is a
// no-op.
func (r *Runner) ApplyDelete(_ context.Context, record domain.UpstreamRecord) error {
	t := r.transformer.Transform(record)
	if t == nil || t.Mint == "" {
		return storage.ErrMissingMint
	}

	current := r.store.GetTokens()
	kept := make([]*domain.Token, 0, len(current))
	removed := false
	for _, existing := range current {
		if existing.Mint == t.Mint {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		return nil
	}
	r.store.SetTokens(kept)
	observability.UpdateFeedSize(len(kept), float64(r.now())/1000)
	return nil
}

// upsertOne merges t into the snapshot. prepend controls placement of a
// previously unknown mint; known mints always keep their position.
func (r *Runner) upsertOne(ctx context.Context, t *domain.Token, prepend bool) error {
	now := r.now()
	current := r.store.GetTokens()

	next := make([]*domain.Token, 0, len(current)+1)
	var merged *domain.Token
	for _, existing := range current {
		if existing.Mint == t.Mint {
			merged = reconcile.Merge(existing, t, now)
			next = append(next, merged)
		} else {
			next = append(next, existing)
		}
	}
	if merged == nil {
		merged = reconcile.Merge(nil, t, now)
		if prepend {
			next = append([]*domain.Token{merged}, next...)
		} else {
			next = append(next, merged)
		}
	}
	if merged.IsUpdated {
		observability.RecordMerge(len(merged.PreviousValues))
	}

	r.store.SetTokens(next)
	observability.UpdateFeedSize(len(next), float64(now)/1000)
	r.drainChanges(ctx, []*domain.Token{merged})
	return nil
}

// drainChanges consumes accumulated previous values for updated tokens and
// forwards them to the durable sinks. Sink failures are logged, never
// propagated; the live feed does not depend on archival health.
func (r *Runner) drainChanges(ctx context.Context, tokens []*domain.Token) {
	if r.archive == nil && r.metrics == nil && r.publisher == nil {
		return
	}

	var points []*domain.MetricPoint
	for _, t := range tokens {
		if !t.IsUpdated {
			continue
		}
		changes, err := r.store.ConsumeChanges(t.Mint)
		if err != nil || len(changes) == 0 {
			continue
		}

		if r.publisher != nil {
			if err := r.publisher.PublishChanges(ctx, t.Mint, changes); err != nil {
				r.logger.Printf("[ingestion] publish changes for %s: %v", t.Mint, err)
			}
		}
		if r.metrics != nil {
			points = append(points, changePoints(t, changes)...)
		}
		if r.archive != nil {
			if err := r.archive.Upsert(ctx, t); err != nil {
				r.logger.Printf("[ingestion] archive %s: %v", t.Mint, err)
			}
		}
	}

	if r.metrics != nil && len(points) > 0 {
		if err := r.metrics.InsertBulk(ctx, points); err != nil {
			r.logger.Printf("[ingestion] insert %d metric points: %v", len(points), err)
		}
	}
}

// changePoints converts the numeric entries of a change map into metric
// time series points. Non-numeric changes (candles, dev activity) have no
// scalar representation and are skipped.
func changePoints(t *domain.Token, changes map[string]any) []*domain.MetricPoint {
	points := make([]*domain.MetricPoint, 0, len(changes))
	for field, prior := range changes {
		var prev float64
		switch p := prior.(type) {
		case float64:
			prev = p
		case int:
			prev = float64(p)
		case bool:
			if p {
				prev = 1
			}
		default:
			continue
		}
		points = append(points, &domain.MetricPoint{
			Mint:       t.Mint,
			Field:      field,
			Value:      currentFieldValue(t, field),
			PrevValue:  prev,
			ObservedAt: t.UpdatedAt,
		})
	}
	return points
}

// currentFieldValue reads the post-merge value of a tracked scalar field.
func currentFieldValue(t *domain.Token, field string) float64 {
	switch field {
	case domain.FieldMarketCap:
		return t.MarketCap
	case domain.FieldATH:
		return t.ATH
	case domain.FieldProgress:
		return t.Progress
	case domain.FieldViewers:
		return float64(t.Viewers)
	case domain.FieldReplies:
		return float64(t.Replies)
	case domain.FieldCoinsCreated:
		return float64(t.CreatorStats.CoinsCreated)
	case domain.FieldCreatorBalanceSOL:
		return t.CreatorStats.BalanceSOL
	case domain.FieldCreatorBalanceUSD:
		return t.CreatorStats.BalanceUSD
	case domain.FieldIsLive:
		if t.IsLive {
			return 1
		}
		return 0
	case domain.FieldNSFW:
		if t.NSFW {
			return 1
		}
		return 0
	}
	for _, metric := range []struct {
		base string
		w    *domain.Windowed
	}{
		{domain.MetricVolume, &t.Volume},
		{domain.MetricTxns, &t.Txns},
		{domain.MetricTraders, &t.Traders},
		{domain.MetricPriceChange, &t.PriceChange},
	} {
		for _, label := range domain.WindowLabels {
			if field == domain.WindowedFieldKey(metric.base, label) {
				return metric.w.WindowValue(label)
			}
		}
	}
	return 0
}
