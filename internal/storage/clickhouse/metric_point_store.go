package clickhouse

import (
	"context"
	"fmt"
	"time"

	"launchfeed/internal/domain"
	"launchfeed/internal/observability"
	"launchfeed/internal/storage"
)

// MetricPointStore implements storage.MetricPointStore using ClickHouse.
// MergeTree does not enforce uniqueness; points are append-only and
// duplicates are tolerated downstream.
type MetricPointStore struct {
	conn *Conn
}

// NewMetricPointStore creates a new MetricPointStore.
func NewMetricPointStore(conn *Conn) *MetricPointStore {
	return &MetricPointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MetricPointStore = (*MetricPointStore)(nil)

// InsertBulk appends a batch of change points.
func (s *MetricPointStore) InsertBulk(ctx context.Context, points []*domain.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p == nil || p.Mint == "" {
			return storage.ErrInvalidInput
		}
	}

	started := time.Now()
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO metric_points (
			mint, field, value, prev_value, observed_at_ms
		)
	`)
	if err != nil {
		observability.RecordDBQuery("clickhouse", "insert_points", time.Since(started).Seconds(), err)
		return fmt.Errorf("prepare metric point batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(
			p.Mint,
			p.Field,
			p.Value,
			p.PrevValue,
			uint64(p.ObservedAt),
		); err != nil {
			observability.RecordDBQuery("clickhouse", "insert_points", time.Since(started).Seconds(), err)
			return fmt.Errorf("append metric point: %w", err)
		}
	}

	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_points", time.Since(started).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send metric point batch: %w", err)
	}
	return nil
}

// GetByMint retrieves all points for a mint, ordered by timestamp ASC.
func (s *MetricPointStore) GetByMint(ctx context.Context, mint string) ([]*domain.MetricPoint, error) {
	if mint == "" {
		return nil, storage.ErrMissingMint
	}

	query := `
		SELECT mint, field, value, prev_value, observed_at_ms
		FROM metric_points
		WHERE mint = ?
		ORDER BY observed_at_ms ASC, field ASC
	`

	started := time.Now()
	rows, err := s.conn.Query(ctx, query, mint)
	observability.RecordDBQuery("clickhouse", "get_points", time.Since(started).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query metric points: %w", err)
	}
	defer rows.Close()

	var points []*domain.MetricPoint
	for rows.Next() {
		var p domain.MetricPoint
		var observedAt uint64
		if err := rows.Scan(&p.Mint, &p.Field, &p.Value, &p.PrevValue, &observedAt); err != nil {
			return nil, fmt.Errorf("scan metric point: %w", err)
		}
		p.ObservedAt = int64(observedAt)
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric points: %w", err)
	}
	return points, nil
}
