package domain

// MetricPoint is one observed change of a tracked numeric field, recorded
// when the merger detects a new value for it. Points form an append-only
// time series keyed by (mint, field).
type MetricPoint struct {
	Mint       string  `json:"mint_address"`
	Field      string  `json:"field"`
	Value      float64 `json:"value"`
	PrevValue  float64 `json:"prev_value"`
	ObservedAt int64   `json:"observed_at"` // ms since epoch
}
