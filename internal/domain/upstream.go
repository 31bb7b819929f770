package domain

// UpstreamRecord is a raw, schema-variable payload describing one token as
// received from an external feed, prior to normalization. The shape drifts
// across producer versions; the normalizer probes it rather than decoding
// into a fixed struct.
type UpstreamRecord = map[string]any

// Subscription event types delivered by the realtime transport.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// SubscriptionEvent is one discrete tagged event from the realtime
// subscription transport. New carries the current record for inserts and
// updates; Old carries the prior record for deletes.
type SubscriptionEvent struct {
	EventType string         `json:"eventType"`
	New       UpstreamRecord `json:"new,omitempty"`
	Old       UpstreamRecord `json:"old,omitempty"`
}

// StreamEnvelope is the SSE payload envelope for both bulk and single-token
// events. Tokens and TotalCount are set for bulk events; Token for single.
type StreamEnvelope struct {
	Event     string     `json:"event"`
	Timestamp string     `json:"timestamp,omitempty"`
	Data      StreamData `json:"data"`
}

// StreamData is the data member of a stream envelope.
type StreamData struct {
	Tokens     []UpstreamRecord `json:"tokens,omitempty"`
	Token      UpstreamRecord   `json:"token,omitempty"`
	TotalCount int              `json:"total_count,omitempty"`
}
