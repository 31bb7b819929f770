package domain

// FeedSnapshot is the exposed collection snapshot shape produced for
// downstream consumers (HTTP re-export, UI subscription push).
type FeedSnapshot struct {
	Event             string   `json:"event"`
	Timestamp         string   `json:"timestamp"`
	TokenCount        int      `json:"token_count"`
	Data              []*Token `json:"data"`
	LastSSEUpdate     string   `json:"last_sse_update"`
	BackendTotalCount int      `json:"backend_total_count"`
}

// StoreStats is the health/introspection surface of the token store.
type StoreStats struct {
	HasData         bool   `json:"hasData"`
	TokenCount      int    `json:"tokenCount"`
	LastUpdate      string `json:"lastUpdate"`
	SubscriberCount int    `json:"subscriberCount"`
}
