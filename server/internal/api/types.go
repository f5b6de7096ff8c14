package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Clients       int    `json:"clients"`
	Subscriptions int    `json:"subscriptions"`
	GeneratedAt   string `json:"generated_at"` // RFC3339
}

// SubscriptionsResponse is the payload for GET /api/v1/subscriptions.
type SubscriptionsResponse struct {
	Total   int            `json:"total"`
	ByTopic map[string]int `json:"by_topic"`
}

// IngestResponse is the payload for an accepted POST /api/v1/events.
type IngestResponse struct {
	Topic     string `json:"topic"`
	Targets   int    `json:"targets"`
	Delivered int    `json:"delivered"`
	Dropped   int    `json:"dropped"`
}

type errorResponse struct {
	Error string `json:"error"`
}
