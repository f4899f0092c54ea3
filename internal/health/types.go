package health

import "time"

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Response is the JSON body of the health endpoint.
type Response struct {
	Status            string                   `json:"status"`
	ProfilesAvailable int                      `json:"profiles_available"`
	TotalProfiles     int                      `json:"total_profiles"`
	Providers         map[string]ProviderStats `json:"providers"`
	RateLimiter       LimiterStats             `json:"rate_limiter"`
	AttemptLog        *AttemptLogStats         `json:"attempt_log,omitempty"`
}

type ProviderStats struct {
	Available int            `json:"available"`
	Total     int            `json:"total"`
	Profiles  []ProfileStats `json:"profiles"`
}

type ProfileStats struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	LastUsed      *time.Time `json:"last_used,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

type LimiterStats struct {
	GlobalLimit    string `json:"global_limit"`
	PerChatLimit   string `json:"per_chat_limit"`
	GlobalRequests int    `json:"global_requests"`
	TrackedScopes  int    `json:"tracked_scopes"`
}

type AttemptLogStats struct {
	DatabaseHealthy bool   `json:"database_healthy"`
	QueueLen        int    `json:"queue_len"`
	QueueCap        int    `json:"queue_cap"`
	Written         uint64 `json:"written"`
	Dropped         uint64 `json:"dropped"`
	Errors          uint64 `json:"errors"`
}
