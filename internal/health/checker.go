package health

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mixaill76/agent_failover/internal/attemptlog"
	"github.com/mixaill76/agent_failover/internal/authprofile"
	"github.com/mixaill76/agent_failover/internal/ratelimit"
)

// AttemptLogSource exposes recorder counters.
type AttemptLogSource interface {
	Stats() attemptlog.Stats
}

// Checker builds health snapshots from the live profile pools and limiter.
// profiles and limiter are required; the attempt log parts are optional.
type Checker struct {
	profiles   *authprofile.Manager
	limiter    *ratelimit.Limiter
	attemptLog AttemptLogSource
	db         *DBHealthChecker
	logger     *slog.Logger
}

func NewChecker(profiles *authprofile.Manager, limiter *ratelimit.Limiter, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Checker{
		profiles: profiles,
		limiter:  limiter,
		logger:   logger,
	}
}

// SetAttemptLog attaches the recorder and its database status.
func (c *Checker) SetAttemptLog(source AttemptLogSource, db *DBHealthChecker) {
	c.attemptLog = source
	c.db = db
}

// Snapshot reports unhealthy when any provider has no selectable profile,
// degraded when only the attempt log database is down.
func (c *Checker) Snapshot() Response {
	resp := Response{
		Status:    StatusHealthy,
		Providers: make(map[string]ProviderStats),
	}

	for _, providerID := range c.profiles.Providers() {
		available := c.profiles.AvailableCount(providerID)
		profiles := c.profiles.Snapshot(providerID)

		stats := ProviderStats{
			Available: available,
			Total:     len(profiles),
			Profiles:  make([]ProfileStats, 0, len(profiles)),
		}
		for _, p := range profiles {
			stats.Profiles = append(stats.Profiles, ProfileStats{
				ID:            p.ID,
				Type:          p.Type,
				Status:        p.Status.String(),
				LastUsed:      optionalTime(p.LastUsed),
				CooldownUntil: optionalTime(p.CooldownUntil),
			})
		}
		resp.Providers[providerID] = stats
		resp.ProfilesAvailable += available
		resp.TotalProfiles += stats.Total

		if available == 0 {
			resp.Status = StatusUnhealthy
		}
	}

	cfg := c.limiter.Config()
	global, _ := c.limiter.GetRequestCount(ratelimit.GlobalScope)
	resp.RateLimiter = LimiterStats{
		GlobalLimit:    cfg.Global.String(),
		PerChatLimit:   cfg.PerChat.String(),
		GlobalRequests: global,
		TrackedScopes:  len(c.limiter.Scopes()),
	}

	if c.attemptLog != nil {
		s := c.attemptLog.Stats()
		resp.AttemptLog = &AttemptLogStats{
			DatabaseHealthy: c.db.IsHealthy(),
			QueueLen:        s.QueueLen,
			QueueCap:        s.QueueCap,
			Written:         s.Written,
			Dropped:         s.Dropped,
			Errors:          s.Errors,
		}
		if !resp.AttemptLog.DatabaseHealthy && resp.Status == StatusHealthy {
			resp.Status = StatusDegraded
		}
	}

	return resp
}

// ServeHTTP writes the snapshot as JSON; 503 when unhealthy.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := c.Snapshot()

	status := http.StatusOK
	if resp.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		c.logger.Error("Failed to encode health response", "error", err)
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
