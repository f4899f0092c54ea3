package health

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/mixaill76/agent_failover/internal/authprofile"
	"github.com/mixaill76/agent_failover/internal/monitoring"
	"github.com/mixaill76/agent_failover/internal/ratelimit"
)

// Refresher periodically pushes profile availability and window occupancy
// into the Prometheus gauges, and runs the database monitor if one is set.
// Gauges otherwise only move when a profile or bucket is touched.
type Refresher struct {
	cron     *cron.Cron
	profiles *authprofile.Manager
	limiter  *ratelimit.Limiter
	monitor  *Monitor
	metrics  *monitoring.Metrics
	logger   *slog.Logger
}

// NewRefresher schedules the refresh on spec (standard cron or @every).
func NewRefresher(spec string, profiles *authprofile.Manager, limiter *ratelimit.Limiter, metrics *monitoring.Metrics, logger *slog.Logger) (*Refresher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Refresher{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		profiles: profiles,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
	}
	if _, err := r.cron.AddFunc(spec, r.Refresh); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return r, nil
}

// SetMonitor adds a database check to every refresh.
func (r *Refresher) SetMonitor(m *Monitor) {
	r.monitor = m
}

// Refresh runs one refresh immediately.
func (r *Refresher) Refresh() {
	r.profiles.RefreshMetrics()

	global, _ := r.limiter.GetRequestCount(ratelimit.GlobalScope)
	r.metrics.UpdateWindowRequests("global", global)

	if r.monitor != nil {
		r.monitor.Check(context.Background())
	}
	r.logger.Debug("Health gauges refreshed",
		"providers", len(r.profiles.Providers()),
		"global_requests", global,
	)
}

func (r *Refresher) Start() {
	r.cron.Start()
	r.logger.Info("Health refresher started", "entries", len(r.cron.Entries()))
}

// Stop halts scheduling and waits for a running refresh, or for ctx.
func (r *Refresher) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
