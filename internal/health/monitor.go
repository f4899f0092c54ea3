package health

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mixaill76/agent_failover/internal/utils"
)

const (
	defaultFailureThreshold = 3
	pingTimeout             = 5 * time.Second
)

// Pinger is satisfied by the attempt log's PostgreSQL writer.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MonitorStats contains statistics about the database monitor.
type MonitorStats struct {
	LastCheckTime       time.Time
	ConsecutiveFailures int
	IsHealthy           bool
}

// Monitor pings the database on each Check and flips the DBHealthChecker
// after FailureThreshold consecutive failures (a simple circuit breaker).
type Monitor struct {
	pinger        Pinger
	healthChecker *DBHealthChecker
	threshold     int
	logger        *slog.Logger

	mu                  sync.Mutex
	consecutiveFailures int
	lastCheckTime       time.Time
}

func NewMonitor(pinger Pinger, healthChecker *DBHealthChecker, threshold int, logger *slog.Logger) *Monitor {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		pinger:        pinger,
		healthChecker: healthChecker,
		threshold:     threshold,
		logger:        logger,
	}
}

// Check performs a single ping and updates the health checker.
func (m *Monitor) Check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := m.pinger.Ping(ctx)
	cancel()

	now := utils.NowUTC()
	wasHealthy := m.healthChecker.IsHealthy()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCheckTime = now

	if err == nil {
		m.consecutiveFailures = 0
		if !wasHealthy {
			m.logger.Warn("Attempt log database recovered (state: unhealthy -> healthy)")
		}
		m.healthChecker.SetHealthy(true)
		return
	}

	m.consecutiveFailures++
	if m.consecutiveFailures == 1 {
		m.logger.Warn("Attempt log database health check failed",
			"failure_count", m.consecutiveFailures,
			"threshold", m.threshold,
			"error", err,
		)
	}
	if m.consecutiveFailures >= m.threshold && wasHealthy {
		m.logger.Error("Attempt log database marked unhealthy",
			"consecutive_failures", m.consecutiveFailures,
			"impact", "attempt batches are retried and may be discarded until the database answers",
		)
		m.healthChecker.SetHealthy(false)
	}
}

func (m *Monitor) Stats() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MonitorStats{
		LastCheckTime:       m.lastCheckTime,
		ConsecutiveFailures: m.consecutiveFailures,
		IsHealthy:           m.healthChecker.IsHealthy(),
	}
}
