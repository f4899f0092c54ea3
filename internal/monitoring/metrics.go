package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_failover_attempts_total",
			Help: "Total number of model call attempts",
		},
		[]string{"model", "outcome"},
	)

	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_failover_attempt_duration_seconds",
			Help:    "Duration of a single model call attempt in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"model"},
	)

	ModelSwitchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_failover_model_switches_total",
			Help: "Total number of switches from one model to the next in a chain",
		},
		[]string{"from", "to", "reason"},
	)

	TerminalFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_failover_terminal_failures_total",
			Help: "Total number of orchestrated calls that ended in a terminal error",
		},
		[]string{"cause"},
	)

	ProfileCooldownsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_failover_profile_cooldowns_total",
			Help: "Total number of times an auth profile was put into cooldown",
		},
		[]string{"provider", "status"},
	)

	ProfilesAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_failover_profiles_available",
			Help: "Number of auth profiles currently selectable per provider",
		},
		[]string{"provider"},
	)

	RateLimitRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_failover_rate_limit_rejected_total",
			Help: "Total number of requests that found a rate limit bucket saturated",
		},
		[]string{"bucket"},
	)

	RateLimitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_failover_rate_limit_wait_seconds",
			Help:    "Time spent waiting for rate limit capacity or a retry-after deadline",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"reason"},
	)

	RateLimitWindowRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_failover_rate_limit_window_requests",
			Help: "Requests currently counted in the global sliding window",
		},
		[]string{"bucket"},
	)

	AttemptLogDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_failover_attempt_log_dropped_total",
			Help: "Total number of attempt log entries dropped because the queue was full",
		},
	)
)

type Metrics struct {
	enabled bool
}

func New(enabled bool) *Metrics {
	return &Metrics{
		enabled: enabled,
	}
}

// isEnabled is nil-safe so components can hold an unset *Metrics.
func (m *Metrics) isEnabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) RecordAttempt(model string, success bool, duration time.Duration) {
	if !m.isEnabled() {
		return
	}
	outcome := "error"
	if success {
		outcome = "success"
	}
	AttemptsTotal.WithLabelValues(model, outcome).Inc()
	AttemptDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func (m *Metrics) RecordModelSwitch(from, to, reason string) {
	if !m.isEnabled() {
		return
	}
	ModelSwitchesTotal.WithLabelValues(from, to, reason).Inc()
}

func (m *Metrics) RecordTerminalFailure(cause string) {
	if !m.isEnabled() {
		return
	}
	TerminalFailuresTotal.WithLabelValues(cause).Inc()
}

func (m *Metrics) RecordProfileCooldown(provider, status string) {
	if !m.isEnabled() {
		return
	}
	ProfileCooldownsTotal.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) UpdateProfilesAvailable(provider string, available int) {
	if !m.isEnabled() {
		return
	}
	ProfilesAvailable.WithLabelValues(provider).Set(float64(available))
}

func (m *Metrics) RecordRateLimitRejected(bucket string) {
	if !m.isEnabled() {
		return
	}
	RateLimitRejectedTotal.WithLabelValues(bucket).Inc()
}

func (m *Metrics) RecordRateLimitWait(reason string, d time.Duration) {
	if !m.isEnabled() {
		return
	}
	RateLimitWaitSeconds.WithLabelValues(reason).Observe(d.Seconds())
}

func (m *Metrics) UpdateWindowRequests(bucket string, count int) {
	if !m.isEnabled() {
		return
	}
	RateLimitWindowRequests.WithLabelValues(bucket).Set(float64(count))
}

func (m *Metrics) RecordAttemptLogDropped() {
	if !m.isEnabled() {
		return
	}
	AttemptLogDroppedTotal.Inc()
}
