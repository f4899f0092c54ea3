// Package agentfailover runs agent model calls across a fallback chain of
// models, rotating provider credentials and pacing calls per conversation.
//
// Build an App from a configuration file, then call RunAgent for every model
// call an agent makes. The App also serves a health endpoint and Prometheus
// metrics for the process embedding it.
package agentfailover

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mixaill76/agent_failover/internal/attemptlog"
	"github.com/mixaill76/agent_failover/internal/authprofile"
	"github.com/mixaill76/agent_failover/internal/config"
	"github.com/mixaill76/agent_failover/internal/failover"
	"github.com/mixaill76/agent_failover/internal/health"
	"github.com/mixaill76/agent_failover/internal/logger"
	"github.com/mixaill76/agent_failover/internal/monitoring"
	"github.com/mixaill76/agent_failover/internal/ratelimit"
)

// Config is the YAML configuration accepted by LoadConfig and New.
type Config = config.Config

// LoadConfig reads, normalizes and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// App holds the process-wide collaborators: profile pools, limiter, model
// chains, orchestrator and the optional attempt log.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *monitoring.Metrics

	profiles *authprofile.Manager
	tokens   *authprofile.TokenCache
	limiter  *ratelimit.Limiter
	chains   map[string]failover.ModelChain
	orch     *failover.Orchestrator

	recorder *attemptlog.Recorder
	writer   *attemptlog.PGWriter

	checker   *health.Checker
	refresher *health.Refresher
}

// New wires an App from cfg. A nil log builds one from the server section.
// When the attempt log is enabled New connects to PostgreSQL.
func New(ctx context.Context, cfg *Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = logger.NewWithFormat(cfg.Server.LogFormat, cfg.Server.LoggingLevel)
	}
	a := &App{
		cfg:     cfg,
		log:     log,
		metrics: monitoring.New(cfg.Monitoring.PrometheusEnabled),
	}

	profiles, err := authprofile.NewManagerFromConfig(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth profiles: %w", err)
	}
	profiles.SetLogger(log)
	profiles.SetMetrics(a.metrics)
	a.profiles = profiles
	a.tokens = authprofile.NewTokenCache(log)

	limits, err := ratelimit.FromConfig(cfg.RateLimits)
	if err != nil {
		return nil, fmt.Errorf("rate limits: %w", err)
	}
	a.limiter = ratelimit.New(limits, cfg.RateLimits.MaxScopes)
	a.limiter.SetLogger(log)
	a.limiter.SetMetrics(a.metrics)

	if a.chains, err = failover.ChainsFromConfig(cfg.Failover.Models); err != nil {
		return nil, fmt.Errorf("model chains: %w", err)
	}

	opts := []failover.Option{failover.WithLogger(log), failover.WithMetrics(a.metrics)}
	var dbHealth *health.DBHealthChecker
	if cfg.AttemptLog.Enabled {
		a.recorder, a.writer, err = attemptlog.Open(ctx, cfg.AttemptLog, log, a.metrics)
		if err != nil {
			return nil, fmt.Errorf("attempt log: %w", err)
		}
		opts = append(opts, failover.WithObserver(a.recorder))
		dbHealth = health.NewDBHealthChecker()
	}
	a.orch = failover.New(opts...)

	a.checker = health.NewChecker(a.profiles, a.limiter, log)
	a.refresher, err = health.NewRefresher(cfg.Monitoring.RefreshSchedule, a.profiles, a.limiter, a.metrics, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if a.recorder != nil {
		a.checker.SetAttemptLog(a.recorder, dbHealth)
		a.refresher.SetMonitor(health.NewMonitor(a.writer, dbHealth, 0, log))
	}

	return a, nil
}

// Agents lists the configured agent names, sorted.
func (a *App) Agents() []string {
	agents := make([]string, 0, len(a.chains))
	for name := range a.chains {
		agents = append(agents, name)
	}
	sort.Strings(agents)
	return agents
}

// Handler serves the health path and, when enabled, /metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Monitoring.HealthCheckPath, a.checker)

	if a.cfg.Monitoring.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		a.log.Info("Prometheus metrics enabled", "path", "/metrics")
	}
	return mux
}

// Start refreshes the health gauges once and schedules further refreshes.
func (a *App) Start() {
	a.refresher.Refresh()
	a.refresher.Start()
}

// Close stops background work. The recorder drains before the pool closes.
func (a *App) Close(ctx context.Context) {
	if a.refresher != nil {
		if err := a.refresher.Stop(ctx); err != nil {
			a.log.Error("Health refresher stop failed", "error", err)
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Stop(ctx); err != nil {
			a.log.Error("Attempt log drain failed", "error", err)
		}
	}
	if a.writer != nil {
		a.writer.Close()
	}
}
