package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mixaill76/agent_failover/internal/security"
)

// resolveEnvString resolves environment variable if value is in format "os.environ/VAR_NAME"
func resolveEnvString(value string) string {
	const prefix = "os.environ/"
	if strings.HasPrefix(value, prefix) {
		envVar := strings.TrimPrefix(value, prefix)
		if envValue := os.Getenv(envVar); envValue != "" {
			return envValue
		}
		slog.Warn("environment variable not set, returning empty string",
			"env_var", envVar,
			"pattern", value,
		)
		return ""
	}
	return value
}

// parseFunc is a function type that parses a string value into the desired type
type parseFunc[T any] func(string) (T, error)

// parseField resolves env variable and parses value with proper error context
func parseField[T any](tempValue string, defaultValue T, parser parseFunc[T], fieldPath string) (T, error) {
	if tempValue == "" {
		return defaultValue, nil
	}

	resolved := resolveEnvString(tempValue)
	if resolved == "" {
		return defaultValue, nil
	}
	parsed, err := parser(resolved)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", fieldPath, err)
	}
	return parsed, nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseBool(s string) (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(s))
}

// PrintConfig outputs the configuration in a structured, readable format to the logger
func PrintConfig(logger *slog.Logger, cfg *Config) {
	logger.Info("=== Configuration Loaded ===")

	logger.Info("server",
		"port", cfg.Server.Port,
		"logging_level", cfg.Server.LoggingLevel,
		"log_format", cfg.Server.LogFormat,
	)

	logger.Info("failover",
		"max_attempts", cfg.Failover.MaxAttempts,
		"chains_count", len(cfg.Failover.Models),
	)
	for name, chain := range cfg.Failover.Models {
		logger.Info(fmt.Sprintf("  [%s] chain", name),
			"primary", chain.Primary,
			"fallbacks", strings.Join(chain.Fallbacks, ","),
		)
	}
	for model, providerID := range cfg.Failover.ModelProviders {
		logger.Info("  model provider", "model", model, "provider", providerID)
	}

	logger.Info("auth",
		"cooldown", cfg.Auth.Cooldown.String(),
		"profiles_count", len(cfg.Auth.Profiles),
	)
	for i, p := range cfg.Auth.Profiles {
		logger.Info(fmt.Sprintf("  [%d] profile", i),
			"id", p.ID,
			"provider", p.Provider,
			"type", p.Type,
			"api_key", security.MaskAPIKey(p.APIKey),
			"credentials_file", p.CredentialsFile,
			"credentials_json", security.MaskCredentials(p.CredentialsJSON),
		)
	}

	logger.Info("rate_limits",
		"platform", platformToString(cfg.RateLimits.Platform),
		"global", limitToString(cfg.RateLimits.Global),
		"per_chat", limitToString(cfg.RateLimits.PerChat),
		"max_scopes", cfg.RateLimits.MaxScopes,
	)

	if cfg.AttemptLog.Enabled {
		logger.Info("attempt_log (ENABLED)",
			"database_url", security.MaskDatabaseURL(cfg.AttemptLog.DatabaseURL),
			"table", cfg.AttemptLog.Table,
			"queue_size", cfg.AttemptLog.QueueSize,
			"batch_size", cfg.AttemptLog.BatchSize,
			"flush_interval", cfg.AttemptLog.FlushInterval.String(),
		)
	} else {
		logger.Info("attempt_log", "status", "DISABLED")
	}

	logger.Info("monitoring",
		"prometheus_enabled", cfg.Monitoring.PrometheusEnabled,
		"health_check_path", cfg.Monitoring.HealthCheckPath,
		"refresh_schedule", cfg.Monitoring.RefreshSchedule,
	)

	logger.Info("=== Configuration Ready ===")
}

func platformToString(platform string) string {
	if platform == "" {
		return "default"
	}
	return platform
}

// limitToString renders an override, "preset" when none is set
func limitToString(limit *RateLimitConfig) string {
	if limit == nil {
		return "preset"
	}
	if limit.MaxRequests <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d/%s", limit.MaxRequests, limit.Window)
}
