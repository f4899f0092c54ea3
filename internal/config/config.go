package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = 8080
	DefaultMaxAttempts     = 3
	DefaultCooldown        = 60 * time.Second
	DefaultHealthCheckPath = "/health"
	DefaultRefreshSchedule = "@every 10s"
	DefaultAttemptLogTable = "agent_model_attempts"

	// maxWindow mirrors the limiter's timestamp retention horizon.
	maxWindow = 60 * time.Second
)

const (
	CredentialTypeAPIKey         = "api_key"
	CredentialTypeServiceAccount = "service_account"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Failover   FailoverConfig   `yaml:"failover"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimits RateLimitsConfig `yaml:"rate_limits"`
	AttemptLog AttemptLogConfig `yaml:"attempt_log"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type ServerConfig struct {
	Port         int    `yaml:"port"`
	LoggingLevel string `yaml:"logging_level"`
	LogFormat    string `yaml:"log_format"`
}

// FailoverConfig holds the model chains keyed by agent name.
// ModelProviders maps a model ID to the provider whose profiles serve it.
type FailoverConfig struct {
	MaxAttempts    int                         `yaml:"max_attempts"`
	Models         map[string]ModelChainConfig `yaml:"models"`
	ModelProviders map[string]string           `yaml:"model_providers"`
}

type ModelChainConfig struct {
	Primary   string   `yaml:"primary"`
	Fallbacks []string `yaml:"fallbacks"`
}

type AuthConfig struct {
	Cooldown time.Duration   `yaml:"cooldown"`
	Profiles []ProfileConfig `yaml:"profiles"`
}

type ProfileConfig struct {
	ID              string `yaml:"id"`
	Provider        string `yaml:"provider"`
	Type            string `yaml:"type"`
	APIKey          string `yaml:"api_key"`
	CredentialsFile string `yaml:"credentials_file"`
	CredentialsJSON string `yaml:"credentials_json"`
}

// RateLimitsConfig selects a platform preset; Global and PerChat override it.
type RateLimitsConfig struct {
	Platform  string           `yaml:"platform"`
	Global    *RateLimitConfig `yaml:"global"`
	PerChat   *RateLimitConfig `yaml:"per_chat"`
	MaxScopes int              `yaml:"max_scopes"`
}

type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type AttemptLogConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DatabaseURL   string        `yaml:"database_url"`
	Table         string        `yaml:"table"`
	QueueSize     int           `yaml:"queue_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	HealthCheckPath   string `yaml:"health_check_path"`
	RefreshSchedule   string `yaml:"refresh_schedule"`
}

// UnmarshalYAML parses the cooldown as a duration string
func (a *AuthConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Cooldown string          `yaml:"cooldown"`
		Profiles []ProfileConfig `yaml:"profiles"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	cooldown, err := parseField(temp.Cooldown, time.Duration(0), time.ParseDuration, "auth.cooldown")
	if err != nil {
		return err
	}

	a.Cooldown = cooldown
	a.Profiles = temp.Profiles
	return nil
}

// UnmarshalYAML resolves os.environ/ references in secret fields
func (p *ProfileConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawProfile ProfileConfig

	var raw rawProfile
	if err := value.Decode(&raw); err != nil {
		return err
	}

	*p = ProfileConfig(raw)
	p.APIKey = resolveEnvString(p.APIKey)
	p.CredentialsFile = resolveEnvString(p.CredentialsFile)
	p.CredentialsJSON = resolveEnvString(p.CredentialsJSON)
	return nil
}

// UnmarshalYAML parses the window as a duration string
func (r *RateLimitConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		MaxRequests string `yaml:"max_requests"`
		Window      string `yaml:"window"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	maxRequests, err := parseField(temp.MaxRequests, 0, parseInt, "max_requests")
	if err != nil {
		return err
	}
	window, err := parseField(temp.Window, time.Duration(0), time.ParseDuration, "window")
	if err != nil {
		return err
	}

	r.MaxRequests = maxRequests
	r.Window = window
	return nil
}

// UnmarshalYAML parses durations and resolves the database URL from the environment
func (a *AttemptLogConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Enabled       string `yaml:"enabled"`
		DatabaseURL   string `yaml:"database_url"`
		Table         string `yaml:"table"`
		QueueSize     string `yaml:"queue_size"`
		BatchSize     string `yaml:"batch_size"`
		FlushInterval string `yaml:"flush_interval"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	if a.Enabled, err = parseField(temp.Enabled, false, parseBool, "attempt_log.enabled"); err != nil {
		return err
	}
	if a.QueueSize, err = parseField(temp.QueueSize, 0, parseInt, "attempt_log.queue_size"); err != nil {
		return err
	}
	if a.BatchSize, err = parseField(temp.BatchSize, 0, parseInt, "attempt_log.batch_size"); err != nil {
		return err
	}
	if a.FlushInterval, err = parseField(temp.FlushInterval, time.Duration(0), time.ParseDuration, "attempt_log.flush_interval"); err != nil {
		return err
	}
	a.DatabaseURL = resolveEnvString(temp.DatabaseURL)
	a.Table = temp.Table
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Normalize fills defaults and cleans up configuration values
func (c *Config) Normalize() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.LoggingLevel == "" {
		c.Server.LoggingLevel = "info"
	}
	c.Server.LoggingLevel = strings.ToLower(c.Server.LoggingLevel)
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}

	if c.Failover.MaxAttempts == 0 {
		c.Failover.MaxAttempts = DefaultMaxAttempts
	}
	for model, providerID := range c.Failover.ModelProviders {
		c.Failover.ModelProviders[model] = strings.ToLower(strings.TrimSpace(providerID))
	}

	if c.Auth.Cooldown == 0 {
		c.Auth.Cooldown = DefaultCooldown
	}
	for i := range c.Auth.Profiles {
		p := &c.Auth.Profiles[i]
		p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
		if p.Type == "" {
			p.Type = CredentialTypeAPIKey
		}
	}

	c.RateLimits.Platform = strings.ToLower(strings.TrimSpace(c.RateLimits.Platform))

	if c.AttemptLog.Table == "" {
		c.AttemptLog.Table = DefaultAttemptLogTable
	}

	if c.Monitoring.HealthCheckPath == "" {
		c.Monitoring.HealthCheckPath = DefaultHealthCheckPath
	}
	if c.Monitoring.RefreshSchedule == "" {
		c.Monitoring.RefreshSchedule = DefaultRefreshSchedule
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Server.LoggingLevel] {
		return fmt.Errorf("invalid logging_level: %s (must be debug, info, warn or error)", c.Server.LoggingLevel)
	}
	if c.Server.LogFormat != "text" && c.Server.LogFormat != "json" {
		return fmt.Errorf("invalid log_format: %s (must be text or json)", c.Server.LogFormat)
	}

	if c.Failover.MaxAttempts < 1 {
		return fmt.Errorf("invalid failover.max_attempts: %d", c.Failover.MaxAttempts)
	}
	for name, chain := range c.Failover.Models {
		if chain.Primary == "" {
			return fmt.Errorf("failover.models.%s: primary is required", name)
		}
		for i, fb := range chain.Fallbacks {
			if fb == "" {
				return fmt.Errorf("failover.models.%s: fallback %d is empty", name, i)
			}
		}
	}
	for model, providerID := range c.Failover.ModelProviders {
		if providerID == "" {
			return fmt.Errorf("failover.model_providers.%s: provider is required", model)
		}
	}

	if c.Auth.Cooldown < 0 {
		return fmt.Errorf("invalid auth.cooldown: %v", c.Auth.Cooldown)
	}
	seen := make(map[string]bool)
	for i, p := range c.Auth.Profiles {
		if p.Provider == "" {
			return fmt.Errorf("auth profile %d: provider is required", i)
		}
		if p.ID != "" {
			key := p.Provider + "/" + p.ID
			if seen[key] {
				return fmt.Errorf("auth profile %s: duplicate id for provider %s", p.ID, p.Provider)
			}
			seen[key] = true
		}
		switch p.Type {
		case CredentialTypeAPIKey:
			if p.APIKey == "" {
				return fmt.Errorf("auth profile %d (%s): api_key is required", i, p.Provider)
			}
		case CredentialTypeServiceAccount:
			if p.CredentialsFile == "" && p.CredentialsJSON == "" {
				return fmt.Errorf("auth profile %d (%s): credentials_file or credentials_json is required", i, p.Provider)
			}
		default:
			return fmt.Errorf("auth profile %d (%s): unsupported type %q", i, p.Provider, p.Type)
		}
	}

	for name, limit := range map[string]*RateLimitConfig{"global": c.RateLimits.Global, "per_chat": c.RateLimits.PerChat} {
		if limit == nil {
			continue
		}
		if limit.MaxRequests < 0 {
			return fmt.Errorf("rate_limits.%s: invalid max_requests: %d", name, limit.MaxRequests)
		}
		if limit.MaxRequests > 0 && limit.Window <= 0 {
			return fmt.Errorf("rate_limits.%s: window is required when max_requests is set", name)
		}
		if limit.Window > maxWindow {
			return fmt.Errorf("rate_limits.%s: window %s exceeds %s", name, limit.Window, maxWindow)
		}
	}
	if c.RateLimits.MaxScopes < 0 {
		return fmt.Errorf("invalid rate_limits.max_scopes: %d", c.RateLimits.MaxScopes)
	}

	if c.AttemptLog.Enabled && c.AttemptLog.DatabaseURL == "" {
		return fmt.Errorf("attempt_log.database_url is required when attempt_log is enabled")
	}
	if c.AttemptLog.QueueSize < 0 || c.AttemptLog.BatchSize < 0 || c.AttemptLog.FlushInterval < 0 {
		return fmt.Errorf("attempt_log: queue_size, batch_size and flush_interval must not be negative")
	}

	if !strings.HasPrefix(c.Monitoring.HealthCheckPath, "/") {
		return fmt.Errorf("invalid health_check_path: %s (must start with /)", c.Monitoring.HealthCheckPath)
	}
	if _, err := cron.ParseStandard(c.Monitoring.RefreshSchedule); err != nil {
		return fmt.Errorf("invalid monitoring.refresh_schedule: %w", err)
	}

	return nil
}
