package testhelpers

import (
	"time"

	"github.com/mixaill76/agent_failover/internal/config"
)

// NewTestConfig returns a normalized config with one chain and one API key
// profile per provider.
func NewTestConfig() *config.Config {
	cfg := &config.Config{
		Failover: config.FailoverConfig{
			Models: map[string]config.ModelChainConfig{
				"assistant": {Primary: "claude-sonnet", Fallbacks: []string{"gpt-4o", "gemini-flash"}},
			},
			ModelProviders: map[string]string{
				"claude-sonnet": "anthropic",
				"gpt-4o":        "openai",
			},
		},
		Auth: config.AuthConfig{
			Cooldown: time.Minute,
			Profiles: []config.ProfileConfig{
				NewTestProfileConfig("anthropic-1", "anthropic", "sk-ant-1"),
				NewTestProfileConfig("openai-1", "openai", "sk-1"),
			},
		},
	}
	cfg.Normalize()
	return cfg
}

// NewTestProfileConfig builds an API key profile.
func NewTestProfileConfig(id, provider, apiKey string) config.ProfileConfig {
	return config.ProfileConfig{
		ID:       id,
		Provider: provider,
		Type:     config.CredentialTypeAPIKey,
		APIKey:   apiKey,
	}
}

// NewTestMonitoringConfig creates a test monitoring configuration.
func NewTestMonitoringConfig(healthPath string) *config.MonitoringConfig {
	return &config.MonitoringConfig{
		PrometheusEnabled: false,
		HealthCheckPath:   healthPath,
		RefreshSchedule:   config.DefaultRefreshSchedule,
	}
}
