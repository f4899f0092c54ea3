package authprofile

import (
	"fmt"
	"os"

	"github.com/mixaill76/agent_failover/internal/config"
)

// NewManagerFromConfig builds a manager holding every configured profile.
// Service account credentials given as a file are read here.
func NewManagerFromConfig(cfg config.AuthConfig) (*Manager, error) {
	m := NewManager(cfg.Cooldown)
	for i, pc := range cfg.Profiles {
		p, err := profileFromConfig(pc)
		if err != nil {
			return nil, fmt.Errorf("auth profile %d (%s): %w", i, pc.Provider, err)
		}
		if _, err := m.AddProfile(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func profileFromConfig(pc config.ProfileConfig) (Profile, error) {
	p := Profile{
		ID:         pc.ID,
		ProviderID: pc.Provider,
		Type:       pc.Type,
		Status:     StatusGood,
	}

	switch pc.Type {
	case "", TypeAPIKey:
		p.Type = TypeAPIKey
		p.Secret = pc.APIKey
	case TypeServiceAccount:
		if pc.CredentialsJSON != "" {
			p.Secret = pc.CredentialsJSON
			break
		}
		data, err := os.ReadFile(pc.CredentialsFile)
		if err != nil {
			return Profile{}, fmt.Errorf("failed to read credentials file %s: %w", pc.CredentialsFile, err)
		}
		p.Secret = string(data)
	default:
		return Profile{}, fmt.Errorf("unsupported type %q", pc.Type)
	}
	return p, nil
}
