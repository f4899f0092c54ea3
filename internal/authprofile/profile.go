package authprofile

import (
	"time"

	"github.com/mixaill76/agent_failover/internal/config"
)

// Status is the health of a single credential profile.
type Status string

const (
	StatusGood        Status = "good"
	StatusRateLimited Status = "rate_limited"
	StatusAuthFailed  Status = "auth_failed"
	StatusUnknown     Status = "unknown"
)

func (s Status) String() string {
	return string(s)
}

const (
	TypeAPIKey         = config.CredentialTypeAPIKey
	TypeServiceAccount = config.CredentialTypeServiceAccount
)

// Profile is one rotatable credential for a provider. Secret holds the API key,
// or the service account JSON for TypeServiceAccount. Zero LastUsed and
// CooldownUntil mean unset.
type Profile struct {
	ID            string
	ProviderID    string
	Type          string
	Secret        string
	Status        Status
	LastUsed      time.Time
	CooldownUntil time.Time
}

// IsAvailable reports whether the profile can be handed out at now.
func (p Profile) IsAvailable(now time.Time) bool {
	if p.Status != StatusGood {
		return false
	}
	return p.CooldownUntil.IsZero() || !p.CooldownUntil.After(now)
}

// cooldownElapsed reports whether a cooldown was set and has passed.
func (p Profile) cooldownElapsed(now time.Time) bool {
	return !p.CooldownUntil.IsZero() && !p.CooldownUntil.After(now)
}
