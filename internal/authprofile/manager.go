package authprofile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mixaill76/agent_failover/internal/monitoring"
)

var (
	ErrNoProfileAvailable = errors.New("no auth profile available")
	ErrProfileNotFound    = errors.New("auth profile not found")
)

// Manager owns the credential profiles of every provider and hands them out
// round-robin, skipping profiles in cooldown. Expired cooldowns are healed
// lazily on selection. The mutex is only held for in-memory updates.
type Manager struct {
	mu       sync.Mutex
	profiles map[string][]*Profile
	cursors  map[string]int
	cooldown time.Duration

	nowFunc func() time.Time
	logger  *slog.Logger
	metrics *monitoring.Metrics
}

func NewManager(cooldown time.Duration) *Manager {
	return &Manager{
		profiles: make(map[string][]*Profile),
		cursors:  make(map[string]int),
		cooldown: cooldown,
		nowFunc:  time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (m *Manager) SetLogger(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

func (m *Manager) SetMetrics(metrics *monitoring.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// Cooldown returns how long a failed profile is excluded from selection.
func (m *Manager) Cooldown() time.Duration {
	return m.cooldown
}

// AddProfile appends p to its provider's pool and returns its ID.
// An empty ID is replaced by a generated one; an empty status means good.
func (m *Manager) AddProfile(p Profile) (string, error) {
	if p.ProviderID == "" {
		return "", fmt.Errorf("auth profile: provider id is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusGood
	}
	if p.Type == "" {
		p.Type = TypeAPIKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findLocked(p.ProviderID, p.ID) != nil {
		return "", fmt.Errorf("auth profile %s: duplicate id for provider %s", p.ID, p.ProviderID)
	}
	m.profiles[p.ProviderID] = append(m.profiles[p.ProviderID], &p)
	if _, ok := m.cursors[p.ProviderID]; !ok {
		m.cursors[p.ProviderID] = 0
	}
	m.updateAvailableLocked(p.ProviderID, m.nowFunc())

	m.logger.Debug("Auth profile added",
		"provider", p.ProviderID,
		"profile", p.ID,
		"type", p.Type,
	)
	return p.ID, nil
}

// NextKey returns the next available profile for providerID in round-robin
// order. The returned value is a copy.
func (m *Manager) NextKey(providerID string) (Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	list := m.profiles[providerID]

	for _, p := range list {
		if p.cooldownElapsed(now) {
			m.logger.Info("Auth profile cooldown expired, restoring",
				"provider", providerID,
				"profile", p.ID,
				"previous_status", p.Status,
			)
			p.Status = StatusGood
			p.CooldownUntil = time.Time{}
		}
	}

	n := len(list)
	start := m.cursors[providerID]
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if list[idx].IsAvailable(now) {
			m.cursors[providerID] = (idx + 1) % n
			return *list[idx], true
		}
	}

	m.cursors[providerID] = 0
	if n > 0 {
		m.logger.Warn("No auth profile available",
			"provider", providerID,
			"total", n,
		)
	}
	return Profile{}, false
}

// MarkGood records a successful use of the profile and clears any cooldown.
func (m *Manager) MarkGood(providerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.findLocked(providerID, id)
	if p == nil {
		return fmt.Errorf("%w: %s/%s", ErrProfileNotFound, providerID, id)
	}
	now := m.nowFunc()
	p.Status = StatusGood
	p.LastUsed = now
	p.CooldownUntil = time.Time{}
	m.updateAvailableLocked(providerID, now)
	return nil
}

// MarkFailed sets the profile's status and starts its cooldown.
func (m *Manager) MarkFailed(providerID, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.findLocked(providerID, id)
	if p == nil {
		return fmt.Errorf("%w: %s/%s", ErrProfileNotFound, providerID, id)
	}
	now := m.nowFunc()
	p.Status = status
	p.CooldownUntil = now.Add(m.cooldown)

	m.metrics.RecordProfileCooldown(providerID, status.String())
	m.updateAvailableLocked(providerID, now)
	m.logger.Warn("Auth profile put into cooldown",
		"provider", providerID,
		"profile", id,
		"status", status,
		"cooldown_until", p.CooldownUntil,
	)
	return nil
}

// AvailableCount counts profiles that NextKey could return now, including
// ones whose cooldown has elapsed but have not been healed yet.
func (m *Manager) AvailableCount(providerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableLocked(providerID, m.nowFunc())
}

func (m *Manager) TotalCount(providerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles[providerID])
}

func (m *Manager) ProfileIDs(providerID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.profiles[providerID]))
	for _, p := range m.profiles[providerID] {
		ids = append(ids, p.ID)
	}
	return ids
}

// Snapshot copies the provider's profiles with secrets removed.
func (m *Manager) Snapshot(providerID string) []Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Profile, 0, len(m.profiles[providerID]))
	for _, p := range m.profiles[providerID] {
		cp := *p
		cp.Secret = ""
		out = append(out, cp)
	}
	return out
}

// Providers lists provider IDs with at least one profile, sorted.
func (m *Manager) Providers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	providers := make([]string, 0, len(m.profiles))
	for id := range m.profiles {
		providers = append(providers, id)
	}
	sort.Strings(providers)
	return providers
}

// RefreshMetrics pushes the available-profile gauge for every provider.
func (m *Manager) RefreshMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	for providerID := range m.profiles {
		m.updateAvailableLocked(providerID, now)
	}
}

func (m *Manager) findLocked(providerID, id string) *Profile {
	for _, p := range m.profiles[providerID] {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *Manager) availableLocked(providerID string, now time.Time) int {
	count := 0
	for _, p := range m.profiles[providerID] {
		if p.IsAvailable(now) || p.cooldownElapsed(now) {
			count++
		}
	}
	return count
}

func (m *Manager) updateAvailableLocked(providerID string, now time.Time) {
	m.metrics.UpdateProfilesAvailable(providerID, m.availableLocked(providerID, now))
}
