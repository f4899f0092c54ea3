package ratelimit

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mixaill76/agent_failover/internal/config"
)

// RetentionHorizon is how long request timestamps are kept. Windows longer
// than this cannot be enforced.
const RetentionHorizon = 60 * time.Second

// RateLimit allows MaxRequests within any trailing Window.
// MaxRequests <= 0 means unlimited.
type RateLimit struct {
	MaxRequests int
	Window      time.Duration
}

func (r RateLimit) unlimited() bool {
	return r.MaxRequests <= 0 || r.Window <= 0
}

func (r RateLimit) String() string {
	if r.unlimited() {
		return "unlimited"
	}
	return fmt.Sprintf("%d/%s", r.MaxRequests, r.Window)
}

// Config holds the process-wide budget and the per-conversation budget.
type Config struct {
	Global  RateLimit
	PerChat RateLimit
}

func (c Config) Validate() error {
	for name, l := range map[string]RateLimit{"global": c.Global, "per_chat": c.PerChat} {
		if l.unlimited() {
			continue
		}
		if l.Window > RetentionHorizon {
			return fmt.Errorf("%s window %s exceeds retention horizon %s", name, l.Window, RetentionHorizon)
		}
	}
	return nil
}

var presets = map[string]Config{
	"default": {
		Global:  RateLimit{MaxRequests: 30, Window: time.Second},
		PerChat: RateLimit{MaxRequests: 1, Window: time.Second},
	},
	"telegram": {
		Global:  RateLimit{MaxRequests: 30, Window: time.Second},
		PerChat: RateLimit{MaxRequests: 1, Window: time.Second},
	},
	"googlechat": {
		Global:  RateLimit{MaxRequests: 10, Window: time.Second},
		PerChat: RateLimit{MaxRequests: 1, Window: time.Second},
	},
	"teams": {
		Global:  RateLimit{MaxRequests: 50, Window: time.Second},
		PerChat: RateLimit{MaxRequests: 7, Window: time.Second},
	},
	"twitch": {
		Global:  RateLimit{MaxRequests: 20, Window: 30 * time.Second},
		PerChat: RateLimit{MaxRequests: 20, Window: 30 * time.Second},
	},
	"imessage": {
		Global:  RateLimit{MaxRequests: 10, Window: time.Second},
		PerChat: RateLimit{MaxRequests: 1, Window: time.Second},
	},
}

// PresetFor returns the built-in limits for a chat platform (case-insensitive).
func PresetFor(platform string) (Config, bool) {
	cfg, ok := presets[strings.ToLower(strings.TrimSpace(platform))]
	return cfg, ok
}

// DefaultConfig is the preset used when no platform is configured.
func DefaultConfig() Config {
	return presets["default"]
}

// PresetNames lists the known platform presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromConfig resolves the rate_limits section: the platform preset (or the
// default preset) with any explicit global/per_chat overrides applied on top.
func FromConfig(cfg config.RateLimitsConfig) (Config, error) {
	limits := DefaultConfig()
	if cfg.Platform != "" {
		preset, ok := PresetFor(cfg.Platform)
		if !ok {
			return Config{}, fmt.Errorf("unknown rate limit platform %q (known: %s)", cfg.Platform, strings.Join(PresetNames(), ", "))
		}
		limits = preset
	}
	if cfg.Global != nil {
		limits.Global = RateLimit{MaxRequests: cfg.Global.MaxRequests, Window: cfg.Global.Window}
	}
	if cfg.PerChat != nil {
		limits.PerChat = RateLimit{MaxRequests: cfg.PerChat.MaxRequests, Window: cfg.PerChat.Window}
	}
	if err := limits.Validate(); err != nil {
		return Config{}, err
	}
	return limits, nil
}
