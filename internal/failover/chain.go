package failover

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mixaill76/agent_failover/internal/config"
)

var ErrEmptyChain = errors.New("model chain requires a primary model")

// ModelChain is an immutable, non-empty list of model IDs: the primary first,
// then fallbacks in priority order. Copies share nothing mutable.
type ModelChain struct {
	models []string
}

func NewModelChain(primary string, fallbacks ...string) (ModelChain, error) {
	if strings.TrimSpace(primary) == "" {
		return ModelChain{}, ErrEmptyChain
	}
	models := make([]string, 0, len(fallbacks)+1)
	models = append(models, primary)
	for i, fb := range fallbacks {
		if strings.TrimSpace(fb) == "" {
			return ModelChain{}, fmt.Errorf("model chain: fallback %d is empty", i)
		}
		models = append(models, fb)
	}
	return ModelChain{models: models}, nil
}

// ChainsFromConfig builds one chain per configured agent.
func ChainsFromConfig(models map[string]config.ModelChainConfig) (map[string]ModelChain, error) {
	chains := make(map[string]ModelChain, len(models))
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := models[name]
		chain, err := NewModelChain(c.Primary, c.Fallbacks...)
		if err != nil {
			return nil, fmt.Errorf("failover.models.%s: %w", name, err)
		}
		chains[name] = chain
	}
	return chains, nil
}

func (c ModelChain) Primary() string {
	if len(c.models) == 0 {
		return ""
	}
	return c.models[0]
}

func (c ModelChain) Fallbacks() []string {
	if len(c.models) < 2 {
		return nil
	}
	return append([]string(nil), c.models[1:]...)
}

// Models returns the flattened chain, primary first.
func (c ModelChain) Models() []string {
	return append([]string(nil), c.models...)
}

func (c ModelChain) Len() int {
	return len(c.models)
}

func (c ModelChain) String() string {
	return strings.Join(c.models, " -> ")
}
