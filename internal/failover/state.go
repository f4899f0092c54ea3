package failover

import (
	"fmt"
	"strings"
	"time"
)

const DefaultMaxAttempts = 3

// ModelAttempt is one physical call. Error is the rendered message, empty on success.
type ModelAttempt struct {
	ModelID  string
	Error    string
	Duration time.Duration
}

func (a ModelAttempt) Failed() bool {
	return a.Error != ""
}

// State tracks one orchestrated call. It is owned by a single goroutine.
type State struct {
	AttemptedModels   []ModelAttempt
	CurrentModelIndex int
	MaxAttempts       int

	chain     ModelChain
	allModels []string
}

func NewState(chain ModelChain) *State {
	return &State{
		AttemptedModels: make([]ModelAttempt, 0, chain.Len()),
		MaxAttempts:     DefaultMaxAttempts,
		chain:           chain,
		allModels:       chain.Models(),
	}
}

func (s *State) Chain() ModelChain {
	return s.chain
}

// CurrentModel returns the targeted model, or the primary once the index has
// run past the end of the chain.
func (s *State) CurrentModel() string {
	if s.CurrentModelIndex >= 0 && s.CurrentModelIndex < len(s.allModels) {
		return s.allModels[s.CurrentModelIndex]
	}
	return s.chain.Primary()
}

// Advance moves to the next model. ok is false when the chain is exhausted.
func (s *State) Advance() (string, bool) {
	s.CurrentModelIndex++
	if s.CurrentModelIndex < len(s.allModels) {
		return s.allModels[s.CurrentModelIndex], true
	}
	return "", false
}

// RecordAttempt appends an attempt for the current model.
func (s *State) RecordAttempt(err error, d time.Duration) {
	attempt := ModelAttempt{
		ModelID:  s.CurrentModel(),
		Duration: d,
	}
	if err != nil {
		attempt.Error = err.Error()
	}
	s.AttemptedModels = append(s.AttemptedModels, attempt)
}

// CanRetryCurrentModel reports whether fewer than MaxAttempts attempts have
// been logged for the current model.
func (s *State) CanRetryCurrentModel() bool {
	current := s.CurrentModel()
	count := 0
	for _, a := range s.AttemptedModels {
		if a.ModelID == current {
			count++
		}
	}
	return count < s.MaxAttempts
}

func (s *State) TotalModels() int {
	return len(s.allModels)
}

func (s *State) Exhausted() bool {
	return s.CurrentModelIndex >= len(s.allModels)
}

// LastAttempt returns the most recent attempt, if any.
func (s *State) LastAttempt() (ModelAttempt, bool) {
	if len(s.AttemptedModels) == 0 {
		return ModelAttempt{}, false
	}
	return s.AttemptedModels[len(s.AttemptedModels)-1], true
}

// Summary renders the attempt log, one line per attempt.
func (s *State) Summary() string {
	if len(s.AttemptedModels) == 0 {
		return "no attempts"
	}
	var b strings.Builder
	for i, a := range s.AttemptedModels {
		if i > 0 {
			b.WriteByte('\n')
		}
		outcome := "ok"
		if a.Failed() {
			outcome = a.Error
		}
		fmt.Fprintf(&b, "%d. %s (%s): %s", i+1, a.ModelID, a.Duration.Round(time.Millisecond), outcome)
	}
	return b.String()
}
