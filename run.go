package agentfailover

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mixaill76/agent_failover/internal/failover"
	"github.com/mixaill76/agent_failover/internal/provider"
)

type (
	// CredentialedOperation makes one model call with the resolved credential
	// (API key or access token) for the model's provider.
	CredentialedOperation[R any] = failover.CredentialedOperation[R]

	AgentEvent    = failover.AgentEvent
	ModelSwitch   = failover.ModelSwitch
	EventSink     = failover.EventSink
	State         = failover.State
	ModelAttempt  = failover.ModelAttempt
	ProviderError = provider.Error
)

// Model switch reasons carried by ModelSwitch.
const (
	ReasonRetryWithNextAuth = failover.ReasonRetryWithNextAuth
	ReasonWaitAndRetry      = failover.ReasonWaitAndRetry
	ReasonFailoverToNext    = failover.ReasonFailoverToNext
)

var (
	ErrUnknownAgent    = errors.New("no model chain configured for agent")
	ErrModelsExhausted = failover.ErrModelsExhausted
	ErrCompactAndRetry = failover.ErrCompactAndRetry
	ErrAborted         = failover.ErrAborted
)

// RunAgent runs op across the chain configured for agent. Every attempt waits
// on the limiter for scope (usually the chat ID) and is authenticated with the
// next profile of the model's provider. The returned State holds the attempt
// log; it is nil only for an unknown agent.
func RunAgent[R any](ctx context.Context, a *App, agent, scope string, emit EventSink, op CredentialedOperation[R]) (R, *State, error) {
	var zero R
	chain, ok := a.chains[agent]
	if !ok {
		return zero, nil, fmt.Errorf("%w: %q", ErrUnknownAgent, agent)
	}

	state := failover.NewState(chain)
	state.MaxAttempts = a.cfg.Failover.MaxAttempts

	routed := failover.WithModelProviders(a.profiles, a.tokens, a.cfg.Failover.ModelProviders, op)
	result, err := failover.Run(ctx, a.orch, state, emit, failover.WithRateLimit(a.limiter, scope, routed))
	return result, state, err
}

// FromHTTPResponse classifies a failed provider HTTP response so the failover
// loop can choose how to react. Return the result from the operation.
func FromHTTPResponse(providerName string, statusCode int, header http.Header, body []byte) *ProviderError {
	return provider.FromHTTPResponse(providerName, statusCode, header, body)
}

// FromError classifies an error returned by a provider SDK or transport.
func FromError(providerName string, err error) *ProviderError {
	return provider.FromError(providerName, err)
}
