package failover

import (
	"context"

	"github.com/mixaill76/agent_failover/internal/authprofile"
	"github.com/mixaill76/agent_failover/internal/provider"
	"github.com/mixaill76/agent_failover/internal/ratelimit"
)

// CredentialedOperation is an Operation that also receives the resolved
// credential (API key or access token) to present to the provider.
type CredentialedOperation[R any] func(ctx context.Context, modelID, secret string) (R, error)

// WithAuthRotation picks a fresh profile for providerID on every attempt and
// feeds the outcome back into the manager. Auth and rate limit failures put
// the profile into cooldown. When no profile is available the attempt fails
// with an authentication error so the loop moves on. tokens may be nil, in
// which case the profile secret is used as is.
func WithAuthRotation[R any](manager *authprofile.Manager, tokens *authprofile.TokenCache, providerID string, op CredentialedOperation[R]) Operation[R] {
	return func(ctx context.Context, modelID string) (R, error) {
		var zero R

		profile, ok := manager.NextKey(providerID)
		if !ok {
			return zero, &provider.Error{
				Kind:     provider.KindAuthenticationFailed,
				Provider: providerID,
				Message:  "no auth profile available",
				Err:      authprofile.ErrNoProfileAvailable,
			}
		}

		secret := profile.Secret
		if tokens != nil {
			resolved, err := tokens.Resolve(ctx, profile)
			if err != nil {
				if ctx.Err() != nil {
					return zero, err
				}
				_ = manager.MarkFailed(providerID, profile.ID, authprofile.StatusAuthFailed)
				return zero, &provider.Error{
					Kind:     provider.KindAuthenticationFailed,
					Provider: providerID,
					Message:  "credential resolution failed",
					Err:      err,
				}
			}
			secret = resolved
		}

		result, err := op(ctx, modelID, secret)
		if err == nil {
			_ = manager.MarkGood(providerID, profile.ID)
			return result, nil
		}

		classified := provider.FromError(providerID, err)
		switch classified.Kind {
		case provider.KindAuthenticationFailed:
			_ = manager.MarkFailed(providerID, profile.ID, authprofile.StatusAuthFailed)
			if tokens != nil {
				tokens.Invalidate(profile)
			}
		case provider.KindRateLimited:
			_ = manager.MarkFailed(providerID, profile.ID, authprofile.StatusRateLimited)
		}
		return zero, classified
	}
}

// WithModelProviders rotates auth profiles from the pool of each model's
// provider, so a chain can cross providers. A model with no provider entry
// fails with ModelNotFound and the loop moves on.
func WithModelProviders[R any](manager *authprofile.Manager, tokens *authprofile.TokenCache, providers map[string]string, op CredentialedOperation[R]) Operation[R] {
	routed := make(map[string]Operation[R], len(providers))
	for modelID, providerID := range providers {
		routed[modelID] = WithAuthRotation(manager, tokens, providerID, op)
	}
	return func(ctx context.Context, modelID string) (R, error) {
		if attempt, ok := routed[modelID]; ok {
			return attempt(ctx, modelID)
		}
		var zero R
		return zero, provider.NewModelNotFound("", modelID)
	}
}

// WithRateLimit gates every attempt on limiter.Acquire for scope and folds
// retry-after hints from rate limited responses into the limiter.
func WithRateLimit[R any](limiter *ratelimit.Limiter, scope string, op Operation[R]) Operation[R] {
	return func(ctx context.Context, modelID string) (R, error) {
		var zero R
		if err := limiter.Acquire(ctx, scope); err != nil {
			return zero, err
		}

		result, err := op(ctx, modelID)
		if err != nil {
			if pe := provider.FromError("", err); pe.HasRetryAfter() {
				limiter.HandleRetryAfter(pe.RetryAfter, scope)
			}
		}
		return result, err
	}
}
