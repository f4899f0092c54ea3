package failover

import (
	"fmt"
	"time"

	"github.com/mixaill76/agent_failover/internal/provider"
)

// DefaultRateLimitWait is used when a rate limit response carries no retry-after.
const DefaultRateLimitWait = 5 * time.Second

type ActionKind int

const (
	ActionAbort ActionKind = iota
	ActionRetryWithNextAuth
	ActionWaitAndRetry
	ActionCompactAndRetry
	ActionFailoverToNext
)

func (k ActionKind) String() string {
	switch k {
	case ActionRetryWithNextAuth:
		return "retry_with_next_auth"
	case ActionWaitAndRetry:
		return "wait_and_retry"
	case ActionCompactAndRetry:
		return "compact_and_retry"
	case ActionFailoverToNext:
		return "failover_to_next"
	case ActionAbort:
		return "abort"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Action is what the retry loop does next. Wait is set only for ActionWaitAndRetry.
type Action struct {
	Kind ActionKind
	Wait time.Duration
}

func (a Action) String() string {
	if a.Kind == ActionWaitAndRetry {
		return fmt.Sprintf("%s(%s)", a.Kind, a.Wait)
	}
	return a.Kind.String()
}

// ClassifyError maps any error to an action. Errors that are not already a
// *provider.Error are translated with provider.FromError first.
func ClassifyError(err error) Action {
	if err == nil {
		return Action{Kind: ActionAbort}
	}
	return Classify(provider.FromError("", err))
}

// Classify is the fixed error policy. Kinds it does not know abort.
func Classify(err *provider.Error) Action {
	if err == nil {
		return Action{Kind: ActionAbort}
	}
	switch err.Kind {
	case provider.KindAuthenticationFailed, provider.KindNetworkError:
		return Action{Kind: ActionRetryWithNextAuth}
	case provider.KindRateLimited:
		wait := DefaultRateLimitWait
		if err.HasRetryAfter() {
			wait = err.RetryAfter
		}
		return Action{Kind: ActionWaitAndRetry, Wait: wait}
	case provider.KindContextLengthExceeded, provider.KindInvalidRequest:
		return Action{Kind: ActionCompactAndRetry}
	case provider.KindModelNotFound, provider.KindServerError, provider.KindStreamClosed:
		return Action{Kind: ActionFailoverToNext}
	default:
		return Action{Kind: ActionAbort}
	}
}
