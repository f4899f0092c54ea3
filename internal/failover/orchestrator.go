package failover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mixaill76/agent_failover/internal/logger"
	"github.com/mixaill76/agent_failover/internal/monitoring"
)

var (
	ErrModelsExhausted = errors.New("All models exhausted")
	ErrCompactAndRetry = errors.New("context length exceeded - compact and retry")
	ErrAborted         = errors.New("aborting due to error")
)

// maxLoggedErrorLength bounds provider error text in log lines.
const maxLoggedErrorLength = 500

// Operation performs one call against modelID. It may be invoked many times.
type Operation[R any] func(ctx context.Context, modelID string) (R, error)

// AttemptObserver is notified after every recorded attempt. attempt is the
// 1-based position in the call's attempt log. It must not block.
type AttemptObserver interface {
	ObserveAttempt(callID string, attempt int, a ModelAttempt)
}

type callIDKey struct{}

// CallIDFromContext returns the call ID the orchestrator attached to ctx.
func CallIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callIDKey{}).(string)
	return id, ok
}

// Orchestrator carries the collaborators of the retry loop. The zero value is
// not usable; use New.
type Orchestrator struct {
	logger   *slog.Logger
	metrics  *monitoring.Metrics
	observer AttemptObserver
	wait     func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

func WithObserver(observer AttemptObserver) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// WithWaitFunc replaces the sleep used by WaitAndRetry.
func WithWaitFunc(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if wait != nil {
			o.wait = wait
		}
	}
}

func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		wait:   sleepCtx,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var defaultOrchestrator = New()

// ExecuteWithFailover runs op over state's chain with a default orchestrator.
func ExecuteWithFailover[R any](ctx context.Context, state *State, emit EventSink, op Operation[R]) (R, error) {
	return Run(ctx, defaultOrchestrator, state, emit, op)
}

// Run drives op across the chain in state until one attempt succeeds or a
// terminal condition is reached. Every attempt is recorded in state before any
// model switch is emitted. emit may be nil.
func Run[R any](ctx context.Context, o *Orchestrator, state *State, emit EventSink, op Operation[R]) (R, error) {
	var zero R
	if o == nil {
		o = defaultOrchestrator
	}
	if emit == nil {
		emit = func(AgentEvent) {}
	}

	callID := uuid.NewString()
	ctx = context.WithValue(ctx, callIDKey{}, callID)
	log := o.logger.With("call_id", callID, "chain", state.Chain().String())

	var lastErr error
	for state.CurrentModelIndex < state.TotalModels() {
		model := state.CurrentModel()
		if err := ctx.Err(); err != nil {
			return zero, o.cancelled(log, model, err)
		}

		start := o.now()
		result, err := op(ctx, model)
		elapsed := o.now().Sub(start)

		state.RecordAttempt(err, elapsed)
		o.observe(callID, state)
		o.metrics.RecordAttempt(model, err == nil, elapsed)

		if err == nil {
			log.Debug("Model call succeeded",
				"model", model,
				"attempts", len(state.AttemptedModels),
				"duration", elapsed,
			)
			return result, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, o.cancelled(log, model, ctxErr)
		}

		action := ClassifyError(err)
		log.Debug("Model call failed",
			"model", model,
			"action", action.String(),
			"error", logger.TruncateErrorMessage(err.Error(), maxLoggedErrorLength),
		)

		switch action.Kind {
		case ActionRetryWithNextAuth:
			if !o.switchModel(log, state, emit, model, ReasonRetryWithNextAuth) {
				return zero, o.exhausted(log, state, model, err)
			}

		case ActionWaitAndRetry:
			o.metrics.RecordRateLimitWait("retry_after", action.Wait)
			log.Info("Rate limited, waiting before retry",
				"model", model,
				"wait", action.Wait,
			)
			if waitErr := o.wait(ctx, action.Wait); waitErr != nil {
				return zero, o.cancelled(log, model, waitErr)
			}
			if state.CanRetryCurrentModel() {
				continue
			}
			o.switchModel(log, state, emit, model, ReasonWaitAndRetry)

		case ActionCompactAndRetry:
			o.metrics.RecordTerminalFailure("compact_and_retry")
			log.Warn("Context too large, returning to caller for compaction",
				"model", model,
				"error", logger.TruncateErrorMessage(err.Error(), maxLoggedErrorLength),
			)
			return zero, fmt.Errorf("%w: %w", ErrCompactAndRetry, err)

		case ActionFailoverToNext:
			if !o.switchModel(log, state, emit, model, ReasonFailoverToNext) {
				return zero, o.exhausted(log, state, model, err)
			}

		default:
			o.metrics.RecordTerminalFailure("abort")
			log.Error("Aborting model call",
				"model", model,
				"error", logger.TruncateErrorMessage(err.Error(), maxLoggedErrorLength),
			)
			return zero, fmt.Errorf("%w: %w", ErrAborted, err)
		}
	}

	last := state.chain.Primary()
	if a, ok := state.LastAttempt(); ok {
		last = a.ModelID
	}
	return zero, o.exhausted(log, state, last, lastErr)
}

// switchModel advances state and emits the switch. It returns false, emitting
// nothing, when no model is left.
func (o *Orchestrator) switchModel(log *slog.Logger, state *State, emit EventSink, from, reason string) bool {
	to, ok := state.Advance()
	if !ok {
		return false
	}
	o.metrics.RecordModelSwitch(from, to, reason)
	log.Warn("Switching model",
		"from", from,
		"to", to,
		"reason", reason,
	)
	emit(ModelSwitch{From: from, To: to, Reason: reason})
	return true
}

func (o *Orchestrator) exhausted(log *slog.Logger, state *State, last string, cause error) error {
	o.metrics.RecordTerminalFailure("exhausted")
	log.Error("All models exhausted",
		"total_models", state.TotalModels(),
		"last_model", last,
		"attempts", len(state.AttemptedModels),
	)
	if cause == nil {
		return fmt.Errorf("%w after %d models (last: %s)", ErrModelsExhausted, state.TotalModels(), last)
	}
	return fmt.Errorf("%w after %d models (last: %s): %w", ErrModelsExhausted, state.TotalModels(), last, cause)
}

func (o *Orchestrator) cancelled(log *slog.Logger, model string, err error) error {
	o.metrics.RecordTerminalFailure("cancelled")
	log.Info("Model call cancelled", "model", model, "error", err)
	return fmt.Errorf("failover cancelled on model %s: %w", model, err)
}

func (o *Orchestrator) observe(callID string, state *State) {
	if o.observer == nil {
		return
	}
	a, _ := state.LastAttempt()
	o.observer.ObserveAttempt(callID, len(state.AttemptedModels), a)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
