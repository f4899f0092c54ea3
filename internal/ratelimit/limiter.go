package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/mixaill76/agent_failover/internal/monitoring"
	"github.com/mixaill76/agent_failover/internal/utils"
)

// DefaultMaxScopes bounds how many per-chat buckets are tracked at once.
const DefaultMaxScopes = 10000

// GlobalScope is the scope key for calls that are not tied to a conversation.
// A retry-after deadline stored under it applies to every scope.
const GlobalScope = ""

const (
	bucketGlobal = "global"
	bucketChat   = "chat"
	bucketScopes = "scopes"
)

var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Limiter is a sliding-window limiter with one global bucket and one bucket
// per scope (usually a chat ID), plus server-imposed retry-after deadlines.
//
// Check-and-record happens under a single write lock so the configured
// ceiling holds under concurrency. Waiting never happens with the lock held.
type Limiter struct {
	mu         sync.RWMutex
	config     Config
	global     []time.Time
	scopes     *lru.Cache[string, []time.Time]
	maxScopes  int
	retryAfter *xsync.Map[string, time.Time]

	nowFunc func() time.Time
	metrics *monitoring.Metrics
	logger  *slog.Logger
}

// New creates a limiter. maxScopes <= 0 uses DefaultMaxScopes. When the bound
// is reached the least recently used scope is forgotten, but only once its
// bucket has nothing left inside the per-chat window; until then new scopes
// are held back.
func New(cfg Config, maxScopes int) *Limiter {
	if maxScopes <= 0 {
		maxScopes = DefaultMaxScopes
	}
	scopes, err := lru.New[string, []time.Time](maxScopes)
	if err != nil {
		// Only possible for a non-positive size, excluded above.
		panic("ratelimit.New: " + err.Error())
	}

	return &Limiter{
		config:     cfg,
		global:     make([]time.Time, 0),
		scopes:     scopes,
		maxScopes:  maxScopes,
		retryAfter: xsync.NewMap[string, time.Time](),
		nowFunc:    time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (l *Limiter) SetLogger(logger *slog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = logger
}

func (l *Limiter) SetMetrics(m *monitoring.Metrics) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = m
}

func (l *Limiter) Config() Config {
	return l.config
}

// TryAcquire records a request for scope if both the global bucket and the
// scope bucket have room. On rejection nothing is recorded.
func (l *Limiter) TryAcquire(scope string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if wait, bucket := l.waitLocked(scope, now); wait > 0 {
		l.metrics.RecordRateLimitRejected(bucket)
		return ErrRateLimitExceeded
	}
	l.recordLocked(scope, now)
	return nil
}

// Acquire blocks until a request for scope may proceed and records it.
// A pending retry-after deadline for scope (or for GlobalScope) is honored
// first, regardless of window occupancy. Returns ctx.Err() if cancelled
// while waiting; nothing is recorded in that case.
func (l *Limiter) Acquire(ctx context.Context, scope string) error {
	for {
		// Re-checked every round: a deadline may arrive while waiting on the window.
		if err := l.waitRetryAfter(ctx, scope); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.nowFunc()
		wait, bucket := l.waitLocked(scope, now)
		if wait <= 0 {
			l.recordLocked(scope, now)
			l.mu.Unlock()
			return nil
		}
		logger, metrics := l.logger, l.metrics
		l.mu.Unlock()

		metrics.RecordRateLimitRejected(bucket)
		metrics.RecordRateLimitWait("window", wait)
		logger.Debug("Rate limit window saturated, waiting",
			"scope", scope,
			"bucket", bucket,
			"wait", wait,
		)

		// Another caller may take the freed slot first; re-check after waking.
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// HandleRetryAfter folds a server-supplied Retry-After into the limiter as an
// absolute deadline for scope. A later deadline replaces an earlier one, never
// the other way around.
func (l *Limiter) HandleRetryAfter(d time.Duration, scope string) {
	if d <= 0 {
		return
	}
	deadline := l.nowFunc().Add(d)
	l.retryAfter.Compute(scope, func(old time.Time, loaded bool) (time.Time, xsync.ComputeOp) {
		if loaded && old.After(deadline) {
			return old, xsync.CancelOp
		}
		return deadline, xsync.UpdateOp
	})

	l.mu.RLock()
	logger := l.logger
	l.mu.RUnlock()
	logger.Info("Retry-after recorded",
		"scope", scope,
		"retry_after", d,
		"deadline", deadline,
	)
}

func (l *Limiter) ClearRetryAfter(scope string) {
	l.retryAfter.Delete(scope)
}

// RetryAfterDeadline returns the pending deadline for scope, if any.
func (l *Limiter) RetryAfterDeadline(scope string) (time.Time, bool) {
	deadline, ok := l.retryAfter.Load(scope)
	if !ok || !deadline.After(l.nowFunc()) {
		return time.Time{}, false
	}
	return deadline, true
}

// GetRequestCount returns how many requests are inside the global window and
// inside scope's per-chat window right now.
func (l *Limiter) GetRequestCount(scope string) (global int, perScope int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.nowFunc()
	global = countInWindow(l.global, l.config.Global.Window, now)
	if scope != GlobalScope {
		if ts, ok := l.scopes.Peek(scope); ok {
			perScope = countInWindow(ts, l.config.PerChat.Window, now)
		}
	}
	return global, perScope
}

// Scopes lists the per-chat scopes currently tracked, oldest first.
func (l *Limiter) Scopes() []string {
	return l.scopes.Keys()
}

func (l *Limiter) waitRetryAfter(ctx context.Context, scope string) error {
	now := l.nowFunc()
	var deadline time.Time
	for _, key := range retryAfterKeys(scope) {
		d, ok := l.retryAfter.Load(key)
		if !ok {
			continue
		}
		if !d.After(now) {
			l.expireRetryAfter(key, now)
			continue
		}
		deadline = utils.Later(deadline, d)
	}
	if deadline.IsZero() {
		return nil
	}

	wait := deadline.Sub(now)
	l.mu.RLock()
	logger, metrics := l.logger, l.metrics
	l.mu.RUnlock()

	metrics.RecordRateLimitWait("retry_after", wait)
	logger.Debug("Waiting for retry-after deadline",
		"scope", scope,
		"wait", wait,
	)
	return sleepCtx(ctx, wait)
}

func (l *Limiter) expireRetryAfter(key string, now time.Time) {
	l.retryAfter.Compute(key, func(old time.Time, loaded bool) (time.Time, xsync.ComputeOp) {
		if loaded && !old.After(now) {
			return old, xsync.DeleteOp
		}
		return old, xsync.CancelOp
	})
}

func retryAfterKeys(scope string) []string {
	if scope == GlobalScope {
		return []string{GlobalScope}
	}
	return []string{scope, GlobalScope}
}

// waitLocked returns how long until one more request fits in every bucket
// that scope touches, and the name of the bucket that forces the longest wait.
// Must be called with l.mu held.
func (l *Limiter) waitLocked(scope string, now time.Time) (time.Duration, string) {
	wait := waitFor(l.global, l.config.Global, now)
	bucket := bucketGlobal

	if scope != GlobalScope {
		ts, tracked := l.scopes.Peek(scope)
		if chatWait := waitFor(ts, l.config.PerChat, now); chatWait > wait {
			wait = chatWait
			bucket = bucketChat
		}
		if !tracked {
			if evictWait := l.evictionWaitLocked(now); evictWait > wait {
				wait = evictWait
				bucket = bucketScopes
			}
		}
	}
	return wait, bucket
}

// evictionWaitLocked returns how long until a new scope can be tracked. A full
// store may only drop its least recently used scope once that scope has no
// timestamps inside the per-chat window; forgetting a live bucket would reset
// its count. Must be called with l.mu held.
func (l *Limiter) evictionWaitLocked(now time.Time) time.Duration {
	if l.config.PerChat.unlimited() || l.scopes.Len() < l.maxScopes {
		return 0
	}
	_, oldest, ok := l.scopes.GetOldest()
	if !ok || len(oldest) == 0 {
		return 0
	}
	return oldest[len(oldest)-1].Add(l.config.PerChat.Window).Sub(now)
}

// recordLocked appends now to the touched buckets and prunes entries past the
// retention horizon. Must be called with l.mu held (write).
func (l *Limiter) recordLocked(scope string, now time.Time) {
	l.global = prune(append(l.global, now), now)
	l.metrics.UpdateWindowRequests(bucketGlobal, countInWindow(l.global, l.config.Global.Window, now))
	if scope == GlobalScope {
		return
	}
	ts, _ := l.scopes.Get(scope)
	l.scopes.Add(scope, prune(append(ts, now), now))
}

// waitFor computes how long until the bucket admits one more request.
// ts is sorted oldest first.
func waitFor(ts []time.Time, limit RateLimit, now time.Time) time.Duration {
	if limit.unlimited() {
		return 0
	}
	inWindow := ts[firstAfter(ts, now.Add(-limit.Window)):]
	excess := len(inWindow) - limit.MaxRequests + 1
	if excess <= 0 {
		return 0
	}
	return inWindow[excess-1].Add(limit.Window).Sub(now)
}

func countInWindow(ts []time.Time, window time.Duration, now time.Time) int {
	if window <= 0 {
		window = RetentionHorizon
	}
	return len(ts) - firstAfter(ts, now.Add(-window))
}

// firstAfter returns the index of the first timestamp strictly after cutoff.
func firstAfter(ts []time.Time, cutoff time.Time) int {
	return sort.Search(len(ts), func(i int) bool {
		return ts[i].After(cutoff)
	})
}

func prune(ts []time.Time, now time.Time) []time.Time {
	i := firstAfter(ts, now.Add(-RetentionHorizon))
	if i == 0 {
		return ts
	}
	kept := make([]time.Time, 0, len(ts)-i+1)
	return append(kept, ts[i:]...)
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
