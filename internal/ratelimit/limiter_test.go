package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets window tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	return newBoundedTestLimiter(cfg, 0)
}

func newBoundedTestLimiter(cfg Config, maxScopes int) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(cfg, maxScopes)
	l.nowFunc = clock.Now
	return l, clock
}

func TestNew(t *testing.T) {
	l := New(DefaultConfig(), 0)

	assert.NotNil(t, l)
	assert.NotNil(t, l.scopes)
	assert.NotNil(t, l.retryAfter)
	assert.Equal(t, DefaultConfig(), l.Config())
}

func TestTryAcquire_PerScopeWindow(t *testing.T) {
	l, clock := newTestLimiter(Config{
		Global:  RateLimit{MaxRequests: 100, Window: 10 * time.Second},
		PerChat: RateLimit{MaxRequests: 1, Window: 10 * time.Second},
	})

	require.NoError(t, l.TryAcquire("chat-1"))
	assert.ErrorIs(t, l.TryAcquire("chat-1"), ErrRateLimitExceeded)

	// Other chats are independent
	assert.NoError(t, l.TryAcquire("chat-2"))

	clock.Advance(5 * time.Second)
	assert.ErrorIs(t, l.TryAcquire("chat-1"), ErrRateLimitExceeded)

	clock.Advance(5 * time.Second)
	assert.NoError(t, l.TryAcquire("chat-1"), "request should be admitted once the window has elapsed")
}

func TestTryAcquire_GlobalCeiling(t *testing.T) {
	l, _ := newTestLimiter(Config{
		Global:  RateLimit{MaxRequests: 3, Window: time.Second},
		PerChat: RateLimit{MaxRequests: 10, Window: time.Second},
	})

	assert.NoError(t, l.TryAcquire("a"))
	assert.NoError(t, l.TryAcquire("b"))
	assert.NoError(t, l.TryAcquire(GlobalScope))
	assert.ErrorIs(t, l.TryAcquire("c"), ErrRateLimitExceeded)
	assert.ErrorIs(t, l.TryAcquire(GlobalScope), ErrRateLimitExceeded)
}

func TestTryAcquire_RejectionRecordsNothing(t *testing.T) {
	l, _ := newTestLimiter(Config{
		Global:  RateLimit{MaxRequests: 10, Window: time.Second},
		PerChat: RateLimit{MaxRequests: 1, Window: time.Second},
	})

	require.NoError(t, l.TryAcquire("chat"))
	for i := 0; i < 5; i++ {
		assert.Error(t, l.TryAcquire("chat"))
	}

	global, perScope := l.GetRequestCount("chat")
	assert.Equal(t, 1, global)
	assert.Equal(t, 1, perScope)
}

func TestTryAcquire_Unlimited(t *testing.T) {
	l, _ := newTestLimiter(Config{})

	for i := 0; i < 1000; i++ {
		assert.NoError(t, l.TryAcquire("chat"), "request %d should be allowed when unlimited", i+1)
	}
}

func TestGetRequestCount(t *testing.T) {
	l, clock := newTestLimiter(Config{
		Global:  RateLimit{MaxRequests: 100, Window: 10 * time.Second},
		PerChat: RateLimit{MaxRequests: 100, Window: 2 * time.Second},
	})

	global, perScope := l.GetRequestCount("chat")
	assert.Zero(t, global)
	assert.Zero(t, perScope)

	l.TryAcquire("chat")
	l.TryAcquire("chat")
	l.TryAcquire("other")

	global, perScope = l.GetRequestCount("chat")
	assert.Equal(t, 3, global)
	assert.Equal(t, 2, perScope)

	clock.Advance(3 * time.Second)
	global, perScope = l.GetRequestCount("chat")
	assert.Equal(t, 3, global, "still inside the 10s global window")
	assert.Zero(t, perScope, "outside the 2s per-chat window")
}

func TestRecord_PrunesPastRetentionHorizon(t *testing.T) {
	l, clock := newTestLimiter(Config{})

	l.TryAcquire("chat")
	l.TryAcquire("chat")
	l.TryAcquire("chat")

	clock.Advance(RetentionHorizon + time.Second)
	l.TryAcquire("chat")

	l.mu.RLock()
	defer l.mu.RUnlock()
	assert.Len(t, l.global, 1)
	ts, ok := l.scopes.Peek("chat")
	require.True(t, ok)
	assert.Len(t, ts, 1)
}

func TestWaitFor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	limit := RateLimit{MaxRequests: 2, Window: 10 * time.Second}

	ts := []time.Time{
		now.Add(-9 * time.Second),
		now.Add(-4 * time.Second),
	}
	assert.Equal(t, time.Second, waitFor(ts, limit, now), "oldest request leaves the window in 1s")

	assert.Zero(t, waitFor(ts[:1], limit, now))
	assert.Zero(t, waitFor(ts, RateLimit{}, now))

	// Entries exactly on the window edge no longer count
	edge := []time.Time{now.Add(-10 * time.Second), now.Add(-1 * time.Second)}
	assert.Zero(t, waitFor(edge, limit, now))
}

func TestLRUBoundsScopes(t *testing.T) {
	l, clock := newBoundedTestLimiter(Config{PerChat: RateLimit{MaxRequests: 1, Window: time.Second}}, 2)

	require.NoError(t, l.TryAcquire("a"))
	require.NoError(t, l.TryAcquire("b"))

	clock.Advance(time.Second)
	require.NoError(t, l.TryAcquire("c"))

	assert.ElementsMatch(t, []string{"b", "c"}, l.Scopes())
}

func TestFullScopeStore_KeepsLiveBuckets(t *testing.T) {
	l, clock := newBoundedTestLimiter(Config{PerChat: RateLimit{MaxRequests: 1, Window: 10 * time.Second}}, 1)

	require.NoError(t, l.TryAcquire("A"))
	assert.ErrorIs(t, l.TryAcquire("B"), ErrRateLimitExceeded, "A is still inside its window")
	assert.ErrorIs(t, l.TryAcquire("A"), ErrRateLimitExceeded, "A must not have been reset")
	assert.Equal(t, []string{"A"}, l.Scopes())

	clock.Advance(10 * time.Second)
	require.NoError(t, l.TryAcquire("B"))
	assert.Equal(t, []string{"B"}, l.Scopes())
}

func TestFullScopeStore_UnlimitedPerChatEvicts(t *testing.T) {
	l, _ := newBoundedTestLimiter(Config{Global: RateLimit{MaxRequests: 100, Window: time.Second}}, 1)

	require.NoError(t, l.TryAcquire("A"))
	require.NoError(t, l.TryAcquire("B"))
	assert.Equal(t, []string{"B"}, l.Scopes())
}

func TestAcquire_WaitsForScopeEviction(t *testing.T) {
	l := New(Config{PerChat: RateLimit{MaxRequests: 1, Window: 150 * time.Millisecond}}, 1)

	require.NoError(t, l.Acquire(context.Background(), "A"))

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "B"))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, []string{"B"}, l.Scopes())
}

func TestDefaultClockIsMonotonic(t *testing.T) {
	l := New(DefaultConfig(), 0)

	// Readings carrying a monotonic component print an "m=" offset.
	assert.Contains(t, l.nowFunc().String(), "m=")
}

func TestAcquire_ImmediateWhenCapacity(t *testing.T) {
	l := New(Config{
		Global:  RateLimit{MaxRequests: 10, Window: time.Second},
		PerChat: RateLimit{MaxRequests: 10, Window: time.Second},
	}, 0)

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "chat"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquire_WaitsForWindow(t *testing.T) {
	l := New(Config{
		Global:  RateLimit{MaxRequests: 100, Window: time.Second},
		PerChat: RateLimit{MaxRequests: 1, Window: 150 * time.Millisecond},
	}, 0)

	require.NoError(t, l.Acquire(context.Background(), "chat"))

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "chat"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	_, perScope := l.GetRequestCount("chat")
	assert.Equal(t, 1, perScope)
}

func TestAcquire_HonorsRetryAfter(t *testing.T) {
	l := New(Config{
		Global:  RateLimit{MaxRequests: 100, Window: time.Second},
		PerChat: RateLimit{MaxRequests: 100, Window: time.Second},
	}, 0)

	l.HandleRetryAfter(time.Second, "chat")
	_, pending := l.RetryAfterDeadline("chat")
	assert.True(t, pending)

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "chat"))
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)

	// Unrelated scopes are not held back
	start = time.Now()
	l.HandleRetryAfter(time.Second, "chat")
	require.NoError(t, l.Acquire(context.Background(), "other"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquire_GlobalRetryAfterAppliesToScopes(t *testing.T) {
	l := New(Config{}, 0)

	l.HandleRetryAfter(200*time.Millisecond, GlobalScope)

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "chat"))
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestAcquire_RetryAfterArrivingDuringWindowWait(t *testing.T) {
	l := New(Config{
		Global:  RateLimit{MaxRequests: 100, Window: time.Second},
		PerChat: RateLimit{MaxRequests: 1, Window: 150 * time.Millisecond},
	}, 0)
	require.NoError(t, l.Acquire(context.Background(), "chat"))

	go func() {
		time.Sleep(50 * time.Millisecond)
		l.HandleRetryAfter(400*time.Millisecond, "chat")
	}()

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "chat"))
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestHandleRetryAfter_KeepsLaterDeadline(t *testing.T) {
	l, _ := newTestLimiter(Config{})

	l.HandleRetryAfter(10*time.Second, "chat")
	first, ok := l.RetryAfterDeadline("chat")
	require.True(t, ok)

	l.HandleRetryAfter(time.Second, "chat")
	second, ok := l.RetryAfterDeadline("chat")
	require.True(t, ok)
	assert.Equal(t, first, second)

	l.HandleRetryAfter(0, "other")
	_, ok = l.RetryAfterDeadline("other")
	assert.False(t, ok)
}

func TestClearRetryAfter(t *testing.T) {
	l := New(Config{}, 0)

	l.HandleRetryAfter(time.Minute, "chat")
	l.ClearRetryAfter("chat")

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "chat"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l := New(Config{}, 0)
	l.HandleRetryAfter(time.Minute, "chat")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, "chat")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	global, perScope := l.GetRequestCount("chat")
	assert.Zero(t, global)
	assert.Zero(t, perScope)
}

func TestAcquire_ConcurrentCallersRespectCeiling(t *testing.T) {
	l := New(Config{
		Global:  RateLimit{MaxRequests: 5, Window: 200 * time.Millisecond},
		PerChat: RateLimit{MaxRequests: 100, Window: time.Second},
	}, 0)

	var wg sync.WaitGroup
	var done atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background(), "chat"); err == nil {
				done.Add(1)
			}
			global, _ := l.GetRequestCount(GlobalScope)
			assert.LessOrEqual(t, global, 5)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), done.Load())
}

func TestConcurrency_TryAcquire(t *testing.T) {
	l := New(Config{
		Global:  RateLimit{MaxRequests: 50, Window: 10 * time.Second},
		PerChat: RateLimit{MaxRequests: 1000, Window: 10 * time.Second},
	}, 0)

	var wg sync.WaitGroup
	var admitted atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if l.TryAcquire("chat") == nil {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), admitted.Load())
}
