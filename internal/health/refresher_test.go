package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/agent_failover/internal/monitoring"
	"github.com/mixaill76/agent_failover/internal/testhelpers"
)

func TestNewRefresher_InvalidSchedule(t *testing.T) {
	_, m, l := newTestChecker(t)

	_, err := NewRefresher("not a schedule", m, l, nil, nil)
	assert.Error(t, err)
}

func TestRefresher_Refresh(t *testing.T) {
	monitoring.ProfilesAvailable.Reset()
	monitoring.RateLimitWindowRequests.Reset()

	_, m, l := newTestChecker(t)
	metrics := monitoring.New(true)
	m.SetMetrics(metrics)
	require.NoError(t, l.TryAcquire("chat-1"))
	require.NoError(t, l.TryAcquire("chat-2"))

	r, err := NewRefresher("@every 1h", m, l, metrics, testhelpers.NewTestLogger())
	require.NoError(t, err)

	pinger := &fakePinger{err: errors.New("down")}
	db := NewDBHealthChecker()
	r.SetMonitor(NewMonitor(pinger, db, 1, testhelpers.NewTestLogger()))

	r.Refresh()

	assert.Equal(t, 2.0, testutil.ToFloat64(monitoring.ProfilesAvailable.WithLabelValues("anthropic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(monitoring.ProfilesAvailable.WithLabelValues("openai")))
	assert.Equal(t, 2.0, testutil.ToFloat64(monitoring.RateLimitWindowRequests.WithLabelValues("global")))
	assert.False(t, db.IsHealthy())
}

func TestRefresher_Schedule(t *testing.T) {
	_, m, l := newTestChecker(t)
	pinger := &fakePinger{err: errors.New("down")}
	db := NewDBHealthChecker()

	r, err := NewRefresher("@every 1s", m, l, nil, testhelpers.NewTestLogger())
	require.NoError(t, err)
	r.SetMonitor(NewMonitor(pinger, db, 1, nil))

	r.Start()
	require.Eventually(t, func() bool { return !db.IsHealthy() }, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, r.Stop(context.Background()))
}
