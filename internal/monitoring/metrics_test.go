package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	m := New(true)
	assert.NotNil(t, m)
	assert.True(t, m.enabled)

	m2 := New(false)
	assert.NotNil(t, m2)
	assert.False(t, m2.enabled)
}

func TestNilMetricsIsDisabled(t *testing.T) {
	var m *Metrics
	assert.False(t, m.isEnabled())

	// Must not panic
	m.RecordAttempt("gpt-4o", true, time.Second)
	m.RecordModelSwitch("a", "b", "failover to next model")
	m.RecordRateLimitRejected("global")
}

func TestRecordAttempt_Enabled(t *testing.T) {
	AttemptsTotal.Reset()
	AttemptDuration.Reset()

	m := New(true)
	m.RecordAttempt("gpt-4o", true, 100*time.Millisecond)
	m.RecordAttempt("gpt-4o", false, 150*time.Millisecond)
	m.RecordAttempt("gpt-4o", false, 150*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(AttemptsTotal.WithLabelValues("gpt-4o", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(AttemptsTotal.WithLabelValues("gpt-4o", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(AttemptDuration))
}

func TestRecordAttempt_Disabled(t *testing.T) {
	AttemptsTotal.Reset()

	m := New(false)
	m.RecordAttempt("gpt-4o", true, time.Second)

	assert.Equal(t, 0, testutil.CollectAndCount(AttemptsTotal))
}

func TestRecordModelSwitch(t *testing.T) {
	ModelSwitchesTotal.Reset()

	m := New(true)
	m.RecordModelSwitch("claude-sonnet", "gpt-4o", "failover to next model")
	m.RecordModelSwitch("claude-sonnet", "gpt-4o", "failover to next model")

	assert.Equal(t, 2.0, testutil.ToFloat64(ModelSwitchesTotal.WithLabelValues("claude-sonnet", "gpt-4o", "failover to next model")))
}

func TestProfileMetrics(t *testing.T) {
	ProfileCooldownsTotal.Reset()
	ProfilesAvailable.Reset()

	m := New(true)
	m.RecordProfileCooldown("anthropic", "rate_limited")
	m.UpdateProfilesAvailable("anthropic", 2)
	m.UpdateProfilesAvailable("anthropic", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(ProfileCooldownsTotal.WithLabelValues("anthropic", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ProfilesAvailable.WithLabelValues("anthropic")))
}

func TestRateLimitMetrics(t *testing.T) {
	RateLimitRejectedTotal.Reset()
	RateLimitWaitSeconds.Reset()
	RateLimitWindowRequests.Reset()

	m := New(true)
	m.RecordRateLimitRejected("chat")
	m.RecordRateLimitWait("window", 250*time.Millisecond)
	m.UpdateWindowRequests("global", 12)

	assert.Equal(t, 1.0, testutil.ToFloat64(RateLimitRejectedTotal.WithLabelValues("chat")))
	assert.Equal(t, 1, testutil.CollectAndCount(RateLimitWaitSeconds))
	assert.Equal(t, 12.0, testutil.ToFloat64(RateLimitWindowRequests.WithLabelValues("global")))
}
