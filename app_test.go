package agentfailover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/agent_failover/internal/config"
	"github.com/mixaill76/agent_failover/internal/health"
	"github.com/mixaill76/agent_failover/internal/testhelpers"
)

// newTestApp lifts the per-chat limit so multi-attempt runs do not wait.
func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := testhelpers.NewTestConfig()
	cfg.RateLimits.PerChat = &config.RateLimitConfig{}

	a, err := New(context.Background(), cfg, testhelpers.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestNew_Wiring(t *testing.T) {
	a := newTestApp(t)

	assert.Equal(t, 1, a.profiles.TotalCount("anthropic"))
	assert.Equal(t, 1, a.profiles.TotalCount("openai"))
	require.Contains(t, a.chains, "assistant")
	assert.Equal(t, "claude-sonnet -> gpt-4o -> gemini-flash", a.chains["assistant"].String())
	assert.Equal(t, "30/1s", a.limiter.Config().Global.String())
	assert.Equal(t, []string{"assistant"}, a.Agents())
	assert.Nil(t, a.recorder)
	assert.Nil(t, a.writer)
}

func TestNew_NilLoggerUsesServerSettings(t *testing.T) {
	a, err := New(context.Background(), testhelpers.NewTestConfig(), nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.NotNil(t, a.log)
}

func TestNew_UnknownPlatform(t *testing.T) {
	cfg := testhelpers.NewTestConfig()
	cfg.RateLimits.Platform = "carrier-pigeon"

	_, err := New(context.Background(), cfg, testhelpers.NewTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limits")
}

func TestHandler_Health(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp health.Response
	testhelpers.AssertJSONResponse(t, rec, http.StatusOK, &resp)
	assert.Equal(t, health.StatusHealthy, resp.Status)
	assert.Equal(t, 2, resp.TotalProfiles)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics are off by default")
}

func TestHandler_MetricsEnabled(t *testing.T) {
	cfg := testhelpers.NewTestConfig()
	cfg.Monitoring = *testhelpers.NewTestMonitoringConfig("/healthz")
	cfg.Monitoring.PrometheusEnabled = true

	a, err := New(context.Background(), cfg, testhelpers.NewTestLogger())
	require.NoError(t, err)
	defer a.Close(context.Background())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartAndClose(t *testing.T) {
	a := newTestApp(t)

	a.Start()
	a.Close(context.Background())
}
