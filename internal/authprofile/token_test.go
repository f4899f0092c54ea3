package authprofile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/mixaill76/agent_failover/internal/testhelpers"
)

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (s *countingSource) Token() (*oauth2.Token, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{
		AccessToken: "ya29.token-" + string(rune('0'+n)),
		Expiry:      time.Now().Add(time.Hour),
	}, nil
}

func TestResolve_APIKey(t *testing.T) {
	c := NewTokenCache(testhelpers.NewTestLogger())

	secret, err := c.Resolve(context.Background(), Profile{ID: "p1", Type: TypeAPIKey, Secret: "sk-1"})
	require.NoError(t, err)
	assert.Equal(t, "sk-1", secret)

	secret, err = c.Resolve(context.Background(), Profile{ID: "p2", Secret: "sk-2"})
	require.NoError(t, err)
	assert.Equal(t, "sk-2", secret)
}

func TestResolve_UnsupportedType(t *testing.T) {
	c := NewTokenCache(nil)

	_, err := c.Resolve(context.Background(), Profile{ID: "p1", Type: "oauth"})
	assert.Error(t, err)
}

func TestResolve_ServiceAccountCachesToken(t *testing.T) {
	src := &countingSource{}
	c := NewTokenCache(testhelpers.NewTestLogger())
	built := 0
	c.newSource = func([]byte) (oauth2.TokenSource, error) {
		built++
		return src, nil
	}

	p := Profile{ID: "sa", ProviderID: "vertex", Type: TypeServiceAccount, Secret: "{}"}

	first, err := c.Resolve(context.Background(), p)
	require.NoError(t, err)
	second, err := c.Resolve(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load(), "valid token is reused")
	assert.Equal(t, 1, built)

	c.Invalidate(p)
	_, err = c.Resolve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, built)
}

func TestResolve_ServiceAccountTokenError(t *testing.T) {
	src := &countingSource{err: errors.New("invalid_grant")}
	c := NewTokenCache(testhelpers.NewTestLogger())
	built := 0
	c.newSource = func([]byte) (oauth2.TokenSource, error) {
		built++
		return src, nil
	}

	p := Profile{ID: "sa", ProviderID: "vertex", Type: TypeServiceAccount}
	_, err := c.Resolve(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")

	_, _ = c.Resolve(context.Background(), p)
	assert.Equal(t, 2, built, "failed source is dropped and rebuilt")
}

func TestResolve_CancelledContext(t *testing.T) {
	c := NewTokenCache(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Resolve(ctx, Profile{ID: "sa", Type: TypeServiceAccount})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServiceAccountSource_Validation(t *testing.T) {
	_, err := serviceAccountSource([]byte("not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid service account JSON")

	_, err = serviceAccountSource([]byte(`{"type":"authorized_user"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be for a service account")
}
