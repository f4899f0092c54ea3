package authprofile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

	// tokenRefreshBuffer refreshes service account tokens this long before expiry.
	tokenRefreshBuffer = 5 * time.Minute
)

// TokenCache turns a profile into the bearer secret a provider client sends.
// API key profiles resolve to the key itself; service account profiles are
// exchanged for OAuth2 access tokens that are cached until shortly before expiry.
type TokenCache struct {
	mu        sync.Mutex
	sources   map[string]oauth2.TokenSource
	newSource func(credentialsJSON []byte) (oauth2.TokenSource, error)
	logger    *slog.Logger
}

func NewTokenCache(logger *slog.Logger) *TokenCache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TokenCache{
		sources:   make(map[string]oauth2.TokenSource),
		newSource: serviceAccountSource,
		logger:    logger,
	}
}

// Resolve returns the credential to present for p.
func (c *TokenCache) Resolve(ctx context.Context, p Profile) (string, error) {
	switch p.Type {
	case "", TypeAPIKey:
		return p.Secret, nil
	case TypeServiceAccount:
	default:
		return "", fmt.Errorf("auth profile %s: unsupported type %q", p.ID, p.Type)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := c.source(p)
	if err != nil {
		return "", err
	}

	// Token() may hit the network; the cache lock is not held here.
	token, err := src.Token()
	if err != nil {
		c.Invalidate(p)
		c.logger.Error("Failed to obtain service account token",
			"provider", p.ProviderID,
			"profile", p.ID,
			"error", err,
		)
		return "", fmt.Errorf("failed to obtain token for %s: %w", p.ID, err)
	}
	return token.AccessToken, nil
}

// Invalidate drops the cached token source for p.
func (c *TokenCache) Invalidate(p Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, cacheKey(p))
}

func (c *TokenCache) source(p Profile) (oauth2.TokenSource, error) {
	key := cacheKey(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	if src, ok := c.sources[key]; ok {
		return src, nil
	}

	src, err := c.newSource([]byte(p.Secret))
	if err != nil {
		return nil, fmt.Errorf("auth profile %s: %w", p.ID, err)
	}
	src = oauth2.ReuseTokenSourceWithExpiry(nil, src, tokenRefreshBuffer)
	c.sources[key] = src

	c.logger.Debug("Service account token source created",
		"provider", p.ProviderID,
		"profile", p.ID,
	)
	return src, nil
}

func serviceAccountSource(credentialsJSON []byte) (oauth2.TokenSource, error) {
	var serviceAccount map[string]interface{}
	if err := json.Unmarshal(credentialsJSON, &serviceAccount); err != nil {
		return nil, fmt.Errorf("invalid service account JSON: %w", err)
	}
	if accountType, ok := serviceAccount["type"].(string); !ok || accountType != "service_account" {
		return nil, fmt.Errorf("credentials must be for a service account, got type: %v", serviceAccount["type"])
	}

	// The source outlives any single request, so it is not bound to one.
	creds, err := google.CredentialsFromJSON(context.Background(), credentialsJSON, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials: %w", err)
	}
	return creds.TokenSource, nil
}

func cacheKey(p Profile) string {
	return p.ProviderID + "/" + p.ID
}
