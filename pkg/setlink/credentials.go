package setlink

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	// SoundCloudTokenURL is the SoundCloud OAuth2 token endpoint.
	SoundCloudTokenURL = "https://api.soundcloud.com/oauth2/token"
	// tokenSafetyMargin keeps a token from expiring while a request is in flight.
	tokenSafetyMargin = 60 * time.Second
	// defaultTokenLifetime applies when the provider omits expires_in.
	defaultTokenLifetime = time.Hour
	// tokenFlightKey is the single singleflight key; one client configuration per cache.
	tokenFlightKey = "token"
)

// credential is a bearer token and the instant it stops being valid.
type credential struct {
	token     string
	expiresAt time.Time
}

// CredentialCache holds the SoundCloud client-credentials bearer token.
// Concurrent refreshes share one in-flight exchange.
type CredentialCache struct {
	config     *clientcredentials.Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.RWMutex
	current *credential
	flight  singleflight.Group
}

// NewCredentialCache creates a cache for the given client credentials.
// An empty tokenURL selects SoundCloudTokenURL.
func NewCredentialCache(clientID, clientSecret, tokenURL string, timeout time.Duration, logger *zap.Logger) *CredentialCache {
	if tokenURL == "" {
		tokenURL = SoundCloudTokenURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CredentialCache{
		config: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: newHTTPClient(timeout),
		logger:     logger,
		now:        time.Now,
	}
}

// Configured reports whether both client id and secret are set.
func (c *CredentialCache) Configured() bool {
	return c.config.ClientID != "" && c.config.ClientSecret != ""
}

// Token returns a valid bearer token, exchanging client credentials when the cached one is missing or stale.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrMissingCredentials
	}

	if token, ok := c.cached(); ok {
		return token, nil
	}

	ch := c.flight.DoChan(tokenFlightKey, func() (any, error) {
		// A flight that finished just before this one may already have stored a fresh token.
		if token, ok := c.cached(); ok {
			return token, nil
		}
		// Detach from the first caller's cancellation; the HTTP client timeout bounds the exchange.
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		token, _ := res.Val.(string)
		return token, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrUpstreamAuth, ctx.Err())
	}
}

// Invalidate drops the cached token so the next call performs a new exchange.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

func (c *CredentialCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return "", false
	}
	if !c.now().Before(c.current.expiresAt.Add(-tokenSafetyMargin)) {
		return "", false
	}
	return c.current.token, true
}

func (c *CredentialCache) refresh(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	started := time.Now()
	tok, err := c.config.Token(ctx)
	if err != nil {
		c.logger.Warn("SoundCloud token exchange failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrUpstreamAuth, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUpstreamAuth)
	}

	lifetime := defaultTokenLifetime
	if !tok.Expiry.IsZero() {
		// oauth2 stamps Expiry from expires_in relative to the wall clock at receipt.
		lifetime = tok.Expiry.Sub(started)
	}

	c.mu.Lock()
	c.current = &credential{
		token:     tok.AccessToken,
		expiresAt: c.now().Add(lifetime),
	}
	c.mu.Unlock()

	c.logger.Debug("SoundCloud token refreshed", zap.Duration("lifetime", lifetime))
	return tok.AccessToken, nil
}
