package linkedin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/pkg/logger"
)

// Endpoint is LinkedIn's OAuth 2.0 endpoint
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://www.linkedin.com/oauth/v2/authorization",
	TokenURL: "https://www.linkedin.com/oauth/v2/accessToken",
}

// defaultTokenLifetime applies when the configured expiry is missing or malformed
const defaultTokenLifetime = 60 * 24 * time.Hour

// TokenManager hands out a valid access token, refreshing it through the
// OAuth2 token endpoint when it expires
type TokenManager struct {
	config *oauth2.Config
	log    *logger.Logger

	mu     sync.Mutex
	source oauth2.TokenSource
	last   *oauth2.Token
}

// NewTokenManager seeds a manager from tokens injected via configuration
func NewTokenManager(ctx context.Context, cfg config.LinkedInConfig, log *logger.Logger) (*TokenManager, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("no LinkedIn token found: configure platforms.linkedin.access_token")
	}

	expiry, err := time.Parse(time.RFC3339, cfg.TokenExpiresAt)
	if err != nil {
		expiry = time.Now().Add(defaultTokenLifetime)
	}

	m := &TokenManager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     Endpoint,
		},
		log: log.WithComponent("oauth"),
	}

	seed := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}
	m.source = oauth2.ReuseTokenSource(seed, m.config.TokenSource(ctx, seed))
	m.last = seed

	m.log.Info().
		Time("expires_at", expiry).
		Msg("OAuth token initialized from configuration")

	return m, nil
}

// Token returns a valid token, refreshing when needed
func (m *TokenManager) Token() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.source.Token()
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to refresh token")
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if tok.AccessToken != m.last.AccessToken {
		m.log.Info().
			Time("expires_at", tok.Expiry).
			Msg("Token refreshed successfully")
	}
	m.last = tok
	return tok, nil
}

// Status reports whether the current token is still valid and when it expires
func (m *TokenManager) Status() (bool, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.Valid(), m.last.Expiry
}

var _ oauth2.TokenSource = (*TokenManager)(nil)
