package linkedin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/pkg/logger"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func postsJSON() string {
	recent := fixedNow.Add(-2 * time.Hour).UnixMilli()
	older := fixedNow.Add(-72 * time.Hour).UnixMilli()
	return fmt.Sprintf(`{"elements": [
  {"id": "urn:li:share:1", "author": "urn:li:organization:99", "commentary": "Industry insights: How Web3 is transforming business", "publishedAt": %d, "likeCount": 40, "commentCount": 2},
  {"id": "urn:li:share:2", "author": "urn:li:organization:99", "commentary": "Office party photos", "publishedAt": %d},
  {"id": "urn:li:share:3", "author": "urn:li:organization:99", "commentary": "Web3 webinar recap", "publishedAt": %d}
]}`, recent, recent, older)
}

func newTestSource(t *testing.T, srvURL string) *Source {
	t.Helper()
	s, err := New(context.Background(), config.LinkedInConfig{
		BaseURL:         srvURL,
		OrganizationURN: "urn:li:organization:99",
	}, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "li-token"}), nil, logger.Nop())
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestFetch(t *testing.T) {
	reqs := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs <- r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(postsJSON()))
	}))
	defer srv.Close()

	items, err := newTestSource(t, srv.URL).Fetch(context.Background(), models.ScraperConfig{
		Keywords:   []string{"web3"},
		MaxResults: 10,
		TimeRange:  models.TimeRangeDay,
	}, "user-1")
	require.NoError(t, err)

	r := <-reqs
	assert.Equal(t, "/posts", r.URL.Path)
	assert.Equal(t, "Bearer li-token", r.Header.Get("Authorization"))
	assert.Equal(t, "urn:li:organization:99", r.URL.Query().Get("author"))
	assert.Equal(t, linkedinVersion, r.Header.Get("LinkedIn-Version"))

	require.Len(t, items, 1)
	assert.Equal(t, "urn:li:share:1", items[0].ID)
	assert.Equal(t, 40, *items[0].Engagement.Likes)
	assert.Equal(t, fixedNow.Add(-2*time.Hour), items[0].Date)
}

func TestFetch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestSource(t, srv.URL).Fetch(context.Background(), models.ScraperConfig{MaxResults: 5}, "u")
	assert.Error(t, err)
}

func TestNew_RequiresOrganization(t *testing.T) {
	_, err := New(context.Background(), config.LinkedInConfig{}, oauth2.StaticTokenSource(&oauth2.Token{}), nil, logger.Nop())
	assert.Error(t, err)
}

func TestTokenManager_UsesConfiguredToken(t *testing.T) {
	m, err := NewTokenManager(context.Background(), config.LinkedInConfig{
		AccessToken:    "seed",
		TokenExpiresAt: time.Now().Add(time.Hour).Format(time.RFC3339),
	}, logger.Nop())
	require.NoError(t, err)

	tok, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, "seed", tok.AccessToken)

	valid, _ := m.Status()
	assert.True(t, valid)
}

func TestTokenManager_RefreshesExpiredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"bearer","expires_in":3600,"refresh_token":"r2"}`))
	}))
	defer srv.Close()

	orig := Endpoint
	Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	defer func() { Endpoint = orig }()

	m, err := NewTokenManager(context.Background(), config.LinkedInConfig{
		ClientID:       "id",
		ClientSecret:   "secret",
		AccessToken:    "stale",
		RefreshToken:   "r1",
		TokenExpiresAt: time.Now().Add(-time.Hour).Format(time.RFC3339),
	}, logger.Nop())
	require.NoError(t, err)

	tok, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
}

func TestNewTokenManager_RequiresToken(t *testing.T) {
	_, err := NewTokenManager(context.Background(), config.LinkedInConfig{}, logger.Nop())
	assert.Error(t, err)
}
