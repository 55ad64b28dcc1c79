package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/sentiment"
	"github.com/web3-feed/internal/source/mock"
	"github.com/web3-feed/internal/source/rss"
	"github.com/web3-feed/pkg/logger"
	"github.com/web3-feed/pkg/ratelimit"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.DSN = filepath.Join(t.TempDir(), "app.db")
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = time.Millisecond
	cfg.Scraper.Seed = 42
	return cfg
}

func TestNew_ScrapeAndNotify(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	events, cleanup, err := a.Feed.Subscribe(context.Background(), "user-1")
	require.NoError(t, err)
	defer cleanup()

	res, notice, err := a.Feed.ScrapeContent(context.Background(), "user-1", models.ScrapeRequest{Platforms: []string{"twitter", "telegram"}})
	require.NoError(t, err)
	assert.Equal(t, "Scraping completed", notice.Title)
	require.NotEmpty(t, res.Items)
	assert.Equal(t, len(res.Items), res.Inserted)

	select {
	case ev := <-events:
		assert.Equal(t, res.Items[0].ID, ev.Item.ID)
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}

	stored, err := a.Feed.GetStoredContent(context.Background(), "user-1", nil)
	require.NoError(t, err)
	assert.Len(t, stored, len(res.Items))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scraper.Adapter = "carrier-pigeon"
	_, err := New(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestNewRegistry(t *testing.T) {
	cfg := testConfig(t)
	pacer := ratelimit.NewPacerFromQuotas(cfg.Quotas())

	reg, err := NewRegistry(context.Background(), cfg, pacer, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, len(models.SupportedPlatforms()), len(reg.Platforms()))
	blog, ok := reg.Get(models.PlatformBlog)
	require.True(t, ok)
	assert.IsType(t, &mock.Source{}, blog)

	cfg.Scraper.Adapter = "live"
	cfg.Platforms.Blog.Feeds = []config.FeedConfig{{Name: "Ethereum Blog", URL: "https://blog.ethereum.org/feed.xml"}}
	reg, err = NewRegistry(context.Background(), cfg, pacer, logger.Nop())
	require.NoError(t, err)

	blog, ok = reg.Get(models.PlatformBlog)
	require.True(t, ok)
	assert.IsType(t, &rss.Source{}, blog)

	tw, ok := reg.Get(models.PlatformTwitter)
	require.True(t, ok)
	assert.IsType(t, &mock.Source{}, tw)
}

func TestNewScorer(t *testing.T) {
	cfg := testConfig(t)

	s, err := NewScorer(cfg, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &sentiment.VaderScorer{}, s)

	cfg.Sentiment.Scorer = "random"
	s, err = NewScorer(cfg, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &sentiment.RandomScorer{}, s)

	cfg.Sentiment.Scorer = "anthropic"
	_, err = NewScorer(cfg, logger.Nop())
	assert.Error(t, err)

	cfg.Anthropic.APIKey = "sk-test"
	_, err = NewScorer(cfg, logger.Nop())
	assert.NoError(t, err)
}
