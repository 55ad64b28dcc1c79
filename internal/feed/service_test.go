package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/web3-feed/internal/agent/ingest"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/notify"
	"github.com/web3-feed/internal/storage"
	"github.com/web3-feed/pkg/logger"
)

type mockIngestor struct {
	mock.Mock
	started chan struct{}
	release chan struct{}
}

func (m *mockIngestor) Scrape(ctx context.Context, req models.ScrapeRequest, callerID string) (*ingest.ScrapeResult, error) {
	if m.started != nil {
		m.started <- struct{}{}
		<-m.release
	}
	args := m.Called(req, callerID)
	res, _ := args.Get(0).(*ingest.ScrapeResult)
	return res, args.Error(1)
}

func (m *mockIngestor) Refresh(ctx context.Context, callerID string, platforms []models.Platform) (*ingest.ScrapeResult, error) {
	args := m.Called(callerID, platforms)
	res, _ := args.Get(0).(*ingest.ScrapeResult)
	return res, args.Error(1)
}

func (m *mockIngestor) Health() []ingest.PlatformHealth {
	return m.Called().Get(0).([]ingest.PlatformHealth)
}

type stubRepository struct {
	storage.Repository
	filter storage.ContentFilter
	items  []models.ContentItem
}

func (s *stubRepository) QueryContent(_ context.Context, filter storage.ContentFilter) ([]models.ContentItem, error) {
	s.filter = filter
	return s.items, nil
}

func sample() []models.ContentItem {
	return []models.ContentItem{
		{ID: "t1", Platform: models.PlatformTwitter, Author: "@VitalikButerin", Content: "Ethereum scaling update"},
		{ID: "d1", Platform: models.PlatformDiscord, Author: "CryptoMod#1234", Content: "NFT drop tonight"},
		{ID: "t2", Platform: models.PlatformTwitter, Author: "@AutheoProject", Content: "DeFi yields are up"},
	}
}

func TestScrapeContent_SuccessNotice(t *testing.T) {
	ing := &mockIngestor{}
	req := models.ScrapeRequest{Platforms: []string{"twitter"}}
	ing.On("Scrape", req, "user-1").Return(&ingest.ScrapeResult{Items: sample()}, nil)

	svc := NewService(ing, &stubRepository{}, nil, logger.Nop())
	res, notice, err := svc.ScrapeContent(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, "Scraping completed", notice.Title)
	assert.Equal(t, "Successfully scraped 3 items from social media platforms.", notice.Description)
	assert.Equal(t, VariantDefault, notice.Variant)
}

func TestScrapeContent_PartialFailureNotice(t *testing.T) {
	ing := &mockIngestor{}
	req := models.ScrapeRequest{Platforms: []string{"twitter", "discord", "youtube"}}
	ing.On("Scrape", req, "user-1").Return(&ingest.ScrapeResult{
		Items: sample()[:1],
		Failures: []*ingest.PlatformError{
			{Platform: models.PlatformDiscord, Attempts: 3, Err: errors.New("gateway timeout")},
			{Platform: models.PlatformYouTube, Attempts: 3, Err: errors.New("quota exceeded")},
		},
	}, nil)

	svc := NewService(ing, &stubRepository{}, nil, logger.Nop())
	res, notice, err := svc.ScrapeContent(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, "Scraping partially failed", notice.Title)
	assert.Equal(t, "Scraped 1 items. Failed platforms: discord, youtube.", notice.Description)
	assert.Equal(t, VariantDestructive, notice.Variant)
}

func TestRefreshContent_PartialFailureNotice(t *testing.T) {
	ing := &mockIngestor{}
	ing.On("Refresh", "user-1", []models.Platform(nil)).Return(&ingest.ScrapeResult{
		Items:    sample(),
		Failures: []*ingest.PlatformError{{Platform: models.PlatformBlog, Attempts: 3, Err: errors.New("feed unavailable")}},
	}, nil)

	svc := NewService(ing, &stubRepository{}, nil, logger.Nop())
	_, notice, err := svc.RefreshContent(context.Background(), "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Refresh partially failed", notice.Title)
	assert.Contains(t, notice.Description, "blog")
	assert.Equal(t, VariantDestructive, notice.Variant)
}

func TestScrapeContent_FailureNotice(t *testing.T) {
	ing := &mockIngestor{}
	ing.On("Scrape", mock.Anything, "user-1").Return(nil, &ingest.PersistenceError{Err: errors.New("disk full")})

	svc := NewService(ing, &stubRepository{}, nil, logger.Nop())
	_, notice, err := svc.ScrapeContent(context.Background(), "user-1", models.ScrapeRequest{Platforms: []string{"twitter"}})
	require.Error(t, err)
	assert.Equal(t, "Scraping failed", notice.Title)
	assert.Contains(t, notice.Description, "disk full")
	assert.Equal(t, VariantDestructive, notice.Variant)
	assert.False(t, svc.IsScraping("user-1"))
}

func TestScrapeContent_TracksActiveScrape(t *testing.T) {
	ing := &mockIngestor{started: make(chan struct{}), release: make(chan struct{})}
	ing.On("Scrape", mock.Anything, "user-1").Return(&ingest.ScrapeResult{}, nil)
	svc := NewService(ing, &stubRepository{}, nil, logger.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = svc.ScrapeContent(context.Background(), "user-1", models.ScrapeRequest{Platforms: []string{"twitter"}})
	}()

	<-ing.started
	assert.True(t, svc.IsScraping("user-1"))
	assert.False(t, svc.IsScraping("user-2"))
	close(ing.release)
	<-done
	assert.False(t, svc.IsScraping("user-1"))
}

func TestRefreshContent(t *testing.T) {
	ing := &mockIngestor{}
	ing.On("Refresh", "user-1", []models.Platform{models.PlatformTwitter, models.PlatformBlog}).Return(&ingest.ScrapeResult{}, nil)
	ing.On("Refresh", "user-1", []models.Platform(nil)).Return(nil, errors.New("every platform failed"))
	svc := NewService(ing, &stubRepository{}, nil, logger.Nop())

	_, notice, err := svc.RefreshContent(context.Background(), "user-1", []string{"Twitter", "myspace", "blog"})
	require.NoError(t, err)
	assert.Equal(t, "Content refreshed", notice.Title)

	_, notice, err = svc.RefreshContent(context.Background(), "user-1", nil)
	require.Error(t, err)
	assert.Equal(t, "Refresh failed", notice.Title)
	assert.Equal(t, VariantDestructive, notice.Variant)

	_, _, err = svc.RefreshContent(context.Background(), "user-1", []string{"myspace"})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
	ing.AssertNumberOfCalls(t, "Refresh", 2)
}

func TestGetStoredContent(t *testing.T) {
	repo := &stubRepository{items: sample()}
	svc := NewService(&mockIngestor{}, repo, nil, logger.Nop())

	p := models.PlatformTwitter
	items, err := svc.GetStoredContent(context.Background(), "user-1", &p)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, "user-1", repo.filter.UserID)
	assert.Equal(t, storage.DefaultQueryLimit, repo.filter.Limit)
	assert.Equal(t, &p, repo.filter.Platform)

	_, err = svc.GetStoredContent(context.Background(), " ", nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestSubscribe(t *testing.T) {
	broker := notify.NewBroker(logger.Nop())
	defer broker.Close()
	svc := NewService(&mockIngestor{}, &stubRepository{}, broker, logger.Nop())

	events, cleanup, err := svc.Subscribe(context.Background(), "user-1")
	require.NoError(t, err)
	defer cleanup()

	broker.Publish("user-1", sample()[:1])
	select {
	case ev := <-events:
		assert.Equal(t, "t1", ev.Item.ID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	disabled := NewService(&mockIngestor{}, &stubRepository{}, nil, logger.Nop())
	_, _, err = disabled.Subscribe(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	items := sample()

	tw := PlatformContent(items, models.PlatformTwitter)
	require.Len(t, tw, 2)
	assert.Equal(t, "t2", tw[1].ID)

	byKeyword := ContentByKeywords(items, []string{"defi", "cryptomod"})
	require.Len(t, byKeyword, 2)
	assert.Equal(t, "d1", byKeyword[0].ID)
	assert.Equal(t, "t2", byKeyword[1].ID)
	assert.Len(t, ContentByKeywords(items, nil), 3)

	assert.Equal(t, map[models.Platform]int{models.PlatformTwitter: 2, models.PlatformDiscord: 1}, PlatformCounts(items))
}
