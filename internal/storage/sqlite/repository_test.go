package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/storage"
	"github.com/web3-feed/pkg/logger"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]models.ContentItem
}

func (n *recordingNotifier) Publish(callerID string, items []models.ContentItem) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.events == nil {
		n.events = map[string][]models.ContentItem{}
	}
	n.events[callerID] = append(n.events[callerID], items...)
	return len(items)
}

func newTestRepo(t *testing.T, opts ...Option) (*Repository, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(c.Now)}, opts...)

	repo, err := New(filepath.Join(t.TempDir(), "test.db"), logger.Nop(), opts...)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { _ = repo.Close() })
	return repo, c
}

func item(id string, p models.Platform, content string) models.ContentItem {
	return models.ContentItem{
		ID:         id,
		Platform:   p,
		Author:     "@AutheoProject",
		Content:    content,
		Date:       time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Engagement: &models.Engagement{Likes: models.Count(5)},
		Metadata:   models.JSON{models.MetaSentimentLabel: "positive", models.MetaHashtags: []string{"#Web3"}},
	}
}

func platformPtr(p models.Platform) *models.Platform { return &p }

func TestUpsertContent_IsIdempotent(t *testing.T) {
	repo, c := newTestRepo(t)
	ctx := context.Background()

	inserted, err := repo.UpsertContent(ctx, "user-1", []models.ContentItem{item("tw-1", models.PlatformTwitter, "first version")})
	require.NoError(t, err)
	assert.Len(t, inserted, 1)

	c.Advance(time.Minute)
	inserted, err = repo.UpsertContent(ctx, "user-1", []models.ContentItem{item("tw-1", models.PlatformTwitter, "second version")})
	require.NoError(t, err)
	assert.Empty(t, inserted)

	got, err := repo.QueryContent(ctx, storage.DefaultContentFilter("user-1"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second version", got[0].Content)
	assert.Equal(t, 5, *got[0].Engagement.Likes)
	assert.Equal(t, "positive", got[0].SentimentLabel())

	var row models.StoredContent
	require.NoError(t, repo.db.Where("platform_content_id = ?", "tw-1").First(&row).Error)
	assert.True(t, row.FetchedAt.Equal(c.Now()))
}

func TestUpsertContent_KeyIncludesCallerAndPlatform(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.UpsertContent(ctx, "user-1", []models.ContentItem{
		item("same-id", models.PlatformTwitter, "on twitter"),
		item("same-id", models.PlatformDiscord, "on discord"),
	})
	require.NoError(t, err)
	inserted, err := repo.UpsertContent(ctx, "user-2", []models.ContentItem{item("same-id", models.PlatformTwitter, "other user")})
	require.NoError(t, err)
	assert.Len(t, inserted, 1)

	u1, err := repo.QueryContent(ctx, storage.DefaultContentFilter("user-1"))
	require.NoError(t, err)
	assert.Len(t, u1, 2)

	u2, err := repo.QueryContent(ctx, storage.DefaultContentFilter("user-2"))
	require.NoError(t, err)
	require.Len(t, u2, 1)
	assert.Equal(t, "other user", u2[0].Content)
}

func TestUpsertContent_DuplicateKeyInBatchIsLastWriteWins(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	inserted, err := repo.UpsertContent(ctx, "user-1", []models.ContentItem{
		item("tw-1", models.PlatformTwitter, "one"),
		item("tw-1", models.PlatformTwitter, "two"),
	})
	require.NoError(t, err)
	assert.Len(t, inserted, 1)

	got, err := repo.QueryContent(ctx, storage.DefaultContentFilter("user-1"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "two", got[0].Content)
}

func TestQueryContent_OrderFilterAndLimit(t *testing.T) {
	repo, c := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.UpsertContent(ctx, "user-1", []models.ContentItem{
			item(fmt.Sprintf("tw-%d", i), models.PlatformTwitter, fmt.Sprintf("tweet %d", i)),
			item(fmt.Sprintf("dc-%d", i), models.PlatformDiscord, fmt.Sprintf("message %d", i)),
		})
		require.NoError(t, err)
		c.Advance(time.Minute)
	}

	all, err := repo.QueryContent(ctx, storage.DefaultContentFilter("user-1"))
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "tw-2", all[0].ID)
	assert.Equal(t, "dc-2", all[1].ID)
	assert.Equal(t, "dc-0", all[5].ID)

	tw, err := repo.QueryContent(ctx, storage.ContentFilter{UserID: "user-1", Platform: platformPtr(models.PlatformTwitter)})
	require.NoError(t, err)
	require.Len(t, tw, 3)
	for _, it := range tw {
		assert.Equal(t, models.PlatformTwitter, it.Platform)
	}

	limited, err := repo.QueryContent(ctx, storage.ContentFilter{UserID: "user-1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestQueryContent_DefaultLimit(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	batch := make([]models.ContentItem, 0, 60)
	for i := 0; i < 60; i++ {
		batch = append(batch, item(fmt.Sprintf("blog-%d", i), models.PlatformBlog, "entry"))
	}
	_, err := repo.UpsertContent(ctx, "user-1", batch)
	require.NoError(t, err)

	got, err := repo.QueryContent(ctx, storage.ContentFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, got, storage.DefaultQueryLimit)
}

func TestUpsertContent_NotifiesOnlyNewRows(t *testing.T) {
	n := &recordingNotifier{}
	repo, _ := newTestRepo(t, WithNotifier(n))
	ctx := context.Background()

	_, err := repo.UpsertContent(ctx, "user-1", []models.ContentItem{item("a", models.PlatformTwitter, "a")})
	require.NoError(t, err)
	_, err = repo.UpsertContent(ctx, "user-1", []models.ContentItem{
		item("a", models.PlatformTwitter, "a again"),
		item("b", models.PlatformTwitter, "b"),
	})
	require.NoError(t, err)

	require.Len(t, n.events["user-1"], 2)
	assert.Equal(t, "a", n.events["user-1"][0].ID)
	assert.Equal(t, "b", n.events["user-1"][1].ID)
}

func TestUpsertContent_ConcurrentCallers(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.UpsertContent(ctx, fmt.Sprintf("user-%d", i%2), []models.ContentItem{
				item("shared", models.PlatformTelegram, fmt.Sprintf("write %d", i)),
				item(fmt.Sprintf("own-%d", i), models.PlatformTelegram, "own"),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	u0, err := repo.QueryContent(ctx, storage.DefaultContentFilter("user-0"))
	require.NoError(t, err)
	assert.Len(t, u0, 5)
}

func TestUpsertContent_Empty(t *testing.T) {
	repo, _ := newTestRepo(t)
	inserted, err := repo.UpsertContent(context.Background(), "user-1", nil)
	require.NoError(t, err)
	assert.Empty(t, inserted)
}

func TestScrapeRuns(t *testing.T) {
	repo, c := newTestRepo(t)
	ctx := context.Background()

	for i, p := range []models.Platform{models.PlatformTwitter, models.PlatformDiscord, models.PlatformTwitter} {
		start := c.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.RecordScrapeRun(ctx, &models.ScrapeRun{
			RunID:      fmt.Sprintf("run-%d", i),
			UserID:     "user-1",
			Platform:   p,
			ItemCount:  i,
			Attempts:   1,
			Status:     models.ScrapeRunSucceeded,
			StartedAt:  start,
			FinishedAt: start.Add(time.Second),
		}))
	}

	runs, err := repo.ListScrapeRuns(ctx, storage.RunFilter{UserID: "user-1", Platform: platformPtr(models.PlatformTwitter)})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "run-0", runs[1].RunID)

	runs, err = repo.ListScrapeRuns(ctx, storage.RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
