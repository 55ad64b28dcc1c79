package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/sentiment"
	"github.com/web3-feed/pkg/logger"
)

func fixedScorer(score float64) sentiment.Scorer {
	return sentiment.ScorerFunc(func(context.Context, models.ContentItem) (sentiment.Result, error) {
		return sentiment.Result{Score: score, Label: sentiment.LabelFor(score)}, nil
	})
}

func newTestProcessor() *Processor {
	return New(fixedScorer(0.5), logger.Nop())
}

func item(id string, platform models.Platform, author, content string) models.ContentItem {
	return models.ContentItem{ID: id, Platform: platform, Author: author, Content: content}
}

func ids(items []models.ContentItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestExtractHashtags(t *testing.T) {
	assert.Equal(t, []string{"#Web3", "#Blockchain"}, ExtractHashtags("Great news about #Web3 and #Blockchain"))
	assert.Equal(t, []string{"#defi_summer", "#2024"}, ExtractHashtags("#defi_summer is back in #2024!"))
	assert.Equal(t, []string{}, ExtractHashtags("just a # sign"))
}

func TestProcess_HashtagStage(t *testing.T) {
	out, _, err := newTestProcessor().Process(context.Background(), []models.ContentItem{
		item("1", models.PlatformLinkedIn, "Autheo Team", "Great news about #Web3 and #Blockchain"),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"#Web3", "#Blockchain"}, out[0].Metadata[models.MetaHashtags])
}

func TestProcess_FiltersShortContent(t *testing.T) {
	out, stats, err := newTestProcessor().Process(context.Background(), []models.ContentItem{
		item("short", models.PlatformDiscord, "Moderator", "gm"),
		item("nine", models.PlatformDiscord, "Moderator", "123456789"),
		item("ten", models.PlatformDiscord, "Moderator", "1234567890"),
		item("emoji", models.PlatformTelegram, "News Bot", "🚀🚀🚀🚀🚀"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ten"}, ids(out))
	assert.Equal(t, 3, stats.Filtered)
	for _, it := range out {
		assert.GreaterOrEqual(t, len([]rune(it.Content)), MinContentLength)
		assert.False(t, it.IsFiltered())
	}
}

func TestProcess_TweetType(t *testing.T) {
	out, _, err := newTestProcessor().Process(context.Background(), []models.ContentItem{
		item("rt", models.PlatformTwitter, "@Web3Community", "RT @AutheoProject: Web3 integration is now live!"),
		item("orig", models.PlatformTwitter, "@AutheoProject", "Excited to announce our latest partnership!"),
		item("li", models.PlatformLinkedIn, "Autheo Team", "RT @someone is not a retweet on LinkedIn"),
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "retweet", out[0].Metadata[models.MetaTweetType])
	assert.Equal(t, "original", out[1].Metadata[models.MetaTweetType])
	assert.NotContains(t, out[2].Metadata, models.MetaTweetType)
}

func TestProcess_DeduplicatesAcrossPlatformsAndKeepsFirst(t *testing.T) {
	in := []models.ContentItem{
		item("a", models.PlatformTwitter, "@Web3Community", "Community update: Web3 integration is now live!"),
		item("b", models.PlatformTwitter, "@Web3Community", "Community update: Web3 integration is now live!"),
		item("c", models.PlatformDiscord, "@Web3Community", "Community update: Web3 integration is now live!"),
		item("d", models.PlatformTwitter, "@BlockchainNews", "Community update: Web3 integration is now live!"),
	}

	out, stats, err := newTestProcessor().Process(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c", "d"}, ids(out))
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 3, stats.Output)
}

func TestProcess_IsIdempotentOnDeduplicatedBatch(t *testing.T) {
	p := newTestProcessor()
	in := []models.ContentItem{
		item("1", models.PlatformTwitter, "@A", "Excited to announce #Web3 news"),
		item("2", models.PlatformTwitter, "@A", "Excited to announce #Web3 news"),
		item("3", models.PlatformBlog, "Guest Writer", "Deep Dive: Understanding Web3 Architecture"),
	}

	first, _, err := p.Process(context.Background(), in)
	require.NoError(t, err)

	second, stats, err := p.Process(context.Background(), first)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Zero(t, stats.Duplicates)
	assert.Zero(t, stats.Filtered)
}

func TestProcess_AttachesSentimentToEveryItem(t *testing.T) {
	p := New(sentiment.ScorerFunc(func(_ context.Context, it models.ContentItem) (sentiment.Result, error) {
		if it.ID == "broken" {
			return sentiment.Result{}, errors.New("model unavailable")
		}
		return sentiment.Result{Score: -0.7, Label: sentiment.LabelNegative}, nil
	}), logger.Nop())

	out, _, err := p.Process(context.Background(), []models.ContentItem{
		item("ok", models.PlatformYouTube, "Crypto Insights", "Live Discussion: The Future of Web3"),
		item("broken", models.PlatformYouTube, "Web3 Academy", "Tutorial: How to Get Started with Web3"),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "negative", out[0].SentimentLabel())
	assert.Equal(t, -0.7, out[0].Metadata[models.MetaSentimentScore])
	assert.Equal(t, "neutral", out[1].SentimentLabel())
	assert.Equal(t, 0.0, out[1].Metadata[models.MetaSentimentScore])
}

func TestProcess_DoesNotMutateInput(t *testing.T) {
	in := []models.ContentItem{
		{ID: "1", Platform: models.PlatformTwitter, Author: "@A", Content: "Hello #Web3 world", Metadata: models.JSON{"source": "automated_scraper"}},
	}

	_, _, err := newTestProcessor().Process(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, models.JSON{"source": "automated_scraper"}, in[0].Metadata)
}

func TestProcess_PreservesOrder(t *testing.T) {
	var in []models.ContentItem
	for i := 0; i < 20; i++ {
		in = append(in, item(fmt.Sprintf("id-%02d", i), models.PlatformBlog, "Research Division", fmt.Sprintf("Case Study number %d about Web3", i)))
	}

	out, _, err := newTestProcessor().Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, ids(in), ids(out))
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newTestProcessor().Process(ctx, []models.ContentItem{
		item("1", models.PlatformBlog, "Guest Writer", "Opinion: Why Web3 Matters for the Future"),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithRules(t *testing.T) {
	banned := Rule{
		Name:      "no_scams",
		Type:      RuleFilter,
		Condition: func(it models.ContentItem) bool { return it.Author == "scammer" },
		Action: func(it models.ContentItem) models.ContentItem {
			it.Meta(models.MetaFiltered, "blocked_author")
			return it
		},
	}
	p := New(fixedScorer(0), logger.Nop(), WithRules(append(DefaultRules(), banned)...))

	out, _, err := p.Process(context.Background(), []models.ContentItem{
		item("1", models.PlatformTelegram, "scammer", "Free tokens for everyone, click here"),
		item("2", models.PlatformTelegram, "Autheo Official", "Breaking: Web3 milestone achieved!"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(out))
}

func TestFingerprint(t *testing.T) {
	a := item("1", models.PlatformTwitter, "ab", "c")
	b := item("2", models.PlatformTwitter, "a", "bc")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	assert.Equal(t, Fingerprint(a), Fingerprint(item("other-id", models.PlatformTwitter, "ab", "c")))
}
