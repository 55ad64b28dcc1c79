package rss

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/source"
	"github.com/web3-feed/pkg/logger"
	"github.com/web3-feed/pkg/ratelimit"
)

// Source implements source.Adapter for the blog platform over RSS/Atom feeds
type Source struct {
	feeds  []config.FeedConfig
	parser *gofeed.Parser
	pacer  *ratelimit.Pacer
	now    func() time.Time
	log    *logger.Logger
}

// New creates a blog source reading every configured feed. pacer may be nil.
func New(cfg config.BlogConfig, pacer *ratelimit.Pacer, log *logger.Logger) *Source {
	return &Source{
		feeds:  cfg.Feeds,
		parser: gofeed.NewParser(),
		pacer:  pacer,
		now:    time.Now,
		log:    log.WithComponent("rss_source").WithPlatform(string(models.PlatformBlog)),
	}
}

// Platform returns "blog"
func (s *Source) Platform() models.Platform {
	return models.PlatformBlog
}

// Fetch reads the feeds in order and keeps entries inside the time range that
// mention a keyword, up to cfg.MaxResults. A feed that fails is logged and
// skipped unless every feed fails.
func (s *Source) Fetch(ctx context.Context, cfg models.ScraperConfig, callerID string) ([]models.ContentItem, error) {
	if len(s.feeds) == 0 {
		return nil, fmt.Errorf("rss source: no feeds configured")
	}

	now := s.now().UTC()
	since := cfg.TimeRange.Since(now)

	var (
		items    []models.ContentItem
		failures int
		lastErr  error
	)

	for _, feed := range s.feeds {
		if len(items) >= cfg.MaxResults {
			break
		}

		fetched, err := s.fetchFeed(ctx, feed, cfg, since, now)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			lastErr = err
			s.log.Warn().Err(err).Str("feed", feed.Name).Msg("Failed to read feed")
			continue
		}
		items = append(items, fetched...)
	}

	if failures == len(s.feeds) {
		return nil, lastErr
	}

	items = source.Limit(items, cfg.MaxResults)

	s.log.Info().
		Int("count", len(items)).
		Str("caller_id", callerID).
		Msg("Fetched blog entries")

	return items, nil
}

func (s *Source) fetchFeed(ctx context.Context, feed config.FeedConfig, cfg models.ScraperConfig, since, now time.Time) ([]models.ContentItem, error) {
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx, string(models.PlatformBlog)); err != nil {
			return nil, err
		}
	}

	s.log.Debug().Str("url", feed.URL).Msg("Fetching RSS feed")

	parsed, err := s.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed %s: %w", feed.Name, err)
	}

	items := make([]models.ContentItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		published := now
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}
		if published.Before(since) {
			continue
		}

		text := entryText(entry)
		if !source.MatchesKeywords(text, cfg.Keywords) {
			continue
		}

		items = append(items, models.ContentItem{
			ID:       entryID(entry),
			Platform: models.PlatformBlog,
			Author:   entryAuthor(entry, feed.Name),
			Content:  text,
			Date:     published,
			Metadata: models.JSON{
				models.MetaScrapedAt: now.Format(time.RFC3339),
				models.MetaSource:    feed.Name,
				models.MetaKeywords:  append([]string{}, cfg.Keywords...),
				models.MetaURL:       entry.Link,
			},
		})
	}

	return items, nil
}

// HealthCheck verifies the first feed is reachable
func (s *Source) HealthCheck(ctx context.Context) error {
	if len(s.feeds) == 0 {
		return fmt.Errorf("rss source: no feeds configured")
	}
	_, err := s.parser.ParseURLWithContext(s.feeds[0].URL, ctx)
	return err
}

func entryID(entry *gofeed.Item) string {
	if entry.GUID != "" {
		return entry.GUID
	}
	return source.GenerateExternalID(models.PlatformBlog, entry.Link+entry.Title)
}

func entryAuthor(entry *gofeed.Item, fallback string) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	if len(entry.Authors) > 0 && entry.Authors[0] != nil && entry.Authors[0].Name != "" {
		return entry.Authors[0].Name
	}
	return fallback
}

// entryText joins title and summary into one body
func entryText(entry *gofeed.Item) string {
	title := cleanText(entry.Title)
	desc := cleanText(entry.Description)
	switch {
	case desc == "":
		return title
	case title == "":
		return desc
	default:
		return title + " - " + desc
	}
}

// cleanText removes HTML tags and extra whitespace
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "<br>", " ")
	text = strings.ReplaceAll(text, "<br/>", " ")
	text = strings.ReplaceAll(text, "<br />", " ")
	text = strings.ReplaceAll(text, "</p>", " ")
	text = strings.ReplaceAll(text, "<p>", "")

	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
		} else if r == '>' {
			inTag = false
		} else if !inTag {
			result.WriteRune(r)
		}
	}

	text = result.String()
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text)
}

// Ensure Source implements source.Adapter
var _ source.Adapter = (*Source)(nil)
