package youtube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/source"
	"github.com/web3-feed/pkg/logger"
	"github.com/web3-feed/pkg/ratelimit"
)

const (
	maxPageSize  = 50
	defaultQuery = "web3"
)

// Source implements source.Adapter over the YouTube Data API search endpoint
type Source struct {
	service *yt.Service
	pacer   *ratelimit.Pacer
	now     func() time.Time
	log     *logger.Logger
}

// New creates a YouTube source. Extra client options (endpoint, HTTP client)
// are passed through to the API client. pacer may be nil.
func New(ctx context.Context, cfg config.YouTubeConfig, pacer *ratelimit.Pacer, log *logger.Logger, opts ...option.ClientOption) (*Source, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("youtube: api key is required")
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	service, err := yt.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	return &Source{
		service: service,
		pacer:   pacer,
		now:     time.Now,
		log:     log.WithComponent("youtube_source").WithPlatform(string(models.PlatformYouTube)),
	}, nil
}

// Platform returns "youtube"
func (s *Source) Platform() models.Platform {
	return models.PlatformYouTube
}

// Fetch searches videos published inside the time range, newest first, then
// looks up their statistics for engagement counters
func (s *Source) Fetch(ctx context.Context, cfg models.ScraperConfig, callerID string) ([]models.ContentItem, error) {
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx, string(models.PlatformYouTube)); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	query := defaultQuery
	if len(cfg.Keywords) > 0 {
		query = strings.Join(cfg.Keywords, "|")
	}

	size := cfg.MaxResults
	if size > maxPageSize {
		size = maxPageSize
	}

	resp, err := s.service.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		Order("date").
		PublishedAfter(cfg.TimeRange.Since(now).Format(time.RFC3339)).
		MaxResults(int64(size)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}

	items := make([]models.ContentItem, 0, len(resp.Items))
	ids := make([]string, 0, len(resp.Items))
	for _, r := range resp.Items {
		if r.Id == nil || r.Id.VideoId == "" || r.Snippet == nil {
			continue
		}

		published, err := time.Parse(time.RFC3339, r.Snippet.PublishedAt)
		if err != nil {
			published = now
		}

		content := r.Snippet.Title
		if r.Snippet.Description != "" {
			content += " - " + r.Snippet.Description
		}

		ids = append(ids, r.Id.VideoId)
		items = append(items, models.ContentItem{
			ID:       r.Id.VideoId,
			Platform: models.PlatformYouTube,
			Author:   r.Snippet.ChannelTitle,
			Content:  content,
			Date:     published.UTC(),
			Metadata: models.JSON{
				models.MetaScrapedAt: now.Format(time.RFC3339),
				models.MetaSource:    "youtube_api",
				models.MetaKeywords:  append([]string{}, cfg.Keywords...),
				models.MetaURL:       "https://www.youtube.com/watch?v=" + r.Id.VideoId,
			},
		})
	}

	items = source.Limit(items, cfg.MaxResults)
	if len(items) > 0 {
		s.attachStatistics(ctx, items, ids[:len(items)])
	}

	s.log.Info().
		Int("count", len(items)).
		Str("caller_id", callerID).
		Msg("Fetched YouTube videos")

	return items, nil
}

// attachStatistics fills engagement counters. Failures only cost the counters.
func (s *Source) attachStatistics(ctx context.Context, items []models.ContentItem, ids []string) {
	resp, err := s.service.Videos.List([]string{"statistics"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to fetch video statistics")
		return
	}

	stats := make(map[string]*yt.VideoStatistics, len(resp.Items))
	for _, v := range resp.Items {
		stats[v.Id] = v.Statistics
	}

	for i := range items {
		st, ok := stats[items[i].ID]
		if !ok || st == nil {
			continue
		}
		items[i].Engagement = &models.Engagement{
			Likes:    models.Count(int(st.LikeCount)),
			Comments: models.Count(int(st.CommentCount)),
			Views:    models.Count(int(st.ViewCount)),
		}
	}
}

// Ensure Source implements source.Adapter
var _ source.Adapter = (*Source)(nil)
