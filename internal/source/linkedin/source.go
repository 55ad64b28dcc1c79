package linkedin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/source"
	"github.com/web3-feed/pkg/logger"
	"github.com/web3-feed/pkg/ratelimit"
)

const (
	defaultBaseURL  = "https://api.linkedin.com/v2"
	restliVersion   = "2.0.0"
	linkedinVersion = "202401" // LinkedIn API version
	maxPageSize     = 50
)

// Post represents a post from the LinkedIn API
type Post struct {
	URN          string `json:"id"`
	Author       string `json:"author"`
	Commentary   string `json:"commentary"`
	PublishedAt  int64  `json:"publishedAt"` // epoch millis
	LikeCount    int    `json:"likeCount"`
	CommentCount int    `json:"commentCount"`
}

// Source implements source.Adapter over the LinkedIn posts API for one
// organization's feed
type Source struct {
	httpClient *http.Client
	baseURL    string
	author     string
	pacer      *ratelimit.Pacer
	now        func() time.Time
	log        *logger.Logger
}

// New creates a LinkedIn source. Requests are authorized by tokens from ts.
// pacer may be nil.
func New(ctx context.Context, cfg config.LinkedInConfig, ts oauth2.TokenSource, pacer *ratelimit.Pacer, log *logger.Logger) (*Source, error) {
	if cfg.OrganizationURN == "" {
		return nil, fmt.Errorf("linkedin: organization_urn is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = 30 * time.Second

	return &Source{
		httpClient: httpClient,
		baseURL:    baseURL,
		author:     cfg.OrganizationURN,
		pacer:      pacer,
		now:        time.Now,
		log:        log.WithComponent("linkedin_source").WithPlatform(string(models.PlatformLinkedIn)),
	}, nil
}

// Platform returns "linkedin"
func (s *Source) Platform() models.Platform {
	return models.PlatformLinkedIn
}

// Fetch lists the organization's recent posts and keeps those inside the
// time range that mention a keyword
func (s *Source) Fetch(ctx context.Context, cfg models.ScraperConfig, callerID string) ([]models.ContentItem, error) {
	posts, err := s.getPostsByAuthor(ctx, s.author, cfg.MaxResults)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	since := cfg.TimeRange.Since(now)

	items := make([]models.ContentItem, 0, len(posts))
	for _, p := range posts {
		published := time.UnixMilli(p.PublishedAt).UTC()
		if p.PublishedAt == 0 {
			published = now
		}
		if published.Before(since) || !source.MatchesKeywords(p.Commentary, cfg.Keywords) {
			continue
		}

		items = append(items, models.ContentItem{
			ID:       p.URN,
			Platform: models.PlatformLinkedIn,
			Author:   p.Author,
			Content:  p.Commentary,
			Date:     published,
			Engagement: &models.Engagement{
				Likes:    models.Count(p.LikeCount),
				Comments: models.Count(p.CommentCount),
			},
			Metadata: models.JSON{
				models.MetaScrapedAt: now.Format(time.RFC3339),
				models.MetaSource:    "linkedin_api",
				models.MetaKeywords:  append([]string{}, cfg.Keywords...),
			},
		})
	}

	items = source.Limit(items, cfg.MaxResults)
	s.log.Info().
		Int("count", len(items)).
		Str("caller_id", callerID).
		Msg("Fetched LinkedIn posts")

	return items, nil
}

// getPostsByAuthor fetches recent posts from a specific author
func (s *Source) getPostsByAuthor(ctx context.Context, authorURN string, count int) ([]Post, error) {
	if count <= 0 {
		count = models.DefaultMaxResults
	}
	if count > maxPageSize {
		count = maxPageSize
	}

	if s.pacer != nil {
		if err := s.pacer.Wait(ctx, string(models.PlatformLinkedIn)); err != nil {
			return nil, fmt.Errorf("rate limit error: %w", err)
		}
	}

	q := url.Values{}
	q.Set("q", "author")
	q.Set("author", authorURN)
	q.Set("count", strconv.Itoa(count))
	q.Set("sortBy", "LAST_MODIFIED")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/posts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)
	req.Header.Set("LinkedIn-Version", linkedinVersion)

	s.log.Debug().Str("author", authorURN).Int("count", count).Msg("Making LinkedIn API request")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("failed to fetch posts: %w", ratelimit.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		s.log.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("Failed to fetch posts - API may require additional permissions")
		return nil, fmt.Errorf("failed to fetch posts: %s", resp.Status)
	}

	var result struct {
		Elements []Post `json:"elements"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse posts response: %w", err)
	}

	return result.Elements, nil
}

// Ensure Source implements source.Adapter
var _ source.Adapter = (*Source)(nil)
