package twitter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/source"
	"github.com/web3-feed/pkg/logger"
	"github.com/web3-feed/pkg/ratelimit"
)

const (
	// DefaultBaseURL is the Twitter API v2 root
	DefaultBaseURL = "https://api.twitter.com/2"

	// the recent search endpoint accepts 10..100 results per page
	minPageSize = 10
	maxPageSize = 100

	defaultQuery = "web3"
)

// Source implements source.Adapter over the Twitter recent search API
type Source struct {
	client *resty.Client
	pacer  *ratelimit.Pacer
	now    func() time.Time
	log    *logger.Logger
}

type searchResponse struct {
	Data     []tweet `json:"data"`
	Includes struct {
		Users []user `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type tweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		RetweetCount    int `json:"retweet_count"`
		LikeCount       int `json:"like_count"`
		ReplyCount      int `json:"reply_count"`
		ImpressionCount int `json:"impression_count"`
	} `json:"public_metrics"`
}

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// New creates a Twitter source. pacer may be nil.
func New(cfg config.TwitterConfig, pacer *ratelimit.Pacer, log *logger.Logger) *Source {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Source{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30*time.Second).
			SetAuthToken(cfg.BearerToken).
			SetHeader("User-Agent", "web3-feed/1.0"),
		pacer: pacer,
		now:   time.Now,
		log:   log.WithComponent("twitter_source").WithPlatform(string(models.PlatformTwitter)),
	}
}

// Platform returns "twitter"
func (s *Source) Platform() models.Platform {
	return models.PlatformTwitter
}

// Fetch runs one recent search for the request keywords inside the time range
func (s *Source) Fetch(ctx context.Context, cfg models.ScraperConfig, callerID string) ([]models.ContentItem, error) {
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx, string(models.PlatformTwitter)); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	query := buildQuery(cfg.Keywords)

	s.log.Debug().Str("query", query).Str("caller_id", callerID).Msg("Searching tweets")

	var result searchResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":        query,
			"start_time":   cfg.TimeRange.Since(now).Format(time.RFC3339),
			"max_results":  strconv.Itoa(pageSize(cfg.MaxResults)),
			"tweet.fields": "created_at,author_id,public_metrics",
			"expansions":   "author_id",
			"user.fields":  "username",
		}).
		SetResult(&result).
		Get("/tweets/search/recent")
	if err != nil {
		return nil, fmt.Errorf("twitter search: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		s.log.Warn().Str("reset", resp.Header().Get("x-rate-limit-reset")).Msg("Twitter API rate limit hit")
		return nil, fmt.Errorf("twitter search: %w", ratelimit.ErrRateLimited)
	default:
		return nil, fmt.Errorf("twitter API returned status %d: %s", resp.StatusCode(), resp.String())
	}

	handles := make(map[string]string, len(result.Includes.Users))
	for _, u := range result.Includes.Users {
		handles[u.ID] = "@" + u.Username
	}

	items := make([]models.ContentItem, 0, len(result.Data))
	for _, t := range result.Data {
		createdAt, err := time.Parse(time.RFC3339, t.CreatedAt)
		if err != nil {
			s.log.Debug().Err(err).Str("tweet_id", t.ID).Msg("Failed to parse tweet timestamp")
			createdAt = now
		}

		author := handles[t.AuthorID]
		if author == "" {
			author = t.AuthorID
		}

		items = append(items, models.ContentItem{
			ID:       t.ID,
			Platform: models.PlatformTwitter,
			Author:   author,
			Content:  t.Text,
			Date:     createdAt.UTC(),
			Engagement: &models.Engagement{
				Likes:    models.Count(t.PublicMetrics.LikeCount),
				Shares:   models.Count(t.PublicMetrics.RetweetCount),
				Comments: models.Count(t.PublicMetrics.ReplyCount),
				Views:    models.Count(t.PublicMetrics.ImpressionCount),
			},
			Metadata: models.JSON{
				models.MetaScrapedAt: now.Format(time.RFC3339),
				models.MetaSource:    "twitter_api",
				models.MetaKeywords:  append([]string{}, cfg.Keywords...),
				models.MetaURL:       "https://twitter.com/i/status/" + t.ID,
			},
		})
	}

	items = source.Limit(items, cfg.MaxResults)
	s.log.Info().Int("count", len(items)).Msg("Fetched tweets")
	return items, nil
}

// buildQuery ORs the quoted keywords together
func buildQuery(keywords []string) string {
	if len(keywords) == 0 {
		return defaultQuery
	}
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		quoted = append(quoted, fmt.Sprintf("%q", k))
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return "(" + strings.Join(quoted, " OR ") + ")"
}

func pageSize(maxResults int) int {
	switch {
	case maxResults < minPageSize:
		return minPageSize
	case maxResults > maxPageSize:
		return maxPageSize
	default:
		return maxResults
	}
}

// Ensure Source implements source.Adapter
var _ source.Adapter = (*Source)(nil)
