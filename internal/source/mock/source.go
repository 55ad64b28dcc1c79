package mock

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/source"
	"github.com/web3-feed/pkg/logger"
)

// DefaultKeyword fills templates when the request has no keywords
const DefaultKeyword = "Web3"

// SourceName is written to metadata.source for generated items
const SourceName = "automated_scraper"

type profile struct {
	authors   []string
	templates []string
}

var profiles = map[models.Platform]profile{
	models.PlatformTwitter: {
		authors: []string{"@AutheoProject", "@Web3Community", "@BlockchainNews", "@CryptoUpdates"},
		templates: []string{
			"Excited to announce our latest partnership with {keyword} technology!",
			"New developments in {keyword} are reshaping the industry",
			"Community update: {keyword} integration is now live!",
			"Just published our latest blog post about {keyword} innovations",
		},
	},
	models.PlatformLinkedIn: {
		authors: []string{"Autheo Team", "Blockchain Innovations", "Web3 Professionals", "Tech Leaders"},
		templates: []string{
			"We are thrilled to share our progress in {keyword} development",
			"Join our upcoming webinar on {keyword} best practices",
			"Our team has been working on revolutionary {keyword} solutions",
			"Industry insights: How {keyword} is transforming business",
		},
	},
	models.PlatformDiscord: {
		authors: []string{"Autheo Admin", "Community Manager", "Dev Team", "Moderator"},
		templates: []string{
			"🚀 New {keyword} features are now available in the latest update!",
			"Community discussion: What are your thoughts on {keyword}?",
			"Tech update: {keyword} implementation is progressing well",
			"Join our {keyword} workshop this Friday!",
		},
	},
	models.PlatformTelegram: {
		authors: []string{"Autheo Official", "News Bot", "Community Admin", "Development Team"},
		templates: []string{
			"📢 Breaking: {keyword} milestone achieved!",
			"🔥 Hot topic: {keyword} trends in the crypto space",
			"💡 Pro tip: Best practices for {keyword} implementation",
			"🎯 Goal update: {keyword} roadmap progress",
		},
	},
	models.PlatformYouTube: {
		authors: []string{"Autheo Channel", "Tech Tutorials", "Crypto Insights", "Web3 Academy"},
		templates: []string{
			"{keyword} Explained: Complete Guide for Beginners",
			"Advanced {keyword} Strategies That Actually Work",
			"Live Discussion: The Future of {keyword}",
			"Tutorial: How to Get Started with {keyword}",
		},
	},
	models.PlatformBlog: {
		authors: []string{"Autheo Editorial", "Guest Writer", "Technical Team", "Research Division"},
		templates: []string{
			"Deep Dive: Understanding {keyword} Architecture",
			"Case Study: Successful {keyword} Implementation",
			"Opinion: Why {keyword} Matters for the Future",
			"Guide: {keyword} Best Practices and Common Pitfalls",
		},
	},
}

// Option configures a Source
type Option func(*Source)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// WithSeed makes generation deterministic
func WithSeed(seed int64) Option {
	return func(s *Source) { s.rng = rand.New(rand.NewSource(seed)) }
}

// Source generates plausible content for one platform without calling any API
type Source struct {
	platform models.Platform
	profile  profile
	now      func() time.Time
	log      *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a generator for a platform
func New(platform models.Platform, log *logger.Logger, opts ...Option) (*Source, error) {
	p, ok := profiles[platform]
	if !ok {
		return nil, fmt.Errorf("mock source: %w: %q", models.ErrUnsupportedPlatform, platform)
	}
	s := &Source{
		platform: platform,
		profile:  p,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      log.WithComponent("mock_source").WithPlatform(string(platform)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewAll creates a generator for every supported platform
func NewAll(log *logger.Logger, opts ...Option) []source.Adapter {
	adapters := make([]source.Adapter, 0, len(profiles))
	for _, p := range models.SupportedPlatforms() {
		s, err := New(p, log, opts...)
		if err != nil {
			continue
		}
		adapters = append(adapters, s)
	}
	return adapters
}

// Platform returns the platform this source generates for
func (s *Source) Platform() models.Platform {
	return s.platform
}

// Fetch generates cfg.MaxResults items dated inside cfg.TimeRange
func (s *Source) Fetch(ctx context.Context, cfg models.ScraperConfig, callerID string) ([]models.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	keyword := cfg.PrimaryKeyword(DefaultKeyword)
	window := cfg.TimeRange.Duration()
	keywords := append([]string{}, cfg.Keywords...)

	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]models.ContentItem, 0, cfg.MaxResults)
	for i := 0; i < cfg.MaxResults; i++ {
		author := s.profile.authors[s.rng.Intn(len(s.profile.authors))]
		template := s.profile.templates[s.rng.Intn(len(s.profile.templates))]
		age := time.Duration(s.rng.Int63n(int64(window)))

		items = append(items, models.ContentItem{
			ID:         fmt.Sprintf("%s_%d_%d", s.platform, now.UnixMilli(), i),
			Platform:   s.platform,
			Author:     author,
			Content:    strings.Replace(template, "{keyword}", keyword, 1),
			Date:       now.Add(-age),
			Engagement: s.engagement(),
			Metadata: models.JSON{
				models.MetaScrapedAt: now.Format(time.RFC3339),
				models.MetaSource:    SourceName,
				models.MetaKeywords:  keywords,
			},
		})
	}

	s.log.Debug().
		Str("caller_id", callerID).
		Str("keyword", keyword).
		Int("count", len(items)).
		Msg("Generated mock content")

	return items, nil
}

// engagement returns the counter subset each platform exposes
func (s *Source) engagement() *models.Engagement {
	likes := s.rng.Intn(500) + 10
	shares := s.rng.Intn(100) + 1
	comments := s.rng.Intn(50) + 1

	switch s.platform {
	case models.PlatformYouTube:
		return &models.Engagement{
			Likes:    models.Count(likes),
			Views:    models.Count(s.rng.Intn(10000) + 100),
			Comments: models.Count(comments),
		}
	case models.PlatformTelegram:
		return &models.Engagement{
			Views: models.Count(s.rng.Intn(5000) + 50),
		}
	default:
		return &models.Engagement{
			Likes:    models.Count(likes),
			Shares:   models.Count(shares),
			Comments: models.Count(comments),
		}
	}
}

// HealthCheck always succeeds for generated content
func (s *Source) HealthCheck(ctx context.Context) error {
	return nil
}

// Ensure Source implements source.Adapter
var _ source.Adapter = (*Source)(nil)
