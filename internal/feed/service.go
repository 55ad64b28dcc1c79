// Package feed is the consumer-facing side of ingestion: it runs scrapes on
// behalf of a caller, reports their outcome as user-visible notices and
// serves the caller's stored content.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/web3-feed/internal/agent/ingest"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/notify"
	"github.com/web3-feed/internal/storage"
	"github.com/web3-feed/pkg/logger"
)

// Ingestor runs scrape cycles
type Ingestor interface {
	Scrape(ctx context.Context, req models.ScrapeRequest, callerID string) (*ingest.ScrapeResult, error)
	Refresh(ctx context.Context, callerID string, platforms []models.Platform) (*ingest.ScrapeResult, error)
	Health() []ingest.PlatformHealth
}

// Subscriber streams change notifications for one caller
type Subscriber interface {
	Subscribe(ctx context.Context, callerID string) (<-chan notify.Event, func())
}

// Variant is the display style of a notice
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notice is a human-readable outcome of a consumer action
type Notice struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

// Service wires the orchestrator, the store and the notification broker
type Service struct {
	ingestor   Ingestor
	repository storage.Repository
	subscriber Subscriber
	log        *logger.Logger

	mu     sync.Mutex
	active map[string]int
}

// NewService creates a feed service. subscriber may be nil.
func NewService(ingestor Ingestor, repository storage.Repository, subscriber Subscriber, log *logger.Logger) *Service {
	return &Service{
		ingestor:   ingestor,
		repository: repository,
		subscriber: subscriber,
		log:        log.WithComponent("feed"),
		active:     make(map[string]int),
	}
}

// ScrapeContent runs one scrape for callerID. The notice is always set.
func (s *Service) ScrapeContent(ctx context.Context, callerID string, req models.ScrapeRequest) (*ingest.ScrapeResult, Notice, error) {
	done := s.begin(callerID)
	defer done()

	result, err := s.ingestor.Scrape(ctx, req, callerID)
	if err != nil {
		s.log.Warn().Err(err).Str("caller_id", callerID).Msg("Scrape failed")
		return result, failureNotice("Scraping failed", err, "Failed to scrape social media content."), err
	}

	if len(result.Failures) > 0 {
		return result, partialNotice("Scraping partially failed",
			fmt.Sprintf("Scraped %d items.", len(result.Items)), result.Failures), nil
	}

	return result, Notice{
		Title:       "Scraping completed",
		Description: fmt.Sprintf("Successfully scraped %d items from social media platforms.", len(result.Items)),
		Variant:     VariantDefault,
	}, nil
}

// RefreshContent refreshes the given platforms, or every platform when
// none are named. Unknown names are ignored.
func (s *Service) RefreshContent(ctx context.Context, callerID string, platforms []string) (*ingest.ScrapeResult, Notice, error) {
	done := s.begin(callerID)
	defer done()

	var parsed []models.Platform
	for _, raw := range platforms {
		p, err := models.ParsePlatform(raw)
		if err != nil {
			s.log.Warn().Str("platform", raw).Msg("Skipping unsupported platform")
			continue
		}
		parsed = append(parsed, p)
	}
	if len(platforms) > 0 && len(parsed) == 0 {
		err := fmt.Errorf("%w: no supported platforms in %v", models.ErrInvalidConfig, platforms)
		return nil, failureNotice("Refresh failed", err, "Failed to refresh social media content."), err
	}

	result, err := s.ingestor.Refresh(ctx, callerID, parsed)
	if err != nil {
		s.log.Warn().Err(err).Str("caller_id", callerID).Msg("Refresh failed")
		return result, failureNotice("Refresh failed", err, "Failed to refresh social media content."), err
	}

	if len(result.Failures) > 0 {
		return result, partialNotice("Refresh partially failed",
			fmt.Sprintf("Refreshed %d items.", len(result.Items)), result.Failures), nil
	}

	return result, Notice{
		Title:       "Content refreshed",
		Description: "Social media content has been updated.",
		Variant:     VariantDefault,
	}, nil
}

// GetStoredContent returns the caller's most recently fetched items,
// optionally for one platform
func (s *Service) GetStoredContent(ctx context.Context, callerID string, platform *models.Platform) ([]models.ContentItem, error) {
	if err := models.ValidateCallerID(callerID); err != nil {
		return nil, err
	}
	filter := storage.DefaultContentFilter(callerID)
	filter.Platform = platform
	return s.repository.QueryContent(ctx, filter)
}

// IsScraping reports whether a scrape or refresh is running for callerID
func (s *Service) IsScraping(callerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[callerID] > 0
}

// Health returns per-platform scraping health
func (s *Service) Health() []ingest.PlatformHealth {
	return s.ingestor.Health()
}

// Subscribe streams newly inserted items for callerID
func (s *Service) Subscribe(ctx context.Context, callerID string) (<-chan notify.Event, func(), error) {
	if err := models.ValidateCallerID(callerID); err != nil {
		return nil, nil, err
	}
	if s.subscriber == nil {
		return nil, nil, errors.New("change notifications are disabled")
	}
	events, cleanup := s.subscriber.Subscribe(ctx, callerID)
	return events, cleanup, nil
}

func (s *Service) begin(callerID string) func() {
	s.mu.Lock()
	s.active[callerID]++
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.active[callerID]--; s.active[callerID] <= 0 {
			delete(s.active, callerID)
		}
	}
}

func failureNotice(title string, err error, fallback string) Notice {
	desc := fallback
	if err != nil && err.Error() != "" {
		desc = err.Error()
	}
	return Notice{Title: title, Description: desc, Variant: VariantDestructive}
}

// partialNotice reports a scrape that stored content but lost some platforms
func partialNotice(title, summary string, failures []*ingest.PlatformError) Notice {
	names := make([]string, 0, len(failures))
	for _, f := range failures {
		names = append(names, string(f.Platform))
	}
	return Notice{
		Title:       title,
		Description: fmt.Sprintf("%s Failed platforms: %s.", summary, strings.Join(names, ", ")),
		Variant:     VariantDestructive,
	}
}

// PlatformContent returns the items of one platform
func PlatformContent(items []models.ContentItem, platform models.Platform) []models.ContentItem {
	var out []models.ContentItem
	for _, item := range items {
		if item.Platform == platform {
			out = append(out, item)
		}
	}
	return out
}

// ContentByKeywords returns the items whose content or author mentions any
// keyword, ignoring case. No keywords returns items unchanged.
func ContentByKeywords(items []models.ContentItem, keywords []string) []models.ContentItem {
	if len(keywords) == 0 {
		return items
	}
	var out []models.ContentItem
	for _, item := range items {
		content := strings.ToLower(item.Content)
		author := strings.ToLower(item.Author)
		for _, k := range keywords {
			k = strings.ToLower(k)
			if strings.Contains(content, k) || strings.Contains(author, k) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// PlatformCounts counts items per platform
func PlatformCounts(items []models.ContentItem) map[models.Platform]int {
	counts := make(map[models.Platform]int)
	for _, item := range items {
		counts[item.Platform]++
	}
	return counts
}
