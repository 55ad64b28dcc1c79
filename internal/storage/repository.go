package storage

import (
	"context"

	"github.com/web3-feed/internal/models"
)

// DefaultQueryLimit caps QueryContent when the filter leaves Limit unset
const DefaultQueryLimit = 50

// Repository defines the interface for data persistence
type Repository interface {
	// Content operations

	// UpsertContent stores items for a caller keyed on (caller, platform, id).
	// Existing rows are overwritten and their fetch time refreshed. It returns
	// the items whose key did not exist before the call.
	UpsertContent(ctx context.Context, callerID string, items []models.ContentItem) ([]models.ContentItem, error)
	// QueryContent returns stored items, most recently fetched first
	QueryContent(ctx context.Context, filter ContentFilter) ([]models.ContentItem, error)

	// Scrape run analytics
	RecordScrapeRun(ctx context.Context, run *models.ScrapeRun) error
	ListScrapeRuns(ctx context.Context, filter RunFilter) ([]*models.ScrapeRun, error)

	// Maintenance
	Close() error
	Migrate() error
}

// Notifier receives newly inserted content after a successful upsert
type Notifier interface {
	Publish(callerID string, items []models.ContentItem) int
}

// Notifiers publishes to each notifier in order
type Notifiers []Notifier

// Publish returns the sum of what every notifier accepted
func (ns Notifiers) Publish(callerID string, items []models.ContentItem) int {
	sent := 0
	for _, n := range ns {
		sent += n.Publish(callerID, items)
	}
	return sent
}

// ContentFilter defines filtering options for stored content
type ContentFilter struct {
	UserID   string
	Platform *models.Platform
	Limit    int
}

// RunFilter defines filtering options for scrape runs
type RunFilter struct {
	UserID   string
	Platform *models.Platform
	Limit    int
}

// DefaultContentFilter returns a filter for one caller with the default limit
func DefaultContentFilter(userID string) ContentFilter {
	return ContentFilter{
		UserID: userID,
		Limit:  DefaultQueryLimit,
	}
}
