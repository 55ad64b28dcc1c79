package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/storage"
	"github.com/web3-feed/pkg/logger"
)

// upsertBatchSize bounds the number of rows per INSERT statement
const upsertBatchSize = 100

// Option configures a Repository
type Option func(*Repository)

// WithNotifier publishes newly inserted content after every upsert
func WithNotifier(n storage.Notifier) Option {
	return func(r *Repository) { r.notifier = n }
}

// WithClock overrides the fetch timestamp source
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// Repository implements storage.Repository using SQLite
type Repository struct {
	db       *gorm.DB
	notifier storage.Notifier
	now      func() time.Time
	log      *logger.Logger
}

// New creates a new SQLite repository
func New(dsn string, log *logger.Logger, opts ...Option) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" && dsn != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection serializes writers, so concurrent upserts never hit SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	r := &Repository{
		db:  db,
		now: time.Now,
		log: log.WithComponent("store"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.StoredContent{},
		&models.ScrapeRun{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Content operations

type contentKey struct {
	platform models.Platform
	id       string
}

func (r *Repository) UpsertContent(ctx context.Context, callerID string, items []models.ContentItem) ([]models.ContentItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	fetchedAt := r.now().UTC()
	rows := make([]*models.StoredContent, 0, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, models.NewStoredContent(callerID, item, fetchedAt))
		ids = append(ids, item.ID)
	}

	var inserted []models.ContentItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.StoredContent
		if err := tx.Select("platform", "platform_content_id").
			Where("user_id = ? AND platform_content_id IN ?", callerID, ids).
			Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to look up existing content: %w", err)
		}

		seen := make(map[contentKey]bool, len(existing)+len(items))
		for _, e := range existing {
			seen[contentKey{e.Platform, e.PlatformContentID}] = true
		}
		for _, item := range items {
			k := contentKey{item.Platform, item.ID}
			if !seen[k] {
				seen[k] = true
				inserted = append(inserted, item)
			}
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "platform"}, {Name: "platform_content_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"author", "content", "date", "engagement", "metadata", "fetched_at", "updated_at",
			}),
		}).CreateInBatches(rows, upsertBatchSize).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert content: %w", err)
	}

	r.log.Debug().
		Str("caller_id", callerID).
		Int("items", len(items)).
		Int("inserted", len(inserted)).
		Msg("Upserted content")

	if r.notifier != nil && len(inserted) > 0 {
		r.notifier.Publish(callerID, inserted)
	}

	return inserted, nil
}

func (r *Repository) QueryContent(ctx context.Context, filter storage.ContentFilter) ([]models.ContentItem, error) {
	query := r.db.WithContext(ctx).Model(&models.StoredContent{}).
		Where("user_id = ?", filter.UserID)

	if filter.Platform != nil {
		query = query.Where("platform = ?", *filter.Platform)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}

	var rows []*models.StoredContent
	if err := query.Order("fetched_at DESC").Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query content: %w", err)
	}

	items := make([]models.ContentItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.Item())
	}
	return items, nil
}

// Scrape run operations

func (r *Repository) RecordScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repository) ListScrapeRuns(ctx context.Context, filter storage.RunFilter) ([]*models.ScrapeRun, error) {
	query := r.db.WithContext(ctx).Model(&models.ScrapeRun{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Platform != nil {
		query = query.Where("platform = ?", *filter.Platform)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var runs []*models.ScrapeRun
	if err := query.Order("started_at DESC").Order("id DESC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Ensure Repository implements storage.Repository
var _ storage.Repository = (*Repository)(nil)
