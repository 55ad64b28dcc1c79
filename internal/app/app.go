// Package app builds the ingestion stack from configuration. Both binaries
// share it.
package app

import (
	"context"
	"fmt"

	"github.com/web3-feed/internal/agent/ingest"
	"github.com/web3-feed/internal/ai"
	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/internal/feed"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/notify"
	"github.com/web3-feed/internal/processor"
	"github.com/web3-feed/internal/retry"
	"github.com/web3-feed/internal/sentiment"
	"github.com/web3-feed/internal/source"
	"github.com/web3-feed/internal/source/linkedin"
	"github.com/web3-feed/internal/source/mock"
	"github.com/web3-feed/internal/source/rss"
	"github.com/web3-feed/internal/source/twitter"
	"github.com/web3-feed/internal/source/youtube"
	"github.com/web3-feed/internal/storage"
	"github.com/web3-feed/internal/storage/sqlite"
	"github.com/web3-feed/internal/tracker"
	"github.com/web3-feed/pkg/logger"
	"github.com/web3-feed/pkg/ratelimit"
)

// App holds the wired components
type App struct {
	Config       *config.Config
	Repository   *sqlite.Repository
	Broker       *notify.Broker
	Limiter      *ratelimit.Limiter
	Registry     *source.Registry
	Orchestrator *ingest.Orchestrator
	Feed         *feed.Service
	Tracker      *tracker.SheetsTracker
	Log          *logger.Logger
}

// NewLogger builds the logger described by cfg
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// New wires storage, adapters, the pipeline and the feed service
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	broker := notify.NewBroker(log)
	notifiers := storage.Notifiers{broker}

	var sheetsTracker *tracker.SheetsTracker
	if cfg.Tracker.Enabled {
		t, err := tracker.NewSheetsTracker(ctx, cfg.Tracker, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create tracker: %w", err)
		}
		if err := t.InitializeSheet(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracker sheet")
		}
		t.Start()
		sheetsTracker = t
		notifiers = append(notifiers, t)
		log.Info().Msg("Exporting new content to Google Sheets")
	}

	repo, err := sqlite.New(cfg.Database.DSN, log, sqlite.WithNotifier(notifiers))
	if err != nil {
		if sheetsTracker != nil {
			sheetsTracker.Close()
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{
		Config:     cfg,
		Repository: repo,
		Broker:     broker,
		Tracker:    sheetsTracker,
		Log:        log,
	}
	fail := func(err error) (*App, error) {
		_ = a.Close()
		return nil, err
	}

	if err := repo.Migrate(); err != nil {
		return fail(fmt.Errorf("failed to run migrations: %w", err))
	}

	quotas := cfg.Quotas()
	limiter := ratelimit.NewLimiter(quotas)
	pacer := ratelimit.NewPacerFromQuotas(quotas)

	registry, err := NewRegistry(ctx, cfg, pacer, log)
	if err != nil {
		return fail(err)
	}

	scorer, err := NewScorer(cfg, log)
	if err != nil {
		return fail(err)
	}

	ctrl := retry.NewController(retry.Policy{
		MaxRetries:       cfg.Retry.MaxRetries,
		BaseDelay:        cfg.Retry.BaseDelay,
		MaxDelay:         cfg.Retry.MaxDelay,
		MaxRateLimitWait: cfg.Scraper.MaxRateLimitWait,
	}, limiter, log)

	opts := []ingest.Option{
		ingest.WithRefreshMaxResults(cfg.Scraper.RefreshMaxResults),
		ingest.WithRequestDefaults(cfg.Scraper.DefaultMaxResults, models.TimeRange(cfg.Scraper.DefaultTimeRange)),
	}
	if !cfg.Scraper.Concurrent {
		opts = append(opts, ingest.WithSequential())
	}
	orch := ingest.NewOrchestrator(registry, ctrl, limiter, processor.New(scorer, log), repo, log, opts...)

	a.Limiter = limiter
	a.Registry = registry
	a.Orchestrator = orch
	a.Feed = feed.NewService(orch, repo, broker, log)
	return a, nil
}

// Close flushes pending exports and releases the broker and the database
func (a *App) Close() error {
	if a.Tracker != nil {
		a.Tracker.Close()
	}
	a.Broker.Close()
	return a.Repository.Close()
}

// NewScorer returns the configured sentiment scorer
func NewScorer(cfg *config.Config, log *logger.Logger) (sentiment.Scorer, error) {
	switch cfg.Sentiment.Scorer {
	case "", "vader":
		return sentiment.NewVaderScorer(), nil
	case "random":
		return sentiment.NewRandomScorer(cfg.Sentiment.Seed), nil
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic scorer requires an API key")
		}
		return ai.NewScorer(ai.NewClient(cfg.Anthropic, log)), nil
	default:
		return nil, fmt.Errorf("unknown sentiment scorer %q", cfg.Sentiment.Scorer)
	}
}

// NewRegistry registers one adapter per supported platform. In live mode a
// platform uses its API adapter when credentials are configured and falls
// back to generated content otherwise.
func NewRegistry(ctx context.Context, cfg *config.Config, pacer *ratelimit.Pacer, log *logger.Logger) (*source.Registry, error) {
	mockOpts := []mock.Option{}
	if cfg.Scraper.Seed != 0 {
		mockOpts = append(mockOpts, mock.WithSeed(cfg.Scraper.Seed))
	}
	registry := source.NewRegistry(mock.NewAll(log, mockOpts...)...)

	if cfg.Scraper.Adapter != "live" {
		log.Info().Msg("Using generated content for every platform")
		return registry, nil
	}

	platforms := cfg.Platforms

	if len(platforms.Blog.Feeds) > 0 {
		registry.Register(rss.New(platforms.Blog, pacer, log))
		log.Info().Int("feeds", len(platforms.Blog.Feeds)).Msg("Blog adapter enabled")
	}

	if platforms.Twitter.BearerToken != "" {
		registry.Register(twitter.New(platforms.Twitter, pacer, log))
		log.Info().Msg("Twitter adapter enabled")
	}

	if platforms.YouTube.APIKey != "" {
		yt, err := youtube.New(ctx, platforms.YouTube, pacer, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create youtube adapter: %w", err)
		}
		registry.Register(yt)
		log.Info().Msg("YouTube adapter enabled")
	}

	if platforms.LinkedIn.AccessToken != "" && platforms.LinkedIn.OrganizationURN != "" {
		tokens, err := linkedin.NewTokenManager(ctx, platforms.LinkedIn, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create linkedin token manager: %w", err)
		}
		li, err := linkedin.New(ctx, platforms.LinkedIn, tokens, pacer, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create linkedin adapter: %w", err)
		}
		registry.Register(li)
		log.Info().Msg("LinkedIn adapter enabled")
	}

	return registry, nil
}
