package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/processor"
	"github.com/web3-feed/internal/retry"
	"github.com/web3-feed/internal/source"
	"github.com/web3-feed/internal/storage"
	"github.com/web3-feed/pkg/logger"
	"github.com/web3-feed/pkg/ratelimit"
)

// DefaultRefreshMaxResults is the per-platform cap of a refresh
const DefaultRefreshMaxResults = 20

// PersistenceError wraps a store failure. It aborts the whole scrape.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist content: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PlatformError is the final error of one platform after its retries
type PlatformError struct {
	Platform models.Platform
	Attempts int
	Err      error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %v", e.Platform, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// ScrapeResult contains the results of one scrape
type ScrapeResult struct {
	RunID    string
	Items    []models.ContentItem
	Fetched  int
	Inserted int
	Skipped  []string
	Failures []*PlatformError
	Stats    processor.Stats
	Duration time.Duration
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithSequential fetches platforms one after another
func WithSequential() Option {
	return func(o *Orchestrator) { o.concurrent = false }
}

// WithRefreshMaxResults sets the per-platform cap used by Refresh
func WithRefreshMaxResults(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.refreshMaxResults = n
		}
	}
}

// WithRequestDefaults fills maxResults and timeRange of requests that leave them unset
func WithRequestDefaults(maxResults int, timeRange models.TimeRange) Option {
	return func(o *Orchestrator) {
		o.defaultMaxResults = maxResults
		o.defaultTimeRange = timeRange
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

type lastScrape struct {
	at  time.Time
	err error
}

// Orchestrator runs fetch, process and persist cycles across platforms
type Orchestrator struct {
	registry          *source.Registry
	retry             *retry.Controller
	limiter           *ratelimit.Limiter
	processor         *processor.Processor
	repository        storage.Repository
	concurrent        bool
	refreshMaxResults int
	defaultMaxResults int
	defaultTimeRange  models.TimeRange
	now               func() time.Time
	log               *logger.Logger

	mu   sync.RWMutex
	last map[models.Platform]lastScrape
}

// NewOrchestrator creates a new ingestion orchestrator
func NewOrchestrator(
	registry *source.Registry,
	ctrl *retry.Controller,
	limiter *ratelimit.Limiter,
	proc *processor.Processor,
	repository storage.Repository,
	log *logger.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		registry:          registry,
		retry:             ctrl,
		limiter:           limiter,
		processor:         proc,
		repository:        repository,
		concurrent:        true,
		refreshMaxResults: DefaultRefreshMaxResults,
		now:               time.Now,
		log:               log.WithComponent("ingest"),
		last:              make(map[models.Platform]lastScrape),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Scrape validates a raw request and runs it for callerID
func (o *Orchestrator) Scrape(ctx context.Context, req models.ScrapeRequest, callerID string) (*ScrapeResult, error) {
	if err := models.ValidateCallerID(callerID); err != nil {
		return nil, err
	}
	if req.MaxResults == 0 && o.defaultMaxResults > 0 {
		req.MaxResults = o.defaultMaxResults
	}
	if req.TimeRange == "" && o.defaultTimeRange != "" {
		req.TimeRange = string(o.defaultTimeRange)
	}
	cfg, skipped, err := models.NewScraperConfig(req)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, cfg, skipped, callerID)
}

// Refresh pulls fresh content without keywords using a wider config. An
// empty platform list means every platform with an adapter.
func (o *Orchestrator) Refresh(ctx context.Context, callerID string, platforms []models.Platform) (*ScrapeResult, error) {
	if err := models.ValidateCallerID(callerID); err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		platforms = o.registry.Platforms()
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: no platforms to refresh", models.ErrInvalidConfig)
	}

	cfg := models.ScraperConfig{
		Platforms:  platforms,
		MaxResults: o.refreshMaxResults,
		TimeRange:  models.TimeRangeDay,
	}
	return o.run(ctx, cfg, nil, callerID)
}

type fetchOutcome struct {
	items    []models.ContentItem
	attempts int
	err      error
}

func (o *Orchestrator) run(ctx context.Context, cfg models.ScraperConfig, skipped []string, callerID string) (*ScrapeResult, error) {
	startTime := o.now()
	result := &ScrapeResult{RunID: uuid.NewString(), Skipped: skipped}
	log := o.log.WithCaller(callerID).WithRunID(result.RunID)

	for _, raw := range skipped {
		log.Warn().Str("platform", raw).Msg("Skipping unsupported platform")
	}

	var platforms []models.Platform
	for _, p := range cfg.Platforms {
		if _, ok := o.registry.Get(p); !ok {
			log.Warn().Str("platform", string(p)).Msg("No adapter registered, skipping platform")
			result.Skipped = append(result.Skipped, string(p))
			continue
		}
		platforms = append(platforms, p)
	}

	if len(platforms) == 0 {
		result.Duration = o.now().Sub(startTime)
		return result, fmt.Errorf("%w: no adapter registered for %v", models.ErrUnsupportedPlatform, cfg.Platforms)
	}

	log.Info().
		Int("platforms", len(platforms)).
		Int("max_results", cfg.MaxResults).
		Str("time_range", string(cfg.TimeRange)).
		Msg("Starting scrape")

	// Step 1: Fetch every platform, isolating failures
	outcomes := o.fetchAll(ctx, cfg, platforms, callerID, result.RunID)

	var raw []models.ContentItem
	var errs []error
	for i, p := range platforms {
		out := outcomes[i]
		if out.err != nil {
			pe := &PlatformError{Platform: p, Attempts: out.attempts, Err: out.err}
			result.Failures = append(result.Failures, pe)
			errs = append(errs, pe)
			log.Warn().Err(out.err).Str("platform", string(p)).Int("attempts", out.attempts).Msg("Platform scrape failed")
			continue
		}
		raw = append(raw, out.items...)
	}
	result.Fetched = len(raw)

	if len(result.Failures) == len(platforms) {
		result.Duration = o.now().Sub(startTime)
		log.Error().Int("failed", len(platforms)).Msg("Every platform failed")
		return result, errors.Join(errs...)
	}

	// Step 2: Process the merged batch
	processed, stats, err := o.processor.Process(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to process content: %w", err)
	}
	result.Stats = stats

	// Step 3: Persist
	inserted, err := o.repository.UpsertContent(ctx, callerID, processed)
	if err != nil {
		log.Error().Err(err).Int("items", len(processed)).Msg("Failed to persist content")
		return nil, &PersistenceError{Err: err}
	}
	result.Items = processed
	result.Inserted = len(inserted)
	result.Duration = o.now().Sub(startTime)

	log.Info().
		Int("fetched", result.Fetched).
		Int("stored", len(processed)).
		Int("inserted", result.Inserted).
		Int("failed_platforms", len(result.Failures)).
		Dur("duration", result.Duration).
		Msg("Scrape completed")

	return result, nil
}

// fetchAll returns one outcome per platform, in platform order
func (o *Orchestrator) fetchAll(ctx context.Context, cfg models.ScraperConfig, platforms []models.Platform, callerID, runID string) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(platforms))

	if !o.concurrent {
		for i, p := range platforms {
			outcomes[i] = o.fetchPlatform(ctx, cfg, p, callerID, runID)
		}
		return outcomes
	}

	var wg sync.WaitGroup
	for i, p := range platforms {
		wg.Add(1)
		go func(i int, p models.Platform) {
			defer wg.Done()
			outcomes[i] = o.fetchPlatform(ctx, cfg, p, callerID, runID)
		}(i, p)
	}
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) fetchPlatform(ctx context.Context, cfg models.ScraperConfig, p models.Platform, callerID, runID string) fetchOutcome {
	adapter, _ := o.registry.Get(p)
	started := o.now()

	var items []models.ContentItem
	attempts, err := o.retry.Execute(ctx, string(p), func(ctx context.Context) error {
		fetched, ferr := adapter.Fetch(ctx, cfg, callerID)
		if ferr != nil {
			return ferr
		}
		items = fetched
		return nil
	})

	finished := o.now()
	o.mu.Lock()
	o.last[p] = lastScrape{at: finished, err: err}
	o.mu.Unlock()

	o.recordRun(ctx, &models.ScrapeRun{
		RunID:        runID,
		UserID:       callerID,
		Platform:     p,
		ItemCount:    len(items),
		Attempts:     attempts,
		Status:       runStatus(err),
		ErrorMessage: errorMessage(err),
		StartedAt:    started,
		FinishedAt:   finished,
	})

	if err != nil {
		return fetchOutcome{attempts: attempts, err: err}
	}
	return fetchOutcome{items: items, attempts: attempts}
}

// recordRun stores analytics for one platform; failures are only logged
func (o *Orchestrator) recordRun(ctx context.Context, run *models.ScrapeRun) {
	if err := o.repository.RecordScrapeRun(context.WithoutCancel(ctx), run); err != nil {
		o.log.Warn().Err(err).Str("platform", string(run.Platform)).Msg("Failed to record scrape run")
	}
}

func runStatus(err error) models.ScrapeRunStatus {
	if err != nil {
		return models.ScrapeRunFailed
	}
	return models.ScrapeRunSucceeded
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// HealthStatus is the state of one platform
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthRateLimited HealthStatus = "rate_limited"
	HealthError       HealthStatus = "error"
)

// PlatformHealth describes one platform's scraping health
type PlatformHealth struct {
	Platform      models.Platform `json:"platform"`
	Status        HealthStatus    `json:"status"`
	LastScrape    *time.Time      `json:"lastScrape,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
	Remaining     int             `json:"remaining"`
	WindowResetAt *time.Time      `json:"windowResetAt,omitempty"`
}

// Health reports every supported platform. Rate limiting takes precedence
// over a failed last scrape.
func (o *Orchestrator) Health() []PlatformHealth {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]PlatformHealth, 0, len(models.SupportedPlatforms()))
	for _, p := range models.SupportedPlatforms() {
		h := PlatformHealth{Platform: p, Status: HealthHealthy, Remaining: -1}

		if o.limiter != nil {
			st := o.limiter.Snapshot(string(p))
			h.Remaining = st.Remaining()
			if !st.WindowResetAt.IsZero() {
				reset := st.WindowResetAt
				h.WindowResetAt = &reset
			}
		}

		if last, ok := o.last[p]; ok {
			at := last.at
			h.LastScrape = &at
			if last.err != nil {
				h.Status = HealthError
				h.LastError = last.err.Error()
			}
		}
		if o.limiter != nil && !o.limiter.Allow(string(p)) {
			h.Status = HealthRateLimited
		}

		out = append(out, h)
	}
	return out
}
