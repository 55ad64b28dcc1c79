package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig marks a request rejected before any network activity
var ErrInvalidConfig = errors.New("invalid scraper config")

// DefaultMaxResults is the per-platform cap used when a request leaves it unset
const DefaultMaxResults = 10

// MaxResultsLimit caps the per-platform result count of a single request
const MaxResultsLimit = 100

// TimeRange is the lookback window of a scrape
type TimeRange string

const (
	TimeRangeHour  TimeRange = "1h"
	TimeRangeDay   TimeRange = "24h"
	TimeRangeWeek  TimeRange = "7d"
	TimeRangeMonth TimeRange = "30d"
)

// DefaultTimeRange is used when a request leaves the range unset
const DefaultTimeRange = TimeRangeDay

// ParseTimeRange validates a raw range; empty input yields the default
func ParseTimeRange(s string) (TimeRange, error) {
	switch tr := TimeRange(strings.TrimSpace(s)); tr {
	case "":
		return DefaultTimeRange, nil
	case TimeRangeHour, TimeRangeDay, TimeRangeWeek, TimeRangeMonth:
		return tr, nil
	default:
		return "", fmt.Errorf("%w: unknown time range %q", ErrInvalidConfig, s)
	}
}

// Duration returns the lookback as a duration
func (t TimeRange) Duration() time.Duration {
	switch t {
	case TimeRangeHour:
		return time.Hour
	case TimeRangeWeek:
		return 7 * 24 * time.Hour
	case TimeRangeMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Since returns the start of the window relative to now
func (t TimeRange) Since(now time.Time) time.Time {
	return now.Add(-t.Duration())
}

// ScrapeRequest is the untyped request a consumer sends
type ScrapeRequest struct {
	Platforms  []string `json:"platforms"`
	Keywords   []string `json:"keywords,omitempty"`
	MaxResults int      `json:"maxResults,omitempty"`
	TimeRange  string   `json:"timeRange,omitempty"`
}

// ScraperConfig is a validated scrape request
type ScraperConfig struct {
	Platforms  []Platform
	Keywords   []string
	MaxResults int
	TimeRange  TimeRange
}

// PrimaryKeyword returns the first keyword or the fallback
func (c ScraperConfig) PrimaryKeyword(fallback string) string {
	for _, k := range c.Keywords {
		if k != "" {
			return k
		}
	}
	return fallback
}

// NewScraperConfig validates a request. Unsupported platforms are not fatal
// as long as one supported platform remains: they are returned in skipped so
// the caller can warn about them. MaxResults is capped at MaxResultsLimit.
func NewScraperConfig(req ScrapeRequest) (cfg ScraperConfig, skipped []string, err error) {
	if len(req.Platforms) == 0 {
		return ScraperConfig{}, nil, fmt.Errorf("%w: at least one platform is required", ErrInvalidConfig)
	}
	if req.MaxResults < 0 {
		return ScraperConfig{}, nil, fmt.Errorf("%w: maxResults must be positive, got %d", ErrInvalidConfig, req.MaxResults)
	}

	tr, err := ParseTimeRange(req.TimeRange)
	if err != nil {
		return ScraperConfig{}, nil, err
	}

	cfg = ScraperConfig{
		MaxResults: req.MaxResults,
		TimeRange:  tr,
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.MaxResults > MaxResultsLimit {
		cfg.MaxResults = MaxResultsLimit
	}

	seen := make(map[Platform]bool, len(req.Platforms))
	for _, raw := range req.Platforms {
		p, perr := ParsePlatform(raw)
		if perr != nil {
			skipped = append(skipped, raw)
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		cfg.Platforms = append(cfg.Platforms, p)
	}
	if len(cfg.Platforms) == 0 {
		return ScraperConfig{}, skipped, fmt.Errorf("%w: no supported platform in %v", ErrInvalidConfig, req.Platforms)
	}

	for _, k := range req.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			cfg.Keywords = append(cfg.Keywords, k)
		}
	}

	return cfg, skipped, nil
}

// ValidateCallerID rejects operations without an authenticated identity
func ValidateCallerID(callerID string) error {
	if strings.TrimSpace(callerID) == "" {
		return fmt.Errorf("%w: caller id is required", ErrInvalidConfig)
	}
	return nil
}
