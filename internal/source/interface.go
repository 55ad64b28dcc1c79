package source

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/web3-feed/internal/models"
)

// Adapter fetches content for one platform. Adapters do not retry; the
// caller wraps Fetch with the retry controller.
type Adapter interface {
	// Platform returns the platform this adapter serves
	Platform() models.Platform

	// Fetch retrieves at most cfg.MaxResults items published inside cfg.TimeRange
	Fetch(ctx context.Context, cfg models.ScraperConfig, callerID string) ([]models.ContentItem, error)
}

// HealthChecker is implemented by adapters that can probe their upstream
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// GenerateExternalID creates a stable ID for content that has no platform ID
func GenerateExternalID(platform models.Platform, key string) string {
	data := fmt.Sprintf("%s:%s", platform, key)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:16]) // Use first 16 bytes (32 hex chars)
}

// MatchesKeywords reports whether text mentions any keyword, case-insensitively.
// An empty keyword list matches everything.
func MatchesKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// Limit truncates items to max, leaving the slice untouched when max <= 0
func Limit(items []models.ContentItem, max int) []models.ContentItem {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}

// Registry holds one adapter per platform
type Registry struct {
	adapters map[models.Platform]Adapter
}

// NewRegistry creates a registry with the given adapters
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[models.Platform]Adapter),
	}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter, replacing any previous one for the same platform
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Platform()] = a
}

// Get returns the adapter for a platform
func (r *Registry) Get(p models.Platform) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// Platforms returns the registered platforms in a stable order
func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HealthCheck probes every adapter that supports it
func (r *Registry) HealthCheck(ctx context.Context) map[models.Platform]error {
	results := make(map[models.Platform]error)
	for p, a := range r.adapters {
		if hc, ok := a.(HealthChecker); ok {
			results[p] = hc.HealthCheck(ctx)
		}
	}
	return results
}
