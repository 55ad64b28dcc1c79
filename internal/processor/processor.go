// Package processor normalizes, filters, enriches and deduplicates scraped
// content before it is persisted.
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/sentiment"
	"github.com/web3-feed/pkg/logger"
)

// MinContentLength is the shortest body that survives the filter stage
const MinContentLength = 10

// FilteredTooShort is the filter tag for bodies under MinContentLength
const FilteredTooShort = "too_short"

var hashtagPattern = regexp.MustCompile(`#[a-zA-Z0-9_]+`)

// RuleType classifies a pipeline rule
type RuleType string

const (
	RuleFilter    RuleType = "filter"
	RuleTransform RuleType = "transform"
	RuleEnrich    RuleType = "enrich"
)

// Rule is one pipeline stage. Action runs only when Condition holds and
// receives the item as left by the previous stages.
type Rule struct {
	Name      string
	Type      RuleType
	Condition func(item models.ContentItem) bool
	Action    func(item models.ContentItem) models.ContentItem
}

// DefaultRules returns the standard stages in order: length filter, tweet
// type enrichment, hashtag extraction.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "min_length",
			Type: RuleFilter,
			Condition: func(item models.ContentItem) bool {
				return utf8.RuneCountInString(item.Content) < MinContentLength
			},
			Action: func(item models.ContentItem) models.ContentItem {
				item.Meta(models.MetaFiltered, FilteredTooShort)
				return item
			},
		},
		{
			Name: "tweet_type",
			Type: RuleEnrich,
			Condition: func(item models.ContentItem) bool {
				return item.Platform == models.PlatformTwitter
			},
			Action: func(item models.ContentItem) models.ContentItem {
				tweetType := "original"
				if strings.HasPrefix(item.Content, "RT @") {
					tweetType = "retweet"
				}
				item.Meta(models.MetaTweetType, tweetType)
				return item
			},
		},
		{
			Name: "hashtags",
			Type: RuleTransform,
			Condition: func(item models.ContentItem) bool {
				return strings.Contains(item.Content, "#")
			},
			Action: func(item models.ContentItem) models.ContentItem {
				item.Meta(models.MetaHashtags, ExtractHashtags(item.Content))
				return item
			},
		},
	}
}

// Stats counts what one Process call did
type Stats struct {
	Input      int
	Filtered   int
	Duplicates int
	Output     int
}

// Processor runs the rule pipeline, deduplication and sentiment enrichment
type Processor struct {
	rules  []Rule
	scorer sentiment.Scorer
	log    *logger.Logger
}

// Option configures a Processor
type Option func(*Processor)

// WithRules replaces the default rules
func WithRules(rules ...Rule) Option {
	return func(p *Processor) {
		p.rules = rules
	}
}

// New creates a processor using scorer for sentiment
func New(scorer sentiment.Scorer, log *logger.Logger, opts ...Option) *Processor {
	p := &Processor{
		rules:  DefaultRules(),
		scorer: scorer,
		log:    log.WithComponent("processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the whole pipeline on one batch and returns the surviving
// items in their original relative order. Inputs are never mutated.
func (p *Processor) Process(ctx context.Context, items []models.ContentItem) ([]models.ContentItem, Stats, error) {
	stats := Stats{Input: len(items)}

	kept := p.ApplyRules(items)
	stats.Filtered = len(items) - len(kept)

	unique := p.Deduplicate(kept)
	stats.Duplicates = len(kept) - len(unique)

	enriched, err := p.EnrichSentiment(ctx, unique)
	if err != nil {
		return nil, stats, err
	}
	stats.Output = len(enriched)

	p.log.Debug().
		Int("input", stats.Input).
		Int("filtered", stats.Filtered).
		Int("duplicates", stats.Duplicates).
		Int("output", stats.Output).
		Msg("Processed content batch")

	return enriched, stats, nil
}

// ApplyRules runs every rule over every item, then drops the items any
// filter tagged.
func (p *Processor) ApplyRules(items []models.ContentItem) []models.ContentItem {
	processed := make([]models.ContentItem, 0, len(items))
	for _, item := range items {
		current := item.Clone()
		for _, rule := range p.rules {
			if rule.Condition(current) {
				current = rule.Action(current)
			}
		}
		processed = append(processed, current)
	}

	kept := processed[:0]
	for _, item := range processed {
		if item.IsFiltered() {
			p.log.Debug().
				Str("id", item.ID).
				Interface("reason", item.Metadata[models.MetaFiltered]).
				Msg("Filtered content")
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// Deduplicate keeps the first item of every fingerprint, in input order
func (p *Processor) Deduplicate(items []models.ContentItem) []models.ContentItem {
	seen := make(map[string]bool, len(items))
	unique := make([]models.ContentItem, 0, len(items))

	for _, item := range items {
		fp := Fingerprint(item)
		if seen[fp] {
			p.log.Info().
				Str("id", item.ID).
				Str("platform", item.Platform.String()).
				Msg("Duplicate content detected")
			continue
		}
		seen[fp] = true
		unique = append(unique, item)
	}
	return unique
}

// EnrichSentiment attaches sentimentScore and sentimentLabel to every item.
// A scorer failure on one item falls back to a neutral score.
func (p *Processor) EnrichSentiment(ctx context.Context, items []models.ContentItem) ([]models.ContentItem, error) {
	out := make([]models.ContentItem, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		enriched := item.Clone()
		result, err := p.scorer.Score(ctx, enriched)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Warn().Err(err).Str("id", item.ID).Msg("Sentiment scoring failed, using neutral")
			result = sentiment.Result{Score: 0, Label: sentiment.LabelNeutral}
		}

		enriched.Meta(models.MetaSentimentScore, result.Score)
		enriched.Meta(models.MetaSentimentLabel, string(result.Label))
		out = append(out, enriched)
	}
	return out, nil
}

// Fingerprint is a stable digest of content, author and platform
func Fingerprint(item models.ContentItem) string {
	h := sha256.New()
	h.Write([]byte(item.Content))
	h.Write([]byte{0})
	h.Write([]byte(item.Author))
	h.Write([]byte{0})
	h.Write([]byte(item.Platform))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// ExtractHashtags returns every hashtag in text, in order of appearance
func ExtractHashtags(text string) []string {
	tags := hashtagPattern.FindAllString(text, -1)
	if tags == nil {
		return []string{}
	}
	return tags
}
