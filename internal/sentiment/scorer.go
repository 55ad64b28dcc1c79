// Package sentiment scores content items. Scorers are interchangeable; the
// processing pipeline only sees the Scorer interface.
package sentiment

import (
	"context"
	"math"

	"github.com/web3-feed/internal/models"
)

// Label is the coarse polarity attached to an item
type Label string

const (
	LabelPositive Label = "positive"
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
)

// neutralBand is the half-width around zero treated as neutral
const neutralBand = 0.20

// Result is a score nominally in [-1, 1] plus its label
type Result struct {
	Score float64
	Label Label
}

// Scorer assigns sentiment to one item
type Scorer interface {
	Score(ctx context.Context, item models.ContentItem) (Result, error)
}

// ScorerFunc adapts a function to Scorer
type ScorerFunc func(ctx context.Context, item models.ContentItem) (Result, error)

func (f ScorerFunc) Score(ctx context.Context, item models.ContentItem) (Result, error) {
	return f(ctx, item)
}

// LabelFor maps a score onto a label
func LabelFor(score float64) Label {
	switch {
	case score >= neutralBand:
		return LabelPositive
	case score <= -neutralBand:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// Clamp keeps a score inside [-1, 1]
func Clamp(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(-1, math.Min(1, score))
}
