package sentiment

import (
	"context"
	"math/rand"
	"sync"

	"github.com/web3-feed/internal/models"
)

// RandomScorer is the placeholder scorer: a uniform score in [-1, 1).
// It exists for demo data only.
type RandomScorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomScorer creates a scorer with its own seeded source
func NewRandomScorer(seed int64) *RandomScorer {
	return &RandomScorer{rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomScorer) Score(_ context.Context, _ models.ContentItem) (Result, error) {
	r.mu.Lock()
	score := r.rng.Float64()*2 - 1
	r.mu.Unlock()

	label := LabelNegative
	if score >= 0 {
		label = LabelPositive
	}
	return Result{Score: score, Label: label}, nil
}

var _ Scorer = (*RandomScorer)(nil)
