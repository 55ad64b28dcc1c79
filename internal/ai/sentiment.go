package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/sentiment"
)

// stripMarkdownCodeBlock removes markdown code block delimiters from AI responses
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)

	startIdx := strings.Index(response, "{")
	if startIdx == -1 {
		return response
	}

	endIdx := strings.LastIndex(response, "}")
	if endIdx == -1 || endIdx < startIdx {
		return response
	}

	return response[startIdx : endIdx+1]
}

// SentimentAnalysis is Claude's reading of one item
type SentimentAnalysis struct {
	Score  float64 `json:"score"`
	Label  string  `json:"label"`
	Reason string  `json:"reason"`
}

// Completer is the part of Client the scorer needs
type Completer interface {
	CompleteWithJSON(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Scorer implements sentiment.Scorer on top of Claude
type Scorer struct {
	completer Completer
}

// NewScorer creates a Claude-backed sentiment scorer
func NewScorer(c Completer) *Scorer {
	return &Scorer{completer: c}
}

// Score asks Claude for the sentiment of one item
func (s *Scorer) Score(ctx context.Context, item models.ContentItem) (sentiment.Result, error) {
	userPrompt := fmt.Sprintf(SentimentUserPrompt, item.Platform, item.Author, item.Content)

	response, err := s.completer.CompleteWithJSON(ctx, SentimentSystemPrompt, userPrompt)
	if err != nil {
		return sentiment.Result{}, err
	}

	analysis, err := ParseSentiment(response)
	if err != nil {
		return sentiment.Result{}, err
	}

	score := sentiment.Clamp(analysis.Score)
	label := sentiment.Label(strings.ToLower(analysis.Label))
	switch label {
	case sentiment.LabelPositive, sentiment.LabelNegative, sentiment.LabelNeutral:
	default:
		label = sentiment.LabelFor(score)
	}

	return sentiment.Result{Score: score, Label: label}, nil
}

// ParseSentiment decodes a (possibly fenced) JSON answer
func ParseSentiment(response string) (*SentimentAnalysis, error) {
	var analysis SentimentAnalysis
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(response)), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse sentiment response: %w", err)
	}
	return &analysis, nil
}

var _ sentiment.Scorer = (*Scorer)(nil)
