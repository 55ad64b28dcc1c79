package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/sentiment"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) CompleteWithJSON(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	args := m.Called(ctx, systemPrompt, userMessage)
	return args.String(0), args.Error(1)
}

func TestScorer_Score(t *testing.T) {
	item := models.ContentItem{
		ID:       "tg-1",
		Platform: models.PlatformTelegram,
		Author:   "Autheo Official",
		Content:  "Breaking: Web3 milestone achieved!",
	}

	tests := []struct {
		name     string
		response string
		expected sentiment.Result
	}{
		{
			name:     "plain JSON",
			response: `{"score": 0.8, "label": "positive", "reason": "milestone"}`,
			expected: sentiment.Result{Score: 0.8, Label: sentiment.LabelPositive},
		},
		{
			name:     "fenced JSON",
			response: "```json\n{\"score\": -0.5, \"label\": \"Negative\"}\n```",
			expected: sentiment.Result{Score: -0.5, Label: sentiment.LabelNegative},
		},
		{
			name:     "out of range score and unknown label",
			response: `{"score": 3.5, "label": "ecstatic"}`,
			expected: sentiment.Result{Score: 1, Label: sentiment.LabelPositive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &MockCompleter{}
			completer.On("CompleteWithJSON", mock.Anything, SentimentSystemPrompt, mock.MatchedBy(func(msg string) bool {
				return assert.Contains(t, msg, "Web3 milestone achieved") && assert.Contains(t, msg, "telegram")
			})).Return(tt.response, nil)

			got, err := NewScorer(completer).Score(context.Background(), item)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			completer.AssertExpectations(t)
		})
	}
}

func TestScorer_Errors(t *testing.T) {
	item := models.ContentItem{Platform: models.PlatformBlog, Content: "Deep Dive: Understanding Web3 Architecture"}

	failing := &MockCompleter{}
	apiErr := errors.New("claude API error: overloaded")
	failing.On("CompleteWithJSON", mock.Anything, mock.Anything, mock.Anything).Return("", apiErr)
	_, err := NewScorer(failing).Score(context.Background(), item)
	assert.ErrorIs(t, err, apiErr)

	garbled := &MockCompleter{}
	garbled.On("CompleteWithJSON", mock.Anything, mock.Anything, mock.Anything).Return("I think it is positive", nil)
	_, err = NewScorer(garbled).Score(context.Background(), item)
	assert.ErrorContains(t, err, "failed to parse sentiment response")
}
