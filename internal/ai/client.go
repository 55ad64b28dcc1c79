package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/pkg/logger"
	"github.com/web3-feed/pkg/ratelimit"
)

// PacerKey is the pacer bucket used for Claude requests
const PacerKey = "anthropic"

const jsonOnly = "\n\nRespond with a single JSON object and nothing else."

// Client sends scoring prompts to Claude
type Client struct {
	messages  anthropic.MessageService
	model     anthropic.Model
	maxTokens int64
	pacer     *ratelimit.Pacer
	log       *logger.Logger
}

// NewClient creates a Claude client paced at cfg.RequestsPerMinute
func NewClient(cfg config.AnthropicConfig, log *logger.Logger, opts ...option.RequestOption) *Client {
	pacer := ratelimit.NewPacer()
	if cfg.RequestsPerMinute > 0 {
		pacer.AddLimiter(PacerKey, float64(cfg.RequestsPerMinute)/60, 2)
	}

	sdk := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)
	return &Client{
		messages:  sdk.Messages,
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(cfg.MaxTokens),
		pacer:     pacer,
		log:       log.WithComponent("ai"),
	}
}

// CompleteWithJSON asks for a JSON-only answer and returns the concatenated
// text blocks of the reply
func (c *Client) CompleteWithJSON(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if err := c.pacer.Wait(ctx, PacerKey); err != nil {
		return "", fmt.Errorf("waiting for claude pacer: %w", err)
	}

	msg, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt + jsonOnly}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage))},
	})
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		sb.WriteString(block.AsText().Text)
	}

	c.log.Debug().
		Str("model", string(c.model)).
		Int64("input_tokens", msg.Usage.InputTokens).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Msg("Claude scored content")

	return sb.String(), nil
}
