package ai

import (
	"context"
	"fmt"
	"log/slog"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"

	"github.com/hearthkeep/chronicle/internal/config"
)

// Client wraps the Anthropic Messages API with the retry policy for
// synchronous attribution calls. Temperature is pinned to zero; the
// pipeline depends on deterministic-as-possible judgments.
type Client struct {
	api       anthropic.Client
	model     anthropic.Model
	maxTokens int64
	retry     RetryPolicy
	log       *slog.Logger
}

func NewClient(log *slog.Logger, cfg config.ClassifierConfig) *Client {
	return &Client{
		api:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(cfg.MaxTokens),
		retry:     NewRetryPolicy(cfg.MaxRetries, cfg.RetryBaseWait),
		log:       log.With("component", "ai"),
	}
}

// Completion is one model response plus the usage counters needed for
// request accounting.
type Completion struct {
	Content      string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Complete sends one system+user exchange and returns the text of the
// first content block together with its token usage. Transient failures
// are retried per the policy; exhausting it surfaces the last error to
// the caller. On failure the returned completion still carries the
// model so the failed attempt can be accounted.
func (c *Client) Complete(ctx context.Context, system, user string) (Completion, error) {
	out := Completion{Model: string(c.model)}

	err := c.retry.Run(ctx, func() error {
		msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       c.model,
			MaxTokens:   c.maxTokens,
			Temperature: anthropic.Float(0),
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		})
		if err != nil {
			c.log.Warn("classification request failed", slog.String("error", err.Error()))
			return err
		}
		if len(msg.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("empty response from model"))
		}

		out.Content = msg.Content[0].Text
		out.InputTokens = msg.Usage.InputTokens
		out.OutputTokens = msg.Usage.OutputTokens
		c.log.Debug("classification request complete",
			slog.Int64("input_tokens", msg.Usage.InputTokens),
			slog.Int64("output_tokens", msg.Usage.OutputTokens),
		)
		return nil
	})
	if err != nil {
		return Completion{Model: string(c.model)}, fmt.Errorf("classification service: %w", err)
	}
	return out, nil
}
