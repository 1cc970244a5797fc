// Package llm wraps the chat-completion service that performs the actual
// classification. Any OpenAI-compatible endpoint satisfies the contract; the
// endpoint, model id, and credentials are configuration, not behavior.
package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"mailtriage/internal/config"
)

// Completer is the model collaborator seen by the pipeline.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type Client struct {
	api     *openai.Client
	model   string
	limiter *RateLimiter
	timeout time.Duration
}

func NewClient(cfg config.Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.ModelAPIKey)
	if cfg.ModelBaseURL != "" {
		clientCfg.BaseURL = cfg.ModelBaseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(clientCfg),
		model:   cfg.ModelName,
		limiter: NewRateLimiter(cfg.ModelRateRPS),
		timeout: time.Duration(cfg.ModelTimeoutMs) * time.Millisecond,
	}
}

// Complete sends one request and returns the raw completion text. A single
// attempt only: a failed or timed-out call is reported, never retried, so the
// caller can distinguish infrastructure failure from model-quality failure.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	c.limiter.WaitTurn()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
