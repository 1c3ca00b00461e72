package llm

import (
	"context"

	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// Anthropic adapts pkg/anthropic to Completer.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic wraps an Anthropic client.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

// Complete implements Completer. The system prompt is sent as a cached
// block since it is shared by every company in a batch.
func (a *Anthropic) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(p.System, "5m"),
		Messages:    []anthropic.Message{{Role: "user", Content: p.User}},
		Temperature: p.Temperature,
	})
	if err != nil {
		if code := anthropic.StatusCode(err); code > 0 {
			return nil, &StatusError{Provider: "anthropic", StatusCode: code, Err: err}
		}
		return nil, err
	}

	return &Completion{
		Text:     resp.Text(),
		Provider: "anthropic",
		Model:    a.model,
		Usage: Usage{
			InputTokens:      resp.Usage.InputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:  resp.Usage.CacheReadInputTokens,
		},
	}, nil
}
