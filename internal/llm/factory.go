package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// New builds the Completer selected by llm.provider.
func New(ctx context.Context, cfg *config.Config) (Completer, error) {
	switch cfg.LLM.Provider {
	case "", "anthropic":
		client := anthropic.NewClient(cfg.Anthropic.Key, anthropic.WithMaxRetries(0))
		return NewAnthropic(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil
	case "gemini":
		return NewGemini(ctx, GeminiConfig{
			APIKey:  cfg.Gemini.Key,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
		})
	}
	return nil, eris.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
}
