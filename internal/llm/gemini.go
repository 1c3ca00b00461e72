package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini completer.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Gemini adapts google.golang.org/genai to Completer.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini completer.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("gemini: api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, eris.New("gemini: model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &Gemini{client: client, model: strings.TrimSpace(cfg.Model)}, nil
}

// Complete implements Completer.
func (g *Gemini) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	gc := &genai.GenerateContentConfig{CandidateCount: 1}
	if p.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}
	if p.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(p.MaxTokens)
	}
	if p.Temperature != nil {
		gc.Temperature = genai.Ptr(float32(*p.Temperature))
	}
	if p.JSON {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(p.User), gc)
	if err != nil {
		return nil, classifyGeminiErr(err)
	}

	out := &Completion{Text: resp.Text(), Provider: "gemini", Model: g.model}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:     int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens:    int64(resp.UsageMetadata.CandidatesTokenCount),
			CacheReadTokens: int64(resp.UsageMetadata.CachedContentTokenCount),
		}
	}
	return out, nil
}

func classifyGeminiErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Provider: "gemini", StatusCode: apiErr.Code, Err: err}
	}
	return eris.Wrap(err, "gemini: generate content")
}
