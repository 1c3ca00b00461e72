package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/jina"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

// Compile-time interface checks.
var (
	_ anthropic.Client  = (*StubAnthropicClient)(nil)
	_ jina.Client       = (*StubJinaClient)(nil)
	_ perplexity.Client = (*StubPerplexityClient)(nil)
)

// --- Perplexity Stub ---

// StubPerplexityClient implements perplexity.Client with canned research.
type StubPerplexityClient struct{}

// ChatCompletion implements perplexity.Client.
func (s *StubPerplexityClient) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	company := "the company"
	for _, m := range req.Messages {
		if after, ok := strings.CutPrefix(m.Content, "Company: "); ok {
			company, _, _ = strings.Cut(after, "\n")
		}
	}
	content := fmt.Sprintf("%s is an established mid-market business with a growing customer base.\n\n"+
		"Industry trends:\nRising operating costs and a push toward automation.", company)
	return &perplexity.ChatCompletionResponse{
		ID:      "stub-research-001",
		Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: content}}},
		Usage:   perplexity.Usage{PromptTokens: 120, CompletionTokens: 80},
	}, nil
}

// --- Anthropic Stub ---

var stubVariantLine = regexp.MustCompile(`(?m)^- "([^"]+)": product "([^"]*)", tone "([^"]*)"`)

// StubAnthropicClient implements anthropic.Client with canned responses.
// Draft prompts get one JSON member per requested variant; article prompts
// get an analysis object; anything else is rewritten with a subject line.
type StubAnthropicClient struct{}

// CreateMessage implements anthropic.Client.
func (s *StubAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	content := ""
	for _, m := range req.Messages {
		content += m.Content
	}

	var responseText string
	switch {
	case stubVariantLine.MatchString(content):
		responseText = stubDrafts(content)
	case strings.Contains(content, "article_summary"):
		responseText = `{"analyzed_email": "Subject: Following your recent news\n\nCongratulations on the announcement. ` +
			`We help teams in your position cut costs.", "article_summary": "Stub article summary.", ` +
			`"pain_points": ["rising costs", "manual processes"]}`
	default:
		responseText = "Subject: Quick follow-up\n\nThanks for your time. Here is the revised email."
	}

	return &anthropic.MessageResponse{
		ID:         "stub-msg-001",
		Model:      req.Model,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: responseText}},
		StopReason: "end_turn",
		Usage: anthropic.TokenUsage{
			InputTokens:  150,
			OutputTokens: 50,
		},
	}, nil
}

// stubDrafts answers in the order the prompt lists the variants.
func stubDrafts(prompt string) string {
	var b strings.Builder
	b.WriteString("{")
	for i, m := range stubVariantLine.FindAllStringSubmatch(prompt, -1) {
		v, _ := json.Marshal(map[string]any{
			"product":               m[2],
			"tone":                  m[3],
			"subject":               fmt.Sprintf("A %s idea for your team", m[3]),
			"body":                  fmt.Sprintf("Hello,\n\nWe noticed your recent growth. %s could reduce costs by 20%%.\n\nWould a short call next week work?", m[2]),
			"cta":                   "Book a 15 minute call",
			"personalization_score": 7,
		})
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%q:%s", m[1], v)
	}
	b.WriteString("}")
	return b.String()
}

// --- Jina Stub ---

// StubJinaClient implements jina.Client with canned responses.
type StubJinaClient struct{}

// Read implements jina.Client.
func (s *StubJinaClient) Read(_ context.Context, targetURL string) (*jina.ReadResponse, error) {
	return &jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{
			Title:   "Stub Article",
			URL:     targetURL,
			Content: "# Stub Article\n\nThe company announced an expansion into new markets and plans to hire 50 staff.",
			Usage:   jina.ReadUsage{Tokens: 40},
		},
	}, nil
}
