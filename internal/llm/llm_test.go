package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func TestAnthropicComplete(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			req.MaxTokens == 4000 &&
			len(req.System) == 1 &&
			req.System[0].CacheControl != nil &&
			req.Messages[0].Content == "Draft for Acme"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "hello"}},
		Usage:   anthropic.TokenUsage{InputTokens: 10, OutputTokens: 4, CacheReadInputTokens: 100},
	}, nil)

	c := NewAnthropic(client, "claude-sonnet-4-5-20250929", 0)
	out, err := c.Complete(context.Background(), Prompt{System: "sys", User: "Draft for Acme"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Text)
	assert.Equal(t, "anthropic", out.Provider)
	assert.Equal(t, int64(100), out.Usage.CacheReadTokens)
	client.AssertExpectations(t)
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer ts.Close()

	c := NewAnthropic(anthropic.NewClient("k", anthropic.WithBaseURL(ts.URL), anthropic.WithMaxRetries(0)), "claude-sonnet-4-5-20250929", 100)
	_, err := c.Complete(context.Background(), Prompt{User: "x"})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, model.ErrService, Classify(err, model.StageDraft).Kind)
}

func TestAnthropicCompleteTransportError(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

	c := NewAnthropic(client, "m", 100)
	_, err := c.Complete(context.Background(), Prompt{User: "x"})
	require.Error(t, err)
	assert.Equal(t, model.ErrNetwork, Classify(err, model.StageDraft).Kind)
}

func TestGeminiComplete(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.5-flash:generateContent"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"ok\":true}"}]}}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 3}
		}`))
	}))
	defer ts.Close()

	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", Model: "gemini-2.5-flash", BaseURL: ts.URL})
	require.NoError(t, err)

	out, err := g.Complete(context.Background(), Prompt{System: "sys", User: "hi", JSON: true, MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out.Text)
	assert.Equal(t, int64(12), out.Usage.InputTokens)
	assert.Equal(t, int64(3), out.Usage.OutputTokens)
	assert.Equal(t, "gemini", out.Provider)
	assert.Contains(t, gotBody, "systemInstruction")
}

func TestNewGeminiValidation(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiConfig{Model: "m"})
	require.Error(t, err)
	_, err = NewGemini(context.Background(), GeminiConfig{APIKey: "k"})
	require.Error(t, err)
}

func TestClassifyGeminiErr(t *testing.T) {
	err := classifyGeminiErr(genai.APIError{Code: 429, Message: "quota"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 429, se.StatusCode)

	err = classifyGeminiErr(errors.New("dial"))
	assert.False(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "gemini: generate content")
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil, model.StageDraft))
	assert.Equal(t, model.ErrTimeout, Classify(fmt.Errorf("x: %w", context.DeadlineExceeded), model.StageDraft).Kind)
	assert.Equal(t, model.ErrTimeout, Classify(timeoutErr{}, model.StageDraft).Kind)
	assert.Equal(t, model.ErrService, Classify(&StatusError{Provider: "p", StatusCode: 500, Err: errors.New("x")}, model.StageDraft).Kind)
	assert.Equal(t, model.ErrNetwork, Classify(errors.New("reset"), model.StageRefine).Kind)

	f := model.NewFailure(model.ErrParse, model.StageDraft, "bad")
	assert.Same(t, f, Classify(f, model.StageRefine))
}

func TestNewFactory(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Provider = "anthropic"
	cfg.Anthropic.Model = "claude-sonnet-4-5-20250929"
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, c)

	cfg.LLM.Provider = "gemini"
	cfg.Gemini.Key = "k"
	cfg.Gemini.Model = "gemini-2.5-flash"
	c, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &Gemini{}, c)

	cfg.LLM.Provider = "other"
	_, err = New(context.Background(), cfg)
	require.Error(t, err)
}
