// Package research gathers public information about a company before drafting.
package research

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

const systemPrompt = `You are a B2B sales researcher. Summarize what is publicly known about the company below ` +
	`for someone writing a first outreach email: what it sells, its customers, recent news, growth signals ` +
	`and likely payment or finance operations pain points. Finish with a section headed "Industry trends:" ` +
	`describing two or three trends in the company's industry. Be factual and concise.`

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each research call. Zero disables the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHeadlines attaches recent news headlines from a feed source.
func WithHeadlines(h HeadlineSource, max int) Option {
	return func(c *Client) {
		c.headlines = h
		c.maxHeadlines = max
	}
}

// WithModel overrides the Perplexity model.
func WithModel(m string) Option {
	return func(c *Client) { c.model = m }
}

// Client researches companies through Perplexity.
type Client struct {
	pplx         perplexity.Client
	model        string
	timeout      time.Duration
	headlines    HeadlineSource
	maxHeadlines int
	now          func() time.Time
}

// New creates a research client.
func New(pplx perplexity.Client, opts ...Option) *Client {
	c := &Client{
		pplx:         pplx,
		timeout:      30 * time.Second,
		maxHeadlines: 5,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Research returns findings for one company. It never returns a Go error;
// every failure is reported in the result.
func (c *Client) Research(ctx context.Context, company model.CompanyRecord) model.ResearchResult {
	log := zap.L().With(zap.String("company", company.Name()), zap.String("stage", model.StageResearch))

	if company.Name() == "" {
		return c.failed(model.NewFailure(model.ErrValidation, model.StageResearch, "company name is required"))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.pplx.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: c.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(company)},
		},
	})
	if err != nil {
		f := classify(err)
		log.Warn("research failed", zap.String("kind", string(f.Kind)), zap.Error(err))
		return c.failed(f)
	}

	text := strings.TrimSpace(resp.Content())
	if text == "" {
		return c.failed(model.NewFailure(model.ErrService, model.StageResearch, "research service returned no findings"))
	}

	info, trends := SplitTrends(text)
	if len(resp.Citations) > 0 {
		info += "\n\nSources:\n" + strings.Join(resp.Citations, "\n")
	}

	result := model.ResearchResult{
		Success:   true,
		Findings:  &info,
		Timestamp: c.now(),
	}
	if trends != "" {
		result.IndustryTrends = &trends
	}

	if c.headlines != nil {
		heads, herr := c.headlines.Headlines(ctx, company.Name(), c.maxHeadlines)
		if herr != nil {
			log.Debug("headline feed unavailable", zap.Error(herr))
		} else {
			result.Headlines = heads
		}
	}

	log.Debug("research complete", zap.Int("findings_len", len(info)), zap.Int("headlines", len(result.Headlines)))
	return result
}

const trendsPrompt = `You are a B2B market analyst. Describe three current trends in the industry below ` +
	`that matter to someone selling payment and finance infrastructure to companies in it. Be factual and concise.`

// IndustryTrends returns a short trends summary for one industry.
func (c *Client) IndustryTrends(ctx context.Context, industry string) (string, error) {
	industry = strings.TrimSpace(industry)
	if industry == "" {
		return "", model.NewFailure(model.ErrValidation, model.StageResearch, "industry is required")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.pplx.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: c.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: trendsPrompt},
			{Role: "user", Content: "Industry: " + industry},
		},
	})
	if err != nil {
		return "", classify(err).WithCause(err)
	}
	text := strings.TrimSpace(resp.Content())
	if text == "" {
		return "", model.NewFailure(model.ErrService, model.StageResearch, "research service returned no trends")
	}
	return text, nil
}

func (c *Client) failed(f *model.Failure) model.ResearchResult {
	return model.ResearchResult{Success: false, Timestamp: c.now(), Error: f}
}

// BuildPrompt renders the company's fields for the research request.
func BuildPrompt(company model.CompanyRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\n", company.Name())
	for _, f := range company.Fields {
		if model.CanonicalColumn(f.Key) == model.ColCompanyName || strings.TrimSpace(f.Value) == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", f.Key, f.Value)
	}
	return sb.String()
}

var trendsHeading = regexp.MustCompile(`(?im)^[ \t#*]*industry trends[ \t*]*(?::[ \t*]*|$)`)

// SplitTrends separates an "Industry trends:" section from the company
// summary. The heading may be a markdown heading or a bold label.
func SplitTrends(text string) (info, trends string) {
	loc := trendsHeading.FindStringIndex(text)
	if loc == nil {
		return strings.TrimSpace(text), ""
	}
	info = strings.TrimSpace(text[:loc[0]])
	trends = strings.TrimSpace(text[loc[1]:])
	if info == "" {
		info = trends
	}
	return info, trends
}

func classify(err error) *model.Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewFailure(model.ErrTimeout, model.StageResearch, "%v", err)
	}
	var se *perplexity.StatusError
	if errors.As(err, &se) {
		return model.NewFailure(model.ErrService, model.StageResearch, "research service returned status %d", se.StatusCode)
	}
	var de *perplexity.DecodeError
	if errors.As(err, &de) {
		return model.NewFailure(model.ErrService, model.StageResearch, "malformed research response: %v", de.Err)
	}
	return model.NewFailure(model.ErrNetwork, model.StageResearch, "%v", err)
}
