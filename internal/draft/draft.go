// Package draft turns a company and its research into named email variants.
package draft

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/llm"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Options carries the user's template or request text.
type Options struct {
	UserTemplate *string
	Mode         model.Mode
}

// DraftResult is the outcome of one draft call.
type DraftResult struct {
	Success      bool           `json:"success"`
	Variants     model.Drafts   `json:"variants"`
	Error        *model.Failure `json:"error,omitempty"`
	FallbackUsed bool           `json:"fallback_used,omitempty"`
	Provider     string         `json:"-"`
	Model        string         `json:"-"`
	Usage        llm.Usage      `json:"-"`
}

// Client drafts emails through a language model.
type Client struct {
	llm       llm.Completer
	catalog   []config.VariantSpec
	sender    string
	timeout   time.Duration
	maxTokens int64
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each draft call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCatalog sets the variant catalog requested from the model.
func WithCatalog(catalog []config.VariantSpec) Option {
	return func(c *Client) {
		if len(catalog) > 0 {
			c.catalog = catalog
		}
	}
}

// WithSender names the sending company in the prompt.
func WithSender(s string) Option {
	return func(c *Client) { c.sender = s }
}

// New creates a draft client.
func New(completer llm.Completer, opts ...Option) *Client {
	c := &Client{
		llm:       completer,
		catalog:   config.DefaultVariants(),
		timeout:   90 * time.Second,
		maxTokens: 4000,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Catalog returns the configured variant catalog.
func (c *Client) Catalog() []config.VariantSpec { return c.catalog }

// Draft requests the variant catalog for one company. It never returns a Go
// error; failures are reported in the result.
func (c *Client) Draft(ctx context.Context, company model.CompanyRecord, research model.ResearchResult, opts Options) DraftResult {
	name := company.Name()
	log := zap.L().With(zap.String("company", name), zap.String("stage", model.StageDraft))

	if name == "" {
		return failed(model.NewFailure(model.ErrValidation, model.StageDraft, "company name is required"))
	}

	mode := model.ResolveMode(opts.Mode, opts.UserTemplate)
	userText := ""
	if opts.UserTemplate != nil {
		userText = *opts.UserTemplate
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	temp := 0.7
	comp, err := c.llm.Complete(ctx, llm.Prompt{
		System:      BuildSystem(c.sender),
		User:        BuildPrompt(company, research, mode, userText, c.catalog),
		MaxTokens:   c.maxTokens,
		Temperature: &temp,
		JSON:        true,
	})
	if err != nil {
		f := llm.Classify(err, model.StageDraft)
		log.Warn("draft call failed", zap.String("kind", string(f.Kind)), zap.Error(err))
		return failed(f)
	}

	parsed, f := Parse(Classify(comp.Text), name, c.catalog)
	if f != nil {
		log.Warn("draft response unparseable", zap.Int("response_len", len(comp.Text)))
		res := failed(f)
		res.Provider, res.Model, res.Usage = comp.Provider, comp.Model, comp.Usage
		return res
	}
	if parsed.FallbackUsed() {
		log.Info("draft response split heuristically", zap.Int("variants", len(parsed.Variants)))
	}

	log.Debug("draft complete",
		zap.String("mode", string(mode)),
		zap.String("parse_stage", parsed.Stage),
		zap.Int("variants", len(parsed.Variants)),
		zap.Bool("research_available", research.Success),
	)

	return DraftResult{
		Success:      true,
		Variants:     parsed.Variants,
		FallbackUsed: parsed.FallbackUsed(),
		Provider:     comp.Provider,
		Model:        comp.Model,
		Usage:        comp.Usage,
	}
}

func failed(f *model.Failure) DraftResult {
	return DraftResult{Success: false, Variants: model.Drafts{}, Error: f}
}
