package article

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/draft"
	"github.com/sells-group/outreach-cli/internal/llm"
	"github.com/sells-group/outreach-cli/internal/model"
)

const systemPrompt = `You rewrite B2B sales emails around a news article about the recipient company. ` +
	`Reply with a single JSON object and nothing else.`

// Result is the outcome of one analysis. It never carries a Go error; failures
// are reported in Error.
type Result struct {
	Success        bool           `json:"success"`
	AnalyzedEmail  string         `json:"analyzed_email"`
	ArticleSummary *string        `json:"article_summary"`
	PainPoints     []string       `json:"pain_points"`
	Error          *model.Failure `json:"error,omitempty"`
}

// Analyzer regenerates a draft from an article.
type Analyzer struct {
	fetcher  Fetcher
	llm      llm.Completer
	timeout  time.Duration
	maxChars int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTimeout bounds the whole fetch and completion.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithMaxChars truncates article text before it is sent to the model.
func WithMaxChars(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxChars = n
		}
	}
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(fetcher Fetcher, completer llm.Completer, opts ...Option) *Analyzer {
	a := &Analyzer{fetcher: fetcher, llm: completer, timeout: 60 * time.Second, maxChars: 8000}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze fetches rawURL and asks the model for an email grounded in it.
func (a *Analyzer) Analyze(ctx context.Context, rawURL, companyName, currentEmail string) Result {
	log := zap.L().With(zap.String("url", rawURL), zap.String("company", companyName), zap.String("stage", model.StageArticle))

	if strings.TrimSpace(rawURL) == "" {
		return failed(model.NewFailure(model.ErrValidation, model.StageArticle, "news url is required"))
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	page, err := a.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		f := model.ClassifyError(err, model.StageArticle, model.ErrNetwork)
		log.Warn("article fetch failed", zap.Error(err))
		return failed(f)
	}

	text := page.Text
	if r := []rune(text); len(r) > a.maxChars {
		text = string(r[:a.maxChars])
	}

	temp := 0.6
	comp, err := a.llm.Complete(ctx, llm.Prompt{
		System:      systemPrompt,
		User:        BuildPrompt(page.Title, text, companyName, currentEmail),
		MaxTokens:   2000,
		Temperature: &temp,
		JSON:        true,
	})
	if err != nil {
		f := llm.Classify(err, model.StageArticle)
		log.Warn("article analysis failed", zap.Error(err))
		return failed(f)
	}

	res, ok := ParseAnalysis(comp.Text)
	if !ok {
		return failed(model.NewFailure(model.ErrParse, model.StageArticle, "analysis response had no email"))
	}
	log.Debug("article analyzed", zap.String("source", page.Source), zap.Int("pain_points", len(res.PainPoints)))
	return res
}

// BuildPrompt renders the analysis request.
func BuildPrompt(title, text, companyName, currentEmail string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Company\n%s\n\n", companyName)
	b.WriteString("## Article\n")
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", title)
	}
	b.WriteString(text)
	b.WriteString("\n\n## Current email\n")
	b.WriteString(currentEmail)
	b.WriteString("\n\n## Output\n")
	b.WriteString(`Return {"analyzed_email": "Subject: ...\n\n<body>", "article_summary": "...", "pain_points": ["..."]}. `)
	b.WriteString("The analyzed_email must open with a hook tied to the article and keep the offer of the current email.\n")
	return b.String()
}

type rawAnalysis struct {
	AnalyzedEmail  string
	ArticleSummary string
	PainPoints     []string
}

// ParseAnalysis reads the model's answer with the same fallbacks as drafts:
// a JSON document, then the first {...} span. ok is false when no email
// could be found.
func ParseAnalysis(text string) (Result, bool) {
	members, ok := draft.DecodeJSONText(text)
	if !ok {
		members, ok = draft.DecodeJSONSpan(text)
	}
	if !ok {
		return Result{}, false
	}

	// Fields of the wrong type are ignored rather than failing the answer.
	var ra rawAnalysis
	for _, m := range members {
		switch m.Key {
		case "analyzed_email":
			_ = json.Unmarshal(m.Value, &ra.AnalyzedEmail)
		case "article_summary":
			_ = json.Unmarshal(m.Value, &ra.ArticleSummary)
		case "pain_points":
			_ = json.Unmarshal(m.Value, &ra.PainPoints)
		}
	}
	if strings.TrimSpace(ra.AnalyzedEmail) == "" {
		return Result{}, false
	}

	res := Result{Success: true, AnalyzedEmail: strings.TrimSpace(ra.AnalyzedEmail), PainPoints: ra.PainPoints}
	if s := strings.TrimSpace(ra.ArticleSummary); s != "" {
		res.ArticleSummary = &s
	}
	return res, true
}

func failed(f *model.Failure) Result {
	return Result{Success: false, Error: f}
}
