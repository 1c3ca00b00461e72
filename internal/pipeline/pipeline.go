// Package pipeline composes research, drafting and ranking per company and
// fans companies out over a bounded worker pool.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/draft"
	"github.com/sells-group/outreach-cli/internal/events"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/rank"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// Researcher gathers findings about one company.
type Researcher interface {
	Research(ctx context.Context, company model.CompanyRecord) model.ResearchResult
}

// Drafter writes email variants for one company.
type Drafter interface {
	Draft(ctx context.Context, company model.CompanyRecord, research model.ResearchResult, opts draft.Options) draft.DraftResult
}

// Ranker orders the variants of one company.
type Ranker interface {
	Rank(ctx context.Context, variants model.Drafts) (rank.Result, error)
}

// HealthChecker reports whether the backend is able to take work.
type HealthChecker interface {
	EnsureRunning(ctx context.Context) error
}

// Breaker names used with resilience.ServiceBreakers.
const (
	ServiceResearch = "research"
	ServiceDraft    = "draft"
	ServiceRank     = "rank"
)

// Options selects how a company is drafted.
type Options struct {
	Mode         model.Mode
	UserTemplate *string
}

// Pipeline runs research, draft and rank for companies.
type Pipeline struct {
	researcher Researcher
	drafter    Drafter
	ranker     Ranker
	breakers   *resilience.ServiceBreakers
	costCalc   *cost.Calculator
	health     HealthChecker
	publisher  events.Publisher
	maxWorkers int
	retry      resilience.RetryConfig
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRanker enables ranking. A nil ranker leaves ranking disabled.
func WithRanker(r Ranker) Option {
	return func(p *Pipeline) { p.ranker = r }
}

// WithBreakers guards every collaborator call with a circuit breaker.
func WithBreakers(b *resilience.ServiceBreakers) Option {
	return func(p *Pipeline) { p.breakers = b }
}

// WithCost attributes USD cost to each company result.
func WithCost(c *cost.Calculator) Option {
	return func(p *Pipeline) { p.costCalc = c }
}

// WithHealthCheck makes Process verify the backend before dispatching.
func WithHealthCheck(h HealthChecker) Option {
	return func(p *Pipeline) { p.health = h }
}

// WithPublisher announces finished batches.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithMaxWorkers caps the worker pool regardless of the requested concurrency.
func WithMaxWorkers(n int) Option {
	return func(p *Pipeline) { p.maxWorkers = n }
}

// WithRetry sets the default whole-company retry policy.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(p *Pipeline) { p.retry = rc }
}

// New creates a Pipeline.
func New(researcher Researcher, drafter Drafter, opts ...Option) *Pipeline {
	p := &Pipeline{
		researcher: researcher,
		drafter:    drafter,
		publisher:  events.Nop{},
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes one company: Research, then Draft, then Rank when there is
// more than one variant. It always returns a result.
func (p *Pipeline) Run(ctx context.Context, company model.CompanyRecord, opts Options) (result model.CompanyResult) {
	log := zap.L().With(zap.Int("index", company.Index), zap.String("company", company.Name()))
	start := time.Now()

	result = model.CompanyResult{Company: company, Drafts: model.Drafts{}}
	defer func() { result.DurationSeconds = time.Since(start).Seconds() }()

	research := p.research(ctx, company)
	result.Research = research
	if !research.Success {
		log.Warn("pipeline: research failed, drafting without findings", zap.Error(asError(research.Error)))
	} else {
		result.CostUSD += p.researchCost()
	}

	dr := p.draft(ctx, company, research, draft.Options{Mode: opts.Mode, UserTemplate: opts.UserTemplate})
	result.CostUSD += p.draftCost(dr)
	if !dr.Success {
		log.Warn("pipeline: draft failed", zap.Error(asError(dr.Error)))
		result.Error = dr.Error
		return result
	}
	result.Drafts = dr.Variants
	result.FallbackUsed = dr.FallbackUsed

	if p.ranker != nil && len(result.Drafts) > 1 {
		ranked, ok := p.rank(ctx, result.Drafts)
		if ok {
			result.Drafts = rank.Apply(result.Drafts, ranked)
			result.CostUSD += p.rankCost(ranked)
		}
	}

	log.Debug("pipeline: company complete",
		zap.Int("variants", len(result.Drafts)),
		zap.Bool("fallback", result.FallbackUsed),
	)
	return result
}

func (p *Pipeline) research(ctx context.Context, company model.CompanyRecord) model.ResearchResult {
	cb := p.breaker(ServiceResearch)
	if cb == nil {
		return p.researcher.Research(ctx, company)
	}
	if err := cb.Allow(); err != nil {
		return model.FailedResearch(circuitOpen(model.StageResearch))
	}
	res := p.researcher.Research(ctx, company)
	cb.Record(asError(res.Error))
	return res
}

func (p *Pipeline) draft(ctx context.Context, company model.CompanyRecord, research model.ResearchResult, opts draft.Options) draft.DraftResult {
	cb := p.breaker(ServiceDraft)
	if cb == nil {
		return p.drafter.Draft(ctx, company, research, opts)
	}
	if err := cb.Allow(); err != nil {
		return draft.DraftResult{Variants: model.Drafts{}, Error: circuitOpen(model.StageDraft)}
	}
	res := p.drafter.Draft(ctx, company, research, opts)
	cb.Record(asError(res.Error))
	return res
}

// rank never fails the company; errors are logged and the drafts stay unranked.
func (p *Pipeline) rank(ctx context.Context, variants model.Drafts) (rank.Result, bool) {
	var (
		res rank.Result
		err error
	)
	if cb := p.breaker(ServiceRank); cb != nil {
		res, err = resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (rank.Result, error) {
			return p.ranker.Rank(ctx, variants)
		})
	} else {
		res, err = p.ranker.Rank(ctx, variants)
	}
	if err != nil {
		zap.L().Warn("pipeline: ranking skipped", zap.Error(err))
		return rank.Result{}, false
	}
	return res, true
}

func (p *Pipeline) breaker(service string) *resilience.CircuitBreaker {
	if p.breakers == nil {
		return nil
	}
	return p.breakers.Get(service)
}

func (p *Pipeline) researchCost() float64 {
	if p.costCalc == nil {
		return 0
	}
	return p.costCalc.PerplexityQuery()
}

func (p *Pipeline) draftCost(dr draft.DraftResult) float64 {
	if p.costCalc == nil {
		return 0
	}
	u := dr.Usage
	return p.costCalc.LLM(dr.Provider, dr.Model, u.InputTokens, u.OutputTokens, u.CacheWriteTokens, u.CacheReadTokens)
}

func (p *Pipeline) rankCost(res rank.Result) float64 {
	if p.costCalc == nil {
		return 0
	}
	return p.costCalc.Cohere(res.EmbedTokens)
}

func circuitOpen(stage string) *model.Failure {
	return model.NewFailure(model.ErrService, stage, "circuit open")
}

// asError keeps a nil *model.Failure from becoming a non-nil error.
func asError(f *model.Failure) error {
	if f == nil {
		return nil
	}
	return f
}
