package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/article"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/draft"
	"github.com/sells-group/outreach-cli/internal/events"
	"github.com/sells-group/outreach-cli/internal/export"
	"github.com/sells-group/outreach-cli/internal/llm"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/rank"
	"github.com/sells-group/outreach-cli/internal/refine"
	"github.com/sells-group/outreach-cli/internal/research"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/internal/supervisor"
	"github.com/sells-group/outreach-cli/pkg/jina"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

// envOptions selects how the environment is built.
type envOptions struct {
	// Offline swaps every remote collaborator for the canned stubs.
	Offline bool
	// HealthCheck makes batches verify the backend through the supervisor.
	HealthCheck bool
	// Mode is passed to config.Validate.
	Mode string
}

// appEnv holds the store, clients and orchestrators shared by commands.
type appEnv struct {
	Store      store.Store
	Pipeline   *pipeline.Pipeline
	Researcher *research.Client
	Drafter    *draft.Client
	Rewriter   *refine.Rewriter
	Analyzer   *article.Analyzer
	Refiner    *refine.Refiner
	Supervisor *supervisor.Supervisor
	Uploader   *export.Uploader

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
}

// initEnv opens the store and builds every collaborator. Callers should
// defer env.Close().
func initEnv(ctx context.Context, opts envOptions) (*appEnv, error) {
	mode := opts.Mode
	if opts.Offline {
		mode = "offline"
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	env.Store = st
	env.closers = append(env.closers, st.Close)

	var (
		pplx      perplexity.Client
		jinaC     jina.Client
		completer llm.Completer
	)
	researchOpts := []research.Option{
		research.WithTimeout(seconds(cfg.Research.TimeoutSecs)),
		research.WithModel(cfg.Perplexity.Model),
	}
	if opts.Offline {
		zap.L().Info("offline mode: using stub collaborators")
		pplx = &pipeline.StubPerplexityClient{}
		jinaC = &pipeline.StubJinaClient{}
		completer = llm.NewAnthropic(&pipeline.StubAnthropicClient{}, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	} else {
		pplx = perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
			perplexity.WithRateLimit(cfg.Perplexity.RateLimit),
		)
		jinaC = jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL), jina.WithRateLimit(cfg.Jina.RateLimit))
		completer, err = llm.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Research.NewsFeedURL != "" {
			researchOpts = append(researchOpts,
				research.WithHeadlines(research.NewFeedHeadlines(cfg.Research.NewsFeedURL), cfg.Research.MaxHeadlines))
		}
	}

	env.Researcher = research.New(pplx, researchOpts...)
	env.Drafter = draft.New(completer,
		draft.WithTimeout(seconds(cfg.Draft.TimeoutSecs)),
		draft.WithCatalog(cfg.Draft.Variants),
		draft.WithSender(cfg.Draft.Sender),
	)

	pub, err := events.New(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, pub.Close)

	pipeOpts := []pipeline.Option{
		pipeline.WithCost(cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing))),
		pipeline.WithPublisher(pub),
		pipeline.WithMaxWorkers(cfg.Batch.MaxWorkers),
		pipeline.WithRetry(resilience.RetryFromConfig(cfg.Batch)),
	}
	if b := resilience.BreakersFromConfig(cfg.Batch); b != nil {
		pipeOpts = append(pipeOpts, pipeline.WithBreakers(b))
	}
	if cfg.Rank.Enabled {
		scorer := rank.Scorer(rank.Heuristic{})
		if !opts.Offline {
			scorer = rank.NewScorer(cfg.Rank.Method, cfg.Cohere.Key, cfg.Cohere.Model)
		}
		pipeOpts = append(pipeOpts, pipeline.WithRanker(rank.New(scorer, seconds(cfg.Rank.TimeoutSecs))))
	}

	env.Supervisor = supervisor.New(cfg.Supervisor)
	env.closers = append(env.closers, env.Supervisor.Stop)
	if opts.HealthCheck {
		pipeOpts = append(pipeOpts, pipeline.WithHealthCheck(env.Supervisor))
	}
	env.Pipeline = pipeline.New(env.Researcher, env.Drafter, pipeOpts...)

	refineTimeout := seconds(cfg.Refine.TimeoutSecs)
	env.Rewriter = refine.NewRewriter(completer, refineTimeout)
	env.Analyzer = article.NewAnalyzer(
		article.Chain{article.NewJinaFetcher(jinaC), article.NewReadabilityFetcher(nil)},
		completer,
		article.WithTimeout(refineTimeout),
		article.WithMaxChars(cfg.Refine.ArticleMaxChars),
	)

	locker, closeLocker, err := refine.NewLocker(cfg.Refine, cfg.Redis)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, closeLocker)
	env.Refiner = refine.NewRefiner(env.Store, env.Rewriter, env.Analyzer, locker)

	env.Uploader, err = export.NewS3Uploader(ctx, cfg.Export)
	if err != nil {
		return nil, err
	}

	ok = true
	return env, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
