package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// BatchOptions configures one Process call.
type BatchOptions struct {
	// Concurrency overrides the staircase when positive.
	Concurrency int

	Mode         model.Mode
	UserTemplate *string

	// Retry overrides the pipeline's whole-company retry policy.
	Retry *resilience.RetryConfig

	// Progress is called from worker goroutines after each company.
	Progress func(done, total int)
}

// Process runs every record through the pipeline on a bounded pool and
// returns one result per record, in input order.
func (p *Pipeline) Process(ctx context.Context, records []model.CompanyRecord, opts BatchOptions) *model.BatchResult {
	mode := model.ResolveMode(opts.Mode, opts.UserTemplate)
	batch := &model.BatchResult{
		ID:        uuid.NewString(),
		Results:   make([]model.CompanyResult, len(records)),
		CreatedAt: time.Now().UTC(),
		Mode:      mode,
	}
	workers := WorkerCount(len(records), opts.Concurrency, p.maxWorkers)
	log := zap.L().With(zap.String("batch_id", batch.ID))
	log.Info("batch: starting",
		zap.Int("companies", len(records)),
		zap.Int("workers", workers),
		zap.String("mode", string(mode)),
	)

	if p.health != nil {
		if err := p.health.EnsureRunning(ctx); err != nil {
			f := model.ClassifyError(err, model.StageHealth, model.ErrUnavailable)
			log.Error("batch: backend unavailable", zap.Error(err))
			for i, rec := range records {
				batch.Results[i] = model.FailedCompany(rec, f)
			}
			return p.finish(ctx, batch, time.Now())
		}
	}
	// Processing time covers company work only, not the backend precheck.
	start := time.Now()

	retry := p.retry
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	runOpts := Options{Mode: mode, UserTemplate: opts.UserTemplate}

	// Dispatched pipelines finish on their own RPC timeouts even after ctx is
	// cancelled; cancellation only stops new dispatch.
	runCtx := context.WithoutCancel(ctx)

	var done atomic.Int64
	report := func() {
		n := done.Add(1)
		if opts.Progress != nil {
			opts.Progress(int(n), len(records))
		}
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, rec := range records {
		if ctx.Err() != nil {
			batch.Results[i] = cancelled(rec)
			report()
			continue
		}
		g.Go(func() error {
			defer report()
			if ctx.Err() != nil {
				batch.Results[i] = cancelled(rec)
				return nil
			}
			batch.Results[i] = p.runSafe(runCtx, rec, runOpts, retry)
			return nil
		})
	}
	_ = g.Wait()

	return p.finish(ctx, batch, start)
}

func (p *Pipeline) finish(ctx context.Context, batch *model.BatchResult, start time.Time) *model.BatchResult {
	batch.ProcessingTimeSeconds = time.Since(start).Seconds()
	batch.Tally()

	zap.L().Info("batch: complete",
		zap.String("batch_id", batch.ID),
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed),
		zap.Float64("seconds", batch.ProcessingTimeSeconds),
		zap.Float64("cost_usd", batch.CostUSD),
	)
	if err := p.publisher.PublishBatch(context.WithoutCancel(ctx), batch); err != nil {
		zap.L().Warn("batch: publish event failed", zap.String("batch_id", batch.ID), zap.Error(err))
	}
	return batch
}

// runSafe runs one company with retries and turns a panic into a failed
// result so the rest of the batch keeps going.
func (p *Pipeline) runSafe(ctx context.Context, rec model.CompanyRecord, opts Options, retry resilience.RetryConfig) (res model.CompanyResult) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("batch: worker panic",
				zap.Int("index", rec.Index),
				zap.String("company", rec.Name()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res = model.FailedCompany(rec, model.NewFailure(model.ErrService, model.StageWorker, "%s", fmt.Sprint(r)))
		}
	}()

	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("company", rec.Name())
	}
	res, _ = resilience.DoVal(ctx, retry, func(ctx context.Context) (model.CompanyResult, error) {
		r := p.Run(ctx, rec, opts)
		return r, asError(r.Error)
	})
	return res
}

func cancelled(rec model.CompanyRecord) model.CompanyResult {
	return model.FailedCompany(rec, model.NewFailure(model.ErrService, model.StageScheduler, "cancelled before dispatch"))
}
