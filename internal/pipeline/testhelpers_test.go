package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sells-group/outreach-cli/internal/draft"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/rank"
)

type fakeResearcher struct {
	fn func(ctx context.Context, c model.CompanyRecord) model.ResearchResult
}

func (f *fakeResearcher) Research(ctx context.Context, c model.CompanyRecord) model.ResearchResult {
	if f.fn != nil {
		return f.fn(ctx, c)
	}
	findings := "findings for " + c.Name()
	return model.ResearchResult{Success: true, Findings: &findings}
}

type draftCall struct {
	company  string
	research model.ResearchResult
	opts     draft.Options
}

type fakeDrafter struct {
	mu    sync.Mutex
	calls []draftCall
	fn    func(ctx context.Context, c model.CompanyRecord, r model.ResearchResult) draft.DraftResult
}

func (f *fakeDrafter) Draft(ctx context.Context, c model.CompanyRecord, r model.ResearchResult, opts draft.Options) draft.DraftResult {
	f.mu.Lock()
	f.calls = append(f.calls, draftCall{company: c.Name(), research: r, opts: opts})
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, c, r)
	}
	return draft.DraftResult{Success: true, Variants: variants(c.Name(), "value", "curiosity")}
}

func (f *fakeDrafter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRanker struct {
	err   error
	calls int
}

func (f *fakeRanker) Rank(_ context.Context, v model.Drafts) (rank.Result, error) {
	f.calls++
	if f.err != nil {
		return rank.Result{}, f.err
	}
	res := rank.Result{TopPick: v[len(v)-1].Key}
	for i := len(v) - 1; i >= 0; i-- {
		res.Rankings = append(res.Rankings, rank.Ranking{Key: v[i].Key, Score: float64(i + 1), Method: rank.MethodHeuristic})
	}
	return res, nil
}

func variants(company string, keys ...string) model.Drafts {
	var d model.Drafts
	for _, k := range keys {
		d.Set(model.DraftVariant{Key: k, Subject: fmt.Sprintf("%s %s", company, k), Body: "body " + k})
	}
	return d
}

func records(names ...string) []model.CompanyRecord {
	out := make([]model.CompanyRecord, len(names))
	for i, n := range names {
		out[i] = model.NewCompanyRecord(i, "companyName", n)
	}
	return out
}

type fakeHealth struct {
	err   error
	delay time.Duration
}

func (f fakeHealth) EnsureRunning(context.Context) error {
	time.Sleep(f.delay)
	return f.err
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches []*model.BatchResult
}

func (r *recordingPublisher) PublishBatch(_ context.Context, b *model.BatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }
