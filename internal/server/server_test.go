package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/article"
	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/draft"
	"github.com/sells-group/outreach-cli/internal/export"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/refine"
	"github.com/sells-group/outreach-cli/internal/store"
)

type fakeResearcher struct{}

func (fakeResearcher) Research(_ context.Context, c model.CompanyRecord) model.ResearchResult {
	if c.Name() == "Down" {
		return model.FailedResearch(model.NewFailure(model.ErrNetwork, model.StageResearch, "connection refused"))
	}
	info, trends := c.Name()+" sells widgets", "payments are consolidating"
	return model.ResearchResult{Success: true, Findings: &info, IndustryTrends: &trends}
}

type fakeTrends struct{}

func (fakeTrends) IndustryTrends(_ context.Context, industry string) (string, error) {
	if industry == "Down" {
		return "", errors.New("connection refused")
	}
	return industry + " is consolidating", nil
}

type fakeDrafter struct {
	mu       sync.Mutex
	company  string
	research model.ResearchResult
	opts     draft.Options
}

func (f *fakeDrafter) Draft(_ context.Context, c model.CompanyRecord, research model.ResearchResult, opts draft.Options) draft.DraftResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.company, f.research, f.opts = c.Name(), research, opts
	var d model.Drafts
	d.Set(model.DraftVariant{Key: "value", Subject: "Hello " + c.Name(), Body: research.FindingsText()})
	return draft.DraftResult{Success: true, Variants: d}
}

type fakeProcessor struct {
	opts pipeline.BatchOptions
}

func (f *fakeProcessor) Process(_ context.Context, records []model.CompanyRecord, opts pipeline.BatchOptions) *model.BatchResult {
	f.opts = opts
	b := &model.BatchResult{ID: "batch-" + records[0].Name()}
	for _, rec := range records {
		var d model.Drafts
		d.Set(model.DraftVariant{Key: "value", Subject: "Hello " + rec.Name(), Body: "body"})
		d.Set(model.DraftVariant{Key: "curiosity", Subject: "Question for " + rec.Name(), Body: "body"})
		b.Results = append(b.Results, model.CompanyResult{Company: rec, Drafts: d})
	}
	b.Tally()
	return b
}

type fakeRewriter struct{}

func (fakeRewriter) Rewrite(_ context.Context, current, instruction string) refine.RewriteResult {
	if instruction == "fail" {
		return refine.RewriteResult{Error: model.NewFailure(model.ErrTimeout, model.StageRefine, "deadline exceeded")}
	}
	return refine.RewriteResult{Success: true, RefinedEmail: "Subject: Shorter\n\n" + strings.ToUpper(instruction)}
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, url, company, _ string) article.Result {
	summary := "article about " + company
	return article.Result{Success: true, AnalyzedEmail: "from " + url, ArticleSummary: &summary, PainPoints: []string{"fees"}}
}

type fakeUploader struct {
	err error
}

func (f fakeUploader) Upload(_ context.Context, b *model.BatchResult, format export.Format) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "exports/" + b.ID + "." + string(format), nil
}

type env struct {
	srv     *httptest.Server
	store   *store.MemoryStore
	proc    *fakeProcessor
	drafter *fakeDrafter
}

func newEnv(t *testing.T, mutate func(*Deps)) *env {
	t.Helper()
	st := store.NewMemory(store.DefaultLimits())
	proc := &fakeProcessor{}
	drafter := &fakeDrafter{}
	deps := Deps{
		Researcher: fakeResearcher{},
		Trends:     fakeTrends{},
		Drafter:    drafter,
		Processor:  proc,
		Rewriter:   fakeRewriter{},
		Analyzer:   fakeAnalyzer{},
		Store:      st,
		Sessions:   refine.NewRegistry(refine.NewRefiner(st, fakeRewriter{}, nil, nil)),
		Uploader:   fakeUploader{},
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := httptest.NewServer(New(deps, config.ServerConfig{}).Handler())
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: st, proc: proc, drafter: drafter}
}

func (e *env) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func (e *env) seedBatch(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/batch-process", `{"companies":[{"회사명":"Acme","대표자명":"Kim"},{"회사명":"Globex"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody(t, resp)["batch_id"].(string)
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestResearchCompany(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.do(t, http.MethodPost, "/api/research-company", `{"companyData":{"회사명":"Acme"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Acme sells widgets", body["company_info"])
	assert.Equal(t, "payments are consolidating", body["industry_trends"])

	resp = e.do(t, http.MethodPost, "/api/research-company", `{"companyData":{"회사명":"Down"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Nil(t, body["company_info"])
	assert.Equal(t, "NetworkError", body["error"].(map[string]any)["kind"])

	resp = e.do(t, http.MethodPost, "/api/research-company", `{"companyData":{"업종":"retail"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/research-company", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateEmails(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.do(t, http.MethodPost, "/api/generate-emails",
		`{"company_data":{"회사명":"Acme"},"research_data":{"company_info":"Acme ships freight","industry_trends":"old trends"},"industry":"Logistics","user_template":"keep it short","user_input_mode":"request"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["email_result"].(map[string]any)["success"])
	assert.Equal(t, "Logistics is consolidating", body["industry_trends"])
	assert.NotEmpty(t, body["timestamp"])

	assert.Equal(t, "Acme", e.drafter.company)
	assert.True(t, e.drafter.research.Success)
	assert.Equal(t, "Acme ships freight", e.drafter.research.FindingsText())
	require.NotNil(t, e.drafter.research.IndustryTrends)
	assert.Equal(t, "Logistics is consolidating", *e.drafter.research.IndustryTrends)
	assert.Equal(t, model.ModeRequest, e.drafter.opts.Mode)
	require.NotNil(t, e.drafter.opts.UserTemplate)
	assert.Equal(t, "keep it short", *e.drafter.opts.UserTemplate)
}

func TestGenerateEmails_TrendsFailureKeepsCallerResearch(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.do(t, http.MethodPost, "/api/generate-emails",
		`{"company_data":{"companyName":"Acme"},"research_data":{"industry_trends":"caller trends"},"industry":"Down"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Nil(t, body["industry_trends"])

	assert.False(t, e.drafter.research.Success, "no company info means no research findings")
	require.NotNil(t, e.drafter.research.IndustryTrends)
	assert.Equal(t, "caller trends", *e.drafter.research.IndustryTrends)
	assert.Equal(t, model.ModeDefault, e.drafter.opts.Mode)
}

func TestGenerateEmails_Errors(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.do(t, http.MethodPost, "/api/generate-emails", `{"company_data":{"업종":"retail"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/generate-emails", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	off := newEnv(t, func(d *Deps) { d.Drafter = nil })
	resp = off.do(t, http.MethodPost, "/api/generate-emails", `{"company_data":{"회사명":"Acme"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBatchProcess(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.do(t, http.MethodPost, "/api/batch-process",
		`{"companies":[{"회사명":"Acme"},{"회사명":"  "},{"회사명":"Globex"}],"max_workers":3,"user_template":"hi","user_input_mode":"request"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "batch-Acme", body["batch_id"])
	assert.Equal(t, float64(2), body["total_processed"])
	assert.Equal(t, true, body["stored"])
	assert.Len(t, body["results"], 2)

	assert.Equal(t, 3, e.proc.opts.Concurrency)
	assert.Equal(t, model.ModeRequest, e.proc.opts.Mode)
	require.NotNil(t, e.proc.opts.UserTemplate)
	assert.Equal(t, "hi", *e.proc.opts.UserTemplate)

	stored, err := e.store.GetBatch(context.Background(), "batch-Acme")
	require.NoError(t, err)
	assert.Len(t, stored.Results, 2)

	resp = e.do(t, http.MethodPost, "/api/batch-process", `{"companies":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefineEmail(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.do(t, http.MethodPost, "/api/refine-email", `{"current_email":"Subject: Hi\n\nBody","refinement_request":"shorter"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Subject: Shorter\n\nSHORTER", body["refined_email"])

	resp = e.do(t, http.MethodPost, "/api/refine-email", `{"refinement_request":"shorter"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzeNews(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.do(t, http.MethodPost, "/api/analyze-news", `{"news_url":"https://news.example/a","company_name":"Acme","current_email":"x"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "from https://news.example/a", body["analyzed_email"])
	assert.Equal(t, "article about Acme", body["article_summary"])

	resp = e.do(t, http.MethodPost, "/api/analyze-news", `{"company_name":"Acme"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	off := newEnv(t, func(d *Deps) { d.Analyzer = nil })
	resp = off.do(t, http.MethodPost, "/api/analyze-news", `{"news_url":"https://news.example/a"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSessionRefine(t *testing.T) {
	e := newEnv(t, nil)
	id := e.seedBatch(t)

	resp := e.do(t, http.MethodPost, "/api/sessions/s1/refine",
		`{"batch_id":"`+id+`","company_index":1,"variant_key":"curiosity","instruction":"make it punchy"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, refine.BranchGeneric, body["branch"])
	variant := body["variant"].(map[string]any)
	assert.Equal(t, "Shorter", variant["subject"])
	assert.Equal(t, "MAKE IT PUNCHY", variant["body"])

	b, err := e.store.GetBatch(context.Background(), id)
	require.NoError(t, err)
	v, _ := b.Results[1].Drafts.Get("curiosity")
	assert.Equal(t, "Shorter", v.Subject)
	untouched, _ := b.Results[1].Drafts.Get("value")
	assert.Equal(t, "Hello Globex", untouched.Subject)
	untouched, _ = b.Results[0].Drafts.Get("curiosity")
	assert.Equal(t, "Question for Acme", untouched.Subject)
}

func TestSessionRefine_Errors(t *testing.T) {
	e := newEnv(t, nil)
	id := e.seedBatch(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing variant key", `{"batch_id":"` + id + `","company_index":0,"instruction":"x"}`, http.StatusBadRequest},
		{"empty instruction", `{"batch_id":"` + id + `","company_index":0,"variant_key":"value","instruction":" "}`, http.StatusBadRequest},
		{"unknown batch", `{"batch_id":"nope","company_index":0,"variant_key":"value","instruction":"x"}`, http.StatusNotFound},
		{"collaborator timeout", `{"batch_id":"` + id + `","company_index":0,"variant_key":"value","instruction":"fail"}`, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.do(t, http.MethodPost, "/api/sessions/s2/refine", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, false, decodeBody(t, resp)["success"])
		})
	}

	b, err := e.store.GetBatch(context.Background(), id)
	require.NoError(t, err)
	v, _ := b.Results[0].Drafts.Get("value")
	assert.Equal(t, "Hello Acme", v.Subject)

	resp := e.do(t, http.MethodDelete, "/api/sessions/s2", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestBatches(t *testing.T) {
	e := newEnv(t, nil)
	id := e.seedBatch(t)

	resp := e.do(t, http.MethodGet, "/api/batches", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []model.BatchSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, 2, list[0].CompanyCount)

	resp = e.do(t, http.MethodGet, "/api/batches/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, decodeBody(t, resp)["id"])

	resp = e.do(t, http.MethodDelete, "/api/batches/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/batches/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = e.do(t, http.MethodDelete, "/api/batches/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExport(t *testing.T) {
	e := newEnv(t, nil)
	id := e.seedBatch(t)

	resp := e.do(t, http.MethodGet, "/api/batches/"+id+"/export.csv", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"회사명", "대표자명", "메일문안1_제목"}, records[0][:3])
	assert.Equal(t, "Hello Acme", records[1][2])

	resp = e.do(t, http.MethodGet, "/api/batches/"+id+"/export.xlsx", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/batches/"+id+"/export.pdf", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = e.do(t, http.MethodGet, "/api/batches/missing/export.csv", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpload(t *testing.T) {
	e := newEnv(t, nil)
	id := e.seedBatch(t)

	resp := e.do(t, http.MethodPost, "/api/batches/"+id+"/upload?format=xlsx", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "exports/"+id+".xlsx", decodeBody(t, resp)["key"])

	failing := newEnv(t, func(d *Deps) { d.Uploader = fakeUploader{err: errors.New("denied")} })
	fid := failing.seedBatch(t)
	resp = failing.do(t, http.MethodPost, "/api/batches/"+fid+"/upload", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	none := newEnv(t, func(d *Deps) { d.Uploader = nil })
	resp = none.do(t, http.MethodPost, "/api/batches/x/upload", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSavedDrafts(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.do(t, http.MethodPost, "/api/drafts", `{"company_name":"Acme","variant":{"key":"value","subject":"Hi","body":"Body"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	saved := decodeBody(t, resp)
	id := saved["id"].(string)
	assert.NotEmpty(t, id)

	resp = e.do(t, http.MethodPost, "/api/drafts", `{"company_name":"Acme","variant":{"key":"value"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/drafts", "")
	var list []model.SavedDraft
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "Body", list[0].Variant.Body)

	resp = e.do(t, http.MethodDelete, "/api/drafts/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(t, http.MethodDelete, "/api/drafts/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSavedCompanies(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.do(t, http.MethodPost, "/api/companies",
		`{"company":{"회사명":"Acme","대표자명":"Kim"},"drafts":{"value":{"key":"value","subject":"Hi","body":"B"}}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decodeBody(t, resp)["id"].(string)

	resp = e.do(t, http.MethodGet, "/api/companies", "")
	var list []model.SavedCompany
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "Acme", list[0].Company.Name())
	assert.Equal(t, []string{"value"}, list[0].Drafts.Keys())

	resp = e.do(t, http.MethodPost, "/api/companies", `{"company":{"업종":"retail"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/companies/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind model.ErrorKind
		want int
	}{
		{model.ErrValidation, http.StatusBadRequest},
		{model.ErrInvalidState, http.StatusConflict},
		{model.ErrNetwork, http.StatusServiceUnavailable},
		{model.ErrUnavailable, http.StatusServiceUnavailable},
		{model.ErrTimeout, http.StatusGatewayTimeout},
		{model.ErrService, http.StatusBadGateway},
		{model.ErrParse, http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(&model.Failure{Kind: tt.kind}), tt.kind)
	}
}

func TestCORS(t *testing.T) {
	e := newEnv(t, nil)
	req, err := http.NewRequest(http.MethodOptions, e.srv.URL+"/api/batches", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
