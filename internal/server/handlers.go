package server

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/draft"
	"github.com/sells-group/outreach-cli/internal/export"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/normalize"
	"github.com/sells-group/outreach-cli/internal/pipeline"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type researchRequest struct {
	CompanyData model.CompanyRecord `json:"companyData"`
}

type researchResponse struct {
	Success        bool           `json:"success"`
	CompanyInfo    *string        `json:"company_info"`
	IndustryTrends *string        `json:"industry_trends"`
	Headlines      []string       `json:"headlines,omitempty"`
	Error          *model.Failure `json:"error,omitempty"`
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CompanyData.Name() == "" {
		writeError(w, validation("companyData needs a company name"))
		return
	}

	res := s.deps.Researcher.Research(r.Context(), req.CompanyData)
	writeJSON(w, http.StatusOK, researchResponse{
		Success:        res.Success,
		CompanyInfo:    res.Findings,
		IndustryTrends: res.IndustryTrends,
		Headlines:      res.Headlines,
		Error:          res.Error,
	})
}

type researchData struct {
	CompanyInfo    *string `json:"company_info"`
	IndustryTrends *string `json:"industry_trends"`
}

type generateRequest struct {
	CompanyData   model.CompanyRecord `json:"company_data"`
	ResearchData  researchData        `json:"research_data"`
	Industry      string              `json:"industry"`
	UserTemplate  *string             `json:"user_template"`
	UserInputMode string              `json:"user_input_mode"`
}

type generateResponse struct {
	Success        bool              `json:"success"`
	EmailResult    draft.DraftResult `json:"email_result"`
	IndustryTrends *string           `json:"industry_trends"`
	Timestamp      time.Time         `json:"timestamp"`
}

// handleGenerateEmails drafts for one company from research the caller
// already holds. An industry adds a fresh trends lookup when a trend source
// is configured.
func (s *Server) handleGenerateEmails(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drafter == nil {
		writeError(w, model.NewFailure(model.ErrUnavailable, model.StageDraft, "drafting is not configured"))
		return
	}
	var req generateRequest
	if !decode(w, r, &req) {
		return
	}
	company := req.CompanyData
	if company.Name() == "" {
		writeError(w, validation("company_data needs a company name"))
		return
	}

	research := model.ResearchResult{
		Success:        req.ResearchData.CompanyInfo != nil,
		Findings:       req.ResearchData.CompanyInfo,
		IndustryTrends: req.ResearchData.IndustryTrends,
		Timestamp:      time.Now().UTC(),
	}

	var trends *string
	if industry := strings.TrimSpace(req.Industry); industry != "" && s.deps.Trends != nil {
		t, err := s.deps.Trends.IndustryTrends(r.Context(), industry)
		if err != nil {
			zap.L().Warn("server: industry trends", zap.String("industry", industry), zap.Error(err))
		} else {
			trends = &t
			research.IndustryTrends = &t
		}
	}

	mode := model.ResolveMode(model.ParseMode(req.UserInputMode), req.UserTemplate)
	res := s.deps.Drafter.Draft(r.Context(), company, research, draft.Options{
		UserTemplate: req.UserTemplate,
		Mode:         mode,
	})
	writeJSON(w, http.StatusOK, generateResponse{
		Success:        res.Success,
		EmailResult:    res,
		IndustryTrends: trends,
		Timestamp:      time.Now().UTC(),
	})
}

type batchRequest struct {
	Companies     []model.CompanyRecord `json:"companies"`
	MaxWorkers    int                   `json:"max_workers"`
	UserTemplate  *string               `json:"user_template"`
	UserInputMode string                `json:"user_input_mode"`
}

type batchResponse struct {
	Success        bool                  `json:"success"`
	BatchID        string                `json:"batch_id"`
	Results        []model.CompanyResult `json:"results"`
	TotalProcessed int                   `json:"total_processed"`
	ProcessingTime float64               `json:"processing_time"`
	Succeeded      int                   `json:"succeeded"`
	Failed         int                   `json:"failed"`
	CostUSD        float64               `json:"cost_usd,omitempty"`
	Stored         bool                  `json:"stored"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	records := normalize.FromMaps(req.Companies)
	if len(records) == 0 {
		writeError(w, validation("companies must contain at least one row with a company name"))
		return
	}

	b := s.deps.Processor.Process(r.Context(), records, pipeline.BatchOptions{
		Concurrency:  req.MaxWorkers,
		Mode:         model.ParseMode(req.UserInputMode),
		UserTemplate: req.UserTemplate,
	})

	stored := true
	if err := s.deps.Store.SaveBatch(r.Context(), b); err != nil {
		// The caller still gets the drafts; only history is lost.
		zap.L().Error("server: save batch", zap.String("batch_id", b.ID), zap.Error(err))
		stored = false
	}

	writeJSON(w, http.StatusOK, batchResponse{
		Success:        true,
		BatchID:        b.ID,
		Results:        b.Results,
		TotalProcessed: b.TotalProcessed,
		ProcessingTime: b.ProcessingTimeSeconds,
		Succeeded:      b.Succeeded,
		Failed:         b.Failed,
		CostUSD:        b.CostUSD,
		Stored:         stored,
	})
}

type refineEmailRequest struct {
	CurrentEmail      string `json:"current_email"`
	RefinementRequest string `json:"refinement_request"`
}

func (s *Server) handleRefineEmail(w http.ResponseWriter, r *http.Request) {
	var req refineEmailRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CurrentEmail) == "" {
		writeError(w, validation("current_email is required"))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Rewriter.Rewrite(r.Context(), req.CurrentEmail, req.RefinementRequest))
}

type analyzeNewsRequest struct {
	NewsURL      string `json:"news_url"`
	CompanyName  string `json:"company_name"`
	CurrentEmail string `json:"current_email"`
}

func (s *Server) handleAnalyzeNews(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil {
		writeError(w, model.NewFailure(model.ErrUnavailable, model.StageArticle, "article analysis is not configured"))
		return
	}
	var req analyzeNewsRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.NewsURL) == "" {
		writeError(w, validation("news_url is required"))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Analyzer.Analyze(r.Context(), req.NewsURL, req.CompanyName, req.CurrentEmail))
}

type sessionRefineRequest struct {
	model.RefinementTarget
	Instruction string `json:"instruction"`
}

func (s *Server) handleSessionRefine(w http.ResponseWriter, r *http.Request) {
	var req sessionRefineRequest
	if !decode(w, r, &req) {
		return
	}
	sess := s.deps.Sessions.Get(chi.URLParam(r, "sid"))
	out, err := sess.Refine(r.Context(), req.RefinementTarget, req.Instruction)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessionDrop(w http.ResponseWriter, r *http.Request) {
	s.deps.Sessions.Drop(chi.URLParam(r, "sid"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Store.ListBatches(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Store.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteBatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := export.Format(chi.URLParam(r, "format"))
	if format != export.FormatCSV && format != export.FormatXLSX {
		writeError(w, validation("unsupported export format %q", format))
		return
	}
	b, err := s.deps.Store.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, b, format); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", `attachment; filename="`+b.ID+"."+string(format)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Uploader == nil {
		writeError(w, model.NewFailure(model.ErrUnavailable, "", "export.s3_bucket is not configured"))
		return
	}
	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatCSV
	}
	b, err := s.deps.Store.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	key, err := s.deps.Uploader.Upload(r.Context(), b, format)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

type saveDraftRequest struct {
	CompanyName string             `json:"company_name"`
	Variant     model.DraftVariant `json:"variant"`
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var req saveDraftRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CompanyName == "" || req.Variant.Body == "" {
		writeError(w, validation("company_name and variant.body are required"))
		return
	}
	saved, err := s.deps.Store.SaveDraft(r.Context(), req.CompanyName, req.Variant)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Store.ListDrafts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteDraft(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type saveCompanyRequest struct {
	Company model.CompanyRecord `json:"company"`
	Drafts  model.Drafts        `json:"drafts"`
}

func (s *Server) handleSaveCompany(w http.ResponseWriter, r *http.Request) {
	var req saveCompanyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Company.Name() == "" {
		writeError(w, validation("company needs a company name"))
		return
	}
	saved, err := s.deps.Store.SaveCompany(r.Context(), req.Company, req.Drafts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Store.ListCompanies(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteCompany(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
