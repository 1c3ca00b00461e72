// Package server exposes generation, refinement and stored results over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/article"
	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/export"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/refine"
	"github.com/sells-group/outreach-cli/internal/store"
)

const maxBodyBytes = 10 << 20

// Processor runs a batch.
type Processor interface {
	Process(ctx context.Context, records []model.CompanyRecord, opts pipeline.BatchOptions) *model.BatchResult
}

// Analyzer rewrites an email around a news article.
type Analyzer interface {
	Analyze(ctx context.Context, url, companyName, currentEmail string) article.Result
}

// TrendSource summarizes trends for an industry.
type TrendSource interface {
	IndustryTrends(ctx context.Context, industry string) (string, error)
}

// Uploader stores an export remotely.
type Uploader interface {
	Upload(ctx context.Context, b *model.BatchResult, format export.Format) (string, error)
}

// Deps are the collaborators behind the API. Drafter, Analyzer and Uploader
// may be nil; their routes then answer 503. Without Trends the industry
// field of generate-emails is ignored.
type Deps struct {
	Researcher pipeline.Researcher
	Trends     TrendSource
	Drafter    pipeline.Drafter
	Processor  Processor
	Rewriter   refine.EmailRewriter
	Analyzer   Analyzer
	Store      store.Store
	Sessions   *refine.Registry
	Uploader   Uploader
}

// Server serves the JSON API.
type Server struct {
	deps    Deps
	origins []string
}

// New creates a Server.
func New(deps Deps, cfg config.ServerConfig) *Server {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{deps: deps, origins: origins}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/research-company", s.handleResearch)
		r.Post("/generate-emails", s.handleGenerateEmails)
		r.Post("/batch-process", s.handleBatch)
		r.Post("/refine-email", s.handleRefineEmail)
		r.Post("/analyze-news", s.handleAnalyzeNews)

		r.Post("/sessions/{sid}/refine", s.handleSessionRefine)
		r.Delete("/sessions/{sid}", s.handleSessionDrop)

		r.Get("/batches", s.handleListBatches)
		r.Get("/batches/{id}", s.handleGetBatch)
		r.Delete("/batches/{id}", s.handleDeleteBatch)
		r.Get("/batches/{id}/export.{format}", s.handleExport)
		r.Post("/batches/{id}/upload", s.handleUpload)

		r.Post("/drafts", s.handleSaveDraft)
		r.Get("/drafts", s.handleListDrafts)
		r.Delete("/drafts/{id}", s.handleDeleteDraft)

		r.Post("/companies", s.handleSaveCompany)
		r.Get("/companies", s.handleListCompanies)
		r.Delete("/companies/{id}", s.handleDeleteCompany)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeError maps err onto a status code. Failures keep their kind in the
// body so clients can tell unreachable services from bad input.
func writeError(w http.ResponseWriter, err error) {
	var f *model.Failure
	switch {
	case errors.Is(err, store.ErrNotFound):
		if errors.As(err, &f) {
			writeJSON(w, http.StatusNotFound, failureBody{Error: f})
			return
		}
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &f):
		writeJSON(w, statusFor(f), failureBody{Error: f})
	default:
		zap.L().Error("server: internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

type failureBody struct {
	Success bool           `json:"success"`
	Error   *model.Failure `json:"error"`
}

func statusFor(f *model.Failure) int {
	switch f.Kind {
	case model.ErrValidation:
		return http.StatusBadRequest
	case model.ErrInvalidState:
		return http.StatusConflict
	case model.ErrNetwork, model.ErrUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func validation(format string, args ...any) *model.Failure {
	return model.NewFailure(model.ErrValidation, "", format, args...)
}
