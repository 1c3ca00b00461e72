package refine

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/article"
	"github.com/sells-group/outreach-cli/internal/draft"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// ErrInvalidState is returned by Submit when no target is active.
var ErrInvalidState = model.NewFailure(model.ErrInvalidState, model.StageRefine, "no active refinement target")

// Branches reported in Outcome.Branch.
const (
	BranchArticle = "article"
	BranchGeneric = "generic"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ExtractURL returns the first http(s) URL in text with trailing
// punctuation removed.
func ExtractURL(text string) (string, bool) {
	m := urlPattern.FindString(text)
	if m == "" {
		return "", false
	}
	m = strings.TrimRight(m, `.,;:)]}"'>`)
	return m, m != ""
}

// ArticleAnalyzer regenerates an email from a news article.
type ArticleAnalyzer interface {
	Analyze(ctx context.Context, url, companyName, currentEmail string) article.Result
}

// EmailRewriter rewrites an email per an instruction.
type EmailRewriter interface {
	Rewrite(ctx context.Context, currentEmail, instruction string) RewriteResult
}

// DraftStore is the part of store.Store a refinement touches.
type DraftStore interface {
	GetBatch(ctx context.Context, id string) (*model.BatchResult, error)
	UpdateDraft(ctx context.Context, target model.RefinementTarget, mutate store.Mutation) (model.DraftVariant, error)
}

// Outcome describes a successful refinement.
type Outcome struct {
	Target         model.RefinementTarget `json:"target"`
	Branch         string                 `json:"branch"`
	URL            string                 `json:"url,omitempty"`
	Variant        model.DraftVariant     `json:"variant"`
	ArticleSummary *string                `json:"article_summary,omitempty"`
	PainPoints     []string               `json:"pain_points,omitempty"`
	// ArticleFailure is set when the URL branch failed and the generic
	// branch produced the result instead.
	ArticleFailure *model.Failure `json:"article_failure,omitempty"`
}

// Refiner holds the collaborators shared by every Session.
type Refiner struct {
	store    DraftStore
	rewriter EmailRewriter
	analyzer ArticleAnalyzer
	locker   Locker
}

// NewRefiner creates a Refiner. analyzer may be nil, in which case URL
// instructions go straight to the generic branch. locker defaults to a
// LocalLocker.
func NewRefiner(s DraftStore, rewriter EmailRewriter, analyzer ArticleAnalyzer, locker Locker) *Refiner {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Refiner{store: s, rewriter: rewriter, analyzer: analyzer, locker: locker}
}

// NewSession creates an inactive Session bound to r.
func (r *Refiner) NewSession() *Session {
	return &Session{refiner: r}
}

// Session is one user's single-target editor.
type Session struct {
	refiner *Refiner

	// op serializes Refine calls; mu guards the fields below.
	op     sync.Mutex
	mu     sync.Mutex
	active bool
	target *model.RefinementTarget
}

// Enter makes target the active target, discarding any previous one.
func (s *Session) Enter(target model.RefinementTarget) error {
	if f := target.Validate(); f != nil {
		return f
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := target
	s.active = true
	s.target = &t
	return nil
}

// Exit clears the active target.
func (s *Session) Exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.target = nil
}

// Active reports whether a target is engaged and returns it.
func (s *Session) Active() (model.RefinementTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.target == nil {
		return model.RefinementTarget{}, false
	}
	return *s.target, true
}

// Submit applies instruction to the active target. The target it worked on
// is exited on every return path; a target entered while it ran stays
// active. Errors are *model.Failure values; on error the stored draft is
// unchanged.
func (s *Session) Submit(ctx context.Context, instruction string) (Outcome, error) {
	s.mu.Lock()
	target := s.target
	if !s.active {
		target = nil
	}
	s.mu.Unlock()
	if target == nil {
		return Outcome{}, ErrInvalidState
	}
	defer s.release(target)

	if strings.TrimSpace(instruction) == "" {
		return Outcome{}, model.NewFailure(model.ErrValidation, model.StageRefine, "instruction is required")
	}
	return s.refiner.refine(ctx, *target, instruction)
}

// Refine enters target, submits instruction and exits as one step. Refine
// calls on the same session run one at a time.
func (s *Session) Refine(ctx context.Context, target model.RefinementTarget, instruction string) (Outcome, error) {
	s.op.Lock()
	defer s.op.Unlock()
	if err := s.Enter(target); err != nil {
		return Outcome{}, err
	}
	return s.Submit(ctx, instruction)
}

// release exits only if t is still the active target.
func (s *Session) release(t *model.RefinementTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == t {
		s.active = false
		s.target = nil
	}
}

func (r *Refiner) refine(ctx context.Context, target model.RefinementTarget, instruction string) (Outcome, error) {
	log := zap.L().With(zap.String("stage", model.StageRefine), zap.String("target", target.LockKey()))

	unlock, err := r.locker.Lock(ctx, target.LockKey())
	if err != nil {
		return Outcome{}, model.ClassifyError(err, model.StageRefine, model.ErrService)
	}
	defer unlock()

	company, current, err := r.load(ctx, target)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Target: target}
	var subject, body string

	if url, ok := ExtractURL(instruction); ok && r.analyzer != nil {
		out.URL = url
		res := r.analyzer.Analyze(ctx, url, company, current.Text())
		if res.Success {
			log.Info("refine: article branch", zap.String("url", url))
			out.Branch = BranchArticle
			out.ArticleSummary = res.ArticleSummary
			out.PainPoints = res.PainPoints
			subject, body = splitRewrite(res.AnalyzedEmail, current.Subject)
		} else {
			log.Warn("refine: article branch failed, falling back", zap.Error(asError(res.Error)))
			out.ArticleFailure = res.Error
		}
	}

	if out.Branch == "" {
		log.Info("refine: generic branch")
		out.Branch = BranchGeneric
		res := r.rewriter.Rewrite(ctx, current.Text(), instruction)
		if !res.Success {
			f := res.Error
			if f == nil {
				f = model.NewFailure(model.ErrService, model.StageRefine, "rewrite failed")
			}
			return Outcome{}, f
		}
		subject, body = splitRewrite(res.RefinedEmail, current.Subject)
	}

	updated, err := r.store.UpdateDraft(ctx, target, func(v *model.DraftVariant) error {
		v.Subject = subject
		v.Body = body
		return nil
	})
	if err != nil {
		return Outcome{}, storeFailure(err)
	}
	out.Variant = updated
	return out, nil
}

// load returns the company name and the current variant for target.
func (r *Refiner) load(ctx context.Context, target model.RefinementTarget) (string, model.DraftVariant, error) {
	b, err := r.store.GetBatch(ctx, target.BatchID)
	if err != nil {
		return "", model.DraftVariant{}, storeFailure(err)
	}
	if target.CompanyIndex >= len(b.Results) {
		return "", model.DraftVariant{}, model.NewFailure(model.ErrValidation, model.StageRefine,
			"company %d not in batch %s", target.CompanyIndex, target.BatchID)
	}
	res := b.Results[target.CompanyIndex]
	v, ok := res.Drafts.Get(target.VariantKey)
	if !ok {
		return "", model.DraftVariant{}, model.NewFailure(model.ErrValidation, model.StageRefine,
			"variant %q not found for %s", target.VariantKey, res.Company.Name())
	}
	return res.Company.Name(), v, nil
}

// splitRewrite separates a leading subject line. Without one the subject is
// kept and the whole text becomes the body.
func splitRewrite(text, currentSubject string) (string, string) {
	subject, body, ok := draft.SplitSubject(text)
	if !ok || subject == "" {
		return currentSubject, strings.TrimSpace(text)
	}
	return subject, body
}

func storeFailure(err error) *model.Failure {
	if errors.Is(err, store.ErrNotFound) {
		return model.NewFailure(model.ErrValidation, model.StageRefine, "%v", err).WithCause(err)
	}
	var f *model.Failure
	if errors.As(err, &f) {
		return f
	}
	return model.NewFailure(model.ErrService, model.StageRefine, "%v", err)
}

func asError(f *model.Failure) error {
	if f == nil {
		return nil
	}
	return f
}
