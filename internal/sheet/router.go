package sheet

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
)

// Routes reported for each row.
const (
	RouteAI       = "ai"
	RouteLegacy   = "legacy"
	RouteFallback = "legacy-fallback"
)

// BatchProcessor generates drafts for a set of records.
type BatchProcessor interface {
	Process(ctx context.Context, records []model.CompanyRecord, opts pipeline.BatchOptions) *model.BatchResult
}

// Router picks AI or legacy content for each row and sends it.
type Router struct {
	svc  Service
	gen  BatchProcessor
	tmpl Template
	cfg  config.SheetConfig
	mode model.Mode
	now  func() time.Time
}

// NewRouter creates a Router.
func NewRouter(svc Service, gen BatchProcessor, tmpl Template, cfg config.SheetConfig) *Router {
	return &Router{svc: svc, gen: gen, tmpl: tmpl, cfg: cfg, mode: model.ModeDefault, now: time.Now}
}

// Composed is the email chosen for a row and how it was chosen.
type Composed struct {
	Subject string
	Body    string
	Route   string
	Failure *model.Failure
}

// IsAIRow reports whether the row asks for AI personalization.
func (r *Router) IsAIRow(row Row) bool {
	return strings.TrimSpace(row.Record.Get(r.cfg.TemplateColumn)) == r.cfg.AIMarker
}

// Compose builds the email for row. AI rows that fail fall back to the
// legacy template.
func (r *Router) Compose(ctx context.Context, row Row) Composed {
	if !r.IsAIRow(row) || r.gen == nil {
		s, b := r.tmpl.Render(row.Record)
		return Composed{Subject: s, Body: b, Route: RouteLegacy}
	}

	rec := row.Record
	rec.Index = 0
	batch := r.gen.Process(ctx, []model.CompanyRecord{rec}, pipeline.BatchOptions{Concurrency: 1, Mode: r.mode})

	var f *model.Failure
	if len(batch.Results) == 1 {
		res := batch.Results[0]
		if v, ok := pick(res.Drafts); ok && res.Error == nil {
			return Composed{Subject: v.Subject, Body: v.Body, Route: RouteAI}
		}
		f = res.Error
	}
	if f == nil {
		f = model.NewFailure(model.ErrService, model.StageDraft, "no drafts generated")
	}
	zap.L().Warn("sheet: ai draft failed, using legacy template",
		zap.Int("row", row.Index), zap.String("company", rec.Name()), zap.Error(f))
	s, b := r.tmpl.Render(row.Record)
	return Composed{Subject: s, Body: b, Route: RouteFallback, Failure: f}
}

// pick prefers the top-ranked variant, then the first.
func pick(d model.Drafts) (model.DraftVariant, bool) {
	if v, ok := d.TopPick(); ok {
		return v, true
	}
	if len(d) > 0 {
		return d[0], true
	}
	return model.DraftVariant{}, false
}

// SendTest composes the email for the row at index and sends it to the
// configured test address. The sent flag is not touched.
func (r *Router) SendTest(ctx context.Context, index int) (Composed, error) {
	if r.cfg.TestRecipient == "" {
		return Composed{}, eris.New("sheet: test_recipient is not configured")
	}
	rows, err := r.svc.Rows(ctx)
	if err != nil {
		return Composed{}, err
	}
	if index < 0 || index >= len(rows) {
		return Composed{}, eris.Errorf("sheet: row %d out of range", index)
	}
	c := r.Compose(ctx, rows[index])
	if err := r.svc.SendMail(ctx, Mail{To: r.cfg.TestRecipient, Subject: c.Subject, Body: c.Body}); err != nil {
		return c, eris.Wrap(err, "sheet: send test mail")
	}
	return c, nil
}

// Report summarizes a SendAll run.
type Report struct {
	AI       int
	Legacy   int
	Fallback int
	Skipped  int
	Failed   int
}

// SendAll sends every unsent row to its email column and stamps the sent
// column. Rows without a company name or email are skipped.
func (r *Router) SendAll(ctx context.Context) (Report, error) {
	rows, err := r.svc.Rows(ctx)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		log := zap.L().With(zap.Int("row", row.Index), zap.String("company", row.Record.Name()))

		if row.Record.Name() == "" || strings.TrimSpace(row.Record.Get(r.cfg.SentColumn)) != "" {
			rep.Skipped++
			continue
		}
		to := strings.TrimSpace(row.Record.Get(r.cfg.EmailColumn))
		if to == "" {
			log.Info("sheet: no email address, skipping")
			rep.Skipped++
			continue
		}

		c := r.Compose(ctx, row)
		if err := r.svc.SendMail(ctx, Mail{To: to, Subject: c.Subject, Body: c.Body}); err != nil {
			log.Error("sheet: send failed", zap.Error(err))
			rep.Failed++
			continue
		}
		if err := r.svc.SetCell(ctx, row.Index, r.cfg.SentColumn, r.now().Format("2006-01-02 15:04:05")); err != nil {
			log.Error("sheet: mark sent failed", zap.Error(err))
		}

		switch c.Route {
		case RouteAI:
			rep.AI++
		case RouteFallback:
			rep.Fallback++
		default:
			rep.Legacy++
		}
	}

	zap.L().Info("sheet: send complete",
		zap.Int("ai", rep.AI), zap.Int("legacy", rep.Legacy), zap.Int("fallback", rep.Fallback),
		zap.Int("skipped", rep.Skipped), zap.Int("failed", rep.Failed))
	return rep, ctx.Err()
}
