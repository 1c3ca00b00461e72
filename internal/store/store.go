// Package store persists batches, saved drafts and saved companies.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrNotFound is returned when a batch, company, variant or saved item does
// not exist.
var ErrNotFound = eris.New("store: not found")

// Mutation changes one draft variant in place. Returning an error aborts the
// update and leaves the stored variant untouched.
type Mutation func(v *model.DraftVariant) error

// Store defines the persistence interface for generated outreach.
type Store interface {
	// Batches
	SaveBatch(ctx context.Context, b *model.BatchResult) error
	GetBatch(ctx context.Context, id string) (*model.BatchResult, error)
	ListBatches(ctx context.Context) ([]model.BatchSummary, error)
	DeleteBatch(ctx context.Context, id string) error

	// UpdateDraft applies mutate to exactly the variant named by target and
	// returns the stored result.
	UpdateDraft(ctx context.Context, target model.RefinementTarget, mutate Mutation) (model.DraftVariant, error)

	// Saved drafts
	SaveDraft(ctx context.Context, companyName string, v model.DraftVariant) (model.SavedDraft, error)
	ListDrafts(ctx context.Context) ([]model.SavedDraft, error)
	DeleteDraft(ctx context.Context, id string) error

	// Saved companies
	SaveCompany(ctx context.Context, company model.CompanyRecord, drafts model.Drafts) (model.SavedCompany, error)
	ListCompanies(ctx context.Context) ([]model.SavedCompany, error)
	DeleteCompany(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Limits caps how many items of each kind are retained. The oldest entries
// are evicted first.
type Limits struct {
	MaxBatches   int
	MaxDrafts    int
	MaxCompanies int
}

// DefaultLimits returns the retention caps.
func DefaultLimits() Limits {
	return Limits{MaxBatches: 20, MaxDrafts: 100, MaxCompanies: 50}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxBatches <= 0 {
		l.MaxBatches = d.MaxBatches
	}
	if l.MaxDrafts <= 0 {
		l.MaxDrafts = d.MaxDrafts
	}
	if l.MaxCompanies <= 0 {
		l.MaxCompanies = d.MaxCompanies
	}
	return l
}

// LimitsFromConfig reads caps from store settings.
func LimitsFromConfig(cfg config.StoreConfig) Limits {
	return Limits{MaxBatches: cfg.MaxBatches, MaxDrafts: cfg.MaxDrafts, MaxCompanies: cfg.MaxCompanies}.withDefaults()
}

// Open creates and migrates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	limits := LimitsFromConfig(cfg)

	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		s = NewMemory(limits)
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		s, err = NewSQLite(dsn, limits)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, limits, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// applyMutation runs mutate on the variant at target inside result. It is
// shared by every backend so the not-found rules are identical.
func applyMutation(result *model.CompanyResult, target model.RefinementTarget, mutate Mutation) (model.DraftVariant, error) {
	var (
		updated model.DraftVariant
		mutErr  error
	)
	found := result.Drafts.Update(target.VariantKey, func(v *model.DraftVariant) {
		cand := *v
		if mutErr = mutate(&cand); mutErr != nil {
			return
		}
		// Keys are never reassigned.
		cand.Key = v.Key
		*v = cand
		updated = cand
	})
	if !found {
		return model.DraftVariant{}, eris.Wrapf(ErrNotFound, "variant %q of company %d in batch %s", target.VariantKey, target.CompanyIndex, target.BatchID)
	}
	if mutErr != nil {
		return model.DraftVariant{}, mutErr
	}
	return updated, nil
}

func batchNotFound(id string) error {
	return eris.Wrapf(ErrNotFound, "batch %s", id)
}

func companyNotFound(t model.RefinementTarget) error {
	return eris.Wrapf(ErrNotFound, "company %d in batch %s", t.CompanyIndex, t.BatchID)
}

func savedNotFound(kind, id string) error {
	return eris.Wrapf(ErrNotFound, "saved %s %s", kind, id)
}
