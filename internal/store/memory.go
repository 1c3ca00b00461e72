package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/outreach-cli/internal/model"
)

// MemoryStore keeps everything in process. Used by tests and --offline runs.
type MemoryStore struct {
	limits Limits

	mu        sync.Mutex
	batches   []*model.BatchResult // oldest first
	drafts    []model.SavedDraft
	companies []model.SavedCompany

	now func() time.Time
}

// NewMemory creates an empty MemoryStore.
func NewMemory(limits Limits) *MemoryStore {
	return &MemoryStore{limits: limits.withDefaults(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) SaveBatch(_ context.Context, b *model.BatchResult) error {
	cp := cloneBatch(b)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, cp)
	if over := len(s.batches) - s.limits.MaxBatches; over > 0 {
		s.batches = append([]*model.BatchResult(nil), s.batches[over:]...)
	}
	return nil
}

func (s *MemoryStore) GetBatch(_ context.Context, id string) (*model.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.find(id); b != nil {
		return cloneBatch(b), nil
	}
	return nil, batchNotFound(id)
}

func (s *MemoryStore) ListBatches(context.Context) ([]model.BatchSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.BatchSummary, 0, len(s.batches))
	for i := len(s.batches) - 1; i >= 0; i-- {
		out = append(out, s.batches[i].Summary())
	}
	return out, nil
}

func (s *MemoryStore) DeleteBatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.batches {
		if b.ID == id {
			s.batches = append(s.batches[:i:i], s.batches[i+1:]...)
			return nil
		}
	}
	return batchNotFound(id)
}

func (s *MemoryStore) UpdateDraft(_ context.Context, target model.RefinementTarget, mutate Mutation) (model.DraftVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.find(target.BatchID)
	if b == nil {
		return model.DraftVariant{}, batchNotFound(target.BatchID)
	}
	if target.CompanyIndex < 0 || target.CompanyIndex >= len(b.Results) {
		return model.DraftVariant{}, companyNotFound(target)
	}
	return applyMutation(&b.Results[target.CompanyIndex], target, mutate)
}

func (s *MemoryStore) SaveDraft(_ context.Context, companyName string, v model.DraftVariant) (model.SavedDraft, error) {
	d := model.SavedDraft{ID: uuid.NewString(), CompanyName: companyName, Variant: cloneVariant(v), SavedAt: s.now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, d)
	if over := len(s.drafts) - s.limits.MaxDrafts; over > 0 {
		s.drafts = append([]model.SavedDraft(nil), s.drafts[over:]...)
	}
	return d, nil
}

func (s *MemoryStore) ListDrafts(context.Context) ([]model.SavedDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SavedDraft, 0, len(s.drafts))
	for i := len(s.drafts) - 1; i >= 0; i-- {
		out = append(out, s.drafts[i])
	}
	return out, nil
}

func (s *MemoryStore) DeleteDraft(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.drafts {
		if d.ID == id {
			s.drafts = append(s.drafts[:i:i], s.drafts[i+1:]...)
			return nil
		}
	}
	return savedNotFound("draft", id)
}

func (s *MemoryStore) SaveCompany(_ context.Context, company model.CompanyRecord, drafts model.Drafts) (model.SavedCompany, error) {
	c := model.SavedCompany{ID: uuid.NewString(), Company: company, Drafts: drafts.Clone(), SavedAt: s.now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies = append(s.companies, c)
	if over := len(s.companies) - s.limits.MaxCompanies; over > 0 {
		s.companies = append([]model.SavedCompany(nil), s.companies[over:]...)
	}
	return c, nil
}

func (s *MemoryStore) ListCompanies(context.Context) ([]model.SavedCompany, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SavedCompany, 0, len(s.companies))
	for i := len(s.companies) - 1; i >= 0; i-- {
		c := s.companies[i]
		c.Drafts = c.Drafts.Clone()
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) DeleteCompany(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.companies {
		if c.ID == id {
			s.companies = append(s.companies[:i:i], s.companies[i+1:]...)
			return nil
		}
	}
	return savedNotFound("company", id)
}

func (s *MemoryStore) find(id string) *model.BatchResult {
	for _, b := range s.batches {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func cloneBatch(b *model.BatchResult) *model.BatchResult {
	cp := *b
	cp.Results = make([]model.CompanyResult, len(b.Results))
	for i, r := range b.Results {
		r.Drafts = r.Drafts.Clone()
		cp.Results[i] = r
	}
	return &cp
}

func cloneVariant(v model.DraftVariant) model.DraftVariant {
	return model.Drafts{v}.Clone()[0]
}
