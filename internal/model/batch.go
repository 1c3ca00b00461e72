package model

import (
	"fmt"
	"time"
)

// CompanyResult is the pipeline output for one input record.
type CompanyResult struct {
	Company         CompanyRecord  `json:"company"`
	Research        ResearchResult `json:"research"`
	Drafts          Drafts         `json:"drafts"`
	Error           *Failure       `json:"error,omitempty"`
	FallbackUsed    bool           `json:"fallback_used,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	CostUSD         float64        `json:"cost_usd,omitempty"`
}

// FailedCompany builds a CompanyResult for a record that produced no drafts.
func FailedCompany(company CompanyRecord, f *Failure) CompanyResult {
	return CompanyResult{
		Company:  company,
		Research: FailedResearch(f),
		Drafts:   Drafts{},
		Error:    f,
	}
}

// BatchResult is the aggregate output of one batch.
type BatchResult struct {
	ID                    string          `json:"id"`
	Results               []CompanyResult `json:"results"`
	TotalProcessed        int             `json:"total_processed"`
	ProcessingTimeSeconds float64         `json:"processing_time"`
	CreatedAt             time.Time       `json:"created_at"`
	Mode                  Mode            `json:"mode,omitempty"`
	Succeeded             int             `json:"succeeded"`
	Failed                int             `json:"failed"`
	CostUSD               float64         `json:"cost_usd,omitempty"`
}

// Tally recomputes TotalProcessed, Succeeded, Failed and CostUSD from Results.
func (b *BatchResult) Tally() {
	b.TotalProcessed = len(b.Results)
	b.Succeeded, b.Failed, b.CostUSD = 0, 0, 0
	for _, r := range b.Results {
		if r.Error != nil {
			b.Failed++
		} else {
			b.Succeeded++
		}
		b.CostUSD += r.CostUSD
	}
}

// Summary returns the index entry for this batch.
func (b BatchResult) Summary() BatchSummary {
	return BatchSummary{ID: b.ID, Timestamp: b.CreatedAt, CompanyCount: len(b.Results)}
}

// BatchSummary is one entry of the batch index.
type BatchSummary struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	CompanyCount int       `json:"companyCount"`
}

// RefinementTarget identifies exactly one stored draft variant.
type RefinementTarget struct {
	BatchID      string `json:"batch_id"`
	CompanyIndex int    `json:"company_index"`
	VariantKey   string `json:"variant_key"`
}

// LockKey is the key used to serialize refinements of this target.
func (t RefinementTarget) LockKey() string {
	return fmt.Sprintf("%s/%d/%s", t.BatchID, t.CompanyIndex, t.VariantKey)
}

// Validate checks that every component of the target is set.
func (t RefinementTarget) Validate() *Failure {
	switch {
	case t.BatchID == "":
		return NewFailure(ErrValidation, StageRefine, "batch id is required")
	case t.CompanyIndex < 0:
		return NewFailure(ErrValidation, StageRefine, "company index must be >= 0")
	case t.VariantKey == "":
		return NewFailure(ErrValidation, StageRefine, "variant key is required")
	}
	return nil
}

// SavedDraft is an individually saved variant.
type SavedDraft struct {
	ID          string       `json:"id"`
	CompanyName string       `json:"company_name"`
	Variant     DraftVariant `json:"variant"`
	SavedAt     time.Time    `json:"saved_at"`
}

// SavedCompany is a saved company with all of its drafts.
type SavedCompany struct {
	ID      string        `json:"id"`
	Company CompanyRecord `json:"company"`
	Drafts  Drafts        `json:"drafts"`
	SavedAt time.Time     `json:"saved_at"`
}
