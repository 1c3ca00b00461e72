package model

import "time"

// ResearchResult is the outcome of one research call for one company.
type ResearchResult struct {
	Success        bool      `json:"success"`
	Findings       *string   `json:"findings"`
	IndustryTrends *string   `json:"industry_trends,omitempty"`
	Headlines      []string  `json:"headlines,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Error          *Failure  `json:"error,omitempty"`
}

// FailedResearch builds an unsuccessful ResearchResult.
func FailedResearch(f *Failure) ResearchResult {
	return ResearchResult{Success: false, Timestamp: time.Now().UTC(), Error: f}
}

// FindingsText returns the findings or "" when research failed.
func (r ResearchResult) FindingsText() string {
	if r.Findings == nil {
		return ""
	}
	return *r.Findings
}
