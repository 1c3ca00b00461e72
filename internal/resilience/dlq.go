package resilience

import (
	"github.com/sells-group/outreach-cli/internal/model"
)

// DLQEntry is a company from a finished batch whose pipeline failed.
type DLQEntry struct {
	BatchID   string              `json:"batch_id"`
	Index     int                 `json:"index"`
	Company   model.CompanyRecord `json:"company"`
	Failure   *model.Failure      `json:"failure"`
	ErrorType string              `json:"error_type"` // "transient" or "permanent"
}

// CanRetry reports whether re-running the company could plausibly succeed.
func (e DLQEntry) CanRetry() bool {
	return e.ErrorType == "transient"
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// DeadLetters lists the failed companies of a batch in input order.
// With transientOnly set, only entries worth retrying are returned.
func DeadLetters(b *model.BatchResult, transientOnly bool) []DLQEntry {
	var out []DLQEntry
	for i, r := range b.Results {
		if r.Error == nil {
			continue
		}
		e := DLQEntry{
			BatchID:   b.ID,
			Index:     i,
			Company:   r.Company,
			Failure:   r.Error,
			ErrorType: ClassifyError(r.Error),
		}
		if transientOnly && !e.CanRetry() {
			continue
		}
		out = append(out, e)
	}
	return out
}
