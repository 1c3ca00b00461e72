// Package normalize turns parsed tables into ordered CompanyRecord sequences.
package normalize

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/fetcher"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Records converts a parsed table into CompanyRecords. Rows whose company
// name is absent or whitespace-only are dropped. Missing cells become "" and
// cells beyond the header are ignored. Indexes are assigned after filtering,
// so they match positions in the returned slice.
func Records(tbl *fetcher.Table) ([]model.CompanyRecord, error) {
	if tbl == nil || len(tbl.Header) == 0 {
		return nil, model.NewFailure(model.ErrValidation, "", "input has no header row")
	}
	nameCol := -1
	for i, h := range tbl.Header {
		if model.CanonicalColumn(h) == model.ColCompanyName {
			nameCol = i
			break
		}
	}
	if nameCol < 0 {
		return nil, model.NewFailure(model.ErrValidation, "", "header has no company name column (companyName or 회사명)")
	}

	records := make([]model.CompanyRecord, 0, len(tbl.Rows))
	dropped := 0
	for _, row := range tbl.Rows {
		if strings.TrimSpace(cell(row, nameCol)) == "" {
			dropped++
			continue
		}
		rec := model.CompanyRecord{Index: len(records), Fields: make([]model.Field, 0, len(tbl.Header))}
		for i, h := range tbl.Header {
			if h == "" {
				continue
			}
			rec.Fields = append(rec.Fields, model.Field{Key: h, Value: strings.TrimSpace(cell(row, i))})
		}
		records = append(records, rec)
	}

	if dropped > 0 {
		zap.L().Debug("normalize: dropped rows without company name", zap.Int("dropped", dropped))
	}
	return records, nil
}

// FromMaps builds records from JSON-decoded API payloads, preserving the
// given key order for each row. Rows without a company name are dropped.
func FromMaps(rows []model.CompanyRecord) []model.CompanyRecord {
	out := make([]model.CompanyRecord, 0, len(rows))
	for _, r := range rows {
		if r.Name() == "" {
			continue
		}
		r.Index = len(out)
		out = append(out, r)
	}
	return out
}

// Read parses delimited text and normalizes it in one step.
func Read(ctx context.Context, r io.Reader, opts fetcher.ReadOptions) ([]model.CompanyRecord, error) {
	tbl, err := fetcher.ReadDelimited(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	return Records(tbl)
}

// ReadFile parses a CSV, TSV or XLSX file and normalizes it.
func ReadFile(ctx context.Context, path string, opts fetcher.ReadOptions) ([]model.CompanyRecord, error) {
	tbl, err := fetcher.ReadFile(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	return Records(tbl)
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
