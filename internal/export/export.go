// Package export writes batch results as CSV or XLSX and can upload them.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
)

// MaxVariants is how many variants get their own subject/body columns.
const MaxVariants = 4

// Table flattens a batch into a header and rows: every input column in
// first-seen order, then subject/body pairs for up to MaxVariants variants.
func Table(b *model.BatchResult) ([]string, [][]string) {
	var cols []string
	seen := map[string]bool{}
	for _, r := range b.Results {
		for _, k := range r.Company.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}

	header := append([]string(nil), cols...)
	for i := 1; i <= MaxVariants; i++ {
		header = append(header, fmt.Sprintf("메일문안%d_제목", i), fmt.Sprintf("메일문안%d_본문", i))
	}

	rows := make([][]string, 0, len(b.Results))
	for _, r := range b.Results {
		row := make([]string, 0, len(header))
		values := r.Company.Map()
		for _, c := range cols {
			row = append(row, values[c])
		}
		ordered := Ordered(r.Drafts)
		for i := range MaxVariants {
			if r.Error == nil && i < len(ordered) {
				row = append(row, ordered[i].Subject, ordered[i].Body)
			} else {
				row = append(row, "", "")
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}

// Ordered returns variants top pick first, then by rank score, keeping
// insertion order for ties. Unranked drafts keep insertion order.
func Ordered(d model.Drafts) model.Drafts {
	out := d.Clone()
	sort.SliceStable(out, func(i, j int) bool {
		return rankKey(out[i]) > rankKey(out[j])
	})
	return out
}

func rankKey(v model.DraftVariant) float64 {
	if v.Ranking == nil {
		return 0
	}
	if v.Ranking.IsTopPick {
		return 100
	}
	return v.Ranking.RankScore
}

// WriteCSV writes the batch as CSV.
func WriteCSV(w io.Writer, b *model.BatchResult) error {
	header, rows := Table(b)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "export: write csv rows")
	}
	return nil
}

// WriteXLSX writes the batch as a one-sheet workbook.
func WriteXLSX(w io.Writer, b *model.BatchResult) error {
	header, rows := Table(b)
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("drafts")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	for _, r := range append([][]string{header}, rows...) {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Write dispatches on format.
func Write(w io.Writer, b *model.BatchResult, format Format) error {
	switch format {
	case FormatCSV, "":
		return WriteCSV(w, b)
	case FormatXLSX:
		return WriteXLSX(w, b)
	}
	return eris.Errorf("export: unknown format %q", format)
}

// ContentType returns the MIME type for format.
func ContentType(format Format) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}
