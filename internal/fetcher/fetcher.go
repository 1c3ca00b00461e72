// Package fetcher reads tabular company lists from CSV, TSV and XLSX sources.
package fetcher

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// Format names an input encoding.
type Format string

const (
	FormatAuto Format = ""
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// Table is a parsed input: the header row and the data rows after it.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadOptions configures ReadFile and ReadBytes.
type ReadOptions struct {
	Format    Format
	Charset   string // "" detects UTF-8 and falls back to EUC-KR
	SheetName string // xlsx only
}

// FormatFromName infers a format from a file name.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return FormatXLSX
	case ".tsv", ".tab":
		return FormatTSV
	case ".csv":
		return FormatCSV
	}
	return FormatAuto
}

// ReadFile reads a table from disk.
func ReadFile(ctx context.Context, path string, opts ReadOptions) (*Table, error) {
	if opts.Format == FormatAuto {
		opts.Format = FormatFromName(path)
	}
	if opts.Format == FormatXLSX {
		return ReadXLSX(path, opts.SheetName)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadDelimited(ctx, f, opts)
}

// ReadBytes reads a table from an in-memory upload. name is only used to
// infer the format when opts.Format is unset.
func ReadBytes(ctx context.Context, name string, data []byte, opts ReadOptions) (*Table, error) {
	if opts.Format == FormatAuto {
		opts.Format = FormatFromName(name)
	}
	if opts.Format == FormatXLSX {
		return ReadXLSXBinary(data, opts.SheetName)
	}
	return ReadDelimited(ctx, bytes.NewReader(data), opts)
}

// ReadDelimited decodes r to UTF-8, picks the delimiter and parses it into a
// Table. The delimiter is detected from the header line unless opts.Format
// forces CSV or TSV.
func ReadDelimited(ctx context.Context, r io.Reader, opts ReadOptions) (*Table, error) {
	text, err := DecodeText(r, opts.Charset)
	if err != nil {
		return nil, err
	}

	var delim rune
	switch opts.Format {
	case FormatTSV:
		delim = '\t'
	case FormatCSV:
		delim = ','
	default:
		delim = DetectDelimiter(firstLine(text))
	}

	var b tableBuilder
	err = ScanDelimited(ctx, strings.NewReader(text), delim, func(record []string) error {
		b.add(record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.table(), nil
}

// tableBuilder takes the first non-blank row as the header and keeps every
// later non-blank row. Cell text is NFC-normalized.
type tableBuilder struct {
	t Table
}

func (b *tableBuilder) add(row []string) {
	if isBlank(row) {
		return
	}
	for i, c := range row {
		row[i] = norm.NFC.String(c)
	}
	if b.t.Header == nil {
		b.t.Header = trimAll(row)
		return
	}
	b.t.Rows = append(b.t.Rows, row)
}

func (b *tableBuilder) table() *Table {
	t := b.t
	return &t
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
