package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ScanDelimited calls fn for every record in r. Quoted fields follow RFC 4180
// (a doubled quote escapes a quote) and records may have any number of
// fields. Quotes are read lazily, so a stray quote inside an unquoted field
// is kept as text. A record that still fails to parse is logged and skipped;
// only reader and callback errors end the scan.
func ScanDelimited(ctx context.Context, r io.Reader, delim rune, fn func(record []string) error) error {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "csv: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			zap.L().Warn("csv: skipping malformed record", zap.Int("record", line), zap.Error(err))
			continue
		}
		if err != nil {
			return eris.Wrapf(err, "csv: read record %d", line)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}

// DetectDelimiter returns '\t' when the header line contains a tab and no
// comma outside double quotes, else ','.
func DetectDelimiter(header string) rune {
	if !strings.Contains(header, "\t") {
		return ','
	}
	inQuotes := false
	for _, r := range header {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				return ','
			}
		}
	}
	return '\t'
}
