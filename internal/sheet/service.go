// Package sheet routes spreadsheet rows to AI-personalized or legacy
// template emails and sends them.
package sheet

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Row is one data row. Index is the 0-based position after the header.
type Row struct {
	Index  int
	Record model.CompanyRecord
}

// Mail is one outgoing email.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Service is a spreadsheet that can be read, annotated and mailed from.
type Service interface {
	Rows(ctx context.Context) ([]Row, error)
	SetCell(ctx context.Context, row int, column, value string) error
	SendMail(ctx context.Context, m Mail) error
}

// Mailer delivers mail.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// LogMailer only logs what it would send.
type LogMailer struct{}

// Send implements Mailer.
func (LogMailer) Send(_ context.Context, m Mail) error {
	zap.L().Info("sheet: mail", zap.String("to", m.To), zap.String("subject", m.Subject), zap.Int("body_len", len(m.Body)))
	return nil
}

// XLSXService is a Service over a local workbook. SetCell saves the file
// immediately.
type XLSXService struct {
	path   string
	mailer Mailer

	mu     sync.Mutex
	file   *xlsx.File
	sheet  *xlsx.Sheet
	header []string
}

// OpenXLSX opens path and uses its sheet named sheetName, or the first
// sheet when sheetName is empty.
func OpenXLSX(path, sheetName string, mailer Mailer) (*XLSXService, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: open %s", path)
	}

	var sh *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("sheet: %q not found in %s", sheetName, path)
		}
		sh = s
	} else if len(f.Sheets) > 0 {
		sh = f.Sheets[0]
	}
	if sh == nil || len(sh.Rows) == 0 {
		return nil, eris.Errorf("sheet: %s has no header row", path)
	}

	if mailer == nil {
		mailer = LogMailer{}
	}
	s := &XLSXService{path: path, mailer: mailer, file: f, sheet: sh}
	for _, c := range sh.Rows[0].Cells {
		s.header = append(s.header, strings.TrimSpace(c.String()))
	}
	return s, nil
}

// Rows implements Service.
func (s *XLSXService) Rows(context.Context) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]Row, 0, len(s.sheet.Rows)-1)
	for i, r := range s.sheet.Rows[1:] {
		rec := model.CompanyRecord{Index: i}
		for j, h := range s.header {
			if h == "" {
				continue
			}
			v := ""
			if r != nil && j < len(r.Cells) {
				v = strings.TrimSpace(r.Cells[j].String())
			}
			rec.Fields = append(rec.Fields, model.Field{Key: h, Value: v})
		}
		rows = append(rows, Row{Index: i, Record: rec})
	}
	return rows, nil
}

// SetCell implements Service. Unknown columns are an error.
func (s *XLSXService) SetCell(_ context.Context, row int, column, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := -1
	for i, h := range s.header {
		if h == column {
			col = i
			break
		}
	}
	if col < 0 {
		return eris.Errorf("sheet: column %q not found", column)
	}
	if row < 0 || row+1 >= len(s.sheet.Rows) {
		return eris.Errorf("sheet: row %d out of range", row)
	}

	r := s.sheet.Rows[row+1]
	for len(r.Cells) <= col {
		r.AddCell()
	}
	r.Cells[col].SetString(value)
	return eris.Wrapf(s.file.Save(s.path), "sheet: save %s", s.path)
}

// SendMail implements Service.
func (s *XLSXService) SendMail(ctx context.Context, m Mail) error {
	return s.mailer.Send(ctx, m)
}
