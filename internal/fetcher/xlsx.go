package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX loads one sheet of a workbook on disk into a Table.
func ReadXLSX(path, sheetName string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	return sheetTable(f, sheetName)
}

// ReadXLSXBinary loads one sheet of an uploaded workbook into a Table.
func ReadXLSXBinary(data []byte, sheetName string) (*Table, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open binary")
	}
	return sheetTable(f, sheetName)
}

func sheetTable(f *xlsx.File, sheetName string) (*Table, error) {
	sheet, err := pickSheet(f, sheetName)
	if err != nil {
		return nil, err
	}
	var b tableBuilder
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		b.add(cells)
	}
	return b.table(), nil
}

// pickSheet finds a sheet by name, ignoring case and surrounding space.
// An empty name selects the first sheet.
func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return f.Sheets[0], nil
	}
	names := make([]string, 0, len(f.Sheets))
	for _, s := range f.Sheets {
		if strings.EqualFold(strings.TrimSpace(s.Name), name) {
			return s, nil
		}
		names = append(names, s.Name)
	}
	return nil, eris.Errorf("xlsx: sheet %q not found (have %s)", name, strings.Join(names, ", "))
}
