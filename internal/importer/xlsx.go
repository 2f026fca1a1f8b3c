package importer

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/vendocasa/omi-cli/internal/omi"
)

// ReadQuotationsXLSX parses a VALORI workbook, the alternative export
// format of the same dataset as the semicolon CSV. Layout matches the
// CSV: a title row, a header row, then data.
func ReadQuotationsXLSX(path, semester string) ([]omi.Quotation, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("importer: xlsx %s has no sheets", path)
	}

	var (
		header []string
		rows   [][]string
	)
	for i, row := range f.Sheets[0].Rows {
		if i == 0 {
			continue // title row
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		if header == nil {
			header = cells
			if n := len(header); n > 0 && header[n-1] == "" {
				header = header[:n-1]
			}
			continue
		}
		rows = append(rows, cells)
	}
	if header == nil {
		return nil, eris.Errorf("importer: xlsx %s has no header row", path)
	}

	return parseQuotationRows(header, rows, semester)
}
