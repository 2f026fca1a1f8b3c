// Package importer parses the OMI semester datasets (VALORI and ZONE
// CSVs, XLSX exports, KML and shapefile zone perimeters) and bulk-loads
// them into Postgres.
package importer

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// decodeText returns the bytes as UTF-8, decoding from Latin-1 when they
// are not valid UTF-8. Older OMI exports ship in Latin-1.
func decodeText(data []byte) ([]byte, error) {
	if utf8.Valid(data) {
		return data, nil
	}
	zap.L().Warn("input is not valid UTF-8, decoding as latin-1",
		zap.String("component", "importer"))
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, eris.Wrap(err, "importer: decode latin-1")
	}
	return decoded, nil
}

// readSemicolonCSV parses an OMI CSV: semicolon-delimited, a descriptive
// title on line 1 and column headers on line 2. Returns the trimmed
// header and data rows. A trailing empty column from the trailing
// semicolon is dropped.
func readSemicolonCSV(data []byte) (header []string, rows [][]string, err error) {
	data, err = decodeText(data)
	if err != nil {
		return nil, nil, err
	}

	// Drop the title line.
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[i+1:]
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "importer: read csv row")
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		if first {
			first = false
			header = record
			if n := len(header); n > 0 && header[n-1] == "" {
				header = header[:n-1]
			}
			continue
		}
		rows = append(rows, record)
	}

	if header == nil {
		return nil, nil, eris.New("importer: csv has no header row")
	}
	return header, rows, nil
}

// columnIndex maps header names to positions.
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	return idx
}

// field returns the trimmed cell at the named column, or "" when the
// column is absent or the row is short.
func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseDecimal parses an Italian decimal (comma separator). Returns nil
// for empty or unparseable values.
func parseDecimal(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &v
}
