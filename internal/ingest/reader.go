package ingest

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DecodeText converts uploaded bytes to a UTF-8 string. A UTF-8 or UTF-16
// byte-order mark selects that encoding and is stripped; otherwise the input
// is read as UTF-8.
func DecodeText(data []byte) (string, error) {
	r := transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	out, err := io.ReadAll(r)
	if err != nil {
		return "", eris.Wrap(err, "ingest: decode text")
	}
	return string(out), nil
}

// ReadCSV parses a comma-separated table held in memory. The first record is
// the header.
func ReadCSV(data []byte) (Table, error) {
	text, err := DecodeText(data)
	if err != nil {
		return Table{}, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return Table{}, eris.Wrap(err, "ingest: read csv")
	}
	return toTable(records)
}

// ReadXLSX parses the first sheet of an XLSX workbook held in memory.
func ReadXLSX(data []byte) (Table, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return Table{}, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return Table{}, eris.New("ingest: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return toTable(records)
}

func toTable(records [][]string) (Table, error) {
	if len(records) == 0 {
		return Table{}, eris.New("ingest: table has no header row")
	}
	return Table{Header: records[0], Rows: records[1:]}, nil
}
