// Package imports turns CSV and XLSX uploads into records and exports
// records back to XLSX.
package imports

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

const (
	MaxRows    = 5000
	SampleRows = 10
	MaxUpload  = 10 << 20
	BatchSize  = 500
	maxHeaders = 200
)

// Table is a parsed upload: the header row and the data rows under it.
// Every row has exactly len(Headers) cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the parser from the file extension, then the content
// type.
func DetectFormat(filename, contentType string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "csv"), strings.HasPrefix(ct, "text/plain"):
		return FormatCSV, nil
	case strings.Contains(ct, "spreadsheetml"):
		return FormatXLSX, nil
	}
	return "", apperr.BadRequest("file must be .csv or .xlsx")
}

func Parse(format Format, data []byte) (Table, error) {
	var raw [][]string
	var err error
	switch format {
	case FormatCSV:
		raw, err = readCSV(data)
	case FormatXLSX:
		raw, err = readXLSX(data)
	default:
		return Table{}, apperr.BadRequest("unsupported file format")
	}
	if err != nil {
		return Table{}, err
	}
	return buildTable(raw)
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Badf("invalid csv: %v", err)
		}
		out = append(out, rec)
		if len(out) > MaxRows+1 {
			return nil, apperr.Badf("imports are limited to %d rows", MaxRows)
		}
	}
	return out, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.BadRequest("invalid xlsx file")
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, apperr.BadRequest("xlsx file has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperr.BadRequest("cannot read xlsx rows")
	}
	return rows, nil
}

func buildTable(raw [][]string) (Table, error) {
	// leading blank lines are common in hand-made sheets
	for len(raw) > 0 && blank(raw[0]) {
		raw = raw[1:]
	}
	if len(raw) == 0 {
		return Table{}, apperr.BadRequest("file has no header row")
	}
	headers := make([]string, 0, len(raw[0]))
	seen := map[string]int{}
	for i, h := range raw[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[h] = 1
		}
		headers = append(headers, h)
	}
	if len(headers) > maxHeaders {
		return Table{}, apperr.Badf("files are limited to %d columns", maxHeaders)
	}

	t := Table{Headers: headers}
	for _, rec := range raw[1:] {
		if blank(rec) {
			continue
		}
		row := make([]string, len(headers))
		for i := range row {
			if i < len(rec) {
				row[i] = strings.TrimSpace(rec[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if len(t.Rows) > MaxRows {
		return Table{}, apperr.Badf("imports are limited to %d rows", MaxRows)
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Sample returns at most n rows as header-keyed objects.
func (t Table) Sample(n int) []map[string]string {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := make([]map[string]string, 0, n)
	for _, row := range t.Rows[:n] {
		m := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			m[h] = row[i]
		}
		out = append(out, m)
	}
	return out
}
