// Package tabular reads delimited/spreadsheet documents into row sets and
// splits them into size-bounded batches for the extraction service.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// ErrNotATable signals that the bytes could not be read as a table. The
// pipeline degrades to the plain-text strategy instead of failing the run.
var ErrNotATable = errors.New("tabular: content is not parseable as a table")

// ParseTable reads the document into rows of cells. The format is picked
// from the filename extension and declared media type; CSV is the default
// for anything that classified as tabular without a spreadsheet extension.
func ParseTable(data []byte, filename, mediaType string) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	mt := strings.ToLower(mediaType)

	switch {
	case ext == ".xlsx" || strings.Contains(mt, "sheet"):
		return parseXLSX(data)
	case ext == ".xls" || strings.Contains(mt, "excel"):
		rows, err := parseXLS(data)
		if err != nil {
			// Many banks label CSV exports as application/vnd.ms-excel.
			return parseCSV(data)
		}
		return rows, nil
	default:
		return parseCSV(data)
	}
}

// parseCSV reads delimited text with a sniffed separator, tolerating ragged
// and malformed lines (they are skipped, not fatal).
func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue // skip bad line
			}
			return nil, fmt.Errorf("parseCSV: %w", ErrNotATable)
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parseCSV: no rows: %w", ErrNotATable)
	}
	return rows, nil
}

// sniffDelimiter picks the separator that appears most often in the first
// line, preferring comma on ties.
func sniffDelimiter(data []byte) rune {
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		line = data[:idx]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, cand := range []byte{';', '\t', '|'} {
		if n := bytes.Count(line, []byte{cand}); n > bestCount {
			best, bestCount = rune(cand), n
		}
	}
	return best
}

func parseXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parseXLSX: %v: %w", err, ErrNotATable)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("parseXLSX: workbook has no sheets: %w", ErrNotATable)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("parseXLSX: reading sheet %q: %v: %w", sheet, err, ErrNotATable)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parseXLSX: empty sheet: %w", ErrNotATable)
	}
	return rows, nil
}

func parseXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("parseXLS: %v: %w", err, ErrNotATable)
	}
	rows := wb.ReadAllCells(65536)
	if len(rows) == 0 {
		return nil, fmt.Errorf("parseXLS: empty workbook: %w", ErrNotATable)
	}
	return rows, nil
}
