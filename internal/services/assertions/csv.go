package assertions

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/uiflow/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV reads an exported file into a header and data records. A leading UTF-8 BOM is ignored.
func ParseCSV(data []byte) ([]string, [][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("csv is empty")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	return header, records[1:], nil
}

// MissingColumns returns the required columns absent from header, in required order
func MissingColumns(header, required []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// CSVShape reports exactly which required columns are missing from header
func CSVShape(name string, header, required []string) (models.AssertionResult, []string) {
	missing := MissingColumns(header, required)
	res := models.AssertionResult{
		Name:     name,
		Passed:   len(missing) == 0,
		Expected: fmt.Sprintf("columns %s", quoteList(required)),
		Actual:   fmt.Sprintf("missing=%s", quoteList(missing)),
	}
	if len(missing) > 0 {
		res.Message = fmt.Sprintf("%d required column(s) missing", len(missing))
	}
	return res, missing
}

// CSVRows reports, per required column, the 1-based data row numbers whose value is empty
func CSVRows(name string, header []string, records [][]string, required []string) (models.AssertionResult, map[string][]int) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	empty := make(map[string][]int)
	for _, col := range required {
		i, ok := index[col]
		if !ok {
			continue
		}
		for rowNum, rec := range records {
			if i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
				empty[col] = append(empty[col], rowNum+1)
			}
		}
	}

	cols := make([]string, 0, len(empty))
	for col := range empty {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		parts = append(parts, fmt.Sprintf("%s: %d empty (rows %s)", col, len(empty[col]), rowList(empty[col])))
	}

	res := models.AssertionResult{
		Name:     name,
		Passed:   len(empty) == 0,
		Expected: "no empty required values",
		Actual:   strings.Join(parts, "; "),
	}
	if res.Actual == "" {
		res.Actual = fmt.Sprintf("%d row(s) complete", len(records))
	} else {
		res.Message = fmt.Sprintf("empty values in %d column(s)", len(empty))
	}
	return res, empty
}

// maxListedRows caps the row numbers printed per column
const maxListedRows = 20

// rowList formats row numbers as "[2 5 9]", eliding past maxListedRows
func rowList(rows []int) string {
	if len(rows) <= maxListedRows {
		return fmt.Sprint(rows)
	}
	head := strings.TrimSuffix(fmt.Sprint(rows[:maxListedRows]), "]")
	return fmt.Sprintf("%s ... +%d more]", head, len(rows)-maxListedRows)
}

// OptionalColumnInfo describes optional columns as present or absent without failing
func OptionalColumnInfo(header, optional []string) []string {
	missing := make(map[string]bool)
	for _, col := range MissingColumns(header, optional) {
		missing[col] = true
	}
	info := make([]string, 0, len(optional))
	for _, col := range optional {
		if missing[col] {
			info = append(info, fmt.Sprintf("optional column %q absent", col))
		} else {
			info = append(info, fmt.Sprintf("optional column %q present", col))
		}
	}
	return info
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
