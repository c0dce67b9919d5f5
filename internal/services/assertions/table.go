package assertions

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/uiflow/internal/models"
)

// ColumnValues extracts the trimmed text of the 0-based column from every table row in html
func ColumnValues(html string, column int) ([]string, error) {
	// Bare <tbody>/<tr> fragments are dropped by the HTML parser outside a table.
	if !strings.Contains(strings.ToLower(html), "<table") {
		html = "<table>" + html + "</table>"
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse table html: %w", err)
	}

	var values []string
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		if column >= cells.Length() {
			values = append(values, "")
			return
		}
		values = append(values, strings.TrimSpace(cells.Eq(column).Text()))
	})
	return values, nil
}

// TableColumn fails when any value of the column is empty or one of forbidden
func TableColumn(name, html string, column int, forbidden []string) (models.AssertionResult, error) {
	values, err := ColumnValues(html, column)
	if err != nil {
		return models.AssertionResult{}, err
	}

	bad := make(map[string]bool, len(forbidden))
	for _, f := range forbidden {
		bad[strings.ToLower(f)] = true
	}

	var offenders []string
	for i, v := range values {
		if v == "" || bad[strings.ToLower(v)] {
			offenders = append(offenders, fmt.Sprintf("row %d=%q", i+1, v))
		}
	}

	res := models.AssertionResult{
		Name:     name,
		Passed:   len(values) > 0 && len(offenders) == 0,
		Expected: fmt.Sprintf("column %d has no empty or %s values", column, quoteList(forbidden)),
		Actual:   strings.Join(values, ", "),
	}
	switch {
	case len(values) == 0:
		res.Message = "table has no data rows"
	case len(offenders) > 0:
		res.Message = "invalid values: " + strings.Join(offenders, ", ")
	}
	return res, nil
}
