package ingest

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/fiplanner/internal/model"
)

// Table is a parsed spreadsheet: a header row plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// fieldAlias lists the header aliases tried, in priority order, for one
// canonical field.
type fieldAlias struct {
	Field   string
	Aliases []string
}

// fieldAliases is ordered; the first alias that exists and parses wins.
var fieldAliases = []fieldAlias{
	{model.FieldAge, []string{"age", "current age"}},
	{model.FieldIncome, []string{"income", "monthly income", "salary", "net salary", "take home"}},
	{model.FieldExpenses, []string{"expenses", "monthly expenses", "expense", "spend", "spending"}},
	{model.FieldRetirementAge, []string{"retirement age", "retire age", "target retirement age"}},
	{model.FieldCurrentSavings, []string{"savings", "current savings", "corpus", "investments"}},
}

// InferFields maps the first data row of t onto canonical profile fields.
// A field is present only if one of its aliases names a column (compared
// case-insensitively after trimming) whose first-row cell parses as a number.
// Later rows are never consulted and missing fields are never defaulted.
func InferFields(t Table) model.StructuredOverride {
	out := model.StructuredOverride{}
	if len(t.Rows) == 0 {
		return out
	}

	colIdx := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		key := normalizeHeader(h)
		if _, dup := colIdx[key]; !dup {
			colIdx[key] = i
		}
	}

	row := t.Rows[0]
	for _, fa := range fieldAliases {
		for _, alias := range fa.Aliases {
			idx, ok := colIdx[alias]
			if !ok || idx >= len(row) {
				continue
			}
			if v, ok := parseNumber(row[idx]); ok {
				out[fa.Field] = v
				break
			}
		}
	}
	return out
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.TrimSpace(h))
}

var currencyPrefixes = []string{"₹", "rs.", "rs", "inr", "$"}

// parseNumber accepts plain numbers plus thousands separators and a leading
// currency marker ("₹1,20,000", "Rs. 85000", "$ 1,000.50").
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(lower, p) {
			s = s[len(p):]
			break
		}
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
