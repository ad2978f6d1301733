// utils/parse.go - Shared numeric/text parsing helpers for OCR and statement text
package utils

import (
	"strconv"
	"strings"
)

// ParseAmount parses a money figure that may carry thousand separators,
// e.g. "1,25,000.50". Returns false for anything that is not a number.
func ParseAmount(s string) (float64, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseAmountOrZero coerces like ParseAmount but maps unparseable values to 0,
// the convention used for statement debit/credit/balance cells.
func ParseAmountOrZero(s string) float64 {
	v, ok := ParseAmount(s)
	if !ok {
		return 0
	}
	return v
}
