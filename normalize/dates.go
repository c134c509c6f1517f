// Package normalize holds the pure transformations applied to validated rows
// before they are marshalled into the warehouse: dates to canonical
// YYYY-MM-DD, rates to decimal fractions, and coded categories to their
// standardized labels. Normalizers never fail; unparseable input falls back
// to a defensive default.
package normalize

import (
	"strings"
	"time"
)

var creditDateFields = []string{
	"final_maturity_date", "first_payment_date",
	"loan_start_date", "loan_closing_date",
}

var paymentDateFields = []string{
	"actual_payment_date", "scheduled_payment_date",
}

// Date converts a raw date value to canonical YYYY-MM-DD form.
// Accepted inputs are YYYYMMDD and YYYY-MM-DD; anything else, including
// calendar-invalid components, yields the empty string (stored as null).
func Date(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	// Already YYYY-MM-DD.
	if len(value) == 10 && value[4] == '-' && value[7] == '-' {
		if t, err := time.Parse("2006-01-02", value); err == nil {
			return t.Format("2006-01-02")
		}
		return ""
	}

	// YYYYMMDD, tolerating stray dashes.
	var clean = strings.ReplaceAll(value, "-", "")
	if len(clean) != 8 || !allDigits(clean) {
		return ""
	}
	t, err := time.Parse("20060102", clean)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizeDates(record map[string]string, fields []string) {
	for _, field := range fields {
		record[field] = Date(record[field])
	}
}
