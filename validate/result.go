// Package validate implements the per-row rule engine for credit and payment
// plan records, plus the cross-file referential check of payments against
// known credits. Rows arrive as string maps straight off the staged CSV;
// validators define the effective schema.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Error kinds recorded in validation error descriptors.
const (
	ErrRequired       = "REQUIRED"
	ErrType           = "TYPE"
	ErrRange          = "RANGE"
	ErrFormat         = "FORMAT"
	ErrValue          = "VALUE"
	ErrCrossReference = "CROSS_REFERENCE"
)

// Error describes one field-level validation failure.
type Error struct {
	RowNumber int
	FieldName string
	Type      string
	Message   string
	RawValue  string
}

// Result is the outcome of validating a single row.
type Result struct {
	RowNumber int
	Errors    []Error
}

// OK reports whether the row passed every rule.
func (r Result) OK() bool { return len(r.Errors) == 0 }

func (r *Result) add(field, kind, message, raw string) {
	r.Errors = append(r.Errors, Error{
		RowNumber: r.RowNumber,
		FieldName: field,
		Type:      kind,
		Message:   message,
		RawValue:  raw,
	})
}

// checkRequired fails with REQUIRED when the field is empty after trimming.
func (r *Result) checkRequired(row map[string]string, field string) bool {
	if strings.TrimSpace(row[field]) == "" {
		r.add(field, ErrRequired, fmt.Sprintf("%s is required", field), row[field])
		return false
	}
	return true
}

// checkInteger validates an optional integer field against [min, max].
// Empty values pass; nil bounds are unchecked.
func (r *Result) checkInteger(row map[string]string, field string, min, max *int64) bool {
	var value = strings.TrimSpace(row[field])
	if value == "" {
		return true
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		r.add(field, ErrType, fmt.Sprintf("%s must be an integer, got: %s", field, value), value)
		return false
	}
	if min != nil && n < *min {
		r.add(field, ErrRange, fmt.Sprintf("%s must be >= %d, got %d", field, *min, n), value)
		return false
	}
	if max != nil && n > *max {
		r.add(field, ErrRange, fmt.Sprintf("%s must be <= %d, got %d", field, *max, n), value)
		return false
	}
	return true
}

// checkDecimal validates an optional decimal field with an optional lower
// bound. Parsed as arbitrary-precision decimal, not float64, so monetary
// values of any magnitude are handled exactly.
func (r *Result) checkDecimal(row map[string]string, field string, min *float64) bool {
	var value = strings.TrimSpace(row[field])
	if value == "" {
		return true
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		r.add(field, ErrType, fmt.Sprintf("%s must be a number, got: %s", field, value), value)
		return false
	}
	if min != nil && d.LessThan(decimal.NewFromFloat(*min)) {
		r.add(field, ErrRange, fmt.Sprintf("%s must be >= %g, got %s", field, *min, d), value)
		return false
	}
	return true
}

// checkDate validates an optional date in YYYYMMDD or YYYY-MM-DD form with
// year in [1900, 2100].
func (r *Result) checkDate(row map[string]string, field string) bool {
	var value = strings.TrimSpace(row[field])
	if value == "" {
		return true
	}
	var clean = strings.ReplaceAll(value, "-", "")
	if len(clean) != 8 || !isDigits(clean) {
		r.add(field, ErrFormat, fmt.Sprintf("%s must be YYYYMMDD or YYYY-MM-DD, got: %s", field, value), value)
		return false
	}
	var year, _ = strconv.Atoi(clean[:4])
	var month, _ = strconv.Atoi(clean[4:6])
	var day, _ = strconv.Atoi(clean[6:8])
	if year < 1900 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		r.add(field, ErrFormat, fmt.Sprintf("%s has invalid date components: %s", field, value), value)
		return false
	}
	return true
}

// checkEnum validates an optional field against an allowed value set.
func (r *Result) checkEnum(row map[string]string, field string, allowed ...string) bool {
	var value = strings.TrimSpace(row[field])
	if value == "" {
		return true
	}
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	r.add(field, ErrValue,
		fmt.Sprintf("%s must be one of %s, got: %s", field, strings.Join(allowed, ", "), value), value)
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
