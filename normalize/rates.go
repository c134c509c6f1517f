package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

var rateFields = []string{
	"nominal_interest_rate", "kkdf_rate", "bsmv_rate",
}

// Commercial credits additionally carry a default probability expressed the
// same ambiguous way as rates.
var rateFieldsCommercial = append(append([]string{}, rateFields...), "default_probability")

var oneHundred = decimal.NewFromInt(100)

// Rate parses a rate that may arrive as either a fraction (0.0514) or a
// percentage (5.14) and returns the fraction form. Values above 1 are
// treated as percentages and divided by 100. Empty or unparseable input
// yields zero.
func Rate(value string) decimal.Decimal {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero
	}
	rate, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		rate = rate.Div(oneHundred)
	}
	return rate
}

func normalizeRates(record map[string]string, loanType string) {
	var fields = rateFields
	if loanType == "COMMERCIAL" {
		fields = rateFieldsCommercial
	}
	for _, field := range fields {
		record[field] = Rate(record[field]).String()
	}
}
