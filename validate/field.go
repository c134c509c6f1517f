package validate

var creditRequired = []string{
	"loan_account_number", "customer_id", "customer_type",
	"loan_status_code", "original_loan_amount",
	"outstanding_principal_balance",
}

var paymentRequired = []string{
	"loan_account_number", "installment_number",
	"installment_amount", "principal_component",
}

func intPtr(n int64) *int64       { return &n }
func floatPtr(f float64) *float64 { return &f }

var (
	zeroInt     = intPtr(0)
	oneInt      = intPtr(1)
	zeroDecimal = floatPtr(0)
)

// CreditValidator validates individual fields of credit records.
type CreditValidator struct{}

// ValidateRow applies every field rule to one credit row. The returned
// Result carries an error descriptor per violated rule.
func (CreditValidator) ValidateRow(row map[string]string, rowNumber int, loanType string) Result {
	var r = Result{RowNumber: rowNumber}

	for _, field := range creditRequired {
		r.checkRequired(row, field)
	}

	r.checkEnum(row, "customer_type", "I", "T", "V")
	r.checkEnum(row, "loan_status_code", "A", "K")

	r.checkDecimal(row, "original_loan_amount", zeroDecimal)
	r.checkDecimal(row, "outstanding_principal_balance", zeroDecimal)
	r.checkDecimal(row, "nominal_interest_rate", zeroDecimal)
	r.checkDecimal(row, "total_interest_amount", zeroDecimal)
	r.checkDecimal(row, "kkdf_rate", zeroDecimal)
	r.checkDecimal(row, "kkdf_amount", zeroDecimal)
	r.checkDecimal(row, "bsmv_rate", zeroDecimal)
	r.checkDecimal(row, "bsmv_amount", zeroDecimal)

	r.checkInteger(row, "days_past_due", zeroInt, nil)
	r.checkInteger(row, "total_installment_count", zeroInt, nil)
	r.checkInteger(row, "outstanding_installment_count", zeroInt, nil)
	r.checkInteger(row, "paid_installment_count", zeroInt, nil)
	r.checkInteger(row, "grace_period_months", zeroInt, nil)
	r.checkInteger(row, "installment_frequency", zeroInt, nil)
	r.checkInteger(row, "internal_rating", nil, nil)
	r.checkInteger(row, "external_rating", nil, nil)

	r.checkDate(row, "final_maturity_date")
	r.checkDate(row, "first_payment_date")
	r.checkDate(row, "loan_start_date")
	r.checkDate(row, "loan_closing_date")

	if loanType == "RETAIL" {
		r.checkEnum(row, "insurance_included", "H", "E")
	}

	if loanType == "COMMERCIAL" {
		r.checkInteger(row, "loan_product_type", nil, nil)
		r.checkInteger(row, "sector_code", nil, nil)
		r.checkInteger(row, "internal_credit_rating", nil, nil)
		r.checkDecimal(row, "default_probability", zeroDecimal)
		r.checkInteger(row, "risk_class", nil, nil)
		r.checkInteger(row, "customer_segment", nil, nil)
		r.checkEnum(row, "loan_status_flag", "A", "K")
	}

	return r
}

// PaymentValidator validates individual fields of payment plan records.
type PaymentValidator struct{}

// ValidateRow applies every field rule to one payment row.
func (PaymentValidator) ValidateRow(row map[string]string, rowNumber int, loanType string) Result {
	var r = Result{RowNumber: rowNumber}

	for _, field := range paymentRequired {
		r.checkRequired(row, field)
	}

	r.checkInteger(row, "installment_number", oneInt, nil)

	r.checkDecimal(row, "installment_amount", zeroDecimal)
	r.checkDecimal(row, "principal_component", zeroDecimal)
	r.checkDecimal(row, "interest_component", zeroDecimal)
	r.checkDecimal(row, "kkdf_component", zeroDecimal)
	r.checkDecimal(row, "bsmv_component", zeroDecimal)
	r.checkDecimal(row, "remaining_principal", zeroDecimal)
	r.checkDecimal(row, "remaining_interest", zeroDecimal)
	r.checkDecimal(row, "remaining_kkdf", zeroDecimal)
	r.checkDecimal(row, "remaining_bsmv", zeroDecimal)

	r.checkEnum(row, "installment_status", "A", "K")

	r.checkDate(row, "actual_payment_date")
	r.checkDate(row, "scheduled_payment_date")

	return r
}
