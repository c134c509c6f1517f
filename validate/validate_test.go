package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validCredit() map[string]string {
	return map[string]string{
		"loan_account_number":           "TR001",
		"customer_id":                   "CUST01",
		"customer_type":                 "I",
		"loan_status_code":              "A",
		"original_loan_amount":          "100000",
		"outstanding_principal_balance": "75000",
	}
}

func kinds(r Result) []string {
	var out []string
	for _, e := range r.Errors {
		out = append(out, e.Type)
	}
	return out
}

func TestCreditValid(t *testing.T) {
	var r = CreditValidator{}.ValidateRow(validCredit(), 1, "RETAIL")
	require.True(t, r.OK(), "errors: %v", r.Errors)
}

func TestCreditRequiredFields(t *testing.T) {
	var row = validCredit()
	delete(row, "customer_id")
	row["loan_account_number"] = "   "

	var r = CreditValidator{}.ValidateRow(row, 3, "RETAIL")
	require.Len(t, r.Errors, 2)
	require.Equal(t, []string{ErrRequired, ErrRequired}, kinds(r))
	require.Equal(t, 3, r.Errors[0].RowNumber)
}

func TestCreditTypeAndRange(t *testing.T) {
	var row = validCredit()
	row["days_past_due"] = "abc"
	row["total_installment_count"] = "-1"
	row["original_loan_amount"] = "-500"

	var r = CreditValidator{}.ValidateRow(row, 1, "RETAIL")
	require.ElementsMatch(t, []string{ErrType, ErrRange, ErrRange}, kinds(r))
}

func TestCreditEnums(t *testing.T) {
	var row = validCredit()
	row["customer_type"] = "X"
	row["loan_status_code"] = "Z"

	var r = CreditValidator{}.ValidateRow(row, 1, "RETAIL")
	require.Equal(t, []string{ErrValue, ErrValue}, kinds(r))
	require.Equal(t, "customer_type", r.Errors[0].FieldName)
	require.Equal(t, "X", r.Errors[0].RawValue)
}

func TestCreditDates(t *testing.T) {
	var row = validCredit()
	row["final_maturity_date"] = "20261231"
	row["loan_start_date"] = "2024-06-01"
	require.True(t, CreditValidator{}.ValidateRow(row, 1, "RETAIL").OK())

	row["loan_start_date"] = "18991231"
	var r = CreditValidator{}.ValidateRow(row, 1, "RETAIL")
	require.Equal(t, []string{ErrFormat}, kinds(r))

	row["loan_start_date"] = "June 1st"
	r = CreditValidator{}.ValidateRow(row, 1, "RETAIL")
	require.Equal(t, []string{ErrFormat}, kinds(r))
}

func TestCreditDecimalBeyondFloatRange(t *testing.T) {
	var row = validCredit()
	row["original_loan_amount"] = "1e400"
	require.True(t, CreditValidator{}.ValidateRow(row, 1, "RETAIL").OK(),
		"magnitudes past float64 range are still valid decimals")

	row["original_loan_amount"] = "-1e400"
	var r = CreditValidator{}.ValidateRow(row, 1, "RETAIL")
	require.Equal(t, []string{ErrRange}, kinds(r))
}

func TestCreditOptionalFieldsPassEmpty(t *testing.T) {
	var row = validCredit()
	row["nominal_interest_rate"] = ""
	row["final_maturity_date"] = ""
	row["insurance_included"] = ""
	require.True(t, CreditValidator{}.ValidateRow(row, 1, "RETAIL").OK())
}

func TestCreditRetailInsurance(t *testing.T) {
	var row = validCredit()
	row["insurance_included"] = "X"

	var r = CreditValidator{}.ValidateRow(row, 1, "RETAIL")
	require.Equal(t, []string{ErrValue}, kinds(r))

	// The same field is unchecked for commercial loans.
	require.True(t, CreditValidator{}.ValidateRow(row, 1, "COMMERCIAL").OK())
}

func TestCreditCommercialFields(t *testing.T) {
	var row = validCredit()
	row["customer_type"] = "T"
	row["default_probability"] = "-0.5"
	row["sector_code"] = "x9"
	row["loan_status_flag"] = "Q"

	var r = CreditValidator{}.ValidateRow(row, 1, "COMMERCIAL")
	require.ElementsMatch(t, []string{ErrRange, ErrType, ErrValue}, kinds(r))
}

func validPayment() map[string]string {
	return map[string]string{
		"loan_account_number": "TR001",
		"installment_number":  "1",
		"installment_amount":  "2500.50",
		"principal_component": "2000",
	}
}

func TestPaymentValid(t *testing.T) {
	var r = PaymentValidator{}.ValidateRow(validPayment(), 1, "RETAIL")
	require.True(t, r.OK(), "errors: %v", r.Errors)
}

func TestPaymentRules(t *testing.T) {
	var row = validPayment()
	row["installment_number"] = "0"
	row["installment_amount"] = "-1"
	row["installment_status"] = "Z"
	row["scheduled_payment_date"] = "2026-13-01"

	var r = PaymentValidator{}.ValidateRow(row, 7, "RETAIL")
	require.ElementsMatch(t, []string{ErrRange, ErrRange, ErrValue, ErrFormat}, kinds(r))
	for _, e := range r.Errors {
		require.Equal(t, 7, e.RowNumber)
	}
}

func TestCrossReference(t *testing.T) {
	var known = NewLoanSet()
	known.Add("TR001")

	require.Nil(t, CrossReference("TR001", 1, known))

	var e = CrossReference("TR999", 4, known)
	require.NotNil(t, e)
	require.Equal(t, ErrCrossReference, e.Type)
	require.Equal(t, "loan_account_number", e.FieldName)
	require.Equal(t, 4, e.RowNumber)
	require.Equal(t, "loan_account_number TR999 not found in credit records", e.Message)
}

func TestLoanSetUnion(t *testing.T) {
	var batch = NewLoanSet()
	batch.Add("TR001")
	batch.Add("")

	var known = NewLoanSet().Union(batch).Union(LoanSet{"TR777": {}})
	require.True(t, known.Has("TR001"))
	require.True(t, known.Has("TR777"))
	require.False(t, known.Has(""), "empty loan ids are never members")
	require.False(t, known.Has("TR002"))
}
