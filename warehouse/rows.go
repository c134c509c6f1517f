package warehouse

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditRow is a fully typed credit record ready for staging insertion.
// Field order matches creditColumns.
type CreditRow struct {
	BatchID  uuid.UUID
	LoanType string
	LoadedAt time.Time

	LoanAccountNumber           string
	CustomerID                  string
	CustomerType                string
	LoanStatusCode              string
	DaysPastDue                 uint32
	FinalMaturityDate           *time.Time
	TotalInstallmentCount       uint32
	OutstandingInstallmentCount uint32
	PaidInstallmentCount        uint32
	FirstPaymentDate            *time.Time
	OriginalLoanAmount          decimal.Decimal
	OutstandingPrincipalBalance decimal.Decimal
	NominalInterestRate         decimal.Decimal
	TotalInterestAmount         decimal.Decimal
	KKDFRate                    decimal.Decimal
	KKDFAmount                  decimal.Decimal
	BSMVRate                    decimal.Decimal
	BSMVAmount                  decimal.Decimal
	GracePeriodMonths           uint32
	InstallmentFrequency        uint32
	LoanStartDate               *time.Time
	LoanClosingDate             *time.Time
	InternalRating              *uint32
	ExternalRating              *uint32

	// Commercial-only.
	LoanProductType      *uint32
	CustomerRegionCode   *string
	SectorCode           *uint32
	InternalCreditRating *uint32
	DefaultProbability   *decimal.Decimal
	RiskClass            *uint32
	CustomerSegment      *uint32

	// Retail-only.
	InsuranceIncluded    *uint8
	CustomerDistrictCode *string
	CustomerProvinceCode *string
}

// PaymentRow is a fully typed payment plan record ready for staging
// insertion. Field order matches paymentColumns.
type PaymentRow struct {
	BatchID  uuid.UUID
	LoanType string
	LoadedAt time.Time

	LoanAccountNumber    string
	InstallmentNumber    uint32
	ActualPaymentDate    *time.Time
	ScheduledPaymentDate *time.Time
	InstallmentAmount    decimal.Decimal
	PrincipalComponent   decimal.Decimal
	InterestComponent    decimal.Decimal
	KKDFComponent        decimal.Decimal
	BSMVComponent        decimal.Decimal
	InstallmentStatus    string
	RemainingPrincipal   decimal.Decimal
	RemainingInterest    decimal.Decimal
	RemainingKKDF        decimal.Decimal
	RemainingBSMV        decimal.Decimal
}

// CreditRowFrom marshals one normalized credit record into its typed row.
// The record must already have been through validation and normalization;
// marshalling itself never fails, it coerces.
func CreditRowFrom(record map[string]string, loanType string, batchID uuid.UUID, loadedAt time.Time) CreditRow {
	return CreditRow{
		BatchID:  batchID,
		LoanType: loanType,
		LoadedAt: loadedAt,

		// Trimmed so stored IDs agree with the trimmed IDs used by the
		// cross-file check and DistinctLoanIDs.
		LoanAccountNumber:           strings.TrimSpace(record["loan_account_number"]),
		CustomerID:                  record["customer_id"],
		CustomerType:                record["customer_type"],
		LoanStatusCode:              record["loan_status_code"],
		DaysPastDue:                 toUint32(record["days_past_due"], 0),
		FinalMaturityDate:           toDate(record["final_maturity_date"]),
		TotalInstallmentCount:       toUint32(record["total_installment_count"], 0),
		OutstandingInstallmentCount: toUint32(record["outstanding_installment_count"], 0),
		PaidInstallmentCount:        toUint32(record["paid_installment_count"], 0),
		FirstPaymentDate:            toDate(record["first_payment_date"]),
		OriginalLoanAmount:          toDecimal(record["original_loan_amount"]),
		OutstandingPrincipalBalance: toDecimal(record["outstanding_principal_balance"]),
		NominalInterestRate:         toDecimal(record["nominal_interest_rate"]),
		TotalInterestAmount:         toDecimal(record["total_interest_amount"]),
		KKDFRate:                    toDecimal(record["kkdf_rate"]),
		KKDFAmount:                  toDecimal(record["kkdf_amount"]),
		BSMVRate:                    toDecimal(record["bsmv_rate"]),
		BSMVAmount:                  toDecimal(record["bsmv_amount"]),
		GracePeriodMonths:           toUint32(record["grace_period_months"], 0),
		InstallmentFrequency:        toUint32(record["installment_frequency"], 1),
		LoanStartDate:               toDate(record["loan_start_date"]),
		LoanClosingDate:             toDate(record["loan_closing_date"]),
		InternalRating:              toNullableUint32(record["internal_rating"]),
		ExternalRating:              toNullableUint32(record["external_rating"]),

		LoanProductType:      toNullableUint32(record["loan_product_type"]),
		CustomerRegionCode:   toNullableString(record["customer_region_code"]),
		SectorCode:           toNullableUint32(record["sector_code"]),
		InternalCreditRating: toNullableUint32(record["internal_credit_rating"]),
		DefaultProbability:   toNullableDecimal(record["default_probability"]),
		RiskClass:            toNullableUint32(record["risk_class"]),
		CustomerSegment:      toNullableUint32(record["customer_segment"]),

		InsuranceIncluded:    toNullableUint8(record["insurance_included"]),
		CustomerDistrictCode: toNullableString(record["customer_district_code"]),
		CustomerProvinceCode: toNullableString(record["customer_province_code"]),
	}
}

// PaymentRowFrom marshals one normalized payment record into its typed row.
func PaymentRowFrom(record map[string]string, loanType string, batchID uuid.UUID, loadedAt time.Time) PaymentRow {
	return PaymentRow{
		BatchID:  batchID,
		LoanType: loanType,
		LoadedAt: loadedAt,

		LoanAccountNumber:    strings.TrimSpace(record["loan_account_number"]),
		InstallmentNumber:    toUint32(record["installment_number"], 0),
		ActualPaymentDate:    toDate(record["actual_payment_date"]),
		ScheduledPaymentDate: toDate(record["scheduled_payment_date"]),
		InstallmentAmount:    toDecimal(record["installment_amount"]),
		PrincipalComponent:   toDecimal(record["principal_component"]),
		InterestComponent:    toDecimal(record["interest_component"]),
		KKDFComponent:        toDecimal(record["kkdf_component"]),
		BSMVComponent:        toDecimal(record["bsmv_component"]),
		InstallmentStatus:    record["installment_status"],
		RemainingPrincipal:   toDecimal(record["remaining_principal"]),
		RemainingInterest:    toDecimal(record["remaining_interest"]),
		RemainingKKDF:        toDecimal(record["remaining_kkdf"]),
		RemainingBSMV:        toDecimal(record["remaining_bsmv"]),
	}
}

// toUint32 coerces via base-10 parse; negatives clamp to 0, empty or
// unparseable input falls back to def.
func toUint32(value string, def uint32) uint32 {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	if n < 0 {
		return 0
	}
	return uint32(n)
}

func toDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isAbsent(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || value == "None"
}

func toNullableUint32(value string) *uint32 {
	if isAbsent(value) {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n < 0 {
		return nil
	}
	var u = uint32(n)
	return &u
}

func toNullableUint8(value string) *uint8 {
	if isAbsent(value) {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n < 0 || n > 255 {
		return nil
	}
	var u = uint8(n)
	return &u
}

func toNullableDecimal(value string) *decimal.Decimal {
	if isAbsent(value) {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return nil
	}
	return &d
}

func toNullableString(value string) *string {
	if isAbsent(value) {
		return nil
	}
	return &value
}

// toDate expects the normalizer's canonical YYYY-MM-DD form.
func toDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil
	}
	return &t
}

func (r CreditRow) values() []interface{} {
	return []interface{}{
		r.BatchID, r.LoanType, r.LoadedAt,
		r.LoanAccountNumber, r.CustomerID, r.CustomerType,
		r.LoanStatusCode, r.DaysPastDue, r.FinalMaturityDate,
		r.TotalInstallmentCount, r.OutstandingInstallmentCount,
		r.PaidInstallmentCount, r.FirstPaymentDate,
		r.OriginalLoanAmount, r.OutstandingPrincipalBalance,
		r.NominalInterestRate, r.TotalInterestAmount,
		r.KKDFRate, r.KKDFAmount, r.BSMVRate, r.BSMVAmount,
		r.GracePeriodMonths, r.InstallmentFrequency,
		r.LoanStartDate, r.LoanClosingDate,
		r.InternalRating, r.ExternalRating,
		r.LoanProductType,
		r.CustomerRegionCode, r.SectorCode,
		r.InternalCreditRating, r.DefaultProbability,
		r.RiskClass, r.CustomerSegment,
		r.InsuranceIncluded, r.CustomerDistrictCode,
		r.CustomerProvinceCode,
	}
}

func (r PaymentRow) values() []interface{} {
	return []interface{}{
		r.BatchID, r.LoanType, r.LoadedAt,
		r.LoanAccountNumber, r.InstallmentNumber,
		r.ActualPaymentDate, r.ScheduledPaymentDate,
		r.InstallmentAmount, r.PrincipalComponent,
		r.InterestComponent, r.KKDFComponent, r.BSMVComponent,
		r.InstallmentStatus, r.RemainingPrincipal,
		r.RemainingInterest, r.RemainingKKDF, r.RemainingBSMV,
	}
}
