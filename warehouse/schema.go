package warehouse

// Fact and staging table DDL. Staging tables are exact schema twins of their
// fact counterparts so REPLACE PARTITION can move parts between them.
// ReplacingMergeTree keyed on loaded_at makes re-runs of identical input
// converge on one row per ORDER BY key.

const factCreditDDL = `
CREATE TABLE IF NOT EXISTS %s (
	batch_id                        UUID,
	loan_type                       LowCardinality(String),
	loaded_at                       DateTime DEFAULT now(),

	loan_account_number             String,
	customer_id                     String,
	customer_type                   LowCardinality(String),
	loan_status_code                LowCardinality(String),
	days_past_due                   UInt32 DEFAULT 0,
	final_maturity_date             Nullable(Date),
	total_installment_count         UInt32 DEFAULT 0,
	outstanding_installment_count   UInt32 DEFAULT 0,
	paid_installment_count          UInt32 DEFAULT 0,
	first_payment_date              Nullable(Date),
	original_loan_amount            Decimal(18, 2),
	outstanding_principal_balance   Decimal(18, 2),
	nominal_interest_rate           Decimal(10, 6),
	total_interest_amount           Decimal(18, 2) DEFAULT 0,
	kkdf_rate                       Decimal(10, 6) DEFAULT 0,
	kkdf_amount                     Decimal(18, 2) DEFAULT 0,
	bsmv_rate                       Decimal(10, 6) DEFAULT 0,
	bsmv_amount                     Decimal(18, 2) DEFAULT 0,
	grace_period_months             UInt32 DEFAULT 0,
	installment_frequency           UInt32 DEFAULT 1,
	loan_start_date                 Nullable(Date),
	loan_closing_date               Nullable(Date),
	internal_rating                 Nullable(UInt32),
	external_rating                 Nullable(UInt32),

	loan_product_type               Nullable(UInt32),
	customer_region_code            Nullable(String),
	sector_code                     Nullable(UInt32),
	internal_credit_rating          Nullable(UInt32),
	default_probability             Nullable(Decimal(10, 6)),
	risk_class                      Nullable(UInt32),
	customer_segment                Nullable(UInt32),

	insurance_included              Nullable(UInt8),
	customer_district_code          Nullable(String),
	customer_province_code          Nullable(String)
)
ENGINE = ReplacingMergeTree(loaded_at)
PARTITION BY loan_type
ORDER BY (loan_type, loan_account_number)
SETTINGS index_granularity = 8192`

const factPaymentDDL = `
CREATE TABLE IF NOT EXISTS %s (
	batch_id                UUID,
	loan_type               LowCardinality(String),
	loaded_at               DateTime DEFAULT now(),

	loan_account_number     String,
	installment_number      UInt32,
	actual_payment_date     Nullable(Date),
	scheduled_payment_date  Nullable(Date),
	installment_amount      Decimal(18, 2),
	principal_component     Decimal(18, 2),
	interest_component      Decimal(18, 2) DEFAULT 0,
	kkdf_component          Decimal(18, 2) DEFAULT 0,
	bsmv_component          Decimal(18, 2) DEFAULT 0,
	installment_status      LowCardinality(String),
	remaining_principal     Decimal(18, 2) DEFAULT 0,
	remaining_interest      Decimal(18, 2) DEFAULT 0,
	remaining_kkdf          Decimal(18, 2) DEFAULT 0,
	remaining_bsmv          Decimal(18, 2) DEFAULT 0
)
ENGINE = ReplacingMergeTree(loaded_at)
PARTITION BY loan_type
ORDER BY (loan_type, loan_account_number, installment_number)
SETTINGS index_granularity = 8192`

var creditColumns = []string{
	"batch_id", "loan_type", "loaded_at",
	"loan_account_number", "customer_id", "customer_type",
	"loan_status_code", "days_past_due", "final_maturity_date",
	"total_installment_count", "outstanding_installment_count",
	"paid_installment_count", "first_payment_date",
	"original_loan_amount", "outstanding_principal_balance",
	"nominal_interest_rate", "total_interest_amount",
	"kkdf_rate", "kkdf_amount", "bsmv_rate", "bsmv_amount",
	"grace_period_months", "installment_frequency",
	"loan_start_date", "loan_closing_date",
	"internal_rating", "external_rating",
	"loan_product_type",
	"customer_region_code", "sector_code",
	"internal_credit_rating", "default_probability",
	"risk_class", "customer_segment",
	"insurance_included", "customer_district_code",
	"customer_province_code",
}

var paymentColumns = []string{
	"batch_id", "loan_type", "loaded_at",
	"loan_account_number", "installment_number",
	"actual_payment_date", "scheduled_payment_date",
	"installment_amount", "principal_component",
	"interest_component", "kkdf_component", "bsmv_component",
	"installment_status", "remaining_principal",
	"remaining_interest", "remaining_kkdf", "remaining_bsmv",
}
