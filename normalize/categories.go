package normalize

import "strings"

// Category mappings. Unmapped input passes through unchanged so a later
// VALUE check still catches it.
var customerTypeMap = map[string]string{
	"I": "INDIVIDUAL",
	"T": "TRADE",
	"V": "VIP",
}

var statusMap = map[string]string{
	"A": "ACTIVE",
	"K": "CLOSED",
}

// insuranceMap encodes the H/E flag as 0/1; unmapped input becomes empty
// (stored as null).
var insuranceMap = map[string]string{
	"H": "0",
	"E": "1",
}

// CustomerType maps I/T/V onto INDIVIDUAL/TRADE/VIP.
func CustomerType(value string) string {
	value = strings.TrimSpace(value)
	if mapped, ok := customerTypeMap[value]; ok {
		return mapped
	}
	return value
}

// Status maps A/K onto ACTIVE/CLOSED. Used for loan_status_code,
// loan_status_flag, and installment_status alike.
func Status(value string) string {
	value = strings.TrimSpace(value)
	if mapped, ok := statusMap[value]; ok {
		return mapped
	}
	return value
}

// Insurance maps H/E onto "0"/"1"; anything else becomes empty.
func Insurance(value string) string {
	return insuranceMap[strings.TrimSpace(value)]
}

// Credit normalizes all date, rate, and category fields of a credit record
// in place and returns it.
func Credit(record map[string]string, loanType string) map[string]string {
	normalizeDates(record, creditDateFields)
	normalizeRates(record, loanType)

	record["customer_type"] = CustomerType(record["customer_type"])
	record["loan_status_code"] = Status(record["loan_status_code"])

	if loanType == "RETAIL" {
		record["insurance_included"] = Insurance(record["insurance_included"])
	}
	if loanType == "COMMERCIAL" {
		record["loan_status_flag"] = Status(record["loan_status_flag"])
	}
	return record
}

// Payment normalizes all date and category fields of a payment record in
// place and returns it.
func Payment(record map[string]string) map[string]string {
	normalizeDates(record, paymentDateFields)
	record["installment_status"] = Status(record["installment_status"])
	return record
}
