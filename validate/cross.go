package validate

import "fmt"

// LoanSet is a membership set of loan account numbers used for the
// cross-file referential check. It holds only the identifiers, never record
// payloads, so its memory footprint is independent of row width.
type LoanSet map[string]struct{}

// NewLoanSet returns an empty set.
func NewLoanSet() LoanSet { return make(LoanSet) }

// Add inserts a loan account number; empty strings are ignored.
func (s LoanSet) Add(loanID string) {
	if loanID != "" {
		s[loanID] = struct{}{}
	}
}

// Has reports membership.
func (s LoanSet) Has(loanID string) bool {
	_, ok := s[loanID]
	return ok
}

// Union merges another set into this one and returns the receiver.
func (s LoanSet) Union(other LoanSet) LoanSet {
	for id := range other {
		s[id] = struct{}{}
	}
	return s
}

// CrossReference checks a payment's loan_account_number against the combined
// set of batch credits and already-loaded warehouse credits. It returns a
// CROSS_REFERENCE error descriptor when the reference is dangling, nil
// otherwise.
func CrossReference(loanID string, rowNumber int, known LoanSet) *Error {
	if known.Has(loanID) {
		return nil
	}
	return &Error{
		RowNumber: rowNumber,
		FieldName: "loan_account_number",
		Type:      ErrCrossReference,
		Message:   fmt.Sprintf("loan_account_number %s not found in credit records", loanID),
		RawValue:  loanID,
	}
}
