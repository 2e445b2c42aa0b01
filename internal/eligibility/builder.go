// Package eligibility builds the row-store filter formulas for lead
// selection. It is pure: no I/O, no state, just strings.
package eligibility

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/user/topleads/internal/rowstore"
)

// Externally visible schema names. These must match the row-store columns
// exactly; the sanity probe checks them at runtime.
const (
	TableLeads       = "Leads"
	TableCredentials = "Credentials"

	FieldAIScore          = "AI Score"
	FieldScoringStatus    = "Scoring Status"
	FieldConnectionStatus = "LinkedIn Connection Status"
	FieldBatchStatus      = "Temp LH Batch Status"
	FieldDateAdded        = "Date Added to LH Campaign"
	FieldLinkedInURL      = "LinkedIn Profile URL"
	FieldFirstName        = "First Name"
	FieldLastName         = "Last Name"
	FieldEmail            = "Email"
	FieldPhone            = "Phone Number"

	StatusScored    = "Scored"
	StatusCandidate = "Candidate"
	BatchSelected   = "Selected for Current LH Batch"
)

// Formula emits the five-clause eligibility predicate for the given threshold:
// scored, candidate, never campaigned, scoring at or above threshold, and not
// already in the locked batch.
func Formula(threshold float64) string {
	clauses := append(baseClauses(threshold), ne(FieldBatchStatus, BatchSelected))
	return "AND(" + strings.Join(clauses, ",") + ")"
}

// FormulaIncludingLocked drops the locked-batch exclusion clause. A replace
// lock clears the current batch before selecting, so predicting its outcome
// must count currently-locked rows as selectable.
func FormulaIncludingLocked(threshold float64) string {
	return "AND(" + strings.Join(baseClauses(threshold), ",") + ")"
}

func baseClauses(threshold float64) []string {
	return []string{
		eq(FieldScoringStatus, StatusScored),
		eq(FieldConnectionStatus, StatusCandidate),
		fmt.Sprintf("{%s}=BLANK()", FieldDateAdded),
		fmt.Sprintf("{%s}>=%s", FieldAIScore, formatNumber(threshold)),
	}
}

// LockedFormula matches exactly the rows of the current locked batch.
func LockedFormula() string {
	return eq(FieldBatchStatus, BatchSelected)
}

// Sort is the deterministic ordering for eligibility reads: score descending.
// Ties are broken by record id in the caller, after collection; the store
// cannot sort on record identifiers.
func Sort() []rowstore.SortSpec {
	return []rowstore.SortSpec{{Field: FieldAIScore, Direction: "desc"}}
}

func eq(field, literal string) string {
	return fmt.Sprintf("{%s}='%s'", field, escape(literal))
}

func ne(field, literal string) string {
	return fmt.Sprintf("{%s}!='%s'", field, escape(literal))
}

// escape protects single quotes inside status literals.
func escape(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
