package pipeline

import (
	"time"

	"github.com/facilityhub/permit-tracker/internal/entity"
)

// ExtractedRecord is the assembled result of one extraction run, built
// incrementally by the parse, heuristic, policy, and classifier stages
// and finalized by the review gate. Invariant after finalization:
// NeedsReview == (ExpiryDate == nil), the single authoritative signal
// for whether a human must confirm before persistence.
type ExtractedRecord struct {
	LicenseType   *string
	LicenseNumber *string
	IssueDate     *time.Time
	ExpiryDate    *time.Time
	IssuedBy      *string
	RenewalURL    *string

	NeedsReview    bool
	InferenceNotes string
}

// SetConfirmedExpiry applies a human-confirmed expiry date, clearing
// the review flag. Used when the caller retries with the reviewer's
// answer after a needs_review outcome.
func (r *ExtractedRecord) SetConfirmedExpiry(d time.Time) {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	r.ExpiryDate = &day
	r.NeedsReview = false
	if r.InferenceNotes != "" {
		r.InferenceNotes += "; "
	}
	r.InferenceNotes += "expiry confirmed by reviewer"
}

// Suggested renders the record as the suggested-fields payload returned
// to a human reviewer. All six contract keys are always present; absent
// values are explicit nulls.
func (r *ExtractedRecord) Suggested() map[string]any {
	return map[string]any{
		"license_type": orNil(r.LicenseType),
		"license_no":   orNil(r.LicenseNumber),
		"issue_date":   dateOrNil(r.IssueDate),
		"expiry_date":  dateOrNil(r.ExpiryDate),
		"issued_by":    orNil(r.IssuedBy),
		"renewal_url":  orNil(r.RenewalURL),
	}
}

func orNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return entity.FormatYMD(*t)
}
