package llm

import (
	"context"

	"github.com/facilityhub/permit-tracker/internal/document"
)

// PermitFields is the flat record the extraction contract asks for.
// Every field is nullable: absence always degrades to nil, never to an
// error, and callers must treat a missing key exactly like an explicit
// null.
type PermitFields struct {
	LicenseType *string `json:"license_type"`
	LicenseNo   *string `json:"license_no"`
	IssueDate   *string `json:"issue_date"`  // YYYY-MM-DD
	ExpiryDate  *string `json:"expiry_date"` // YYYY-MM-DD
	IssuedBy    *string `json:"issued_by"`
	RenewalURL  *string `json:"renewal_url"`
}

// FieldKeys lists the contract keys in their canonical order.
var FieldKeys = []string{
	"license_type", "license_no", "issue_date", "expiry_date", "issued_by", "renewal_url",
}

// Extractor is the interface the pipeline depends on: one normalized
// input in, the model's raw text output back. Recovery of structure
// from that text belongs to the parse stage, not here.
type Extractor interface {
	ExtractRaw(ctx context.Context, in document.ExtractionInput) (string, error)
}
