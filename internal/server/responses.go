package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/facilityhub/permit-tracker/internal/common"
	"github.com/facilityhub/permit-tracker/internal/entity"
	"github.com/facilityhub/permit-tracker/internal/pipeline"
)

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// needsReviewPayload is the one response shape that uses 422: the
// extraction ran but a human must confirm at least the expiry date.
type needsReviewPayload struct {
	NeedsReview bool           `json:"needs_review"`
	Message     string         `json:"message"`
	Suggested   map[string]any `json:"suggested"`
}

// permitResponse is the wire form of a permit, with the derived status
// included.
type permitResponse struct {
	ID             string  `json:"id"`
	FacilityID     string  `json:"facility_id"`
	Name           string  `json:"name"`
	Number         string  `json:"number"`
	IssueDate      *string `json:"issue_date"`
	ExpiryDate     string  `json:"expiry_date"`
	IssuedBy       string  `json:"issued_by"`
	IsActive       bool    `json:"is_active"`
	Status         string  `json:"status"`
	ParentPermitID *string `json:"parent_permit_id,omitempty"`
	RenewalURL     *string `json:"renewal_url"`
	DocumentRef    *string `json:"document_ref"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func toPermitResponse(p *entity.Permit) permitResponse {
	resp := permitResponse{
		ID:          p.ID.String(),
		FacilityID:  p.FacilityID.String(),
		Name:        p.Name,
		Number:      p.Number,
		ExpiryDate:  entity.FormatYMD(p.ExpiryDate),
		IssuedBy:    p.IssuedBy,
		IsActive:    p.IsActive,
		Status:      string(p.Status()),
		RenewalURL:  p.RenewalURL,
		DocumentRef: p.DocumentRef,
		CreatedAt:   p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   p.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if p.IssueDate != nil {
		d := entity.FormatYMD(*p.IssueDate)
		resp.IssueDate = &d
	}
	if p.ParentPermitID != nil {
		s := p.ParentPermitID.String()
		resp.ParentPermitID = &s
	}
	return resp
}

// decodeJSON decodes a request body, writing the 400 itself on
// failure.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, logger, fmt.Errorf("%w: malformed JSON body", common.ErrInvalidInput))
		return v, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeNeedsReview returns the suggested-fields payload with 422, kept
// distinct from generic client errors so callers can branch on it.
func writeNeedsReview(w http.ResponseWriter, rec pipeline.ExtractedRecord) {
	writeJSON(w, http.StatusUnprocessableEntity, needsReviewPayload{
		NeedsReview: true,
		Message:     "could not determine an expiry date; please confirm the suggested fields",
		Suggested:   rec.Suggested(),
	})
}

// writeError translates domain errors into the standard envelope.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	switch {
	case errors.Is(err, common.ErrUnsupportedFileType):
		status, code = http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE"
	case errors.Is(err, common.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, common.ErrInvalidDate):
		status, code = http.StatusBadRequest, "INVALID_DATE"
	case errors.Is(err, common.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, common.ErrConfiguration):
		status, code = http.StatusInternalServerError, "CONFIGURATION_ERROR"
	case errors.Is(err, common.ErrExtractionCall):
		status, code = http.StatusBadGateway, "EXTRACTION_CALL_FAILED"
	}
	if status >= 500 {
		logger.Error("request failed", "code", code, "error", err)
	}
	var env errorEnvelope
	env.Error.Code = code
	env.Error.Message = err.Error()
	writeJSON(w, status, env)
}
