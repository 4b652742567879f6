// Package lifecycle applies accepted extraction records to permit
// storage: create, renew in place, deactivate. It is the only package
// that writes permits, and it refuses records that still need review.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/facilityhub/permit-tracker/constants"
	"github.com/facilityhub/permit-tracker/internal/common"
	"github.com/facilityhub/permit-tracker/internal/entity"
	"github.com/facilityhub/permit-tracker/internal/pipeline"
	"github.com/facilityhub/permit-tracker/internal/repository"
)

const (
	fallbackName     = "Extracted Permit"
	fallbackIssuedBy = "Unknown Authority"
)

type Manager struct {
	permits repository.PermitRepository
	logger  *slog.Logger
}

func NewManager(permits repository.PermitRepository, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{permits: permits, logger: logger}
}

// CreateInput carries everything needed to persist a new permit from
// an accepted extraction.
type CreateInput struct {
	Record         pipeline.ExtractedRecord
	FacilityID     uuid.UUID
	UserID         *uuid.UUID
	SourceFilename string
	DocumentRef    *string
}

// CreateFromRecord persists a newly extracted permit plus its first
// history row. The record must have passed the review gate.
func (m *Manager) CreateFromRecord(ctx context.Context, in CreateInput) (*entity.Permit, error) {
	if err := requireAccepted(in.Record); err != nil {
		return nil, err
	}

	p := &entity.Permit{
		FacilityID:   in.FacilityID,
		Name:         deref(in.Record.LicenseType, fallbackName),
		Number:       deref(in.Record.LicenseNumber, generatedNumber()),
		IssueDate:    in.Record.IssueDate,
		ExpiryDate:   *in.Record.ExpiryDate,
		IssuedBy:     deref(in.Record.IssuedBy, fallbackIssuedBy),
		IsActive:     true,
		RenewalURL:   in.Record.RenewalURL,
		DocumentRef:  in.DocumentRef,
		UploadedByID: in.UserID,
	}

	notes := fmt.Sprintf("extracted data from %s", in.SourceFilename)
	if in.Record.InferenceNotes != "" {
		notes += "; " + in.Record.InferenceNotes
	}

	created, err := m.permits.Create(ctx, &repository.CreatePermitRequest{
		Permit:      p,
		UserID:      in.UserID,
		Action:      constants.ActionCreated,
		Notes:       notes,
		DocumentURL: in.DocumentRef,
	})
	if err != nil {
		return nil, err
	}
	if in.DocumentRef != nil {
		if err := m.permits.AddHistory(ctx, created.ID, constants.ActionDocumentSaved,
			in.UserID, fmt.Sprintf("source document stored at %s", *in.DocumentRef), in.DocumentRef); err != nil {
			m.logger.Warn("failed to record document archive", "permit_id", created.ID, "error", err)
		}
	}
	return created, nil
}

// CreateManual persists a permit entered by hand, bypassing extraction.
func (m *Manager) CreateManual(ctx context.Context, p *entity.Permit, userID *uuid.UUID) (*entity.Permit, error) {
	if p.ExpiryDate.IsZero() {
		return nil, fmt.Errorf("%w: expiry date is required", common.ErrInvalidInput)
	}
	p.IsActive = true
	p.UploadedByID = userID
	return m.permits.Create(ctx, &repository.CreatePermitRequest{
		Permit: p,
		UserID: userID,
		Action: constants.ActionManualEntry,
		Notes:  "manual permit creation via API",
	})
}

// Renew applies an accepted renewal record to the existing permit row.
// The permit keeps its identity; only the fields the new document
// determined change, and the history row records what moved. Both the
// same-number rollover and the reissued-under-new-number case flow
// through here identically.
func (m *Manager) Renew(ctx context.Context, permitID uuid.UUID, rec pipeline.ExtractedRecord, userID *uuid.UUID, docRef *string) (*entity.Permit, error) {
	if err := requireAccepted(rec); err != nil {
		return nil, err
	}

	prior, err := m.permits.GetByID(ctx, permitID)
	if err != nil {
		return nil, err
	}

	upd := &repository.RenewalUpdate{
		Name:        rec.LicenseType,
		Number:      rec.LicenseNumber,
		IssueDate:   rec.IssueDate,
		ExpiryDate:  *rec.ExpiryDate,
		IssuedBy:    rec.IssuedBy,
		RenewalURL:  rec.RenewalURL,
		DocumentRef: docRef,
		Notes:       renewalNotes(prior, rec),
		UserID:      userID,
		DocumentURL: docRef,
	}

	updated, err := m.permits.RenewInPlace(ctx, permitID, upd)
	if err != nil {
		return nil, err
	}
	m.logger.Info("permit renewal applied",
		"permit_id", permitID,
		"number_changed", rec.LicenseNumber != nil && *rec.LicenseNumber != prior.Number,
	)
	return updated, nil
}

// Deactivate marks a permit inactive. Permits are never hard-deleted.
func (m *Manager) Deactivate(ctx context.Context, permitID uuid.UUID, userID *uuid.UUID) error {
	return m.permits.Deactivate(ctx, permitID, userID)
}

// renewalNotes describes what the renewal changed so the audit trail
// distinguishes a date rollover from a reissue under a new identifier.
func renewalNotes(prior *entity.Permit, rec pipeline.ExtractedRecord) string {
	var parts []string
	if rec.LicenseNumber != nil && *rec.LicenseNumber != prior.Number {
		parts = append(parts, fmt.Sprintf("number changed %s -> %s", prior.Number, *rec.LicenseNumber))
	} else {
		parts = append(parts, fmt.Sprintf("renewed under same number %s", prior.Number))
	}
	parts = append(parts, fmt.Sprintf("expiry %s -> %s",
		entity.FormatYMD(prior.ExpiryDate), entity.FormatYMD(*rec.ExpiryDate)))
	if rec.RenewalURL != nil && (prior.RenewalURL == nil || *prior.RenewalURL != *rec.RenewalURL) {
		was := "none"
		if prior.RenewalURL != nil {
			was = *prior.RenewalURL
		}
		parts = append(parts, fmt.Sprintf("renewal URL %s -> %s", was, *rec.RenewalURL))
	}
	return strings.Join(parts, "; ")
}

func requireAccepted(rec pipeline.ExtractedRecord) error {
	if rec.NeedsReview || rec.ExpiryDate == nil {
		return fmt.Errorf("%w: record needs review before persistence", common.ErrInvalidInput)
	}
	return nil
}

func deref(s *string, fallback string) string {
	if s != nil && *s != "" {
		return *s
	}
	return fallback
}

func generatedNumber() string {
	return "PERMIT-" + strings.ToUpper(uuid.NewString()[:8])
}
