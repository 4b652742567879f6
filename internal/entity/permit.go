package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/facilityhub/permit-tracker/constants"
)

// Permit is the persisted regulatory license record. ExpiryDate is the
// one mandatory extracted field: no code path may persist a permit
// without it. Permits are deactivated, never hard-deleted.
type Permit struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Number         string     `json:"number"`
	IssueDate      *time.Time `json:"issue_date,omitempty"`
	ExpiryDate     time.Time  `json:"expiry_date"`
	IssuedBy       string     `json:"issued_by"`
	IsActive       bool       `json:"is_active"`
	ParentPermitID *uuid.UUID `json:"parent_id,omitempty"`
	RenewalURL     *string    `json:"renewal_url,omitempty"`
	DocumentRef    *string    `json:"document_ref,omitempty"`
	FacilityID     uuid.UUID  `json:"facility_id"`
	UploadedByID   *uuid.UUID `json:"uploaded_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// StatusAt derives the permit status for a reference day. Inactive
// permits are superseded regardless of dates; an expiry on the
// reference day itself already counts as expired.
func (p *Permit) StatusAt(today time.Time) constants.PermitStatus {
	if !p.IsActive {
		return constants.StatusSuperseded
	}
	day := midnightUTC(today)
	expiry := midnightUTC(p.ExpiryDate)
	if !expiry.After(day) {
		return constants.StatusExpired
	}
	if !expiry.After(day.AddDate(0, 0, constants.ExpiringWindowDays)) {
		return constants.StatusExpiring
	}
	return constants.StatusActive
}

// Status derives the permit status as of now.
func (p *Permit) Status() constants.PermitStatus {
	return p.StatusAt(time.Now().UTC())
}

// PermitHistory is one immutable row of a permit's audit trail.
type PermitHistory struct {
	ID          uuid.UUID  `json:"id"`
	PermitID    uuid.UUID  `json:"permit_id"`
	Action      string     `json:"action"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	Notes       string     `json:"notes"`
	DocumentURL *string    `json:"document_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
