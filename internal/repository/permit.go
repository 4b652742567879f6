package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/facilityhub/permit-tracker/constants"
	"github.com/facilityhub/permit-tracker/internal/common"
	"github.com/facilityhub/permit-tracker/internal/entity"
)

// CreatePermitRequest wraps parameters for creating a permit together
// with its first audit row.
type CreatePermitRequest struct {
	Permit      *entity.Permit
	UserID      *uuid.UUID
	Action      string
	Notes       string
	DocumentURL *string
}

// RenewalUpdate carries the fields of a renewal. Nil pointers mean
// "keep the current value"; only ExpiryDate is mandatory.
type RenewalUpdate struct {
	Name        *string
	Number      *string
	IssueDate   *time.Time
	ExpiryDate  time.Time
	IssuedBy    *string
	RenewalURL  *string
	DocumentRef *string
	Notes       string
	UserID      *uuid.UUID
	DocumentURL *string
}

// PermitStats aggregates derived statuses, for one facility or across
// all of them.
type PermitStats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Expiring   int `json:"expiring"`
	Expired    int `json:"expired"`
	Superseded int `json:"superseded"`
}

type PermitRepository interface {
	Create(ctx context.Context, req *CreatePermitRequest) (*entity.Permit, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Permit, error)
	List(ctx context.Context, facilityID *uuid.UUID, includeInactive bool) ([]*entity.Permit, error)
	RenewInPlace(ctx context.Context, id uuid.UUID, upd *RenewalUpdate) (*entity.Permit, error)
	Deactivate(ctx context.Context, id uuid.UUID, userID *uuid.UUID) error
	Stats(ctx context.Context, facilityID *uuid.UUID) (*PermitStats, error)
	ListHistory(ctx context.Context, permitID uuid.UUID) ([]*entity.PermitHistory, error)
	AddHistory(ctx context.Context, permitID uuid.UUID, action string, userID *uuid.UUID, notes string, docURL *string) error
}

type permitRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPermitRepository(db DB, logger *slog.Logger) PermitRepository {
	return &permitRepository{db: db, logger: logger}
}

const permitColumns = `id, facility_id, name, number, issue_date, expiry_date, issued_by,
	is_active, parent_permit_id, renewal_url, document_ref, uploaded_by_id, created_at, updated_at`

func (r *permitRepository) Create(ctx context.Context, req *CreatePermitRequest) (*entity.Permit, error) {
	p := req.Permit
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO permits (id, facility_id, name, number, issue_date, expiry_date, issued_by,
			is_active, parent_permit_id, renewal_url, document_ref, uploaded_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.FacilityID, p.Name, p.Number, p.IssueDate, p.ExpiryDate, p.IssuedBy,
		p.IsActive, p.ParentPermitID, p.RenewalURL, p.DocumentRef, p.UploadedByID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to insert permit", "permit_id", p.ID, "error", err)
		return nil, err
	}

	if err := insertHistory(ctx, tx, p.ID, req.Action, req.UserID, req.Notes, req.DocumentURL); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create tx: %w", err)
	}
	r.logger.Info("permit created", "permit_id", p.ID, "facility_id", p.FacilityID, "action", req.Action)
	return p, nil
}

func (r *permitRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Permit, error) {
	row := r.db.QueryRow(ctx, `SELECT `+permitColumns+` FROM permits WHERE id = $1`, id)
	p, err := scanPermit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("permit %s: %w", id, common.ErrNotFound)
	}
	return p, err
}

// List returns permits ordered by expiry date. A nil facilityID spans
// all facilities.
func (r *permitRepository) List(ctx context.Context, facilityID *uuid.UUID, includeInactive bool) ([]*entity.Permit, error) {
	q := `SELECT ` + permitColumns + ` FROM permits`
	var args []any
	var where []string
	if facilityID != nil {
		args = append(args, *facilityID)
		where = append(where, fmt.Sprintf("facility_id = $%d", len(args)))
	}
	if !includeInactive {
		where = append(where, "is_active")
	}
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY expiry_date`
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		r.logger.Error("failed to list permits", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RenewInPlace updates the existing row under a row lock rather than
// inserting a successor, so the permit keeps its identity and its full
// audit trail. Nil update fields fall back to the stored values.
func (r *permitRepository) RenewInPlace(ctx context.Context, id uuid.UUID, upd *RenewalUpdate) (*entity.Permit, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin renew tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+permitColumns+` FROM permits WHERE id = $1 FOR UPDATE`, id)
	p, err := scanPermit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("permit %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Number != nil {
		p.Number = *upd.Number
	}
	if upd.IssueDate != nil {
		p.IssueDate = upd.IssueDate
	}
	if upd.IssuedBy != nil {
		p.IssuedBy = *upd.IssuedBy
	}
	if upd.RenewalURL != nil {
		p.RenewalURL = upd.RenewalURL
	}
	if upd.DocumentRef != nil {
		p.DocumentRef = upd.DocumentRef
	}
	p.ExpiryDate = upd.ExpiryDate
	p.IsActive = true
	p.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx, `
		UPDATE permits
		SET name = $2, number = $3, issue_date = $4, expiry_date = $5, issued_by = $6,
			is_active = $7, renewal_url = $8, document_ref = $9, updated_at = $10
		WHERE id = $1`,
		p.ID, p.Name, p.Number, p.IssueDate, p.ExpiryDate, p.IssuedBy,
		p.IsActive, p.RenewalURL, p.DocumentRef, p.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to renew permit", "permit_id", id, "error", err)
		return nil, err
	}

	if err := insertHistory(ctx, tx, p.ID, constants.ActionRenewed, upd.UserID, upd.Notes, upd.DocumentURL); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit renew tx: %w", err)
	}
	r.logger.Info("permit renewed", "permit_id", id, "expiry_date", entity.FormatYMD(p.ExpiryDate))
	return p, nil
}

func (r *permitRepository) Deactivate(ctx context.Context, id uuid.UUID, userID *uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin deactivate tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE permits SET is_active = FALSE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("permit %s: %w", id, common.ErrNotFound)
	}

	if err := insertHistory(ctx, tx, id, constants.ActionDeactivated, userID, "", nil); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Stats derives statuses in Go so the status rules live in exactly one
// place, entity.Permit.StatusAt.
func (r *permitRepository) Stats(ctx context.Context, facilityID *uuid.UUID) (*PermitStats, error) {
	permits, err := r.List(ctx, facilityID, true)
	if err != nil {
		return nil, err
	}
	today := time.Now().UTC()
	stats := &PermitStats{Total: len(permits)}
	for _, p := range permits {
		switch p.StatusAt(today) {
		case constants.StatusActive:
			stats.Active++
		case constants.StatusExpiring:
			stats.Expiring++
		case constants.StatusExpired:
			stats.Expired++
		case constants.StatusSuperseded:
			stats.Superseded++
		}
	}
	return stats, nil
}

func (r *permitRepository) ListHistory(ctx context.Context, permitID uuid.UUID) ([]*entity.PermitHistory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, permit_id, action, user_id, notes, document_url, created_at
		FROM permit_history
		WHERE permit_id = $1
		ORDER BY created_at DESC`, permitID)
	if err != nil {
		r.logger.Error("failed to list permit history", "permit_id", permitID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.PermitHistory
	for rows.Next() {
		h := &entity.PermitHistory{}
		if err := rows.Scan(&h.ID, &h.PermitID, &h.Action, &h.UserID, &h.Notes, &h.DocumentURL, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// AddHistory appends a standalone audit row outside the create/renew
// transactions, for events like document archival.
func (r *permitRepository) AddHistory(ctx context.Context, permitID uuid.UUID, action string, userID *uuid.UUID, notes string, docURL *string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO permit_history (id, permit_id, action, user_id, notes, document_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), permitID, action, userID, notes, docURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert history row: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, permitID uuid.UUID, action string, userID *uuid.UUID, notes string, docURL *string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO permit_history (id, permit_id, action, user_id, notes, document_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), permitID, action, userID, notes, docURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert history row: %w", err)
	}
	return err
}

func scanPermit(row pgx.Row) (*entity.Permit, error) {
	p := &entity.Permit{}
	err := row.Scan(&p.ID, &p.FacilityID, &p.Name, &p.Number, &p.IssueDate, &p.ExpiryDate,
		&p.IssuedBy, &p.IsActive, &p.ParentPermitID, &p.RenewalURL, &p.DocumentRef,
		&p.UploadedByID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}
