package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilityhub/permit-tracker/constants"
	"github.com/facilityhub/permit-tracker/internal/common"
	"github.com/facilityhub/permit-tracker/internal/entity"
	"github.com/facilityhub/permit-tracker/internal/pipeline"
	"github.com/facilityhub/permit-tracker/internal/repository"
)

// fakeRepo is an in-memory PermitRepository.
type fakeRepo struct {
	permits map[uuid.UUID]*entity.Permit
	history []*entity.PermitHistory
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{permits: make(map[uuid.UUID]*entity.Permit)}
}

func (f *fakeRepo) Create(_ context.Context, req *repository.CreatePermitRequest) (*entity.Permit, error) {
	p := req.Permit
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.permits[p.ID] = p
	f.history = append(f.history, &entity.PermitHistory{
		PermitID: p.ID, Action: req.Action, Notes: req.Notes, DocumentURL: req.DocumentURL,
	})
	return p, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Permit, error) {
	p, ok := f.permits[id]
	if !ok {
		return nil, fmt.Errorf("permit %s: %w", id, common.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) List(_ context.Context, facilityID *uuid.UUID, includeInactive bool) ([]*entity.Permit, error) {
	var out []*entity.Permit
	for _, p := range f.permits {
		if facilityID != nil && p.FacilityID != *facilityID {
			continue
		}
		if includeInactive || p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) RenewInPlace(_ context.Context, id uuid.UUID, upd *repository.RenewalUpdate) (*entity.Permit, error) {
	p, ok := f.permits[id]
	if !ok {
		return nil, fmt.Errorf("permit %s: %w", id, common.ErrNotFound)
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
	p.ExpiryDate = upd.ExpiryDate
	p.IsActive = true
	f.history = append(f.history, &entity.PermitHistory{
		PermitID: id, Action: constants.ActionRenewed, Notes: upd.Notes,
	})
	return p, nil
}

func (f *fakeRepo) Deactivate(_ context.Context, id uuid.UUID, _ *uuid.UUID) error {
	p, ok := f.permits[id]
	if !ok {
		return fmt.Errorf("permit %s: %w", id, common.ErrNotFound)
	}
	p.IsActive = false
	f.history = append(f.history, &entity.PermitHistory{PermitID: id, Action: constants.ActionDeactivated})
	return nil
}

func (f *fakeRepo) Stats(_ context.Context, _ *uuid.UUID) (*repository.PermitStats, error) {
	return &repository.PermitStats{}, nil
}

func (f *fakeRepo) ListHistory(_ context.Context, id uuid.UUID) ([]*entity.PermitHistory, error) {
	var out []*entity.PermitHistory
	for i := len(f.history) - 1; i >= 0; i-- {
		if f.history[i].PermitID == id {
			out = append(out, f.history[i])
		}
	}
	return out, nil
}

func (f *fakeRepo) AddHistory(_ context.Context, id uuid.UUID, action string, _ *uuid.UUID, notes string, docURL *string) error {
	f.history = append(f.history, &entity.PermitHistory{
		PermitID: id, Action: action, Notes: notes, DocumentURL: docURL,
	})
	return nil
}

func strp(s string) *string { return &s }

func datep(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func acceptedRecord() pipeline.ExtractedRecord {
	return pipeline.ExtractedRecord{
		LicenseType:    strp("Tobacco Retailer Permit"),
		LicenseNumber:  strp("TOB-2024-5"),
		IssueDate:      datep(2024, time.June, 1),
		ExpiryDate:     datep(2025, time.June, 1),
		IssuedBy:       strp("Department of Revenue"),
		RenewalURL:     strp("https://mypath.pa.gov/"),
		InferenceNotes: "extracted via pdf_text(text) [direct_json]",
	}
}

func TestCreateFromRecord(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, nil)

	facilityID := uuid.New()
	created, err := m.CreateFromRecord(context.Background(), CreateInput{
		Record:         acceptedRecord(),
		FacilityID:     facilityID,
		SourceFilename: "tobacco.pdf",
	})
	require.NoError(t, err)

	assert.Equal(t, "Tobacco Retailer Permit", created.Name)
	assert.Equal(t, "TOB-2024-5", created.Number)
	assert.True(t, created.IsActive)
	assert.Equal(t, facilityID, created.FacilityID)

	require.Len(t, repo.history, 1)
	assert.Equal(t, constants.ActionCreated, repo.history[0].Action)
	assert.Contains(t, repo.history[0].Notes, "tobacco.pdf")
	assert.Contains(t, repo.history[0].Notes, "direct_json")
}

func TestCreateFromRecord_FallbackValues(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, nil)

	rec := pipeline.ExtractedRecord{ExpiryDate: datep(2026, time.January, 31)}
	created, err := m.CreateFromRecord(context.Background(), CreateInput{
		Record:         rec,
		FacilityID:     uuid.New(),
		SourceFilename: "degraded-scan.pdf",
	})
	require.NoError(t, err)

	assert.Equal(t, "Extracted Permit", created.Name)
	assert.Equal(t, "Unknown Authority", created.IssuedBy)
	assert.True(t, strings.HasPrefix(created.Number, "PERMIT-"))
}

func TestCreateFromRecord_RefusesReviewRecords(t *testing.T) {
	m := NewManager(newFakeRepo(), nil)

	rec := acceptedRecord()
	rec.ExpiryDate = nil
	rec.NeedsReview = true

	_, err := m.CreateFromRecord(context.Background(), CreateInput{Record: rec, FacilityID: uuid.New()})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestCreateFromRecord_ArchivedDocumentGetsHistoryRow(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, nil)

	ref := "permits/fac/1-tobacco.pdf"
	_, err := m.CreateFromRecord(context.Background(), CreateInput{
		Record:         acceptedRecord(),
		FacilityID:     uuid.New(),
		SourceFilename: "tobacco.pdf",
		DocumentRef:    &ref,
	})
	require.NoError(t, err)

	require.Len(t, repo.history, 2)
	assert.Equal(t, constants.ActionDocumentSaved, repo.history[1].Action)
	require.NotNil(t, repo.history[1].DocumentURL)
	assert.Equal(t, ref, *repo.history[1].DocumentURL)
}

func TestRenew_NumberChangeIsLogged(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, nil)

	existing, err := m.CreateFromRecord(context.Background(), CreateInput{
		Record:         acceptedRecord(),
		FacilityID:     uuid.New(),
		SourceFilename: "tobacco.pdf",
	})
	require.NoError(t, err)

	renewal := pipeline.ExtractedRecord{
		LicenseNumber: strp("TOB-2025-9"),
		ExpiryDate:    datep(2026, time.June, 1),
	}
	updated, err := m.Renew(context.Background(), existing.ID, renewal, nil, nil)
	require.NoError(t, err)

	// same row, updated in place
	assert.Equal(t, existing.ID, updated.ID)
	assert.Equal(t, "TOB-2025-9", updated.Number)
	assert.Equal(t, *datep(2026, time.June, 1), updated.ExpiryDate)
	// fields the renewal document could not determine fall back
	assert.Equal(t, "Tobacco Retailer Permit", updated.Name)
	assert.Equal(t, "Department of Revenue", updated.IssuedBy)

	last := repo.history[len(repo.history)-1]
	assert.Equal(t, constants.ActionRenewed, last.Action)
	assert.Contains(t, last.Notes, "number changed TOB-2024-5 -> TOB-2025-9")
	assert.Contains(t, last.Notes, "expiry 2025-06-01 -> 2026-06-01")
}

func TestRenew_SameNumberRollover(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, nil)

	existing, err := m.CreateFromRecord(context.Background(), CreateInput{
		Record:         acceptedRecord(),
		FacilityID:     uuid.New(),
		SourceFilename: "tobacco.pdf",
	})
	require.NoError(t, err)

	renewal := pipeline.ExtractedRecord{
		LicenseNumber: strp("TOB-2024-5"),
		ExpiryDate:    datep(2026, time.June, 1),
	}
	_, err = m.Renew(context.Background(), existing.ID, renewal, nil, nil)
	require.NoError(t, err)

	last := repo.history[len(repo.history)-1]
	assert.Contains(t, last.Notes, "renewed under same number TOB-2024-5")
}

func TestRenew_RefusesReviewRecords(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, nil)

	rec := pipeline.ExtractedRecord{NeedsReview: true}
	_, err := m.Renew(context.Background(), uuid.New(), rec, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Empty(t, repo.history, "a review record must leave storage untouched")
}

func TestCreateManual(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, nil)

	p := &entity.Permit{
		FacilityID: uuid.New(),
		Name:       "Business License",
		Number:     "BL-3001",
		ExpiryDate: *datep(2026, time.December, 31),
	}
	created, err := m.CreateManual(context.Background(), p, nil)
	require.NoError(t, err)
	assert.True(t, created.IsActive)

	require.Len(t, repo.history, 1)
	assert.Equal(t, constants.ActionManualEntry, repo.history[0].Action)
}

func TestCreateManual_RequiresExpiry(t *testing.T) {
	m := NewManager(newFakeRepo(), nil)

	_, err := m.CreateManual(context.Background(), &entity.Permit{Name: "X"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
