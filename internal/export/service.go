// Package export produces XLSX permit registers for compliance filings.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/facilityhub/permit-tracker/internal/entity"
	"github.com/facilityhub/permit-tracker/internal/repository"
)

// Service is a tiny façade over the permit repository that produces
// XLSX bytes for exports.
type Service struct {
	permits repository.PermitRepository
	logger  *slog.Logger
}

func NewService(permits repository.PermitRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{permits: permits, logger: logger}
}

// ExportPermitsXLSX returns an XLSX workbook listing every permit for
// the facility, active and superseded alike, with the derived status
// as of today.
func (s *Service) ExportPermitsXLSX(ctx context.Context, facilityID uuid.UUID) ([]byte, error) {
	start := time.Now()

	permits, err := s.permits.List(ctx, &facilityID, true)
	if err != nil {
		return nil, fmt.Errorf("query permits: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Permits"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{
		"Permit Name",
		"Number",
		"Issue Date",
		"Expiry Date",
		"Issued By",
		"Status",
		"Renewal URL",
		"Document",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	today := time.Now().UTC()
	row := 2
	for _, p := range permits {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, p.Name)
		write(2, p.Number)
		if p.IssueDate != nil {
			write(3, entity.FormatYMD(*p.IssueDate))
		} else {
			write(3, "")
		}
		write(4, entity.FormatYMD(p.ExpiryDate))
		write(5, p.IssuedBy)
		write(6, string(p.StatusAt(today)))
		if p.RenewalURL != nil {
			write(7, *p.RenewalURL)
		}
		if p.DocumentRef != nil {
			write(8, *p.DocumentRef)
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 28)
	_ = f.SetColWidth(sheet, "B", "B", 18)
	_ = f.SetColWidth(sheet, "C", "D", 14)
	_ = f.SetColWidth(sheet, "E", "E", 24)
	_ = f.SetColWidth(sheet, "G", "G", 40)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("permit register exported",
		"facility_id", facilityID,
		"rows", row-2,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
