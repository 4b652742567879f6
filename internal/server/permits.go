package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/facilityhub/permit-tracker/constants"
	"github.com/facilityhub/permit-tracker/internal/common"
	"github.com/facilityhub/permit-tracker/internal/entity"
	"github.com/facilityhub/permit-tracker/internal/export"
	"github.com/facilityhub/permit-tracker/internal/lifecycle"
	"github.com/facilityhub/permit-tracker/internal/pipeline"
	"github.com/facilityhub/permit-tracker/internal/repository"
	"github.com/facilityhub/permit-tracker/internal/storage"
)

const defaultMaxUploadBytes = 32 << 20

// Extractor runs the document pipeline. Satisfied by
// pipeline.Processor; tests substitute a stub.
type Extractor interface {
	Extract(ctx context.Context, path string) (pipeline.ExtractedRecord, error)
}

// PermitHandler wires the permit endpoints to the pipeline, lifecycle
// manager, and repository.
type PermitHandler struct {
	extractor Extractor
	manager   *lifecycle.Manager
	permits   repository.PermitRepository
	exporter  *export.Service
	archive   storage.Archive
	maxUpload int64
	logger    *slog.Logger
}

func NewPermitHandler(
	extractor Extractor,
	manager *lifecycle.Manager,
	permits repository.PermitRepository,
	exporter *export.Service,
	archive storage.Archive,
	maxUpload int64,
	logger *slog.Logger,
) *PermitHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &PermitHandler{
		extractor: extractor,
		manager:   manager,
		permits:   permits,
		exporter:  exporter,
		archive:   archive,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Register mounts the permit endpoints on the router.
func (h *PermitHandler) Register(r chi.Router) {
	r.Route("/api/permits", func(r chi.Router) {
		r.Post("/upload", h.handleUpload)
		r.Post("/", h.handleCreateManual)
		r.Get("/", h.handleList)
		r.Get("/stats", h.handleStats)
		r.Get("/export", h.handleExport)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/renew", h.handleRenew)
			r.Get("/history", h.handleHistory)
			r.Get("/document", h.handleDocument)
			r.Delete("/", h.handleDeactivate)
		})
	})
}

// handleUpload accepts a permit document plus a facility identifier,
// runs the extraction pipeline, and either persists a new permit (201)
// or returns the suggested fields for review (422). A reviewer's
// confirmed expiry_date form value turns a would-be 422 into a create.
func (h *PermitHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rec, cleanup, meta, ok := h.runExtraction(w, r, true)
	if !ok {
		return
	}
	defer cleanup()

	if rec.NeedsReview {
		writeNeedsReview(w, rec)
		return
	}

	docRef := h.archiveDocument(ctx, meta.facilityID, meta.tmpPath, meta.filename)
	created, err := h.manager.CreateFromRecord(ctx, lifecycle.CreateInput{
		Record:         rec,
		FacilityID:     meta.facilityID,
		UserID:         meta.userID,
		SourceFilename: meta.filename,
		DocumentRef:    docRef,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPermitResponse(created))
}

// handleRenew runs the same extraction contract against an existing
// permit and applies the accepted record in place. The path id is the
// only identifier required; the facility comes from the stored row.
func (h *PermitHandler) handleRenew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	permitID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid permit id", common.ErrInvalidInput))
		return
	}
	prior, err := h.permits.GetByID(ctx, permitID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	rec, cleanup, meta, ok := h.runExtraction(w, r, false)
	if !ok {
		return
	}
	defer cleanup()

	if rec.NeedsReview {
		writeNeedsReview(w, rec)
		return
	}

	docRef := h.archiveDocument(ctx, prior.FacilityID, meta.tmpPath, meta.filename)
	updated, err := h.manager.Renew(ctx, permitID, rec, meta.userID, docRef)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPermitResponse(updated))
}

type uploadMeta struct {
	facilityID uuid.UUID
	userID     *uuid.UUID
	filename   string
	tmpPath    string
}

// runExtraction handles the multipart plumbing shared by upload and
// renew: spool the file to disk, run the pipeline, and apply an
// optional reviewer-confirmed expiry date. Only the upload path needs
// a facility_id form value; renewals already know their facility.
func (h *PermitHandler) runExtraction(w http.ResponseWriter, r *http.Request, requireFacility bool) (pipeline.ExtractedRecord, func(), uploadMeta, bool) {
	none := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: malformed or oversized multipart body", common.ErrInvalidInput))
		return pipeline.ExtractedRecord{}, none, uploadMeta{}, false
	}

	var facilityID uuid.UUID
	if v := r.FormValue("facility_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: invalid facility_id", common.ErrInvalidInput))
			return pipeline.ExtractedRecord{}, none, uploadMeta{}, false
		}
		facilityID = id
	} else if requireFacility {
		writeError(w, h.logger, fmt.Errorf("%w: facility_id is required", common.ErrInvalidInput))
		return pipeline.ExtractedRecord{}, none, uploadMeta{}, false
	}
	var userID *uuid.UUID
	if v := r.FormValue("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: invalid user_id", common.ErrInvalidInput))
			return pipeline.ExtractedRecord{}, none, uploadMeta{}, false
		}
		userID = &id
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: file is required", common.ErrInvalidInput))
		return pipeline.ExtractedRecord{}, none, uploadMeta{}, false
	}
	defer file.Close()

	tmpPath, err := spoolUpload(file, header.Filename)
	if err != nil {
		writeError(w, h.logger, err)
		return pipeline.ExtractedRecord{}, none, uploadMeta{}, false
	}
	cleanup := func() { _ = os.Remove(tmpPath) }

	rec, err := h.extractor.Extract(r.Context(), tmpPath)
	if err != nil {
		cleanup()
		writeError(w, h.logger, err)
		return pipeline.ExtractedRecord{}, none, uploadMeta{}, false
	}

	// A reviewer retrying after a 422 supplies the confirmed expiry.
	if v := r.FormValue("expiry_date"); v != "" {
		d, err := entity.ParseYMD(v)
		if err != nil {
			cleanup()
			writeError(w, h.logger, fmt.Errorf("%w: expiry_date must be YYYY-MM-DD", common.ErrInvalidDate))
			return pipeline.ExtractedRecord{}, none, uploadMeta{}, false
		}
		rec.SetConfirmedExpiry(d)
	}

	meta := uploadMeta{facilityID: facilityID, userID: userID, filename: header.Filename, tmpPath: tmpPath}
	return rec, cleanup, meta, true
}

// archiveDocument stores the source file in the object archive. A
// failed archive never fails the request; the permit matters more than
// the copy of its paperwork.
func (h *PermitHandler) archiveDocument(ctx context.Context, facilityID uuid.UUID, path, filename string) *string {
	if h.archive == nil {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		h.logger.Warn("could not reopen upload for archiving", "error", err)
		return nil
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil
	}
	key, err := h.archive.Save(ctx, facilityID, filename, f, st.Size(), contentTypeFor(filename))
	if err != nil {
		h.logger.Warn("document archive failed", "filename", filename, "error", err)
		return nil
	}
	return &key
}

type manualCreateRequest struct {
	FacilityID string  `json:"facility_id"`
	Name       string  `json:"name"`
	Number     string  `json:"number"`
	IssueDate  *string `json:"issue_date"`
	ExpiryDate string  `json:"expiry_date"`
	IssuedBy   string  `json:"issued_by"`
	RenewalURL *string `json:"renewal_url"`
	UserID     *string `json:"user_id"`
}

// handleCreateManual persists a permit entered by hand, the escape
// hatch when a document is too degraded for extraction.
func (h *PermitHandler) handleCreateManual(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[manualCreateRequest](w, r, h.logger)
	if !ok {
		return
	}

	facilityID, err := uuid.Parse(req.FacilityID)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: facility_id is required", common.ErrInvalidInput))
		return
	}
	if req.Name == "" {
		writeError(w, h.logger, fmt.Errorf("%w: name is required", common.ErrInvalidInput))
		return
	}
	expiry, err := entity.ParseYMD(req.ExpiryDate)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: expiry_date must be YYYY-MM-DD", common.ErrInvalidDate))
		return
	}

	p := &entity.Permit{
		FacilityID: facilityID,
		Name:       req.Name,
		Number:     req.Number,
		ExpiryDate: expiry,
		IssuedBy:   req.IssuedBy,
		RenewalURL: req.RenewalURL,
	}
	if req.IssueDate != nil {
		d, err := entity.ParseYMD(*req.IssueDate)
		if err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: issue_date must be YYYY-MM-DD", common.ErrInvalidDate))
			return
		}
		p.IssueDate = &d
	}
	var userID *uuid.UUID
	if req.UserID != nil {
		id, err := uuid.Parse(*req.UserID)
		if err == nil {
			userID = &id
		}
	}

	created, err := h.manager.CreateManual(r.Context(), p, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPermitResponse(created))
}

func (h *PermitHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid permit id", common.ErrInvalidInput))
		return
	}
	p, err := h.permits.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPermitResponse(p))
}

func (h *PermitHandler) handleList(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := facilityFilter(w, r, h.logger)
	if !ok {
		return
	}
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	permits, err := h.permits.List(r.Context(), facilityID, includeInactive)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]permitResponse, 0, len(permits))
	for _, p := range permits {
		out = append(out, toPermitResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"permits": out})
}

func (h *PermitHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid permit id", common.ErrInvalidInput))
		return
	}
	// 404 for unknown permits rather than an empty trail.
	if _, err := h.permits.GetByID(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	hist, err := h.permits.ListHistory(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	type historyResponse struct {
		ID          string  `json:"id"`
		Action      string  `json:"action"`
		UserID      *string `json:"user_id"`
		Notes       string  `json:"notes"`
		DocumentURL *string `json:"document_url"`
		CreatedAt   string  `json:"created_at"`
	}
	out := make([]historyResponse, 0, len(hist))
	for _, e := range hist {
		item := historyResponse{
			ID:          e.ID.String(),
			Action:      e.Action,
			Notes:       e.Notes,
			DocumentURL: e.DocumentURL,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		}
		if e.UserID != nil {
			s := e.UserID.String()
			item.UserID = &s
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

// handleDocument hands out a short-lived link to the archived source
// document.
func (h *PermitHandler) handleDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid permit id", common.ErrInvalidInput))
		return
	}
	p, err := h.permits.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if p.DocumentRef == nil {
		writeError(w, h.logger, fmt.Errorf("%w: permit has no archived document", common.ErrNotFound))
		return
	}
	if h.archive == nil {
		writeError(w, h.logger, fmt.Errorf("%w: object storage not configured", common.ErrConfiguration))
		return
	}
	url, err := h.archive.PresignGet(r.Context(), *p.DocumentRef, 15*time.Minute)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *PermitHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := facilityFilter(w, r, h.logger)
	if !ok {
		return
	}
	stats, err := h.permits.Stats(r.Context(), facilityID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// facilityFilter reads the optional facility_id query parameter.
// Absent means unfiltered; present but malformed is a 400.
func facilityFilter(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*uuid.UUID, bool) {
	v := r.URL.Query().Get("facility_id")
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		writeError(w, logger, fmt.Errorf("%w: invalid facility_id", common.ErrInvalidInput))
		return nil, false
	}
	return &id, true
}

func (h *PermitHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	facilityID, err := uuid.Parse(r.URL.Query().Get("facility_id"))
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: facility_id is required", common.ErrInvalidInput))
		return
	}
	data, err := h.exporter.ExportPermitsXLSX(r.Context(), facilityID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="permits.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *PermitHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid permit id", common.ErrInvalidInput))
		return
	}
	var userID *uuid.UUID
	if v := r.URL.Query().Get("user_id"); v != "" {
		if uid, err := uuid.Parse(v); err == nil {
			userID = &uid
		}
	}
	if err := h.manager.Deactivate(r.Context(), id, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// spoolUpload copies the multipart part to a temp file so the pipeline
// can work from a real path.
func spoolUpload(src io.Reader, filename string) (string, error) {
	ext := filepath.Ext(filename)
	tmp, err := os.CreateTemp("", "permit-upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, src); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("spool upload: %w", err)
	}
	return tmp.Name(), nil
}

func contentTypeFor(filename string) string {
	switch constants.NormalizeExt(filepath.Ext(filename)) {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
