package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/facilityhub/permit-tracker/internal/async"
	"github.com/facilityhub/permit-tracker/internal/entity"
	"github.com/facilityhub/permit-tracker/internal/lifecycle"
	"github.com/facilityhub/permit-tracker/internal/pipeline"
)

const (
	dirProcessed = "processed"
	dirReview    = "review"
	dirFailed    = "failed"
)

// Extractor runs the document pipeline. Satisfied by
// pipeline.Processor.
type Extractor interface {
	Extract(ctx context.Context, path string) (pipeline.ExtractedRecord, error)
}

// Creator persists accepted records. Satisfied by lifecycle.Manager.
type Creator interface {
	CreateFromRecord(ctx context.Context, in lifecycle.CreateInput) (*entity.Permit, error)
}

// Service routes dropped documents to the pipeline and files each one
// into a holding directory by outcome. A document needing review stays
// on disk under review/ for a human to handle through the API.
type Service struct {
	extractor Extractor
	creator   Creator
	logger    *slog.Logger
}

func NewService(extractor Extractor, creator Creator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{extractor: extractor, creator: creator, logger: logger}
}

// Run consumes the watcher until the context is cancelled, feeding
// each dropped document to the queue.
func (s *Service) Run(ctx context.Context, cfg WatchConfig, queue async.Queue) error {
	events, err := StartWatcher(ctx, cfg, s.logger)
	if err != nil {
		return fmt.Errorf("start drop folder watch: %w", err)
	}
	s.logger.Info("watching drop folder", "root", cfg.Root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-events:
			if !ok {
				return nil
			}
			facilityID, err := FacilityFromPath(cfg.Root, path)
			if err != nil {
				s.logger.Warn("ignoring document outside a facility directory", "path", path, "error", err)
				continue
			}
			_ = queue.Enqueue(ctx, async.Job{
				Path:        path,
				FacilityID:  facilityID,
				SubmittedAt: time.Now().UTC(),
			})
		}
	}
}

// HandleJob is the queue handler: extract, persist or park for review.
func (s *Service) HandleJob(ctx context.Context, job async.Job) error {
	rec, err := s.extractor.Extract(ctx, job.Path)
	if err != nil {
		s.moveTo(job.Path, dirFailed)
		return fmt.Errorf("extract %s: %w", filepath.Base(job.Path), err)
	}

	if rec.NeedsReview {
		s.logger.Warn("document needs review",
			"path", job.Path,
			"facility_id", job.FacilityID,
			"notes", rec.InferenceNotes)
		s.moveTo(job.Path, dirReview)
		return nil
	}

	created, err := s.creator.CreateFromRecord(ctx, lifecycle.CreateInput{
		Record:         rec,
		FacilityID:     job.FacilityID,
		SourceFilename: filepath.Base(job.Path),
	})
	if err != nil {
		s.moveTo(job.Path, dirFailed)
		return fmt.Errorf("create permit from %s: %w", filepath.Base(job.Path), err)
	}

	s.logger.Info("permit created from drop folder",
		"permit_id", created.ID,
		"facility_id", job.FacilityID,
		"number", created.Number)
	s.moveTo(job.Path, dirProcessed)
	return nil
}

// FacilityFromPath maps a dropped file to its facility: the file must
// sit directly in root/<facility-uuid>/.
func FacilityFromPath(root, path string) (uuid.UUID, error) {
	parent := filepath.Dir(path)
	if filepath.Dir(parent) != filepath.Clean(root) {
		return uuid.Nil, fmt.Errorf("%q is not directly under a facility directory", path)
	}
	id, err := uuid.Parse(filepath.Base(parent))
	if err != nil {
		return uuid.Nil, fmt.Errorf("directory %q is not a facility id", filepath.Base(parent))
	}
	return id, nil
}

// moveTo parks the file in a sibling holding directory. Best effort;
// a failed move leaves the file where it is.
func (s *Service) moveTo(path, subdir string) {
	dest := filepath.Join(filepath.Dir(path), subdir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		s.logger.Warn("could not create holding directory", "dir", dest, "error", err)
		return
	}
	if err := os.Rename(path, filepath.Join(dest, filepath.Base(path))); err != nil {
		s.logger.Warn("could not move document", "path", path, "error", err)
	}
}
