package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/facilityhub/permit-tracker/internal/document"
	"github.com/facilityhub/permit-tracker/internal/entity"
	"github.com/facilityhub/permit-tracker/internal/llm"
	"github.com/facilityhub/permit-tracker/internal/parse"
	"github.com/facilityhub/permit-tracker/internal/policy"
)

// Processor coordinates document normalization, the model call, layered
// response recovery, and the inference stages that backfill or override
// individual fields before the review gate decides the outcome.
type Processor struct {
	logger     *slog.Logger
	normalizer *document.Normalizer
	extractor  llm.Extractor
	sanitizer  *parse.Sanitizer
	calculator *policy.Calculator
	classifier *policy.RenewalClassifier
}

func NewProcessor(
	logger *slog.Logger,
	normalizer *document.Normalizer,
	extractor llm.Extractor,
	calculator *policy.Calculator,
	classifier *policy.RenewalClassifier,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:     logger,
		normalizer: normalizer,
		extractor:  extractor,
		sanitizer:  parse.NewSanitizer(logger),
		calculator: calculator,
		classifier: classifier,
	}
}

// Extract runs the full pipeline on a document at path. It returns an
// error only for failures upstream of field recovery (unsupported file
// type, normalization failure, model call failure). Everything after
// the raw response is best-effort: missing or malformed fields degrade
// into nulls and, ultimately, a NeedsReview record.
func (p *Processor) Extract(ctx context.Context, path string) (ExtractedRecord, error) {
	in, err := p.normalizer.Normalize(ctx, path)
	if err != nil {
		return ExtractedRecord{}, err
	}

	raw, err := p.extractor.ExtractRaw(ctx, in)
	if err != nil {
		return ExtractedRecord{}, err
	}

	res := p.sanitizer.Recover(raw)
	rec, notes := p.assemble(res.Fields)
	notes = append([]string{fmt.Sprintf("extracted via %s [%s]", in.Provenance(), res.Tier)}, notes...)

	// Heuristic date scan over the document text. Only fills gaps the
	// model left; a model-supplied date always wins.
	if in.Kind == document.KindText && (rec.ExpiryDate == nil || rec.IssueDate == nil) {
		hints := parse.ScanDates(in.Text)
		if rec.ExpiryDate == nil && hints.Expiry != nil {
			rec.ExpiryDate = hints.Expiry
			notes = append(notes, "expiry recovered by date heuristic")
		}
		if rec.IssueDate == nil && hints.Issue != nil {
			rec.IssueDate = hints.Issue
			notes = append(notes, "issue date recovered by date heuristic")
		}
	}

	// Policy fallback: known permit category plus an issue date yields
	// a computed expiry when the document never stated one.
	if rec.ExpiryDate == nil && rec.IssueDate != nil && rec.LicenseType != nil {
		if d, note, ok := p.calculator.Expiry(*rec.LicenseType, *rec.IssueDate); ok {
			rec.ExpiryDate = &d
			notes = append(notes, note)
		}
	}

	// The classifier is the single source of truth for renewal URLs;
	// whatever the model guessed is discarded.
	rec.RenewalURL = nil
	if rec.LicenseType != nil {
		rec.RenewalURL = p.classifier.Classify(*rec.LicenseType)
	}

	p.gate(&rec, notes)

	p.logger.Info("permits.pipeline.done",
		"path", path,
		"tier", string(res.Tier),
		"needs_review", rec.NeedsReview,
		"has_expiry", rec.ExpiryDate != nil,
	)
	return rec, nil
}

// assemble converts the recovered string fields into typed values,
// dropping dates that fail strict parsing.
func (p *Processor) assemble(f llm.PermitFields) (ExtractedRecord, []string) {
	rec := ExtractedRecord{
		LicenseType:   f.LicenseType,
		LicenseNumber: f.LicenseNo,
		IssuedBy:      f.IssuedBy,
	}
	var notes []string
	if f.IssueDate != nil {
		if d, err := entity.ParseYMD(*f.IssueDate); err == nil {
			rec.IssueDate = &d
		} else {
			notes = append(notes, "model issue date unparseable, dropped")
		}
	}
	if f.ExpiryDate != nil {
		if d, err := entity.ParseYMD(*f.ExpiryDate); err == nil {
			rec.ExpiryDate = &d
		} else {
			notes = append(notes, "model expiry date unparseable, dropped")
		}
	}
	return rec, notes
}

// gate finalizes the record: a missing expiry is the one condition that
// forces human review, because expiry is the field the rest of the
// system cannot operate without.
func (p *Processor) gate(rec *ExtractedRecord, notes []string) {
	rec.NeedsReview = rec.ExpiryDate == nil
	if rec.NeedsReview {
		notes = append(notes, "no expiry date found, review required")
	}
	rec.InferenceNotes = strings.Join(notes, "; ")
}
