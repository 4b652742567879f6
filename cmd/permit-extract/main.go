// Command permit-extract runs the extraction pipeline on a single
// document and prints the resulting record as JSON, without touching
// the database. Useful for tuning prompts and heuristics.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/facilityhub/permit-tracker/constants"
	"github.com/facilityhub/permit-tracker/internal/common"
	"github.com/facilityhub/permit-tracker/internal/document"
	"github.com/facilityhub/permit-tracker/internal/entity"
	"github.com/facilityhub/permit-tracker/internal/llm/openai"
	"github.com/facilityhub/permit-tracker/internal/pipeline"
	"github.com/facilityhub/permit-tracker/internal/policy"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "permit-extract <file.pdf|jpg|png>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	extractor, err := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.VisionModel,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)
	if err != nil {
		logger.Error("configuring extraction client", "error", err)
		os.Exit(1)
	}

	normalizer := document.NewNormalizer(document.Config{
		Pdftotext:     cfg.OCR.Pdftotext,
		Pdftoppm:      cfg.OCR.Pdftoppm,
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		DPI:           cfg.OCR.DPI,
		MaxOCRPages:   cfg.OCR.MaxOCRPages,
	}, logger)
	proc := pipeline.NewProcessor(logger, normalizer, extractor,
		policy.NewCalculator(constants.DefaultValidityRules, logger),
		policy.NewRenewalClassifier(constants.DefaultRenewalRules, logger))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rec, err := proc.Extract(ctx, path)
	if err != nil {
		logger.Error("extraction failed", "path", path, "error", err)
		os.Exit(1)
	}

	out := rec.Suggested()
	out["needs_review"] = rec.NeedsReview
	out["inference_notes"] = rec.InferenceNotes
	if rec.ExpiryDate != nil {
		out["expiry_date"] = entity.FormatYMD(*rec.ExpiryDate)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
