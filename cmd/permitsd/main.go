package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/facilityhub/permit-tracker/internal/async"
	"github.com/facilityhub/permit-tracker/internal/common"
	"github.com/facilityhub/permit-tracker/internal/document"
	"github.com/facilityhub/permit-tracker/internal/export"
	"github.com/facilityhub/permit-tracker/internal/ingest"
	"github.com/facilityhub/permit-tracker/internal/lifecycle"
	"github.com/facilityhub/permit-tracker/internal/llm/openai"
	"github.com/facilityhub/permit-tracker/internal/pipeline"
	"github.com/facilityhub/permit-tracker/internal/policy"
	"github.com/facilityhub/permit-tracker/internal/repository"
	"github.com/facilityhub/permit-tracker/internal/server"
	"github.com/facilityhub/permit-tracker/internal/storage"

	"github.com/facilityhub/permit-tracker/constants"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.Migrate(ctx, pool, logger); err != nil {
		logger.Error("running migrations", "error", err)
		os.Exit(1)
	}

	var archive storage.Archive
	if cfg.Storage.Endpoint != "" {
		archive, err = storage.NewMinioArchive(cfg.Storage)
		if err != nil {
			logger.Error("connecting to object storage", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("object storage not configured, documents will not be archived")
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
	calculator := policy.NewCalculator(constants.DefaultValidityRules, logger)
	classifier := policy.NewRenewalClassifier(constants.DefaultRenewalRules, logger)
	processor := pipeline.NewProcessor(logger, normalizer, extractor, calculator, classifier)

	permits := repository.NewPermitRepository(pool, logger)
	manager := lifecycle.NewManager(permits, logger)
	exporter := export.NewService(permits, logger)

	if cfg.Watch.Root != "" {
		svc := ingest.NewService(processor, manager, logger)
		queue := async.NewWorkerQueue(svc.HandleJob, logger,
			async.WithWorkers(cfg.Watch.Workers),
			async.WithQueueSize(cfg.Watch.QueueSize),
		)
		go func() {
			if err := svc.Run(ctx, ingest.WatchConfig{
				Root:        cfg.Watch.Root,
				InitialScan: cfg.Watch.InitialScan,
				Debounce:    cfg.Watch.Debounce,
			}, queue); err != nil {
				logger.Error("drop folder ingest stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			queue.Shutdown(shutdownCtx)
		}()
	}

	handler := server.NewPermitHandler(processor, manager, permits, exporter, archive, cfg.Server.MaxUploadBytes, logger)
	srv := server.New(cfg.Server, handler, pool, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
