package openai

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/facilityhub/permit-tracker/internal/common"
)

// Config for the OpenAI-compatible extraction client.
type Config struct {
	APIKey      string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // text extractions, e.g. "gpt-4o-mini"
	VisionModel string        // image extractions, e.g. "gpt-4o"
	Timeout     time.Duration // http client timeout
	MaxTokens   int           // output token budget per call
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// NewClient builds the extraction client. A missing API key is a
// startup-time configuration error, not a per-request condition.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key", common.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4o"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}, nil
}
