package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/facilityhub/permit-tracker/internal/common"
	"github.com/facilityhub/permit-tracker/internal/document"
	"github.com/facilityhub/permit-tracker/internal/llm"
)

// ExtractRaw implements llm.Extractor against chat/completions. Calls
// are deterministic (temperature 0) with a bounded output budget; the
// raw message content comes back untouched for the parse tiers.
func (c *Client) ExtractRaw(ctx context.Context, in document.ExtractionInput) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	model := c.cfg.Model
	var messages []map[string]any
	switch in.Kind {
	case document.KindImage:
		model = c.cfg.VisionModel
		dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(in.Image)
		messages = []map[string]any{{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": llm.ExtractionPrompt},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL, "detail": "high"}},
			},
		}}
	default:
		messages = []map[string]any{{
			"role":    "user",
			"content": llm.BuildTextPrompt(in.Text),
		}}
	}

	c.log.Info("permits.extract.start",
		"req_id", rid,
		"model", model,
		"prompt_version", llm.PromptVersion,
		"kind", string(in.Kind),
		"text_len", len(in.Text),
		"image_bytes", len(in.Image),
		"pages", in.PageCount,
	)

	body := map[string]any{
		"model":       model,
		"temperature": 0.0,
		"max_tokens":  c.cfg.MaxTokens,
		"messages":    messages,
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.log)
	if err != nil {
		c.log.Error("permits.extract.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%w: %v", common.ErrExtractionCall, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("permits.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%w: decode response: %v", common.ErrExtractionCall, err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("permits.extract.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%w: no choices in response", common.ErrExtractionCall)
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.log.Info("permits.extract.ok",
		"req_id", rid,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}
