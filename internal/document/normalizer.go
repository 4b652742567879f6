package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/facilityhub/permit-tracker/constants"
	"github.com/facilityhub/permit-tracker/internal/common"
)

// MaxTextChars bounds the text handed to the extraction model; longer
// documents are cut and marked so downstream notes stay honest.
const MaxTextChars = 15000

// TruncationMarker is appended when normalized text is cut at MaxTextChars.
const TruncationMarker = "\n…(truncated)"

// cutAtRune slices at most max bytes off the front of s, backing up so
// the cut never lands inside a multi-byte rune.
func cutAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// minTextLayerChars is the threshold below which a PDF's text layer is
// assumed to be a scan and the OCR fallback kicks in.
const minTextLayerChars = 100

const jpegQuality = 85

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxOCRPages   int    // pages rasterized for the OCR fallback, default 3
}

// Normalizer turns an uploaded file into an ExtractionInput. Pure apart
// from reading the file and invoking the optional OCR tools; it never
// mutates the source file.
type Normalizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewNormalizer(cfg Config, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MaxOCRPages <= 0 {
		cfg.MaxOCRPages = 3
	}
	return &Normalizer{cfg: cfg, runner: execRunner{}, logger: logger}
}

// WithRunner substitutes the command runner. Tests use this to stub the
// external pdftotext/pdftoppm/tesseract binaries.
func (n *Normalizer) WithRunner(r Runner) *Normalizer {
	n.runner = r
	return n
}

// Normalize picks a strategy based on the file extension. Extensions
// outside pdf/jpg/jpeg/png fail with ErrUnsupportedFileType.
func (n *Normalizer) Normalize(ctx context.Context, path string) (ExtractionInput, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		return n.normalizePDF(ctx, path)
	case constants.IMAGE:
		return n.normalizeImage(path)
	default:
		n.logger.Error("unsupported upload extension", "extension", ext, "path", path)
		return ExtractionInput{}, fmt.Errorf("%w: %q (supported: pdf, jpg, jpeg, png)", common.ErrUnsupportedFileType, ext)
	}
}

// normalizePDF extracts the embedded text layer; when the layer is too
// sparse to be a real text PDF it attempts OCR over the first few pages.
// OCR being unavailable or failing is not an error: whatever text-layer
// output exists is used, however sparse.
func (n *Normalizer) normalizePDF(ctx context.Context, path string) (ExtractionInput, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := n.runner.Run(ctx, n.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return ExtractionInput{}, fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}
	text := string(out)
	pages := 1 + strings.Count(text, "\f")
	quality := QualityText

	if len(strings.TrimSpace(text)) < minTextLayerChars {
		n.logger.Info("pdf text layer sparse, trying ocr fallback",
			"path", path, "text_len", len(strings.TrimSpace(text)), "pages", pages)
		if ocrText, ocrPages, ocrErr := n.pdfToOCR(ctx, path); ocrErr == nil && strings.TrimSpace(ocrText) != "" {
			text = ocrText
			pages = ocrPages
			quality = QualityOCR
		} else if ocrErr != nil {
			n.logger.Warn("ocr fallback unavailable, keeping sparse text layer",
				"path", path, "error", ocrErr)
		}
	}

	text = NormalizeText(text)
	if len(text) > MaxTextChars {
		text = cutAtRune(text, MaxTextChars) + TruncationMarker
	}

	return ExtractionInput{
		Kind:      KindText,
		Text:      text,
		PageCount: pages,
		Quality:   quality,
	}, nil
}

// pdfToOCR rasterizes the first MaxOCRPages pages and runs OCR on each.
func (n *Normalizer) pdfToOCR(ctx context.Context, path string) (string, int, error) {
	tmpDir, err := os.MkdirTemp("", "pt-ocr-*")
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			n.logger.Warn("failed to remove ocr temp dir", "dir", tmpDir, "error", rmErr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f 1 -l <max> -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := n.runner.Run(ctx, n.cfg.Pdftoppm,
		"-f", "1", "-l", fmt.Sprintf("%d", n.cfg.MaxOCRPages),
		"-r", fmt.Sprintf("%d", n.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", 0, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", 0, fmt.Errorf("pdftoppm produced no pages")
	}

	var b strings.Builder
	for _, img := range matches {
		out, errb, err := n.runner.Run(ctx, n.cfg.Tesseract, img, "stdout", "-l", n.cfg.TesseractLang)
		if err != nil {
			n.logger.Warn("tesseract page failed", "page", img, "error", err, "stderr", truncate(string(errb), 512))
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.Write(out)
	}
	return b.String(), len(matches), nil
}

// normalizeImage decodes the upload, flattens any alpha channel onto a
// white background, and re-encodes as JPEG at a fixed quality so every
// image payload hits the model in one predictable shape.
func (n *Normalizer) normalizeImage(path string) (ExtractionInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ExtractionInput{}, fmt.Errorf("read image: %w", err)
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return ExtractionInput{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, bounds, src, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return ExtractionInput{}, fmt.Errorf("encode jpeg: %w", err)
	}

	n.logger.Debug("image normalized",
		"path", path, "in_bytes", len(raw), "out_bytes", buf.Len(),
		"width", bounds.Dx(), "height", bounds.Dy())

	return ExtractionInput{
		Kind:      KindImage,
		Image:     buf.Bytes(),
		PageCount: 1,
	}, nil
}
