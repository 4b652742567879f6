package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilityhub/permit-tracker/internal/common"
)

// stubRunner answers each binary with canned output.
type stubRunner struct {
	outputs map[string][]byte
	errs    map[string]error
}

func (s stubRunner) Run(_ context.Context, name string, _ ...string) ([]byte, []byte, error) {
	if err, ok := s.errs[name]; ok {
		return nil, []byte("stub failure"), err
	}
	return s.outputs[name], nil, nil
}

func writeTempFile(t *testing.T, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, contents, 0o600))
	return path
}

func TestNormalize_PDFTextLayer(t *testing.T) {
	body := strings.Repeat("Tobacco Retailer Permit No TOB-2024-5. ", 10)
	n := NewNormalizer(Config{}, nil).WithRunner(stubRunner{
		outputs: map[string][]byte{"pdftotext": []byte(body + "\fpage two")},
	})

	in, err := n.Normalize(context.Background(), writeTempFile(t, "permit.pdf", []byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.Equal(t, KindText, in.Kind)
	assert.Equal(t, QualityText, in.Quality)
	assert.Equal(t, 2, in.PageCount)
	assert.Contains(t, in.Text, "TOB-2024-5")
	assert.Equal(t, "pdf_text(text)", in.Provenance())
}

func TestNormalize_SparseTextKeptWhenOCRUnavailable(t *testing.T) {
	n := NewNormalizer(Config{}, nil).WithRunner(stubRunner{
		outputs: map[string][]byte{"pdftotext": []byte("P-1")},
		errs:    map[string]error{"pdftoppm": errors.New("binary not found")},
	})

	in, err := n.Normalize(context.Background(), writeTempFile(t, "scan.pdf", []byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.Equal(t, QualityText, in.Quality)
	assert.Equal(t, "P-1", in.Text)
}

func TestNormalize_TruncatesLongText(t *testing.T) {
	long := strings.Repeat("x", MaxTextChars+500)
	n := NewNormalizer(Config{}, nil).WithRunner(stubRunner{
		outputs: map[string][]byte{"pdftotext": []byte(long)},
	})

	in, err := n.Normalize(context.Background(), writeTempFile(t, "long.pdf", []byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(in.Text, TruncationMarker))
	assert.Equal(t, MaxTextChars+len(TruncationMarker), len(in.Text))
}

func TestNormalize_TruncationKeepsRunesIntact(t *testing.T) {
	// One leading ASCII byte shifts every two-byte rune off the cut
	// point, so a naive byte slice would split a rune in half.
	long := "x" + strings.Repeat("é", MaxTextChars)
	n := NewNormalizer(Config{}, nil).WithRunner(stubRunner{
		outputs: map[string][]byte{"pdftotext": []byte(long)},
	})

	in, err := n.Normalize(context.Background(), writeTempFile(t, "long.pdf", []byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(in.Text, TruncationMarker))
	assert.True(t, utf8.ValidString(in.Text))
	assert.LessOrEqual(t, len(in.Text), MaxTextChars+len(TruncationMarker))
}

func TestNormalize_UnsupportedExtension(t *testing.T) {
	n := NewNormalizer(Config{}, nil)

	_, err := n.Normalize(context.Background(), writeTempFile(t, "permit.docx", []byte("junk")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnsupportedFileType))
}

func TestNormalize_PDFToolFailure(t *testing.T) {
	n := NewNormalizer(Config{}, nil).WithRunner(stubRunner{
		errs: map[string]error{"pdftotext": fmt.Errorf("exit status 1")},
	})

	_, err := n.Normalize(context.Background(), writeTempFile(t, "broken.pdf", []byte("%PDF-1.4")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext")
}
