package document

// Kind discriminates the two normalized payload shapes handed to the
// extraction model.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Quality records which PDF path produced the text payload.
type Quality string

const (
	QualityText Quality = "text"
	QualityOCR  Quality = "ocr"
)

// ExtractionInput is the normalized form of one uploaded document. It
// exists only for the duration of a single extraction call. Text inputs
// carry the (bounded) document text; image inputs carry a flattened
// JPEG payload.
type ExtractionInput struct {
	Kind      Kind
	Text      string
	PageCount int
	Quality   Quality
	Image     []byte
}

// Provenance is a short label for inference notes, e.g. "pdf_text(ocr)"
// or "image".
func (in ExtractionInput) Provenance() string {
	if in.Kind == KindImage {
		return "image"
	}
	return "pdf_text(" + string(in.Quality) + ")"
}
