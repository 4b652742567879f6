package llm

import (
	"strings"
	"unicode/utf8"
)

// PromptVersion tags the instruction contract sent with every call.
// Bump it whenever ExtractionPrompt changes so stored provenance stays
// attributable to the exact wording that produced it.
const PromptVersion = "permit-extract/v1"

// ExtractionPrompt is the single fixed instruction contract for the
// extraction model. It requests a flat JSON object with exactly the
// keys in FieldKeys; dates in YYYY-MM-DD; null for anything absent.
const ExtractionPrompt = `You are an expert data extraction system for official documents.
Analyze the provided permit or license and extract the following fields.
Respond ONLY with a single, clean JSON object.

1.  **license_type**: Identify the main title or type of the document (e.g., "Operating Permit", "Tobacco License").
2.  **license_no**: Find the primary identifier, labeled as "License #", "Permit No.", etc.
3.  **issue_date**: Find the date of issue. Format it as YYYY-MM-DD. If not available, return null.
4.  **expiry_date**: Find the expiration date. Format it as YYYY-MM-DD. Always attempt this field; return null only if no expiration appears anywhere.
5.  **issued_by**: Identify the issuing authority or department.
6.  **renewal_url**: If the document names a renewal website, return it; otherwise return null.

Example JSON Response:
{
  "license_type": "Air Pollution License",
  "license_no": "APL16-000083",
  "issue_date": "2021-10-01",
  "expiry_date": "2021-10-31",
  "issued_by": "CITY OF PHILADELPHIA DEPARTMENT OF PUBLIC HEALTH",
  "renewal_url": null
}`

// maxPromptTextChars bounds how much document text rides along with the
// prompt on text extractions.
const maxPromptTextChars = 12000

// BuildTextPrompt appends bounded document text to the contract prompt.
func BuildTextPrompt(docText string) string {
	var b strings.Builder
	b.WriteString(ExtractionPrompt)
	b.WriteString("\n\nExtract information from the following document text:\n")
	if len(docText) > maxPromptTextChars {
		cut := maxPromptTextChars
		// never split a multi-byte rune
		for cut > 0 && !utf8.RuneStart(docText[cut]) {
			cut--
		}
		b.WriteString(docText[:cut])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(docText)
	}
	return b.String()
}
