package parse

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/facilityhub/permit-tracker/internal/llm"
)

// Tier names the recovery strategy that produced a field map. Stored in
// provenance notes so reviewers can see how far the parser had to reach.
type Tier string

const (
	TierDirect  Tier = "direct_json"
	TierBracket Tier = "bracket_regex"
	TierManual  Tier = "manual_fields"
)

// Result is the sanitizer's output: a best-effort field map plus the
// tier that produced it. Absent fields are nil, never omitted; there is
// no failure mode; the manual tier always yields a (possibly empty)
// result.
type Result struct {
	Fields llm.PermitFields
	Tier   Tier
}

// Sanitizer recovers a structured field map from the model's raw text
// output via three strictly ordered tiers, falling through only when
// the prior tier fails.
type Sanitizer struct {
	schema map[string]any
	logger *slog.Logger
}

func NewSanitizer(logger *slog.Logger) *Sanitizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sanitizer{schema: llm.BuildPermitJSONSchema(), logger: logger}
}

var (
	reFenceOpen  = regexp.MustCompile("(?s)^```(?:json)?\\s*")
	reFenceClose = regexp.MustCompile("(?s)\\s*```\\s*$")
	// trailing comma before a closing brace/bracket
	reTrailingComma = regexp.MustCompile(`,\s*([}\]])`)
	// first brace-delimited substring with a minimal JSON-object shape
	reBracketObject = regexp.MustCompile(`\{[^{}]*\}`)

	reQuotedNo = regexp.MustCompile(`"license_no"\s*:\s*"([^"]+)"`)
	reLabelNo  = regexp.MustCompile(`(?i)(?:license|permit)\s*(?:#|no\.?|number)\s*:?\s*([A-Z0-9][A-Z0-9\-/]{2,})`)
	reISODate  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

	reQuotedType = regexp.MustCompile(`"license_type"\s*:\s*"([^"]*)"`)
	reQuotedBy   = regexp.MustCompile(`"issued_by"\s*:\s*"([^"]*)"`)
	reQuotedURL  = regexp.MustCompile(`"renewal_url"\s*:\s*"([^"]*)"`)

	reDateShaped = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Recover runs the tiers in order and returns the first success. It
// never returns an error: unparseable content degrades to whatever the
// manual tier can scrape out.
func (s *Sanitizer) Recover(raw string) Result {
	if fields, ok := s.directParse(raw); ok {
		return Result{Fields: fields, Tier: TierDirect}
	}
	if fields, ok := s.bracketExtract(raw); ok {
		s.logger.Warn("permits.parse.tier_fallback", "tier", string(TierBracket))
		return Result{Fields: fields, Tier: TierBracket}
	}
	s.logger.Warn("permits.parse.tier_fallback", "tier", string(TierManual))
	return Result{Fields: s.manualExtract(raw), Tier: TierManual}
}

// directParse strips Markdown code fences, trims to the outermost
// braces, repairs trailing commas, and parses the remainder as JSON.
func (s *Sanitizer) directParse(raw string) (llm.PermitFields, bool) {
	content := strings.TrimSpace(raw)
	content = reFenceOpen.ReplaceAllString(content, "")
	content = reFenceClose.ReplaceAllString(content, "")

	first := strings.Index(content, "{")
	last := strings.LastIndex(content, "}")
	if first < 0 || last <= first {
		return llm.PermitFields{}, false
	}
	content = content[first : last+1]
	content = reTrailingComma.ReplaceAllString(content, "$1")

	return s.parseObject(content)
}

// bracketExtract searches for the first brace-delimited substring with
// a minimal JSON-object shape and parses that.
func (s *Sanitizer) bracketExtract(raw string) (llm.PermitFields, bool) {
	m := reBracketObject.FindString(raw)
	if m == "" {
		return llm.PermitFields{}, false
	}
	return s.parseObject(reTrailingComma.ReplaceAllString(m, "$1"))
}

// parseObject decodes a candidate JSON object, discards keys outside
// the contract, nulls malformed date values, and schema-checks the
// outcome. A decode failure fails the tier; a malformed date does not.
// That is "field absent", not "tier broken".
func (s *Sanitizer) parseObject(content string) (llm.PermitFields, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return llm.PermitFields{}, false
	}

	cleaned := make(map[string]any, len(llm.FieldKeys))
	for _, k := range llm.FieldKeys {
		v, ok := m[k]
		if !ok || v == nil {
			cleaned[k] = nil
			continue
		}
		str, ok := v.(string)
		if !ok {
			cleaned[k] = nil
			continue
		}
		str = strings.TrimSpace(str)
		if str == "" || strings.EqualFold(str, "null") {
			cleaned[k] = nil
			continue
		}
		if (k == "issue_date" || k == "expiry_date") && !reDateShaped.MatchString(str) {
			s.logger.Warn("permits.parse.date_dropped", "key", k, "value", str)
			cleaned[k] = nil
			continue
		}
		cleaned[k] = str
	}

	b, err := json.Marshal(cleaned)
	if err != nil {
		return llm.PermitFields{}, false
	}
	if err := llm.ValidateJSONAgainstSchema(s.schema, b); err != nil {
		s.logger.Warn("permits.parse.schema_rejected", "error", err)
		return llm.PermitFields{}, false
	}

	var fields llm.PermitFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return llm.PermitFields{}, false
	}
	return fields, true
}

// manualExtract applies per-field regexes straight against the raw
// content. Two ISO-shaped dates in document order are read as
// issue/expiry; a single date alone is taken as the expiry only.
func (s *Sanitizer) manualExtract(raw string) llm.PermitFields {
	var fields llm.PermitFields

	if m := reQuotedNo.FindStringSubmatch(raw); m != nil {
		fields.LicenseNo = strPtr(m[1])
	} else if m := reLabelNo.FindStringSubmatch(raw); m != nil {
		fields.LicenseNo = strPtr(m[1])
	}

	dates := reISODate.FindAllString(raw, -1)
	switch {
	case len(dates) >= 2:
		fields.IssueDate = strPtr(dates[0])
		fields.ExpiryDate = strPtr(dates[1])
	case len(dates) == 1:
		fields.ExpiryDate = strPtr(dates[0])
	}

	if m := reQuotedType.FindStringSubmatch(raw); m != nil && m[1] != "" {
		fields.LicenseType = strPtr(m[1])
	}
	if m := reQuotedBy.FindStringSubmatch(raw); m != nil && m[1] != "" {
		fields.IssuedBy = strPtr(m[1])
	}
	if m := reQuotedURL.FindStringSubmatch(raw); m != nil && m[1] != "" {
		fields.RenewalURL = strPtr(m[1])
	}

	return fields
}

func strPtr(s string) *string { return &s }
