package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_DirectJSON(t *testing.T) {
	s := NewSanitizer(nil)

	raw := "```json\n{\n  \"license_type\": \"Tobacco Retailer\",\n  \"license_no\": \"TOB-2024-5\",\n  \"issue_date\": \"2024-06-01\",\n  \"expiry_date\": \"2025-06-01\",\n  \"issued_by\": \"Department of Revenue\",\n  \"renewal_url\": null,\n}\n```"

	res := s.Recover(raw)
	assert.Equal(t, TierDirect, res.Tier)
	require.NotNil(t, res.Fields.LicenseNo)
	assert.Equal(t, "TOB-2024-5", *res.Fields.LicenseNo)
	require.NotNil(t, res.Fields.ExpiryDate)
	assert.Equal(t, "2025-06-01", *res.Fields.ExpiryDate)
	assert.Nil(t, res.Fields.RenewalURL)
}

func TestRecover_DirectJSON_MalformedDateDropped(t *testing.T) {
	s := NewSanitizer(nil)

	raw := `{"license_type": "Operating Permit", "license_no": "OP-1", "issue_date": "June 2024", "expiry_date": "2025-01-31", "issued_by": null, "renewal_url": null}`

	res := s.Recover(raw)
	assert.Equal(t, TierDirect, res.Tier)
	assert.Nil(t, res.Fields.IssueDate, "non-ISO date must degrade to null, not fail the tier")
	require.NotNil(t, res.Fields.ExpiryDate)
	assert.Equal(t, "2025-01-31", *res.Fields.ExpiryDate)
}

func TestRecover_BracketFallback(t *testing.T) {
	s := NewSanitizer(nil)

	// The stray braces after the object make the first-to-last-brace
	// slice invalid JSON, forcing the bracket tier.
	raw := `Sure! Here is the extraction: {"license_type": "Fire Safety Permit", "license_no": "FS-77", "issue_date": "2024-01-01", "expiry_date": null, "issued_by": "Fire Department", "renewal_url": null} Reach out via {support} with questions.`

	res := s.Recover(raw)
	assert.Equal(t, TierBracket, res.Tier)
	require.NotNil(t, res.Fields.LicenseType)
	assert.Equal(t, "Fire Safety Permit", *res.Fields.LicenseType)
	assert.Nil(t, res.Fields.ExpiryDate)
}

func TestRecover_ManualExtraction(t *testing.T) {
	s := NewSanitizer(nil)

	raw := "The permit bearing License No: APL16-000083 was issued on 2016-04-12 and remains valid until 2017-04-12 according to city records."

	res := s.Recover(raw)
	assert.Equal(t, TierManual, res.Tier)
	require.NotNil(t, res.Fields.LicenseNo)
	assert.Equal(t, "APL16-000083", *res.Fields.LicenseNo)
	require.NotNil(t, res.Fields.IssueDate)
	assert.Equal(t, "2016-04-12", *res.Fields.IssueDate)
	require.NotNil(t, res.Fields.ExpiryDate)
	assert.Equal(t, "2017-04-12", *res.Fields.ExpiryDate)
}

func TestRecover_ManualSingleDateIsExpiry(t *testing.T) {
	s := NewSanitizer(nil)

	res := s.Recover("no structure here at all, just a date 2026-03-31 in prose")
	assert.Equal(t, TierManual, res.Tier)
	assert.Nil(t, res.Fields.IssueDate)
	require.NotNil(t, res.Fields.ExpiryDate)
	assert.Equal(t, "2026-03-31", *res.Fields.ExpiryDate)
}

func TestRecover_ManualEmptyInput(t *testing.T) {
	s := NewSanitizer(nil)

	res := s.Recover("")
	assert.Equal(t, TierManual, res.Tier)
	assert.Nil(t, res.Fields.LicenseType)
	assert.Nil(t, res.Fields.ExpiryDate)
}
