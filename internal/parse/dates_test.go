package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestScanDates_ExpiryKeyword(t *testing.T) {
	text := "CITY OF PHILADELPHIA\nTobacco Retailer Permit\nValid Through: 03/15/2025\nDisplay prominently at point of sale"

	hints := ScanDates(text)
	require.NotNil(t, hints.Expiry)
	assert.Equal(t, d(2025, time.March, 15), *hints.Expiry)
}

func TestScanDates_IssueAndExpiry(t *testing.T) {
	text := "Permit No: OP-2024-18\nDate Issued: 01/10/2024\nsome unrelated line\nExpiration Date: 01/10/2025\n"

	hints := ScanDates(text)
	require.NotNil(t, hints.Issue)
	assert.Equal(t, d(2024, time.January, 10), *hints.Issue)
	require.NotNil(t, hints.Expiry)
	assert.Equal(t, d(2025, time.January, 10), *hints.Expiry)
}

func TestScanDates_AdjacentLineWindow(t *testing.T) {
	// The date sits on the line after the keyword; the 3-line window
	// must still pick it up.
	text := "This permit expires\n15 March 2025\n"

	hints := ScanDates(text)
	require.NotNil(t, hints.Expiry)
	assert.Equal(t, d(2025, time.March, 15), *hints.Expiry)
}

func TestScanDates_NoKeywordNoHints(t *testing.T) {
	hints := ScanDates("just an invoice dated 04/01/2024 with no permit language")
	assert.Nil(t, hints.Expiry)
}

func TestScanDates_KeywordsMatchWholeWordsOnly(t *testing.T) {
	// "tissue" and "reissued" embed the keywords but are not them.
	text := "tissue sample collected 04/01/2024\npermit reissued forms pending 05/01/2024\n"

	hints := ScanDates(text)
	assert.Nil(t, hints.Issue)
	assert.Nil(t, hints.Expiry)
}

func TestNormalizeTriple(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c int
		want    time.Time
		ok      bool
	}{
		{"year first", 2025, 3, 15, d(2025, time.March, 15), true},
		{"year last day first", 15, 3, 2025, d(2025, time.March, 15), true},
		{"year last month first", 3, 15, 2025, d(2025, time.March, 15), true},
		{"two digit year", 3, 15, 25, d(2025, time.March, 15), true},
		{"unambiguous day over 12", 2025, 14, 7, d(2025, time.July, 14), true},
		{"impossible date", 2025, 2, 30, time.Time{}, false},
		{"no year at all reads month day", 5, 6, 7, d(2007, time.May, 6), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTriple(tt.a, tt.b, tt.c)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
