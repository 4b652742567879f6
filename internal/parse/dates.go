package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateHints carries dates recovered by the keyword scan. Either side
// may be nil; callers use hints only to backfill fields the model and
// sanitizer missed.
type DateHints struct {
	Issue  *time.Time
	Expiry *time.Time
}

var (
	reExpiryKeyword = regexp.MustCompile(`(?i)\b(expir(y|ation|es)|valid\s+(until|thru|through)|through|not\s+after)\b`)
	reIssueKeyword  = regexp.MustCompile(`(?i)\b(issued?|effective|date\s+issued)\b`)

	// date-shape patterns, in priority order
	reNumericTriple = regexp.MustCompile(`\b(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2,4})\b`)
	reISOTriple     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	reDayMonthYear  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?,?\s+(\d{4})\b`)
	reMonthDayYear  = regexp.MustCompile(`(?i)\b(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ScanDates runs the keyword pass over raw document text. It applies
// only to text extractions; image pipelines have no raw text to scan.
// Best-effort by contract: malformed candidates are discarded silently
// and the scan never fails.
func ScanDates(text string) DateHints {
	var hints DateHints
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		if hints.Expiry == nil && reExpiryKeyword.MatchString(line) {
			window := contextWindow(lines, i)
			// the last match favors dates that follow the keyword
			if dates := datesInWindow(window); len(dates) > 0 {
				d := dates[len(dates)-1]
				hints.Expiry = &d
			}
		}
		if hints.Issue == nil && reIssueKeyword.MatchString(line) {
			window := contextWindow(lines, i)
			// the first match favors the earliest date in reading order
			if dates := datesInWindow(window); len(dates) > 0 {
				d := dates[0]
				hints.Issue = &d
			}
		}
		if hints.Issue != nil && hints.Expiry != nil {
			break
		}
	}
	return hints
}

// contextWindow joins a 3-line window centered on the keyword line.
func contextWindow(lines []string, i int) string {
	lo := i - 1
	if lo < 0 {
		lo = 0
	}
	hi := i + 2
	if hi > len(lines) {
		hi = len(lines)
	}
	return strings.Join(lines[lo:hi], "\n")
}

// datesInWindow tries the date-shape patterns in priority order and
// returns the normalized dates of the first pattern with any matches,
// in document order.
func datesInWindow(window string) []time.Time {
	if ms := reNumericTriple.FindAllStringSubmatch(window, -1); len(ms) > 0 {
		if dates := normalizeAll(ms, atoiTriple); len(dates) > 0 {
			return dates
		}
	}
	if ms := reISOTriple.FindAllStringSubmatch(window, -1); len(ms) > 0 {
		if dates := normalizeAll(ms, atoiTriple); len(dates) > 0 {
			return dates
		}
	}
	if ms := reDayMonthYear.FindAllStringSubmatch(window, -1); len(ms) > 0 {
		var out []time.Time
		for _, m := range ms {
			day, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[3])
			if d, ok := buildDate(year, monthsByPrefix[strings.ToLower(m[2])], day); ok {
				out = append(out, d)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	if ms := reMonthDayYear.FindAllStringSubmatch(window, -1); len(ms) > 0 {
		var out []time.Time
		for _, m := range ms {
			day, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			if d, ok := buildDate(year, monthsByPrefix[strings.ToLower(m[1])], day); ok {
				out = append(out, d)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func normalizeAll(ms [][]string, conv func([]string) (int, int, int)) []time.Time {
	var out []time.Time
	for _, m := range ms {
		a, b, c := conv(m)
		if d, ok := NormalizeTriple(a, b, c); ok {
			out = append(out, d)
		}
	}
	return out
}

func atoiTriple(m []string) (int, int, int) {
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	c, _ := strconv.Atoi(m[3])
	return a, b, c
}

// NormalizeTriple disambiguates an ambiguous numeric date triple.
// Whichever component is >1900 is the year; of the remaining two, a
// first component >12 must be the day, otherwise the pair reads
// month-then-day. Two-digit year components are taken as 20xx.
func NormalizeTriple(a, b, c int) (time.Time, bool) {
	nums := []int{a, b, c}
	yearIdx := -1
	for i, n := range nums {
		if n > 1900 {
			yearIdx = i
			break
		}
	}
	if yearIdx == -1 {
		// no unambiguous year; accept a trailing two-digit year
		if c < 100 {
			nums[2] += 2000
			yearIdx = 2
		} else {
			return time.Time{}, false
		}
	}
	year := nums[yearIdx]
	rest := make([]int, 0, 2)
	for i, n := range nums {
		if i != yearIdx {
			rest = append(rest, n)
		}
	}
	month, day := rest[0], rest[1]
	if month > 12 {
		month, day = day, month
	}
	return buildDate(year, time.Month(month), day)
}

// buildDate validates via round-trip: time.Date normalizes overflow
// (e.g. Feb 30 → Mar 2), so any drift means the candidate was not a
// real calendar date.
func buildDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
