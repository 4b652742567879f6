package policy

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/facilityhub/permit-tracker/constants"
)

// Calculator computes a missing expiry date from a known issue date and
// a license-type validity table. The table is immutable data injected
// at construction so tests can substitute alternate policies.
type Calculator struct {
	rules  []constants.ValidityRule
	logger *slog.Logger
}

func NewCalculator(rules []constants.ValidityRule, logger *slog.Logger) *Calculator {
	if rules == nil {
		rules = constants.DefaultValidityRules
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{rules: rules, logger: logger}
}

// Expiry returns issueDate plus the validity term of the first rule
// whose keyword occurs in the uppercased license type, along with a
// note naming the policy that fired. Terms are whole calendar years
// (an annual permit issued Jan 10 expires the following Jan 10). No
// match returns ok=false and leaves the caller's expiry untouched;
// this is the last automatic chance to fill it.
func (c *Calculator) Expiry(licenseType string, issueDate time.Time) (expiry time.Time, note string, ok bool) {
	upper := strings.ToUpper(strings.TrimSpace(licenseType))
	if upper == "" {
		return time.Time{}, "", false
	}
	for _, r := range c.rules {
		if strings.Contains(upper, r.Keyword) {
			expiry = issueDate.AddDate(r.Years, 0, 0)
			note = fmt.Sprintf("expiry computed via policy: %s (%d days)", r.Keyword, r.Years*365)
			c.logger.Info("permits.policy.expiry_fallback",
				"keyword", r.Keyword, "years", r.Years,
				"issue_date", issueDate.Format("2006-01-02"),
				"expiry_date", expiry.Format("2006-01-02"),
			)
			return expiry, note, true
		}
	}
	return time.Time{}, "", false
}
