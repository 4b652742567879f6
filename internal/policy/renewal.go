package policy

import (
	"log/slog"
	"strings"

	"github.com/facilityhub/permit-tracker/constants"
)

// RenewalClassifier maps a license type to its renewal portal URL via
// an ordered keyword table. It is code-owned and never model-trusted:
// its answer unconditionally replaces whatever renewal_url the
// extraction model proposed, because the model's free-text guesses were
// found unreliable.
type RenewalClassifier struct {
	rules  []constants.RenewalRule
	logger *slog.Logger
}

func NewRenewalClassifier(rules []constants.RenewalRule, logger *slog.Logger) *RenewalClassifier {
	if rules == nil {
		rules = constants.DefaultRenewalRules
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RenewalClassifier{rules: rules, logger: logger}
}

// Classify returns the portal URL for the first rule with a keyword
// occurring in the uppercased license type, or nil when nothing
// matches.
func (c *RenewalClassifier) Classify(licenseType string) *string {
	upper := strings.ToUpper(strings.TrimSpace(licenseType))
	if upper == "" {
		return nil
	}
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(upper, kw) {
				url := r.URL
				c.logger.Debug("permits.policy.renewal_url", "keyword", kw, "url", url)
				return &url
			}
		}
	}
	return nil
}
