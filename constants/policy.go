package constants

// ValidityRule maps a license-type keyword (matched as a substring of
// the uppercased license type) to a validity term in whole years.
// DefaultValidityRules is checked in order; the first match wins.
type ValidityRule struct {
	Keyword string
	Years   int
}

var DefaultValidityRules = []ValidityRule{
	{Keyword: "TOBACCO", Years: 1},
	{Keyword: "MOTOR VEHICLE REPAIR", Years: 1},
	{Keyword: "OPERATING", Years: 1},
	{Keyword: "BUSINESS LICENSE", Years: 1},
	{Keyword: "FIRE SAFETY", Years: 3},
	{Keyword: "ENVIRONMENTAL", Years: 3},
}

// RenewalRule maps a license-type keyword to the renewal portal URL for
// that license family. The classifier walks DefaultRenewalRules in
// order and the first match wins; its output always replaces whatever
// URL the extraction model proposed.
type RenewalRule struct {
	Keywords []string
	URL      string
}

var DefaultRenewalRules = []RenewalRule{
	{
		Keywords: []string{"MOTOR VEHICLE"},
		URL:      "https://www.pa.gov/agencies/dos/programs/vehicle-dealers/renew-motor-vehicle-repair-license.html",
	},
	{
		Keywords: []string{"SCALES", "SCANNER", "WEIGHTS", "MEASURES"},
		URL:      "https://www.phila.gov/services/permits-violations-licenses/get-a-license/business-licenses/scales-and-scanners/",
	},
	{
		Keywords: []string{"COMMERCIAL ACTIVITY"},
		URL:      "https://www.phila.gov/services/payments-assistance-taxes/taxes/business-taxes/commercial-activity-license/",
	},
	{
		Keywords: []string{"AIR POLLUTION", "AIR MANAGEMENT"},
		URL:      "https://www.phila.gov/departments/department-of-public-health/environment/air-quality/",
	},
	{
		Keywords: []string{"AMUSEMENT", "FOOD", "HAZARDOUS", "HAZMAT"},
		URL:      "https://www.phila.gov/services/permits-violations-licenses/get-a-license/business-licenses/",
	},
	{
		Keywords: []string{"TOBACCO", "SALES TAX", "RETAIL"},
		URL:      "https://mypath.pa.gov/",
	},
	{
		Keywords: []string{"UNDERGROUND STORAGE", "STORAGE TANK"},
		URL:      "https://www.pa.gov/agencies/dep/programs-and-services/storage-tanks.html",
	},
}
