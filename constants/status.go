package constants

// PermitStatus is derived from (is_active, expiry_date, today) and is
// never stored.
type PermitStatus string

const (
	StatusActive     PermitStatus = "active"
	StatusExpiring   PermitStatus = "expiring"
	StatusExpired    PermitStatus = "expired"
	StatusSuperseded PermitStatus = "superseded"
)

// ExpiringWindowDays is the lead window within which an active permit
// counts as expiring.
const ExpiringWindowDays = 30

// History actions. Free-text column, but writers use these exact strings.
const (
	ActionCreated       = "created"
	ActionRenewed       = "renewed"
	ActionDeactivated   = "deactivated"
	ActionManualEntry   = "created manually"
	ActionDocumentSaved = "document archived"
)
