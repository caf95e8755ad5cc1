package audithook

// Action constants for audit events.
const (
	// Entitlement actions
	ActionEntitlementCreated  = "entitlement.created"
	ActionEntitlementUpgraded = "entitlement.upgraded"

	// Metering actions
	ActionCreditConsumed   = "credit.consumed"
	ActionCreditsExhausted = "credits.exhausted"
	ActionAccessDenied     = "access.denied"

	// Purchase actions
	ActionPurchaseStarted    = "purchase.started"
	ActionPurchaseCompleted  = "purchase.completed"
	ActionPurchaseDismissed  = "purchase.dismissed"
	ActionPurchaseFailed     = "purchase.failed"
	ActionPurchaseUnverified = "purchase.unverified"

	// Remote store actions
	ActionRemoteUnavailable = "remote.unavailable"
)

// Resource constants for audit events.
const (
	ResourceEntitlement = "entitlement"
	ResourceCredits     = "credits"
	ResourcePurchase    = "purchase"
	ResourceStore       = "store"
)

// Category constants for audit events.
const (
	CategoryEntitlement = "entitlement"
	CategoryUsage       = "usage"
	CategoryAccess      = "access"
	CategoryPayment     = "payment"
	CategoryIntegration = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
