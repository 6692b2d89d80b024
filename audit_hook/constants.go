package audithook

// Action constants for audit events.
const (
	// Engine actions
	ActionEngineStarted = "engine.started"
	ActionEngineStopped = "engine.stopped"

	// Operator actions
	ActionPriceChanged = "price.changed"
	ActionTimeAdvanced = "time.advanced"

	// Purchase actions
	ActionTopOffAccepted = "topoff.accepted"
	ActionTopOffRejected = "topoff.rejected"

	// Settlement actions
	ActionCollected     = "settlement.collected"
	ActionSweepDeferred = "settlement.deferred"

	// Persistence actions
	ActionCheckpointSaved  = "checkpoint.saved"
	ActionCheckpointFailed = "checkpoint.failed"
)

// Resource constants for audit events.
const (
	ResourceEngine       = "engine"
	ResourcePrice        = "price"
	ResourceClock        = "clock"
	ResourceSubscription = "subscription"
	ResourceSettlement   = "settlement"
	ResourceSnapshot     = "snapshot"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryOperations   = "operations"
	CategoryPersistence  = "persistence"
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
