package audithook

// Action constants for audit events.
const (
	// Catalog actions
	ActionDefinitionCreated     = "definition.created"
	ActionDefinitionDeactivated = "definition.deactivated"

	// Package actions
	ActionPackagePurchased = "package.purchased"
	ActionUnitsDeducted    = "package.units_deducted"
	ActionPackageDepleted  = "package.depleted"
	ActionPackageExpired   = "package.expired"
	ActionPackageCancelled = "package.cancelled"
	ActionCoverageMissed   = "package.coverage_missed"

	// Refund actions
	ActionRefundCreated          = "refund.created"
	ActionReconciliationRecorded = "refund.reconciliation_recorded"
)

// Resource constants for audit events.
const (
	ResourceDefinition     = "definition"
	ResourcePackage        = "package"
	ResourceRefund         = "refund"
	ResourceReconciliation = "reconciliation"
)

// Category constants for audit events.
const (
	CategoryCatalog = "catalog"
	CategoryLedger  = "ledger"
	CategoryPayment = "payment"
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
)
