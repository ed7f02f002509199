// Package plugin provides an extensible plugin system for Punchcard.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import "context"

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Catalog lifecycle hooks
// ──────────────────────────────────────────────────

// OnDefinitionCreated is called when a new package definition is created.
type OnDefinitionCreated interface {
	Plugin
	OnDefinitionCreated(ctx context.Context, def interface{}) error
}

// OnDefinitionDeactivated is called when a package definition is withdrawn
// from sale.
type OnDefinitionDeactivated interface {
	Plugin
	OnDefinitionDeactivated(ctx context.Context, defID string) error
}

// ──────────────────────────────────────────────────
// Member package lifecycle hooks
// ──────────────────────────────────────────────────

// OnPackagePurchased is called when a member package is sold.
type OnPackagePurchased interface {
	Plugin
	OnPackagePurchased(ctx context.Context, pkg interface{}) error
}

// OnUnitsDeducted is called after a deduction commits.
type OnUnitsDeducted interface {
	Plugin
	OnUnitsDeducted(ctx context.Context, pkg, deduction interface{}) error
}

// OnPackageDepleted is called when a deduction consumes the last unit.
type OnPackageDepleted interface {
	Plugin
	OnPackageDepleted(ctx context.Context, pkg interface{}) error
}

// OnPackageExpired is called when the expiry sweep transitions a package.
type OnPackageExpired interface {
	Plugin
	OnPackageExpired(ctx context.Context, pkg interface{}) error
}

// OnPackageCancelled is called after a cancellation commits.
type OnPackageCancelled interface {
	Plugin
	OnPackageCancelled(ctx context.Context, pkg, result interface{}) error
}

// OnCoverageMissed is called when a deduction finds no covering package
// and the caller will fall back to a billable line item.
type OnCoverageMissed interface {
	Plugin
	OnCoverageMissed(ctx context.Context, orgID, memberID, itemKind string) error
}

// ──────────────────────────────────────────────────
// Refund lifecycle hooks
// ──────────────────────────────────────────────────

// OnRefundCreated is called after an external refund is both created at
// the processor and recorded locally.
type OnRefundCreated interface {
	Plugin
	OnRefundCreated(ctx context.Context, intent, entry interface{}) error
}

// OnReconciliationRecorded is called when a refund reconciliation record
// is written: money moved (or may have) without a matching local record.
type OnReconciliationRecorded interface {
	Plugin
	OnReconciliationRecorded(ctx context.Context, rec interface{}) error
}
