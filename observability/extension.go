// Package observability provides a metrics extension for Punchcard that
// records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/punchcard/pack"
	"github.com/xraph/punchcard/payment"
	"github.com/xraph/punchcard/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                   = (*MetricsExtension)(nil)
	_ plugin.OnInit                   = (*MetricsExtension)(nil)
	_ plugin.OnDefinitionCreated      = (*MetricsExtension)(nil)
	_ plugin.OnDefinitionDeactivated  = (*MetricsExtension)(nil)
	_ plugin.OnPackagePurchased       = (*MetricsExtension)(nil)
	_ plugin.OnUnitsDeducted          = (*MetricsExtension)(nil)
	_ plugin.OnPackageDepleted        = (*MetricsExtension)(nil)
	_ plugin.OnPackageExpired         = (*MetricsExtension)(nil)
	_ plugin.OnPackageCancelled       = (*MetricsExtension)(nil)
	_ plugin.OnCoverageMissed         = (*MetricsExtension)(nil)
	_ plugin.OnRefundCreated          = (*MetricsExtension)(nil)
	_ plugin.OnReconciliationRecorded = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an Engine plugin to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Catalog metrics
	DefinitionCreated     Counter
	DefinitionDeactivated Counter

	// Package metrics
	PackagePurchased Counter
	UnitsDeducted    Counter
	PackageDepleted  Counter
	PackageExpired   Counter
	PackageCancelled Counter
	CoverageMissed   Counter
	RemainingUnits   Histogram

	// Refund metrics
	RefundCreated           Counter
	RefundAmount            Histogram
	ReconciliationsRecorded Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Catalog metrics
		DefinitionCreated:     factory.Counter("punchcard.definition.created"),
		DefinitionDeactivated: factory.Counter("punchcard.definition.deactivated"),

		// Package metrics
		PackagePurchased: factory.Counter("punchcard.package.purchased"),
		UnitsDeducted:    factory.Counter("punchcard.package.units_deducted"),
		PackageDepleted:  factory.Counter("punchcard.package.depleted"),
		PackageExpired:   factory.Counter("punchcard.package.expired"),
		PackageCancelled: factory.Counter("punchcard.package.cancelled"),
		CoverageMissed:   factory.Counter("punchcard.package.coverage_missed"),
		RemainingUnits:   factory.Histogram("punchcard.package.remaining_units"),

		// Refund metrics
		RefundCreated:           factory.Counter("punchcard.refund.created"),
		RefundAmount:            factory.Histogram("punchcard.refund.amount"),
		ReconciliationsRecorded: factory.Counter("punchcard.reconciliation.recorded"),

		// Error metrics
		StoreErrors:  factory.Counter("punchcard.store.errors"),
		PluginErrors: factory.Counter("punchcard.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Catalog lifecycle hooks
// ──────────────────────────────────────────────────

// OnDefinitionCreated implements plugin.OnDefinitionCreated.
func (m *MetricsExtension) OnDefinitionCreated(_ context.Context, _ interface{}) error {
	m.DefinitionCreated.Inc()
	return nil
}

// OnDefinitionDeactivated implements plugin.OnDefinitionDeactivated.
func (m *MetricsExtension) OnDefinitionDeactivated(_ context.Context, _ string) error {
	m.DefinitionDeactivated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Package lifecycle hooks
// ──────────────────────────────────────────────────

// OnPackagePurchased implements plugin.OnPackagePurchased.
func (m *MetricsExtension) OnPackagePurchased(_ context.Context, _ interface{}) error {
	m.PackagePurchased.Inc()
	return nil
}

// OnUnitsDeducted implements plugin.OnUnitsDeducted.
func (m *MetricsExtension) OnUnitsDeducted(_ context.Context, pkg, _ interface{}) error {
	m.UnitsDeducted.Inc()
	if p, ok := pkg.(*pack.MemberPackage); ok {
		m.RemainingUnits.Observe(float64(p.RemainingUnits))
	}
	return nil
}

// OnPackageDepleted implements plugin.OnPackageDepleted.
func (m *MetricsExtension) OnPackageDepleted(_ context.Context, _ interface{}) error {
	m.PackageDepleted.Inc()
	return nil
}

// OnPackageExpired implements plugin.OnPackageExpired.
func (m *MetricsExtension) OnPackageExpired(_ context.Context, _ interface{}) error {
	m.PackageExpired.Inc()
	return nil
}

// OnPackageCancelled implements plugin.OnPackageCancelled.
func (m *MetricsExtension) OnPackageCancelled(_ context.Context, _, _ interface{}) error {
	m.PackageCancelled.Inc()
	return nil
}

// OnCoverageMissed implements plugin.OnCoverageMissed.
func (m *MetricsExtension) OnCoverageMissed(_ context.Context, _, _, _ string) error {
	m.CoverageMissed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Refund lifecycle hooks
// ──────────────────────────────────────────────────

// OnRefundCreated implements plugin.OnRefundCreated.
func (m *MetricsExtension) OnRefundCreated(_ context.Context, _, entry interface{}) error {
	m.RefundCreated.Inc()
	if en, ok := entry.(payment.RefundEntry); ok {
		m.RefundAmount.Observe(float64(en.Amount.Amount))
	}
	return nil
}

// OnReconciliationRecorded implements plugin.OnReconciliationRecorded.
func (m *MetricsExtension) OnReconciliationRecorded(_ context.Context, _ interface{}) error {
	m.ReconciliationsRecorded.Inc()
	return nil
}
