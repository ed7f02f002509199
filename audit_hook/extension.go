// Package audithook bridges Engine lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/punchcard/pack"
	"github.com/xraph/punchcard/payment"
	"github.com/xraph/punchcard/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                   = (*Extension)(nil)
	_ plugin.OnDefinitionCreated      = (*Extension)(nil)
	_ plugin.OnDefinitionDeactivated  = (*Extension)(nil)
	_ plugin.OnPackagePurchased       = (*Extension)(nil)
	_ plugin.OnUnitsDeducted          = (*Extension)(nil)
	_ plugin.OnPackageDepleted        = (*Extension)(nil)
	_ plugin.OnPackageExpired         = (*Extension)(nil)
	_ plugin.OnPackageCancelled       = (*Extension)(nil)
	_ plugin.OnCoverageMissed         = (*Extension)(nil)
	_ plugin.OnRefundCreated          = (*Extension)(nil)
	_ plugin.OnReconciliationRecorded = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Engine lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string {
	return "audit_hook"
}

// ──────────────────────────────────────────────────
// Catalog lifecycle hooks
// ──────────────────────────────────────────────────

// OnDefinitionCreated implements plugin.OnDefinitionCreated.
func (e *Extension) OnDefinitionCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionDefinitionCreated, SeverityInfo, OutcomeSuccess,
		ResourceDefinition, "", CategoryCatalog, nil,
		"event", "definition_created",
	)
}

// OnDefinitionDeactivated implements plugin.OnDefinitionDeactivated.
func (e *Extension) OnDefinitionDeactivated(ctx context.Context, defID string) error {
	return e.record(ctx, ActionDefinitionDeactivated, SeverityInfo, OutcomeSuccess,
		ResourceDefinition, defID, CategoryCatalog, nil,
		"event", "definition_deactivated",
	)
}

// ──────────────────────────────────────────────────
// Package lifecycle hooks
// ──────────────────────────────────────────────────

// OnPackagePurchased implements plugin.OnPackagePurchased.
func (e *Extension) OnPackagePurchased(ctx context.Context, pkg interface{}) error {
	id, kv := packageDetails(pkg)
	return e.record(ctx, ActionPackagePurchased, SeverityInfo, OutcomeSuccess,
		ResourcePackage, id, CategoryLedger, nil, kv...)
}

// OnUnitsDeducted implements plugin.OnUnitsDeducted.
func (e *Extension) OnUnitsDeducted(ctx context.Context, pkg, _ interface{}) error {
	id, kv := packageDetails(pkg)
	return e.record(ctx, ActionUnitsDeducted, SeverityInfo, OutcomeSuccess,
		ResourcePackage, id, CategoryLedger, nil, kv...)
}

// OnPackageDepleted implements plugin.OnPackageDepleted.
func (e *Extension) OnPackageDepleted(ctx context.Context, pkg interface{}) error {
	id, kv := packageDetails(pkg)
	return e.record(ctx, ActionPackageDepleted, SeverityInfo, OutcomeSuccess,
		ResourcePackage, id, CategoryLedger, nil, kv...)
}

// OnPackageExpired implements plugin.OnPackageExpired.
func (e *Extension) OnPackageExpired(ctx context.Context, pkg interface{}) error {
	id, kv := packageDetails(pkg)
	return e.record(ctx, ActionPackageExpired, SeverityInfo, OutcomeSuccess,
		ResourcePackage, id, CategoryLedger, nil, kv...)
}

// OnPackageCancelled implements plugin.OnPackageCancelled.
func (e *Extension) OnPackageCancelled(ctx context.Context, pkg, result interface{}) error {
	id, kv := packageDetails(pkg)
	if res, ok := result.(*pack.CancellationResult); ok {
		kv = append(kv, "refund_amount", res.RefundAmount.String(), "policy", string(res.Policy))
	}
	return e.record(ctx, ActionPackageCancelled, SeverityWarning, OutcomeSuccess,
		ResourcePackage, id, CategoryLedger, nil, kv...)
}

// OnCoverageMissed implements plugin.OnCoverageMissed.
func (e *Extension) OnCoverageMissed(ctx context.Context, orgID, memberID, itemKind string) error {
	return e.record(ctx, ActionCoverageMissed, SeverityInfo, OutcomeFailure,
		ResourcePackage, "", CategoryLedger, nil,
		"org_id", orgID,
		"member_id", memberID,
		"item_kind", itemKind,
	)
}

// ──────────────────────────────────────────────────
// Refund lifecycle hooks
// ──────────────────────────────────────────────────

// OnRefundCreated implements plugin.OnRefundCreated.
func (e *Extension) OnRefundCreated(ctx context.Context, intent, entry interface{}) error {
	var resourceID string
	kv := []any{"event", "refund_created"}
	if in, ok := intent.(*payment.Intent); ok {
		resourceID = in.ID.String()
		kv = append(kv, "charge_id", in.ChargeID, "total_refunded", in.TotalRefunded.String())
	}
	if en, ok := entry.(payment.RefundEntry); ok {
		kv = append(kv, "external_refund_id", en.ExternalID, "amount", en.Amount.String(), "actor_id", en.ActorID)
	}
	return e.record(ctx, ActionRefundCreated, SeverityWarning, OutcomeSuccess,
		ResourceRefund, resourceID, CategoryPayment, nil, kv...)
}

// OnReconciliationRecorded implements plugin.OnReconciliationRecorded.
func (e *Extension) OnReconciliationRecorded(ctx context.Context, rec interface{}) error {
	var resourceID string
	kv := []any{"event", "reconciliation_recorded"}
	if r, ok := rec.(*payment.Reconciliation); ok {
		resourceID = r.ID.String()
		kv = append(kv,
			"intent_id", r.IntentID.String(),
			"external_refund_id", r.ExternalRefundID,
			"amount", r.Amount.String(),
		)
	}
	// A reconciliation record means money moved that the ledger missed.
	return e.record(ctx, ActionReconciliationRecorded, SeverityCritical, OutcomeFailure,
		ResourceReconciliation, resourceID, CategoryPayment, nil, kv...)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func packageDetails(pkg interface{}) (resourceID string, kv []any) {
	p, ok := pkg.(*pack.MemberPackage)
	if !ok {
		return "", nil
	}
	return p.ID.String(), []any{
		"org_id", p.OrgID,
		"member_id", p.MemberID,
		"status", string(p.Status),
		"remaining_units", p.RemainingUnits,
	}
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
