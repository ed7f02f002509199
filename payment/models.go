// Package payment defines the local records correlated with the external
// payment processor: payment intents, their append-only refund entries, and
// the reconciliation records written when the processor and the local
// ledger disagree.
package payment

import (
	"time"

	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/types"
)

// IntentStatus is the refund state of a payment intent.
type IntentStatus string

const (
	IntentSucceeded         IntentStatus = "succeeded"
	IntentPartiallyRefunded IntentStatus = "partially_refunded"
	IntentRefunded          IntentStatus = "refunded"
)

// Intent is the local ledger record for an external charge. It is the
// aggregate guarding refund consistency: TotalRefunded <= Amount is
// enforced inside the same transaction that appends a refund entry.
type Intent struct {
	types.Entity
	ID    id.IntentID `json:"id"`
	OrgID string      `json:"org_id"`
	// ChargeID is the external processor's charge/payment reference.
	ChargeID string `json:"charge_id"`
	// MerchantAccount routes the external call to the organization's
	// connected account at the processor.
	MerchantAccount string       `json:"merchant_account,omitempty"`
	Amount          types.Money  `json:"amount"`
	TotalRefunded   types.Money  `json:"total_refunded"`
	Status          IntentStatus `json:"status"`
	// InvoiceID links the intent to an invoice whose paid/due amounts are
	// adjusted after a refund commits.
	InvoiceID id.InvoiceID  `json:"invoice_id,omitempty"`
	Refunds   []RefundEntry `json:"refunds,omitempty"`

	// Version is the optimistic concurrency token checked by versioned
	// store writes.
	Version int64 `json:"version"`
}

// Refundable returns the ceiling still available for refunding.
func (in *Intent) Refundable() types.Money {
	return in.Amount.Subtract(in.TotalRefunded)
}

// ApplyRefund appends an entry, raises TotalRefunded and recomputes status.
// The caller has already validated the amount against Refundable inside
// the guarding transaction.
func (in *Intent) ApplyRefund(entry RefundEntry) {
	in.Refunds = append(in.Refunds, entry)
	in.TotalRefunded = in.TotalRefunded.Add(entry.Amount)
	if in.TotalRefunded.Equal(in.Amount) {
		in.Status = IntentRefunded
	} else {
		in.Status = IntentPartiallyRefunded
	}
	in.Touch()
}

// RefundEntry is an append-only record of one refund applied to an intent.
type RefundEntry struct {
	ID id.RefundID `json:"id"`
	// ExternalID is the processor-side refund identifier.
	ExternalID string      `json:"external_id"`
	Amount     types.Money `json:"amount"`
	Reason     string      `json:"reason,omitempty"`
	ActorID    string      `json:"actor_id"`
	At         time.Time   `json:"at"`
}

// RefundResult reports a completed refund to the caller.
type RefundResult struct {
	ExternalID string       `json:"external_id"`
	Amount     types.Money  `json:"amount"`
	Status     IntentStatus `json:"status"`
}

// ReconciliationStatus is the lifecycle state of a reconciliation record.
type ReconciliationStatus string

const (
	ReconciliationPending  ReconciliationStatus = "pending_reconciliation"
	ReconciliationResolved ReconciliationStatus = "resolved"
)

// Reconciliation is the durable record of a detected inconsistency between
// the external processor and the local ledger: money moved (or may have
// moved) externally but the local transaction to record it failed. Records
// are created by the refund orchestrator and resolved only by an operator.
type Reconciliation struct {
	types.Entity
	ID       id.ReconciliationID `json:"id"`
	OrgID    string              `json:"org_id"`
	IntentID id.IntentID         `json:"intent_id"`
	ChargeID string              `json:"charge_id"`
	// ExternalRefundID is empty when the external outcome is unknown
	// (e.g. a timeout after the request was sent).
	ExternalRefundID string               `json:"external_refund_id,omitempty"`
	Amount           types.Money          `json:"amount"`
	Reason           string               `json:"reason"`
	Status           ReconciliationStatus `json:"status"`
	ResolvedAt       *time.Time           `json:"resolved_at,omitempty"`
	ResolvedBy       string               `json:"resolved_by,omitempty"`
	ResolutionNote   string               `json:"resolution_note,omitempty"`
}
