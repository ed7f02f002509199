// Package invoice defines the slim invoice records the refund path adjusts.
package invoice

import (
	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/types"
)

// Status is the payment state of an invoice.
type Status string

const (
	StatusOpen              Status = "open"
	StatusPaid              Status = "paid"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusRefunded          Status = "refunded"
)

// Invoice tracks what a member owes and has paid for a charge. When a
// payment intent linked to an invoice is refunded, the refund orchestrator
// adjusts the invoice's paid/due amounts in a dependent update after the
// intent transaction commits.
type Invoice struct {
	types.Entity
	ID         id.InvoiceID `json:"id"`
	OrgID      string       `json:"org_id"`
	MemberID   string       `json:"member_id,omitempty"`
	Total      types.Money  `json:"total"`
	AmountPaid types.Money  `json:"amount_paid"`
	AmountDue  types.Money  `json:"amount_due"`
	Status     Status       `json:"status"`
}

// ApplyRefund moves amount from paid back to due and recomputes status.
func (inv *Invoice) ApplyRefund(amount types.Money) {
	inv.AmountPaid = inv.AmountPaid.Subtract(amount)
	inv.AmountDue = inv.AmountDue.Add(amount)

	switch {
	case !inv.AmountPaid.IsPositive():
		inv.Status = StatusRefunded
	default:
		inv.Status = StatusPartiallyRefunded
	}
	inv.Touch()
}
