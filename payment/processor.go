package payment

import (
	"context"

	"github.com/xraph/punchcard/types"
)

// Processor abstracts the external payment processor's refund-creation
// call. Implementations must return a definitive success or failure plus
// the processor-side refund identifier, and must pass the idempotency key
// through so that a re-issued call cannot move money twice.
type Processor interface {
	// CreateRefund moves money back to the payer. It is called exactly
	// once per logical refund; the orchestrator never auto-retries it.
	CreateRefund(ctx context.Context, req RefundRequest) (*ProcessorRefund, error)
}

// RefundRequest parameterizes an external refund call.
type RefundRequest struct {
	// ChargeID is the processor-side charge/payment reference to refund.
	ChargeID string
	Amount   types.Money
	Reason   string
	// MerchantAccount routes the call to a connected account; empty means
	// the platform account.
	MerchantAccount string
	// IdempotencyKey makes a duplicate call a no-op at the processor.
	IdempotencyKey string
}

// ProcessorRefund is the processor's view of a created refund.
type ProcessorRefund struct {
	// ID is the processor-side refund identifier.
	ID     string
	Amount types.Money
}
