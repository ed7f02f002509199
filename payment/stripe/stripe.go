// Package stripe adapts the Stripe API to the payment.Processor interface.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/xraph/punchcard"
	"github.com/xraph/punchcard/payment"
)

// Processor issues refunds through Stripe.
type Processor struct {
	client *client.API
}

// New creates a Stripe-backed processor with the given secret key.
func New(apiKey string) *Processor {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &Processor{client: sc}
}

// NewWithClient wraps an already-configured Stripe client, for hosts that
// share one client across services.
func NewWithClient(sc *client.API) *Processor {
	return &Processor{client: sc}
}

// CreateRefund issues a refund against a charge. The request's idempotency
// key is passed through to Stripe so a retried call returns the original
// refund instead of creating a second one.
func (p *Processor) CreateRefund(ctx context.Context, req payment.RefundRequest) (*payment.ProcessorRefund, error) {
	params := &stripeapi.RefundParams{
		Amount: stripeapi.Int64(req.Amount.Amount),
	}
	if strings.HasPrefix(req.ChargeID, "pi_") {
		params.PaymentIntent = stripeapi.String(req.ChargeID)
	} else {
		params.Charge = stripeapi.String(req.ChargeID)
	}
	if req.Reason != "" {
		params.Reason = stripeapi.String(refundReason(req.Reason))
	}
	if req.MerchantAccount != "" {
		params.SetStripeAccount(req.MerchantAccount)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripeapi.String(req.IdempotencyKey)
	}
	params.Context = ctx

	ref, err := p.client.Refunds.New(params)
	if err != nil {
		return nil, mapError(err)
	}

	return &payment.ProcessorRefund{
		ID:     ref.ID,
		Amount: req.Amount,
	}, nil
}

// refundReason maps free-form reasons onto Stripe's closed enum; anything
// unrecognized becomes requested_by_customer.
func refundReason(reason string) string {
	switch reason {
	case string(stripeapi.RefundReasonDuplicate),
		string(stripeapi.RefundReasonFraudulent),
		string(stripeapi.RefundReasonRequestedByCustomer):
		return reason
	default:
		return string(stripeapi.RefundReasonRequestedByCustomer)
	}
}

// mapError classifies a Stripe client error into the ledger's taxonomy.
// The distinction that matters is whether Stripe is known to have NOT
// executed the refund: an API error response means Stripe saw and rejected
// the call, while timeouts and transport failures leave the outcome
// unknown and must never be blind-retried.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", punchcard.ErrProcessorOutcomeUnknown, err)
	}

	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		// Stripe answered, so the refund was not created.
		return fmt.Errorf("%w: %s (%s)", punchcard.ErrProcessorFailure, stripeErr.Msg, stripeErr.Code)
	}

	// Transport-level failure. The request may or may not have reached
	// Stripe before the connection died.
	return fmt.Errorf("%w: %v", punchcard.ErrProcessorOutcomeUnknown, err)
}
