package punchcard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/payment"
	"github.com/xraph/punchcard/store"
	"github.com/xraph/punchcard/types"
)

// RefundParams describes a refund against a recorded payment intent.
type RefundParams struct {
	OrgID    string
	IntentID id.IntentID
	// Amount in the intent's currency minor units. Zero refunds whatever
	// remains refundable on the intent.
	Amount int64
	Reason string
	// ActorID is the staff member issuing the refund.
	ActorID string
}

// CreateRefund moves real money back to the payer through the external
// payment processor and records the movement on the intent. The processor
// is called exactly once per attempt, with an idempotency key derived from
// the intent's refund history, so a retried attempt after a failure cannot
// double-refund.
//
// The failure modes are deliberately asymmetric:
//
//   - ErrProcessorFailure: the processor definitively rejected the call.
//     No money moved; the caller may retry.
//   - ErrProcessorOutcomeUnknown: the call may or may not have gone
//     through (timeout, cancelled context, transport failure). Never
//     blind-retried; a pending reconciliation record is written for an
//     operator to resolve against processor records.
//   - ErrRefundNotRecorded: the processor confirmed the refund but the
//     local transaction failed afterwards. Money moved that the ledger
//     does not show; a reconciliation record carrying the external refund
//     ID is written, and the returned error joins the underlying cause.
//
// A failed invoice adjustment after the intent commits is logged but gets
// no reconciliation record and does not fail the refund: unlike the intent,
// the invoice rollup holds no information of its own and can be recomputed
// from the intent's committed refund history at any time.
func (e *Engine) CreateRefund(ctx context.Context, params RefundParams) (*payment.RefundResult, error) {
	if err := e.authorize(ctx, params.OrgID, params.ActorID); err != nil {
		return nil, err
	}
	if e.processor == nil {
		return nil, ErrProcessorNotConfigured
	}

	in, err := e.store.GetIntent(ctx, params.IntentID)
	if err != nil {
		return nil, err
	}
	if in.OrgID != params.OrgID {
		return nil, ErrIntentNotFound
	}

	refundable := in.Refundable()
	amount := types.Money{Amount: params.Amount, Currency: in.Amount.Currency}
	if params.Amount == 0 {
		amount = refundable
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidRefund
	}
	if amount.GreaterThan(refundable) {
		return nil, ErrOverRefund
	}

	// The key is stable for a retry of the same logical refund (same
	// intent, same refund history, same amount) but changes once a refund
	// lands, so the processor deduplicates genuine retries without
	// blocking later refunds of the same amount.
	idemKey := fmt.Sprintf("refund-%s-%d-%d", in.ID, in.TotalRefunded.Amount, amount.Amount)

	ext, err := e.processor.CreateRefund(ctx, payment.RefundRequest{
		ChargeID:        in.ChargeID,
		Amount:          amount,
		Reason:          params.Reason,
		MerchantAccount: in.MerchantAccount,
		IdempotencyKey:  idemKey,
	})
	if err != nil {
		if errors.Is(err, ErrProcessorOutcomeUnknown) {
			// Money may have moved. Park it for an operator instead of
			// guessing.
			e.recordReconciliation(ctx, in, "", amount, params.Reason, err)
		}
		return nil, err
	}

	entry := payment.RefundEntry{
		ID:         id.NewRefundID(),
		ExternalID: ext.ID,
		Amount:     amount,
		Reason:     params.Reason,
		ActorID:    params.ActorID,
		At:         time.Now().UTC(),
	}

	var updated *payment.Intent
	txErr := e.store.Txn(ctx, func(ctx context.Context, tx store.Tx) error {
		fresh, err := tx.GetIntent(ctx, in.ID)
		if err != nil {
			return err
		}
		// Re-validate against fresh state; a concurrent refund may have
		// consumed the headroom while the external call was in flight.
		if amount.GreaterThan(fresh.Refundable()) {
			return ErrOverRefund
		}
		fresh.ApplyRefund(entry)
		fresh.Touch()
		if err := tx.PutIntent(ctx, fresh); err != nil {
			return err
		}
		updated = fresh
		return nil
	})
	if txErr != nil {
		// The processor already moved the money. Whatever stopped the
		// local write (conflict, over-refund, outage), the ledger is now
		// behind reality and an operator has to reconcile it.
		e.recordReconciliation(ctx, in, ext.ID, amount, params.Reason, txErr)
		return nil, errors.Join(ErrRefundNotRecorded, txErr)
	}

	if !updated.InvoiceID.IsNil() {
		if err := e.adjustInvoiceForRefund(ctx, updated.InvoiceID, amount); err != nil {
			// The refund itself is recorded; only the invoice rollup is
			// stale, and it is recomputable from the intent's refund
			// history. Surface loudly but do not fail the refund.
			e.logger.Error("invoice refund adjustment failed",
				"invoice_id", updated.InvoiceID,
				"intent_id", updated.ID,
				"amount", amount,
				"error", err,
			)
		}
	}

	e.plugins.EmitRefundCreated(ctx, updated, entry)
	e.logger.Info("refund created",
		"intent_id", updated.ID,
		"external_refund_id", ext.ID,
		"amount", amount,
		"total_refunded", updated.TotalRefunded,
	)
	return &payment.RefundResult{
		ExternalID: ext.ID,
		Amount:     amount,
		Status:     updated.Status,
	}, nil
}

// recordReconciliation durably parks a suspected or confirmed external
// money movement the ledger failed to record. externalRefundID is empty
// when the external outcome itself is unknown.
func (e *Engine) recordReconciliation(ctx context.Context, in *payment.Intent, externalRefundID string,
	amount types.Money, reason string, cause error) {

	rec := &payment.Reconciliation{
		Entity:           types.NewEntity(),
		ID:               id.NewReconciliationID(),
		OrgID:            in.OrgID,
		IntentID:         in.ID,
		ChargeID:         in.ChargeID,
		ExternalRefundID: externalRefundID,
		Amount:           amount,
		Reason:           fmt.Sprintf("%s: %v", reason, cause),
		Status:           payment.ReconciliationPending,
	}

	if err := e.store.CreateReconciliation(ctx, rec); err != nil {
		// Last line of defense: the discrepancy exists only in this log
		// line now, so record every field an operator needs.
		e.logger.Error("FAILED TO RECORD RECONCILIATION: external refund not reflected in ledger",
			"intent_id", in.ID,
			"charge_id", in.ChargeID,
			"external_refund_id", externalRefundID,
			"amount", amount,
			"cause", cause,
			"error", err,
		)
		return
	}

	e.plugins.EmitReconciliationRecorded(ctx, rec)
	e.logger.Warn("reconciliation recorded",
		"reconciliation_id", rec.ID,
		"intent_id", in.ID,
		"external_refund_id", externalRefundID,
		"amount", amount,
		"cause", cause,
	)
}

// adjustInvoiceForRefund moves the refunded amount from paid back to due on
// the linked invoice. Runs after the intent transaction commits.
func (e *Engine) adjustInvoiceForRefund(ctx context.Context, invID id.InvoiceID, amount types.Money) error {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return err
	}
	inv.ApplyRefund(amount)
	inv.Touch()
	return e.store.UpdateInvoice(ctx, inv)
}
