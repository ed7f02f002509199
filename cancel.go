package punchcard

import (
	"context"
	"time"

	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/pack"
	"github.com/xraph/punchcard/policy"
	"github.com/xraph/punchcard/store"
)

// CancelParams identifies a member package to cancel.
type CancelParams struct {
	OrgID     string
	PackageID id.MemberPackageID
	ActorID   string
}

// CancelMemberPackage cancels a package and computes the refund amount owed
// under the cancellation policy captured at purchase. The state check, the
// refund calculation, and the transition to cancelled run inside one
// optimistic transaction so a deduction racing the cancellation can never
// change the unit count the refund was computed from.
//
// Depleted packages cannot be cancelled; expired ones can (the pro-rata
// policies then typically produce a zero refund). The computed amount is
// recorded on the package; moving actual money is the refund path's job.
func (e *Engine) CancelMemberPackage(ctx context.Context, params CancelParams) (*pack.CancellationResult, error) {
	if err := e.authorize(ctx, params.OrgID, params.ActorID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	type outcome struct {
		pkg    *pack.MemberPackage
		result *pack.CancellationResult
	}

	out, err := retryOnConflict(ctx, e.conflictRetries, func() (outcome, error) {
		var o outcome
		err := e.store.Txn(ctx, func(ctx context.Context, tx store.Tx) error {
			p, err := tx.GetMemberPackage(ctx, params.PackageID)
			if err != nil {
				return err
			}
			if p.OrgID != params.OrgID {
				return ErrPackageNotFound
			}

			switch p.Status {
			case pack.StatusActive, pack.StatusExpired:
				// cancellable
			case pack.StatusDepleted:
				return ErrPackageDepleted
			case pack.StatusCancelled, pack.StatusRefunded:
				return ErrPackageAlreadyCancelled
			default:
				return ErrPackageNotActive
			}

			amount := policy.RefundAmount(p.CancellationPolicy, p.Price,
				p.TotalUnits, p.RemainingUnits, p.ValidityDays, p.PurchasedAt, now)

			p.Status = pack.StatusCancelled
			p.CancelledAt = &now
			p.RefundAmount = &amount
			p.Touch()
			if err := tx.PutMemberPackage(ctx, p); err != nil {
				return err
			}

			o = outcome{
				pkg: p,
				result: &pack.CancellationResult{
					Status:       p.Status,
					Policy:       p.CancellationPolicy,
					RefundAmount: amount,
				},
			}
			return nil
		})
		return o, err
	})
	if err != nil {
		return nil, err
	}

	e.plugins.EmitPackageCancelled(ctx, out.pkg, out.result)
	e.logger.Info("package cancelled",
		"package_id", out.pkg.ID,
		"org_id", out.pkg.OrgID,
		"policy", out.result.Policy,
		"refund_amount", out.result.RefundAmount,
	)
	return out.result, nil
}
