// Package policy computes cancellation refund amounts.
//
// RefundAmount is a pure function of the policy and purchase-time terms
// denormalized onto the member package; it reads no state and moves no
// money.
package policy

import (
	"time"

	"github.com/xraph/punchcard/catalog"
	"github.com/xraph/punchcard/types"
)

// RefundAmount computes the refund owed for cancelling a package under the
// given policy.
//
//   - no_refund: zero.
//   - pro_rata_unit: price * remainingUnits / totalUnits, rounded half-up.
//   - pro_rata_package: price scaled by whole days of validity left; zero
//     when validityDays is unset, since no time basis exists.
//   - full_refund: the full price.
//
// Unknown policy values yield zero rather than an error; the policy string
// on a sold package was validated at purchase time, so an unrecognized
// value here means corrupt data and the safe amount is nothing.
func RefundAmount(
	p catalog.CancellationPolicy,
	price types.Money,
	totalUnits, remainingUnits int64,
	validityDays int,
	purchasedAt, now time.Time,
) types.Money {
	switch p {
	case catalog.CancelNoRefund:
		return types.Zero(price.Currency)

	case catalog.CancelProRataUnit:
		if totalUnits <= 0 || remainingUnits <= 0 {
			return types.Zero(price.Currency)
		}
		return price.ProRata(remainingUnits, totalUnits)

	case catalog.CancelProRataPackage:
		if validityDays <= 0 {
			return types.Zero(price.Currency)
		}
		elapsedDays := int64(now.Sub(purchasedAt) / (24 * time.Hour))
		remainingDays := int64(validityDays) - elapsedDays
		if remainingDays <= 0 {
			return types.Zero(price.Currency)
		}
		return price.ProRata(remainingDays, int64(validityDays))

	case catalog.CancelFullRefund:
		return price

	default:
		return types.Zero(price.Currency)
	}
}
