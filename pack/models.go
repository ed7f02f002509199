// Package pack defines member packages, the sold unit-metered prepaid credit
// instances, and the append-only deduction entries consumed from them.
package pack

import (
	"time"

	"github.com/xraph/punchcard/catalog"
	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/types"
)

// Status is the lifecycle state of a member package.
type Status string

const (
	StatusActive    Status = "active"
	StatusDepleted  Status = "depleted"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// MemberPackage is a sold instance of a catalog definition.
//
// Price, cancellation policy, validity and coverage are denormalized copies
// captured at purchase time: the terms of a sold package must not silently
// change when the catalog definition is later edited.
//
// Invariants: 0 <= RemainingUnits <= TotalUnits; RemainingUnits is
// monotonically non-increasing while active; status transitions only
// active -> {depleted, expired, cancelled}. Depleted, cancelled and
// refunded are terminal for further deduction.
type MemberPackage struct {
	types.Entity
	ID           id.MemberPackageID `json:"id"`
	OrgID        string             `json:"org_id"`
	DefinitionID id.DefinitionID    `json:"definition_id"`
	MemberID     string             `json:"member_id"`
	// GroupID is only set when the definition is transferable within a
	// billing group; the group never mutates package state itself.
	GroupID id.GroupID `json:"group_id,omitempty"`

	TotalUnits     int64     `json:"total_units"`
	RemainingUnits int64     `json:"remaining_units"`
	Status         Status    `json:"status"`
	PurchasedAt    time.Time `json:"purchased_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`

	// Denormalized purchase-time terms. Coverage is intentionally not
	// denormalized: the deduction engine resolves the definition on every
	// search, so catalog coverage edits apply to already-sold packages
	// while the financial terms below never change after sale.
	Price              types.Money                `json:"price"`
	CancellationPolicy catalog.CancellationPolicy `json:"cancellation_policy"`
	ExpiryPolicy       catalog.ExpiryPolicy       `json:"expiry_policy"`
	ValidityDays       int                        `json:"validity_days,omitempty"`

	CancelledAt  *time.Time   `json:"cancelled_at,omitempty"`
	RefundAmount *types.Money `json:"refund_amount,omitempty"`

	// Version is the optimistic concurrency token checked by versioned
	// store writes.
	Version int64 `json:"version"`
}

// ExpiredAt reports whether the package's expiry timestamp has passed at t.
// Packages without an expiry never expire.
func (p *MemberPackage) ExpiredAt(t time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(t)
}

// Deductible reports whether units can be consumed from the package at t:
// active status, units remaining, not past expiry.
func (p *MemberPackage) Deductible(t time.Time) bool {
	return p.Status == StatusActive && p.RemainingUnits > 0 && !p.ExpiredAt(t)
}

// Deduction is an immutable, append-only ledger entry consuming units from
// a member package. Entries are never updated or deleted; at all times the
// sum of deduction units for a package equals TotalUnits - RemainingUnits.
type Deduction struct {
	ID              id.DeductionID     `json:"id"`
	MemberPackageID id.MemberPackageID `json:"member_package_id"`
	OrgID           string             `json:"org_id"`
	MemberID        string             `json:"member_id"`
	// Units is always 1 for coverage deductions; manual deductions may
	// consume any positive count.
	Units    int64     `json:"units"`
	ItemKind string    `json:"item_kind,omitempty"`
	ItemID   string    `json:"item_id,omitempty"`
	ActorID  string    `json:"actor_id"`
	At       time.Time `json:"at"`
}

// DeductionResult reports the outcome of a coverage deduction.
// Covered=false (no coverage) is a normal outcome, not an error: the
// caller is expected to fall back to a billable line item.
type DeductionResult struct {
	Covered   bool           `json:"covered"`
	Reason    string         `json:"reason,omitempty"`
	Package   *MemberPackage `json:"package,omitempty"`
	Deduction *Deduction     `json:"deduction,omitempty"`
}

// CancellationResult reports the outcome of a package cancellation.
type CancellationResult struct {
	Status       Status                     `json:"status"`
	Policy       catalog.CancellationPolicy `json:"policy"`
	RefundAmount types.Money                `json:"refund_amount"`
}

// ListOpts filters member package listings.
type ListOpts struct {
	Status Status // Empty matches any status
}
