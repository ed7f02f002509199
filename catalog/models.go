// Package catalog defines package definitions: the reusable templates
// (price, unit count, policies) member packages are instantiated from.
package catalog

import (
	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/types"
)

// ExpiryPolicy controls what happens to unused units when a package
// reaches its expiry timestamp.
type ExpiryPolicy string

const (
	ExpiryExpire        ExpiryPolicy = "expire"         // Unused units are forfeited
	ExpiryRollover      ExpiryPolicy = "rollover"       // Units carry into a replacement package
	ExpiryPartialRefund ExpiryPolicy = "partial_refund" // Unused units are refunded pro rata
)

// CancellationPolicy controls how the refund amount is computed when a
// member package is cancelled before depletion.
type CancellationPolicy string

const (
	CancelNoRefund       CancellationPolicy = "no_refund"
	CancelProRataUnit    CancellationPolicy = "pro_rata_unit"
	CancelProRataPackage CancellationPolicy = "pro_rata_package"
	CancelFullRefund     CancellationPolicy = "full_refund"
)

// PackageDefinition is the catalog template a MemberPackage is sold from.
// Definitions are never deleted once referenced by a sold package; only
// deactivated. Price and policies are denormalized onto each sold package
// at purchase time, so administrative edits never change the terms of
// packages already sold.
type PackageDefinition struct {
	types.Entity
	ID                      id.DefinitionID    `json:"id"`
	OrgID                   string             `json:"org_id"`
	Name                    string             `json:"name"`
	Description             string             `json:"description,omitempty"`
	TotalUnits              int64              `json:"total_units"`
	Price                   types.Money        `json:"price"`
	ItemKinds               []string           `json:"item_kinds"`
	ExpiryPolicy            ExpiryPolicy       `json:"expiry_policy"`
	CancellationPolicy      CancellationPolicy `json:"cancellation_policy"`
	ValidityDays            int                `json:"validity_days,omitempty"`
	TransferableWithinGroup bool               `json:"transferable_within_group"`
	Active                  bool               `json:"active"`
	Metadata                map[string]string  `json:"metadata,omitempty"`
}

// Covers reports whether the definition's coverage set includes the given
// billable item kind.
func (d *PackageDefinition) Covers(itemKind string) bool {
	for _, k := range d.ItemKinds {
		if k == itemKind {
			return true
		}
	}
	return false
}

// ListOpts filters catalog listings.
type ListOpts struct {
	// ActiveOnly restricts the listing to definitions still offered for sale.
	ActiveOnly bool
}
