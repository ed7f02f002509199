// Package punchcard provides an embeddable prepaid package ledger for Go
// applications.
//
// Punchcard is designed as a library, not a service. Organizations sell
// prepaid packages ("10 lessons for 500 EUR") to their members; the engine
// tracks the resulting unit balances and keeps them consistent with the
// money that actually moved. It provides:
//
//   - Transactional unit deduction with automatic package selection,
//     including packages shared through billing groups
//   - Policy-driven cancellation with pro-rata refund calculation
//   - External refunds through a payment processor (Stripe built-in) with
//     an exactly-once protocol and durable reconciliation records for
//     every failure the ledger could not absorb
//   - Append-only deduction history per package
//   - Pluggable lifecycle hooks for audit trails and metrics
//
// # Quick Start
//
// Create an engine instance with your preferred store:
//
//	import (
//	    "github.com/xraph/punchcard"
//	    "github.com/xraph/punchcard/store/memory"
//	)
//
//	eng := punchcard.New(memory.New())
//
//	// Start the engine (migrates the store, begins the expiry sweep)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Package definitions describe what an organization sells:
//
//	def := &catalog.PackageDefinition{
//	    OrgID:              "org_1",
//	    Name:               "10 Private Lessons",
//	    TotalUnits:         10,
//	    Price:              punchcard.EUR(50000),
//	    ItemKinds:          []string{"private_lesson"},
//	    CancellationPolicy: catalog.CancelProRataUnit,
//	}
//	err := eng.CreateDefinition(ctx, def)
//
// Purchases capture the definition's terms onto a member package, so later
// catalog edits never change what was sold:
//
//	pkg, err := eng.PurchasePackage(ctx, punchcard.PurchaseParams{
//	    OrgID:        "org_1",
//	    MemberID:     "member_1",
//	    DefinitionID: def.ID,
//	})
//
// Deductions cover billable items from the member's packages:
//
//	res, err := eng.Deduct(ctx, punchcard.DeductParams{
//	    OrgID:    "org_1",
//	    MemberID: "member_1",
//	    ItemKind: "private_lesson",
//	})
//	if !res.Covered {
//	    // No applicable package; bill the item normally.
//	}
//
// # Consistency
//
// Every balance mutation runs inside an optimistic store transaction.
// Concurrent deductions of the last unit, cancellations racing deductions,
// and concurrent refunds of the same payment all serialize through
// versioned writes; losers are retried or rejected, never double-applied.
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, rappen for CHF, etc).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	pdef_01h2xcejqtf2nbrexx3vqjhp41  // Package definition ID
//	mpkg_01h2xcejqtf2nbrexx3vqjhp41  // Member package ID
//	ded_01h455vb4pex5vsknk084sn02q   // Deduction ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package punchcard
