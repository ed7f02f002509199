package punchcard_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	punchcard "github.com/xraph/punchcard"
	"github.com/xraph/punchcard/catalog"
	"github.com/xraph/punchcard/store/memory"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and behave as documented.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		s := memory.New()

		eng := punchcard.New(s,
			punchcard.WithLogger(slog.Default()),
			punchcard.WithExpirySweep(time.Minute, 100),
		)

		ctx := context.Background()
		if err := eng.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer eng.Stop() //nolint:errcheck

		// Define what the organization sells.
		def := &catalog.PackageDefinition{
			OrgID:              "org_1",
			Name:               "10 Private Lessons",
			TotalUnits:         10,
			Price:              punchcard.EUR(50000),
			ItemKinds:          []string{"private_lesson"},
			CancellationPolicy: catalog.CancelProRataUnit,
		}
		if err := eng.CreateDefinition(ctx, def); err != nil {
			t.Fatal(err)
		}

		// Sell it.
		pkg, err := eng.PurchasePackage(ctx, punchcard.PurchaseParams{
			OrgID:        "org_1",
			MemberID:     "member_1",
			DefinitionID: def.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
		if pkg.RemainingUnits != 10 {
			t.Errorf("remaining = %d", pkg.RemainingUnits)
		}

		// Cover a billable item from it.
		res, err := eng.Deduct(ctx, punchcard.DeductParams{
			OrgID:    "org_1",
			MemberID: "member_1",
			ItemKind: "private_lesson",
			ItemID:   "lesson_42",
		})
		if err != nil {
			t.Fatal(err)
		}
		if !res.Covered {
			t.Fatalf("not covered: %s", res.Reason)
		}
		if res.Package.RemainingUnits != 9 {
			t.Errorf("remaining = %d", res.Package.RemainingUnits)
		}

		// Uncovered items report a reason instead of an error.
		res, err = eng.Deduct(ctx, punchcard.DeductParams{
			OrgID:    "org_1",
			MemberID: "member_1",
			ItemKind: "massage",
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.Covered {
			t.Error("massage should not be covered")
		}
	})

	t.Run("CancellationExample", func(t *testing.T) {
		s := memory.New()
		eng := punchcard.New(s)
		ctx := context.Background()

		def := &catalog.PackageDefinition{
			OrgID:              "org_1",
			Name:               "10 Lessons",
			TotalUnits:         10,
			Price:              punchcard.CHF(7000),
			ItemKinds:          []string{"lesson"},
			CancellationPolicy: catalog.CancelProRataUnit,
		}
		if err := eng.CreateDefinition(ctx, def); err != nil {
			t.Fatal(err)
		}
		pkg, err := eng.PurchasePackage(ctx, punchcard.PurchaseParams{
			OrgID: "org_1", MemberID: "member_1", DefinitionID: def.ID,
		})
		if err != nil {
			t.Fatal(err)
		}

		for i := 0; i < 7; i++ {
			if _, err := eng.Deduct(ctx, punchcard.DeductParams{
				OrgID: "org_1", MemberID: "member_1", ItemKind: "lesson",
			}); err != nil {
				t.Fatal(err)
			}
		}

		// 3 of 10 units left on a CHF 70.00 package refunds CHF 21.00.
		result, err := eng.CancelMemberPackage(ctx, punchcard.CancelParams{
			OrgID: "org_1", PackageID: pkg.ID, ActorID: "staff_1",
		})
		if err != nil {
			t.Fatal(err)
		}
		if !result.RefundAmount.Equal(punchcard.CHF(2100)) {
			t.Errorf("refund = %v, want CHF 21.00", result.RefundAmount)
		}
	})

	t.Run("MoneyExample", func(t *testing.T) {
		price := punchcard.EUR(50000)
		if price.String() != "€500.00" {
			t.Errorf("String() = %q", price.String())
		}
		if punchcard.USD(4900).FormatMajor() != "49.00" {
			t.Errorf("FormatMajor() = %q", punchcard.USD(4900).FormatMajor())
		}
	})

	t.Run("TypeIDExample", func(t *testing.T) {
		s := memory.New()
		eng := punchcard.New(s)
		ctx := context.Background()

		def := &catalog.PackageDefinition{
			OrgID:      "org_1",
			Name:       "Single Session",
			TotalUnits: 1,
			Price:      punchcard.EUR(5000),
			ItemKinds:  []string{"session"},
		}
		if err := eng.CreateDefinition(ctx, def); err != nil {
			t.Fatal(err)
		}
		if def.ID.Prefix() != "pdef" {
			t.Errorf("definition prefix = %q", def.ID.Prefix())
		}

		pkg, err := eng.PurchasePackage(ctx, punchcard.PurchaseParams{
			OrgID: "org_1", MemberID: "member_1", DefinitionID: def.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
		if pkg.ID.Prefix() != "mpkg" {
			t.Errorf("package prefix = %q", pkg.ID.Prefix())
		}
	})
}
