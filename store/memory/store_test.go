package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	punchcard "github.com/xraph/punchcard"
	"github.com/xraph/punchcard/catalog"
	"github.com/xraph/punchcard/group"
	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/pack"
	"github.com/xraph/punchcard/payment"
	"github.com/xraph/punchcard/store"
	"github.com/xraph/punchcard/types"
)

func testPackage(orgID, memberID string) *pack.MemberPackage {
	return &pack.MemberPackage{
		Entity:         types.NewEntity(),
		ID:             id.NewMemberPackageID(),
		OrgID:          orgID,
		DefinitionID:   id.NewDefinitionID(),
		MemberID:       memberID,
		TotalUnits:     10,
		RemainingUnits: 10,
		Status:         pack.StatusActive,
		PurchasedAt:    time.Now().UTC(),
		Price:          types.EUR(50000),
	}
}

func TestDefinitionCRUD(t *testing.T) {
	s := New()
	ctx := context.Background()

	d := &catalog.PackageDefinition{
		Entity:     types.NewEntity(),
		ID:         id.NewDefinitionID(),
		OrgID:      "org_1",
		Name:       "10 Lessons",
		TotalUnits: 10,
		Price:      types.EUR(50000),
		ItemKinds:  []string{"lesson"},
		Active:     true,
	}

	if err := s.CreateDefinition(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateDefinition(ctx, d); !errors.Is(err, punchcard.ErrAlreadyExists) {
		t.Errorf("duplicate create: got %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetDefinition(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "10 Lessons" {
		t.Errorf("got name %q", got.Name)
	}

	// Mutating the returned copy must not affect the stored definition.
	got.Name = "mutated"
	again, _ := s.GetDefinition(ctx, d.ID)
	if again.Name != "10 Lessons" {
		t.Error("store state aliased through returned pointer")
	}

	d.Active = false
	if err := s.UpdateDefinition(ctx, d); err != nil {
		t.Fatalf("update: %v", err)
	}

	active, err := s.ListDefinitions(ctx, "org_1", catalog.ListOpts{ActiveOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active definitions, got %d", len(active))
	}

	if _, err := s.GetDefinition(ctx, id.NewDefinitionID()); !errors.Is(err, punchcard.ErrDefinitionNotFound) {
		t.Errorf("missing get: got %v, want ErrDefinitionNotFound", err)
	}
}

func TestMemberPackageListing(t *testing.T) {
	s := New()
	ctx := context.Background()

	p1 := testPackage("org_1", "member_1")
	p2 := testPackage("org_1", "member_1")
	p2.Status = pack.StatusDepleted
	p3 := testPackage("org_1", "member_2")

	for _, p := range []*pack.MemberPackage{p1, p2, p3} {
		if err := s.CreateMemberPackage(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	active, err := s.ListMemberPackages(ctx, "org_1", "member_1", pack.ListOpts{Status: pack.StatusActive})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].ID.String() != p1.ID.String() {
		t.Errorf("expected only p1 active, got %d packages", len(active))
	}

	all, err := s.ListMemberPackages(ctx, "org_1", "member_1", pack.ListOpts{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 packages, got %d", len(all))
	}
}

func TestGroupPackageListing(t *testing.T) {
	s := New()
	ctx := context.Background()

	g := &group.BillingGroup{
		Entity:    types.NewEntity(),
		ID:        id.NewGroupID(),
		OrgID:     "org_1",
		Name:      "family",
		MemberIDs: []string{"member_1", "member_2"},
	}
	if err := s.CreateGroup(ctx, g); err != nil {
		t.Fatalf("create group: %v", err)
	}

	shared := testPackage("org_1", "member_1")
	shared.GroupID = g.ID
	personal := testPackage("org_1", "member_1")
	for _, p := range []*pack.MemberPackage{shared, personal} {
		if err := s.CreateMemberPackage(ctx, p); err != nil {
			t.Fatalf("create package: %v", err)
		}
	}

	got, err := s.ListGroupPackages(ctx, "org_1", g.ID, pack.ListOpts{Status: pack.StatusActive})
	if err != nil {
		t.Fatalf("list group packages: %v", err)
	}
	if len(got) != 1 || got[0].ID.String() != shared.ID.String() {
		t.Errorf("expected only the shared package, got %d", len(got))
	}

	groups, err := s.ListGroupsForMember(ctx, "org_1", "member_2")
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 1 {
		t.Errorf("expected 1 group for member_2, got %d", len(groups))
	}
	groups, _ = s.ListGroupsForMember(ctx, "org_1", "member_3")
	if len(groups) != 0 {
		t.Errorf("expected no groups for member_3, got %d", len(groups))
	}
}

func TestListExpiredActive(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	expired := testPackage("org_1", "member_1")
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past

	fresh := testPackage("org_1", "member_1")
	future := now.Add(time.Hour)
	fresh.ExpiresAt = &future

	unbounded := testPackage("org_1", "member_1")

	for _, p := range []*pack.MemberPackage{expired, fresh, unbounded} {
		if err := s.CreateMemberPackage(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := s.ListExpiredActive(ctx, now, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID.String() != expired.ID.String() {
		t.Errorf("expected only the expired package, got %d", len(got))
	}
}

func TestTxnCommitAndRollback(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := testPackage("org_1", "member_1")
	if err := s.CreateMemberPackage(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	// A failing transaction must leave nothing behind.
	boom := errors.New("boom")
	err := s.Txn(ctx, func(ctx context.Context, tx store.Tx) error {
		fresh, err := tx.GetMemberPackage(ctx, p.ID)
		if err != nil {
			return err
		}
		fresh.RemainingUnits--
		if err := tx.PutMemberPackage(ctx, fresh); err != nil {
			return err
		}
		if err := tx.AppendDeduction(ctx, &pack.Deduction{
			ID:              id.NewDeductionID(),
			MemberPackageID: p.ID,
			OrgID:           "org_1",
			MemberID:        "member_1",
			Units:           1,
			At:              time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.GetMemberPackage(ctx, p.ID)
	if got.RemainingUnits != 10 {
		t.Errorf("rolled-back write visible: remaining = %d", got.RemainingUnits)
	}
	deds, _ := s.ListDeductions(ctx, "org_1", p.ID)
	if len(deds) != 0 {
		t.Errorf("rolled-back deduction visible: %d entries", len(deds))
	}

	// A committing transaction applies everything atomically.
	err = s.Txn(ctx, func(ctx context.Context, tx store.Tx) error {
		fresh, err := tx.GetMemberPackage(ctx, p.ID)
		if err != nil {
			return err
		}
		fresh.RemainingUnits--
		if err := tx.PutMemberPackage(ctx, fresh); err != nil {
			return err
		}
		return tx.AppendDeduction(ctx, &pack.Deduction{
			ID:              id.NewDeductionID(),
			MemberPackageID: p.ID,
			OrgID:           "org_1",
			MemberID:        "member_1",
			Units:           1,
			At:              time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}

	got, _ = s.GetMemberPackage(ctx, p.ID)
	if got.RemainingUnits != 9 {
		t.Errorf("remaining = %d, want 9", got.RemainingUnits)
	}
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}
	deds, _ = s.ListDeductions(ctx, "org_1", p.ID)
	if len(deds) != 1 {
		t.Errorf("deductions = %d, want 1", len(deds))
	}
}

func TestTxnVersionConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := testPackage("org_1", "member_1")
	if err := s.CreateMemberPackage(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Read outside the transaction, then let another write bump the
	// version before putting the stale copy back.
	stale, err := s.GetMemberPackage(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	err = s.Txn(ctx, func(ctx context.Context, tx store.Tx) error {
		fresh, err := tx.GetMemberPackage(ctx, p.ID)
		if err != nil {
			return err
		}
		fresh.RemainingUnits--
		return tx.PutMemberPackage(ctx, fresh)
	})
	if err != nil {
		t.Fatalf("first txn: %v", err)
	}

	err = s.Txn(ctx, func(ctx context.Context, tx store.Tx) error {
		stale.RemainingUnits--
		return tx.PutMemberPackage(ctx, stale)
	})
	if !errors.Is(err, punchcard.ErrTxnConflict) {
		t.Fatalf("expected ErrTxnConflict, got %v", err)
	}

	got, _ := s.GetMemberPackage(ctx, p.ID)
	if got.RemainingUnits != 9 {
		t.Errorf("conflicting write applied: remaining = %d", got.RemainingUnits)
	}
}

func TestTxnReadsOwnWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := testPackage("org_1", "member_1")
	if err := s.CreateMemberPackage(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.Txn(ctx, func(ctx context.Context, tx store.Tx) error {
		fresh, err := tx.GetMemberPackage(ctx, p.ID)
		if err != nil {
			return err
		}
		fresh.RemainingUnits = 5
		if err := tx.PutMemberPackage(ctx, fresh); err != nil {
			return err
		}

		reread, err := tx.GetMemberPackage(ctx, p.ID)
		if err != nil {
			return err
		}
		if reread.RemainingUnits != 5 {
			t.Errorf("staged write not visible in txn: remaining = %d", reread.RemainingUnits)
		}

		// A second put must CAS against the staged version, not the
		// committed one.
		reread.RemainingUnits = 3
		return tx.PutMemberPackage(ctx, reread)
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}

	got, _ := s.GetMemberPackage(ctx, p.ID)
	if got.RemainingUnits != 3 {
		t.Errorf("remaining = %d, want 3", got.RemainingUnits)
	}
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}
}

func TestIntentTxn(t *testing.T) {
	s := New()
	ctx := context.Background()

	in := &payment.Intent{
		Entity:        types.NewEntity(),
		ID:            id.NewIntentID(),
		OrgID:         "org_1",
		ChargeID:      "ch_123",
		Amount:        types.EUR(50000),
		TotalRefunded: types.EUR(0),
		Status:        payment.IntentSucceeded,
	}
	if err := s.CreateIntent(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.Txn(ctx, func(ctx context.Context, tx store.Tx) error {
		fresh, err := tx.GetIntent(ctx, in.ID)
		if err != nil {
			return err
		}
		fresh.ApplyRefund(payment.RefundEntry{
			ID:         id.NewRefundID(),
			ExternalID: "re_1",
			Amount:     types.EUR(20000),
			At:         time.Now().UTC(),
		})
		return tx.PutIntent(ctx, fresh)
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}

	got, _ := s.GetIntent(ctx, in.ID)
	if !got.TotalRefunded.Equal(types.EUR(20000)) {
		t.Errorf("total refunded = %v", got.TotalRefunded)
	}
	if got.Status != payment.IntentPartiallyRefunded {
		t.Errorf("status = %s", got.Status)
	}
	if len(got.Refunds) != 1 {
		t.Errorf("refund entries = %d", len(got.Refunds))
	}
	if got.Version != 1 {
		t.Errorf("version = %d", got.Version)
	}
}

func TestReconciliationLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := &payment.Reconciliation{
		Entity:   types.NewEntity(),
		ID:       id.NewReconciliationID(),
		OrgID:    "org_1",
		IntentID: id.NewIntentID(),
		ChargeID: "ch_123",
		Amount:   types.EUR(10000),
		Reason:   "local write failed",
		Status:   payment.ReconciliationPending,
	}
	if err := s.CreateReconciliation(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	pending, err := s.ListPendingReconciliations(ctx, "org_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	now := time.Now().UTC()
	rec.Status = payment.ReconciliationResolved
	rec.ResolvedAt = &now
	if err := s.UpdateReconciliation(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}

	pending, _ = s.ListPendingReconciliations(ctx, "org_1")
	if len(pending) != 0 {
		t.Errorf("pending after resolve = %d, want 0", len(pending))
	}
}

func TestPingClose(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, punchcard.ErrStoreClosed) {
		t.Errorf("ping after close: got %v, want ErrStoreClosed", err)
	}
}
