// Package memory provides an in-process Store for tests, demos and
// single-node embedding. Transactions are serialized under one mutex and
// staged, so nothing a failed transaction wrote becomes visible, and
// versioned writes enforce the same CAS contract as the MongoDB backend.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	punchcard "github.com/xraph/punchcard"
	"github.com/xraph/punchcard/catalog"
	"github.com/xraph/punchcard/group"
	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/invoice"
	"github.com/xraph/punchcard/pack"
	"github.com/xraph/punchcard/payment"
	"github.com/xraph/punchcard/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// txnMu serializes Txn bodies; a transaction must observe a stable
	// snapshot from its first read to its commit.
	txnMu sync.Mutex

	definitions     map[string]*catalog.PackageDefinition
	packages        map[string]*pack.MemberPackage
	deductions      []pack.Deduction
	groups          map[string]*group.BillingGroup
	intents         map[string]*payment.Intent
	invoices        map[string]*invoice.Invoice
	reconciliations map[string]*payment.Reconciliation

	closed bool
}

func New() *Store {
	return &Store{
		definitions:     make(map[string]*catalog.PackageDefinition),
		packages:        make(map[string]*pack.MemberPackage),
		deductions:      make([]pack.Deduction, 0),
		groups:          make(map[string]*group.BillingGroup),
		intents:         make(map[string]*payment.Intent),
		invoices:        make(map[string]*invoice.Invoice),
		reconciliations: make(map[string]*payment.Reconciliation),
	}
}

// ==================== Package definitions ====================

func (s *Store) CreateDefinition(_ context.Context, d *catalog.PackageDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.definitions[d.ID.String()]; exists {
		return punchcard.ErrAlreadyExists
	}
	s.definitions[d.ID.String()] = cloneDefinition(d)
	return nil
}

func (s *Store) GetDefinition(_ context.Context, defID id.DefinitionID) (*catalog.PackageDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.definitions[defID.String()]; ok {
		return cloneDefinition(d), nil
	}
	return nil, punchcard.ErrDefinitionNotFound
}

func (s *Store) ListDefinitions(_ context.Context, orgID string, opts catalog.ListOpts) ([]*catalog.PackageDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.PackageDefinition, 0)
	for _, d := range s.definitions {
		if d.OrgID != orgID {
			continue
		}
		if opts.ActiveOnly && !d.Active {
			continue
		}
		result = append(result, cloneDefinition(d))
	}
	sortByID(result, func(d *catalog.PackageDefinition) string { return d.ID.String() })
	return result, nil
}

func (s *Store) UpdateDefinition(_ context.Context, d *catalog.PackageDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[d.ID.String()]; !ok {
		return punchcard.ErrDefinitionNotFound
	}
	s.definitions[d.ID.String()] = cloneDefinition(d)
	return nil
}

// ==================== Member packages ====================

func (s *Store) CreateMemberPackage(_ context.Context, p *pack.MemberPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.packages[p.ID.String()]; exists {
		return punchcard.ErrAlreadyExists
	}
	s.packages[p.ID.String()] = clonePackage(p)
	return nil
}

func (s *Store) GetMemberPackage(_ context.Context, pkgID id.MemberPackageID) (*pack.MemberPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getPackageLocked(pkgID)
}

func (s *Store) getPackageLocked(pkgID id.MemberPackageID) (*pack.MemberPackage, error) {
	if p, ok := s.packages[pkgID.String()]; ok {
		return clonePackage(p), nil
	}
	return nil, punchcard.ErrPackageNotFound
}

func (s *Store) ListMemberPackages(_ context.Context, orgID, memberID string, opts pack.ListOpts) ([]*pack.MemberPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*pack.MemberPackage, 0)
	for _, p := range s.packages {
		if p.OrgID != orgID || p.MemberID != memberID {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		result = append(result, clonePackage(p))
	}
	sortByID(result, func(p *pack.MemberPackage) string { return p.ID.String() })
	return result, nil
}

func (s *Store) ListGroupPackages(_ context.Context, orgID string, groupID id.GroupID, opts pack.ListOpts) ([]*pack.MemberPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*pack.MemberPackage, 0)
	for _, p := range s.packages {
		if p.OrgID != orgID || p.GroupID.IsNil() || p.GroupID.String() != groupID.String() {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		result = append(result, clonePackage(p))
	}
	sortByID(result, func(p *pack.MemberPackage) string { return p.ID.String() })
	return result, nil
}

func (s *Store) ListExpiredActive(_ context.Context, asOf time.Time, limit int) ([]*pack.MemberPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*pack.MemberPackage, 0)
	for _, p := range s.packages {
		if p.Status != pack.StatusActive || !p.ExpiredAt(asOf) {
			continue
		}
		result = append(result, clonePackage(p))
	}
	sortByID(result, func(p *pack.MemberPackage) string { return p.ID.String() })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListDeductions(_ context.Context, orgID string, pkgID id.MemberPackageID) ([]*pack.Deduction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*pack.Deduction, 0)
	for i := range s.deductions {
		d := s.deductions[i]
		if d.OrgID != orgID || d.MemberPackageID.String() != pkgID.String() {
			continue
		}
		result = append(result, &d)
	}
	return result, nil
}

// ==================== Billing groups ====================

func (s *Store) CreateGroup(_ context.Context, g *group.BillingGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[g.ID.String()]; exists {
		return punchcard.ErrAlreadyExists
	}
	s.groups[g.ID.String()] = cloneGroup(g)
	return nil
}

func (s *Store) GetGroup(_ context.Context, groupID id.GroupID) (*group.BillingGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if g, ok := s.groups[groupID.String()]; ok {
		return cloneGroup(g), nil
	}
	return nil, punchcard.ErrGroupNotFound
}

func (s *Store) ListGroupsForMember(_ context.Context, orgID, memberID string) ([]*group.BillingGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*group.BillingGroup, 0)
	for _, g := range s.groups {
		if g.OrgID == orgID && g.Contains(memberID) {
			result = append(result, cloneGroup(g))
		}
	}
	sortByID(result, func(g *group.BillingGroup) string { return g.ID.String() })
	return result, nil
}

// ==================== Payment intents ====================

func (s *Store) CreateIntent(_ context.Context, in *payment.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intents[in.ID.String()]; exists {
		return punchcard.ErrAlreadyExists
	}
	s.intents[in.ID.String()] = cloneIntent(in)
	return nil
}

func (s *Store) GetIntent(_ context.Context, intentID id.IntentID) (*payment.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getIntentLocked(intentID)
}

func (s *Store) getIntentLocked(intentID id.IntentID) (*payment.Intent, error) {
	if in, ok := s.intents[intentID.String()]; ok {
		return cloneIntent(in), nil
	}
	return nil, punchcard.ErrIntentNotFound
}

// ==================== Invoices ====================

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID.String()]; exists {
		return punchcard.ErrAlreadyExists
	}
	cp := *inv
	s.invoices[inv.ID.String()] = &cp
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, punchcard.ErrInvoiceNotFound
}

func (s *Store) UpdateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[inv.ID.String()]; !ok {
		return punchcard.ErrInvoiceNotFound
	}
	cp := *inv
	s.invoices[inv.ID.String()] = &cp
	return nil
}

// ==================== Reconciliations ====================

func (s *Store) CreateReconciliation(_ context.Context, r *payment.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reconciliations[r.ID.String()]; exists {
		return punchcard.ErrAlreadyExists
	}
	cp := *r
	s.reconciliations[r.ID.String()] = &cp
	return nil
}

func (s *Store) GetReconciliation(_ context.Context, recID id.ReconciliationID) (*payment.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.reconciliations[recID.String()]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, punchcard.ErrReconciliationNotFound
}

func (s *Store) ListPendingReconciliations(_ context.Context, orgID string) ([]*payment.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Reconciliation, 0)
	for _, r := range s.reconciliations {
		if r.OrgID != orgID || r.Status != payment.ReconciliationPending {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sortByID(result, func(r *payment.Reconciliation) string { return r.ID.String() })
	return result, nil
}

func (s *Store) UpdateReconciliation(_ context.Context, r *payment.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reconciliations[r.ID.String()]; !ok {
		return punchcard.ErrReconciliationNotFound
	}
	cp := *r
	s.reconciliations[r.ID.String()] = &cp
	return nil
}

// ==================== Transactions ====================

// Txn serializes the callback under txnMu and stages its writes, applying
// them only when fn returns nil. Versioned puts compare against the
// committed version so the CAS contract matches the MongoDB backend.
func (s *Store) Txn(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txnMu.Lock()
	defer s.txnMu.Unlock()

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range tx.stagedPackages {
		s.packages[p.ID.String()] = p
	}
	for _, in := range tx.stagedIntents {
		s.intents[in.ID.String()] = in
	}
	s.deductions = append(s.deductions, tx.stagedDeductions...)
	return nil
}

type memTx struct {
	s                *Store
	stagedPackages   []*pack.MemberPackage
	stagedIntents    []*payment.Intent
	stagedDeductions []pack.Deduction
}

func (tx *memTx) GetMemberPackage(_ context.Context, pkgID id.MemberPackageID) (*pack.MemberPackage, error) {
	for _, p := range tx.stagedPackages {
		if p.ID.String() == pkgID.String() {
			return clonePackage(p), nil
		}
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.getPackageLocked(pkgID)
}

func (tx *memTx) PutMemberPackage(_ context.Context, p *pack.MemberPackage) error {
	tx.s.mu.RLock()
	current, ok := tx.s.packages[p.ID.String()]
	tx.s.mu.RUnlock()
	if !ok {
		return punchcard.ErrPackageNotFound
	}

	expect := current.Version
	for _, staged := range tx.stagedPackages {
		if staged.ID.String() == p.ID.String() {
			expect = staged.Version
		}
	}
	if p.Version != expect {
		return punchcard.ErrTxnConflict
	}

	cp := clonePackage(p)
	cp.Version++
	tx.stagedPackages = append(tx.stagedPackages, cp)
	return nil
}

func (tx *memTx) AppendDeduction(_ context.Context, d *pack.Deduction) error {
	tx.stagedDeductions = append(tx.stagedDeductions, *d)
	return nil
}

func (tx *memTx) GetIntent(_ context.Context, intentID id.IntentID) (*payment.Intent, error) {
	for _, in := range tx.stagedIntents {
		if in.ID.String() == intentID.String() {
			return cloneIntent(in), nil
		}
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.getIntentLocked(intentID)
}

func (tx *memTx) PutIntent(_ context.Context, in *payment.Intent) error {
	tx.s.mu.RLock()
	current, ok := tx.s.intents[in.ID.String()]
	tx.s.mu.RUnlock()
	if !ok {
		return punchcard.ErrIntentNotFound
	}

	expect := current.Version
	for _, staged := range tx.stagedIntents {
		if staged.ID.String() == in.ID.String() {
			expect = staged.Version
		}
	}
	if in.Version != expect {
		return punchcard.ErrTxnConflict
	}

	cp := cloneIntent(in)
	cp.Version++
	tx.stagedIntents = append(tx.stagedIntents, cp)
	return nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return punchcard.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ==================== Clone helpers ====================

// Reads and writes are deep-copied so callers can never alias live store
// state through a returned pointer.

func cloneDefinition(d *catalog.PackageDefinition) *catalog.PackageDefinition {
	cp := *d
	cp.ItemKinds = append([]string(nil), d.ItemKinds...)
	if d.Metadata != nil {
		cp.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func clonePackage(p *pack.MemberPackage) *pack.MemberPackage {
	cp := *p
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		cp.ExpiresAt = &t
	}
	if p.CancelledAt != nil {
		t := *p.CancelledAt
		cp.CancelledAt = &t
	}
	if p.RefundAmount != nil {
		m := *p.RefundAmount
		cp.RefundAmount = &m
	}
	return &cp
}

func cloneGroup(g *group.BillingGroup) *group.BillingGroup {
	cp := *g
	cp.MemberIDs = append([]string(nil), g.MemberIDs...)
	return &cp
}

func cloneIntent(in *payment.Intent) *payment.Intent {
	cp := *in
	cp.Refunds = append([]payment.RefundEntry(nil), in.Refunds...)
	return &cp
}

func sortByID[T any](items []*T, key func(*T) string) {
	sort.Slice(items, func(i, j int) bool { return key(items[i]) < key(items[j]) })
}
