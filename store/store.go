// Package store defines the unified storage interface for all Punchcard
// entities, including the optimistic transaction primitive the deduction
// and refund paths depend on.
package store

import (
	"context"
	"time"

	"github.com/xraph/punchcard/catalog"
	"github.com/xraph/punchcard/group"
	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/invoice"
	"github.com/xraph/punchcard/pack"
	"github.com/xraph/punchcard/payment"
)

// Store is the unified storage interface for all Punchcard entities.
// Instead of embedding sub-interfaces, all methods are declared explicitly
// to avoid naming conflicts.
//
// Reads outside Txn are snapshot reads and may race with concurrent
// writers; every mutation of a MemberPackage or Intent aggregate goes
// through Txn, whose versioned writes surface punchcard.ErrTxnConflict
// when the aggregate changed underneath the transaction.
type Store interface {
	// Package definition methods
	CreateDefinition(ctx context.Context, d *catalog.PackageDefinition) error
	GetDefinition(ctx context.Context, defID id.DefinitionID) (*catalog.PackageDefinition, error)
	ListDefinitions(ctx context.Context, orgID string, opts catalog.ListOpts) ([]*catalog.PackageDefinition, error)
	UpdateDefinition(ctx context.Context, d *catalog.PackageDefinition) error

	// Member package methods
	CreateMemberPackage(ctx context.Context, p *pack.MemberPackage) error
	GetMemberPackage(ctx context.Context, pkgID id.MemberPackageID) (*pack.MemberPackage, error)
	ListMemberPackages(ctx context.Context, orgID, memberID string, opts pack.ListOpts) ([]*pack.MemberPackage, error)
	ListGroupPackages(ctx context.Context, orgID string, groupID id.GroupID, opts pack.ListOpts) ([]*pack.MemberPackage, error)
	ListExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*pack.MemberPackage, error)
	ListDeductions(ctx context.Context, orgID string, pkgID id.MemberPackageID) ([]*pack.Deduction, error)

	// Billing group methods
	CreateGroup(ctx context.Context, g *group.BillingGroup) error
	GetGroup(ctx context.Context, groupID id.GroupID) (*group.BillingGroup, error)
	ListGroupsForMember(ctx context.Context, orgID, memberID string) ([]*group.BillingGroup, error)

	// Payment intent methods
	CreateIntent(ctx context.Context, in *payment.Intent) error
	GetIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error)

	// Invoice methods
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error

	// Reconciliation methods
	CreateReconciliation(ctx context.Context, r *payment.Reconciliation) error
	GetReconciliation(ctx context.Context, recID id.ReconciliationID) (*payment.Reconciliation, error)
	ListPendingReconciliations(ctx context.Context, orgID string) ([]*payment.Reconciliation, error)
	UpdateReconciliation(ctx context.Context, r *payment.Reconciliation) error

	// Txn runs fn inside a single atomic read-then-conditional-write
	// transaction. Reads through the Tx observe fresh state; versioned
	// writes fail the whole transaction with punchcard.ErrTxnConflict if
	// the aggregate's version no longer matches. The transaction is the
	// unit of atomicity: nothing fn writes is visible unless fn returns
	// nil.
	Txn(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the handle passed to a Txn callback. It exposes the aggregates the
// ledger mutates transactionally: member packages with their append-only
// deduction entries, and payment intents.
type Tx interface {
	// GetMemberPackage re-reads a member package fresh within the txn.
	GetMemberPackage(ctx context.Context, pkgID id.MemberPackageID) (*pack.MemberPackage, error)
	// PutMemberPackage writes the package back conditional on the version
	// it was read at, bumping the version on success.
	PutMemberPackage(ctx context.Context, p *pack.MemberPackage) error
	// AppendDeduction appends one immutable deduction entry.
	AppendDeduction(ctx context.Context, d *pack.Deduction) error

	// GetIntent re-reads a payment intent fresh within the txn.
	GetIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error)
	// PutIntent writes the intent back conditional on its version.
	PutIntent(ctx context.Context, in *payment.Intent) error
}
