// Package mongo implements store.Store on MongoDB.
//
// Member package and payment intent aggregates carry a version field;
// transactional writes are conditional on that version inside a MongoDB
// session transaction, so a concurrent writer surfaces as
// punchcard.ErrTxnConflict instead of silently double-applying.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	punchcard "github.com/xraph/punchcard"
	"github.com/xraph/punchcard/catalog"
	"github.com/xraph/punchcard/group"
	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/invoice"
	"github.com/xraph/punchcard/pack"
	"github.com/xraph/punchcard/payment"
	punchstore "github.com/xraph/punchcard/store"
)

// Collection name constants.
const (
	colDefinitions     = "punchcard_definitions"
	colMemberPackages  = "punchcard_member_packages"
	colDeductions      = "punchcard_deductions"
	colGroups          = "punchcard_groups"
	colIntents         = "punchcard_payment_intents"
	colInvoices        = "punchcard_invoices"
	colReconciliations = "punchcard_reconciliations"
)

// compile-time interface check
var _ punchstore.Store = (*Store)(nil)

// Store implements store.Store on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a MongoDB store on the given database. Transactions require
// the deployment to be a replica set or sharded cluster.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

// Database returns the underlying database for direct access.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates indexes for all punchcard collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("punchcard/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== Package definitions ====================

func (s *Store) CreateDefinition(ctx context.Context, d *catalog.PackageDefinition) error {
	_, err := s.db.Collection(colDefinitions).InsertOne(ctx, toDefinitionModel(d))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return punchcard.ErrAlreadyExists
		}
		return fmt.Errorf("punchcard/mongo: create definition: %w", err)
	}
	return nil
}

func (s *Store) GetDefinition(ctx context.Context, defID id.DefinitionID) (*catalog.PackageDefinition, error) {
	var m definitionModel
	err := s.db.Collection(colDefinitions).FindOne(ctx, bson.M{"_id": defID.String()}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, punchcard.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("punchcard/mongo: get definition: %w", err)
	}
	return fromDefinitionModel(&m)
}

func (s *Store) ListDefinitions(ctx context.Context, orgID string, opts catalog.ListOpts) ([]*catalog.PackageDefinition, error) {
	filter := bson.M{"org_id": orgID}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	cur, err := s.db.Collection(colDefinitions).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: list definitions: %w", err)
	}
	var models []definitionModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("punchcard/mongo: list definitions: %w", err)
	}

	result := make([]*catalog.PackageDefinition, len(models))
	for i := range models {
		d, err := fromDefinitionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) UpdateDefinition(ctx context.Context, d *catalog.PackageDefinition) error {
	m := toDefinitionModel(d)
	m.UpdatedAt = time.Now().UTC()

	res, err := s.db.Collection(colDefinitions).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("punchcard/mongo: update definition: %w", err)
	}
	if res.MatchedCount == 0 {
		return punchcard.ErrDefinitionNotFound
	}
	return nil
}

// ==================== Member packages ====================

func (s *Store) CreateMemberPackage(ctx context.Context, p *pack.MemberPackage) error {
	_, err := s.db.Collection(colMemberPackages).InsertOne(ctx, toMemberPackageModel(p))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return punchcard.ErrAlreadyExists
		}
		return fmt.Errorf("punchcard/mongo: create member package: %w", err)
	}
	return nil
}

func (s *Store) GetMemberPackage(ctx context.Context, pkgID id.MemberPackageID) (*pack.MemberPackage, error) {
	var m memberPackageModel
	err := s.db.Collection(colMemberPackages).FindOne(ctx, bson.M{"_id": pkgID.String()}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, punchcard.ErrPackageNotFound
		}
		return nil, fmt.Errorf("punchcard/mongo: get member package: %w", err)
	}
	return fromMemberPackageModel(&m)
}

func (s *Store) ListMemberPackages(ctx context.Context, orgID, memberID string, opts pack.ListOpts) ([]*pack.MemberPackage, error) {
	filter := bson.M{"org_id": orgID, "member_id": memberID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	return s.findPackages(ctx, filter, 0)
}

func (s *Store) ListGroupPackages(ctx context.Context, orgID string, groupID id.GroupID, opts pack.ListOpts) ([]*pack.MemberPackage, error) {
	filter := bson.M{"org_id": orgID, "group_id": groupID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	return s.findPackages(ctx, filter, 0)
}

func (s *Store) ListExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*pack.MemberPackage, error) {
	filter := bson.M{
		"status":     string(pack.StatusActive),
		"expires_at": bson.M{"$lt": asOf},
	}
	return s.findPackages(ctx, filter, int64(limit))
}

func (s *Store) findPackages(ctx context.Context, filter bson.M, limit int64) ([]*pack.MemberPackage, error) {
	opts := mongoFindOpts(limit)
	cur, err := s.db.Collection(colMemberPackages).Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: find member packages: %w", err)
	}
	var models []memberPackageModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("punchcard/mongo: find member packages: %w", err)
	}

	result := make([]*pack.MemberPackage, len(models))
	for i := range models {
		p, err := fromMemberPackageModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) ListDeductions(ctx context.Context, orgID string, pkgID id.MemberPackageID) ([]*pack.Deduction, error) {
	filter := bson.M{"org_id": orgID, "member_package_id": pkgID.String()}

	cur, err := s.db.Collection(colDeductions).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: list deductions: %w", err)
	}
	var models []deductionModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("punchcard/mongo: list deductions: %w", err)
	}

	result := make([]*pack.Deduction, len(models))
	for i := range models {
		d, err := fromDeductionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

// ==================== Billing groups ====================

func (s *Store) CreateGroup(ctx context.Context, g *group.BillingGroup) error {
	_, err := s.db.Collection(colGroups).InsertOne(ctx, toGroupModel(g))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return punchcard.ErrAlreadyExists
		}
		return fmt.Errorf("punchcard/mongo: create group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID id.GroupID) (*group.BillingGroup, error) {
	var m groupModel
	err := s.db.Collection(colGroups).FindOne(ctx, bson.M{"_id": groupID.String()}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, punchcard.ErrGroupNotFound
		}
		return nil, fmt.Errorf("punchcard/mongo: get group: %w", err)
	}
	return fromGroupModel(&m)
}

func (s *Store) ListGroupsForMember(ctx context.Context, orgID, memberID string) ([]*group.BillingGroup, error) {
	filter := bson.M{"org_id": orgID, "member_ids": memberID}

	cur, err := s.db.Collection(colGroups).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: list groups: %w", err)
	}
	var models []groupModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("punchcard/mongo: list groups: %w", err)
	}

	result := make([]*group.BillingGroup, len(models))
	for i := range models {
		g, err := fromGroupModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = g
	}
	return result, nil
}

// ==================== Payment intents ====================

func (s *Store) CreateIntent(ctx context.Context, in *payment.Intent) error {
	_, err := s.db.Collection(colIntents).InsertOne(ctx, toIntentModel(in))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return punchcard.ErrAlreadyExists
		}
		return fmt.Errorf("punchcard/mongo: create intent: %w", err)
	}
	return nil
}

func (s *Store) GetIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error) {
	var m intentModel
	err := s.db.Collection(colIntents).FindOne(ctx, bson.M{"_id": intentID.String()}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, punchcard.ErrIntentNotFound
		}
		return nil, fmt.Errorf("punchcard/mongo: get intent: %w", err)
	}
	return fromIntentModel(&m)
}

// ==================== Invoices ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	_, err := s.db.Collection(colInvoices).InsertOne(ctx, toInvoiceModel(inv))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return punchcard.ErrAlreadyExists
		}
		return fmt.Errorf("punchcard/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.db.Collection(colInvoices).FindOne(ctx, bson.M{"_id": invID.String()}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, punchcard.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("punchcard/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	m.UpdatedAt = time.Now().UTC()

	res, err := s.db.Collection(colInvoices).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("punchcard/mongo: update invoice: %w", err)
	}
	if res.MatchedCount == 0 {
		return punchcard.ErrInvoiceNotFound
	}
	return nil
}

// ==================== Reconciliations ====================

func (s *Store) CreateReconciliation(ctx context.Context, r *payment.Reconciliation) error {
	_, err := s.db.Collection(colReconciliations).InsertOne(ctx, toReconciliationModel(r))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return punchcard.ErrAlreadyExists
		}
		return fmt.Errorf("punchcard/mongo: create reconciliation: %w", err)
	}
	return nil
}

func (s *Store) GetReconciliation(ctx context.Context, recID id.ReconciliationID) (*payment.Reconciliation, error) {
	var m reconciliationModel
	err := s.db.Collection(colReconciliations).FindOne(ctx, bson.M{"_id": recID.String()}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, punchcard.ErrReconciliationNotFound
		}
		return nil, fmt.Errorf("punchcard/mongo: get reconciliation: %w", err)
	}
	return fromReconciliationModel(&m)
}

func (s *Store) ListPendingReconciliations(ctx context.Context, orgID string) ([]*payment.Reconciliation, error) {
	filter := bson.M{"org_id": orgID, "status": string(payment.ReconciliationPending)}

	cur, err := s.db.Collection(colReconciliations).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: list reconciliations: %w", err)
	}
	var models []reconciliationModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("punchcard/mongo: list reconciliations: %w", err)
	}

	result := make([]*payment.Reconciliation, len(models))
	for i := range models {
		r, err := fromReconciliationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) UpdateReconciliation(ctx context.Context, r *payment.Reconciliation) error {
	m := toReconciliationModel(r)
	m.UpdatedAt = time.Now().UTC()

	res, err := s.db.Collection(colReconciliations).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("punchcard/mongo: update reconciliation: %w", err)
	}
	if res.MatchedCount == 0 {
		return punchcard.ErrReconciliationNotFound
	}
	return nil
}

// ==================== Transactions ====================

// Txn runs fn inside a MongoDB session transaction. Versioned puts guard
// each aggregate with a version predicate, so a lost race aborts the whole
// transaction with punchcard.ErrTxnConflict; transient transaction errors
// from the server are mapped to the same sentinel so callers retry the
// whole logical operation.
func (s *Store) Txn(ctx context.Context, fn func(ctx context.Context, tx punchstore.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("punchcard/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, &mongoTx{s: s})
	})
	if err != nil {
		if isTransient(err) {
			return punchcard.ErrTxnConflict
		}
		return err
	}
	return nil
}

type mongoTx struct {
	s *Store
}

func (tx *mongoTx) GetMemberPackage(ctx context.Context, pkgID id.MemberPackageID) (*pack.MemberPackage, error) {
	return tx.s.GetMemberPackage(ctx, pkgID)
}

func (tx *mongoTx) PutMemberPackage(ctx context.Context, p *pack.MemberPackage) error {
	m := toMemberPackageModel(p)
	m.Version = p.Version + 1
	m.UpdatedAt = time.Now().UTC()

	res, err := tx.s.db.Collection(colMemberPackages).ReplaceOne(ctx,
		bson.M{"_id": m.ID, "version": p.Version}, m)
	if err != nil {
		return fmt.Errorf("punchcard/mongo: put member package: %w", err)
	}
	if res.MatchedCount == 0 {
		// Either the document is gone or its version moved; both abort.
		return punchcard.ErrTxnConflict
	}
	return nil
}

func (tx *mongoTx) AppendDeduction(ctx context.Context, d *pack.Deduction) error {
	if _, err := tx.s.db.Collection(colDeductions).InsertOne(ctx, toDeductionModel(d)); err != nil {
		return fmt.Errorf("punchcard/mongo: append deduction: %w", err)
	}
	return nil
}

func (tx *mongoTx) GetIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error) {
	return tx.s.GetIntent(ctx, intentID)
}

func (tx *mongoTx) PutIntent(ctx context.Context, in *payment.Intent) error {
	m := toIntentModel(in)
	m.Version = in.Version + 1
	m.UpdatedAt = time.Now().UTC()

	res, err := tx.s.db.Collection(colIntents).ReplaceOne(ctx,
		bson.M{"_id": m.ID, "version": in.Version}, m)
	if err != nil {
		return fmt.Errorf("punchcard/mongo: put intent: %w", err)
	}
	if res.MatchedCount == 0 {
		return punchcard.ErrTxnConflict
	}
	return nil
}

// isTransient reports whether the error is a retryable transaction
// collision rather than a real failure.
func isTransient(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.HasErrorLabel("TransientTransactionError")
	}
	var labeled mongo.WriteException
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel("TransientTransactionError")
	}
	return false
}
