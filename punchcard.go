package punchcard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/punchcard/catalog"
	"github.com/xraph/punchcard/group"
	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/invoice"
	"github.com/xraph/punchcard/pack"
	"github.com/xraph/punchcard/payment"
	"github.com/xraph/punchcard/plugin"
	"github.com/xraph/punchcard/store"
	"github.com/xraph/punchcard/types"
)

// Authorizer gates the administrative mutations (cancellation, refunds,
// manual deductions, reconciliation resolution). Implementations typically
// delegate to the host application's role system.
type Authorizer interface {
	// CanManageBilling reports whether actorID may perform billing
	// mutations for orgID.
	CanManageBilling(ctx context.Context, orgID, actorID string) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, orgID, actorID string) (bool, error)

func (f AuthorizerFunc) CanManageBilling(ctx context.Context, orgID, actorID string) (bool, error) {
	return f(ctx, orgID, actorID)
}

// Engine is the prepaid package ledger.
type Engine struct {
	store      store.Store
	processor  payment.Processor
	plugins    *plugin.Registry
	logger     *slog.Logger
	authorizer Authorizer

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	sweepInterval   time.Duration
	sweepBatchSize  int
	conflictRetries uint
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		stopChan:        make(chan struct{}),
		sweepInterval:   time.Minute,
		sweepBatchSize:  100,
		conflictRetries: 3,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithProcessor sets the external payment processor used for refunds.
func WithProcessor(p payment.Processor) Option {
	return func(e *Engine) {
		e.processor = p
	}
}

// WithAuthorizer sets the authorization hook consulted before
// administrative mutations. Without one, all actors are allowed.
func WithAuthorizer(a Authorizer) Option {
	return func(e *Engine) {
		e.authorizer = a
	}
}

// WithExpirySweep configures the background expiry sweep. An interval of 0
// disables the worker.
func WithExpirySweep(interval time.Duration, batchSize int) Option {
	return func(e *Engine) {
		e.sweepInterval = interval
		e.sweepBatchSize = batchSize
	}
}

// WithConflictRetries sets how many times a deduction or cancellation is
// re-run after an optimistic transaction conflict before giving up.
func WithConflictRetries(n uint) Option {
	return func(e *Engine) {
		e.conflictRetries = n
	}
}

// Start migrates the store and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	if e.sweepInterval > 0 {
		e.wg.Add(1)
		go e.expirySweepWorker()
	}

	e.logger.Info("punchcard started",
		"sweep_interval", e.sweepInterval,
		"sweep_batch_size", e.sweepBatchSize,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Plugins exposes the plugin registry for inspection.
func (e *Engine) Plugins() *plugin.Registry {
	return e.plugins
}

func (e *Engine) authorize(ctx context.Context, orgID, actorID string) error {
	if e.authorizer == nil {
		return nil
	}
	ok, err := e.authorizer.CanManageBilling(ctx, orgID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// ──────────────────────────────────────────────────
// Package Catalog
// ──────────────────────────────────────────────────

// CreateDefinition creates a new package definition in the org's catalog.
func (e *Engine) CreateDefinition(ctx context.Context, d *catalog.PackageDefinition) error {
	if d.OrgID == "" {
		return ValidationError{Field: "org_id", Message: "required"}
	}
	if d.TotalUnits <= 0 {
		return ValidationError{Field: "total_units", Message: "must be positive"}
	}
	if len(d.ItemKinds) == 0 {
		return ValidationError{Field: "item_kinds", Message: "at least one billable item kind required"}
	}
	if d.Price.IsNegative() {
		return ValidationError{Field: "price", Message: "must not be negative"}
	}

	if d.ID.IsNil() {
		d.ID = id.NewDefinitionID()
	}
	d.Entity = types.NewEntity()
	d.Active = true

	if err := e.store.CreateDefinition(ctx, d); err != nil {
		return err
	}

	e.plugins.EmitDefinitionCreated(ctx, d)
	return nil
}

// GetDefinition retrieves a package definition by ID.
func (e *Engine) GetDefinition(ctx context.Context, defID id.DefinitionID) (*catalog.PackageDefinition, error) {
	return e.store.GetDefinition(ctx, defID)
}

// ListDefinitions lists an org's package definitions.
func (e *Engine) ListDefinitions(ctx context.Context, orgID string, opts catalog.ListOpts) ([]*catalog.PackageDefinition, error) {
	return e.store.ListDefinitions(ctx, orgID, opts)
}

// UpdateDefinition updates a definition's catalog attributes. Already-sold
// packages keep the price and policies captured at purchase; coverage and
// transferability changes apply to them immediately.
func (e *Engine) UpdateDefinition(ctx context.Context, d *catalog.PackageDefinition) error {
	if d.ID.IsNil() {
		return ValidationError{Field: "id", Message: "required"}
	}
	if d.TotalUnits <= 0 {
		return ValidationError{Field: "total_units", Message: "must be positive"}
	}
	d.Touch()
	return e.store.UpdateDefinition(ctx, d)
}

// DeactivateDefinition retires a definition from sale. Existing member
// packages are unaffected; definitions are never deleted.
func (e *Engine) DeactivateDefinition(ctx context.Context, defID id.DefinitionID) error {
	d, err := e.store.GetDefinition(ctx, defID)
	if err != nil {
		return err
	}
	if !d.Active {
		return nil
	}

	d.Active = false
	d.Touch()
	if err := e.store.UpdateDefinition(ctx, d); err != nil {
		return err
	}

	e.plugins.EmitDefinitionDeactivated(ctx, defID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Package Sales
// ──────────────────────────────────────────────────

// PurchaseParams describes a package sale.
type PurchaseParams struct {
	OrgID        string
	MemberID     string
	DefinitionID id.DefinitionID
	// GroupID assigns the package to a billing group. Requires the
	// definition to be transferable within groups.
	GroupID id.GroupID
	ActorID string
}

// PurchasePackage sells a package to a member, capturing the definition's
// current price and policies on the package so later catalog edits never
// change terms already sold.
func (e *Engine) PurchasePackage(ctx context.Context, params PurchaseParams) (*pack.MemberPackage, error) {
	if params.OrgID == "" {
		return nil, ValidationError{Field: "org_id", Message: "required"}
	}
	if params.MemberID == "" {
		return nil, ValidationError{Field: "member_id", Message: "required"}
	}

	def, err := e.store.GetDefinition(ctx, params.DefinitionID)
	if err != nil {
		return nil, err
	}
	if def.OrgID != params.OrgID {
		return nil, ErrDefinitionNotFound
	}
	if !def.Active {
		return nil, ErrDefinitionInactive
	}

	if !params.GroupID.IsNil() {
		if !def.TransferableWithinGroup {
			return nil, ErrNotTransferable
		}
		g, err := e.store.GetGroup(ctx, params.GroupID)
		if err != nil {
			return nil, err
		}
		if g.OrgID != params.OrgID {
			return nil, ErrGroupNotFound
		}
	}

	now := time.Now().UTC()
	p := &pack.MemberPackage{
		Entity:             types.NewEntity(),
		ID:                 id.NewMemberPackageID(),
		OrgID:              params.OrgID,
		DefinitionID:       def.ID,
		MemberID:           params.MemberID,
		GroupID:            params.GroupID,
		TotalUnits:         def.TotalUnits,
		RemainingUnits:     def.TotalUnits,
		Status:             pack.StatusActive,
		PurchasedAt:        now,
		Price:              def.Price,
		CancellationPolicy: def.CancellationPolicy,
		ExpiryPolicy:       def.ExpiryPolicy,
		ValidityDays:       def.ValidityDays,
	}
	if def.ValidityDays > 0 {
		exp := now.AddDate(0, 0, def.ValidityDays)
		p.ExpiresAt = &exp
	}

	if err := e.store.CreateMemberPackage(ctx, p); err != nil {
		return nil, err
	}

	e.plugins.EmitPackagePurchased(ctx, p)
	e.logger.Debug("package purchased",
		"package_id", p.ID,
		"org_id", p.OrgID,
		"member_id", p.MemberID,
		"units", p.TotalUnits,
	)
	return p, nil
}

// GetMemberPackage retrieves one member package.
func (e *Engine) GetMemberPackage(ctx context.Context, pkgID id.MemberPackageID) (*pack.MemberPackage, error) {
	return e.store.GetMemberPackage(ctx, pkgID)
}

// ListMemberPackages lists a member's packages.
func (e *Engine) ListMemberPackages(ctx context.Context, orgID, memberID string, opts pack.ListOpts) ([]*pack.MemberPackage, error) {
	return e.store.ListMemberPackages(ctx, orgID, memberID, opts)
}

// ListDeductions returns the append-only deduction ledger for a package.
func (e *Engine) ListDeductions(ctx context.Context, orgID string, pkgID id.MemberPackageID) ([]*pack.Deduction, error) {
	return e.store.ListDeductions(ctx, orgID, pkgID)
}

// ──────────────────────────────────────────────────
// Billing Groups
// ──────────────────────────────────────────────────

// CreateGroup creates a billing group (e.g. a family sharing packages).
func (e *Engine) CreateGroup(ctx context.Context, g *group.BillingGroup) error {
	if g.OrgID == "" {
		return ValidationError{Field: "org_id", Message: "required"}
	}
	if len(g.MemberIDs) == 0 {
		return ValidationError{Field: "member_ids", Message: "at least one member required"}
	}

	if g.ID.IsNil() {
		g.ID = id.NewGroupID()
	}
	g.Entity = types.NewEntity()

	return e.store.CreateGroup(ctx, g)
}

// GetGroup retrieves a billing group by ID.
func (e *Engine) GetGroup(ctx context.Context, groupID id.GroupID) (*group.BillingGroup, error) {
	return e.store.GetGroup(ctx, groupID)
}

// ListGroupsForMember lists the billing groups a member belongs to.
func (e *Engine) ListGroupsForMember(ctx context.Context, orgID, memberID string) ([]*group.BillingGroup, error) {
	return e.store.ListGroupsForMember(ctx, orgID, memberID)
}

// ──────────────────────────────────────────────────
// Payment Intents & Invoices
// ──────────────────────────────────────────────────

// RecordPaymentIntent records a succeeded external charge so refunds can be
// issued against it later.
func (e *Engine) RecordPaymentIntent(ctx context.Context, in *payment.Intent) error {
	if in.OrgID == "" {
		return ValidationError{Field: "org_id", Message: "required"}
	}
	if in.ChargeID == "" {
		return ValidationError{Field: "charge_id", Message: "required"}
	}
	if !in.Amount.IsPositive() {
		return ValidationError{Field: "amount", Message: "must be positive"}
	}

	if in.ID.IsNil() {
		in.ID = id.NewIntentID()
	}
	in.Entity = types.NewEntity()
	in.Status = payment.IntentSucceeded
	in.TotalRefunded = types.Money{Amount: 0, Currency: in.Amount.Currency}

	return e.store.CreateIntent(ctx, in)
}

// GetPaymentIntent retrieves a payment intent by ID.
func (e *Engine) GetPaymentIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error) {
	return e.store.GetIntent(ctx, intentID)
}

// CreateInvoice records an invoice an intent may reference.
func (e *Engine) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if inv.OrgID == "" {
		return ValidationError{Field: "org_id", Message: "required"}
	}
	if inv.ID.IsNil() {
		inv.ID = id.NewInvoiceID()
	}
	inv.Entity = types.NewEntity()
	if inv.Status == "" {
		inv.Status = invoice.StatusOpen
	}
	return e.store.CreateInvoice(ctx, inv)
}

// GetInvoice retrieves an invoice by ID.
func (e *Engine) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invID)
}

// ──────────────────────────────────────────────────
// Reconciliation
// ──────────────────────────────────────────────────

// ListPendingReconciliations lists the org's unresolved reconciliation
// records. These represent money movements the ledger could not record and
// require operator attention.
func (e *Engine) ListPendingReconciliations(ctx context.Context, orgID, actorID string) ([]*payment.Reconciliation, error) {
	if err := e.authorize(ctx, orgID, actorID); err != nil {
		return nil, err
	}
	return e.store.ListPendingReconciliations(ctx, orgID)
}

// ResolveParams identifies a reconciliation record to close out.
type ResolveParams struct {
	OrgID            string
	ReconciliationID id.ReconciliationID
	// Note records what the operator did (e.g. "refund entry backfilled",
	// "processor confirmed no refund was created").
	Note    string
	ActorID string
}

// ResolveReconciliation marks a reconciliation record as resolved after an
// operator has verified the processor-side state and repaired the ledger.
func (e *Engine) ResolveReconciliation(ctx context.Context, params ResolveParams) (*payment.Reconciliation, error) {
	if err := e.authorize(ctx, params.OrgID, params.ActorID); err != nil {
		return nil, err
	}

	rec, err := e.store.GetReconciliation(ctx, params.ReconciliationID)
	if err != nil {
		return nil, err
	}
	if rec.OrgID != params.OrgID {
		return nil, ErrReconciliationNotFound
	}
	if rec.Status == payment.ReconciliationResolved {
		return nil, ErrReconciliationResolved
	}

	now := time.Now().UTC()
	rec.Status = payment.ReconciliationResolved
	rec.ResolvedAt = &now
	rec.ResolvedBy = params.ActorID
	rec.ResolutionNote = params.Note
	rec.Touch()

	if err := e.store.UpdateReconciliation(ctx, rec); err != nil {
		return nil, err
	}

	e.logger.Info("reconciliation resolved",
		"reconciliation_id", rec.ID,
		"intent_id", rec.IntentID,
		"resolved_by", params.ActorID,
	)
	return rec, nil
}

// ──────────────────────────────────────────────────
// Expiry Sweep
// ──────────────────────────────────────────────────

// expirySweepWorker periodically transitions packages past their expiry to
// expired status. Expiry is also enforced lazily on the deduction path, so
// the sweep only keeps reporting state tidy.
func (e *Engine) expirySweepWorker() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.SweepExpired(context.Background())
		}
	}
}

// SweepExpired transitions one batch of expired-but-still-active packages.
// Exposed so hosts without the background worker can drive sweeps from
// their own scheduler.
func (e *Engine) SweepExpired(ctx context.Context) {
	now := time.Now().UTC()
	pkgs, err := e.store.ListExpiredActive(ctx, now, e.sweepBatchSize)
	if err != nil {
		e.logger.Error("expiry sweep listing failed", "error", err)
		return
	}

	for _, candidate := range pkgs {
		var swept *pack.MemberPackage
		err := e.store.Txn(ctx, func(ctx context.Context, tx store.Tx) error {
			p, err := tx.GetMemberPackage(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// A concurrent deduction or cancellation may have moved the
			// package on since the listing.
			if p.Status != pack.StatusActive || !p.ExpiredAt(now) {
				return nil
			}
			p.Status = pack.StatusExpired
			p.Touch()
			if err := tx.PutMemberPackage(ctx, p); err != nil {
				return err
			}
			swept = p
			return nil
		})
		if err != nil {
			// Conflicts just mean someone else won; the next sweep
			// retries anything still expired.
			if !IsConflict(err) {
				e.logger.Error("expiry sweep failed",
					"package_id", candidate.ID,
					"error", err,
				)
			}
			continue
		}
		if swept != nil {
			e.plugins.EmitPackageExpired(ctx, swept)
			e.logger.Debug("package expired", "package_id", swept.ID)
		}
	}
}
