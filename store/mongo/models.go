package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/punchcard/catalog"
	"github.com/xraph/punchcard/group"
	"github.com/xraph/punchcard/id"
	"github.com/xraph/punchcard/invoice"
	"github.com/xraph/punchcard/pack"
	"github.com/xraph/punchcard/payment"
	"github.com/xraph/punchcard/types"
)

// Monetary values are persisted as an amount/currency pair of scalar
// fields so they stay queryable and integer-exact.

// ==================== Package definition models ====================

type definitionModel struct {
	ID                 string            `bson:"_id"`
	OrgID              string            `bson:"org_id"`
	Name               string            `bson:"name"`
	Description        string            `bson:"description,omitempty"`
	TotalUnits         int64             `bson:"total_units"`
	PriceAmount        int64             `bson:"price_amount"`
	PriceCurrency      string            `bson:"price_currency"`
	ItemKinds          []string          `bson:"item_kinds"`
	ExpiryPolicy       string            `bson:"expiry_policy"`
	CancellationPolicy string            `bson:"cancellation_policy"`
	ValidityDays       int               `bson:"validity_days,omitempty"`
	Transferable       bool              `bson:"transferable_within_group"`
	Active             bool              `bson:"active"`
	Metadata           map[string]string `bson:"metadata,omitempty"`
	CreatedAt          time.Time         `bson:"created_at"`
	UpdatedAt          time.Time         `bson:"updated_at"`
}

func toDefinitionModel(d *catalog.PackageDefinition) *definitionModel {
	return &definitionModel{
		ID:                 d.ID.String(),
		OrgID:              d.OrgID,
		Name:               d.Name,
		Description:        d.Description,
		TotalUnits:         d.TotalUnits,
		PriceAmount:        d.Price.Amount,
		PriceCurrency:      d.Price.Currency,
		ItemKinds:          d.ItemKinds,
		ExpiryPolicy:       string(d.ExpiryPolicy),
		CancellationPolicy: string(d.CancellationPolicy),
		ValidityDays:       d.ValidityDays,
		Transferable:       d.TransferableWithinGroup,
		Active:             d.Active,
		Metadata:           d.Metadata,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func fromDefinitionModel(m *definitionModel) (*catalog.PackageDefinition, error) {
	defID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: definition id: %w", err)
	}
	return &catalog.PackageDefinition{
		Entity:                  types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                      defID,
		OrgID:                   m.OrgID,
		Name:                    m.Name,
		Description:             m.Description,
		TotalUnits:              m.TotalUnits,
		Price:                   types.Money{Amount: m.PriceAmount, Currency: m.PriceCurrency},
		ItemKinds:               m.ItemKinds,
		ExpiryPolicy:            catalog.ExpiryPolicy(m.ExpiryPolicy),
		CancellationPolicy:      catalog.CancellationPolicy(m.CancellationPolicy),
		ValidityDays:            m.ValidityDays,
		TransferableWithinGroup: m.Transferable,
		Active:                  m.Active,
		Metadata:                m.Metadata,
	}, nil
}

// ==================== Member package models ====================

type memberPackageModel struct {
	ID                 string     `bson:"_id"`
	OrgID              string     `bson:"org_id"`
	DefinitionID       string     `bson:"definition_id"`
	MemberID           string     `bson:"member_id"`
	GroupID            string     `bson:"group_id,omitempty"`
	TotalUnits         int64      `bson:"total_units"`
	RemainingUnits     int64      `bson:"remaining_units"`
	Status             string     `bson:"status"`
	PurchasedAt        time.Time  `bson:"purchased_at"`
	ExpiresAt          *time.Time `bson:"expires_at,omitempty"`
	PriceAmount        int64      `bson:"price_amount"`
	PriceCurrency      string     `bson:"price_currency"`
	CancellationPolicy string     `bson:"cancellation_policy"`
	ExpiryPolicy       string     `bson:"expiry_policy"`
	ValidityDays       int        `bson:"validity_days,omitempty"`
	CancelledAt        *time.Time `bson:"cancelled_at,omitempty"`
	RefundAmount       *int64     `bson:"refund_amount,omitempty"`
	RefundCurrency     string     `bson:"refund_currency,omitempty"`
	Version            int64      `bson:"version"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

func toMemberPackageModel(p *pack.MemberPackage) *memberPackageModel {
	m := &memberPackageModel{
		ID:                 p.ID.String(),
		OrgID:              p.OrgID,
		DefinitionID:       p.DefinitionID.String(),
		MemberID:           p.MemberID,
		TotalUnits:         p.TotalUnits,
		RemainingUnits:     p.RemainingUnits,
		Status:             string(p.Status),
		PurchasedAt:        p.PurchasedAt,
		ExpiresAt:          p.ExpiresAt,
		PriceAmount:        p.Price.Amount,
		PriceCurrency:      p.Price.Currency,
		CancellationPolicy: string(p.CancellationPolicy),
		ExpiryPolicy:       string(p.ExpiryPolicy),
		ValidityDays:       p.ValidityDays,
		CancelledAt:        p.CancelledAt,
		Version:            p.Version,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	if !p.GroupID.IsNil() {
		m.GroupID = p.GroupID.String()
	}
	if p.RefundAmount != nil {
		amt := p.RefundAmount.Amount
		m.RefundAmount = &amt
		m.RefundCurrency = p.RefundAmount.Currency
	}
	return m
}

func fromMemberPackageModel(m *memberPackageModel) (*pack.MemberPackage, error) {
	pkgID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: member package id: %w", err)
	}
	defID, err := id.Parse(m.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: definition id: %w", err)
	}

	p := &pack.MemberPackage{
		Entity:             types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                 pkgID,
		OrgID:              m.OrgID,
		DefinitionID:       defID,
		MemberID:           m.MemberID,
		TotalUnits:         m.TotalUnits,
		RemainingUnits:     m.RemainingUnits,
		Status:             pack.Status(m.Status),
		PurchasedAt:        m.PurchasedAt,
		ExpiresAt:          m.ExpiresAt,
		Price:              types.Money{Amount: m.PriceAmount, Currency: m.PriceCurrency},
		CancellationPolicy: catalog.CancellationPolicy(m.CancellationPolicy),
		ExpiryPolicy:       catalog.ExpiryPolicy(m.ExpiryPolicy),
		ValidityDays:       m.ValidityDays,
		CancelledAt:        m.CancelledAt,
		Version:            m.Version,
	}
	if m.GroupID != "" {
		gid, err := id.Parse(m.GroupID)
		if err != nil {
			return nil, fmt.Errorf("punchcard/mongo: group id: %w", err)
		}
		p.GroupID = gid
	}
	if m.RefundAmount != nil {
		p.RefundAmount = &types.Money{Amount: *m.RefundAmount, Currency: m.RefundCurrency}
	}
	return p, nil
}

// ==================== Deduction models ====================

type deductionModel struct {
	ID              string    `bson:"_id"`
	MemberPackageID string    `bson:"member_package_id"`
	OrgID           string    `bson:"org_id"`
	MemberID        string    `bson:"member_id"`
	Units           int64     `bson:"units"`
	ItemKind        string    `bson:"item_kind,omitempty"`
	ItemID          string    `bson:"item_id,omitempty"`
	ActorID         string    `bson:"actor_id"`
	At              time.Time `bson:"at"`
}

func toDeductionModel(d *pack.Deduction) *deductionModel {
	return &deductionModel{
		ID:              d.ID.String(),
		MemberPackageID: d.MemberPackageID.String(),
		OrgID:           d.OrgID,
		MemberID:        d.MemberID,
		Units:           d.Units,
		ItemKind:        d.ItemKind,
		ItemID:          d.ItemID,
		ActorID:         d.ActorID,
		At:              d.At,
	}
}

func fromDeductionModel(m *deductionModel) (*pack.Deduction, error) {
	dedID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: deduction id: %w", err)
	}
	pkgID, err := id.Parse(m.MemberPackageID)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: member package id: %w", err)
	}
	return &pack.Deduction{
		ID:              dedID,
		MemberPackageID: pkgID,
		OrgID:           m.OrgID,
		MemberID:        m.MemberID,
		Units:           m.Units,
		ItemKind:        m.ItemKind,
		ItemID:          m.ItemID,
		ActorID:         m.ActorID,
		At:              m.At,
	}, nil
}

// ==================== Billing group models ====================

type groupModel struct {
	ID        string    `bson:"_id"`
	OrgID     string    `bson:"org_id"`
	Name      string    `bson:"name"`
	MemberIDs []string  `bson:"member_ids"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toGroupModel(g *group.BillingGroup) *groupModel {
	return &groupModel{
		ID:        g.ID.String(),
		OrgID:     g.OrgID,
		Name:      g.Name,
		MemberIDs: g.MemberIDs,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func fromGroupModel(m *groupModel) (*group.BillingGroup, error) {
	gid, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: group id: %w", err)
	}
	return &group.BillingGroup{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        gid,
		OrgID:     m.OrgID,
		Name:      m.Name,
		MemberIDs: m.MemberIDs,
	}, nil
}

// ==================== Payment intent models ====================

type intentModel struct {
	ID              string             `bson:"_id"`
	OrgID           string             `bson:"org_id"`
	ChargeID        string             `bson:"charge_id"`
	MerchantAccount string             `bson:"merchant_account,omitempty"`
	Amount          int64              `bson:"amount"`
	Currency        string             `bson:"currency"`
	TotalRefunded   int64              `bson:"total_refunded"`
	Status          string             `bson:"status"`
	InvoiceID       string             `bson:"invoice_id,omitempty"`
	Refunds         []refundEntryModel `bson:"refunds,omitempty"`
	Version         int64              `bson:"version"`
	CreatedAt       time.Time          `bson:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"`
}

type refundEntryModel struct {
	ID         string    `bson:"id"`
	ExternalID string    `bson:"external_id"`
	Amount     int64     `bson:"amount"`
	Currency   string    `bson:"currency"`
	Reason     string    `bson:"reason,omitempty"`
	ActorID    string    `bson:"actor_id"`
	At         time.Time `bson:"at"`
}

func toIntentModel(in *payment.Intent) *intentModel {
	refunds := make([]refundEntryModel, len(in.Refunds))
	for i, r := range in.Refunds {
		refunds[i] = refundEntryModel{
			ID:         r.ID.String(),
			ExternalID: r.ExternalID,
			Amount:     r.Amount.Amount,
			Currency:   r.Amount.Currency,
			Reason:     r.Reason,
			ActorID:    r.ActorID,
			At:         r.At,
		}
	}
	m := &intentModel{
		ID:              in.ID.String(),
		OrgID:           in.OrgID,
		ChargeID:        in.ChargeID,
		MerchantAccount: in.MerchantAccount,
		Amount:          in.Amount.Amount,
		Currency:        in.Amount.Currency,
		TotalRefunded:   in.TotalRefunded.Amount,
		Status:          string(in.Status),
		Refunds:         refunds,
		Version:         in.Version,
		CreatedAt:       in.CreatedAt,
		UpdatedAt:       in.UpdatedAt,
	}
	if !in.InvoiceID.IsNil() {
		m.InvoiceID = in.InvoiceID.String()
	}
	return m
}

func fromIntentModel(m *intentModel) (*payment.Intent, error) {
	intentID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: intent id: %w", err)
	}

	in := &payment.Intent{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              intentID,
		OrgID:           m.OrgID,
		ChargeID:        m.ChargeID,
		MerchantAccount: m.MerchantAccount,
		Amount:          types.Money{Amount: m.Amount, Currency: m.Currency},
		TotalRefunded:   types.Money{Amount: m.TotalRefunded, Currency: m.Currency},
		Status:          payment.IntentStatus(m.Status),
		Version:         m.Version,
	}
	if m.InvoiceID != "" {
		invID, err := id.Parse(m.InvoiceID)
		if err != nil {
			return nil, fmt.Errorf("punchcard/mongo: invoice id: %w", err)
		}
		in.InvoiceID = invID
	}
	for _, r := range m.Refunds {
		refID, err := id.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("punchcard/mongo: refund id: %w", err)
		}
		in.Refunds = append(in.Refunds, payment.RefundEntry{
			ID:         refID,
			ExternalID: r.ExternalID,
			Amount:     types.Money{Amount: r.Amount, Currency: r.Currency},
			Reason:     r.Reason,
			ActorID:    r.ActorID,
			At:         r.At,
		})
	}
	return in, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	ID         string    `bson:"_id"`
	OrgID      string    `bson:"org_id"`
	MemberID   string    `bson:"member_id,omitempty"`
	Total      int64     `bson:"total"`
	AmountPaid int64     `bson:"amount_paid"`
	AmountDue  int64     `bson:"amount_due"`
	Currency   string    `bson:"currency"`
	Status     string    `bson:"status"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	return &invoiceModel{
		ID:         inv.ID.String(),
		OrgID:      inv.OrgID,
		MemberID:   inv.MemberID,
		Total:      inv.Total.Amount,
		AmountPaid: inv.AmountPaid.Amount,
		AmountDue:  inv.AmountDue.Amount,
		Currency:   inv.Total.Currency,
		Status:     string(inv.Status),
		CreatedAt:  inv.CreatedAt,
		UpdatedAt:  inv.UpdatedAt,
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: invoice id: %w", err)
	}
	return &invoice.Invoice{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         invID,
		OrgID:      m.OrgID,
		MemberID:   m.MemberID,
		Total:      types.Money{Amount: m.Total, Currency: m.Currency},
		AmountPaid: types.Money{Amount: m.AmountPaid, Currency: m.Currency},
		AmountDue:  types.Money{Amount: m.AmountDue, Currency: m.Currency},
		Status:     invoice.Status(m.Status),
	}, nil
}

// ==================== Reconciliation models ====================

type reconciliationModel struct {
	ID               string     `bson:"_id"`
	OrgID            string     `bson:"org_id"`
	IntentID         string     `bson:"intent_id"`
	ChargeID         string     `bson:"charge_id"`
	ExternalRefundID string     `bson:"external_refund_id,omitempty"`
	Amount           int64      `bson:"amount"`
	Currency         string     `bson:"currency"`
	Reason           string     `bson:"reason"`
	Status           string     `bson:"status"`
	ResolvedAt       *time.Time `bson:"resolved_at,omitempty"`
	ResolvedBy       string     `bson:"resolved_by,omitempty"`
	ResolutionNote   string     `bson:"resolution_note,omitempty"`
	CreatedAt        time.Time  `bson:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at"`
}

func toReconciliationModel(r *payment.Reconciliation) *reconciliationModel {
	return &reconciliationModel{
		ID:               r.ID.String(),
		OrgID:            r.OrgID,
		IntentID:         r.IntentID.String(),
		ChargeID:         r.ChargeID,
		ExternalRefundID: r.ExternalRefundID,
		Amount:           r.Amount.Amount,
		Currency:         r.Amount.Currency,
		Reason:           r.Reason,
		Status:           string(r.Status),
		ResolvedAt:       r.ResolvedAt,
		ResolvedBy:       r.ResolvedBy,
		ResolutionNote:   r.ResolutionNote,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func fromReconciliationModel(m *reconciliationModel) (*payment.Reconciliation, error) {
	recID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: reconciliation id: %w", err)
	}
	intentID, err := id.Parse(m.IntentID)
	if err != nil {
		return nil, fmt.Errorf("punchcard/mongo: intent id: %w", err)
	}
	return &payment.Reconciliation{
		Entity:           types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:               recID,
		OrgID:            m.OrgID,
		IntentID:         intentID,
		ChargeID:         m.ChargeID,
		ExternalRefundID: m.ExternalRefundID,
		Amount:           types.Money{Amount: m.Amount, Currency: m.Currency},
		Reason:           m.Reason,
		Status:           payment.ReconciliationStatus(m.Status),
		ResolvedAt:       m.ResolvedAt,
		ResolvedBy:       m.ResolvedBy,
		ResolutionNote:   m.ResolutionNote,
	}, nil
}
