// Package id defines TypeID-based identity types for all Punchcard entities.
//
// Every entity in Punchcard uses a single ID struct with a prefix that
// identifies the entity type. IDs are K-sortable (UUIDv7-based), globally
// unique, and URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all Punchcard entity types.
const (
	PrefixDefinition     Prefix = "pdef" // Package definition (catalog template)
	PrefixMemberPackage  Prefix = "mpkg" // Sold member package
	PrefixDeduction      Prefix = "ded"  // Unit deduction ledger entry
	PrefixGroup          Prefix = "grp"  // Billing group
	PrefixIntent         Prefix = "pi"   // Payment intent
	PrefixRefund         Prefix = "ref"  // Local refund entry
	PrefixReconciliation Prefix = "rcn"  // Failed refund reconciliation record
	PrefixInvoice        Prefix = "inv"  // Invoice
)

// ID is the primary identifier type for all Punchcard entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "mpkg_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases per entity
// ──────────────────────────────────────────────────

// DefinitionID is a type-safe identifier for package definitions (prefix: "pdef").
type DefinitionID = ID

// MemberPackageID is a type-safe identifier for member packages (prefix: "mpkg").
type MemberPackageID = ID

// DeductionID is a type-safe identifier for deduction entries (prefix: "ded").
type DeductionID = ID

// GroupID is a type-safe identifier for billing groups (prefix: "grp").
type GroupID = ID

// IntentID is a type-safe identifier for payment intents (prefix: "pi").
type IntentID = ID

// RefundID is a type-safe identifier for local refund entries (prefix: "ref").
type RefundID = ID

// ReconciliationID is a type-safe identifier for reconciliation records (prefix: "rcn").
type ReconciliationID = ID

// InvoiceID is a type-safe identifier for invoices (prefix: "inv").
type InvoiceID = ID

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

// NewDefinitionID generates a new unique package definition ID.
func NewDefinitionID() ID { return New(PrefixDefinition) }

// NewMemberPackageID generates a new unique member package ID.
func NewMemberPackageID() ID { return New(PrefixMemberPackage) }

// NewDeductionID generates a new unique deduction ID.
func NewDeductionID() ID { return New(PrefixDeduction) }

// NewGroupID generates a new unique billing group ID.
func NewGroupID() ID { return New(PrefixGroup) }

// NewIntentID generates a new unique payment intent ID.
func NewIntentID() ID { return New(PrefixIntent) }

// NewRefundID generates a new unique refund entry ID.
func NewRefundID() ID { return New(PrefixRefund) }

// NewReconciliationID generates a new unique reconciliation record ID.
func NewReconciliationID() ID { return New(PrefixReconciliation) }

// NewInvoiceID generates a new unique invoice ID.
func NewInvoiceID() ID { return New(PrefixInvoice) }

// ──────────────────────────────────────────────────
// Convenience parsers
// ──────────────────────────────────────────────────

// ParseDefinitionID parses a string and validates the "pdef" prefix.
func ParseDefinitionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixDefinition) }

// ParseMemberPackageID parses a string and validates the "mpkg" prefix.
func ParseMemberPackageID(s string) (ID, error) { return ParseWithPrefix(s, PrefixMemberPackage) }

// ParseDeductionID parses a string and validates the "ded" prefix.
func ParseDeductionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixDeduction) }

// ParseGroupID parses a string and validates the "grp" prefix.
func ParseGroupID(s string) (ID, error) { return ParseWithPrefix(s, PrefixGroup) }

// ParseIntentID parses a string and validates the "pi" prefix.
func ParseIntentID(s string) (ID, error) { return ParseWithPrefix(s, PrefixIntent) }

// ParseRefundID parses a string and validates the "ref" prefix.
func ParseRefundID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRefund) }

// ParseReconciliationID parses a string and validates the "rcn" prefix.
func ParseReconciliationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixReconciliation) }

// ParseInvoiceID parses a string and validates the "inv" prefix.
func ParseInvoiceID(s string) (ID, error) { return ParseWithPrefix(s, PrefixInvoice) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
