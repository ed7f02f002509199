package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/punchcard/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"DefinitionID", id.NewDefinitionID, "pdef_"},
		{"MemberPackageID", id.NewMemberPackageID, "mpkg_"},
		{"DeductionID", id.NewDeductionID, "ded_"},
		{"GroupID", id.NewGroupID, "grp_"},
		{"IntentID", id.NewIntentID, "pi_"},
		{"RefundID", id.NewRefundID, "ref_"},
		{"ReconciliationID", id.NewReconciliationID, "rcn_"},
		{"InvoiceID", id.NewInvoiceID, "inv_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixDefinition)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixDefinition {
		t.Errorf("expected prefix %q, got %q", id.PrefixDefinition, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"DefinitionID", id.NewDefinitionID, id.ParseDefinitionID},
		{"MemberPackageID", id.NewMemberPackageID, id.ParseMemberPackageID},
		{"DeductionID", id.NewDeductionID, id.ParseDeductionID},
		{"GroupID", id.NewGroupID, id.ParseGroupID},
		{"IntentID", id.NewIntentID, id.ParseIntentID},
		{"RefundID", id.NewRefundID, id.ParseRefundID},
		{"ReconciliationID", id.NewReconciliationID, id.ParseReconciliationID},
		{"InvoiceID", id.NewInvoiceID, id.ParseInvoiceID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseDefinitionID rejects mpkg_", id.NewMemberPackageID().String(), id.ParseDefinitionID},
		{"ParseMemberPackageID rejects ded_", id.NewDeductionID().String(), id.ParseMemberPackageID},
		{"ParseDeductionID rejects grp_", id.NewGroupID().String(), id.ParseDeductionID},
		{"ParseGroupID rejects pi_", id.NewIntentID().String(), id.ParseGroupID},
		{"ParseIntentID rejects ref_", id.NewRefundID().String(), id.ParseIntentID},
		{"ParseRefundID rejects rcn_", id.NewReconciliationID().String(), id.ParseRefundID},
		{"ParseReconciliationID rejects inv_", id.NewInvoiceID().String(), id.ParseReconciliationID},
		{"ParseInvoiceID rejects pdef_", id.NewDefinitionID().String(), id.ParseInvoiceID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseAny(t *testing.T) {
	ids := []id.ID{
		id.NewDefinitionID(),
		id.NewMemberPackageID(),
		id.NewDeductionID(),
		id.NewGroupID(),
		id.NewIntentID(),
		id.NewRefundID(),
		id.NewReconciliationID(),
		id.NewInvoiceID(),
	}

	for _, i := range ids {
		t.Run(i.String(), func(t *testing.T) {
			parsed, err := id.Parse(i.String())
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", i.String(), err)
			}
			if parsed.String() != i.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), i.String())
			}
		})
	}
}

func TestParseWithPrefix(t *testing.T) {
	i := id.NewDefinitionID()
	parsed, err := id.ParseWithPrefix(i.String(), id.PrefixDefinition)
	if err != nil {
		t.Fatalf("ParseWithPrefix failed: %v", err)
	}
	if parsed.String() != i.String() {
		t.Errorf("mismatch: %q != %q", parsed.String(), i.String())
	}

	_, err = id.ParseWithPrefix(i.String(), id.PrefixGroup)
	if err == nil {
		t.Error("expected error for wrong prefix")
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	if err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewDefinitionID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	// Nil round-trip.
	var nilID id.ID
	data, err = nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewMemberPackageID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}
}
