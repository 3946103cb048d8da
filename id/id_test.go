package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/plate/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"LicensePlateID", id.NewLicensePlateID, "lp_"},
		{"ReservationID", id.NewReservationID, "rsv_"},
		{"GenealogyID", id.NewGenealogyID, "gen_"},
		{"AuditID", id.NewAuditID, "aud_"},
		{"EventID", id.NewEventID, "evt_"},
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

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"LicensePlateID", id.NewLicensePlateID, id.ParseLicensePlateID},
		{"ReservationID", id.NewReservationID, id.ParseReservationID},
		{"GenealogyID", id.NewGenealogyID, id.ParseGenealogyID},
		{"AuditID", id.NewAuditID, id.ParseAuditID},
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
		{"ParseLicensePlateID rejects rsv_", id.NewReservationID().String(), id.ParseLicensePlateID},
		{"ParseReservationID rejects lp_", id.NewLicensePlateID().String(), id.ParseReservationID},
		{"ParseGenealogyID rejects aud_", id.NewAuditID().String(), id.ParseGenealogyID},
		{"ParseAuditID rejects gen_", id.NewGenealogyID().String(), id.ParseAuditID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
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
	original := id.NewLicensePlateID()
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
	original := id.NewReservationID()
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

	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var scanned2 id.ID
	if err := scanned2.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of nil")
	}

	if err := scanned2.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}

func TestLessIsTotalOrder(t *testing.T) {
	a := id.NewLicensePlateID()
	b := id.NewLicensePlateID()

	if a.Less(a) {
		t.Error("an ID must not sort before itself")
	}
	if a.Less(b) == b.Less(a) {
		t.Errorf("exactly one of %q < %q and %q < %q must hold", a, b, b, a)
	}
	if !id.Nil.Less(a) {
		t.Error("the Nil ID sorts first")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewLicensePlateID()
	b := id.NewLicensePlateID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewLicensePlateID() calls returned the same ID: %q", a.String())
	}
}
