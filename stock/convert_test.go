package stock

import (
	"testing"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONVERSION TESTS
// =============================================================================

func TestConvert_WithinFamily(t *testing.T) {
	// GIVEN: 2 kg
	// WHEN: Converting to grams
	// THEN: 2000 g

	got, err := Convert(decimal.NewFromInt(2), UnitKilogram, UnitGram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("expected 2000, got %s", got)
	}
}

func TestConvert_DownScale(t *testing.T) {
	// 1500 ml -> 1.5 l
	got, err := Convert(decimal.NewFromInt(1500), UnitMilliliter, UnitLiter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("expected 1.5, got %s", got)
	}
}

func TestConvert_Identity_Exact(t *testing.T) {
	// GIVEN: A value with more precision than the storage policy keeps
	// WHEN: Converting a unit to itself
	// THEN: The value is returned untouched, no factor applied

	in := decimal.RequireFromString("123.456789")
	got, err := Convert(in, UnitGram, UnitGram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(in) {
		t.Errorf("identity conversion changed the value: %s -> %s", in, got)
	}
}

func TestConvert_CrossFamily_Fails(t *testing.T) {
	// pcs -> ml has no defined meaning
	_, err := Convert(decimal.NewFromInt(3), UnitPiece, UnitMilliliter)
	if err == nil {
		t.Fatal("expected cross-family conversion to fail")
	}
	convErr, ok := err.(*ConversionError)
	if !ok {
		t.Fatalf("expected *ConversionError, got %T", err)
	}
	if convErr.From != UnitPiece || convErr.To != UnitMilliliter {
		t.Errorf("error carries wrong units: %v", convErr)
	}
}

func TestConvert_RoundTrip(t *testing.T) {
	// g -> kg -> g must land on the original value
	in := decimal.RequireFromString("1234.56")
	kg, err := Convert(in, UnitGram, UnitKilogram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back, err := Convert(kg, UnitKilogram, UnitGram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !back.Equal(in) {
		t.Errorf("round trip drifted: %s -> %s -> %s", in, kg, back)
	}
}

func TestParseUnit(t *testing.T) {
	cases := []struct {
		in      string
		want    Unit
		wantErr bool
	}{
		{"g", UnitGram, false},
		{"kg", UnitKilogram, false},
		{"ml", UnitMilliliter, false},
		{"l", UnitLiter, false},
		{"L", UnitLiter, false},
		{"pcs", UnitPiece, false},
		{"oz", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := ParseUnit(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseUnit(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseUnit(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseUnit(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRoundForStorage(t *testing.T) {
	got := RoundForStorage(decimal.RequireFromString("10.005"))
	if !got.Equal(decimal.RequireFromString("10.01")) {
		t.Errorf("expected 10.01, got %s", got)
	}
	got = RoundForStorage(decimal.RequireFromString("10.004"))
	if !got.Equal(decimal.RequireFromString("10")) {
		t.Errorf("expected 10, got %s", got)
	}
}

func TestBelowStoragePrecision(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"0.004", true},
		{"0.005", false}, // rounds half away from zero to 0.01
		{"0.01", false},
		{"1", false},
		{"0", false},
		{"-0.004", false},
	}
	for _, c := range cases {
		if got := BelowStoragePrecision(decimal.RequireFromString(c.in)); got != c.want {
			t.Errorf("BelowStoragePrecision(%s) = %v, want %v", c.in, got, c.want)
		}
	}
}
