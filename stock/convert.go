/*
convert.go - Unit conversion within measurement families

PURPOSE:
  Converts a quantity between units of the same measurement family using
  fixed linear factors. Cross-family conversion (pcs -> ml) is impossible
  and always fails with a ConversionError.

FAMILIES:
  mass:   g, kg   (kg = 1000 g)
  volume: ml, l   (l  = 1000 ml)
  count:  pcs

ROUNDING POLICY:
  Persisted values are rounded to StoragePrecision decimal places at
  WRITE time, never on read. This keeps floating accumulation bounded
  while leaving in-flight arithmetic exact.

  Converting a unit to itself is the identity and returns the value
  untouched - no factor is applied, so no drift is possible.
*/
package stock

import "github.com/shopspring/decimal"

// =============================================================================
// UNITS AND FAMILIES
// =============================================================================

type Unit string

const (
	UnitGram       Unit = "g"
	UnitKilogram   Unit = "kg"
	UnitMilliliter Unit = "ml"
	UnitLiter      Unit = "l"
	UnitPiece      Unit = "pcs"
)

type UnitFamily string

const (
	FamilyMass   UnitFamily = "mass"
	FamilyVolume UnitFamily = "volume"
	FamilyCount  UnitFamily = "count"
)

// factorToBase maps each unit to (family, multiplier into the family's base
// unit). Base units are g, ml, and pcs.
var factorToBase = map[Unit]struct {
	Family UnitFamily
	Factor decimal.Decimal
}{
	UnitGram:       {FamilyMass, decimal.NewFromInt(1)},
	UnitKilogram:   {FamilyMass, decimal.NewFromInt(1000)},
	UnitMilliliter: {FamilyVolume, decimal.NewFromInt(1)},
	UnitLiter:      {FamilyVolume, decimal.NewFromInt(1000)},
	UnitPiece:      {FamilyCount, decimal.NewFromInt(1)},
}

// ParseUnit rejects unknown units at the boundary. "L" and "l" are both
// accepted for liters; everything else is case-sensitive.
func ParseUnit(s string) (Unit, error) {
	if s == "L" {
		return UnitLiter, nil
	}
	if _, ok := factorToBase[Unit(s)]; ok {
		return Unit(s), nil
	}
	return "", &ValidationError{Field: "unit", Message: "unknown unit: " + s}
}

// FamilyOf returns the measurement family of a known unit.
func FamilyOf(u Unit) (UnitFamily, bool) {
	f, ok := factorToBase[u]
	return f.Family, ok
}

// Convertible reports whether from can be expressed in to.
func Convertible(from, to Unit) bool {
	ff, ok1 := factorToBase[from]
	tf, ok2 := factorToBase[to]
	return ok1 && ok2 && ff.Family == tf.Family
}

// =============================================================================
// CONVERSION
// =============================================================================

// Convert expresses value (in from) as a value in to.
// Identity conversions are exact: the input decimal is returned unchanged.
func Convert(value decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	if from == to {
		return value, nil
	}

	ff, ok := factorToBase[from]
	if !ok {
		return decimal.Zero, &ConversionError{From: from, To: to}
	}
	tf, ok := factorToBase[to]
	if !ok || ff.Family != tf.Family {
		return decimal.Zero, &ConversionError{From: from, To: to}
	}

	return value.Mul(ff.Factor).Div(tf.Factor), nil
}

// ConvertQuantity converts a Quantity to the target unit.
func ConvertQuantity(q Quantity, to Unit) (Quantity, error) {
	v, err := Convert(q.Value, q.Unit, to)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: v, Unit: to}, nil
}

// =============================================================================
// STORAGE ROUNDING
// =============================================================================

// StoragePrecision is the fixed decimal precision for persisted quantities.
const StoragePrecision = 2

// RoundForStorage applies the write-side rounding policy.
func RoundForStorage(d decimal.Decimal) decimal.Decimal {
	return d.Round(StoragePrecision)
}

// BelowStoragePrecision reports whether a positive amount rounds to zero
// under the write-side rounding policy. Such amounts cannot be persisted
// and must be rejected at validation time.
func BelowStoragePrecision(d decimal.Decimal) bool {
	return d.IsPositive() && RoundForStorage(d).IsZero()
}
