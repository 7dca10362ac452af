/*
Package stock provides the ingredient batch ledger and consumption engine.

PURPOSE:
  This package contains the core types and algorithms for managing café
  stock as discrete, dated batches. Every sale, transfer, or spoilage
  event drains batches deterministically (soonest-expiring first), and
  every drain is recorded in an append-only audit trail.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: A measured amount with a unit (e.g., 500 ml, 2 kg, 12 pcs)
  - Ingredient: Per-ingredient aggregate (total, threshold, archive flag)
  - Batch: A dated lot with its own remaining quantity and expiration
  - ConsumptionRecord: Immutable ledger entry for a single batch drain

DESIGN PRINCIPLES:
  1. Immutability: ConsumptionRecords are never modified or deleted
  2. Precision: Uses decimal.Decimal to avoid floating-point drift
  3. Type Safety: Strong typing for IDs and closed enums for units,
     categories, statuses, and reasons - unknown values are rejected at
     the boundary, not at consumption time
  4. Determinism: Batch selection order is fully specified (see batch.go)

SEE ALSO:
  - convert.go: Unit conversion within measurement families
  - engine.go:  Stock-in, consumption, and spoilage operations
  - notify.go:  Threshold evaluation and the live notification feed
*/
package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Measured amount with unit
// =============================================================================

type Quantity struct {
	Value decimal.Decimal
	Unit  Unit
}

func NewQuantity(value float64, unit Unit) Quantity {
	return Quantity{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewQuantityFromInt(value int, unit Unit) Quantity {
	return Quantity{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func (q Quantity) Zero() Quantity              { return Quantity{Value: decimal.Zero, Unit: q.Unit} }
func (q Quantity) Add(b Quantity) Quantity     { return Quantity{Value: q.Value.Add(b.Value), Unit: q.Unit} }
func (q Quantity) Sub(b Quantity) Quantity     { return Quantity{Value: q.Value.Sub(b.Value), Unit: q.Unit} }
func (q Quantity) Mul(s decimal.Decimal) Quantity { return Quantity{Value: q.Value.Mul(s), Unit: q.Unit} }
func (q Quantity) IsZero() bool                { return q.Value.IsZero() }
func (q Quantity) IsNegative() bool            { return q.Value.IsNegative() }
func (q Quantity) IsPositive() bool            { return q.Value.IsPositive() }
func (q Quantity) GreaterThan(b Quantity) bool { return q.Value.GreaterThan(b.Value) }
func (q Quantity) LessThan(b Quantity) bool    { return q.Value.LessThan(b.Value) }
func (q Quantity) Min(b Quantity) Quantity {
	if q.LessThan(b) {
		return q
	}
	return b
}

func (q Quantity) String() string { return q.Value.String() + " " + string(q.Unit) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type IngredientID string
type BatchID string
type RecordID string

// =============================================================================
// CLOSED ENUMERATIONS
// =============================================================================

// Category classifies what kind of stock an ingredient is.
type Category string

const (
	CategorySolid    Category = "solid_ingredient"
	CategoryLiquid   Category = "liquid_ingredient"
	CategoryMaterial Category = "material"
)

// ParseCategory rejects unknown category values at the boundary.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategorySolid, CategoryLiquid, CategoryMaterial:
		return Category(s), nil
	}
	return "", &ValidationError{Field: "category", Message: "unknown category: " + s}
}

// BatchStatus is the lifecycle state of a batch.
// A batch is created active, transitions to depleted at zero quantity or to
// expired when its expiration date passes. It is never resurrected.
type BatchStatus string

const (
	BatchActive   BatchStatus = "active"
	BatchDepleted BatchStatus = "depleted"
	BatchExpired  BatchStatus = "expired"
)

// ConsumptionReason records why stock left a batch.
type ConsumptionReason string

const (
	ReasonSale     ConsumptionReason = "sale"
	ReasonSpoilage ConsumptionReason = "spoilage"
	ReasonTransfer ConsumptionReason = "transfer"
)

func ParseReason(s string) (ConsumptionReason, error) {
	switch ConsumptionReason(s) {
	case ReasonSale, ReasonSpoilage, ReasonTransfer:
		return ConsumptionReason(s), nil
	}
	return "", &ValidationError{Field: "reason", Message: "unknown reason: " + s}
}

// =============================================================================
// CONSUMPTION RECORD - Immutable audit trail entry
// =============================================================================

// ConsumptionRecord is one batch drain. Records are append-only: they are
// never updated or deleted, and their existence blocks permanent deletion
// of the ingredient they reference.
type ConsumptionRecord struct {
	ID                   RecordID
	BatchID              BatchID
	IngredientID         IngredientID
	QuantityConsumed     Quantity // always positive, in the ingredient's base unit
	Reason               ConsumptionReason
	RelatedTransactionID string
	RecordedBy           string
	Timestamp            time.Time
}
