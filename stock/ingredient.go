/*
ingredient.go - Per-ingredient denormalized aggregate

PURPOSE:
  An Ingredient is the user-facing view of stock: one row per ingredient
  with a denormalized total that must always equal the sum of its active
  batches' current quantities. The total is recomputed inside the same
  locked scope as every batch mutation, so the invariant holds after
  every write.

NAME UNIQUENESS:
  Names are unique among NON-archived ingredients, case-insensitively.
  Archiving frees the name; restoring fails if it has been taken.
*/
package stock

import (
	"strings"
	"time"
)

// =============================================================================
// INGREDIENT
// =============================================================================

type Ingredient struct {
	ID             IngredientID
	Name           string
	Category       Category
	BaseUnit       Unit
	AlertThreshold Quantity // in base unit, >= 0

	Archived   bool
	ArchivedAt *time.Time

	// Derived fields. Quantity is the denormalized total in the base unit;
	// ActiveBatchCount and NextExpiration are computed on read.
	Quantity         Quantity
	ActiveBatchCount int
	NextExpiration   *time.Time

	CreatedAt time.Time
}

// NormalizeName is the canonical form used for uniqueness checks.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RecomputeAggregate recalculates the denormalized total and the read-side
// derived fields from the full batch set. Only active batches count toward
// the total; expired and depleted batches are excluded.
func (ing *Ingredient) RecomputeAggregate(batches []Batch) {
	total := Quantity{Unit: ing.BaseUnit}
	count := 0
	var next *time.Time

	for _, b := range batches {
		if b.Status != BatchActive {
			continue
		}
		total = total.Add(b.CurrentQuantity)
		count++
		if b.HasExpiration && b.ExpirationDate != nil {
			if next == nil || b.ExpirationDate.Before(*next) {
				t := *b.ExpirationDate
				next = &t
			}
		}
	}

	total.Value = RoundForStorage(total.Value)
	ing.Quantity = total
	ing.ActiveBatchCount = count
	ing.NextExpiration = next
}
