/*
batch.go - Batch model and deterministic consumption ordering

PURPOSE:
  A Batch is a single dated lot of one ingredient with its own remaining
  quantity. Batches are created only by stock-in, decremented only by the
  consumption engine, and never resurrected.

CONSUMPTION ORDER (FIFO-by-expiration):
  1. Batches WITH an expiration date, ascending by that date
  2. Batches WITHOUT an expiration date, last
  3. Ties broken by stock-in date ascending (oldest first)

  Expired batches are excluded from selection but still participate in
  the notification engine's expiry checks.
*/
package stock

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// BATCH
// =============================================================================

type Batch struct {
	ID           BatchID
	IngredientID IngredientID
	BatchNumber  string

	// OriginalQuantity and CurrentQuantity are stored in the ingredient's
	// base unit. EntryQuantity/EntryUnit retain the operator's original
	// input for display.
	OriginalQuantity Quantity
	CurrentQuantity  Quantity
	EntryQuantity    Quantity

	StockInDate    time.Time
	ExpirationDate *time.Time
	HasExpiration  bool
	Status         BatchStatus

	CreatedAt time.Time
}

// NewBatchNumber generates a unique, human-scannable batch number.
func NewBatchNumber(at time.Time) string {
	return fmt.Sprintf("BN-%s-%s", at.Format("20060102"), uuid.NewString()[:8])
}

// IsExpired reports whether the batch's expiration date has passed at t.
// A batch without an expiration date never expires.
func (b *Batch) IsExpired(t time.Time) bool {
	if !b.HasExpiration || b.ExpirationDate == nil {
		return false
	}
	return b.ExpirationDate.Before(t)
}

// ExpiresWithin reports whether the batch expires inside the horizon but has
// not yet passed.
func (b *Batch) ExpiresWithin(t time.Time, horizon time.Duration) bool {
	if !b.HasExpiration || b.ExpirationDate == nil {
		return false
	}
	return !b.ExpirationDate.Before(t) && b.ExpirationDate.Before(t.Add(horizon))
}

// Selectable reports whether the batch may supply a consumption at t.
func (b *Batch) Selectable(t time.Time) bool {
	return b.Status == BatchActive && !b.IsExpired(t)
}

// =============================================================================
// CONSUMPTION ORDERING
// =============================================================================

// SortForConsumption orders batches in-place by the deterministic drain
// order: expiring batches first (soonest expiration wins), non-expiring
// batches last, ties by stock-in date (oldest first).
func SortForConsumption(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		bi, bj := batches[i], batches[j]

		iExp := bi.HasExpiration && bi.ExpirationDate != nil
		jExp := bj.HasExpiration && bj.ExpirationDate != nil

		switch {
		case iExp && !jExp:
			return true
		case !iExp && jExp:
			return false
		case iExp && jExp && !bi.ExpirationDate.Equal(*bj.ExpirationDate):
			return bi.ExpirationDate.Before(*bj.ExpirationDate)
		}
		return bi.StockInDate.Before(bj.StockInDate)
	})
}
