/*
store.go - Persistence interface for ingredients, batches, and records

PURPOSE:
  Defines the contract between the engine and the database. Different
  implementations can use SQLite or in-memory storage; the engine never
  sees SQL.

APPEND-ONLY CONTRACT:
  ConsumptionRecords are append-only. The interface exposes no way to
  update or delete a record - the audit trail that blocks permanent
  deletion cannot be rewritten.

ATOMIC COMMITS:
  CommitConsumption and CommitStockIn write a whole mutation set
  (batch updates + records + recomputed aggregates) in one transaction.
  Either everything lands or nothing does; the engine relies on this for
  its no-partial-effect guarantee.

IMPLEMENTATIONS:
  - store/sqlite:      Production SQLite (WAL mode)
  - stock/store:       In-memory for testing/dev
*/
package stock

import "context"

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// --- Ingredients ---

	// SaveIngredient inserts or updates an ingredient (including its
	// denormalized total and archive flags).
	SaveIngredient(ctx context.Context, ing Ingredient) error

	// GetIngredient returns one ingredient with derived fields populated,
	// or ErrIngredientNotFound.
	GetIngredient(ctx context.Context, id IngredientID) (*Ingredient, error)

	// ListIngredients returns ingredients with derived fields populated.
	// archived selects which side of the soft-delete fence to list.
	ListIngredients(ctx context.Context, archived bool) ([]Ingredient, error)

	// FindActiveByName returns the non-archived ingredient with the given
	// normalized name, or nil if the name is free.
	FindActiveByName(ctx context.Context, normalizedName string) (*Ingredient, error)

	// DeleteIngredient irreversibly removes an ingredient and its batches.
	// Callers must have verified the archive/history safety rules first.
	DeleteIngredient(ctx context.Context, id IngredientID) error

	// --- Batches ---

	// ListBatches returns an ingredient's batches. When includeExpired is
	// false, expired batches are filtered out.
	ListBatches(ctx context.Context, id IngredientID, includeExpired bool) ([]Batch, error)

	// --- Consumption records (append-only) ---

	// ListRecords returns the audit trail for an ingredient's batches,
	// newest first.
	ListRecords(ctx context.Context, id IngredientID) ([]ConsumptionRecord, error)

	// CountRecords returns how many records reference the ingredient's batches.
	CountRecords(ctx context.Context, id IngredientID) (int, error)

	// --- Atomic mutation sets ---

	// CommitStockIn atomically inserts new batches and updates the owning
	// ingredients' aggregates.
	CommitStockIn(ctx context.Context, batches []Batch, ingredients []Ingredient) error

	// CommitConsumption atomically applies batch decrements/status changes,
	// appends consumption records, and updates ingredient aggregates.
	CommitConsumption(ctx context.Context, commit ConsumptionCommit) error
}

// ConsumptionCommit is the all-or-nothing write set of a successful
// consumption plan (or of lazy expiry marking, which carries no records).
type ConsumptionCommit struct {
	Batches     []Batch
	Records     []ConsumptionRecord
	Ingredients []Ingredient
}
