/*
archive.go - Soft-delete lifecycle and permanent-delete safety

PURPOSE:
  Archiving is a reversible soft-delete: the ingredient disappears from
  active use (stock-in is blocked, notifications skip it) but its batches
  and audit trail survive for historical queries. Permanent deletion is
  gated twice - the ingredient must already be archived, and no
  ConsumptionRecord may reference any of its batches.

RESTORE RULE:
  Names are unique among non-archived ingredients, so a restore fails
  with NameConflictError when an active ingredient has since taken the
  normalized name.
*/
package stock

import (
	"context"
	"time"
)

// =============================================================================
// ARCHIVE MANAGER
// =============================================================================

type ArchiveManager struct {
	Store Store
	Locks *LockManager

	// Evaluator, when set, is refreshed after archive-state mutations so
	// archived ingredients drop out of the feed immediately.
	Evaluator *Evaluator

	Now func() time.Time
}

func NewArchiveManager(store Store, locks *LockManager) *ArchiveManager {
	return &ArchiveManager{Store: store, Locks: locks}
}

func (am *ArchiveManager) now() time.Time {
	if am.Now != nil {
		return am.Now()
	}
	return time.Now()
}

func (am *ArchiveManager) refresh(ctx context.Context) {
	if am.Evaluator != nil {
		am.Evaluator.Refresh(ctx)
	}
}

// Archive soft-deletes an ingredient. Batches are untouched; stock-in is
// blocked from here on. Archiving an already-archived ingredient is a no-op.
func (am *ArchiveManager) Archive(ctx context.Context, id IngredientID) (*Ingredient, error) {
	release, err := am.Locks.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	ing, err := am.Store.GetIngredient(ctx, id)
	if err != nil {
		return nil, err
	}
	if ing.Archived {
		return ing, nil
	}

	at := am.now()
	ing.Archived = true
	ing.ArchivedAt = &at
	if err := am.Store.SaveIngredient(ctx, *ing); err != nil {
		return nil, err
	}

	am.refresh(ctx)
	return ing, nil
}

// Restore clears the archived flag. Fails with NameConflictError when an
// active ingredient holds the same normalized name.
func (am *ArchiveManager) Restore(ctx context.Context, id IngredientID) (*Ingredient, error) {
	release, err := am.Locks.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	ing, err := am.Store.GetIngredient(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ing.Archived {
		return ing, nil
	}

	existing, err := am.Store.FindActiveByName(ctx, NormalizeName(ing.Name))
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != id {
		return nil, &NameConflictError{Name: ing.Name, ExistingID: existing.ID}
	}

	ing.Archived = false
	ing.ArchivedAt = nil
	if err := am.Store.SaveIngredient(ctx, *ing); err != nil {
		return nil, err
	}

	am.refresh(ctx)
	return ing, nil
}

// PermanentlyDelete irreversibly removes an archived ingredient and its
// batches. Blocked when any ConsumptionRecord references those batches.
func (am *ArchiveManager) PermanentlyDelete(ctx context.Context, id IngredientID) error {
	release, err := am.Locks.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	ing, err := am.Store.GetIngredient(ctx, id)
	if err != nil {
		return err
	}
	if !ing.Archived {
		return &ValidationError{Field: "ingredient", Message: "must be archived before permanent deletion"}
	}

	count, err := am.Store.CountRecords(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return &HasHistoricalRecordsError{IngredientID: id, RecordCount: count}
	}

	return am.Store.DeleteIngredient(ctx, id)
}

// ListArchived returns archived ingredients with their historical-record
// counts, so the UI can tell which ones are permanently deletable.
func (am *ArchiveManager) ListArchived(ctx context.Context) ([]ArchivedIngredient, error) {
	ingredients, err := am.Store.ListIngredients(ctx, true)
	if err != nil {
		return nil, err
	}

	out := make([]ArchivedIngredient, 0, len(ingredients))
	for _, ing := range ingredients {
		count, err := am.Store.CountRecords(ctx, ing.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ArchivedIngredient{Ingredient: ing, RecordCount: count})
	}
	return out, nil
}

// ArchivedIngredient pairs an archived ingredient with how many historical
// records pin it down.
type ArchivedIngredient struct {
	Ingredient  Ingredient
	RecordCount int
}
