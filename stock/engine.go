/*
engine.go - Stock-in, consumption, and spoilage operations

PURPOSE:
  The Engine owns every mutation of the batch store. It serializes
  writers per ingredient, plans batch drains deterministically, and
  commits each operation as an atomic all-or-nothing write set.

NO-PARTIAL-EFFECT GUARANTEE:
  Validation, unit conversion, and stock sufficiency are all checked
  BEFORE the first write. A failed consumption - even a multi-ingredient
  recipe where only the last ingredient is short - mutates nothing.

CONSUMPTION ALGORITHM:
  1. Load the ingredient's batches under its lock
  2. Mark overdue batches expired (lazy, date-driven)
  3. Select active, non-expired batches in FIFO-by-expiration order
  4. Drain min(remaining, batch.current) per batch until satisfied
  5. Short? Abort with the shortfall. Satisfied? Commit decrements,
     one ConsumptionRecord per touched batch, and the recomputed
     ingredient aggregate in a single transaction

SEE ALSO:
  - locks.go: Per-ingredient serialization and ordered multi-locks
  - notify.go: Re-evaluation triggered after every mutation
*/
package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store Store
	Locks *LockManager

	// Evaluator, when set, is refreshed after every successful mutation so
	// the notification feed reflects the new state immediately.
	Evaluator *Evaluator

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

func NewEngine(store Store, locks *LockManager) *Engine {
	return &Engine{Store: store, Locks: locks}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) refresh(ctx context.Context) {
	if e.Evaluator != nil {
		e.Evaluator.Refresh(ctx)
	}
}

// =============================================================================
// STOCK-IN
// =============================================================================

type StockInEntry struct {
	IngredientID   IngredientID
	Quantity       Quantity
	ExpirationDate *time.Time
}

// StockIn creates one batch per entry, atomically across all entries.
// Rejected outright: archived ingredients, non-positive quantities, and
// units not convertible to the ingredient's base unit.
func (e *Engine) StockIn(ctx context.Context, stockman string, entries []StockInEntry) ([]Batch, error) {
	if stockman == "" {
		return nil, &ValidationError{Field: "stockman", Message: "must not be empty"}
	}
	if len(entries) == 0 {
		return nil, &ValidationError{Field: "ingredients", Message: "at least one entry required"}
	}
	for _, entry := range entries {
		if !entry.Quantity.IsPositive() {
			return nil, &ValidationError{Field: "quantity", Message: "must be greater than zero"}
		}
	}

	ids := make([]IngredientID, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.IngredientID)
	}

	release, err := e.Locks.AcquireAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	defer release()

	now := e.now()
	ingredients := make(map[IngredientID]*Ingredient)
	existing := make(map[IngredientID][]Batch)

	for _, entry := range entries {
		if _, ok := ingredients[entry.IngredientID]; ok {
			continue
		}
		ing, err := e.Store.GetIngredient(ctx, entry.IngredientID)
		if err != nil {
			return nil, err
		}
		if ing.Archived {
			return nil, ErrIngredientArchived
		}
		batches, err := e.Store.ListBatches(ctx, entry.IngredientID, true)
		if err != nil {
			return nil, err
		}
		ingredients[entry.IngredientID] = ing
		existing[entry.IngredientID] = batches
	}

	created := make([]Batch, 0, len(entries))
	for _, entry := range entries {
		ing := ingredients[entry.IngredientID]

		converted, err := ConvertQuantity(entry.Quantity, ing.BaseUnit)
		if err != nil {
			return nil, err
		}
		if BelowStoragePrecision(converted.Value) {
			return nil, &ValidationError{
				Field:   "quantity",
				Message: fmt.Sprintf("%s converts to less than 0.01 %s", entry.Quantity, ing.BaseUnit),
			}
		}
		stored := Quantity{Value: RoundForStorage(converted.Value), Unit: ing.BaseUnit}

		batch := Batch{
			ID:               BatchID(uuid.NewString()),
			IngredientID:     entry.IngredientID,
			BatchNumber:      NewBatchNumber(now),
			OriginalQuantity: stored,
			CurrentQuantity:  stored,
			EntryQuantity:    entry.Quantity,
			StockInDate:      now,
			ExpirationDate:   entry.ExpirationDate,
			HasExpiration:    entry.ExpirationDate != nil,
			Status:           BatchActive,
			CreatedAt:        now,
		}
		created = append(created, batch)
		existing[entry.IngredientID] = append(existing[entry.IngredientID], batch)
	}

	updated := make([]Ingredient, 0, len(ingredients))
	for id, ing := range ingredients {
		ing.RecomputeAggregate(existing[id])
		updated = append(updated, *ing)
	}

	if err := e.Store.CommitStockIn(ctx, created, updated); err != nil {
		return nil, err
	}

	e.refresh(ctx)
	return created, nil
}

// =============================================================================
// CONSUMPTION
// =============================================================================

// ConsumptionLine is one batch's contribution to a plan.
type ConsumptionLine struct {
	BatchID     BatchID
	BatchNumber string
	Quantity    Quantity
}

// ConsumptionPlan describes how a requirement was satisfied.
type ConsumptionPlan struct {
	IngredientID IngredientID
	Requested    Quantity // in base unit
	Lines        []ConsumptionLine
}

// Consume drains batches of a single ingredient to satisfy the required
// quantity. The quantity may be in any unit convertible to the ingredient's
// base unit. A zero requirement is a no-op and writes no record.
func (e *Engine) Consume(ctx context.Context, id IngredientID, required Quantity, reason ConsumptionReason, relatedTxID string) (*ConsumptionPlan, error) {
	plans, err := e.consumeAll(ctx, []Requirement{{IngredientID: id, Quantity: required}}, reason, relatedTxID, "")
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return &ConsumptionPlan{IngredientID: id, Requested: required.Zero()}, nil
	}
	return &plans[0], nil
}

// ConsumeRequirements satisfies a full set of ingredient requirements
// all-or-nothing: every ingredient is planned under its lock before any
// batch is committed. Used for recipe sales and transfers.
func (e *Engine) ConsumeRequirements(ctx context.Context, reqs []Requirement, reason ConsumptionReason, relatedTxID string) ([]ConsumptionPlan, error) {
	return e.consumeAll(ctx, reqs, reason, relatedTxID, "")
}

// ConsumeProduct resolves a product+size through the resolver and consumes
// the resulting requirements as a sale.
func (e *Engine) ConsumeProduct(ctx context.Context, resolver *Resolver, product Product, size Size, relatedTxID string) ([]ConsumptionPlan, error) {
	reqs, err := resolver.Resolve(product, size)
	if err != nil {
		return nil, err
	}
	return e.consumeAll(ctx, reqs, ReasonSale, relatedTxID, "")
}

// consumeAll is the core all-or-nothing path shared by sales, transfers,
// and spoilage.
func (e *Engine) consumeAll(ctx context.Context, reqs []Requirement, reason ConsumptionReason, relatedTxID, recordedBy string) ([]ConsumptionPlan, error) {
	if len(reqs) == 0 {
		return nil, &ValidationError{Field: "ingredients", Message: "at least one entry required"}
	}
	for _, r := range reqs {
		if r.Quantity.IsNegative() {
			return nil, &ValidationError{Field: "quantity", Message: "must not be negative"}
		}
	}

	ids := make([]IngredientID, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.IngredientID)
	}

	release, err := e.Locks.AcquireAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	defer release()

	now := e.now()

	// Merge duplicate ingredient lines after converting to base units.
	demands := make(map[IngredientID]*demand)
	order := make([]IngredientID, 0, len(reqs))

	for _, r := range reqs {
		d, ok := demands[r.IngredientID]
		if !ok {
			ing, err := e.Store.GetIngredient(ctx, r.IngredientID)
			if err != nil {
				return nil, err
			}
			batches, err := e.Store.ListBatches(ctx, r.IngredientID, true)
			if err != nil {
				return nil, err
			}
			d = &demand{ing: ing, required: Quantity{Unit: ing.BaseUnit}, batches: batches}
			demands[r.IngredientID] = d
			order = append(order, r.IngredientID)
		}
		converted, err := ConvertQuantity(r.Quantity, d.ing.BaseUnit)
		if err != nil {
			return nil, err
		}
		d.required = d.required.Add(converted)
	}

	// A demand that rounds to zero would drain nothing yet still write a
	// zero-quantity record. Reject it like any other malformed input.
	for _, id := range order {
		d := demands[id]
		if BelowStoragePrecision(d.required.Value) {
			return nil, &ValidationError{
				Field:   "quantity",
				Message: fmt.Sprintf("%s is less than the smallest storable amount (0.01 %s)", d.required, d.ing.BaseUnit),
			}
		}
	}

	// Mark overdue batches first and snapshot those markings with pre-drain
	// aggregates. If the consumption aborts, the expiry facts still land;
	// the abandoned in-memory drains never do.
	expiryOnly := ConsumptionCommit{}
	for _, id := range order {
		d := demands[id]
		d.expired = markOverdue(d.batches, now)
		if len(d.expired) > 0 {
			ingCopy := *d.ing
			ingCopy.RecomputeAggregate(d.batches)
			expiryOnly.Batches = append(expiryOnly.Batches, d.expired...)
			expiryOnly.Ingredients = append(expiryOnly.Ingredients, ingCopy)
		}
	}

	// Plan everything before committing anything.
	var commit ConsumptionCommit
	var plans []ConsumptionPlan
	var shortfalls []Shortfall

	for _, id := range order {
		d := demands[id]
		if d.required.IsZero() {
			continue // no-op: no drain, no record
		}

		lines, touched, shortfall := planDrain(d.batches, d.required, now)
		if shortfall != nil {
			shortfall.IngredientID = id
			shortfalls = append(shortfalls, *shortfall)
			continue
		}

		plans = append(plans, ConsumptionPlan{
			IngredientID: id,
			Requested:    d.required,
			Lines:        lines,
		})

		for _, line := range lines {
			commit.Records = append(commit.Records, ConsumptionRecord{
				ID:                   RecordID(uuid.NewString()),
				BatchID:              line.BatchID,
				IngredientID:         id,
				QuantityConsumed:     line.Quantity,
				Reason:               reason,
				RelatedTransactionID: relatedTxID,
				RecordedBy:           recordedBy,
				Timestamp:            now,
			})
		}
		d.touched = touched
	}

	if len(shortfalls) > 0 {
		// Abort the whole consumption: nothing is drained. Lazily detected
		// expiry is a date-driven fact, not a consumption effect, so the
		// pre-drain snapshot still lands (best effort; the periodic sweep
		// catches anything missed).
		if len(expiryOnly.Batches) > 0 {
			_ = e.Store.CommitConsumption(ctx, expiryOnly)
		}
		return nil, &InsufficientStockError{Shortfalls: shortfalls}
	}

	for _, id := range order {
		d := demands[id]
		if len(d.expired) == 0 && len(d.touched) == 0 {
			continue
		}
		d.ing.RecomputeAggregate(d.batches)
		commit.Batches = append(commit.Batches, d.expired...)
		commit.Batches = append(commit.Batches, d.touched...)
		commit.Ingredients = append(commit.Ingredients, *d.ing)
	}

	if len(commit.Batches) == 0 && len(commit.Records) == 0 {
		return plans, nil // every requirement was zero
	}

	if err := e.Store.CommitConsumption(ctx, commit); err != nil {
		return nil, err
	}

	e.refresh(ctx)
	return plans, nil
}

// demand is one ingredient's merged requirement plus the state loaded under
// its lock and the mutations planned against it.
type demand struct {
	ing      *Ingredient
	required Quantity
	batches  []Batch
	expired  []Batch
	touched  []Batch
}

// markOverdue flips overdue active batches to expired in place and returns
// the ones it changed.
func markOverdue(batches []Batch, now time.Time) []Batch {
	var changed []Batch
	for i := range batches {
		if batches[i].Status == BatchActive && batches[i].IsExpired(now) {
			batches[i].Status = BatchExpired
			changed = append(changed, batches[i])
		}
	}
	return changed
}

// planDrain walks batches in FIFO-by-expiration order and allocates the
// required quantity. Mutates the batch slice in place on success; on
// shortfall the slice is untouched and a Shortfall is returned.
func planDrain(batches []Batch, required Quantity, now time.Time) ([]ConsumptionLine, []Batch, *Shortfall) {
	candidates := make([]*Batch, 0, len(batches))
	available := required.Zero()
	for i := range batches {
		if batches[i].Selectable(now) {
			candidates = append(candidates, &batches[i])
			available = available.Add(batches[i].CurrentQuantity)
		}
	}

	if available.LessThan(required) {
		return nil, nil, &Shortfall{
			Requested: required,
			Available: available,
			Missing:   Quantity{Value: RoundForStorage(required.Sub(available).Value), Unit: required.Unit},
		}
	}

	ordered := make([]Batch, len(candidates))
	for i, b := range candidates {
		ordered[i] = *b
	}
	SortForConsumption(ordered)

	byID := make(map[BatchID]*Batch, len(candidates))
	for _, b := range candidates {
		byID[b.ID] = b
	}

	var lines []ConsumptionLine
	var touched []Batch
	remaining := required

	for _, b := range ordered {
		if remaining.IsZero() {
			break
		}
		take := remaining.Min(b.CurrentQuantity)
		if !take.IsPositive() {
			continue
		}

		target := byID[b.ID]
		target.CurrentQuantity = Quantity{
			Value: RoundForStorage(target.CurrentQuantity.Sub(take).Value),
			Unit:  target.CurrentQuantity.Unit,
		}
		if target.CurrentQuantity.IsZero() {
			target.Status = BatchDepleted
		}

		lines = append(lines, ConsumptionLine{
			BatchID:     target.ID,
			BatchNumber: target.BatchNumber,
			Quantity:    Quantity{Value: RoundForStorage(take.Value), Unit: take.Unit},
		})
		touched = append(touched, *target)
		remaining = remaining.Sub(take)
	}

	return lines, touched, nil
}

// =============================================================================
// SPOILAGE
// =============================================================================

type SpoilageEntry struct {
	IngredientID IngredientID
	Quantity     Quantity
}

// RecordSpoilage consumes wasted stock with reason=spoilage. Requires at
// least one entry and a non-empty responsible party. Returns the generated
// spoilage reference alongside the per-ingredient plans.
func (e *Engine) RecordSpoilage(ctx context.Context, personInCharge string, entries []SpoilageEntry, remarks string) ([]ConsumptionPlan, string, error) {
	if personInCharge == "" {
		return nil, "", &ValidationError{Field: "personInCharge", Message: "must not be empty"}
	}
	if len(entries) == 0 {
		return nil, "", &ValidationError{Field: "ingredients", Message: "at least one entry required"}
	}
	for _, entry := range entries {
		if !entry.Quantity.IsPositive() {
			return nil, "", &ValidationError{Field: "quantity", Message: "must be greater than zero"}
		}
	}

	reqs := make([]Requirement, 0, len(entries))
	for _, entry := range entries {
		reqs = append(reqs, Requirement{IngredientID: entry.IngredientID, Quantity: entry.Quantity})
	}

	refID := "SP-" + uuid.NewString()[:8]
	plans, err := e.consumeAll(ctx, reqs, ReasonSpoilage, refID, personInCharge)
	if err != nil {
		return nil, "", err
	}
	return plans, refID, nil
}

// =============================================================================
// LAZY EXPIRY (periodic sweep)
// =============================================================================

// ExpireOverdue marks overdue batches expired across all active ingredients.
// It takes each ingredient lock with the normal bounded wait and skips
// contended ingredients; the next sweep catches them. Returns the number of
// batches marked.
func (e *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	ingredients, err := e.Store.ListIngredients(ctx, false)
	if err != nil {
		return 0, err
	}

	now := e.now()
	total := 0

	for _, ing := range ingredients {
		release, err := e.Locks.Acquire(ctx, ing.ID)
		if err != nil {
			if IsRetryable(err) {
				continue
			}
			return total, err
		}

		n, err := e.expireIngredientLocked(ctx, ing.ID, now)
		release()
		if err != nil {
			return total, err
		}
		total += n
	}

	if total > 0 {
		e.refresh(ctx)
	}
	return total, nil
}

func (e *Engine) expireIngredientLocked(ctx context.Context, id IngredientID, now time.Time) (int, error) {
	ing, err := e.Store.GetIngredient(ctx, id)
	if err != nil {
		return 0, err
	}
	batches, err := e.Store.ListBatches(ctx, id, true)
	if err != nil {
		return 0, err
	}

	expired := markOverdue(batches, now)
	if len(expired) == 0 {
		return 0, nil
	}

	ing.RecomputeAggregate(batches)
	commit := ConsumptionCommit{Batches: expired, Ingredients: []Ingredient{*ing}}
	if err := e.Store.CommitConsumption(ctx, commit); err != nil {
		return 0, err
	}
	return len(expired), nil
}
