// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/brewkeep/stockroom/stock"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	ingredients map[stock.IngredientID]stock.Ingredient
	batches     map[stock.IngredientID][]stock.Batch
	records     map[stock.IngredientID][]stock.ConsumptionRecord
	batchNums   map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		ingredients: make(map[stock.IngredientID]stock.Ingredient),
		batches:     make(map[stock.IngredientID][]stock.Batch),
		records:     make(map[stock.IngredientID][]stock.ConsumptionRecord),
		batchNums:   make(map[string]bool),
	}
}

// --- Ingredients ---

func (m *Memory) SaveIngredient(_ context.Context, ing stock.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingredients[ing.ID] = ing
	return nil
}

func (m *Memory) GetIngredient(_ context.Context, id stock.IngredientID) (*stock.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ing, ok := m.ingredients[id]
	if !ok {
		return nil, stock.ErrIngredientNotFound
	}
	m.fillDerivedLocked(&ing)
	return &ing, nil
}

func (m *Memory) ListIngredients(_ context.Context, archived bool) ([]stock.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []stock.Ingredient
	for _, ing := range m.ingredients {
		if ing.Archived != archived {
			continue
		}
		m.fillDerivedLocked(&ing)
		out = append(out, ing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) FindActiveByName(_ context.Context, normalizedName string) (*stock.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ing := range m.ingredients {
		if !ing.Archived && stock.NormalizeName(ing.Name) == normalizedName {
			found := ing
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Memory) DeleteIngredient(_ context.Context, id stock.IngredientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ingredients[id]; !ok {
		return stock.ErrIngredientNotFound
	}
	for _, b := range m.batches[id] {
		delete(m.batchNums, b.BatchNumber)
	}
	delete(m.ingredients, id)
	delete(m.batches, id)
	delete(m.records, id)
	return nil
}

// fillDerivedLocked computes the read-side derived fields from the batch set.
func (m *Memory) fillDerivedLocked(ing *stock.Ingredient) {
	count := 0
	var next *stock.Batch
	for i, b := range m.batches[ing.ID] {
		if b.Status != stock.BatchActive {
			continue
		}
		count++
		if b.HasExpiration && b.ExpirationDate != nil {
			if next == nil || b.ExpirationDate.Before(*next.ExpirationDate) {
				next = &m.batches[ing.ID][i]
			}
		}
	}
	ing.ActiveBatchCount = count
	if next != nil {
		t := *next.ExpirationDate
		ing.NextExpiration = &t
	} else {
		ing.NextExpiration = nil
	}
}

// --- Batches ---

func (m *Memory) ListBatches(_ context.Context, id stock.IngredientID, includeExpired bool) ([]stock.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []stock.Batch
	for _, b := range m.batches[id] {
		if !includeExpired && b.Status == stock.BatchExpired {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockInDate.Before(out[j].StockInDate) })
	return out, nil
}

// --- Records (append-only) ---

func (m *Memory) ListRecords(_ context.Context, id stock.IngredientID) ([]stock.ConsumptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]stock.ConsumptionRecord, len(m.records[id]))
	copy(out, m.records[id])
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) CountRecords(_ context.Context, id stock.IngredientID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[id]), nil
}

// --- Atomic mutation sets ---

func (m *Memory) CommitStockIn(_ context.Context, batches []stock.Batch, ingredients []stock.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range batches {
		if m.batchNums[b.BatchNumber] {
			return stock.ErrDuplicateBatchNumber
		}
	}
	for _, b := range batches {
		m.batches[b.IngredientID] = append(m.batches[b.IngredientID], b)
		m.batchNums[b.BatchNumber] = true
	}
	for _, ing := range ingredients {
		m.upsertIngredientLocked(ing)
	}
	return nil
}

func (m *Memory) CommitConsumption(_ context.Context, commit stock.ConsumptionCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range commit.Batches {
		list := m.batches[b.IngredientID]
		for i := range list {
			if list[i].ID == b.ID {
				list[i] = b
				break
			}
		}
	}
	for _, r := range commit.Records {
		m.records[r.IngredientID] = append(m.records[r.IngredientID], r)
	}
	for _, ing := range commit.Ingredients {
		m.upsertIngredientLocked(ing)
	}
	return nil
}

// upsertIngredientLocked preserves fields the commit doesn't own.
func (m *Memory) upsertIngredientLocked(ing stock.Ingredient) {
	m.ingredients[ing.ID] = ing
}
