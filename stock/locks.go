/*
locks.go - Per-ingredient mutual exclusion with bounded waits

PURPOSE:
  Serializes the read-decide-write sequence of consume/stock-in per
  ingredient so two concurrent checkouts cannot both believe sufficient
  stock exists and oversubscribe the same batch.

DEADLOCK AVOIDANCE:
  Multi-ingredient operations acquire ALL locks in a fixed global order
  (ascending ingredient ID) before touching anything. Two recipes that
  share ingredients therefore always contend on the first shared lock
  instead of deadlocking on each other.

BOUNDED WAITS:
  Acquisition waits are capped by a timeout; an expired wait surfaces as
  a LockTimeoutError, which callers may retry.
*/
package stock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// LOCK MANAGER
// =============================================================================

type LockManager struct {
	mu      sync.Mutex
	locks   map[IngredientID]chan struct{}
	Timeout time.Duration
}

const DefaultLockTimeout = 5 * time.Second

func NewLockManager(timeout time.Duration) *LockManager {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &LockManager{
		locks:   make(map[IngredientID]chan struct{}),
		Timeout: timeout,
	}
}

// lockFor returns the semaphore channel for an ingredient, creating it on
// first use. Capacity 1: holding the token means holding the lock.
func (lm *LockManager) lockFor(id IngredientID) chan struct{} {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	ch, ok := lm.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		lm.locks[id] = ch
	}
	return ch
}

// Acquire takes the lock for one ingredient. The returned release function
// must be called exactly once.
func (lm *LockManager) Acquire(ctx context.Context, id IngredientID) (func(), error) {
	ch := lm.lockFor(id)
	timer := time.NewTimer(lm.Timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, &LockTimeoutError{IngredientID: id, Waited: lm.Timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AcquireAll takes the locks for every listed ingredient in ascending ID
// order. On any failure the locks already held are released before the
// error is returned, so a timed-out caller leaves no residue.
func (lm *LockManager) AcquireAll(ctx context.Context, ids []IngredientID) (func(), error) {
	ordered := dedupeSorted(ids)

	var held []func()
	releaseAll := func() {
		// Release in reverse acquisition order.
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	for _, id := range ordered {
		release, err := lm.Acquire(ctx, id)
		if err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, release)
	}
	return releaseAll, nil
}

func dedupeSorted(ids []IngredientID) []IngredientID {
	seen := make(map[IngredientID]bool, len(ids))
	var out []IngredientID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
