/*
notify.go - Threshold evaluation and the live notification feed

PURPOSE:
  Evaluates every active ingredient against stock thresholds and batch
  expirations, and publishes the result as a FULL snapshot to a
  publish/subscribe bus. Subscribers treat each snapshot as authoritative
  and replace their local view - delivery is at-least-once, so appending
  would duplicate.

SEVERITY LADDER (per ingredient, highest wins):
  out_of_stock / critical   quantity == 0
  low_stock    / high       0 < quantity <= alertThreshold
  expiring     / medium     an active batch expires within the horizon

  Expired-batch findings (expired / critical) are ALWAYS reported in
  addition to the stock-level finding: knowing you are low on milk does
  not excuse ignoring the carton that went off yesterday.

TRIGGERS:
  - Every batch store mutation (the engine calls Refresh after commit)
  - A periodic timer (api/scheduler.go) for date-driven expiry with no
    write activity
*/
package stock

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// NOTIFICATION TYPES
// =============================================================================

type NotificationType string

const (
	NotifyExpiring   NotificationType = "expiring"
	NotifyExpired    NotificationType = "expired"
	NotifyLowStock   NotificationType = "low_stock"
	NotifyOutOfStock NotificationType = "out_of_stock"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

type Notification struct {
	ID           string
	IngredientID IngredientID
	Type         NotificationType
	Priority     Priority
	Title        string
	Message      string
	Date         time.Time
}

// =============================================================================
// NOTIFICATION BUS - publish/subscribe with snapshot replay
// =============================================================================

// NotificationBus fans full snapshots out to subscribers. A slow subscriber
// never blocks the publisher: its stale pending snapshot is replaced by the
// newest one, which is safe because every snapshot is complete.
type NotificationBus struct {
	mu      sync.Mutex
	subs    map[int]chan []Notification
	nextID  int
	current []Notification
}

func NewNotificationBus() *NotificationBus {
	return &NotificationBus{subs: make(map[int]chan []Notification)}
}

// Publish replaces the current snapshot and delivers it to all subscribers.
func (b *NotificationBus) Publish(snapshot []Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = snapshot
	for _, ch := range b.subs {
		select {
		case ch <- snapshot:
		default:
			// Drop the pending stale snapshot, queue the fresh one.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

// Subscribe returns a channel of snapshots and a cancel function. The
// current snapshot (if any) is delivered immediately for replay.
func (b *NotificationBus) Subscribe() (<-chan []Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan []Notification, 1)
	b.subs[id] = ch

	if b.current != nil {
		ch <- b.current
	}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Snapshot returns the last published snapshot. Used by GET /notifications
// for reconnection/replay.
func (b *NotificationBus) Snapshot() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.current))
	copy(out, b.current)
	return out
}

// =============================================================================
// EVALUATOR
// =============================================================================

const DefaultExpiryHorizon = 7 * 24 * time.Hour

// Evaluator computes the notification snapshot from store state. It only
// reads; expired-batch marking is the engine's job (ExpireOverdue).
type Evaluator struct {
	Store   Store
	Bus     *NotificationBus
	Horizon time.Duration

	Now func() time.Time
}

func NewEvaluator(store Store, bus *NotificationBus) *Evaluator {
	return &Evaluator{Store: store, Bus: bus, Horizon: DefaultExpiryHorizon}
}

func (ev *Evaluator) now() time.Time {
	if ev.Now != nil {
		return ev.Now()
	}
	return time.Now()
}

// Refresh evaluates and publishes, logging instead of failing: a broken
// notification pass must never abort the mutation that triggered it.
func (ev *Evaluator) Refresh(ctx context.Context) {
	snapshot, err := ev.Evaluate(ctx)
	if err != nil {
		log.Printf("[Notify] evaluation failed: %v", err)
		return
	}
	if ev.Bus != nil {
		ev.Bus.Publish(snapshot)
	}
}

// Evaluate computes the current snapshot across all active ingredients.
func (ev *Evaluator) Evaluate(ctx context.Context) ([]Notification, error) {
	ingredients, err := ev.Store.ListIngredients(ctx, false)
	if err != nil {
		return nil, err
	}

	now := ev.now()
	horizon := ev.Horizon
	if horizon <= 0 {
		horizon = DefaultExpiryHorizon
	}

	snapshot := make([]Notification, 0)
	for _, ing := range ingredients {
		batches, err := ev.Store.ListBatches(ctx, ing.ID, true)
		if err != nil {
			return nil, err
		}
		snapshot = append(snapshot, evaluateIngredient(ing, batches, now, horizon)...)
	}

	// Stable presentation: critical first, then by ingredient name.
	sort.SliceStable(snapshot, func(i, j int) bool {
		pi, pj := priorityRank(snapshot[i].Priority), priorityRank(snapshot[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return snapshot[i].Title < snapshot[j].Title
	})
	return snapshot, nil
}

func priorityRank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// evaluateIngredient emits at most one stock-level finding (highest severity
// only) plus an independent expired finding when overdue stock is still held.
func evaluateIngredient(ing Ingredient, batches []Batch, now time.Time, horizon time.Duration) []Notification {
	var out []Notification

	expiringSoon := false
	expiredHeld := 0
	for _, b := range batches {
		switch {
		case b.Status == BatchActive && b.IsExpired(now):
			// Not yet marked by the engine; still counts as expired here.
			expiredHeld++
		case b.Status == BatchExpired && b.CurrentQuantity.IsPositive():
			expiredHeld++
		case b.Status == BatchActive && b.ExpiresWithin(now, horizon):
			expiringSoon = true
		}
	}

	switch {
	case ing.Quantity.IsZero():
		out = append(out, Notification{
			ID:           uuid.NewString(),
			IngredientID: ing.ID,
			Type:         NotifyOutOfStock,
			Priority:     PriorityCritical,
			Title:        ing.Name,
			Message:      fmt.Sprintf("%s is out of stock", ing.Name),
			Date:         now,
		})
	case !ing.AlertThreshold.IsZero() && !ing.Quantity.GreaterThan(ing.AlertThreshold):
		out = append(out, Notification{
			ID:           uuid.NewString(),
			IngredientID: ing.ID,
			Type:         NotifyLowStock,
			Priority:     PriorityHigh,
			Title:        ing.Name,
			Message:      fmt.Sprintf("%s is low: %s left (threshold %s)", ing.Name, ing.Quantity, ing.AlertThreshold),
			Date:         now,
		})
	case expiringSoon:
		out = append(out, Notification{
			ID:           uuid.NewString(),
			IngredientID: ing.ID,
			Type:         NotifyExpiring,
			Priority:     PriorityMedium,
			Title:        ing.Name,
			Message:      fmt.Sprintf("a batch of %s expires within %d days", ing.Name, int(horizon.Hours()/24)),
			Date:         now,
		})
	}

	if expiredHeld > 0 {
		out = append(out, Notification{
			ID:           uuid.NewString(),
			IngredientID: ing.ID,
			Type:         NotifyExpired,
			Priority:     PriorityCritical,
			Title:        ing.Name,
			Message:      fmt.Sprintf("%d expired batch(es) of %s still hold stock", expiredHeld, ing.Name),
			Date:         now,
		})
	}

	return out
}
