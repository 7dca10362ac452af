package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/brewkeep/stockroom/stock"
	"github.com/brewkeep/stockroom/stock/store"
)

// =============================================================================
// EVALUATOR TESTS
// =============================================================================

func newTestEvaluator(t *testing.T) (*stock.Evaluator, *stock.Engine, *store.Memory, *stock.NotificationBus) {
	t.Helper()
	mem := store.NewMemory()
	bus := stock.NewNotificationBus()
	ev := stock.NewEvaluator(mem, bus)
	ev.Now = func() time.Time { return testNow }

	engine := stock.NewEngine(mem, stock.NewLockManager(time.Second))
	engine.Now = func() time.Time { return testNow }
	engine.Evaluator = ev
	return ev, engine, mem, bus
}

func findByType(snapshot []stock.Notification, id stock.IngredientID, typ stock.NotificationType) *stock.Notification {
	for i := range snapshot {
		if snapshot[i].IngredientID == id && snapshot[i].Type == typ {
			return &snapshot[i]
		}
	}
	return nil
}

func TestEvaluate_LowStockThenOutOfStock(t *testing.T) {
	// GIVEN: Milk with alertThreshold 10, quantity 12
	// WHEN: A sale drops it to 8, then to 0
	// THEN: low_stock/high is emitted, later superseded by out_of_stock/critical

	ev, engine, mem, _ := newTestEvaluator(t)
	addIngredient(t, mem, "milk", "Milk", stock.UnitMilliliter, 10)
	stockIn(t, engine, "milk", qty(12, stock.UnitMilliliter), nil)

	snapshot, err := ev.Evaluate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if findByType(snapshot, "milk", stock.NotifyLowStock) != nil {
		t.Error("12 > 10: no low_stock expected yet")
	}

	if _, err := engine.Consume(context.Background(), "milk", qty(4, stock.UnitMilliliter), stock.ReasonSale, "tx-1"); err != nil {
		t.Fatal(err)
	}
	snapshot, _ = ev.Evaluate(context.Background())
	low := findByType(snapshot, "milk", stock.NotifyLowStock)
	if low == nil {
		t.Fatal("8 <= 10: low_stock expected")
	}
	if low.Priority != stock.PriorityHigh {
		t.Errorf("low_stock priority should be high, got %s", low.Priority)
	}

	if _, err := engine.Consume(context.Background(), "milk", qty(8, stock.UnitMilliliter), stock.ReasonSale, "tx-2"); err != nil {
		t.Fatal(err)
	}
	snapshot, _ = ev.Evaluate(context.Background())
	out := findByType(snapshot, "milk", stock.NotifyOutOfStock)
	if out == nil {
		t.Fatal("0 quantity: out_of_stock expected")
	}
	if out.Priority != stock.PriorityCritical {
		t.Errorf("out_of_stock priority should be critical, got %s", out.Priority)
	}
	if findByType(snapshot, "milk", stock.NotifyLowStock) != nil {
		t.Error("out_of_stock supersedes low_stock; both must not appear")
	}
}

func TestEvaluate_ZeroThresholdNeverLowStock(t *testing.T) {
	ev, engine, mem, _ := newTestEvaluator(t)
	addIngredient(t, mem, "napkins", "Napkins", stock.UnitPiece, 0)
	stockIn(t, engine, "napkins", qty(1, stock.UnitPiece), nil)

	snapshot, _ := ev.Evaluate(context.Background())
	if findByType(snapshot, "napkins", stock.NotifyLowStock) != nil {
		t.Error("threshold 0 disables low_stock alerts")
	}
}

func TestEvaluate_ExpiringWithinHorizon(t *testing.T) {
	ev, engine, mem, _ := newTestEvaluator(t)
	addIngredient(t, mem, "milk", "Milk", stock.UnitMilliliter, 0)
	stockIn(t, engine, "milk", qty(500, stock.UnitMilliliter), inDays(3))

	snapshot, _ := ev.Evaluate(context.Background())
	exp := findByType(snapshot, "milk", stock.NotifyExpiring)
	if exp == nil {
		t.Fatal("batch expiring in 3 days should produce an expiring finding")
	}
	if exp.Priority != stock.PriorityMedium {
		t.Errorf("expiring priority should be medium, got %s", exp.Priority)
	}
}

func TestEvaluate_ExpiredReportedIndependently(t *testing.T) {
	// GIVEN: Milk that is ALSO low on stock, with an overdue batch holding stock
	// WHEN: Evaluating
	// THEN: The expired finding appears alongside the stock-level finding

	ev, engine, mem, _ := newTestEvaluator(t)
	addIngredient(t, mem, "milk", "Milk", stock.UnitMilliliter, 1000)
	stockIn(t, engine, "milk", qty(300, stock.UnitMilliliter), inDays(-1))
	stockIn(t, engine, "milk", qty(200, stock.UnitMilliliter), inDays(30))

	snapshot, _ := ev.Evaluate(context.Background())

	expired := findByType(snapshot, "milk", stock.NotifyExpired)
	if expired == nil {
		t.Fatal("overdue batch holding stock should produce an expired finding")
	}
	if expired.Priority != stock.PriorityCritical {
		t.Errorf("expired priority should be critical, got %s", expired.Priority)
	}
	if findByType(snapshot, "milk", stock.NotifyLowStock) == nil {
		t.Error("expired finding must not suppress the stock-level finding")
	}
}

func TestEvaluate_SkipsArchived(t *testing.T) {
	ev, engine, mem, _ := newTestEvaluator(t)
	addIngredient(t, mem, "milk", "Milk", stock.UnitMilliliter, 100)
	stockIn(t, engine, "milk", qty(5, stock.UnitMilliliter), nil)

	am := stock.NewArchiveManager(mem, stock.NewLockManager(time.Second))
	if _, err := am.Archive(context.Background(), "milk"); err != nil {
		t.Fatal(err)
	}

	snapshot, _ := ev.Evaluate(context.Background())
	if len(snapshot) != 0 {
		t.Errorf("archived ingredients must not appear in the feed: %+v", snapshot)
	}
}

// =============================================================================
// NOTIFICATION BUS TESTS
// =============================================================================

func TestNotificationBus_ReplaysCurrentOnSubscribe(t *testing.T) {
	bus := stock.NewNotificationBus()
	bus.Publish([]stock.Notification{{ID: "n1", Title: "Milk"}})

	ch, cancel := bus.Subscribe()
	defer cancel()

	select {
	case snapshot := <-ch:
		if len(snapshot) != 1 || snapshot[0].ID != "n1" {
			t.Errorf("expected replay of the current snapshot, got %+v", snapshot)
		}
	case <-time.After(time.Second):
		t.Fatal("no replay on subscribe")
	}
}

func TestNotificationBus_SlowSubscriberGetsNewestOnly(t *testing.T) {
	// A subscriber that never drains must still end up with the latest
	// snapshot, and must never block the publisher.

	bus := stock.NewNotificationBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish([]stock.Notification{{ID: "stale"}})
	bus.Publish([]stock.Notification{{ID: "fresh"}})

	select {
	case snapshot := <-ch:
		if snapshot[0].ID != "fresh" {
			t.Errorf("expected the stale snapshot to be replaced, got %s", snapshot[0].ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestNotificationBus_SnapshotForReplay(t *testing.T) {
	bus := stock.NewNotificationBus()
	if got := bus.Snapshot(); len(got) != 0 {
		t.Errorf("empty bus should return empty snapshot, got %+v", got)
	}

	bus.Publish([]stock.Notification{{ID: "n1"}, {ID: "n2"}})
	if got := bus.Snapshot(); len(got) != 2 {
		t.Errorf("expected 2 entries, got %d", len(got))
	}
}

func TestEngine_PublishesAfterMutation(t *testing.T) {
	// The engine refreshes the evaluator after every successful mutation,
	// so a sale that crosses the threshold shows up on the bus without
	// waiting for the periodic sweep.

	_, engine, mem, bus := newTestEvaluator(t)
	addIngredient(t, mem, "milk", "Milk", stock.UnitMilliliter, 10)
	stockIn(t, engine, "milk", qty(12, stock.UnitMilliliter), nil)

	if _, err := engine.Consume(context.Background(), "milk", qty(4, stock.UnitMilliliter), stock.ReasonSale, "tx-1"); err != nil {
		t.Fatal(err)
	}

	snapshot := bus.Snapshot()
	if findByType(snapshot, "milk", stock.NotifyLowStock) == nil {
		t.Errorf("bus should hold the post-sale snapshot, got %+v", snapshot)
	}
}
