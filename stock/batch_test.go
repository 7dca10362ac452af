package stock

import (
	"testing"
	"time"
)

// =============================================================================
// CONSUMPTION ORDERING TESTS
// =============================================================================

func testBatch(id string, stockIn time.Time, exp *time.Time) Batch {
	return Batch{
		ID:             BatchID(id),
		StockInDate:    stockIn,
		ExpirationDate: exp,
		HasExpiration:  exp != nil,
		Status:         BatchActive,
	}
}

func datePtr(t time.Time) *time.Time { return &t }

func TestSortForConsumption_ExpiringFirst(t *testing.T) {
	// GIVEN: A mix of expiring and non-expiring batches in arbitrary order
	// WHEN: Sorting for consumption
	// THEN: Expiring batches come first by expiration date, non-expiring last,
	//       ties broken by stock-in date

	base := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	batches := []Batch{
		testBatch("no-exp-late", base.AddDate(0, 0, 3), nil),
		testBatch("exp-far", base, datePtr(base.AddDate(0, 0, 10))),
		testBatch("no-exp-early", base.AddDate(0, 0, 1), nil),
		testBatch("exp-soon", base.AddDate(0, 0, 2), datePtr(base.AddDate(0, 0, 2))),
		testBatch("exp-tie-old", base, datePtr(base.AddDate(0, 0, 5))),
		testBatch("exp-tie-new", base.AddDate(0, 0, 1), datePtr(base.AddDate(0, 0, 5))),
	}

	SortForConsumption(batches)

	want := []BatchID{"exp-soon", "exp-tie-old", "exp-tie-new", "exp-far", "no-exp-early", "no-exp-late"}
	for i, id := range want {
		if batches[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, batches[i].ID)
		}
	}
}

func TestBatch_IsExpired(t *testing.T) {
	now := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)

	perishable := testBatch("p", now.AddDate(0, 0, -5), datePtr(now.AddDate(0, 0, -1)))
	if !perishable.IsExpired(now) {
		t.Error("batch past its expiration date should be expired")
	}

	fresh := testBatch("f", now.AddDate(0, 0, -5), datePtr(now.AddDate(0, 0, 1)))
	if fresh.IsExpired(now) {
		t.Error("batch before its expiration date should not be expired")
	}

	// hasExpiration=false never expires, regardless of age.
	durable := testBatch("d", now.AddDate(-10, 0, 0), nil)
	if durable.IsExpired(now) {
		t.Error("batch without an expiration date must never expire")
	}
}

func TestBatch_ExpiresWithin(t *testing.T) {
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	horizon := 7 * 24 * time.Hour

	soon := testBatch("s", now, datePtr(now.AddDate(0, 0, 3)))
	if !soon.ExpiresWithin(now, horizon) {
		t.Error("batch expiring in 3 days should be within a 7-day horizon")
	}

	far := testBatch("f", now, datePtr(now.AddDate(0, 0, 10)))
	if far.ExpiresWithin(now, horizon) {
		t.Error("batch expiring in 10 days should not be within a 7-day horizon")
	}

	past := testBatch("p", now, datePtr(now.AddDate(0, 0, -1)))
	if past.ExpiresWithin(now, horizon) {
		t.Error("already-expired batch is expired, not expiring")
	}
}

func TestBatch_Selectable(t *testing.T) {
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)

	b := testBatch("a", now, datePtr(now.AddDate(0, 0, 1)))
	if !b.Selectable(now) {
		t.Error("active, unexpired batch should be selectable")
	}

	b.Status = BatchDepleted
	if b.Selectable(now) {
		t.Error("depleted batch must not be selectable")
	}

	b.Status = BatchExpired
	if b.Selectable(now) {
		t.Error("expired batch must not be selectable")
	}
}
