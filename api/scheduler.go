/*
scheduler.go - Periodic expiry sweep and feed re-evaluation

PURPOSE:
  Batch expiry is date-driven: a batch can cross its expiration date
  with no write traffic at all. This scheduler periodically marks
  overdue batches expired and re-evaluates the notification feed, so
  the feed stays correct even on a quiet day.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick: ExpireOverdue (lazy marking) then Evaluator.Refresh
  - Skips ingredients whose lock is contended; the next tick catches them

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewExpiryScheduler(engine, evaluator)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - stock/engine.go: ExpireOverdue
  - stock/notify.go: Evaluator
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/brewkeep/stockroom/metrics"
	"github.com/brewkeep/stockroom/stock"
)

// ExpiryScheduler handles the periodic expiry sweep.
type ExpiryScheduler struct {
	Engine        *stock.Engine
	Evaluator     *stock.Evaluator
	Metrics       *metrics.Collector
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpiryScheduler creates a new scheduler.
func NewExpiryScheduler(engine *stock.Engine, evaluator *stock.Evaluator) *ExpiryScheduler {
	return &ExpiryScheduler{
		Engine:        engine,
		Evaluator:     evaluator,
		CheckInterval: 1 * time.Minute,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (es *ExpiryScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	es.ticker = time.NewTicker(es.CheckInterval)
	es.wg.Add(1)

	go es.run()

	log.Printf("[Scheduler] Started with check interval: %v", es.CheckInterval)
}

// Stop stops the scheduler. Safe to call more than once.
func (es *ExpiryScheduler) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		es.ticker = nil
		close(es.stop)
		es.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (es *ExpiryScheduler) run() {
	defer es.wg.Done()

	// Run immediately on start
	es.sweep()

	for {
		select {
		case <-es.ticker.C:
			es.sweep()
		case <-es.stop:
			return
		}
	}
}

func (es *ExpiryScheduler) sweep() {
	ctx := context.Background()

	expired, err := es.Engine.ExpireOverdue(ctx)
	if err != nil {
		log.Printf("[Scheduler] Expiry sweep failed: %v", err)
	}
	if expired > 0 {
		log.Printf("[Scheduler] Marked %d batch(es) expired", expired)
		if es.Metrics != nil {
			es.Metrics.BatchesExpired(expired)
		}
	}

	// Refresh even when nothing expired: batches sliding into the
	// expiring-soon horizon produce no store mutation either.
	es.Evaluator.Refresh(ctx)
}
