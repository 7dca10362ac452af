/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Stockroom server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load optional .env, parse command-line flags
  2. Initialize SQLite store
  3. Wire engine, archive manager, evaluator, notification bus
  4. Start websocket hub and expiry scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port           HTTP server port (default: 8080, env PORT)
  -db             SQLite database path (default: stockroom.db, env DB_PATH)
                  Use ":memory:" for in-memory database
  -lock-timeout   Max wait for an ingredient lock (default: 5s)
  -horizon        Expiring-soon lookahead (default: 168h)
  -eval-interval  Expiry sweep interval (default: 1m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop scheduler and websocket hub
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/stockroom.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/brewkeep/stockroom/api"
	"github.com/brewkeep/stockroom/metrics"
	"github.com/brewkeep/stockroom/stock"
	"github.com/brewkeep/stockroom/store/sqlite"
)

func main() {
	// Optional .env; flags still win.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	// Flags
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envString("DB_PATH", "stockroom.db"), "SQLite database path")
	lockTimeout := flag.Duration("lock-timeout", stock.DefaultLockTimeout, "Max wait for an ingredient lock")
	horizon := flag.Duration("horizon", stock.DefaultExpiryHorizon, "Expiring-soon lookahead")
	evalInterval := flag.Duration("eval-interval", time.Minute, "Expiry sweep interval")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire the engine
	locks := stock.NewLockManager(*lockTimeout)

	bus := stock.NewNotificationBus()
	evaluator := stock.NewEvaluator(store, bus)
	evaluator.Horizon = *horizon

	engine := stock.NewEngine(store, locks)
	engine.Evaluator = evaluator

	archive := stock.NewArchiveManager(store, locks)
	archive.Evaluator = evaluator

	resolver := stock.NewResolver(nil)
	collector := metrics.New()

	// Mirror every published snapshot into the gauges.
	go func() {
		snapshots, cancel := bus.Subscribe()
		defer cancel()
		for snapshot := range snapshots {
			collector.ObserveSnapshot(snapshot)
		}
	}()

	// Live feed
	hub := api.NewHub(bus, collector)
	go hub.Run()

	// Periodic expiry sweep
	scheduler := api.NewExpiryScheduler(engine, evaluator)
	scheduler.Metrics = collector
	scheduler.CheckInterval = *evalInterval
	scheduler.Start()

	// HTTP
	handler := api.NewHandler(store, engine, archive, bus, evaluator, resolver, collector)
	router := api.NewRouter(handler, hub)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	scheduler.Stop()
	hub.Stop()

	log.Println("Server stopped")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
