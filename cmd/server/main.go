/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the parking reservation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (.env, environment, then flags)
  2. Initialize SQLite store
  3. Connect the Redis analytics cache when REDIS_URL is set
  4. Build the engine with its observers (metrics, live feed, cache)
  5. Start the expiry scheduler and occupancy sampler
  6. Configure HTTP router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and background loops
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/parking.db"

  # Run with in-memory database and a cache
  REDIS_URL=redis://localhost:6379/0 ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
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
	"syscall"
	"time"

	"github.com/warp/parking-engine/api"
	"github.com/warp/parking-engine/cache"
	"github.com/warp/parking-engine/config"
	"github.com/warp/parking-engine/engine"
	"github.com/warp/parking-engine/monitoring"
	"github.com/warp/parking-engine/store/sqlite"
)

const occupancySampleInterval = 30 * time.Second

// boundService lets observers that read from the service be built before
// the service itself. Service is assigned once, before any request runs.
type boundService struct {
	*engine.Service
}

func main() {
	cfg := config.Load()

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	bound := &boundService{}
	monitor := monitoring.NewMonitor(bound)
	hub := api.NewHub()
	opts := []engine.WorkflowOption{
		engine.WithObserver(monitor),
		engine.WithObserver(hub),
	}

	// Optional analytics cache
	var analyticsCache *cache.Analytics
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, analytics served from the store: %v", err)
		} else {
			defer client.Close()
			analyticsCache = cache.NewAnalytics(client, bound, cfg.AnalyticsCacheTTL)
			opts = append(opts, engine.WithObserver(analyticsCache))
		}
	}

	svc := engine.NewService(store, opts...)
	bound.Service = svc

	// Initialize handler
	handler := api.NewHandler(svc, store)
	handler.INRRate = cfg.USDToINRRate
	if analyticsCache != nil {
		handler.UseCache(analyticsCache)
	}

	scheduler := api.NewExpiryScheduler(svc)
	scheduler.CheckInterval = cfg.ExpiryCheckInterval
	handler.Scheduler = scheduler
	scheduler.Start()

	go hub.Run(ctx)
	if cfg.EnableMetrics {
		go monitor.Run(ctx, occupancySampleInterval)
	}

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.EnableMetrics,
		Hub:            hub,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", cfg.Port)
		log.Printf("📊 API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	scheduler.Stop()
	cancel()

	log.Println("Server stopped")
}
