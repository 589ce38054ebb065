package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/foliotrace/foliotrace/pkg/config"
	"github.com/foliotrace/foliotrace/pkg/gateway"
	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/storage"
)

var (
	configPath    = flag.String("config", getEnv("FOLIOTRACE_CONFIG", ""), "Path to YAML config file")
	maxAge        = flag.Duration("max-age", 0, "Delete sessions idle longer than this (0 uses the configured value)")
	maxSessions   = flag.Int("max-sessions", -1, "Keep at most this many stored sessions (-1 uses the configured value)")
	sweepInterval = flag.Duration("sweep-interval", 0, "Time between sweeps (0 uses the configured value)")
	runOnce       = flag.Bool("run-once", false, "Run one sweep and exit")
	logLevel      = flag.String("log-level", getEnv("FOLIOTRACE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override the configured retention limits
	if *maxAge > 0 {
		cfg.Retention.MaxAge = *maxAge
	}
	if *maxSessions >= 0 {
		cfg.Retention.MaxSessions = *maxSessions
	}
	if *sweepInterval > 0 {
		cfg.Retention.SweepInterval = *sweepInterval
	}

	logger := observability.NewLogger(observability.ParseLogLevel(*logLevel), os.Stdout)

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg.Storage, logger, nil)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Verify the backend is reachable before scheduling against it
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping %s storage: %v", store.Name(), err)
	}

	janitor := gateway.NewJanitor(store, cfg.JanitorConfig(), logger, nil)

	// Run once mode (for external schedulers or manual pruning)
	if *runOnce {
		pruned, err := janitor.RunOnce(ctx)
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		log.Printf("Sweep completed, %d sessions pruned", pruned)
		return
	}

	// Scheduled mode
	if err := janitor.Start(); err != nil {
		log.Fatalf("Failed to start sweep schedule: %v", err)
	}
	log.Printf("Foliotrace janitor started (backend: %s)", store.Name())
	log.Printf("Sweep interval: %s", cfg.Retention.SweepInterval)
	log.Printf("Retention limits: max age %s, max sessions %d", cfg.Retention.MaxAge, cfg.Retention.MaxSessions)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop blocks until any in-flight sweep finishes
	janitor.Stop()
	log.Println("Janitor stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
