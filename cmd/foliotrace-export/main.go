package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/foliotrace/foliotrace/pkg/config"
	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/report"
	"github.com/foliotrace/foliotrace/pkg/storage"
)

// Config holds the export tool configuration
type Config struct {
	ConfigPath    string
	SessionID     string
	All           bool
	Format        string
	OutDir        string
	MaxConcurrent int
	LogLevel      string
}

// Export tool reads stored session snapshots and renders them as reports
func main() {
	// Parse command-line flags
	cliConfig := parseFlags()

	// Setup logger
	logger := setupLogger(cliConfig.LogLevel)

	format := report.Format(cliConfig.Format)
	if !format.Valid() {
		logger.Fatalf("Unsupported format %q (expected json, html, csv or ndjson)", cliConfig.Format)
	}
	if cliConfig.SessionID == "" && !cliConfig.All {
		logger.Fatal("Either -id or -all is required")
	}
	if cliConfig.SessionID != "" && cliConfig.All {
		logger.Fatal("-id and -all are mutually exclusive")
	}

	// Open the configured storage backend
	ctx := context.Background()
	store, err := openStore(ctx, cliConfig.ConfigPath)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	generator := report.NewGenerator(nil)

	// Bulk export mode
	if cliConfig.All {
		exported, err := exportAll(ctx, store, generator, cliConfig, logger)
		if err != nil {
			logger.Fatalf("Bulk export failed after %d sessions: %v", exported, err)
		}
		logger.Infof("Exported %d sessions to %s", exported, cliConfig.OutDir)
		return
	}

	// Single session export
	if err := exportOne(ctx, store, generator, cliConfig.SessionID, format, cliConfig.OutDir); err != nil {
		logger.Fatalf("Export failed: %v", err)
	}
}

func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.ConfigPath, "config", getEnv("FOLIOTRACE_CONFIG", ""), "Path to YAML config file")
	flag.StringVar(&config.SessionID, "id", "", "Session ID to export")
	flag.BoolVar(&config.All, "all", false, "Export every stored session")
	flag.StringVar(&config.Format, "format", "json", "Export format (json, html, csv, ndjson)")
	flag.StringVar(&config.OutDir, "out", "", "Output directory (single exports print to stdout when empty)")
	flag.IntVar(&config.MaxConcurrent, "max-concurrent", 4, "Maximum concurrent exports")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	return config
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// openStore builds the backend selected by the foliotrace configuration.
// Backend logs go to stderr at warn level so piped exports stay clean.
func openStore(ctx context.Context, configPath string) (storage.Store, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	storeLogger := observability.NewLogger(observability.WarnLevel, os.Stderr)
	store, err := storage.NewStore(ctx, cfg.Storage, storeLogger, nil)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to ping %s storage: %w", store.Name(), err)
	}

	return store, nil
}

// exportOne renders a single stored session. An empty outDir writes the
// payload to stdout, otherwise the file lands in outDir under the
// standard download name.
func exportOne(ctx context.Context, store storage.Store, generator *report.Generator, id string, format report.Format, outDir string) error {
	snap, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	data, err := generator.Export(snap, format)
	if err != nil {
		return err
	}

	if outDir == "" {
		_, err = os.Stdout.Write(data)
		return err
	}

	path := filepath.Join(outDir, report.DownloadName(id, format))
	return os.WriteFile(path, data, 0644)
}

// exportAll renders every stored session into config.OutDir.
func exportAll(ctx context.Context, store storage.Store, generator *report.Generator, config *Config, logger *logrus.Logger) (int, error) {
	sessions, err := store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return 0, nil
	}

	if config.OutDir == "" {
		config.OutDir = "."
	}
	if err := os.MkdirAll(config.OutDir, 0755); err != nil {
		return 0, err
	}

	format := report.Format(config.Format)

	// Use errgroup for parallel export with max workers
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(config.MaxConcurrent)

	var (
		mu       sync.Mutex
		exported int
	)

	for _, info := range sessions {
		info := info // capture loop variable
		eg.Go(func() error {
			if err := exportOne(ctx, store, generator, info.ID, format, config.OutDir); err != nil {
				return fmt.Errorf("session %s: %w", info.ID, err)
			}
			logger.Debugf("Exported session %s (%s)", info.ID, info.FileName)

			mu.Lock()
			exported++
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return exported, err
	}

	return exported, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
