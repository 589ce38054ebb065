package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/foliotrace/foliotrace/pkg/api"
	"github.com/foliotrace/foliotrace/pkg/config"
	"github.com/foliotrace/foliotrace/pkg/gateway"
	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/ratelimit"
	"github.com/foliotrace/foliotrace/pkg/storage"
	"github.com/foliotrace/foliotrace/pkg/tracker"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (environment variables apply either way)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	logger.WithFields(map[string]interface{}{
		"version": version,
		"backend": cfg.Storage.Type,
	}).Info("Starting foliotrace collector")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics registry
	promRegistry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(promRegistry)
	}

	// OpenTelemetry is optional; the collector runs fine without a trace
	// backend, so a failed init only costs tracing
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry initialization failed, continuing without tracing")
		providers = nil
	}

	// Storage backend
	store, err := storage.NewStore(ctx, cfg.Storage, logger, metrics)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Persistence gateway and retention janitor
	gw := gateway.New(store, cfg.GatewayConfig(), logger, metrics)
	janitor := gateway.NewJanitor(store, cfg.JanitorConfig(), logger, metrics)
	if err := janitor.Start(); err != nil {
		log.Fatalf("Failed to start retention janitor: %v", err)
	}

	// Session registry
	sessions := tracker.NewRegistry(ctx, cfg.RegistryConfig(), gw, logger, metrics)
	sessions.StartSamplerCleanup(ctx, 10*time.Minute, time.Hour)

	// Ingest rate limiter
	var limiter *ratelimit.Limiter
	if lc := cfg.LimiterConfig(); lc != nil {
		limiter = ratelimit.NewLimiter(lc)
		limiter.StartCleanup(ctx)
	}

	// Collector API server
	apiServer := api.NewServer(api.Config{
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SaveTimeout:    cfg.Collector.SaveTimeout,
		Tracing:        providers != nil,
	}, sessions, store, gw, limiter, logger, metrics)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server on its own port so probes bypass the
	// public middleware chain
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(store, store.Name(), version)
	if db := storage.SQLDB(store); db != nil {
		checker.WithDB(db)
		if metrics != nil {
			go publishPoolStats(ctx, checker, metrics)
		}
	}
	if rc := storage.RedisClient(store); rc != nil {
		checker.WithRedis(rc)
	}
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, promRegistry)
	}
	healthServer := &http.Server{
		Addr:        cfg.Server.HealthAddr(),
		Handler:     healthMux,
		ReadTimeout: 5 * time.Second,
	}

	// Hot reload covers the knobs that are safe to change under live
	// sessions; listen addresses and storage selection need a restart
	var watcher *config.Watcher
	if *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, logger, func(next *config.Config) {
			sessions.SetMovementInterval(next.Collector.MovementInterval)
			gw.SetDebounce(next.Collector.SaveDebounce)
			janitor.SetRetention(next.Retention.MaxAge, next.Retention.MaxSessions)
		})
		if err != nil {
			logger.WithError(err).Warn("Config hot reload unavailable")
			watcher = nil
		}
	}

	// Teardown runs in reverse registration order once the API server has
	// stopped accepting requests: the watcher closes first, live sessions
	// flush through the gateway into the store, and the store closes last
	// of the data path
	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.RegisterShutdownFunc("health server", healthServer.Shutdown)
	shutdown.RegisterShutdownFunc("storage", func(context.Context) error {
		return store.Close()
	})
	shutdown.RegisterShutdownFunc("retention janitor", func(context.Context) error {
		janitor.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc("persistence gateway", gw.Stop)
	shutdown.RegisterShutdownFunc("session registry", sessions.CloseAll)
	if watcher != nil {
		shutdown.RegisterShutdownFunc("config watcher", func(context.Context) error {
			return watcher.Close()
		})
	}

	// Bind both listeners before serving so a taken port fails startup
	// instead of surfacing later from a goroutine
	apiListener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", httpServer.Addr, err)
	}
	healthListener, err := net.Listen("tcp", healthServer.Addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", healthServer.Addr, err)
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.Serve(healthListener); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("Collector listening")
		if err := httpServer.Serve(apiListener); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Collector server failed")
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}

// publishPoolStats mirrors the SQL pool counters into gauges so pool
// saturation is visible next to request rates.
func publishPoolStats(ctx context.Context, checker *observability.HealthChecker, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checker.PublishDBStats(metrics)
		}
	}
}
