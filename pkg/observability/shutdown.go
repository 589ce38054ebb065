package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownManager handles graceful shutdown of services.
//
// Shutdown steps run sequentially in reverse registration order, like
// defers: the session registry registers first and closes last-opened
// first, so final flushes reach the store before the store itself shuts
// down. Parallel teardown would race the flush against the store close.
type ShutdownManager struct {
	logger          *Logger
	server          *http.Server
	shutdownSteps   []shutdownStep
	shutdownTimeout time.Duration
	mu              sync.Mutex
}

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type shutdownStep struct {
	name string
	fn   ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		server:          server,
		shutdownSteps:   make([]shutdownStep, 0),
		shutdownTimeout: timeout,
	}
}

// RegisterShutdownFunc registers a named step to run during shutdown.
// Steps registered later run earlier.
func (sm *ShutdownManager) RegisterShutdownFunc(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownSteps = append(sm.shutdownSteps, shutdownStep{name: name, fn: fn})
}

// WaitForShutdown blocks until shutdown signal is received
func (sm *ShutdownManager) WaitForShutdown() error {
	// Create signal channel
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)

	return sm.Shutdown()
}

// Shutdown runs the teardown immediately without waiting for a signal.
func (sm *ShutdownManager) Shutdown() error {
	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	// Shutdown HTTP server first so no new work arrives mid-teardown
	if sm.server != nil {
		sm.logger.Info("Shutting down HTTP server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		sm.logger.Info("HTTP server shutdown complete")
	}

	sm.mu.Lock()
	steps := make([]shutdownStep, len(sm.shutdownSteps))
	copy(steps, sm.shutdownSteps)
	sm.mu.Unlock()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if ctx.Err() != nil {
			sm.logger.Warn("Shutdown timeout reached, forcing shutdown")
			return fmt.Errorf("shutdown timeout reached before step %q", step.name)
		}

		sm.logger.Infof("Shutting down %s", step.name)
		if err := step.fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown of %s failed", step.name)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		sm.logger.Infof("Shutdown of %s complete", step.name)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors: %v", len(errs), errs)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}

// GracefulShutdown waits for a signal and then tears down the server plus
// the given steps in reverse order.
func GracefulShutdown(logger *Logger, server *http.Server, steps map[string]ShutdownFunc) error {
	manager := NewShutdownManager(logger, server, 30*time.Second)

	for name, fn := range steps {
		manager.RegisterShutdownFunc(name, fn)
	}

	return manager.WaitForShutdown()
}
