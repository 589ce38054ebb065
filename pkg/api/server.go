package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/ratelimit"
	"github.com/foliotrace/foliotrace/pkg/report"
	"github.com/foliotrace/foliotrace/pkg/storage"
	"github.com/foliotrace/foliotrace/pkg/tracker"
)

// Config holds the HTTP-facing knobs of the collector API.
type Config struct {
	// MaxBodyBytes caps each request body. Bodies beyond the cap fail
	// the JSON decode with a 400 rather than accumulating in memory.
	MaxBodyBytes int64

	// AllowedOrigins is the CORS allow list; "*" admits any origin.
	AllowedOrigins []string

	// SaveTimeout bounds the synchronous persistence work of the flush
	// and close handlers.
	SaveTimeout time.Duration

	// Tracing wraps the handler chain in one otelhttp span per request.
	Tracing bool
}

// DefaultConfig returns the standard API settings.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
		SaveTimeout:    5 * time.Second,
	}
}

// Server is the collector API: the HTTP surface a document viewer
// integration talks to instead of an in-page provider. It routes ingest
// calls to live trackers in the registry, export calls to the report
// generator, and listing calls to the store.
type Server struct {
	config    Config
	registry  *tracker.Registry
	store     storage.Store
	persist   tracker.Persister
	generator *report.Generator
	limiter   *ratelimit.Limiter
	logger    *observability.Logger
	metrics   *observability.Metrics

	router  *mux.Router
	handler http.Handler
}

// NewServer creates the collector API over its collaborators. persist,
// limiter, and metrics may be nil: without a persister flush is a no-op
// on top of whatever the trackers already do, without a limiter ingest
// is unmetered, without metrics nothing is counted.
func NewServer(config Config, registry *tracker.Registry, store storage.Store, persist tracker.Persister, limiter *ratelimit.Limiter, logger *observability.Logger, metrics *observability.Metrics) *Server {
	def := DefaultConfig()
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = def.MaxBodyBytes
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = def.AllowedOrigins
	}
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = def.SaveTimeout
	}

	s := &Server{
		config:    config,
		registry:  registry,
		store:     store,
		persist:   persist,
		generator: report.NewGenerator(metrics),
		limiter:   limiter,
		logger:    logger,
		metrics:   metrics,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	s.handler = s.buildHandler()
	return s
}

// setupRoutes configures all the API routes.
func (s *Server) setupRoutes() {
	// Session lifecycle routes
	s.router.HandleFunc("/api/v1/sessions", s.openSession).Methods("POST")
	s.router.HandleFunc("/api/v1/sessions", s.listSessions).Methods("GET")
	s.router.HandleFunc("/api/v1/sessions/{id}", s.closeSession).Methods("DELETE")

	// Ingest routes
	s.router.HandleFunc("/api/v1/sessions/{id}/pageview", s.recordPageView).Methods("POST")
	s.router.HandleFunc("/api/v1/sessions/{id}/interactions", s.recordInteractions).Methods("POST")
	s.router.HandleFunc("/api/v1/sessions/{id}/heatmap", s.updateHeatmap).Methods("PUT")

	// Persistence and export routes
	s.router.HandleFunc("/api/v1/sessions/{id}/flush", s.flushSession).Methods("POST")
	s.router.HandleFunc("/api/v1/sessions/{id}/report", s.exportReport).Methods("GET")
}

// ServeHTTP implements http.Handler, serving through the full
// middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
