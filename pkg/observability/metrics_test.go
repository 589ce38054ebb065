package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersEverything(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	// Touch one metric from each family so Gather has something to report.
	m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/sessions", "200").Inc()
	m.EventsRecordedTotal.WithLabelValues("scroll").Inc()
	m.EventsSampledOutTotal.WithLabelValues("mouse_movement").Inc()
	m.BufferEvictionsTotal.WithLabelValues("interactions").Inc()
	m.SessionsOpenedTotal.Inc()
	m.SessionsClosedTotal.WithLabelValues("flush").Inc()
	m.ActiveSessions.Set(3)
	m.SavesTotal.WithLabelValues("debounce", "ok").Inc()
	m.SaveDuration.Observe(0.05)
	m.SavesCoalescedTotal.Inc()
	m.PrunedSessionsTotal.WithLabelValues("age").Add(2)
	m.StorageOperationsTotal.WithLabelValues("save", "memory", "ok").Inc()
	m.StorageOperationDuration.WithLabelValues("save", "memory").Observe(0.001)
	m.StorageErrorsTotal.WithLabelValues("get", "redis", "timeout").Inc()
	m.CacheHitsTotal.WithLabelValues("snapshot").Inc()
	m.CacheMissesTotal.WithLabelValues("snapshot").Inc()
	m.CacheEvictionsTotal.WithLabelValues("snapshot").Inc()
	m.CacheEntries.WithLabelValues("snapshot").Set(12)
	m.DBConnectionsActive.Set(2)
	m.ReportsGeneratedTotal.WithLabelValues("html", "ok").Inc()
	m.ReportDuration.WithLabelValues("html").Observe(0.2)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}

	for _, want := range []string{
		"foliotrace_http_requests_total",
		"foliotrace_events_recorded_total",
		"foliotrace_events_sampled_out_total",
		"foliotrace_buffer_evictions_total",
		"foliotrace_sessions_opened_total",
		"foliotrace_sessions_closed_total",
		"foliotrace_active_sessions",
		"foliotrace_saves_total",
		"foliotrace_save_duration_seconds",
		"foliotrace_saves_coalesced_total",
		"foliotrace_pruned_sessions_total",
		"foliotrace_storage_operations_total",
		"foliotrace_storage_errors_total",
		"foliotrace_cache_hits_total",
		"foliotrace_cache_entries",
		"foliotrace_db_connections_active",
		"foliotrace_reports_generated_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestMetricValues(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.SessionsOpenedTotal.Inc()
	m.SessionsOpenedTotal.Inc()
	if got := testutil.ToFloat64(m.SessionsOpenedTotal); got != 2 {
		t.Errorf("SessionsOpenedTotal = %v, want 2", got)
	}

	m.PrunedSessionsTotal.WithLabelValues("age").Add(5)
	if got := testutil.ToFloat64(m.PrunedSessionsTotal.WithLabelValues("age")); got != 5 {
		t.Errorf("PrunedSessionsTotal{age} = %v, want 5", got)
	}

	m.ActiveSessions.Set(4)
	m.ActiveSessions.Dec()
	if got := testutil.ToFloat64(m.ActiveSessions); got != 3 {
		t.Errorf("ActiveSessions = %v, want 3", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"fileName":"a.pdf"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	counter := m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/sessions", "201")
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Errorf("HTTPRequestsTotal = %v, want 1", got)
	}

	if count := testutil.CollectAndCount(m.HTTPRequestDuration); count == 0 {
		t.Error("HTTPRequestDuration recorded nothing")
	}
}

func TestHTTPMetricsMiddleware_DefaultStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	// A handler that never calls WriteHeader reports 200.
	handler := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	counter := m.HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200")
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Errorf("HTTPRequestsTotal = %v, want 1", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.SessionsOpenedTotal.Inc()

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "foliotrace_sessions_opened_total 1") {
		t.Error("exposition output missing foliotrace_sessions_opened_total")
	}
}
