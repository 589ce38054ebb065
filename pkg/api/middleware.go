package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/foliotrace/foliotrace/pkg/httputil"
	"github.com/foliotrace/foliotrace/pkg/observability"
)

// buildHandler wraps the router in the middleware chain. Recovery sits
// outermost of the chain so a panic anywhere below still yields a 500;
// tracing wraps everything so the span covers the full request.
func (s *Server) buildHandler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		httputil.RecoveryMiddleware,
		s.requestID,
		s.logRequests,
	}
	if s.metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(s.metrics))
	}
	middlewares = append(middlewares,
		httputil.CORSMiddleware(s.config.AllowedOrigins),
		httputil.MaxBytesMiddleware(s.config.MaxBodyBytes),
	)
	if s.limiter != nil {
		middlewares = append(middlewares, s.rateLimit)
	}

	h := httputil.Chain(middlewares...)(s.router)
	if s.config.Tracing {
		h = otelhttp.NewHandler(h, "foliotrace.api")
	}
	return h
}

// requestID honors an inbound X-Request-ID or mints one, echoes it on
// the response, and threads it through the context for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), id)))
	})
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.WithFields(map[string]interface{}{
			"request_id": observability.GetRequestID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
			"remote":     clientIP(r),
		}).Info("Request handled")
	})
}

// statusRecorder captures the status code written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// rateLimit applies the per-client token bucket to ingest methods.
// Reads and CORS preflights pass unmetered.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if !s.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(s.limiter.Window().Seconds())))
			httputil.WriteTooManyRequests(w, "ingest rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger returns the server logger annotated with the request's
// correlation ID.
func (s *Server) requestLogger(r *http.Request) *observability.Logger {
	return s.logger.WithField("request_id", observability.GetRequestID(r.Context()))
}

// clientIP is the rate-limit key: the first X-Forwarded-For hop when a
// proxy supplied one, otherwise the connection peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
