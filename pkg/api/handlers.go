package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/foliotrace/foliotrace/pkg/httputil"
	"github.com/foliotrace/foliotrace/pkg/report"
	"github.com/foliotrace/foliotrace/pkg/session"
	"github.com/foliotrace/foliotrace/pkg/storage"
	"github.com/foliotrace/foliotrace/pkg/tracker"
)

// openSession handles POST /api/v1/sessions.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.TotalPages < 0 {
		httputil.WriteValidationError(w, "totalPages must not be negative")
		return
	}

	t, err := s.registry.Open(req.FileName, req.TotalPages)
	if err != nil {
		// Only a registry already in shutdown refuses an open.
		httputil.WriteServiceUnavailable(w, err.Error())
		return
	}

	snap := t.Report()
	httputil.WriteCreated(w, OpenSessionResponse{
		SessionID:  t.ID(),
		FileName:   snap.FileName,
		TotalPages: snap.TotalPages,
		StartTime:  snap.StartTime,
	})
}

// recordPageView handles POST /api/v1/sessions/{id}/pageview. The open
// stay is closed and filed, and a fresh one starts on the new page.
func (s *Server) recordPageView(w http.ResponseWriter, r *http.Request) {
	t, ok := s.liveSession(w, r)
	if !ok {
		return
	}

	var req PageViewRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Page < 1 {
		httputil.WriteValidationError(w, "page must be 1 or greater")
		return
	}

	t.RecordPageView(req.Page)
	httputil.WriteNoContent(w)
}

// recordInteractions handles POST /api/v1/sessions/{id}/interactions.
// The body is one interaction object or an array of them. Sampled-out
// movement events count as dropped, not as errors; unknown interaction
// types are recorded without bumping any counter.
func (s *Server) recordInteractions(w http.ResponseWriter, r *http.Request) {
	t, ok := s.liveSession(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body: "+err.Error())
		return
	}
	events, err := decodeInteractions(body)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if len(events) == 0 {
		httputil.WriteValidationError(w, "no interactions in request")
		return
	}
	for _, ev := range events {
		if ev.Type == "" {
			httputil.WriteValidationError(w, "interaction type is required")
			return
		}
	}

	var resp IngestResponse
	for _, ev := range events {
		if t.RecordInteraction(ev.Type, ev.Details) {
			resp.Recorded++
		} else {
			resp.Dropped++
		}
	}
	httputil.WriteSuccess(w, resp)
}

// updateHeatmap handles PUT /api/v1/sessions/{id}/heatmap. The body is
// the full heatmap keyed by page number; resubmitting identical content
// is a no-op.
func (s *Server) updateHeatmap(w http.ResponseWriter, r *http.Request) {
	t, ok := s.liveSession(w, r)
	if !ok {
		return
	}

	var data session.Heatmap
	if !httputil.ParseJSONOrError(w, r, &data) {
		return
	}

	httputil.WriteSuccess(w, HeatmapResponse{Updated: t.UpdateHeatmap(data)})
}

// flushSession handles POST /api/v1/sessions/{id}/flush, the
// visibility-change and unload edge. Persistence is advisory: a failed
// write is logged and the response is still 204, so storage trouble
// never surfaces into the viewer.
func (s *Server) flushSession(w http.ResponseWriter, r *http.Request) {
	t, ok := s.liveSession(w, r)
	if !ok {
		return
	}

	if s.persist != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.SaveTimeout)
		defer cancel()

		if err := s.persist.Flush(ctx, t.ID(), t.Report()); err != nil {
			s.requestLogger(r).WithSession(t.ID()).WithError(err).Warn("Best-effort flush failed")
		}
	}
	httputil.WriteNoContent(w)
}

// closeSession handles DELETE /api/v1/sessions/{id}: the session is
// finalized, flushed, and dropped from the live set. The final snapshot
// is returned so the caller sees what was recorded; a failed final
// flush has already been logged by the registry.
func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.SaveTimeout)
	defer cancel()

	snap, err := s.registry.Close(ctx, id)
	if err != nil {
		httputil.WriteNotFoundError(w, "session "+id+" is not live")
		return
	}
	httputil.WriteSuccess(w, snap)
}

// exportReport handles GET /api/v1/sessions/{id}/report. A live session
// renders from its current in-memory state; otherwise the stored
// snapshot serves, so reports stay available after the viewer closes.
func (s *Server) exportReport(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	format := report.Format(httputil.ParseQueryString(r, "format", string(report.FormatJSON)))
	if !format.Valid() {
		httputil.WriteValidationError(w, fmt.Sprintf("unsupported format %q, expected json, html, csv or ndjson", format))
		return
	}

	snap, err := s.resolveSnapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "session "+id+" not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	data, err := s.generator.Export(snap, format)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType(format))
	if format != report.FormatHTML {
		// HTML renders inline; the data formats download as files.
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.DownloadName(id, format)))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.requestLogger(r).WithSession(id).WithError(err).Warn("Report write interrupted")
	}
}

// listSessions handles GET /api/v1/sessions: the stored listing, most
// recent activity first. A live session appears once its first
// debounced write lands.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, SessionListResponse{Sessions: infos, Count: len(infos)})
}

// liveSession resolves the {id} path variable to its live tracker,
// writing the 404 on a miss.
func (s *Server) liveSession(w http.ResponseWriter, r *http.Request) (*tracker.Tracker, bool) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return nil, false
	}
	t, err := s.registry.Get(id)
	if err != nil {
		httputil.WriteNotFoundError(w, "session "+id+" is not live")
		return nil, false
	}
	return t, true
}

// resolveSnapshot prefers the live session and falls back to storage.
func (s *Server) resolveSnapshot(ctx context.Context, id string) (*session.Snapshot, error) {
	if t, err := s.registry.Get(id); err == nil {
		return t.Report(), nil
	}
	return s.store.Get(ctx, id)
}
