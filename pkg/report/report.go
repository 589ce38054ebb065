package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/session"
)

// Format selects the rendering of an exported session.
type Format string

const (
	FormatJSON   Format = "json"
	FormatHTML   Format = "html"
	FormatCSV    Format = "csv"
	FormatNDJSON Format = "ndjson" // Newline-delimited JSON, one interaction per line
)

// Valid reports whether f is a supported export format.
func (f Format) Valid() bool {
	switch f {
	case FormatJSON, FormatHTML, FormatCSV, FormatNDJSON:
		return true
	}
	return false
}

// ContentType returns the MIME type to serve an export of this format with.
func ContentType(f Format) string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatCSV:
		return "text/csv"
	case FormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// DownloadName returns the attachment filename for an exported session.
func DownloadName(sessionID string, f Format) string {
	return fmt.Sprintf("foliotrace-%s.%s", sessionID, f)
}

// Generator renders session snapshots into export payloads. Rendering is
// pure: the snapshot is never mutated and a fixed snapshot always produces
// the same bytes.
type Generator struct {
	template *template.Template
	metrics  *observability.Metrics
}

// NewGenerator creates a generator. metrics may be nil (CLI use).
func NewGenerator(metrics *observability.Metrics) *Generator {
	return &Generator{
		template: newReportTemplate(),
		metrics:  metrics,
	}
}

// Export renders snap in the requested format.
func (g *Generator) Export(snap *session.Snapshot, format Format) ([]byte, error) {
	start := time.Now()

	data, err := g.render(snap, format)

	if g.metrics != nil && format.Valid() {
		status := "success"
		if err != nil {
			status = "error"
		}
		g.metrics.ReportsGeneratedTotal.WithLabelValues(string(format), status).Inc()
		g.metrics.ReportDuration.WithLabelValues(string(format)).Observe(time.Since(start).Seconds())
	}
	return data, err
}

func (g *Generator) render(snap *session.Snapshot, format Format) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	switch format {
	case FormatJSON:
		return g.JSON(snap)
	case FormatHTML:
		doc, err := g.HTML(snap)
		if err != nil {
			return nil, err
		}
		return []byte(doc), nil
	case FormatCSV:
		return g.CSV(snap)
	case FormatNDJSON:
		return g.NDJSON(snap)
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// JSON renders the complete snapshot: session fields, the full page-view
// and interaction arrays, and the heatmap. Nothing is truncated.
func (g *Generator) JSON(snap *session.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// NDJSON renders the interaction stream as newline-delimited JSON.
func (g *Generator) NDJSON(snap *session.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for i := range snap.Interactions {
		if err := encoder.Encode(&snap.Interactions[i]); err != nil {
			return nil, fmt.Errorf("failed to encode interaction: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// CSV renders the interaction stream as CSV. Detail payloads are carried
// in a single JSON column since each type has its own shape.
func (g *Generator) CSV(snap *session.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"Timestamp", "Type", "PageNumber", "Details"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, ev := range snap.Interactions {
		row := []string{
			ev.Timestamp.Format("2006-01-02 15:04:05"),
			string(ev.Type),
			strconv.Itoa(ev.PageNumber),
			formatDetails(ev.Details),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// formatDetails renders a detail payload as compact JSON, empty for none.
func formatDetails(details session.Details) string {
	if details == nil {
		return ""
	}
	data, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(data)
}
