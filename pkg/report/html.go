package report

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/foliotrace/foliotrace/pkg/session"
)

// TimelineLimit caps the HTML timeline at the most recent interactions.
// This is a presentation cap, separate from the tracker's buffer bound.
const TimelineLimit = 50

// Page placeholder box used by the overlay section, in CSS pixels.
// Normalized coordinates are scaled by these fixed factors.
const (
	overlayPageWidth  = 480
	overlayPageHeight = 640
)

// reportData is the fully precomputed model the HTML template renders.
// All aggregation happens here so the template stays declarative.
type reportData struct {
	SessionID         string
	FileName          string
	TotalPages        int
	StartTime         string
	EndTime           string
	Duration          string
	Live              bool
	PagesViewed       int
	TotalInteractions int
	HeatPoints        int

	Pages            []pageStat
	Timeline         []timelineEntry
	TimelineOmitted  int
	TimelineTotal    int
	Overlays         []overlayPage
	MostViewedPage   string
	AverageTimePage  string
	InteractionMix   []typeCount
}

type pageStat struct {
	Page      int
	Visits    int
	TotalTime string
	Movements int
	Scrolls   int
	Zooms     int
	Rotations int
}

type timelineEntry struct {
	Time    string
	Type    string
	Page    int
	Summary string
}

type overlayPage struct {
	Page   int
	Width  int
	Height int
	Marks  []overlayMark
}

// overlayMark is one positioned element on a page placeholder. Left/Top
// are the top-left corner in pixels; point marks are pre-centered.
type overlayMark struct {
	Kind   string
	Left   int
	Top    int
	Width  int
	Height int
	Title  string
}

type typeCount struct {
	Type  string
	Count int
}

// HTML renders a self-contained report document. Rendering never mutates
// the snapshot; a fixed snapshot always yields the same document.
func (g *Generator) HTML(snap *session.Snapshot) (string, error) {
	if snap == nil {
		return "", fmt.Errorf("nil snapshot")
	}

	var buf bytes.Buffer
	if err := g.template.Execute(&buf, buildReportData(snap)); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func newReportTemplate() *template.Template {
	return template.Must(template.New("report").Parse(reportTemplate))
}

// buildReportData aggregates the snapshot into the template model.
// Every derived statistic tolerates empty input.
func buildReportData(snap *session.Snapshot) reportData {
	data := reportData{
		SessionID:         snap.ID,
		FileName:          snap.FileName,
		TotalPages:        snap.TotalPages,
		StartTime:         formatTime(snap.StartTime),
		EndTime:           "N/A",
		Duration:          formatMs(snap.TotalDurationMs),
		Live:              snap.EndTime == nil,
		TotalInteractions: len(snap.Interactions),
		TimelineTotal:     len(snap.Interactions),
		MostViewedPage:    "N/A",
		AverageTimePage:   "N/A",
	}
	if data.FileName == "" {
		data.FileName = "N/A"
	}
	if snap.EndTime != nil {
		data.EndTime = formatTime(*snap.EndTime)
	}
	for _, points := range snap.Heatmap {
		data.HeatPoints += len(points)
	}

	data.Pages = buildPageStats(snap)
	data.PagesViewed = len(data.Pages)
	data.Timeline, data.TimelineOmitted = buildTimeline(snap.Interactions)
	data.Overlays = buildOverlays(snap)
	data.InteractionMix = buildTypeCounts(snap.Interactions)

	if most, avg, ok := dwellInsights(snap); ok {
		data.MostViewedPage = most
		data.AverageTimePage = avg
	}

	return data
}

// buildPageStats aggregates visits page by page, ordered by page number.
func buildPageStats(snap *session.Snapshot) []pageStat {
	type totals struct {
		visits    int
		timeMs    int64
		movements int
		scrolls   int
		zooms     int
		rotations int
	}

	byPage := make(map[int]*totals)
	for i := range snap.PageViews {
		pv := &snap.PageViews[i]
		t := byPage[pv.PageNumber]
		if t == nil {
			t = &totals{}
			byPage[pv.PageNumber] = t
		}
		t.visits++
		t.timeMs += dwellMs(pv, snap.EndTime)
		t.movements += pv.MouseMovements
		t.scrolls += pv.ScrollEvents
		t.zooms += pv.ZoomChanges
		t.rotations += pv.RotationChanges
	}

	pages := make([]int, 0, len(byPage))
	for page := range byPage {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	stats := make([]pageStat, 0, len(pages))
	for _, page := range pages {
		t := byPage[page]
		stats = append(stats, pageStat{
			Page:      page,
			Visits:    t.visits,
			TotalTime: formatMs(t.timeMs),
			Movements: t.movements,
			Scrolls:   t.scrolls,
			Zooms:     t.zooms,
			Rotations: t.rotations,
		})
	}
	return stats
}

// dwellMs is the recorded dwell for a closed stay; for a stay still open
// it is measured against the snapshot's own end instant so rendering
// stays a pure function of the snapshot.
func dwellMs(pv *session.PageView, asOf *time.Time) int64 {
	if pv.EndTime != nil {
		return pv.TotalTimeMs
	}
	if asOf == nil {
		return 0
	}
	return asOf.Sub(pv.StartTime).Milliseconds()
}

// buildTimeline keeps the most recent TimelineLimit interactions in
// chronological order and reports how many older ones were left out.
func buildTimeline(interactions []session.Interaction) ([]timelineEntry, int) {
	omitted := 0
	window := interactions
	if len(window) > TimelineLimit {
		omitted = len(window) - TimelineLimit
		window = window[len(window)-TimelineLimit:]
	}

	entries := make([]timelineEntry, 0, len(window))
	for _, ev := range window {
		entries = append(entries, timelineEntry{
			Time:    ev.Timestamp.Format("15:04:05"),
			Type:    string(ev.Type),
			Page:    ev.PageNumber,
			Summary: summarize(ev),
		})
	}
	return entries, omitted
}

// summarize renders a human-readable line for one interaction. Payloads
// that are absent or of an unexpected shape yield an empty summary.
func summarize(ev session.Interaction) string {
	switch d := ev.Details.(type) {
	case session.NavigateDetails:
		if d.FromPage == nil {
			return fmt.Sprintf("opened on page %d", d.ToPage)
		}
		return fmt.Sprintf("page %d to page %d", *d.FromPage, d.ToPage)
	case session.PointerDetails:
		noun := "click"
		if ev.IsMouseMovement() {
			noun = "pointer"
		}
		return fmt.Sprintf("%s at (%.1f%%, %.1f%%)", noun, d.X*100, d.Y*100)
	case session.ScrollDetails:
		if d.Direction == "" {
			return "scroll"
		}
		return fmt.Sprintf("scroll %s", d.Direction)
	case session.ZoomDetails:
		return fmt.Sprintf("zoom to %.0f%%", d.Scale*100)
	case session.RotateDetails:
		return fmt.Sprintf("rotate %d°", d.Degrees)
	case session.SnipDetails:
		return fmt.Sprintf("snip %.0f%% × %.0f%% region", d.Width*100, d.Height*100)
	default:
		return ""
	}
}

// buildOverlays lays out interaction coordinates and heatmap points on a
// placeholder box per viewed page. Interactions without usable
// coordinates simply contribute no mark.
func buildOverlays(snap *session.Snapshot) []overlayPage {
	viewed := make(map[int]bool)
	for i := range snap.PageViews {
		viewed[snap.PageViews[i].PageNumber] = true
	}

	pages := make([]int, 0, len(viewed))
	for page := range viewed {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	overlays := make([]overlayPage, 0, len(pages))
	for _, page := range pages {
		overlay := overlayPage{
			Page:   page,
			Width:  overlayPageWidth,
			Height: overlayPageHeight,
		}

		for _, ev := range snap.Interactions {
			if ev.PageNumber != page {
				continue
			}
			if mark, ok := markFor(ev); ok {
				overlay.Marks = append(overlay.Marks, mark)
			}
		}

		for _, hp := range snap.Heatmap[page] {
			size := heatSize(hp.Weight)
			overlay.Marks = append(overlay.Marks, overlayMark{
				Kind:   "heat",
				Left:   scalePx(hp.X, overlayPageWidth) - size/2,
				Top:    scalePx(hp.Y, overlayPageHeight) - size/2,
				Width:  size,
				Height: size,
				Title:  fmt.Sprintf("weight %.1f", hp.Weight),
			})
		}

		overlays = append(overlays, overlay)
	}
	return overlays
}

// markFor converts a coordinate-bearing interaction into a positioned
// mark. Interactions without coordinates report ok=false.
func markFor(ev session.Interaction) (overlayMark, bool) {
	switch d := ev.Details.(type) {
	case session.PointerDetails:
		kind, size := "click", 10
		if ev.IsMouseMovement() {
			kind, size = "move", 6
		}
		return overlayMark{
			Kind:   kind,
			Left:   scalePx(d.X, overlayPageWidth) - size/2,
			Top:    scalePx(d.Y, overlayPageHeight) - size/2,
			Width:  size,
			Height: size,
			Title:  fmt.Sprintf("%s %s", kind, ev.Timestamp.Format("15:04:05")),
		}, true
	case session.SnipDetails:
		return overlayMark{
			Kind:   "snip",
			Left:   scalePx(d.X, overlayPageWidth),
			Top:    scalePx(d.Y, overlayPageHeight),
			Width:  scalePx(d.Width, overlayPageWidth),
			Height: scalePx(d.Height, overlayPageHeight),
			Title:  fmt.Sprintf("snip %s", ev.Timestamp.Format("15:04:05")),
		}, true
	default:
		return overlayMark{}, false
	}
}

// scalePx maps a normalized coordinate onto the placeholder box,
// clamped into it.
func scalePx(norm float64, box int) int {
	px := int(norm * float64(box))
	if px < 0 {
		return 0
	}
	if px > box {
		return box
	}
	return px
}

// heatSize maps a heat weight onto a dot diameter in pixels.
func heatSize(weight float64) int {
	size := 10 + int(weight*4)
	if size < 10 {
		return 10
	}
	if size > 28 {
		return 28
	}
	return size
}

// buildTypeCounts tallies interactions by type, most frequent first.
func buildTypeCounts(interactions []session.Interaction) []typeCount {
	byType := make(map[string]int)
	for _, ev := range interactions {
		byType[string(ev.Type)]++
	}

	counts := make([]typeCount, 0, len(byType))
	for typ, count := range byType {
		counts = append(counts, typeCount{Type: typ, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Type < counts[j].Type
	})
	return counts
}

// dwellInsights derives the most-viewed page and the average time per
// viewed page. ok is false when no page was viewed.
func dwellInsights(snap *session.Snapshot) (most, avg string, ok bool) {
	totals := make(map[int]int64)
	for i := range snap.PageViews {
		pv := &snap.PageViews[i]
		totals[pv.PageNumber] += dwellMs(pv, snap.EndTime)
	}
	if len(totals) == 0 {
		return "", "", false
	}

	bestPage := 0
	var bestMs, sumMs int64
	for page, ms := range totals {
		sumMs += ms
		if bestPage == 0 || ms > bestMs || (ms == bestMs && page < bestPage) {
			bestPage = page
			bestMs = ms
		}
	}

	most = fmt.Sprintf("Page %d (%s)", bestPage, formatMs(bestMs))
	avg = formatMs(sumMs / int64(len(totals)))
	return most, avg, true
}

// formatMs renders a millisecond count for display.
func formatMs(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return d.String()
	}
	return d.Truncate(time.Second).String()
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05 MST")
}

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Session Report - {{ .FileName }}</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            background: #f5f5f5;
        }
        .container {
            max-width: 1100px;
            margin: 0 auto;
            padding: 20px;
        }
        header {
            background: #2c3e50;
            color: white;
            padding: 30px 0;
            margin-bottom: 30px;
        }
        header h1 {
            margin-bottom: 6px;
        }
        header .meta {
            color: #bdc3c7;
            font-size: 0.9em;
        }
        .badge {
            display: inline-block;
            padding: 4px 8px;
            background: #3498db;
            color: white;
            border-radius: 3px;
            font-size: 0.85em;
            font-weight: 600;
        }
        .badge.live {
            background: #27ae60;
        }
        section {
            background: white;
            padding: 25px;
            border-radius: 8px;
            margin-bottom: 25px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h2 {
            color: #2c3e50;
            margin-bottom: 18px;
            padding-bottom: 8px;
            border-bottom: 2px solid #3498db;
        }
        .cards {
            display: flex;
            flex-wrap: wrap;
            gap: 15px;
        }
        .card {
            flex: 1 1 150px;
            background: #ecf0f1;
            border-radius: 6px;
            padding: 15px;
            text-align: center;
        }
        .card .value {
            display: block;
            font-size: 1.6em;
            font-weight: 700;
            color: #2c3e50;
        }
        .card .label {
            color: #7f8c8d;
            font-size: 0.85em;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th {
            background: #ecf0f1;
            padding: 10px;
            text-align: left;
            font-weight: 600;
            border-bottom: 2px solid #bdc3c7;
        }
        td {
            padding: 10px;
            border-bottom: 1px solid #ecf0f1;
        }
        tr:hover {
            background: #f8f9fa;
        }
        .empty {
            color: #7f8c8d;
            font-style: italic;
        }
        .note {
            color: #7f8c8d;
            font-size: 0.85em;
            margin-top: 10px;
        }
        .page-box {
            position: relative;
            background: #fdfdfd;
            border: 1px solid #bdc3c7;
            border-radius: 4px;
            margin: 10px 0 25px 0;
        }
        .page-box .page-label {
            position: absolute;
            top: 4px;
            right: 8px;
            color: #bdc3c7;
            font-size: 0.8em;
        }
        .mark {
            position: absolute;
        }
        .mark.click {
            background: #e74c3c;
            border-radius: 50%;
            opacity: 0.85;
        }
        .mark.move {
            background: #3498db;
            border-radius: 50%;
            opacity: 0.45;
        }
        .mark.heat {
            background: #f39c12;
            border-radius: 50%;
            opacity: 0.35;
        }
        .mark.snip {
            border: 2px dashed #9b59b6;
            background: rgba(155, 89, 182, 0.08);
        }
        .insights li {
            margin: 6px 0 6px 20px;
        }
    </style>
</head>
<body>
    <header>
        <div class="container">
            <h1>{{ .FileName }}</h1>
            <div class="meta">Session {{ .SessionID }}</div>
            {{ if .Live }}
            <span class="badge live">Live</span>
            {{ else }}
            <span class="badge">Completed</span>
            {{ end }}
        </div>
    </header>

    <div class="container">
        <section>
            <h2>Summary</h2>
            <div class="cards">
                <div class="card"><span class="value">{{ .TotalPages }}</span><span class="label">Total Pages</span></div>
                <div class="card"><span class="value">{{ .PagesViewed }}</span><span class="label">Pages Viewed</span></div>
                <div class="card"><span class="value">{{ .TotalInteractions }}</span><span class="label">Interactions</span></div>
                <div class="card"><span class="value">{{ .Duration }}</span><span class="label">Duration</span></div>
                <div class="card"><span class="value">{{ .HeatPoints }}</span><span class="label">Heat Points</span></div>
            </div>
            <p class="note">Started {{ .StartTime }} &middot; Ended {{ .EndTime }}</p>
        </section>

        <section>
            <h2>Pages</h2>
            {{ if .Pages }}
            <table>
                <thead>
                    <tr>
                        <th>Page</th>
                        <th>Visits</th>
                        <th>Time Spent</th>
                        <th>Movements</th>
                        <th>Scrolls</th>
                        <th>Zooms</th>
                        <th>Rotations</th>
                    </tr>
                </thead>
                <tbody>
                    {{ range .Pages }}
                    <tr>
                        <td>{{ .Page }}</td>
                        <td>{{ .Visits }}</td>
                        <td>{{ .TotalTime }}</td>
                        <td>{{ .Movements }}</td>
                        <td>{{ .Scrolls }}</td>
                        <td>{{ .Zooms }}</td>
                        <td>{{ .Rotations }}</td>
                    </tr>
                    {{ end }}
                </tbody>
            </table>
            {{ else }}
            <p class="empty">N/A &mdash; no pages viewed</p>
            {{ end }}
        </section>

        <section>
            <h2>Timeline</h2>
            {{ if .Timeline }}
            <table>
                <thead>
                    <tr>
                        <th>Time</th>
                        <th>Type</th>
                        <th>Page</th>
                        <th>Detail</th>
                    </tr>
                </thead>
                <tbody>
                    {{ range .Timeline }}
                    <tr>
                        <td>{{ .Time }}</td>
                        <td>{{ .Type }}</td>
                        <td>{{ .Page }}</td>
                        <td>{{ .Summary }}</td>
                    </tr>
                    {{ end }}
                </tbody>
            </table>
            {{ if .TimelineOmitted }}
            <p class="note">Showing the most recent {{ len .Timeline }} of {{ .TimelineTotal }} interactions.</p>
            {{ end }}
            {{ else }}
            <p class="empty">N/A &mdash; no interactions recorded</p>
            {{ end }}
        </section>

        <section>
            <h2>Page Activity</h2>
            {{ if .Overlays }}
            {{ range .Overlays }}
            <h3>Page {{ .Page }}</h3>
            <div class="page-box" style="width: {{ .Width }}px; height: {{ .Height }}px">
                <span class="page-label">page {{ .Page }}</span>
                {{ range .Marks }}
                <span class="mark {{ .Kind }}" style="left: {{ .Left }}px; top: {{ .Top }}px; width: {{ .Width }}px; height: {{ .Height }}px" title="{{ .Title }}"></span>
                {{ end }}
            </div>
            {{ end }}
            {{ else }}
            <p class="empty">N/A &mdash; no pages viewed</p>
            {{ end }}
        </section>

        <section>
            <h2>Insights</h2>
            <ul class="insights">
                <li>Most viewed page: {{ .MostViewedPage }}</li>
                <li>Average time per page: {{ .AverageTimePage }}</li>
            </ul>
            {{ if .InteractionMix }}
            <table>
                <thead>
                    <tr>
                        <th>Interaction</th>
                        <th>Count</th>
                    </tr>
                </thead>
                <tbody>
                    {{ range .InteractionMix }}
                    <tr>
                        <td>{{ .Type }}</td>
                        <td>{{ .Count }}</td>
                    </tr>
                    {{ end }}
                </tbody>
            </table>
            {{ else }}
            <p class="empty">N/A &mdash; no interactions recorded</p>
            {{ end }}
        </section>
    </div>
</body>
</html>
`
