package report

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliotrace/foliotrace/pkg/session"
)

func TestHTMLRendersFullReport(t *testing.T) {
	gen := NewGenerator(nil)
	snap := testSnapshot()

	doc, err := gen.HTML(snap)
	require.NoError(t, err)

	assert.Contains(t, doc, "whitepaper.pdf")
	assert.Contains(t, doc, snap.ID)
	assert.Contains(t, doc, "Completed")
	assert.NotContains(t, doc, `class="badge live"`)
	assert.Contains(t, doc, "scroll down")
	assert.Contains(t, doc, "page 1 to page 2")
	assert.Contains(t, doc, "zoom to 150%")
}

func TestHTMLEmptySession(t *testing.T) {
	gen := NewGenerator(nil)

	doc, err := gen.HTML(emptySnapshot())
	require.NoError(t, err)

	assert.Contains(t, doc, "no pages viewed")
	assert.Contains(t, doc, "no interactions recorded")
	assert.Contains(t, doc, "Most viewed page: N/A")
	assert.Contains(t, doc, "Average time per page: N/A")
}

func TestHTMLLiveBadge(t *testing.T) {
	gen := NewGenerator(nil)
	snap := testSnapshot()
	snap.EndTime = nil

	doc, err := gen.HTML(snap)
	require.NoError(t, err)

	assert.Contains(t, doc, `class="badge live"`)
	assert.Contains(t, doc, "Ended N/A")
}

func TestHTMLNilSnapshot(t *testing.T) {
	gen := NewGenerator(nil)

	_, err := gen.HTML(nil)
	assert.Error(t, err)
}

func TestHTMLEscapesFileName(t *testing.T) {
	gen := NewGenerator(nil)
	snap := testSnapshot()
	snap.FileName = `<script>alert("x")</script>.pdf`

	doc, err := gen.HTML(snap)
	require.NoError(t, err)

	assert.NotContains(t, doc, `<script>alert`)
	assert.Contains(t, doc, "&lt;script&gt;")
}

func TestBuildReportData(t *testing.T) {
	snap := testSnapshot()
	data := buildReportData(snap)

	assert.Equal(t, snap.ID, data.SessionID)
	assert.Equal(t, 12, data.TotalPages)
	assert.Equal(t, 2, data.PagesViewed)
	assert.Equal(t, 6, data.TotalInteractions)
	assert.Equal(t, 1, data.HeatPoints)
	assert.False(t, data.Live)
	assert.Equal(t, "1m30s", data.Duration)
}

func TestBuildPageStats(t *testing.T) {
	snap := testSnapshot()
	// A revisit of page 1 merges into its row.
	revisitStart := testStart.Add(2 * time.Minute)
	revisitEnd := revisitStart.Add(10 * time.Second)
	snap.PageViews = append(snap.PageViews, session.PageView{
		PageNumber:  1,
		StartTime:   revisitStart,
		EndTime:     &revisitEnd,
		TotalTimeMs: 10_000,
	})

	stats := buildPageStats(snap)
	require.Len(t, stats, 2)

	assert.Equal(t, 1, stats[0].Page)
	assert.Equal(t, 2, stats[0].Visits)
	assert.Equal(t, "40s", stats[0].TotalTime)
	assert.Equal(t, 2, stats[0].Scrolls)

	assert.Equal(t, 2, stats[1].Page)
	assert.Equal(t, 1, stats[1].Visits)
	assert.Equal(t, 1, stats[1].Movements)
	assert.Equal(t, 1, stats[1].Zooms)
}

func TestDwellMsOpenStay(t *testing.T) {
	snapEnd := testStart.Add(45 * time.Second)
	pv := session.PageView{PageNumber: 3, StartTime: testStart}

	assert.Equal(t, int64(45_000), dwellMs(&pv, &snapEnd))
	assert.Equal(t, int64(0), dwellMs(&pv, nil))

	closedEnd := testStart.Add(5 * time.Second)
	pv.EndTime = &closedEnd
	pv.TotalTimeMs = 5000
	assert.Equal(t, int64(5000), dwellMs(&pv, &snapEnd))
}

func TestBuildTimelineCap(t *testing.T) {
	interactions := make([]session.Interaction, TimelineLimit+20)
	for i := range interactions {
		interactions[i] = session.Interaction{
			Type:       session.InteractionScroll,
			Timestamp:  testStart.Add(time.Duration(i) * time.Second),
			PageNumber: 1,
			Details:    session.ScrollDetails{Direction: "down", Delta: float64(i)},
		}
	}

	entries, omitted := buildTimeline(interactions)
	require.Len(t, entries, TimelineLimit)
	assert.Equal(t, 20, omitted)

	// The window keeps the most recent interactions in order.
	assert.Equal(t, testStart.Add(20*time.Second).Format("15:04:05"), entries[0].Time)
	assert.Equal(t, testStart.Add(69*time.Second).Format("15:04:05"), entries[len(entries)-1].Time)
}

func TestBuildTimelineUnderCap(t *testing.T) {
	entries, omitted := buildTimeline(testSnapshot().Interactions)
	assert.Len(t, entries, 6)
	assert.Zero(t, omitted)
}

func TestHTMLTimelineOmissionNote(t *testing.T) {
	gen := NewGenerator(nil)
	snap := testSnapshot()
	for i := 0; i < TimelineLimit+5; i++ {
		snap.Interactions = append(snap.Interactions, session.Interaction{
			Type:       session.InteractionScroll,
			Timestamp:  testStart.Add(time.Duration(i) * time.Second),
			PageNumber: 1,
		})
	}

	doc, err := gen.HTML(snap)
	require.NoError(t, err)

	assert.Contains(t, doc, fmt.Sprintf("Showing the most recent %d of %d interactions.", TimelineLimit, len(snap.Interactions)))
}

func TestSummarize(t *testing.T) {
	from := 3

	tests := []struct {
		name string
		ev   session.Interaction
		want string
	}{
		{
			name: "initial navigate",
			ev:   session.Interaction{Type: session.InteractionNavigate, Details: session.NavigateDetails{ToPage: 1}},
			want: "opened on page 1",
		},
		{
			name: "navigate",
			ev:   session.Interaction{Type: session.InteractionNavigate, Details: session.NavigateDetails{FromPage: &from, ToPage: 4}},
			want: "page 3 to page 4",
		},
		{
			name: "click",
			ev:   session.Interaction{Type: session.InteractionClick, Details: session.PointerDetails{X: 0.5, Y: 0.25}},
			want: "click at (50.0%, 25.0%)",
		},
		{
			name: "movement sample",
			ev:   session.Interaction{Type: session.InteractionClick, Details: session.PointerDetails{X: 0.5, Y: 0.25, Action: session.ActionMouseMovement}},
			want: "pointer at (50.0%, 25.0%)",
		},
		{
			name: "scroll",
			ev:   session.Interaction{Type: session.InteractionScroll, Details: session.ScrollDetails{Direction: "up"}},
			want: "scroll up",
		},
		{
			name: "bare scroll",
			ev:   session.Interaction{Type: session.InteractionScroll, Details: session.ScrollDetails{}},
			want: "scroll",
		},
		{
			name: "zoom",
			ev:   session.Interaction{Type: session.InteractionZoom, Details: session.ZoomDetails{Scale: 0.75}},
			want: "zoom to 75%",
		},
		{
			name: "rotate",
			ev:   session.Interaction{Type: session.InteractionRotate, Details: session.RotateDetails{Degrees: 90}},
			want: "rotate 90°",
		},
		{
			name: "snip",
			ev:   session.Interaction{Type: session.InteractionSnip, Details: session.SnipDetails{X: 0.1, Y: 0.1, Width: 0.3, Height: 0.2}},
			want: "snip 30% × 20% region",
		},
		{
			name: "missing details",
			ev:   session.Interaction{Type: session.InteractionClick},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summarize(tt.ev))
		})
	}
}

func TestBuildOverlays(t *testing.T) {
	snap := testSnapshot()
	snap.Interactions = append(snap.Interactions, session.Interaction{
		Type:       session.InteractionSnip,
		Timestamp:  testStart.Add(time.Minute),
		PageNumber: 2,
		Details:    session.SnipDetails{X: 0.25, Y: 0.5, Width: 0.5, Height: 0.25},
	})

	overlays := buildOverlays(snap)
	require.Len(t, overlays, 2)

	// Page 1 had only navigate and scroll events, none of which carry
	// coordinates.
	assert.Equal(t, 1, overlays[0].Page)
	assert.Empty(t, overlays[0].Marks)

	// Page 2 has a click, a snip and one heat point.
	assert.Equal(t, 2, overlays[1].Page)
	require.Len(t, overlays[1].Marks, 3)

	kinds := make([]string, 0, len(overlays[1].Marks))
	for _, mark := range overlays[1].Marks {
		kinds = append(kinds, mark.Kind)
	}
	assert.ElementsMatch(t, []string{"click", "snip", "heat"}, kinds)
}

func TestMarkFor(t *testing.T) {
	click := session.Interaction{
		Type:      session.InteractionClick,
		Timestamp: testStart,
		Details:   session.PointerDetails{X: 0.5, Y: 0.5},
	}
	mark, ok := markFor(click)
	require.True(t, ok)
	assert.Equal(t, "click", mark.Kind)
	assert.Equal(t, overlayPageWidth/2-mark.Width/2, mark.Left)
	assert.Equal(t, overlayPageHeight/2-mark.Height/2, mark.Top)

	move := click
	move.Details = session.PointerDetails{X: 0.5, Y: 0.5, Action: session.ActionMouseMovement}
	mark, ok = markFor(move)
	require.True(t, ok)
	assert.Equal(t, "move", mark.Kind)

	snip := session.Interaction{
		Type:      session.InteractionSnip,
		Timestamp: testStart,
		Details:   session.SnipDetails{X: 0.25, Y: 0.25, Width: 0.5, Height: 0.5},
	}
	mark, ok = markFor(snip)
	require.True(t, ok)
	assert.Equal(t, "snip", mark.Kind)
	assert.Equal(t, overlayPageWidth/4, mark.Left)
	assert.Equal(t, overlayPageWidth/2, mark.Width)

	_, ok = markFor(session.Interaction{Type: session.InteractionScroll, Details: session.ScrollDetails{}})
	assert.False(t, ok)

	_, ok = markFor(session.Interaction{Type: session.InteractionClick})
	assert.False(t, ok, "missing details contribute no mark")
}

func TestScalePxClamps(t *testing.T) {
	assert.Equal(t, 0, scalePx(-0.5, 480))
	assert.Equal(t, 0, scalePx(0, 480))
	assert.Equal(t, 240, scalePx(0.5, 480))
	assert.Equal(t, 480, scalePx(1.0, 480))
	assert.Equal(t, 480, scalePx(1.5, 480))
}

func TestHeatSize(t *testing.T) {
	assert.Equal(t, 10, heatSize(0))
	assert.Equal(t, 10, heatSize(-3))
	assert.Equal(t, 14, heatSize(1))
	assert.Equal(t, 28, heatSize(100))
}

func TestBuildTypeCounts(t *testing.T) {
	counts := buildTypeCounts(testSnapshot().Interactions)
	require.NotEmpty(t, counts)

	// scroll and navigate tie at two; the tie breaks alphabetically.
	assert.Equal(t, typeCount{Type: "navigate", Count: 2}, counts[0])
	assert.Equal(t, typeCount{Type: "scroll", Count: 2}, counts[1])

	for i := 1; i < len(counts); i++ {
		assert.GreaterOrEqual(t, counts[i-1].Count, counts[i].Count)
	}
}

func TestDwellInsights(t *testing.T) {
	snap := testSnapshot()

	most, avg, ok := dwellInsights(snap)
	require.True(t, ok)
	assert.Equal(t, "Page 2 (1m0s)", most)
	assert.Equal(t, "45s", avg)
}

func TestDwellInsightsEmpty(t *testing.T) {
	_, _, ok := dwellInsights(emptySnapshot())
	assert.False(t, ok)
}

func TestDwellInsightsTieBreaksLowestPage(t *testing.T) {
	end := testStart.Add(time.Minute)
	t1 := testStart.Add(30 * time.Second)
	snap := &session.Snapshot{
		Session: session.Session{ID: "tie", StartTime: testStart, EndTime: &end},
		PageViews: []session.PageView{
			{PageNumber: 5, StartTime: testStart, EndTime: &t1, TotalTimeMs: 30_000},
			{PageNumber: 2, StartTime: t1, EndTime: &end, TotalTimeMs: 30_000},
		},
	}

	most, _, ok := dwellInsights(snap)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(most, "Page 2 "), "got %q", most)
}

func TestFormatMs(t *testing.T) {
	assert.Equal(t, "0s", formatMs(0))
	assert.Equal(t, "0s", formatMs(-100))
	assert.Equal(t, "450ms", formatMs(450))
	assert.Equal(t, "2s", formatMs(2499))
	assert.Equal(t, "1m30s", formatMs(90_000))
	assert.Equal(t, "1h1m0s", formatMs(3_660_000))
}
