package session

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session is the identity and timing envelope for one viewing episode.
// EndTime is nil while the session is live; TotalDurationMs is only
// meaningful once EndTime has been set.
type Session struct {
	ID              string     `json:"sessionId"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	TotalDurationMs int64      `json:"totalDurationMs"`
	FileName        string     `json:"fileName,omitempty"`
	TotalPages      int        `json:"totalPages"`
}

// New creates a live session starting now.
func New(fileName string, totalPages int) *Session {
	return NewAt(fileName, totalPages, time.Now().UTC())
}

// NewAt creates a live session with an explicit start instant. Callers that
// inject a clock (trackers, tests) use this variant.
func NewAt(fileName string, totalPages int, start time.Time) *Session {
	return &Session{
		ID:         uuid.NewString(),
		StartTime:  start,
		FileName:   fileName,
		TotalPages: totalPages,
	}
}

// Finalize stamps the end instant and derives the total duration. Calling
// it again moves the end forward; it never unsets it.
func (s *Session) Finalize(end time.Time) {
	s.EndTime = &end
	s.TotalDurationMs = end.Sub(s.StartTime).Milliseconds()
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.EndTime != nil {
		end := *s.EndTime
		clone.EndTime = &end
	}
	return &clone
}

// PageView records one contiguous stay on a page. EndTime is nil while the
// stay is open. The counters are bumped by the tracker as interactions
// arrive for the page.
type PageView struct {
	PageNumber      int        `json:"pageNumber"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	TotalTimeMs     int64      `json:"totalTimeMs"`
	MouseMovements  int        `json:"mouseMovements"`
	ScrollEvents    int        `json:"scrollEvents"`
	ZoomChanges     int        `json:"zoomChanges"`
	RotationChanges int        `json:"rotationChanges"`
}

// Open reports whether the stay has not been closed yet.
func (pv *PageView) Open() bool {
	return pv.EndTime == nil
}

// CloseAt closes the stay and derives its dwell time. Closing an already
// closed view is a no-op.
func (pv *PageView) CloseAt(end time.Time) {
	if pv.EndTime != nil {
		return
	}
	pv.EndTime = &end
	pv.TotalTimeMs = end.Sub(pv.StartTime).Milliseconds()
}

// Clone returns a deep copy.
func (pv *PageView) Clone() *PageView {
	if pv == nil {
		return nil
	}
	clone := *pv
	if pv.EndTime != nil {
		end := *pv.EndTime
		clone.EndTime = &end
	}
	return &clone
}

// HeatPoint is one weighted sample of pointer attention on a page, with
// coordinates normalized to the rendered page box.
type HeatPoint struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Weight float64 `json:"weight"`
}

// Heatmap maps a page number to its attention samples.
type Heatmap map[int][]HeatPoint

// Clone returns a deep copy.
func (h Heatmap) Clone() Heatmap {
	if h == nil {
		return nil
	}
	clone := make(Heatmap, len(h))
	for page, points := range h {
		cp := make([]HeatPoint, len(points))
		copy(cp, points)
		clone[page] = cp
	}
	return clone
}

// Equal compares two heatmaps by their canonical JSON encoding. Both nil
// and both empty compare equal; map key order does not matter.
func (h Heatmap) Equal(other Heatmap) bool {
	if len(h) == 0 && len(other) == 0 {
		return true
	}
	a, err := json.Marshal(h)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Snapshot is the full, immutable read projection of a session: identity
// and timing plus everything accumulated while it was live. Snapshots are
// safe to hand across goroutines; nothing in the tracker retains a
// reference to one after returning it.
type Snapshot struct {
	Session
	PageViews    []PageView    `json:"pageViews"`
	Interactions []Interaction `json:"interactions"`
	Heatmap      Heatmap       `json:"heatmap,omitempty"`
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	clone := &Snapshot{
		Session: *s.Session.Clone(),
		Heatmap: s.Heatmap.Clone(),
	}
	if s.PageViews != nil {
		clone.PageViews = make([]PageView, len(s.PageViews))
		for i := range s.PageViews {
			clone.PageViews[i] = *s.PageViews[i].Clone()
		}
	}
	if s.Interactions != nil {
		clone.Interactions = make([]Interaction, len(s.Interactions))
		copy(clone.Interactions, s.Interactions)
	}
	return clone
}

// LastActivity is the most recent instant the snapshot knows about: the
// session end if finalized, otherwise the session start. Retention pruning
// orders snapshots by it.
func (s *Snapshot) LastActivity() time.Time {
	if s.EndTime != nil {
		return *s.EndTime
	}
	return s.StartTime
}
