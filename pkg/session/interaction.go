package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// InteractionType discriminates the detail payload carried by an
// Interaction.
type InteractionType string

const (
	InteractionClick    InteractionType = "click"
	InteractionScroll   InteractionType = "scroll"
	InteractionZoom     InteractionType = "zoom"
	InteractionRotate   InteractionType = "rotate"
	InteractionNavigate InteractionType = "navigate"
	InteractionSnip     InteractionType = "snip"
)

// Valid reports whether t is one of the known interaction types.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionClick, InteractionScroll, InteractionZoom,
		InteractionRotate, InteractionNavigate, InteractionSnip:
		return true
	}
	return false
}

// ActionMouseMovement marks a click-typed interaction as a sampled pointer
// movement rather than an actual click. Movement samples bump the
// per-page movement counter instead of being treated as clicks.
const ActionMouseMovement = "mouse_movement"

// Details is the closed union of per-type interaction payloads. Exactly
// one concrete type corresponds to each InteractionType; absent or
// unrecognized payloads are represented by a nil Details.
type Details interface {
	isDetails()
}

// NavigateDetails records a page change. FromPage is nil for the initial
// landing where there was no prior page.
type NavigateDetails struct {
	FromPage *int `json:"fromPage,omitempty"`
	ToPage   int  `json:"toPage"`
}

// PointerDetails records a click or a sampled pointer movement in
// normalized page coordinates.
type PointerDetails struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Action string  `json:"action,omitempty"`
}

// ScrollDetails records a scroll step.
type ScrollDetails struct {
	Direction string  `json:"direction,omitempty"`
	Delta     float64 `json:"delta,omitempty"`
}

// ZoomDetails records a zoom change and the resulting scale.
type ZoomDetails struct {
	Scale     float64 `json:"scale"`
	Direction string  `json:"direction,omitempty"`
}

// RotateDetails records a rotation step in degrees.
type RotateDetails struct {
	Degrees int `json:"degrees"`
}

// SnipDetails records the region captured by a snip tool, in normalized
// page coordinates.
type SnipDetails struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (NavigateDetails) isDetails() {}
func (PointerDetails) isDetails()  {}
func (ScrollDetails) isDetails()   {}
func (ZoomDetails) isDetails()     {}
func (RotateDetails) isDetails()   {}
func (SnipDetails) isDetails()     {}

// Interaction is one timestamped user action attributed to a page.
type Interaction struct {
	Type       InteractionType `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	PageNumber int             `json:"pageNumber"`
	Details    Details         `json:"details,omitempty"`
}

// IsMouseMovement reports whether the interaction is a sampled pointer
// movement rather than a real click.
func (i Interaction) IsMouseMovement() bool {
	if i.Type != InteractionClick {
		return false
	}
	pd, ok := i.Details.(PointerDetails)
	return ok && pd.Action == ActionMouseMovement
}

// interactionWire mirrors Interaction with the details payload left raw so
// it can be decoded against the type tag.
type interactionWire struct {
	Type       InteractionType `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	PageNumber int             `json:"pageNumber"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// UnmarshalJSON decodes the detail payload into the concrete type selected
// by the type tag. Unknown types and absent payloads yield nil Details
// rather than an error so that old or foreign captures still load.
func (i *Interaction) UnmarshalJSON(data []byte) error {
	var wire interactionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	details, err := decodeDetails(wire.Type, wire.Details)
	if err != nil {
		return err
	}
	i.Type = wire.Type
	i.Timestamp = wire.Timestamp
	i.PageNumber = wire.PageNumber
	i.Details = details
	return nil
}

func decodeDetails(t InteractionType, raw json.RawMessage) (Details, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var (
		d   Details
		err error
	)
	switch t {
	case InteractionNavigate:
		var v NavigateDetails
		err = json.Unmarshal(raw, &v)
		d = v
	case InteractionClick:
		var v PointerDetails
		err = json.Unmarshal(raw, &v)
		d = v
	case InteractionScroll:
		var v ScrollDetails
		err = json.Unmarshal(raw, &v)
		d = v
	case InteractionZoom:
		var v ZoomDetails
		err = json.Unmarshal(raw, &v)
		d = v
	case InteractionRotate:
		var v RotateDetails
		err = json.Unmarshal(raw, &v)
		d = v
	case InteractionSnip:
		var v SnipDetails
		err = json.Unmarshal(raw, &v)
		d = v
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s details: %w", t, err)
	}
	return d, nil
}
