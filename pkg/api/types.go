package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/foliotrace/foliotrace/pkg/session"
	"github.com/foliotrace/foliotrace/pkg/storage"
)

// OpenSessionRequest is the body of POST /api/v1/sessions. FileName is
// optional; TotalPages may be zero when the host has not finished
// loading the document.
type OpenSessionRequest struct {
	FileName   string `json:"fileName"`
	TotalPages int    `json:"totalPages"`
}

// OpenSessionResponse returns the handle the viewer integration uses
// for every subsequent call.
type OpenSessionResponse struct {
	SessionID  string    `json:"sessionId"`
	FileName   string    `json:"fileName,omitempty"`
	TotalPages int       `json:"totalPages"`
	StartTime  time.Time `json:"startTime"`
}

// PageViewRequest is the body of POST /api/v1/sessions/{id}/pageview.
type PageViewRequest struct {
	Page int `json:"page"`
}

// IngestResponse reports how a batch of interactions fared. Dropped
// counts movement samples rejected by the interval sampler; rejection
// is spacing, not an error.
type IngestResponse struct {
	Recorded int `json:"recorded"`
	Dropped  int `json:"dropped"`
}

// HeatmapResponse reports whether the submitted heatmap differed from
// the one already held.
type HeatmapResponse struct {
	Updated bool `json:"updated"`
}

// SessionListResponse is the stored session listing, most recent
// activity first.
type SessionListResponse struct {
	Sessions []storage.SessionInfo `json:"sessions"`
	Count    int                   `json:"count"`
}

// decodeInteractions accepts either a single interaction object or an
// array of them. Timestamps and page numbers in the payload are
// ignored: the tracker stamps its own on admission.
func decodeInteractions(data []byte) ([]session.Interaction, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errors.New("request body is empty")
	}

	if trimmed[0] == '[' {
		var batch []session.Interaction
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}

	var one session.Interaction
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []session.Interaction{one}, nil
}
