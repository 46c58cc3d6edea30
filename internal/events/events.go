package events

import (
	"time"

	"bibxml/internal/xml2rfc"
)

const (
	TypeResolution      = "xml2rfc.resolution"
	TypeManualMapUpdate = "manual_map.update"
	TypeManualMapDelete = "manual_map.delete"
)

type ResolutionEvent struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Subpath  string            `json:"subpath"`
	Anchor   string            `json:"anchor"`
	Outcome  string            `json:"outcome"` // success, success_fallback, not_found
	Outcomes []xml2rfc.Outcome `json:"outcomes"`
	At       time.Time         `json:"at"`
}

type ManualMapEvent struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Subpath string    `json:"xml2rfc_subpath"`
	DocID   string    `json:"docid,omitempty"`
	At      time.Time `json:"at"`
}
