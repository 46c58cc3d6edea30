package models

import (
	"encoding/json"
	"time"
)

// RefData is an indexed record row. Dataset is stored lowercased.
type RefData struct {
	ID      int64           `json:"id"`
	Dataset string          `json:"dataset"`
	Ref     string          `json:"ref"`
	Body    json.RawMessage `json:"body"`
}

// ManualPathMap overrides resolution of one xml2rfc subpath.
type ManualPathMap struct {
	Subpath   string    `json:"xml2rfc_subpath"`
	DocID     string    `json:"docid"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is a previously rendered XML body for a canonical subpath.
type Snapshot struct {
	Subpath string `json:"subpath"`
	XMLRepr string `json:"xml_repr"`
}
