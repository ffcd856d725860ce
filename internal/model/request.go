// Package model defines the records the service persists about the requests
// it answers. Struct tags map fields for sqlx (`db`) and for the admin JSON
// endpoints (`json`).
package model

import "time"

// Outcome classifies how a request ended.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeClientError   Outcome = "client_error"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeEngineError   Outcome = "engine_error"
)

// AllOutcomes is the ordered list of outcomes for iteration.
var AllOutcomes = []Outcome{OutcomeOK, OutcomeClientError, OutcomeUpstreamError, OutcomeEngineError}

// RequestRecord is one answered IIIF request.
type RequestRecord struct {
	ID         int64     `db:"id" json:"id"`
	RequestID  string    `db:"request_id" json:"request_id"`
	Kind       string    `db:"kind" json:"kind"`
	Identifier string    `db:"identifier" json:"identifier"`
	Path       string    `db:"path" json:"path"`
	Status     int       `db:"status" json:"status"`
	Outcome    Outcome   `db:"outcome" json:"outcome"`
	Error      *string   `db:"error" json:"error,omitempty"`
	Bytes      int64     `db:"bytes" json:"bytes"`
	DurationMs int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
