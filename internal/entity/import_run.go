package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ImportRun is the bookkeeping row for one pipeline execution.
type ImportRun struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	SourceKind   string          `json:"source_kind"`
	SourceRef    string          `json:"source_ref"`
	Status       string          `json:"status"`
	Step         string          `json:"step"`
	PropertyID   *uuid.UUID      `json:"property_id,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Provenance   json.RawMessage `json:"provenance,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// RunOutcome is how a run ended.
type RunOutcome struct {
	Status       string
	Step         string
	PropertyID   *uuid.UUID
	ErrorCode    string
	ErrorMessage string
	Provenance   json.RawMessage
}
