package pipeline

import (
	"github.com/joseph-ayodele/property-importer/constants"
)

type EventType string

const (
	EventStatus EventType = "status"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Event is one line of the progress stream. A result or error event is
// always the last one of a run.
type Event struct {
	Type       EventType      `json:"type"`
	Step       constants.Step `json:"step,omitempty"`
	Message    string         `json:"message,omitempty"`
	Data       any            `json:"data,omitempty"`
	PropertyID string         `json:"propertyId,omitempty"`
	RunID      string         `json:"runId,omitempty"`
	Code       string         `json:"code,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventResult || e.Type == EventError
}
