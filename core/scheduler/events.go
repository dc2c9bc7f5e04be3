package scheduler

import "github.com/kfoerderer/gridcontrol-bems-sub001/core/model"

// Phase is the scheduler state machine position.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseOptimizing    Phase = "optimizing"
	PhasePublishing    Phase = "publishing"
	PhaseAwaitingRetry Phase = "awaiting_retry"
)

// EventType classifies scheduler events.
type EventType string

const (
	EventPhaseChanged          EventType = "phase_changed"
	EventTaskDropped           EventType = "task_dropped"
	EventTaskFailed            EventType = "task_failed"
	EventPublicationSucceeded  EventType = "publication_succeeded"
	EventPublicationFailed     EventType = "publication_failed"
	EventPublicationSkipped    EventType = "publication_skipped"
	EventOptimizationCompleted EventType = "optimization_completed"
	EventRecordDiscarded       EventType = "record_discarded"
	EventDeviationMeasured     EventType = "deviation_measured"
)

// Event is published on the scheduler bus.
type Event struct {
	Type        EventType             `json:"type"`
	Time        int64                 `json:"time"`
	Phase       Phase                 `json:"phase,omitempty"`
	TaskID      string                `json:"task_id,omitempty"`
	TaskKind    TaskKind              `json:"task_kind,omitempty"`
	Publication model.PublicationKind `json:"publication,omitempty"`
	Value       float64               `json:"value,omitempty"`
	Error       string                `json:"error,omitempty"`
}
