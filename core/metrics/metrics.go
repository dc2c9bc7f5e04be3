package metrics

import "time"

// PublicationRecord is one schedule publication attempt.
type PublicationRecord struct {
	Kind   string // initial or update
	Result string // success, failure or skipped
	Error  string
	Time   time.Time
}

// MetricsSink records publication outcomes for observability purposes.
type MetricsSink interface {
	RecordPublication(r PublicationRecord) error
}

// OptimizationRecord is a completed compliance optimization.
type OptimizationRecord struct {
	ExpectedDeviationWh float64
	Time                time.Time
}

// OptimizationRecorder records compliance optimizations.
type OptimizationRecorder interface {
	RecordOptimization(r OptimizationRecord) error
}

// DeviationRecord is a measured deviation from the committed schedule.
type DeviationRecord struct {
	DeviationWh float64
	Time        time.Time
}

// DeviationRecorder records schedule deviations.
type DeviationRecorder interface {
	RecordDeviation(r DeviationRecord) error
}

// TaskRecord describes a queue task that did not complete normally.
type TaskRecord struct {
	TaskID      string
	TaskKind    string
	Publication string
	Outcome     string // dropped or failed
	Error       string
	Time        time.Time
}

// TaskRecorder records dropped and failed queue tasks.
type TaskRecorder interface {
	RecordTask(r TaskRecord) error
}

// PhaseRecord is a scheduler state machine transition.
type PhaseRecord struct {
	Phase string
	Time  time.Time
}

// PhaseRecorder records scheduler phase changes.
type PhaseRecorder interface {
	RecordPhase(r PhaseRecord) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordPublication(PublicationRecord) error   { return nil }
func (NopSink) RecordOptimization(OptimizationRecord) error { return nil }
func (NopSink) RecordDeviation(DeviationRecord) error       { return nil }
func (NopSink) RecordTask(TaskRecord) error                 { return nil }
func (NopSink) RecordPhase(PhaseRecord) error               { return nil }
