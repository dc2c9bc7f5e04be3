package metrics

import "errors"

// MultiSink fans records out to several sinks. Every sink is called; errors
// are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordPublication(r PublicationRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordPublication(r))
	}
	return errors.Join(errs...)
}

// fanout calls fn for every sink implementing R.
func fanout[R any](sinks []MetricsSink, fn func(R) error) error {
	var errs []error
	for _, s := range sinks {
		if rec, ok := s.(R); ok {
			errs = append(errs, fn(rec))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordOptimization(r OptimizationRecord) error {
	return fanout(m.Sinks, func(rec OptimizationRecorder) error { return rec.RecordOptimization(r) })
}

func (m *MultiSink) RecordDeviation(r DeviationRecord) error {
	return fanout(m.Sinks, func(rec DeviationRecorder) error { return rec.RecordDeviation(r) })
}

func (m *MultiSink) RecordTask(r TaskRecord) error {
	return fanout(m.Sinks, func(rec TaskRecorder) error { return rec.RecordTask(r) })
}

func (m *MultiSink) RecordPhase(r PhaseRecord) error {
	return fanout(m.Sinks, func(rec PhaseRecorder) error { return rec.RecordPhase(r) })
}

// Close releases every sink holding resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
