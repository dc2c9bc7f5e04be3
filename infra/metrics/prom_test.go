package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kfoerderer/gridcontrol-bems-sub001/core/metrics"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
	"github.com/kfoerderer/gridcontrol-bems-sub001/internal/eventbus"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordPublication(coremetrics.PublicationRecord{Kind: "initial", Result: "success"}))
	require.NoError(t, s.RecordTask(coremetrics.TaskRecord{TaskKind: "recompute", Outcome: "dropped"}))
	require.NoError(t, s.RecordOptimization(coremetrics.OptimizationRecord{ExpectedDeviationWh: 42}))
	require.NoError(t, s.RecordPhase(coremetrics.PhaseRecord{Phase: "publishing"}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.publications.WithLabelValues("initial", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.tasks.WithLabelValues("recompute", "dropped")))
	assert.Equal(t, 42.0, testutil.ToFloat64(s.expected))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.phase.WithLabelValues("publishing")))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.phase.WithLabelValues("idle")))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, a.RecordPublication(coremetrics.PublicationRecord{Kind: "update", Result: "failure"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.publications.WithLabelValues("update", "failure")))
}

func TestEventCollectorForwards(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	bus := eventbus.NewTyped[scheduler.Event]()
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, s, nil)

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	bus.Publish(scheduler.Event{Type: scheduler.EventPublicationFailed, Publication: model.PublicationUpdate, Error: "x"})
	bus.Publish(scheduler.Event{Type: scheduler.EventTaskDropped, TaskKind: scheduler.TaskRecompute})
	bus.Publish(scheduler.Event{Type: scheduler.EventRecordDiscarded, Publication: model.PublicationInitial})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.tasks.WithLabelValues("incomplete_record", "dropped")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.publications.WithLabelValues("update", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.tasks.WithLabelValues("recompute", "dropped")))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestRecordIgnoresUnsupported(t *testing.T) {
	// NopSink-like sinks without optional recorders accept every event
	var sink publicationOnly
	assert.NoError(t, Record(&sink, scheduler.Event{Type: scheduler.EventDeviationMeasured, Value: 3}))
	assert.NoError(t, Record(&sink, scheduler.Event{Type: scheduler.EventPublicationSkipped, Publication: model.PublicationUpdate}))
	assert.Equal(t, []string{"skipped"}, sink.results)
}

type publicationOnly struct{ results []string }

func (p *publicationOnly) RecordPublication(r coremetrics.PublicationRecord) error {
	p.results = append(p.results, r.Result)
	return nil
}
