package metrics

import (
	"context"
	"time"

	coremetrics "github.com/kfoerderer/gridcontrol-bems-sub001/core/metrics"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
	"github.com/kfoerderer/gridcontrol-bems-sub001/internal/eventbus"
)

// StartEventCollector subscribes to the scheduler bus and forwards events to
// sink until ctx is canceled or the bus is closed. The returned channel is
// closed when the collector stops.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[scheduler.Event], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := Record(sink, ev); err != nil {
					log.Warnf("metrics sink %s: %v", ev.Type, err)
				}
			}
		}
	}()
	return done
}

// Record maps one scheduler event onto the recorders sink implements.
func Record(sink coremetrics.MetricsSink, ev scheduler.Event) error {
	at := time.Unix(ev.Time, 0)
	switch ev.Type {
	case scheduler.EventPublicationSucceeded, scheduler.EventPublicationFailed, scheduler.EventPublicationSkipped:
		result := map[scheduler.EventType]string{
			scheduler.EventPublicationSucceeded: "success",
			scheduler.EventPublicationFailed:    "failure",
			scheduler.EventPublicationSkipped:   "skipped",
		}[ev.Type]
		return sink.RecordPublication(coremetrics.PublicationRecord{Kind: string(ev.Publication), Result: result, Error: ev.Error, Time: at})
	case scheduler.EventOptimizationCompleted:
		if r, ok := sink.(coremetrics.OptimizationRecorder); ok {
			return r.RecordOptimization(coremetrics.OptimizationRecord{ExpectedDeviationWh: ev.Value, Time: at})
		}
	case scheduler.EventDeviationMeasured:
		if r, ok := sink.(coremetrics.DeviationRecorder); ok {
			return r.RecordDeviation(coremetrics.DeviationRecord{DeviationWh: ev.Value, Time: at})
		}
	case scheduler.EventTaskDropped, scheduler.EventTaskFailed, scheduler.EventRecordDiscarded:
		if r, ok := sink.(coremetrics.TaskRecorder); ok {
			outcome := "failed"
			if ev.Type != scheduler.EventTaskFailed {
				outcome = "dropped"
			}
			kind := string(ev.TaskKind)
			if kind == "" {
				kind = "incomplete_record"
			}
			return r.RecordTask(coremetrics.TaskRecord{
				TaskID:      ev.TaskID,
				TaskKind:    kind,
				Publication: string(ev.Publication),
				Outcome:     outcome,
				Error:       ev.Error,
				Time:        at,
			})
		}
	case scheduler.EventPhaseChanged:
		if r, ok := sink.(coremetrics.PhaseRecorder); ok {
			return r.RecordPhase(coremetrics.PhaseRecord{Phase: string(ev.Phase), Time: at})
		}
	}
	return nil
}
