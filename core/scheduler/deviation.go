package scheduler

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
)

// meterBaseline remembers the counters of the previous adaption tick.
type meterBaseline struct {
	at       int64
	counters map[string]float64
}

// measureDeviation compares the committed power of the current slot with the
// average power measured since the previous tick. The result is the energy
// in Wh the site would miss over a full slot at that rate; positive means
// the site consumes less than committed. ok is false until two samples exist.
func (s *Scheduler) measureDeviation(ctx context.Context, now int64) (float64, bool) {
	s.mu.Lock()
	sched, found := s.state.CurrentSchedule(now)
	s.mu.Unlock()

	ids := make([]string, 0, len(s.cfg.ConsumptionMeters)+len(s.cfg.ProductionMeters)+len(s.cfg.Batteries))
	ids = append(ids, s.cfg.ConsumptionMeters...)
	ids = append(ids, s.cfg.ProductionMeters...)
	ids = append(ids, s.cfg.Batteries...)
	readings, err := s.deps.States.MeterReadings(ctx, ids)
	if err != nil {
		s.log.Warnf("adaption: meter readings: %v", err)
		return 0, false
	}
	counters := make(map[string]float64, len(readings))
	for _, r := range readings {
		counters[r.DeviceID] = signed(r)
	}

	s.mu.Lock()
	prev := s.meter
	s.meter = meterBaseline{at: now, counters: counters}
	s.mu.Unlock()

	if !found || prev.counters == nil || now <= prev.at {
		return 0, false
	}
	deltas := make([]float64, 0, len(counters))
	for id, v := range counters {
		if before, ok := prev.counters[id]; ok {
			deltas = append(deltas, v-before)
		}
	}
	elapsed := float64(now - prev.at)
	measuredW := floats.Sum(deltas) * 3600 / elapsed

	i := sched.SlotIndex(now)
	committedWh := float64(sched.Net(i) + sched.FlexibleConsumption[i] + sched.FlexibleProduction[i])
	slot := float64(sched.SlotLength)
	scheduleW := committedWh * 3600 / slot
	return (scheduleW - measuredW) * slot / 3600, true
}

// signed orients a cumulative counter so production counts negative.
func signed(r device.MeterReading) float64 {
	if r.Kind == device.MeterProduction {
		return -math.Abs(r.EnergyWh)
	}
	return r.EnergyWh
}

// adaptionTick runs on the adaption interval. It requests a compliance
// optimization when enabled, no charge target is pending and a committed
// schedule exists.
func (s *Scheduler) adaptionTick() {
	ctx := context.Background()
	now := s.clk.Unix()
	s.mu.Lock()
	enabled := s.state.Enabled
	pendingTarget := s.state.TargetCharge != nil && s.state.TargetCharge.Pending(now)
	_, hasSchedule := s.state.CurrentSchedule(now)
	s.mu.Unlock()

	dev, measured := s.measureDeviation(ctx, now)
	if measured {
		s.mu.Lock()
		s.lastDev = dev
		s.mu.Unlock()
		scheduleDeviation.Set(dev)
		s.emit(Event{Type: EventDeviationMeasured, Time: now, Value: dev})
	}
	if !enabled || pendingTarget || !hasSchedule {
		return
	}
	reason := "periodic"
	if measured && math.Abs(dev) > float64(s.cfg.ScheduleDeviationReportingThreshold) {
		reason = "deviation"
		s.log.Infof("schedule deviation %.0f Wh exceeds threshold %d Wh", dev, s.cfg.ScheduleDeviationReportingThreshold)
	}
	s.RequestOptimization(false, reason)
}
