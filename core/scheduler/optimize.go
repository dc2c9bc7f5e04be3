package scheduler

import (
	"context"
	"fmt"
	"math"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/forecast"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/optimization"
	"k8s.io/utils/ptr"
)

// optimizeCompliance computes device tasks that follow the committed
// schedule. A missing schedule is treated as a zero target for the rest of
// the day. The run time is recorded before solving so that failed runs count
// towards the minimum interval too.
func (s *Scheduler) optimizeCompliance(ctx context.Context) error {
	s.setPhase(PhaseOptimizing)
	defer s.setPhase(PhaseIdle)

	now := s.clk.Unix()
	slot := s.cfg.SlotLength
	currentSlotBegin := model.SlotBegin(now, slot)

	s.mu.Lock()
	if err := s.commitLocked(ctx, func(st *State) { st.LatestComplianceOptimization = now }); err != nil {
		s.mu.Unlock()
		return err
	}
	target, hasTarget := s.state.CurrentSchedule(now)
	var charge *model.TargetCharge
	if s.state.TargetCharge != nil {
		c := *s.state.TargetCharge
		charge = &c
	}
	s.mu.Unlock()

	var to int64
	if hasTarget {
		slot = target.SlotLength
		currentSlotBegin = target.StartingTime + int64(target.SlotIndex(now))*slot
		to = max(now+s.cfg.FlexibilityAdaptionHorizon, currentSlotBegin+slot)
		to = min(to, target.End())
	} else {
		to = s.endOfDay(now)
		target = model.NewSchedule(now, currentSlotBegin, slot, int((to-currentSlotBegin+slot-1)/slot))
	}
	slots := int((to - currentSlotBegin + slot - 1) / slot)

	opt, ok := optimization.First(s.deps.Optimizers, optimization.TargetScheduleProblem)
	if !ok {
		s.log.Warnf("compliance optimization skipped: %v", ErrNoOptimizer)
		return ErrNoOptimizer
	}
	consumption, production, err := s.gatherForecasts(ctx, currentSlotBegin, slot, slots)
	if err != nil {
		return err
	}
	states, err := s.providerStates(ctx)
	if err != nil {
		return err
	}
	sol, err := opt.SolveTarget(ctx, optimization.TargetProblem{
		From:             now + ptr.Deref(s.cfg.OptimizationTimeBuffer, 0),
		To:               to,
		CurrentSlotBegin: currentSlotBegin,
		Target:           target,
		ConsumptionWh:    consumption,
		ProductionWh:     production,
		Providers:        states,
		TargetCharge:     charge,
		EnergyBufferWs:   s.cfg.FlexibilityEnergyBuffer,
	})
	if err != nil {
		return fmt.Errorf("%s optimizer: %w", opt.Name(), err)
	}
	if len(sol.Tasks) > 0 {
		if err := s.deps.Signals.DeliverTasks(ctx, sol.Tasks); err != nil {
			return fmt.Errorf("deliver device tasks: %w", err)
		}
	}
	s.emit(Event{Type: EventOptimizationCompleted, Time: s.clk.Unix(), Value: sol.ExpectedMaximumDeviation})

	if hasTarget && math.Abs(sol.ExpectedMaximumDeviation) > float64(s.cfg.ScheduleDeviationReportingThreshold) {
		s.log.Infof("expected deviation %.0f Wh exceeds threshold, queueing schedule update", sol.ExpectedMaximumDeviation)
		s.queuePublication(model.Publication{Kind: model.PublicationUpdate, From: now, To: s.endOfDay(now)}, false, true, false)
	}
	return nil
}

// gatherForecasts returns expected consumption (>= 0) and production (<= 0)
// in Wh per slot. Production is summed over the production meters.
func (s *Scheduler) gatherForecasts(ctx context.Context, from, slot int64, slots int) ([]float64, []float64, error) {
	to := from + int64(slots)*slot
	consumption := make([]float64, slots)
	production := make([]float64, slots)

	if f := s.forecaster(forecast.ElectricityDemand); f != nil {
		w, err := s.forecastWh(ctx, f, forecast.ElectricityDemand, "", from, to, slot, slots)
		if err != nil {
			return nil, nil, err
		}
		forecast.Sum(consumption, w)
	}
	if f := s.forecaster(forecast.SolarPower); f != nil {
		for _, id := range s.cfg.ProductionMeters {
			w, err := s.forecastWh(ctx, f, forecast.SolarPower, id, from, to, slot, slots)
			if err != nil {
				return nil, nil, err
			}
			forecast.Sum(production, w)
		}
	}
	for i := range production {
		production[i] = -math.Abs(production[i])
		consumption[i] = math.Abs(consumption[i])
	}
	return consumption, production, nil
}

func (s *Scheduler) forecastWh(ctx context.Context, f forecast.Forecaster, kind forecast.Kind, id string, from, to, slot int64, slots int) ([]float64, error) {
	series, err := f.Forecast(ctx, from, to, kind, id)
	if err != nil {
		return nil, fmt.Errorf("%s forecast: %w", kind, err)
	}
	w, err := series.Resample(from, slot, slots)
	if err != nil {
		return nil, fmt.Errorf("%s forecast: %w", kind, err)
	}
	return forecast.EnergyWh(w, slot), nil
}

func (s *Scheduler) forecaster(kind forecast.Kind) forecast.Forecaster {
	for _, f := range s.deps.Forecasters {
		if f != nil && f.CanForecast(kind) {
			return f
		}
	}
	return nil
}

// providerStates fetches the configured flexibility providers.
func (s *Scheduler) providerStates(ctx context.Context) ([]device.ProviderState, error) {
	s.mu.Lock()
	ids := append([]string(nil), s.state.FlexibilityProviders...)
	s.mu.Unlock()
	states, err := s.deps.States.ProviderStates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("provider states: %w", err)
	}
	return states, nil
}
