package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
)

// UpdateSchedule adopts an FMS target schedule and forces a compliance
// optimization. The schedule is persisted before nil is returned.
func (s *Scheduler) UpdateSchedule(ctx context.Context, sched model.Schedule) error {
	if err := s.adopt(ctx, sched); err != nil {
		return err
	}
	s.RequestOptimization(true, "fms_update")
	return nil
}

// RequestSchedule adopts the schedule and additionally queues an update
// publication covering its horizon.
func (s *Scheduler) RequestSchedule(ctx context.Context, sched model.Schedule) error {
	if err := s.adopt(ctx, sched); err != nil {
		return err
	}
	s.RequestOptimization(true, "fms_request")
	s.QueuePublication(model.Publication{Kind: model.PublicationUpdate, From: sched.StartingTime, To: sched.End()}, false)
	return nil
}

func (s *Scheduler) adopt(ctx context.Context, sched model.Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	now := s.clk.Unix()
	if sched.End() <= now {
		return fmt.Errorf("%w: schedule ended at %d", model.ErrInvalidSchedule, sched.End())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, func(st *State) {
		st.AdoptSchedule(sched)
		st.PruneSchedules(now)
	})
}

// SetTargetSOC stores a distribution operator SOC target and forwards it.
func (s *Scheduler) SetTargetSOC(ctx context.Context, soc int, at int64) error {
	t, err := model.NewSOCTarget(soc, at)
	if err != nil {
		return err
	}
	return s.setTarget(ctx, t)
}

// SetTargetWh stores a distribution operator energy target and forwards it.
func (s *Scheduler) SetTargetWh(ctx context.Context, wh int, at int64) error {
	t, err := model.NewWhTarget(wh, at)
	if err != nil {
		return err
	}
	return s.setTarget(ctx, t)
}

func (s *Scheduler) setTarget(ctx context.Context, t model.TargetCharge) error {
	s.mu.Lock()
	err := s.commitLocked(ctx, func(st *State) { st.TargetCharge = &t })
	s.mu.Unlock()
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range s.cfg.Batteries {
		if err := s.deps.Signals.SetBatteryTarget(ctx, id, t); err != nil {
			errs = append(errs, fmt.Errorf("battery %s: %w", id, err))
		}
	}
	s.RequestOptimization(true, "control_target")
	return errors.Join(errs...)
}

// SetEnabled stores the gateway enable flag and forwards it to the DNO
// controllable devices.
func (s *Scheduler) SetEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	err := s.commitLocked(ctx, func(st *State) { st.Enabled = enabled })
	subscribers := append([]string(nil), s.state.EnabledSubscribers...)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.log.Infof("gateway enabled=%v", enabled)
	return s.forwardEnabled(ctx, subscribers, enabled)
}

// OnREMSControl forwards a REMS coil or register write to every DNO
// controllable device.
func (s *Scheduler) OnREMSControl(ctx context.Context, c device.REMSControl) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	subscribers := append([]string(nil), s.state.EnabledSubscribers...)
	s.mu.Unlock()
	var errs []error
	for _, id := range subscribers {
		if err := s.deps.Signals.ForwardControl(ctx, id, c); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) forwardEnabled(ctx context.Context, ids []string, enabled bool) error {
	var errs []error
	for _, id := range ids {
		if err := s.deps.Signals.ForwardEnabled(ctx, id, enabled); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// remsTick publishes battery registers to REMS and re-sends the enable flag.
func (s *Scheduler) remsTick(ctx context.Context) {
	batteries, err := s.deps.States.BatteryStates(ctx, s.cfg.Batteries)
	if err != nil {
		s.log.Warnf("rems: battery states: %v", err)
	}
	for _, b := range batteries {
		regs := map[int]int{
			device.RegisterSOC:         b.SOC,
			device.RegisterSystemState: b.SystemStateCode,
		}
		for i, code := range b.ErrorCodes {
			regs[device.RegisterSystemErrorBase+i] = code
			if code != 0 {
				s.log.Warnf("battery %s reports system error code %d in register %d", b.DeviceID, code, device.RegisterSystemErrorBase+i)
			}
		}
		if err := s.deps.Signals.PublishREMS(ctx, device.REMSData{DeviceID: b.DeviceID, Registers: regs}); err != nil {
			s.log.Warnf("rems: publish %s: %v", b.DeviceID, err)
		}
	}
	s.mu.Lock()
	enabled := s.state.Enabled
	subscribers := append([]string(nil), s.state.EnabledSubscribers...)
	s.mu.Unlock()
	if err := s.forwardEnabled(ctx, subscribers, enabled); err != nil {
		s.log.Warnf("rems: forward enabled: %v", err)
	}
}
