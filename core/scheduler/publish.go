package scheduler

import (
	"context"
	"fmt"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/optimization"
)

// Publication outcomes recorded in the journal.
const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeDiscarded = "discarded"
)

// JournalEntry records one publication attempt.
type JournalEntry struct {
	Time     int64                 `json:"time"`
	Kind     model.PublicationKind `json:"kind"`
	From     int64                 `json:"from"`
	To       int64                 `json:"to"`
	Outcome  string                `json:"outcome"`
	Error    string                `json:"error,omitempty"`
	Schedule *model.Schedule       `json:"schedule,omitempty"`
}

// Journal stores publication attempts for operators.
type Journal interface {
	Append(ctx context.Context, e JournalEntry) error
}

// publish computes (unless pre-computed) and submits pub to the FMS.
// Failures persist pub as incomplete record so the RetryJob replays it.
func (s *Scheduler) publish(ctx context.Context, pub model.Publication) error {
	now := s.clk.Unix()
	if pub.Expired(now) {
		return fmt.Errorf("%s publication until %d at %d: %w", pub.Kind, pub.To, now, ErrStaleTask)
	}
	s.setPhase(PhaseOptimizing)

	if pub.Schedule == nil || pub.Flexibility == nil {
		pub.From = model.SlotStart(pub.From, s.cfg.SlotLength)
		if pub.To <= pub.From {
			s.setPhase(PhaseIdle)
			return fmt.Errorf("%s publication horizon empty after slot alignment: %w", pub.Kind, ErrStaleTask)
		}
		sol, err := s.solveSchedule(ctx, pub, now)
		if err != nil {
			return s.publicationFailed(ctx, pub, err)
		}
		if pub.Kind == model.PublicationUpdate && !s.updateNeeded(now, sol.Schedule) {
			s.log.Infof("update for [%d,%d) within threshold of committed schedule, not published", pub.From, pub.To)
			return s.publicationDone(ctx, pub, OutcomeSkipped, now)
		}
		pub.Schedule, pub.Flexibility = &sol.Schedule, &sol.Flexibility
	}

	s.setPhase(PhasePublishing)
	if err := s.deps.FMS.PublishSchedule(ctx, *pub.Schedule, *pub.Flexibility, fms.TypeFor(pub.Kind)); err != nil {
		return s.publicationFailed(ctx, pub, err)
	}
	return s.publicationDone(ctx, pub, OutcomePublished, now)
}

func (s *Scheduler) solveSchedule(ctx context.Context, pub model.Publication, now int64) (optimization.ScheduleSolution, error) {
	opt, ok := optimization.First(s.deps.Optimizers, optimization.SchedulingProblem)
	if !ok {
		return optimization.ScheduleSolution{}, ErrNoOptimizer
	}
	slot := s.cfg.SlotLength
	slots := int((pub.To - pub.From + slot - 1) / slot)
	consumption, production, err := s.gatherForecasts(ctx, pub.From, slot, slots)
	if err != nil {
		return optimization.ScheduleSolution{}, err
	}
	states, err := s.providerStates(ctx)
	if err != nil {
		return optimization.ScheduleSolution{}, err
	}
	s.mu.Lock()
	var charge *model.TargetCharge
	if s.state.TargetCharge != nil {
		c := *s.state.TargetCharge
		charge = &c
	}
	s.mu.Unlock()
	sol, err := opt.SolveSchedule(ctx, optimization.ScheduleProblem{
		Timestamp:      now,
		From:           pub.From,
		To:             pub.From + int64(slots)*slot,
		SlotLength:     slot,
		ConsumptionWh:  consumption,
		ProductionWh:   production,
		Providers:      states,
		TargetCharge:   charge,
		EnergyBufferWs: s.cfg.FlexibilityEnergyBuffer,
	})
	if err != nil {
		return optimization.ScheduleSolution{}, fmt.Errorf("%s optimizer: %w", opt.Name(), err)
	}
	if err := sol.Schedule.Validate(); err != nil {
		return optimization.ScheduleSolution{}, fmt.Errorf("%s optimizer: %w", opt.Name(), err)
	}
	if err := sol.Flexibility.Validate(); err != nil {
		return optimization.ScheduleSolution{}, fmt.Errorf("%s optimizer: %w", opt.Name(), err)
	}
	return sol, nil
}

// updateNeeded reports whether candidate differs from the committed target
// by more than the reporting threshold in any slot.
func (s *Scheduler) updateNeeded(now int64, candidate model.Schedule) bool {
	s.mu.Lock()
	target, ok := s.state.CurrentSchedule(now)
	if !ok {
		target, ok = s.state.CurrentSchedule(candidate.StartingTime)
	}
	s.mu.Unlock()
	if !ok {
		return true
	}
	threshold := int(s.cfg.ScheduleDeviationReportingThreshold)
	for i := 0; i < candidate.Slots(); i++ {
		j := target.SlotIndex(candidate.StartingTime + int64(i)*candidate.SlotLength)
		if j < 0 {
			return true
		}
		if abs(target.Consumption[j]-candidate.Consumption[i]) > threshold ||
			abs(target.Production[j]-candidate.Production[i]) > threshold {
			return true
		}
	}
	return false
}

func (s *Scheduler) publicationFailed(ctx context.Context, pub model.Publication, cause error) error {
	now := s.clk.Unix()
	s.mu.Lock()
	rec := pub.Clone()
	err := s.commitLocked(ctx, func(st *State) { st.SetIncomplete(pub.Kind, &rec) })
	if err != nil {
		// Keep the record in memory so the retry job still replays it.
		s.state.SetIncomplete(pub.Kind, &rec)
	}
	s.phase = PhaseIdle
	s.mu.Unlock()

	publications.WithLabelValues(string(pub.Kind), "failure").Inc()
	s.emit(Event{Type: EventPublicationFailed, Time: now, Publication: pub.Kind, Error: cause.Error()})
	s.emit(Event{Type: EventPhaseChanged, Time: now, Phase: PhaseAwaitingRetry})
	s.journal(ctx, JournalEntry{Time: now, Kind: pub.Kind, From: pub.From, To: pub.To, Outcome: OutcomeFailed, Error: cause.Error(), Schedule: pub.Schedule})
	if err != nil {
		return fmt.Errorf("publish %s: %w (recording failure: %w)", pub.Kind, cause, err)
	}
	return fmt.Errorf("publish %s: %w", pub.Kind, cause)
}

func (s *Scheduler) publicationDone(ctx context.Context, pub model.Publication, outcome string, now int64) error {
	s.mu.Lock()
	err := s.commitLocked(ctx, func(st *State) {
		st.SetIncomplete(pub.Kind, nil)
		if outcome != OutcomePublished {
			return
		}
		switch pub.Kind {
		case model.PublicationInitial:
			st.LatestInitialPublication = now
			st.AdoptSchedule(*pub.Schedule)
		case model.PublicationUpdate:
			st.LatestUpdatePublication = now
		}
	})
	s.mu.Unlock()
	s.setPhase(PhaseIdle)
	if err != nil {
		return err
	}

	result, ev := "success", EventPublicationSucceeded
	if outcome == OutcomeSkipped {
		result, ev = "skipped", EventPublicationSkipped
	}
	publications.WithLabelValues(string(pub.Kind), result).Inc()
	s.emit(Event{Type: ev, Time: now, Publication: pub.Kind})
	s.journal(ctx, JournalEntry{Time: now, Kind: pub.Kind, From: pub.From, To: pub.To, Outcome: outcome, Schedule: pub.Schedule})
	return nil
}

func (s *Scheduler) journal(ctx context.Context, e JournalEntry) {
	if s.deps.Journal == nil {
		return
	}
	if err := s.deps.Journal.Append(ctx, e); err != nil {
		s.log.Warnf("journal append: %v", err)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
