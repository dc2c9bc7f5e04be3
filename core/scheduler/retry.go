package scheduler

import (
	"context"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
)

// RetryJob replays incomplete publications. Records whose horizon passed are
// discarded instead.
type RetryJob struct {
	s *Scheduler
}

// Run checks the update and the initial record independently. It is a
// no-op when neither exists.
func (r *RetryJob) Run() {
	if err := r.RunContext(context.Background()); err != nil {
		r.s.log.Errorf("retry job: %v", err)
	}
}

// RunContext is Run with an explicit context. It returns persistence errors.
func (r *RetryJob) RunContext(ctx context.Context) error {
	s := r.s
	now := s.clk.Unix()
	var resubmit, discarded []model.Publication

	s.mu.Lock()
	next := s.state.Clone()
	for _, kind := range []model.PublicationKind{model.PublicationUpdate, model.PublicationInitial} {
		rec := next.Incomplete(kind)
		if rec == nil {
			continue
		}
		if rec.Expired(now) {
			discarded = append(discarded, rec.Clone())
			next.SetIncomplete(kind, nil)
			continue
		}
		resubmit = append(resubmit, rec.Clone())
	}
	var err error
	if len(discarded) > 0 {
		err = s.saveLocked(ctx, next)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, rec := range discarded {
		s.log.Infof("discarding stale incomplete %s publication valid until %d", rec.Kind, rec.To)
		s.emit(Event{Type: EventRecordDiscarded, Time: now, Publication: rec.Kind})
		s.journal(ctx, JournalEntry{Time: now, Kind: rec.Kind, From: rec.From, To: rec.To, Outcome: OutcomeDiscarded})
	}
	for _, pub := range resubmit {
		s.log.Infof("retrying incomplete %s publication", pub)
		s.queuePublication(pub, true, false, true)
	}
	return nil
}
