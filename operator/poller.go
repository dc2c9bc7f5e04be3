package operator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/clock"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

// pullOrder keeps target schedules ahead of their updates and requests.
var pullOrder = []fms.PublicationType{fms.TargetSchedule, fms.TargetScheduleUpdate, fms.ScheduleRequest}

// Source fetches and acknowledges FMS instructions.
type Source interface {
	Fetch(ctx context.Context, t fms.PublicationType) (model.Schedule, error)
	Acknowledge(ctx context.Context, t fms.PublicationType, ok bool) error
}

// Poller periodically pulls FMS instructions and hands them to a listener.
// An instruction is acknowledged only after the listener accepted it, so a
// failed listener call is redelivered on the next poll.
type Poller struct {
	src      Source
	listener fms.Listener
	clk      clock.Clock
	period   time.Duration
	log      logger.Logger

	mu     sync.Mutex
	handle clock.Handle
}

// NewPoller returns a poller running every period seconds.
func NewPoller(src Source, l fms.Listener, clk clock.Clock, period int64, log logger.Logger) *Poller {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Poller{src: src, listener: l, clk: clk, period: time.Duration(period) * time.Second, log: log}
}

// Start schedules the poll loop. The first poll runs immediately.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != nil {
		return
	}
	p.handle = p.clk.ScheduleAtDelay(func() {
		if err := p.Poll(ctx); err != nil {
			p.log.Errorf("fms poll: %v", err)
		}
	}, 0, p.period)
}

// Stop cancels the poll loop.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != nil {
		p.handle.Cancel()
		p.handle = nil
	}
}

// Poll processes every pending instruction once.
func (p *Poller) Poll(ctx context.Context) error {
	var errs []error
	for _, t := range pullOrder {
		if err := p.pollOne(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Poller) pollOne(ctx context.Context, t fms.PublicationType) error {
	s, err := p.src.Fetch(ctx, t)
	switch {
	case errors.Is(err, errNoInstruction):
		return nil
	case isInvalid(err):
		p.log.Warnf("rejecting malformed %s: %v", t, err)
		inboundInstructions.WithLabelValues(t.String(), "rejected").Inc()
		return p.src.Acknowledge(ctx, t, false)
	case err != nil:
		return err
	}
	p.log.Infof("received %s starting at %d", t, s.StartingTime)
	if t == fms.ScheduleRequest {
		err = p.listener.RequestSchedule(ctx, s)
	} else {
		err = p.listener.UpdateSchedule(ctx, s)
	}
	if isInvalid(err) {
		inboundInstructions.WithLabelValues(t.String(), "rejected").Inc()
		p.log.Warnf("listener rejected %s: %v", t, err)
		return p.src.Acknowledge(ctx, t, false)
	}
	if err != nil {
		inboundInstructions.WithLabelValues(t.String(), "retry").Inc()
		return fmt.Errorf("%s not accepted, keeping it for redelivery: %w", t, err)
	}
	inboundInstructions.WithLabelValues(t.String(), "accepted").Inc()
	return p.src.Acknowledge(ctx, t, true)
}

func isInvalid(err error) bool {
	return errors.Is(err, model.ErrInvalidSchedule) ||
		errors.Is(err, model.ErrInvalidFlexibility) ||
		errors.Is(err, model.ErrInvalidInterval) ||
		errors.Is(err, model.ErrInvalidTarget)
}
