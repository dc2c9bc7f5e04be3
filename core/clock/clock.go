package clock

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	k8sclock "k8s.io/utils/clock"
)

// Task is a unit of work executed by a Clock.
type Task func()

// Handle controls a scheduled task.
type Handle interface {
	// Cancel prevents future executions and reports whether a pending
	// execution was prevented. A running task body is never interrupted.
	Cancel() bool
}

// Clock is a substitutable source of time with scheduling primitives.
// Durations passed to a Clock are expressed in the clock's own time.
type Clock interface {
	Now() time.Time
	// Unix returns the current epoch second.
	Unix() int64
	Schedule(task Task, delay time.Duration) Handle
	// ScheduleOnTime runs task once the clock reaches epochSecond. A time in
	// the past fires immediately.
	ScheduleOnTime(task Task, epochSecond int64) Handle
	// ScheduleAtDelay repeats task, starting each run delay after the
	// previous run finished.
	ScheduleAtDelay(task Task, initialDelay, delay time.Duration) Handle
	// ScheduleAtRate repeats task on a fixed cadence. An overrunning run
	// defers the next one; missed ticks are never replayed.
	ScheduleAtRate(task Task, initialDelay, rate time.Duration) Handle
	// ScheduleCron runs task whenever the clock matches spec.
	ScheduleCron(task Task, spec CronSpec) (Handle, error)
	// Convert maps a duration of this clock's time to the real duration
	// the underlying timers wait for it.
	Convert(d time.Duration) time.Duration
	// Sleep blocks for d of this clock's time or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// Base is the timer source a Clock runs on. k8s.io/utils/clock.RealClock
// and k8s.io/utils/clock/testing.FakeClock both satisfy it.
type Base = k8sclock.WithDelayedExecution

// runner implements the scheduling primitives for both clock variants.
type runner struct {
	base Base
	now  func() time.Time
	wall func(time.Duration) time.Duration
}

func (r *runner) Now() time.Time { return r.now() }

func (r *runner) Unix() int64 { return r.now().Unix() }

func (r *runner) Convert(d time.Duration) time.Duration { return r.wall(d) }

func (r *runner) Schedule(task Task, delay time.Duration) Handle {
	h := &handle{}
	h.arm(r, delay, func() {
		if h.claim(true) {
			task()
		}
	})
	return h
}

func (r *runner) ScheduleOnTime(task Task, epochSecond int64) Handle {
	delay := time.Unix(epochSecond, 0).Sub(r.now())
	if delay < 0 {
		delay = 0
	}
	return r.Schedule(task, delay)
}

func (r *runner) ScheduleAtDelay(task Task, initialDelay, delay time.Duration) Handle {
	h := &handle{}
	var fire func()
	fire = func() {
		if !h.claim(false) {
			return
		}
		task()
		h.arm(r, delay, fire)
	}
	h.arm(r, initialDelay, fire)
	return h
}

func (r *runner) ScheduleAtRate(task Task, initialDelay, rate time.Duration) Handle {
	if rate <= 0 {
		panic("clock: non-positive rate for ScheduleAtRate")
	}
	h := &handle{}
	next := r.now().Add(initialDelay)
	var fire func()
	fire = func() {
		if !h.claim(false) {
			return
		}
		task()
		next = next.Add(rate)
		now := r.now()
		if next.Before(now) {
			// overrun: run once more right away and re-anchor the cadence
			next = now
		}
		h.arm(r, next.Sub(now), fire)
	}
	h.arm(r, initialDelay, fire)
	return h
}

func (r *runner) ScheduleCron(task Task, spec CronSpec) (Handle, error) {
	sched, err := spec.schedule()
	if err != nil {
		return nil, err
	}
	h := &handle{}
	next := sched.Next(r.now())
	var fire func()
	fire = func() {
		if !h.claim(false) {
			return
		}
		task()
		now := r.now()
		after := next
		if now.After(after) {
			after = now
		}
		next = sched.Next(after)
		h.arm(r, next.Sub(now), fire)
	}
	h.arm(r, next.Sub(r.now()), fire)
	return h, nil
}

func (r *runner) Sleep(ctx context.Context, d time.Duration) error {
	w := r.wall(d)
	if w <= 0 {
		return ctx.Err()
	}
	t := r.base.NewTimer(w)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

type handle struct {
	mu        sync.Mutex
	timer     k8sclock.Timer
	cancelled bool
	fired     bool
}

// arm registers fire on the base clock. Callbacks always move to their own
// goroutine because fake clocks invoke them while holding their lock.
func (h *handle) arm(r *runner, delay time.Duration, fire func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	d := r.wall(delay)
	if d <= 0 {
		h.timer = nil
		go fire()
		return
	}
	h.timer = r.base.AfterFunc(d, func() { go fire() })
}

// claim reports whether the task may run. once marks one-shot handles as
// consumed.
func (h *handle) claim(once bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return false
	}
	if once {
		h.fired = true
	}
	return true
}

func (h *handle) Cancel() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.fired {
		h.cancelled = true
		return false
	}
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}
	return true
}

// Real follows the time of its base clock.
type Real struct {
	runner
}

// NewReal returns a Clock over base. A nil base uses the system clock.
func NewReal(base Base) *Real {
	if base == nil {
		base = k8sclock.RealClock{}
	}
	c := &Real{}
	c.runner = runner{
		base: base,
		now:  base.Now,
		wall: func(d time.Duration) time.Duration { return d },
	}
	return c
}

// Simulated runs factor times faster than its base clock, starting at origin.
type Simulated struct {
	runner
	origin     time.Time
	baseOrigin time.Time
	factor     float64
}

// NewSimulated returns an accelerated Clock. A nil base uses the system clock.
func NewSimulated(base Base, origin time.Time, factor float64) (*Simulated, error) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("simulation factor must be positive, got %v", factor)
	}
	if base == nil {
		base = k8sclock.RealClock{}
	}
	s := &Simulated{origin: origin, baseOrigin: base.Now(), factor: factor}
	s.runner = runner{base: base, now: s.simNow, wall: s.toWall}
	return s, nil
}

// Factor returns the acceleration factor.
func (s *Simulated) Factor() float64 { return s.factor }

func (s *Simulated) simNow() time.Time {
	elapsed := s.base.Now().Sub(s.baseOrigin)
	return s.origin.Add(time.Duration(float64(elapsed) * s.factor))
}

// toWall rounds up so timers never fire before the simulated deadline.
func (s *Simulated) toWall(d time.Duration) time.Duration {
	return time.Duration(math.Ceil(float64(d) / s.factor))
}
