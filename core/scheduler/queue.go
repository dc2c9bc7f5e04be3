package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/clock"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	coremon "github.com/kfoerderer/gridcontrol-bems-sub001/core/monitoring"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
	"github.com/kfoerderer/gridcontrol-bems-sub001/internal/eventbus"
)

// ErrStaleTask marks work whose validity horizon has passed.
var ErrStaleTask = errors.New("task validity horizon passed")

// Lane orders due tasks. Lower lanes run first.
type Lane int

const (
	LaneInitial Lane = iota
	LaneUpdate
	LaneRecompute
	laneCount
)

func (l Lane) String() string {
	switch l {
	case LaneInitial:
		return "initial"
	case LaneUpdate:
		return "update"
	case LaneRecompute:
		return "recompute"
	default:
		return "unknown"
	}
}

// TaskKind names the work a task performs.
type TaskKind string

const (
	TaskRecompute          TaskKind = "recompute"
	TaskPublishSchedule    TaskKind = "publish_schedule"
	TaskPublishFlexibility TaskKind = "publish_flexibility"
)

// Task is a unit of queued work. Tasks with To < now are dropped unexecuted.
type Task struct {
	ID          string
	Kind        TaskKind
	NotBefore   int64
	To          int64
	Publication *model.Publication
}

// Lane returns the priority lane of the task.
func (t Task) Lane() Lane {
	switch {
	case t.Kind == TaskRecompute:
		return LaneRecompute
	case t.Publication != nil && t.Publication.Kind == model.PublicationInitial:
		return LaneInitial
	default:
		return LaneUpdate
	}
}

// RunFunc executes a task. Returned errors are logged by the queue.
type RunFunc func(ctx context.Context, t Task) error

// Queue serializes optimization and publication work on one worker. Future
// tasks are woken through the clock so waiting follows simulated time.
type Queue struct {
	clk clock.Clock
	log logger.Logger
	run RunFunc
	bus *eventbus.TypedBus[Event]

	mu      sync.Mutex
	lanes   [laneCount][]Task
	wakeAt  int64
	timer   clock.Handle
	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewQueue returns a stopped queue. bus may be nil.
func NewQueue(clk clock.Clock, log logger.Logger, run RunFunc, bus *eventbus.TypedBus[Event]) *Queue {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Queue{clk: clk, log: log, run: run, bus: bus, wake: make(chan struct{}, 1)}
}

// QueueSchedulePublication enqueues a publication. Duplicates are accepted.
func (q *Queue) QueueSchedulePublication(pub model.Publication, notBefore int64) string {
	return q.push(Task{Kind: TaskPublishSchedule, NotBefore: notBefore, To: pub.To, Publication: &pub})
}

// QueueFlexibilityPublication enqueues an update publication refreshing the
// flexibility offer after a compliance optimization.
func (q *Queue) QueueFlexibilityPublication(pub model.Publication, notBefore int64) string {
	pub.Kind = model.PublicationUpdate
	return q.push(Task{Kind: TaskPublishFlexibility, NotBefore: notBefore, To: pub.To, Publication: &pub})
}

// QueueRecompute enqueues a compliance optimization valid until to. A pending
// recompute is replaced.
func (q *Queue) QueueRecompute(notBefore, to int64) string {
	q.mu.Lock()
	q.lanes[LaneRecompute] = q.lanes[LaneRecompute][:0]
	q.mu.Unlock()
	return q.push(Task{Kind: TaskRecompute, NotBefore: notBefore, To: to})
}

func (q *Queue) push(t Task) string {
	t.ID = uuid.NewString()
	q.mu.Lock()
	q.lanes[t.Lane()] = append(q.lanes[t.Lane()], t)
	q.mu.Unlock()
	q.signal()
	return t.ID
}

// Cancel removes a pending task and reports whether it was found.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for l := range q.lanes {
		for i, t := range q.lanes[l] {
			if t.ID == id {
				q.lanes[l] = append(q.lanes[l][:i], q.lanes[l][i+1:]...)
				return true
			}
		}
	}
	return false
}

// Pending returns the number of queued tasks in lane.
func (q *Queue) Pending(l Lane) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if l < 0 || l >= laneCount {
		return 0
	}
	return len(q.lanes[l])
}

// Start launches the worker. It returns an error if already running.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	q.running = true
	go q.loop(ctx, q.done)
	return nil
}

// Stop cancels the wake-up timer and waits for the in-flight task.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	done := q.done
	if q.timer != nil {
		q.timer.Cancel()
		q.timer = nil
		q.wakeAt = 0
	}
	q.mu.Unlock()
	<-done
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		t, ok := q.next()
		if ok {
			// in-flight work completes even when the queue is stopped
			q.execute(context.WithoutCancel(ctx), t)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
	}
}

// next pops the highest priority due task, dropping stale ones, and arms the
// wake-up timer for the earliest future task.
func (q *Queue) next() (Task, bool) {
	now := q.clk.Unix()
	var stale []Task
	defer func() {
		for _, t := range stale {
			q.drop(t, now)
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	var earliest int64
	for l := range q.lanes {
		kept := q.lanes[l][:0]
		var picked *Task
		for _, t := range q.lanes[l] {
			switch {
			case t.To < now:
				stale = append(stale, t)
			case picked == nil && t.NotBefore <= now:
				t := t
				picked = &t
			default:
				if earliest == 0 || t.NotBefore < earliest {
					earliest = t.NotBefore
				}
				kept = append(kept, t)
			}
		}
		q.lanes[l] = kept
		if picked != nil {
			return *picked, true
		}
	}
	q.armLocked(earliest)
	return Task{}, false
}

func (q *Queue) armLocked(at int64) {
	if at == 0 || at == q.wakeAt {
		return
	}
	if q.timer != nil {
		q.timer.Cancel()
	}
	q.wakeAt = at
	q.timer = q.clk.ScheduleOnTime(func() {
		q.mu.Lock()
		if q.wakeAt == at {
			q.wakeAt = 0
			q.timer = nil
		}
		q.mu.Unlock()
		q.signal()
	}, at)
}

func (q *Queue) drop(t Task, now int64) {
	q.log.Infof("discarding stale %s task %s: valid until %d, now %d", t.Kind, t.ID, t.To, now)
	tasksDropped.WithLabelValues(string(t.Kind)).Inc()
	q.publish(Event{Type: EventTaskDropped, Time: now, TaskID: t.ID, TaskKind: t.Kind, Publication: pubKind(t)})
}

func (q *Queue) execute(ctx context.Context, t Task) {
	start := time.Now()
	err := q.safeRun(ctx, t)
	taskDuration.WithLabelValues(string(t.Kind)).Observe(time.Since(start).Seconds())
	result := "success"
	switch {
	case errors.Is(err, ErrStaleTask):
		result = "stale"
		q.log.Infof("%s task %s became stale before completion", t.Kind, t.ID)
	case err != nil:
		result = "failure"
		q.log.Warnf("%s task %s failed: %v", t.Kind, t.ID, err)
		q.publish(Event{Type: EventTaskFailed, Time: q.clk.Unix(), TaskID: t.ID, TaskKind: t.Kind, Publication: pubKind(t), Error: err.Error()})
	}
	tasksExecuted.WithLabelValues(string(t.Kind), result).Inc()
}

func (q *Queue) safeRun(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s task: %v\n%s", t.Kind, r, debug.Stack())
			q.log.Errorf("%v", err)
			coremon.CaptureException(err, map[string]string{"component": "queue", "task": string(t.Kind)})
		}
	}()
	return q.run(ctx, t)
}

func (q *Queue) publish(ev Event) {
	if q.bus != nil {
		q.bus.Publish(ev)
	}
}

func pubKind(t Task) model.PublicationKind {
	if t.Publication == nil {
		return ""
	}
	return t.Publication.Kind
}
