package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/clock"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/forecast"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/optimization"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
	"github.com/kfoerderer/gridcontrol-bems-sub001/internal/eventbus"
	"k8s.io/utils/ptr"
)

// ErrNoOptimizer is returned when no configured optimizer can solve a problem.
var ErrNoOptimizer = errors.New("no optimizer can solve the problem")

const day = 24 * 60 * 60

// Deps are the collaborators of a Scheduler. Journal, Bus and Logger are
// optional.
type Deps struct {
	Clock       clock.Clock
	Logger      logger.Logger
	Store       Store
	FMS         fms.Channel
	Signals     device.SignalLayer
	States      device.StateSource
	Optimizers  []optimization.Optimizer
	Forecasters []forecast.Forecaster
	Journal     Journal
	Bus         *eventbus.TypedBus[Event]
}

// Status is a snapshot of the scheduler for operators.
type Status struct {
	Phase                        Phase               `json:"phase"`
	Enabled                      bool                `json:"enabled"`
	PendingInitial               int                 `json:"pending_initial"`
	PendingUpdate                int                 `json:"pending_update"`
	PendingRecompute             int                 `json:"pending_recompute"`
	IncompleteInitial            *model.Publication  `json:"incomplete_initial,omitempty"`
	IncompleteUpdate             *model.Publication  `json:"incomplete_update,omitempty"`
	TargetCharge                 *model.TargetCharge `json:"target_charge,omitempty"`
	CommittedSchedules           []int64             `json:"committed_schedules"`
	LatestInitialPublication     int64               `json:"latest_initial_publication"`
	LatestUpdatePublication      int64               `json:"latest_update_publication"`
	LatestComplianceOptimization int64               `json:"latest_compliance_optimization"`
	LastDeviationWh              float64             `json:"last_deviation_wh"`
}

// Scheduler owns the committed schedules and drives optimization and
// publication. It implements fms.Listener, control.Listener,
// device.REMSListener and device.EnabledListener.
type Scheduler struct {
	cfg  Config
	loc  *time.Location
	clk  clock.Clock
	log  logger.Logger
	deps Deps

	queue *Queue
	retry *RetryJob

	mu      sync.Mutex
	state   State
	phase   Phase
	pending map[model.PublicationKind][]pendingPub
	handles []clock.Handle
	meter   meterBaseline
	lastDev float64
}

// New validates cfg and returns a Scheduler. Call Start to run it.
func New(cfg Config, d Deps) (*Scheduler, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case d.Clock == nil:
		return nil, errors.New("scheduler: clock required")
	case d.Store == nil:
		return nil, errors.New("scheduler: store required")
	case d.FMS == nil:
		return nil, errors.New("scheduler: fms channel required")
	case d.Signals == nil:
		return nil, errors.New("scheduler: signal layer required")
	case d.States == nil:
		return nil, errors.New("scheduler: state source required")
	}
	if d.Logger == nil {
		d.Logger = logger.NopLogger{}
	}
	loc, _ := cfg.Location()
	s := &Scheduler{
		cfg:     cfg,
		loc:     loc,
		clk:     d.Clock,
		log:     d.Logger,
		deps:    d,
		state:   NewState(),
		phase:   PhaseIdle,
		pending: make(map[model.PublicationKind][]pendingPub),
	}
	s.queue = NewQueue(d.Clock, d.Logger, s.runTask, d.Bus)
	s.retry = &RetryJob{s: s}
	return s, nil
}

// Queue exposes the work queue.
func (s *Scheduler) Queue() *Queue { return s.queue }

// RetryJob returns the job replaying incomplete publications.
func (s *Scheduler) RetryJob() *RetryJob { return s.retry }

// Start performs the startup sequence and arms all periodic triggers. It
// blocks for the startup delay only.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.clk.Sleep(ctx, seconds(ptr.Deref(s.cfg.StartupDelay, 0))); err != nil {
		return err
	}
	if err := s.restore(ctx); err != nil {
		return err
	}
	if err := s.queue.Start(ctx); err != nil {
		return err
	}

	spec, err := clock.ParseCronSpec(s.cfg.FMSSchedulePublishingCron)
	if err != nil {
		s.log.Warnf("invalid publishing cron %q, using %q: %v", s.cfg.FMSSchedulePublishingCron, DefaultPublishingCron, err)
		spec, _ = clock.ParseCronSpec(DefaultPublishingCron)
	}
	if spec.Location == nil {
		spec.Location = s.loc
	}
	if err := s.addCron(func() { s.queueDayAhead() }, spec); err != nil {
		return err
	}
	s.catchUpInitial()

	s.addHandle(s.clk.ScheduleAtRate(s.retry.Run, 0, seconds(s.cfg.FMSFailureWaitingTime)))

	midnight := clock.Daily(0, 0, 1)
	midnight.Location = s.loc
	if err := s.addCron(func() { s.RequestOptimization(true, "daily") }, midnight); err != nil {
		return err
	}
	s.RequestOptimization(false, "startup")

	adaption := seconds(s.cfg.ScheduleAdaptionInterval)
	s.addHandle(s.clk.ScheduleAtRate(s.adaptionTick, adaption, adaption))
	if len(s.cfg.Batteries) > 0 {
		s.addHandle(s.clk.ScheduleAtRate(func() { s.remsTick(context.Background()) }, 0, seconds(s.cfg.REMSDataProvisionInterval)))
	}

	s.mu.Lock()
	enabled := s.state.Enabled
	subscribers := append([]string(nil), s.state.EnabledSubscribers...)
	s.mu.Unlock()
	if err := s.forwardEnabled(ctx, subscribers, enabled); err != nil {
		s.log.Warnf("propagating enabled flag: %v", err)
	}
	s.log.Infof("scheduler started, enabled=%v", enabled)
	return nil
}

// restore loads persisted state, drops stale records and seeds the device
// sets from configuration.
func (s *Scheduler) restore(ctx context.Context) error {
	st, err := s.deps.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load scheduler state: %w", err)
	}
	now := s.clk.Unix()
	dropped := st.DropExpired(now)
	st.FlexibilityProviders = append([]string(nil), s.cfg.FlexibilityProviders...)
	st.EnabledSubscribers = append([]string(nil), s.cfg.DNOControllableDevices...)
	pruned := st.PruneSchedules(now)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveLocked(ctx, st); err != nil {
		return err
	}
	for _, kind := range dropped {
		s.log.Infof("discarding stale incomplete %s publication on startup", kind)
		s.emit(Event{Type: EventRecordDiscarded, Time: now, Publication: kind})
	}
	if pruned > 0 {
		s.log.Debugf("pruned %d expired schedules", pruned)
	}
	s.phase = PhaseIdle
	return nil
}

func (s *Scheduler) addHandle(h clock.Handle) {
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
}

func (s *Scheduler) addCron(task clock.Task, spec clock.CronSpec) error {
	h, err := s.clk.ScheduleCron(task, spec)
	if err != nil {
		return fmt.Errorf("schedule cron %s: %w", spec, err)
	}
	s.addHandle(h)
	return nil
}

// Stop cancels all triggers and waits for the in-flight task.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
	s.queue.Stop()
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state.Clone()
	return Status{
		Phase:                        s.phaseLocked(),
		Enabled:                      st.Enabled,
		PendingInitial:               s.queue.Pending(LaneInitial),
		PendingUpdate:                s.queue.Pending(LaneUpdate),
		PendingRecompute:             s.queue.Pending(LaneRecompute),
		IncompleteInitial:            st.IncompleteInitialPublication,
		IncompleteUpdate:             st.IncompleteUpdatePublication,
		TargetCharge:                 st.TargetCharge,
		CommittedSchedules:           st.ScheduleStarts(),
		LatestInitialPublication:     st.LatestInitialPublication,
		LatestUpdatePublication:      st.LatestUpdatePublication,
		LatestComplianceOptimization: st.LatestComplianceOptimization,
		LastDeviationWh:              s.lastDev,
	}
}

// State returns a copy of the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Scheduler) phaseLocked() Phase {
	if s.phase == PhaseIdle && (s.state.IncompleteInitialPublication != nil || s.state.IncompleteUpdatePublication != nil) {
		return PhaseAwaitingRetry
	}
	return s.phase
}

func (s *Scheduler) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	observed := s.phaseLocked()
	s.mu.Unlock()
	s.emit(Event{Type: EventPhaseChanged, Time: s.clk.Unix(), Phase: observed})
}

// commitLocked applies mutate to a copy of the state and makes the copy
// current only once it is persisted. Callers hold s.mu.
func (s *Scheduler) commitLocked(ctx context.Context, mutate func(*State)) error {
	next := s.state.Clone()
	mutate(&next)
	return s.saveLocked(ctx, next)
}

// saveLocked persists next and then replaces the current state with it.
// On error the current state is left untouched. Callers hold s.mu.
func (s *Scheduler) saveLocked(ctx context.Context, next State) error {
	next.Version = StateVersion
	if err := s.deps.Store.Save(ctx, next.Clone()); err != nil {
		return fmt.Errorf("persist scheduler state: %w", err)
	}
	s.state = next
	for _, kind := range []model.PublicationKind{model.PublicationInitial, model.PublicationUpdate} {
		v := 0.0
		if s.state.Incomplete(kind) != nil {
			v = 1
		}
		incompleteRecords.WithLabelValues(string(kind)).Set(v)
	}
	return nil
}

func (s *Scheduler) emit(ev Event) {
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(ev)
	}
}

// dayStart returns the local midnight starting the day of epoch second t.
func (s *Scheduler) dayStart(t int64) int64 {
	lt := time.Unix(t, 0).In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.loc).Unix()
}

// addDays moves a local midnight by n calendar days.
func (s *Scheduler) addDays(midnight int64, n int) int64 {
	lt := time.Unix(midnight, 0).In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()+n, 0, 0, 0, 0, s.loc).Unix()
}

func (s *Scheduler) endOfDay(t int64) int64 { return s.addDays(s.dayStart(t), 1) }

// queueDayAhead queues the forced initial publication for tomorrow.
func (s *Scheduler) queueDayAhead() {
	from := s.addDays(s.dayStart(s.clk.Unix()), 1)
	s.QueuePublication(model.Publication{Kind: model.PublicationInitial, From: from, To: s.addDays(from, 1)}, true)
}

// catchUpInitial queues an initial publication when the last one is more
// than a day old.
func (s *Scheduler) catchUpInitial() {
	now := s.clk.Unix()
	s.mu.Lock()
	latest := s.state.LatestInitialPublication
	s.mu.Unlock()
	if latest+day >= now {
		return
	}
	from := s.addDays(s.dayStart(latest), 2)
	to := s.addDays(from, 1)
	if to < now {
		from, to = now, s.endOfDay(now)
	}
	s.log.Infof("initial publication overdue (last %d), catching up for [%d,%d)", latest, from, to)
	s.QueuePublication(model.Publication{Kind: model.PublicationInitial, From: from, To: to}, true)
}

// pendingPub is a queued publication that has not started yet.
type pendingPub struct {
	id       string
	from, to int64
}

// supersededBy decides whether a new publication replaces p. A replayed record
// only replaces a pending task for the exact same horizon; anything else
// replaces pending tasks whose horizon lies inside its own.
func (p pendingPub) supersededBy(pub model.Publication, replay bool) bool {
	if replay {
		return p.from == pub.From && p.to == pub.To
	}
	return p.from >= pub.From && p.to <= pub.To
}

// QueuePublication enqueues pub, superseding pending publications of the
// same kind whose horizon it covers. Unforced updates wait for the minimum
// update interval.
func (s *Scheduler) QueuePublication(pub model.Publication, force bool) string {
	return s.queuePublication(pub, force, false, false)
}

func (s *Scheduler) queuePublication(pub model.Publication, force, flexibilityOnly, replay bool) string {
	now := s.clk.Unix()
	s.mu.Lock()
	defer s.mu.Unlock()
	notBefore := now
	if pub.Kind == model.PublicationUpdate && !force {
		if next := s.state.LatestUpdatePublication + s.cfg.MinimumScheduleUpdatePublicationInterval; next > notBefore {
			notBefore = next
		}
	}
	var kept []pendingPub
	for _, p := range s.pending[pub.Kind] {
		if !p.supersededBy(pub, replay) {
			kept = append(kept, p)
			continue
		}
		if s.queue.Cancel(p.id) {
			s.log.Debugw("superseded pending publication", map[string]any{"kind": string(pub.Kind), "task": p.id, "from": p.from, "to": p.to})
		}
	}
	var id string
	if flexibilityOnly {
		id = s.queue.QueueFlexibilityPublication(pub, notBefore)
	} else {
		id = s.queue.QueueSchedulePublication(pub, notBefore)
	}
	s.pending[pub.Kind] = append(kept, pendingPub{id: id, from: pub.From, to: pub.To})
	return id
}

// forgetPendingLocked removes the task id from the pending publications.
func (s *Scheduler) forgetPendingLocked(kind model.PublicationKind, id string) {
	list := s.pending[kind]
	for i, p := range list {
		if p.id == id {
			s.pending[kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// RequestOptimization queues a compliance optimization. Unforced requests are
// throttled by a pending recompute and by the minimum compliance interval.
func (s *Scheduler) RequestOptimization(force bool, reason string) bool {
	now := s.clk.Unix()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !force {
		if s.queue.Pending(LaneRecompute) > 0 {
			optimizationReqs.WithLabelValues(reason, "pending").Inc()
			return false
		}
		if now-s.state.LatestComplianceOptimization < s.cfg.MinimumComplianceOptimizationInterval {
			optimizationReqs.WithLabelValues(reason, "throttled").Inc()
			s.log.Debugf("%s optimization throttled, last run at %d", reason, s.state.LatestComplianceOptimization)
			return false
		}
	}
	s.queue.QueueRecompute(now, s.endOfDay(now))
	optimizationReqs.WithLabelValues(reason, "queued").Inc()
	return true
}

func (s *Scheduler) runTask(ctx context.Context, t Task) error {
	switch t.Kind {
	case TaskRecompute:
		return s.optimizeCompliance(ctx)
	case TaskPublishSchedule, TaskPublishFlexibility:
		s.mu.Lock()
		s.forgetPendingLocked(t.Publication.Kind, t.ID)
		s.mu.Unlock()
		return s.publish(ctx, t.Publication.Clone())
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
}
