package scenarios

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	testclock "k8s.io/utils/clock/testing"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/clock"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/forecast"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/optimization"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

const (
	settleTimeout = 2 * time.Second
	poll          = 5 * time.Millisecond
)

// Env is the scheduler under test with its fakes.
type Env struct {
	Clock     *testclock.FakeClock
	Scheduler *scheduler.Scheduler
	FMS       *fms.MockChannel
	Store     *scheduler.MemoryStore
	origin    int64
}

func newEnv(t *testing.T, sc *Scenario) *Env {
	t.Helper()
	scheduler.ResetMetrics(prometheus.NewRegistry())
	start, err := sc.Origin()
	if err != nil {
		t.Fatal(err)
	}
	fc := testclock.NewFakeClock(start)
	ch := &fms.MockChannel{FailNext: sc.FMSFailures}
	if sc.FMSFailures > 0 {
		ch.Err = errFMSDown
	}
	mock := forecast.Mock{Values: map[forecast.Kind]float64{}}
	for k, v := range sc.Forecasts {
		mock.Values[forecast.Kind(k)] = v
	}
	cfg := scheduler.Config{Timezone: "UTC", ProductionMeters: []string{"pv"}}
	cfg.SetDefaults()
	store := &scheduler.MemoryStore{}
	s, err := scheduler.New(cfg, scheduler.Deps{
		Clock:       clock.NewReal(fc),
		Logger:      logger.NopLogger{},
		Store:       store,
		FMS:         ch,
		Signals:     &device.MockSignalLayer{},
		States:      &device.StaticStateSource{},
		Optimizers:  []optimization.Optimizer{optimization.Greedy{}},
		Forecasters: []forecast.Forecaster{mock},
	})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	if err := s.Queue().Start(context.Background()); err != nil {
		t.Fatalf("queue: %v", err)
	}
	t.Cleanup(s.Queue().Stop)
	return &Env{Clock: fc, Scheduler: s, FMS: ch, Store: store, origin: start.Unix()}
}

type scenarioError string

func (e scenarioError) Error() string { return string(e) }

const errFMSDown = scenarioError("fms unreachable")

// RunScenario replays sc and checks its expectations.
func RunScenario(t *testing.T, sc *Scenario) *Env {
	t.Helper()
	env := newEnv(t, sc)
	ctx := context.Background()
	slot := int64(900)
	for i, st := range sc.Steps {
		var err error
		switch st.Action {
		case "publish_initial", "publish_update":
			kind := model.PublicationInitial
			if st.Action == "publish_update" {
				kind = model.PublicationUpdate
			}
			env.Scheduler.QueuePublication(model.Publication{Kind: kind, From: env.origin + st.From, To: env.origin + st.To}, true)
		case "update_schedule":
			err = env.Scheduler.UpdateSchedule(ctx, st.Schedule(env.origin, slot))
		case "request_schedule":
			err = env.Scheduler.RequestSchedule(ctx, st.Schedule(env.origin, slot))
		case "set_target_soc":
			err = env.Scheduler.SetTargetSOC(ctx, st.SOC, env.origin+st.At)
		case "retry":
			err = env.Scheduler.RetryJob().RunContext(ctx)
		case "advance":
			env.Clock.Step(time.Duration(st.Seconds) * time.Second)
		default:
			t.Fatalf("step %d: unknown action %q", i, st.Action)
		}
		if err != nil {
			t.Fatalf("step %d (%s): %v", i, st.Action, err)
		}
		settle(t, env.Scheduler)
	}
	check(t, sc, env)
	return env
}

func busy(s *scheduler.Scheduler) bool {
	q := s.Queue()
	if q.Pending(scheduler.LaneInitial)+q.Pending(scheduler.LaneUpdate)+q.Pending(scheduler.LaneRecompute) > 0 {
		return true
	}
	p := s.Status().Phase
	return p == scheduler.PhaseOptimizing || p == scheduler.PhasePublishing
}

// settle waits until the queue has been idle for several polls in a row.
// Tasks waiting on a future clock time keep it busy, so scenarios advance
// the clock before expecting them.
func settle(t *testing.T, s *scheduler.Scheduler) {
	t.Helper()
	deadline := time.Now().Add(settleTimeout)
	quiet := 0
	for quiet < 3 {
		if time.Now().After(deadline) {
			return
		}
		if busy(s) {
			quiet = 0
		} else {
			quiet++
		}
		time.Sleep(poll)
	}
}

func check(t *testing.T, sc *Scenario, env *Env) {
	t.Helper()
	exp := sc.Expected
	st := env.Scheduler.State()
	if got := len(env.FMS.Published()); got != exp.Published {
		t.Errorf("scenario %s: published %d, want %d", sc.Name, got, exp.Published)
	}
	if exp.Attempts > 0 && env.FMS.Attempts() != exp.Attempts {
		t.Errorf("scenario %s: attempts %d, want %d", sc.Name, env.FMS.Attempts(), exp.Attempts)
	}
	if got := st.IncompleteInitialPublication != nil; got != exp.IncompleteInitial {
		t.Errorf("scenario %s: incomplete initial %v, want %v", sc.Name, got, exp.IncompleteInitial)
	}
	if got := st.IncompleteUpdatePublication != nil; got != exp.IncompleteUpdate {
		t.Errorf("scenario %s: incomplete update %v, want %v", sc.Name, got, exp.IncompleteUpdate)
	}
	if got := len(st.Schedules); got != exp.CommittedSchedules {
		t.Errorf("scenario %s: committed schedules %d, want %d", sc.Name, got, exp.CommittedSchedules)
	}
	if exp.TargetSOC != nil {
		if st.TargetCharge == nil || st.TargetCharge.SOC != *exp.TargetSOC {
			t.Errorf("scenario %s: target charge %+v, want soc %d", sc.Name, st.TargetCharge, *exp.TargetSOC)
		}
	}
	if exp.LatestInitial != nil && st.LatestInitialPublication != env.origin+*exp.LatestInitial {
		t.Errorf("scenario %s: latest initial %d, want origin+%d", sc.Name, st.LatestInitialPublication, *exp.LatestInitial)
	}
}
