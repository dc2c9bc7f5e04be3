package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/optimization"
	"k8s.io/utils/ptr"
)

// 2024-01-02 10:00:00 UTC
const noon = int64(1704189600)

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(testConfig(), Deps{})
	require.Error(t, err)
}

func TestInitialPublicationAdoptsSchedule(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	h.startQueue(t)

	h.s.QueuePublication(model.Publication{Kind: model.PublicationInitial, From: noon, To: noon + 3600}, true)
	require.Eventually(t, func() bool { return len(h.ch.Published()) == 1 }, wait, tick)
	require.Eventually(t, func() bool { return h.s.State().LatestInitialPublication == noon }, wait, tick)

	pub := h.ch.Published()[0]
	assert.Equal(t, fms.InitialSchedule, pub.Type)
	st := h.s.State()
	_, ok := st.Schedules[pub.Schedule.StartingTime]
	assert.True(t, ok)
	assert.Nil(t, st.IncompleteInitialPublication)
	assert.Equal(t, 1.0, testutil.ToFloat64(publications.WithLabelValues("initial", "success")))
}

func TestFailedPublicationIsRetriedOnce(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	h.ch.Err = errors.New("fms unreachable")
	h.ch.FailNext = 1
	h.startQueue(t)

	h.s.QueuePublication(model.Publication{Kind: model.PublicationInitial, From: noon, To: noon + 3600}, true)
	require.Eventually(t, func() bool { return h.s.State().IncompleteInitialPublication != nil }, wait, tick)
	assert.Equal(t, PhaseAwaitingRetry, h.s.Status().Phase)

	persisted, err := h.store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted.IncompleteInitialPublication)
	require.NotNil(t, persisted.IncompleteInitialPublication.Schedule)

	require.NoError(t, h.s.RetryJob().RunContext(context.Background()))
	require.Eventually(t, func() bool { return len(h.ch.Published()) == 1 }, wait, tick)
	require.Eventually(t, func() bool { return h.s.State().IncompleteInitialPublication == nil }, wait, tick)

	// payload computed before the failure is reused
	_, scheduleCalls := h.opt.Calls()
	assert.Equal(t, 1, scheduleCalls)

	require.NoError(t, h.s.RetryJob().RunContext(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, h.ch.Attempts())
	assert.Len(t, h.ch.Published(), 1)

	persisted, err = h.store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, persisted.IncompleteInitialPublication)
}

func TestRetryDiscardsStaleRecord(t *testing.T) {
	h := newHarness(t, 150, testConfig())
	h.s.state.IncompleteUpdatePublication = &model.Publication{Kind: model.PublicationUpdate, From: 0, To: 100}

	require.NoError(t, h.s.RetryJob().RunContext(context.Background()))
	assert.Nil(t, h.s.State().IncompleteUpdatePublication)
	assert.Equal(t, 0, h.s.Queue().Pending(LaneUpdate))
	assert.Equal(t, 1, h.log.count("discarding stale incomplete update"))
	assert.Equal(t, 1, h.store.Saves())
}

func TestRetryNoopWithoutRecords(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	require.NoError(t, h.s.RetryJob().RunContext(context.Background()))
	assert.Equal(t, 0, h.store.Saves())
	assert.Equal(t, 0, h.s.Queue().Pending(LaneInitial)+h.s.Queue().Pending(LaneUpdate))
}

func TestPersistedRecordRoundTrip(t *testing.T) {
	rec := &model.Publication{Kind: model.PublicationUpdate, From: 500, To: 2000}
	seed := NewState()
	seed.IncompleteUpdatePublication = rec

	h := newHarness(t, 1000, testConfig())
	require.NoError(t, h.store.Save(context.Background(), seed))
	require.NoError(t, h.s.restore(context.Background()))
	if diff := cmp.Diff(rec, h.s.State().IncompleteUpdatePublication); diff != "" {
		t.Fatalf("restored record mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, h.s.RetryJob().RunContext(context.Background()))
	assert.Equal(t, 1, h.s.Queue().Pending(LaneUpdate))

	late := newHarness(t, 3000, testConfig())
	require.NoError(t, late.store.Save(context.Background(), seed))
	loaded, err := late.store.Load(context.Background())
	require.NoError(t, err)
	late.s.state = loaded
	require.NoError(t, late.s.RetryJob().RunContext(context.Background()))
	assert.Equal(t, 0, late.s.Queue().Pending(LaneUpdate))
	assert.Nil(t, late.s.State().IncompleteUpdatePublication)

	// restore alone drops it too
	again := newHarness(t, 3000, testConfig())
	require.NoError(t, again.store.Save(context.Background(), seed))
	require.NoError(t, again.s.restore(context.Background()))
	assert.Nil(t, again.s.State().IncompleteUpdatePublication)
}

func TestComplianceOptimizationThrottled(t *testing.T) {
	cfg := testConfig()
	cfg.MinimumComplianceOptimizationInterval = 900
	h := newHarness(t, noon, cfg)
	sched := model.NewSchedule(noon, noon-900, 900, 8)
	h.s.state.AdoptSchedule(sched)
	h.startQueue(t)

	h.s.adaptionTick()
	require.Eventually(t, func() bool { return h.s.State().LatestComplianceOptimization == noon }, wait, tick)

	h.fc.Step(100 * time.Second)
	h.s.adaptionTick()
	assert.Equal(t, 0, h.s.Queue().Pending(LaneRecompute))
	time.Sleep(20 * time.Millisecond)
	targetCalls, _ := h.opt.Calls()
	assert.Equal(t, 1, targetCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(optimizationReqs.WithLabelValues("periodic", "throttled")))
}

func TestFailedOptimizationStillThrottled(t *testing.T) {
	cfg := testConfig()
	cfg.MinimumComplianceOptimizationInterval = 900
	h := newHarness(t, noon, cfg)
	h.opt.Err = errors.New("solver diverged")
	h.s.state.AdoptSchedule(model.NewSchedule(noon, noon-900, 900, 8))
	h.startQueue(t)

	h.s.adaptionTick()
	require.Eventually(t, func() bool {
		targetCalls, _ := h.opt.Calls()
		return targetCalls == 1
	}, wait, tick)

	h.fc.Step(100 * time.Second)
	h.s.adaptionTick()
	time.Sleep(20 * time.Millisecond)
	targetCalls, _ := h.opt.Calls()
	assert.Equal(t, 1, targetCalls)
	h.sig.Snapshot(func(m *device.MockSignalLayer) { assert.Empty(t, m.Tasks) })

	persisted, err := h.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, noon, persisted.LatestComplianceOptimization)
}

func TestForcedOptimizationBypassesThrottle(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	h.s.state.LatestComplianceOptimization = noon - 10
	assert.False(t, h.s.RequestOptimization(false, "periodic"))
	assert.True(t, h.s.RequestOptimization(true, "control_target"))
	assert.False(t, h.s.RequestOptimization(false, "periodic"))
	assert.Equal(t, 1, h.s.Queue().Pending(LaneRecompute))
}

func TestAdaptionSkipsWhenDisabled(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	h.s.state.AdoptSchedule(model.NewSchedule(noon, noon-900, 900, 8))
	h.s.state.Enabled = false
	h.s.adaptionTick()
	assert.Equal(t, 0, h.s.Queue().Pending(LaneRecompute))
}

func TestAdaptionSkipsWithPendingTarget(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	h.s.state.AdoptSchedule(model.NewSchedule(noon, noon-900, 900, 8))
	target, err := model.NewSOCTarget(80, noon+600)
	require.NoError(t, err)
	h.s.state.TargetCharge = &target
	h.s.adaptionTick()
	assert.Equal(t, 0, h.s.Queue().Pending(LaneRecompute))
}

func TestAdaptionMeasuresDeviation(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	sched := model.NewSchedule(noon, noon-900, 900, 8)
	for i := range sched.Consumption {
		sched.Consumption[i] = 500 // 2000 W
	}
	h.s.state.AdoptSchedule(sched)
	h.s.state.LatestComplianceOptimization = noon
	h.src.SetMeter(device.MeterReading{DeviceID: "house", Kind: device.MeterConsumption, EnergyWh: 10000})

	h.s.adaptionTick()
	assert.Equal(t, 0.0, h.s.Status().LastDeviationWh)

	h.fc.Step(60 * time.Second)
	// 1000 W over one minute
	h.src.SetMeter(device.MeterReading{DeviceID: "house", Kind: device.MeterConsumption, EnergyWh: 10000 + 1000.0/60})
	h.s.adaptionTick()
	assert.InDelta(t, 250, h.s.Status().LastDeviationWh, 0.01)
}

func TestUpdatePublicationDeferredByMinimumInterval(t *testing.T) {
	cfg := testConfig()
	cfg.MinimumScheduleUpdatePublicationInterval = 300
	h := newHarness(t, noon, cfg)
	h.s.state.LatestUpdatePublication = noon - 100
	h.startQueue(t)

	h.s.QueuePublication(model.Publication{Kind: model.PublicationUpdate, From: noon, To: noon + 3600}, false)
	require.Eventually(t, h.fc.HasWaiters, wait, tick)
	assert.Equal(t, 0, h.ch.Attempts())

	h.fc.Step(200 * time.Second)
	require.Eventually(t, func() bool { return len(h.ch.Published()) == 1 }, wait, tick)
	assert.Equal(t, fms.ScheduleUpdate, h.ch.Published()[0].Type)
	require.Eventually(t, func() bool { return h.s.State().LatestUpdatePublication == noon+200 }, wait, tick)
}

func TestUpdateSupersedesPending(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	first := h.s.QueuePublication(model.Publication{Kind: model.PublicationUpdate, From: noon, To: noon + 3600}, true)
	second := h.s.QueuePublication(model.Publication{Kind: model.PublicationUpdate, From: noon, To: noon + 7200}, true)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, h.s.Queue().Pending(LaneUpdate))
	assert.False(t, h.s.Queue().Cancel(first))
}

func TestRetryKeepsPendingDayAhead(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	h.s.queueDayAhead()
	h.s.state.IncompleteInitialPublication = &model.Publication{Kind: model.PublicationInitial, From: noon, To: noon + 3600}

	require.NoError(t, h.s.RetryJob().RunContext(context.Background()))
	assert.Equal(t, 2, h.s.Queue().Pending(LaneInitial))

	h.startQueue(t)
	require.Eventually(t, func() bool { return len(h.ch.Published()) == 2 }, wait, tick)
	require.Eventually(t, func() bool { return h.s.State().IncompleteInitialPublication == nil }, wait, tick)
}

func TestRetryReplacesPendingSameHorizon(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	pub := model.Publication{Kind: model.PublicationInitial, From: noon, To: noon + 3600}
	first := h.s.QueuePublication(pub, true)
	h.s.state.IncompleteInitialPublication = &pub

	require.NoError(t, h.s.RetryJob().RunContext(context.Background()))
	assert.Equal(t, 1, h.s.Queue().Pending(LaneInitial))
	assert.False(t, h.s.Queue().Cancel(first))
}

func TestUpdateKeepsPendingOutsideHorizon(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	h.s.QueuePublication(model.Publication{Kind: model.PublicationUpdate, From: noon, To: noon + 7200}, true)
	h.s.QueuePublication(model.Publication{Kind: model.PublicationUpdate, From: noon + 3600, To: noon + 7200}, true)
	assert.Equal(t, 2, h.s.Queue().Pending(LaneUpdate))
}

func TestUpdateWithinThresholdSkipped(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	committed := h.opt.Schedule.Schedule.Clone()
	h.s.state.AdoptSchedule(committed)
	h.startQueue(t)

	h.s.QueuePublication(model.Publication{Kind: model.PublicationUpdate, From: noon, To: noon + 3600}, true)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(publications.WithLabelValues("update", "skipped")) == 1
	}, wait, tick)
	assert.Equal(t, 0, h.ch.Attempts())
	assert.Equal(t, int64(0), h.s.State().LatestUpdatePublication)
}

func TestUpdateScheduleAdoptsAndOptimizes(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	bad := model.NewSchedule(noon, noon, 900, 2)
	bad.Production[0] = 5
	require.ErrorIs(t, h.s.UpdateSchedule(context.Background(), bad), model.ErrInvalidSchedule)
	assert.Equal(t, 0, h.store.Saves())

	good := model.NewSchedule(noon, noon, 900, 4)
	require.NoError(t, h.s.UpdateSchedule(context.Background(), good))
	persisted, err := h.store.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, persisted.Schedules, noon)
	assert.Equal(t, 1, h.s.Queue().Pending(LaneRecompute))
}

func TestUpdateScheduleFailsWhenNotPersisted(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	h.store.Err = errors.New("disk full")
	require.Error(t, h.s.UpdateSchedule(context.Background(), model.NewSchedule(noon, noon, 900, 4)))
	assert.NotContains(t, h.s.State().Schedules, noon)
	assert.Equal(t, 0, h.s.Queue().Pending(LaneRecompute))
}

func TestFailedSaveLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	h.store.Err = errors.New("disk full")

	require.Error(t, h.s.SetEnabled(context.Background(), false))
	assert.True(t, h.s.State().Enabled)
	h.sig.Snapshot(func(m *device.MockSignalLayer) { assert.Empty(t, m.Enabled) })

	require.Error(t, h.s.SetTargetSOC(context.Background(), 80, noon+600))
	assert.Nil(t, h.s.State().TargetCharge)

	sched := model.NewSchedule(noon, noon, 900, 4)
	pub := model.Publication{Kind: model.PublicationInitial, From: noon, To: noon + 3600, Schedule: &sched}
	h.s.state.IncompleteInitialPublication = &pub
	require.Error(t, h.s.publicationDone(context.Background(), pub, OutcomePublished, noon))
	st := h.s.State()
	assert.Equal(t, int64(0), st.LatestInitialPublication)
	assert.NotContains(t, st.Schedules, noon)
	assert.NotNil(t, st.IncompleteInitialPublication)
}

func TestRequestScheduleQueuesUpdate(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	require.NoError(t, h.s.RequestSchedule(context.Background(), model.NewSchedule(noon, noon, 900, 4)))
	assert.Equal(t, 1, h.s.Queue().Pending(LaneUpdate))
	assert.Equal(t, 1, h.s.Queue().Pending(LaneRecompute))
}

func TestSetTargetSOCForwardsToBatteries(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	require.Error(t, h.s.SetTargetSOC(context.Background(), 120, noon+3600))

	require.NoError(t, h.s.SetTargetSOC(context.Background(), 80, noon+3600))
	h.sig.Snapshot(func(m *device.MockSignalLayer) {
		require.Contains(t, m.Targets, "bat1")
		assert.Equal(t, 80, m.Targets["bat1"].SOC)
	})
	st := h.s.State()
	require.NotNil(t, st.TargetCharge)
	assert.Equal(t, noon+3600, st.TargetCharge.Time)
	assert.Equal(t, 1, h.s.Queue().Pending(LaneRecompute))
}

func TestSetEnabledForwards(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	require.NoError(t, h.s.restore(context.Background()))
	require.NoError(t, h.s.SetEnabled(context.Background(), false))
	h.sig.Snapshot(func(m *device.MockSignalLayer) {
		assert.Equal(t, map[string]bool{"heatpump": false}, m.Enabled)
	})
	assert.False(t, h.s.Status().Enabled)
}

func TestOnREMSControlForwards(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	require.NoError(t, h.s.restore(context.Background()))
	c := device.REMSControl{Target: device.TargetCoil, Address: 3, Value: 1}
	require.NoError(t, h.s.OnREMSControl(context.Background(), c))
	h.sig.Snapshot(func(m *device.MockSignalLayer) {
		assert.Equal(t, []device.REMSControl{c}, m.Controls["heatpump"])
	})
}

func TestREMSTickPublishesRegisters(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	require.NoError(t, h.s.restore(context.Background()))
	h.src.Batteries = map[string]device.BatteryState{
		"bat1": {DeviceID: "bat1", SOC: 55, SystemStateCode: 2, ErrorCodes: [4]int{0, 17}},
	}
	h.s.remsTick(context.Background())

	h.sig.Snapshot(func(m *device.MockSignalLayer) {
		require.Len(t, m.REMS, 1)
		regs := m.REMS[0].Registers
		assert.Equal(t, 55, regs[device.RegisterSOC])
		assert.Equal(t, 2, regs[device.RegisterSystemState])
		assert.Equal(t, 17, regs[device.RegisterSystemErrorBase+1])
		assert.Equal(t, true, m.Enabled["heatpump"])
	})
	assert.Equal(t, 1, h.log.count("system error code 17"))
}

func TestCatchUpInitialWhenOverdue(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	h.s.catchUpInitial()
	assert.Equal(t, 1, h.s.Queue().Pending(LaneInitial))

	fresh := newHarness(t, noon, testConfig())
	fresh.s.state.LatestInitialPublication = noon - 3600
	fresh.s.catchUpInitial()
	assert.Equal(t, 0, fresh.s.Queue().Pending(LaneInitial))
}

func TestStartRunsStartupSequence(t *testing.T) {
	cfg := testConfig()
	cfg.StartupDelay = ptr.To[int64](5)
	h := newHarness(t, noon, cfg)
	h.opt.Target = optimization.TargetSolution{Tasks: []model.DeviceTask{{DeviceID: "bat1", StartingTime: noon, SlotLength: 900, Power: []int{100}}}}

	errc := make(chan error, 1)
	go func() { errc <- h.s.Start(context.Background()) }()
	require.Eventually(t, h.fc.HasWaiters, wait, tick)
	h.fc.Step(5 * time.Second)
	require.NoError(t, <-errc)
	defer h.s.Stop()

	require.Eventually(t, func() bool { return len(h.ch.Published()) == 1 }, wait, tick)
	assert.Equal(t, fms.InitialSchedule, h.ch.Published()[0].Type)
	require.Eventually(t, func() bool {
		n := 0
		h.sig.Snapshot(func(m *device.MockSignalLayer) { n = len(m.Tasks) })
		return n == 1
	}, wait, tick)
	h.sig.Snapshot(func(m *device.MockSignalLayer) {
		assert.True(t, m.Enabled["heatpump"])
	})
	assert.Equal(t, []string{"bat1"}, h.s.State().FlexibilityProviders)
}

func TestStatusReportsQueue(t *testing.T) {
	h := newHarness(t, noon, testConfig())
	h.s.RequestOptimization(true, "test")
	h.s.QueuePublication(model.Publication{Kind: model.PublicationInitial, From: noon, To: noon + 3600}, true)
	st := h.s.Status()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Equal(t, 1, st.PendingInitial)
	assert.Equal(t, 1, st.PendingRecompute)
}
