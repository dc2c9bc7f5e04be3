package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/clock"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/optimization"
)

// testContext stands in for testing.T.Context (Go 1.24+): a context
// cancelled when the test finishes.
func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

type recLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recLogger) add(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, level+" "+fmt.Sprintf(format, args...))
}

func (l *recLogger) Debugf(f string, a ...any)           { l.add("debug", f, a...) }
func (l *recLogger) Debugw(msg string, _ map[string]any) { l.add("debug", "%s", msg) }
func (l *recLogger) Infof(f string, a ...any)            { l.add("info", f, a...) }
func (l *recLogger) Warnf(f string, a ...any)            { l.add("warn", f, a...) }
func (l *recLogger) Errorf(f string, a ...any)           { l.add("error", f, a...) }

func (l *recLogger) count(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

type harness struct {
	fc    *testclock.FakeClock
	clk   clock.Clock
	store *MemoryStore
	ch    *fms.MockChannel
	sig   *device.MockSignalLayer
	src   *device.StaticStateSource
	opt   *optimization.Mock
	log   *recLogger
	s     *Scheduler
}

func testConfig() Config {
	cfg := Config{
		Timezone:               "UTC",
		FlexibilityProviders:   []string{"bat1"},
		DNOControllableDevices: []string{"heatpump"},
		Batteries:              []string{"bat1"},
		ConsumptionMeters:      []string{"house"},
	}
	cfg.SetDefaults()
	return cfg
}

// fourSlots returns a valid scheduling solution starting at from.
func fourSlots(from int64) optimization.ScheduleSolution {
	s := model.NewSchedule(from, from, 900, 4)
	s.Consumption = []int{100, 200, 300, 400}
	f := model.Flexibility{
		Timestamp:      from,
		StartingTime:   from,
		SlotLength:     900,
		PowerCorridor:  make([]model.Interval, 4),
		EnergyCorridor: make([]model.Interval, 4),
	}
	return optimization.ScheduleSolution{Schedule: s, Flexibility: f}
}

func newHarness(t *testing.T, now int64, cfg Config) *harness {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	fc := testclock.NewFakeClock(time.Unix(now, 0))
	h := &harness{
		fc:    fc,
		clk:   clock.NewReal(fc),
		store: &MemoryStore{},
		ch:    &fms.MockChannel{},
		sig:   &device.MockSignalLayer{},
		src:   &device.StaticStateSource{},
		opt: &optimization.Mock{
			Kinds:    []optimization.ProblemKind{optimization.TargetScheduleProblem, optimization.SchedulingProblem},
			Schedule: fourSlots(model.SlotStart(now, 900)),
		},
		log: &recLogger{},
	}
	s, err := New(cfg, Deps{
		Clock:      h.clk,
		Logger:     h.log,
		Store:      h.store,
		FMS:        h.ch,
		Signals:    h.sig,
		States:     h.src,
		Optimizers: []optimization.Optimizer{h.opt},
	})
	require.NoError(t, err)
	h.s = s
	return h
}

func (h *harness) startQueue(t *testing.T) {
	t.Helper()
	require.NoError(t, h.s.queue.Start(testContext(t)))
	t.Cleanup(h.s.queue.Stop)
}
