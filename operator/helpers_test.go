package operator

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/journal"
)

func init() {
	ResetMetrics(prometheus.NewRegistry())
}

type fakeListener struct {
	mu        sync.Mutex
	err       error
	updates   []model.Schedule
	requests  []model.Schedule
	socs      [][2]int64
	whs       [][2]int64
	statusVal scheduler.Status
	entries   []scheduler.JournalEntry
	lastQuery journal.Query
}

func (f *fakeListener) UpdateSchedule(_ context.Context, s model.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	f.updates = append(f.updates, s)
	return nil
}

func (f *fakeListener) RequestSchedule(_ context.Context, s model.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	f.requests = append(f.requests, s)
	return nil
}

func (f *fakeListener) SetTargetSOC(_ context.Context, soc int, at int64) error {
	if _, err := model.NewSOCTarget(soc, at); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.socs = append(f.socs, [2]int64{int64(soc), at})
	return f.err
}

func (f *fakeListener) SetTargetWh(_ context.Context, wh int, at int64) error {
	if _, err := model.NewWhTarget(wh, at); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.whs = append(f.whs, [2]int64{int64(wh), at})
	return f.err
}

func (f *fakeListener) Status() scheduler.Status { return f.statusVal }

func (f *fakeListener) Query(_ context.Context, q journal.Query) ([]scheduler.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	return f.entries, nil
}

func (f *fakeListener) counts() (updates, requests int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates), len(f.requests)
}

func sampleSchedule() model.Schedule {
	s := model.NewSchedule(1, 1704067200, 900, 4)
	s.Consumption = []int{100, 200, 300, 400}
	s.Production = []int{0, -50, -50, 0}
	return s
}

func sampleFlexibility() model.Flexibility {
	f := model.Flexibility{Timestamp: 1, StartingTime: 1704067200, SlotLength: 900}
	for i := 0; i < 4; i++ {
		f.PowerCorridor = append(f.PowerCorridor, model.Interval{Min: -1000, Max: 1000})
		f.EnergyCorridor = append(f.EnergyCorridor, model.Interval{Min: 0, Max: 5000})
	}
	return f
}
