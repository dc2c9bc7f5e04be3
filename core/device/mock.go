package device

import (
	"context"
	"sync"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
)

// MockSignalLayer records outbound signals.
type MockSignalLayer struct {
	mu       sync.Mutex
	REMS     []REMSData
	Enabled  map[string]bool
	Targets  map[string]model.TargetCharge
	Controls map[string][]REMSControl
	Tasks    [][]model.DeviceTask
	Err      error
}

func (m *MockSignalLayer) PublishREMS(_ context.Context, d REMSData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.REMS = append(m.REMS, d)
	return m.Err
}

func (m *MockSignalLayer) ForwardEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Enabled == nil {
		m.Enabled = make(map[string]bool)
	}
	m.Enabled[id] = enabled
	return m.Err
}

func (m *MockSignalLayer) SetBatteryTarget(_ context.Context, id string, t model.TargetCharge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Targets == nil {
		m.Targets = make(map[string]model.TargetCharge)
	}
	m.Targets[id] = t
	return m.Err
}

func (m *MockSignalLayer) ForwardControl(_ context.Context, id string, c REMSControl) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Controls == nil {
		m.Controls = make(map[string][]REMSControl)
	}
	m.Controls[id] = append(m.Controls[id], c)
	return m.Err
}

func (m *MockSignalLayer) DeliverTasks(_ context.Context, tasks []model.DeviceTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tasks = append(m.Tasks, tasks)
	return m.Err
}

// Snapshot runs fn while holding the recorder lock.
func (m *MockSignalLayer) Snapshot(fn func(m *MockSignalLayer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// StaticStateSource serves fixed states. Meter readings are returned by id.
type StaticStateSource struct {
	mu        sync.Mutex
	Providers map[string]ProviderState
	Batteries map[string]BatteryState
	Meters    map[string]MeterReading
}

func (s *StaticStateSource) ProviderStates(_ context.Context, ids []string) ([]ProviderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProviderState, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.Providers[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *StaticStateSource) BatteryStates(_ context.Context, ids []string) ([]BatteryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BatteryState, 0, len(ids))
	for _, id := range ids {
		if b, ok := s.Batteries[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *StaticStateSource) MeterReadings(_ context.Context, ids []string) ([]MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MeterReading, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.Meters[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// SetMeter replaces the reading of a meter.
func (s *StaticStateSource) SetMeter(r MeterReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Meters == nil {
		s.Meters = make(map[string]MeterReading)
	}
	s.Meters[r.DeviceID] = r
}
