package fms

import (
	"context"
	"sync"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
)

// Published is a message recorded by MockChannel.
type Published struct {
	Schedule    model.Schedule
	Flexibility model.Flexibility
	Type        PublicationType
}

// MockChannel records publications. The first FailNext calls fail with Err.
type MockChannel struct {
	mu        sync.Mutex
	Err       error
	FailNext  int
	published []Published
	attempts  int
	declines  int
}

func (m *MockChannel) PublishSchedule(_ context.Context, s model.Schedule, f model.Flexibility, t PublicationType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.FailNext > 0 {
		m.FailNext--
		return m.Err
	}
	m.published = append(m.published, Published{Schedule: s.Clone(), Flexibility: f.Clone(), Type: t})
	return nil
}

func (m *MockChannel) DeclineScheduleRequest(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.declines++
	return nil
}

// Published returns the successful publications in order.
func (m *MockChannel) Published() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.published...)
}

// Attempts returns the number of PublishSchedule calls.
func (m *MockChannel) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Declines returns the number of declined requests.
func (m *MockChannel) Declines() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.declines
}
