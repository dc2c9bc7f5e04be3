package optimization

import (
	"context"
	"sync"
)

// Mock returns canned solutions and counts calls.
type Mock struct {
	Kinds    []ProblemKind
	Target   TargetSolution
	Schedule ScheduleSolution
	Err      error
	// OnSolve runs inside every Solve call before it returns.
	OnSolve func()

	mu            sync.Mutex
	targetCalls   int
	scheduleCalls int
	lastTarget    TargetProblem
	lastSchedule  ScheduleProblem
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) CanSolve(kind ProblemKind) bool {
	for _, k := range m.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (m *Mock) SolveTarget(_ context.Context, p TargetProblem) (TargetSolution, error) {
	m.mu.Lock()
	m.targetCalls++
	m.lastTarget = p
	m.mu.Unlock()
	if m.OnSolve != nil {
		m.OnSolve()
	}
	return m.Target, m.Err
}

func (m *Mock) SolveSchedule(_ context.Context, p ScheduleProblem) (ScheduleSolution, error) {
	m.mu.Lock()
	m.scheduleCalls++
	m.lastSchedule = p
	m.mu.Unlock()
	if m.OnSolve != nil {
		m.OnSolve()
	}
	return m.Schedule, m.Err
}

// Calls returns how often each Solve method ran.
func (m *Mock) Calls() (target, schedule int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targetCalls, m.scheduleCalls
}

// LastTarget returns the most recent target problem.
func (m *Mock) LastTarget() TargetProblem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTarget
}

// LastSchedule returns the most recent scheduling problem.
func (m *Mock) LastSchedule() ScheduleProblem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSchedule
}
