// Package optimization defines the optimizer capability used by the
// scheduler together with a greedy battery heuristic and a mock.
package optimization

import (
	"context"
	"errors"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
)

// ProblemKind names a problem class an optimizer may support.
type ProblemKind string

const (
	// TargetScheduleProblem follows a committed schedule as closely as possible.
	TargetScheduleProblem ProblemKind = "target_schedule"
	// SchedulingProblem proposes a schedule and flexibility offer.
	SchedulingProblem ProblemKind = "scheduling"
)

// ErrUnsupported is returned by optimizers asked for a problem they cannot solve.
var ErrUnsupported = errors.New("problem not supported")

// TargetProblem describes a compliance optimization. Forecast slices hold Wh
// per slot aligned with Target.
type TargetProblem struct {
	From             int64
	To               int64
	CurrentSlotBegin int64
	Target           model.Schedule
	ConsumptionWh    []float64
	ProductionWh     []float64
	Providers        []device.ProviderState
	TargetCharge     *model.TargetCharge
	EnergyBufferWs   int64
}

// TargetSolution holds the device plans and the largest remaining deviation
// from the target in Wh (signed).
type TargetSolution struct {
	Tasks                    []model.DeviceTask
	ExpectedMaximumDeviation float64
}

// ScheduleProblem describes a schedule computation for [From, To).
type ScheduleProblem struct {
	Timestamp      int64
	From           int64
	To             int64
	SlotLength     int64
	ConsumptionWh  []float64
	ProductionWh   []float64
	Providers      []device.ProviderState
	TargetCharge   *model.TargetCharge
	EnergyBufferWs int64
}

// Slots returns the number of slots covering [From, To).
func (p ScheduleProblem) Slots() int {
	if p.SlotLength <= 0 || p.To <= p.From {
		return 0
	}
	return int((p.To - p.From + p.SlotLength - 1) / p.SlotLength)
}

// ScheduleSolution is a proposed schedule with its flexibility offer.
type ScheduleSolution struct {
	Schedule    model.Schedule
	Flexibility model.Flexibility
	Tasks       []model.DeviceTask
}

// Optimizer solves scheduling problems.
type Optimizer interface {
	Name() string
	CanSolve(kind ProblemKind) bool
	SolveTarget(ctx context.Context, p TargetProblem) (TargetSolution, error)
	SolveSchedule(ctx context.Context, p ScheduleProblem) (ScheduleSolution, error)
}

// First returns the first optimizer able to solve kind.
func First(opts []Optimizer, kind ProblemKind) (Optimizer, bool) {
	for _, o := range opts {
		if o != nil && o.CanSolve(kind) {
			return o, true
		}
	}
	return nil, false
}
