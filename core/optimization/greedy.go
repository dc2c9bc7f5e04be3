package optimization

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
)

// Greedy balances each slot with the available batteries, in provider order,
// without look-ahead.
type Greedy struct{}

func (Greedy) Name() string { return "greedy" }

func (Greedy) CanSolve(kind ProblemKind) bool {
	return kind == TargetScheduleProblem || kind == SchedulingProblem
}

type battery struct {
	id       string
	storedWh float64
	capWh    float64
	chargeW  float64
	dischW   float64
	bufferWh float64
	power    []int
}

func newBatteries(states []device.ProviderState, slots int, bufferWs int64) []*battery {
	out := make([]*battery, 0, len(states))
	for _, s := range states {
		out = append(out, &battery{
			id:       s.DeviceID,
			storedWh: s.StoredWh(),
			capWh:    s.CapacityWh,
			chargeW:  s.MaxChargeW,
			dischW:   s.MaxDischargeW,
			bufferWh: float64(bufferWs) / 3600,
			power:    make([]int, slots),
		})
	}
	return out
}

// headroom returns how much energy the battery may absorb (positive) or
// release (negative bound) in one slot.
func (b *battery) headroom(slotLength int64) (charge, discharge float64) {
	hours := float64(slotLength) / 3600
	charge = math.Max(0, math.Min(b.chargeW*hours, b.capWh-b.bufferWh-b.storedWh))
	discharge = math.Max(0, math.Min(b.dischW*hours, b.storedWh-b.bufferWh))
	return charge, discharge
}

// apply moves wantWh (positive charges) through the batteries and returns the
// energy that could not be placed.
func apply(bats []*battery, slot int, slotLength int64, wantWh float64) float64 {
	for _, b := range bats {
		if wantWh == 0 {
			break
		}
		charge, discharge := b.headroom(slotLength)
		moved := wantWh
		if moved > 0 {
			moved = math.Min(moved, charge)
		} else {
			moved = math.Max(moved, -discharge)
		}
		b.storedWh += moved
		b.power[slot] += int(math.Round(moved * 3600 / float64(slotLength)))
		wantWh -= moved
	}
	return wantWh
}

func tasks(bats []*battery, start, slotLength int64) []model.DeviceTask {
	out := make([]model.DeviceTask, 0, len(bats))
	for _, b := range bats {
		out = append(out, model.DeviceTask{DeviceID: b.id, StartingTime: start, SlotLength: slotLength, Power: b.power})
	}
	return out
}

// chargeDemand spreads the energy needed to meet a target charge over the
// slots before its deadline.
func chargeDemand(t *model.TargetCharge, bats []*battery, start, slotLength int64, slots int) []float64 {
	demand := make([]float64, slots)
	if t == nil || len(bats) == 0 {
		return demand
	}
	var stored, capacity float64
	for _, b := range bats {
		stored += b.storedWh
		capacity += b.capWh
	}
	goal := float64(t.Wh)
	if t.SOC != model.Unset {
		goal = capacity * float64(t.SOC) / 100
	}
	missing := goal - stored
	if missing <= 0 {
		return demand
	}
	n := 0
	for i := 0; i < slots && start+int64(i)*slotLength < t.Time; i++ {
		n++
	}
	if n == 0 {
		return demand
	}
	floats.AddConst(missing/float64(n), demand[:n])
	return demand
}

func (Greedy) SolveSchedule(ctx context.Context, p ScheduleProblem) (ScheduleSolution, error) {
	n := p.Slots()
	if n == 0 {
		return ScheduleSolution{}, fmt.Errorf("empty scheduling horizon [%d,%d)", p.From, p.To)
	}
	if len(p.ConsumptionWh) != n || len(p.ProductionWh) != n {
		return ScheduleSolution{}, fmt.Errorf("forecast length mismatch: want %d slots", n)
	}
	bats := newBatteries(p.Providers, n, p.EnergyBufferWs)
	extra := chargeDemand(p.TargetCharge, bats, p.From, p.SlotLength, n)
	sched := model.NewSchedule(p.Timestamp, p.From, p.SlotLength, n)
	flex := model.Flexibility{
		Timestamp:      p.Timestamp,
		StartingTime:   p.From,
		SlotLength:     p.SlotLength,
		PowerCorridor:  make([]model.Interval, n),
		EnergyCorridor: make([]model.Interval, n),
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return ScheduleSolution{}, err
		}
		var chargeWh, dischargeWh float64
		for _, b := range bats {
			c, d := b.headroom(p.SlotLength)
			chargeWh += c
			dischargeWh += d
		}
		flex.EnergyCorridor[i] = model.Interval{Min: -int(dischargeWh), Max: int(chargeWh)}
		hours := float64(p.SlotLength) / 3600
		flex.PowerCorridor[i] = model.Interval{Min: -int(dischargeWh / hours), Max: int(chargeWh / hours)}

		// surplus production charges, residual demand discharges
		net := p.ConsumptionWh[i] + p.ProductionWh[i]
		before := storedTotal(bats)
		apply(bats, i, p.SlotLength, extra[i]-net)
		moved := storedTotal(bats) - before

		sched.Consumption[i] = int(math.Round(math.Max(0, p.ConsumptionWh[i])))
		sched.Production[i] = int(math.Round(math.Min(0, p.ProductionWh[i])))
		if moved > 0 {
			sched.FlexibleConsumption[i] = int(math.Round(moved))
		} else {
			sched.FlexibleProduction[i] = int(math.Round(moved))
		}
	}
	return ScheduleSolution{Schedule: sched, Flexibility: flex, Tasks: tasks(bats, p.From, p.SlotLength)}, nil
}

func storedTotal(bats []*battery) float64 {
	var sum float64
	for _, b := range bats {
		sum += b.storedWh
	}
	return sum
}

func (Greedy) SolveTarget(ctx context.Context, p TargetProblem) (TargetSolution, error) {
	target := p.Target
	if err := target.Validate(); err != nil {
		return TargetSolution{}, err
	}
	first := target.SlotIndex(p.CurrentSlotBegin)
	if first < 0 {
		first = 0
	}
	last := target.Slots()
	if idx := target.SlotIndex(p.To - 1); idx >= 0 {
		last = idx + 1
	}
	n := last - first
	if n <= 0 {
		return TargetSolution{}, fmt.Errorf("target does not cover [%d,%d)", p.CurrentSlotBegin, p.To)
	}
	if len(p.ConsumptionWh) < n || len(p.ProductionWh) < n {
		return TargetSolution{}, fmt.Errorf("forecast length mismatch: want %d slots", n)
	}
	start := target.StartingTime + int64(first)*target.SlotLength
	bats := newBatteries(p.Providers, n, p.EnergyBufferWs)
	extra := chargeDemand(p.TargetCharge, bats, start, target.SlotLength, n)
	deviation := make([]float64, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return TargetSolution{}, err
		}
		slot := first + i
		planned := float64(target.Net(slot) + target.FlexibleConsumption[slot] + target.FlexibleProduction[slot])
		forecast := p.ConsumptionWh[i] + p.ProductionWh[i]
		// a positive remainder means the site consumes less than committed
		deviation[i] = apply(bats, i, target.SlotLength, planned-forecast)
		apply(bats, i, target.SlotLength, extra[i])
	}
	worst := 0.0
	if len(deviation) > 0 {
		worst = deviation[floats.MaxIdx(absAll(deviation))]
	}
	return TargetSolution{Tasks: tasks(bats, start, target.SlotLength), ExpectedMaximumDeviation: worst}, nil
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}
