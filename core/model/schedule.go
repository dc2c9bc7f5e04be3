package model

import (
	"fmt"
	"time"
)

// Schedule is a time-sliced energy commitment. Values are Wh per slot.
// Consumption values are >= 0, production values are <= 0.
type Schedule struct {
	Timestamp           int64 `json:"timestamp"`
	StartingTime        int64 `json:"starting_time"` // epoch seconds of slot 0
	SlotLength          int64 `json:"slot_length"`   // seconds
	Consumption         []int `json:"consumption"`
	Production          []int `json:"production"`
	FlexibleConsumption []int `json:"flexible_consumption"`
	FlexibleProduction  []int `json:"flexible_production"`
}

// NewSchedule returns a zero-filled schedule of slots slots.
func NewSchedule(timestamp, start, slotLength int64, slots int) Schedule {
	return Schedule{
		Timestamp:           timestamp,
		StartingTime:        start,
		SlotLength:          slotLength,
		Consumption:         make([]int, slots),
		Production:          make([]int, slots),
		FlexibleConsumption: make([]int, slots),
		FlexibleProduction:  make([]int, slots),
	}
}

// Validate checks slot length, sequence lengths and value signs.
func (s Schedule) Validate() error {
	if s.SlotLength <= 0 {
		return fmt.Errorf("%w: slot length %d", ErrInvalidSchedule, s.SlotLength)
	}
	n := len(s.Consumption)
	if len(s.Production) != n || len(s.FlexibleConsumption) != n || len(s.FlexibleProduction) != n {
		return fmt.Errorf("%w: sequence lengths differ (%d/%d/%d/%d)", ErrInvalidSchedule,
			n, len(s.Production), len(s.FlexibleConsumption), len(s.FlexibleProduction))
	}
	for i := 0; i < n; i++ {
		if s.Consumption[i] < 0 || s.FlexibleConsumption[i] < 0 {
			return fmt.Errorf("%w: negative consumption in slot %d", ErrInvalidSchedule, i)
		}
		if s.Production[i] > 0 || s.FlexibleProduction[i] > 0 {
			return fmt.Errorf("%w: positive production in slot %d", ErrInvalidSchedule, i)
		}
	}
	return nil
}

// Slots returns the number of slots.
func (s Schedule) Slots() int { return len(s.Consumption) }

// End returns the epoch second at which the last slot ends.
func (s Schedule) End() int64 { return s.StartingTime + int64(s.Slots())*s.SlotLength }

// SlotIndex returns the slot covering epoch second t, or -1 outside the schedule.
func (s Schedule) SlotIndex(t int64) int {
	if s.SlotLength <= 0 || t < s.StartingTime || t >= s.End() {
		return -1
	}
	return int((t - s.StartingTime) / s.SlotLength)
}

// Net returns consumption plus production of slot i.
func (s Schedule) Net(i int) int { return s.Consumption[i] + s.Production[i] }

// Clone returns a deep copy.
func (s Schedule) Clone() Schedule {
	c := s
	c.Consumption = append([]int(nil), s.Consumption...)
	c.Production = append([]int(nil), s.Production...)
	c.FlexibleConsumption = append([]int(nil), s.FlexibleConsumption...)
	c.FlexibleProduction = append([]int(nil), s.FlexibleProduction...)
	return c
}

// Start returns the starting time as time.Time.
func (s Schedule) Start() time.Time { return time.Unix(s.StartingTime, 0) }

// SlotStart rounds t up to the next slot boundary relative to the epoch.
func SlotStart(t, slotLength int64) int64 {
	if slotLength <= 0 {
		return t
	}
	if r := t % slotLength; r != 0 {
		return t + slotLength - r
	}
	return t
}

// SlotBegin rounds t down to the beginning of its slot.
func SlotBegin(t, slotLength int64) int64 {
	if slotLength <= 0 {
		return t
	}
	return t - t%slotLength
}
