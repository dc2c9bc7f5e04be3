package model

import "fmt"

// Flexibility is a time-sliced offer of permissible power (W) and energy (Wh)
// ranges, one interval per slot.
type Flexibility struct {
	Timestamp      int64      `json:"timestamp"`
	StartingTime   int64      `json:"starting_time"`
	SlotLength     int64      `json:"slot_length"`
	PowerCorridor  []Interval `json:"power_corridor"`
	EnergyCorridor []Interval `json:"energy_corridor"`
}

// Validate checks lengths, slot length and every interval.
func (f Flexibility) Validate() error {
	if f.SlotLength <= 0 {
		return fmt.Errorf("%w: slot length %d", ErrInvalidFlexibility, f.SlotLength)
	}
	if len(f.PowerCorridor) != len(f.EnergyCorridor) {
		return fmt.Errorf("%w: corridor lengths differ (%d/%d)", ErrInvalidFlexibility,
			len(f.PowerCorridor), len(f.EnergyCorridor))
	}
	for i := range f.PowerCorridor {
		if err := f.PowerCorridor[i].Validate(); err != nil {
			return fmt.Errorf("%w: power slot %d: %w", ErrInvalidFlexibility, i, err)
		}
		if err := f.EnergyCorridor[i].Validate(); err != nil {
			return fmt.Errorf("%w: energy slot %d: %w", ErrInvalidFlexibility, i, err)
		}
	}
	return nil
}

// Slots returns the number of slots.
func (f Flexibility) Slots() int { return len(f.PowerCorridor) }

// Clone returns a deep copy.
func (f Flexibility) Clone() Flexibility {
	c := f
	c.PowerCorridor = append([]Interval(nil), f.PowerCorridor...)
	c.EnergyCorridor = append([]Interval(nil), f.EnergyCorridor...)
	return c
}

// Aligned reports whether s and f share start, slot length and slot count.
func Aligned(s Schedule, f Flexibility) bool {
	return s.StartingTime == f.StartingTime && s.SlotLength == f.SlotLength && s.Slots() == f.Slots()
}
