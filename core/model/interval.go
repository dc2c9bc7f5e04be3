package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInterval is returned when an interval has min > max.
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrInvalidSchedule is returned for inconsistent schedules.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrInvalidFlexibility is returned for inconsistent flexibility offers.
	ErrInvalidFlexibility = errors.New("invalid flexibility")
	// ErrInvalidTarget is returned for malformed charge targets.
	ErrInvalidTarget = errors.New("invalid target")
)

// Interval is a closed integer range [Min, Max].
type Interval struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// NewInterval returns [min, max] or an error when min > max.
func NewInterval(min, max int) (Interval, error) {
	i := Interval{Min: min, Max: max}
	if err := i.Validate(); err != nil {
		return Interval{}, err
	}
	return i, nil
}

// Validate reports whether the interval invariant holds.
func (i Interval) Validate() error {
	if i.Min > i.Max {
		return fmt.Errorf("%w: min %d > max %d", ErrInvalidInterval, i.Min, i.Max)
	}
	return nil
}

// Contains reports whether v lies inside the interval.
func (i Interval) Contains(v int) bool { return v >= i.Min && v <= i.Max }

// UnmarshalJSON rejects intervals violating min <= max.
func (i *Interval) UnmarshalJSON(data []byte) error {
	var raw struct {
		Min int `json:"min"`
		Max int `json:"max"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := NewInterval(raw.Min, raw.Max)
	if err != nil {
		return err
	}
	*i = v
	return nil
}
