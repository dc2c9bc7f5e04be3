// Package forecast defines the forecasting capability and the slot
// resampling used to turn power forecasts into per-slot energy.
package forecast

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Kind names a forecast quantity.
type Kind string

const (
	ElectricityDemand Kind = "electricity_demand"
	SolarPower        Kind = "solar_power"
)

// Series is a piecewise constant power forecast in W starting at Begin
// (epoch seconds).
type Series struct {
	Begin      int64     `json:"begin"`
	SlotLength int64     `json:"slot_length"`
	Values     []float64 `json:"values"`
}

// End returns the epoch second at which the series stops.
func (s Series) End() int64 { return s.Begin + int64(len(s.Values))*s.SlotLength }

// Forecaster produces forecasts. CanForecast lets callers skip unsupported
// kinds before asking.
type Forecaster interface {
	CanForecast(kind Kind) bool
	Forecast(ctx context.Context, from, to int64, kind Kind, deviceID string) (Series, error)
}

// Resample averages the series onto slots of slotLength starting at from.
// Time not covered by the series counts as zero power.
func (s Series) Resample(from, slotLength int64, slots int) ([]float64, error) {
	if slotLength <= 0 {
		return nil, fmt.Errorf("slot length must be positive, got %d", slotLength)
	}
	out := make([]float64, slots)
	if s.SlotLength <= 0 || len(s.Values) == 0 {
		return out, nil
	}
	for i := range out {
		a := from + int64(i)*slotLength
		b := a + slotLength
		var acc float64
		first := (a - s.Begin) / s.SlotLength
		if a < s.Begin {
			first = 0
		}
		for j := first; j < int64(len(s.Values)); j++ {
			sa := s.Begin + j*s.SlotLength
			sb := sa + s.SlotLength
			if sa >= b {
				break
			}
			lo, hi := max(a, sa), min(b, sb)
			if hi > lo {
				acc += s.Values[j] * float64(hi-lo)
			}
		}
		out[i] = acc / float64(slotLength)
	}
	return out, nil
}

// EnergyWh converts per-slot average power in W into Wh per slot.
func EnergyWh(powerW []float64, slotLength int64) []float64 {
	out := make([]float64, len(powerW))
	copy(out, powerW)
	floats.Scale(float64(slotLength)/3600, out)
	return out
}

// Sum adds the element-wise values of all series into dst.
func Sum(dst []float64, series ...[]float64) []float64 {
	for _, s := range series {
		if len(s) == len(dst) {
			floats.Add(dst, s)
		}
	}
	return dst
}
