package forecast

import (
	"context"
	"fmt"
	"time"
)

// Static repeats a daily profile of hourly power values in W. Profiles are
// indexed by local hour of day.
type Static struct {
	Profiles map[Kind][24]float64
	Location *time.Location
}

func (s Static) CanForecast(kind Kind) bool {
	_, ok := s.Profiles[kind]
	return ok
}

func (s Static) Forecast(_ context.Context, from, to int64, kind Kind, _ string) (Series, error) {
	profile, ok := s.Profiles[kind]
	if !ok {
		return Series{}, fmt.Errorf("static forecaster cannot forecast %s", kind)
	}
	if to < from {
		return Series{}, fmt.Errorf("forecast range ends before it starts")
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	begin := from - from%3600
	series := Series{Begin: begin, SlotLength: 3600}
	for t := begin; t < to; t += 3600 {
		series.Values = append(series.Values, profile[time.Unix(t, 0).In(loc).Hour()])
	}
	return series, nil
}

// Mock returns a constant value for the configured kinds.
type Mock struct {
	Values map[Kind]float64
	Err    error
}

func (m Mock) CanForecast(kind Kind) bool {
	_, ok := m.Values[kind]
	return ok
}

func (m Mock) Forecast(_ context.Context, from, to int64, kind Kind, _ string) (Series, error) {
	if m.Err != nil {
		return Series{}, m.Err
	}
	v, ok := m.Values[kind]
	if !ok {
		return Series{}, fmt.Errorf("mock forecaster cannot forecast %s", kind)
	}
	n := int((to - from + 59) / 60)
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return Series{Begin: from, SlotLength: 60, Values: values}, nil
}
