package plugins

import (
	"fmt"
	"time"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/factory"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/forecast"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/optimization"
)

// StaticConf configures the static forecaster: one 24 value hourly profile
// in W per forecast kind.
type StaticConf struct {
	Timezone string               `json:"timezone"`
	Profiles map[string][]float64 `json:"profiles"`
}

// MockForecastConf configures the constant forecaster.
type MockForecastConf struct {
	Values map[string]float64 `json:"values"`
}

// MockOptimizerConf selects the problem kinds the mock optimizer claims,
// all of them when empty.
type MockOptimizerConf struct {
	Kinds []string `json:"kinds"`
}

func init() {
	_ = Optimizers.Register("greedy", func(map[string]any) (optimization.Optimizer, error) {
		return optimization.Greedy{}, nil
	})
	_ = Optimizers.Register("mock", func(conf map[string]any) (optimization.Optimizer, error) {
		var c MockOptimizerConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		m := &optimization.Mock{}
		if len(c.Kinds) == 0 {
			m.Kinds = []optimization.ProblemKind{optimization.TargetScheduleProblem, optimization.SchedulingProblem}
		}
		for _, k := range c.Kinds {
			m.Kinds = append(m.Kinds, optimization.ProblemKind(k))
		}
		return m, nil
	})

	_ = Forecasters.Register("static", newStatic)
	_ = Forecasters.Register("mock", func(conf map[string]any) (forecast.Forecaster, error) {
		var c MockForecastConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		m := forecast.Mock{Values: make(map[forecast.Kind]float64, len(c.Values))}
		for k, v := range c.Values {
			m.Values[forecast.Kind(k)] = v
		}
		return m, nil
	})
}

func newStatic(conf map[string]any) (forecast.Forecaster, error) {
	var c StaticConf
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	loc := time.Local
	if c.Timezone != "" {
		l, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
		}
		loc = l
	}
	s := forecast.Static{Profiles: make(map[forecast.Kind][24]float64, len(c.Profiles)), Location: loc}
	for k, values := range c.Profiles {
		if len(values) != 24 {
			return nil, fmt.Errorf("profile %s needs 24 hourly values, got %d", k, len(values))
		}
		var p [24]float64
		copy(p[:], values)
		s.Profiles[forecast.Kind(k)] = p
	}
	return s, nil
}
