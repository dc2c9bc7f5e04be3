// Package plugins holds the factories for the pluggable computation
// components named in the configuration.
package plugins

import (
	"fmt"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/factory"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/forecast"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/optimization"
)

var (
	Optimizers  = factory.NewRegistry[optimization.Optimizer]()
	Forecasters = factory.NewRegistry[forecast.Forecaster]()
)

// BuildOptimizers creates the optimizers in configuration order.
func BuildOptimizers(cfgs []factory.ModuleConfig) ([]optimization.Optimizer, error) {
	return build(Optimizers, "optimizer", cfgs)
}

// BuildForecasters creates the forecasters in configuration order.
func BuildForecasters(cfgs []factory.ModuleConfig) ([]forecast.Forecaster, error) {
	return build(Forecasters, "forecaster", cfgs)
}

func build[T any](r *factory.Registry[T], what string, cfgs []factory.ModuleConfig) ([]T, error) {
	out := make([]T, 0, len(cfgs))
	for i, c := range cfgs {
		v, err := r.Create(c)
		if err != nil {
			return nil, fmt.Errorf("%s %d (%s): %w", what, i, c.Type, err)
		}
		out = append(out, v)
	}
	return out, nil
}
