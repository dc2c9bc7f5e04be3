package config

import "github.com/kfoerderer/gridcontrol-bems-sub001/core/factory"

// PluginConfig stores the type name of a plugin and its raw configuration.
// Each plugin decodes the raw map into its own configuration struct.
type PluginConfig = factory.ModuleConfig

// ComponentsConfig lists the pluggable computation components. Order
// matters: the scheduler uses the first optimizer able to solve a problem.
type ComponentsConfig struct {
	Optimizers  []PluginConfig `json:"optimizers"`
	Forecasters []PluginConfig `json:"forecasters"`
}

// SetDefaults selects the greedy optimizer when none is configured.
func (c *ComponentsConfig) SetDefaults() {
	if len(c.Optimizers) == 0 {
		c.Optimizers = []PluginConfig{{Type: "greedy"}}
	}
}
