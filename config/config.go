package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/factory"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/metrics"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/journal"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/mqtt"
	"github.com/kfoerderer/gridcontrol-bems-sub001/operator"
)

// Version is the configuration document version understood by Load.
const Version = 1

// OperatorConfig groups the grid operator facing adapters.
type OperatorConfig struct {
	Server  operator.ServerConfig  `json:"server"`
	FMS     operator.FMSConfig     `json:"fms"`
	Control operator.ControlConfig `json:"control"`
	// DebugFMS logs publications instead of pushing them.
	DebugFMS bool `json:"debug_fms"`
}

type Config struct {
	Version    int                  `json:"version"`
	MQTT       mqtt.Config          `json:"mqtt"`
	Scheduler  scheduler.Config     `json:"scheduler"`
	Clock      ClockConfig          `json:"clock"`
	State      factory.ModuleConfig `json:"state"`
	Journal    journal.Config       `json:"journal"`
	Operator   OperatorConfig       `json:"operator"`
	Metrics    metrics.Config       `json:"metrics"`
	Sentry     SentryConfig         `json:"sentry"`
	Components ComponentsConfig     `json:"components"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, e.g. K_MQTT__BROKER
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	if c.Version == 0 {
		c.Version = Version
	}
	c.Scheduler.SetDefaults()
	c.Clock.SetDefaults()
	if c.State.Type == "" {
		c.State.Type = "file"
	}
	c.Journal.SetDefaults()
	c.Operator.Server.SetDefaults()
	c.Operator.FMS.SetDefaults()
	c.Operator.Control.SetDefaults()
	c.Sentry.SetDefaults()
	c.Components.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.Version > Version {
		return fmt.Errorf("config version %d is newer than supported %d", c.Version, Version)
	}
	type check struct {
		section string
		fn      func() error
	}
	checks := []check{
		{"scheduler", c.Scheduler.Validate},
		{"clock", c.Clock.Validate},
		{"journal", c.Journal.Validate},
		{"sentry", c.Sentry.Validate},
	}
	if !c.Operator.DebugFMS {
		checks = append(checks, check{"operator.fms", c.Operator.FMS.Validate})
	}
	if c.Operator.Control.BaseURL != "" {
		checks = append(checks, check{"operator.control", c.Operator.Control.Validate})
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.section, err)
		}
	}
	return nil
}
