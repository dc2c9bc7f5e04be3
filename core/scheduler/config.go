package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// DefaultPublishingCron is used when the configured expression is invalid.
const DefaultPublishingCron = "0 0 9"

// Config holds the scheduler tunables. Durations are whole seconds of clock
// time; energies are Wh unless noted. StartupDelay and OptimizationTimeBuffer
// may be configured as 0, so nil marks them unset.
type Config struct {
	StartupDelay                             *int64   `json:"startup_delay" yaml:"startup_delay"`
	FlexibilityAdaptionHorizon               int64    `json:"flexibility_adaption_horizon" yaml:"flexibility_adaption_horizon"`
	ScheduleAdaptionInterval                 int64    `json:"schedule_adaption_interval" yaml:"schedule_adaption_interval"`
	MinimumComplianceOptimizationInterval    int64    `json:"minimum_compliance_optimization_interval" yaml:"minimum_compliance_optimization_interval"`
	MinimumScheduleUpdatePublicationInterval int64    `json:"minimum_schedule_update_publication_interval" yaml:"minimum_schedule_update_publication_interval"`
	ScheduleDeviationReportingThreshold      int64    `json:"schedule_deviation_reporting_threshold" yaml:"schedule_deviation_reporting_threshold"`
	SlotLength                               int64    `json:"slot_length" yaml:"slot_length"`
	FlexibilityEnergyBuffer                  int64    `json:"flexibility_energy_buffer" yaml:"flexibility_energy_buffer"` // Ws
	OptimizationTimeBuffer                   *int64   `json:"optimization_time_buffer" yaml:"optimization_time_buffer"`
	FMSFailureWaitingTime                    int64    `json:"fms_failure_waiting_time" yaml:"fms_failure_waiting_time"`
	FMSSchedulePublishingCron                string   `json:"fms_schedule_publishing_cron" yaml:"fms_schedule_publishing_cron"`
	REMSDataProvisionInterval                int64    `json:"rems_data_provision_interval" yaml:"rems_data_provision_interval"`
	Timezone                                 string   `json:"timezone" yaml:"timezone"`
	FlexibilityProviders                     []string `json:"flexibility_providers" yaml:"flexibility_providers"`
	DNOControllableDevices                   []string `json:"dno_controllable_devices" yaml:"dno_controllable_devices"`
	Batteries                                []string `json:"batteries" yaml:"batteries"`
	ConsumptionMeters                        []string `json:"consumption_meters" yaml:"consumption_meters"`
	ProductionMeters                         []string `json:"production_meters" yaml:"production_meters"`
}

// SetDefaults fills zero values and unset optional durations.
func (c *Config) SetDefaults() {
	if c.StartupDelay == nil {
		c.StartupDelay = ptr.To[int64](10)
	}
	if c.OptimizationTimeBuffer == nil {
		c.OptimizationTimeBuffer = ptr.To[int64](1)
	}
	def := func(v *int64, d int64) {
		if *v == 0 {
			*v = d
		}
	}
	def(&c.FlexibilityAdaptionHorizon, 80)
	def(&c.ScheduleAdaptionInterval, 60)
	def(&c.MinimumComplianceOptimizationInterval, 900)
	def(&c.MinimumScheduleUpdatePublicationInterval, 300)
	def(&c.ScheduleDeviationReportingThreshold, 250)
	def(&c.SlotLength, 900)
	def(&c.FlexibilityEnergyBuffer, 360000)
	def(&c.FMSFailureWaitingTime, 300)
	def(&c.REMSDataProvisionInterval, 10)
	if c.FMSSchedulePublishingCron == "" {
		c.FMSSchedulePublishingCron = DefaultPublishingCron
	}
}

// Validate checks that intervals are usable.
func (c Config) Validate() error {
	positive := map[string]int64{
		"schedule_adaption_interval":   c.ScheduleAdaptionInterval,
		"slot_length":                  c.SlotLength,
		"fms_failure_waiting_time":     c.FMSFailureWaitingTime,
		"rems_data_provision_interval": c.REMSDataProvisionInterval,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	nonNegative := map[string]int64{
		"startup_delay":                                ptr.Deref(c.StartupDelay, 0),
		"flexibility_adaption_horizon":                 c.FlexibilityAdaptionHorizon,
		"minimum_compliance_optimization_interval":     c.MinimumComplianceOptimizationInterval,
		"minimum_schedule_update_publication_interval": c.MinimumScheduleUpdatePublicationInterval,
		"schedule_deviation_reporting_threshold":       c.ScheduleDeviationReportingThreshold,
		"flexibility_energy_buffer":                    c.FlexibilityEnergyBuffer,
		"optimization_time_buffer":                     ptr.Deref(c.OptimizationTimeBuffer, 0),
	}
	for name, v := range nonNegative {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if 86400%c.SlotLength != 0 {
		return fmt.Errorf("slot_length %d does not divide a day", c.SlotLength)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the configured time zone, defaulting to local time.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func seconds(v int64) time.Duration { return time.Duration(v) * time.Second }

// LoadConfig loads Config from a JSON or YAML file and applies defaults.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeConfig(f, ext)
}

// DecodeConfig reads a Config from r, applies defaults and validates it.
func DecodeConfig(r io.Reader, format string) (Config, error) {
	var cfg Config
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
			return cfg, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config format: %s", format)
	}
	cfg.SetDefaults()
	return cfg, cfg.Validate()
}
