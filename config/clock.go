package config

import (
	"fmt"
	"time"
)

// ClockConfig selects the time source.
type ClockConfig struct {
	// Mode is "real" or "simulated".
	Mode string `json:"mode"`
	// Start is the RFC 3339 origin of a simulated clock; empty means now.
	Start string `json:"start"`
	// Factor is the simulation speed-up, > 0.
	Factor float64 `json:"factor"`
}

// SetDefaults applies defaults.
func (c *ClockConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "real"
	}
	if c.Mode == "simulated" && c.Factor == 0 {
		c.Factor = 1
	}
}

// Validate checks the mode and simulation parameters.
func (c ClockConfig) Validate() error {
	switch c.Mode {
	case "real":
		return nil
	case "simulated":
	default:
		return fmt.Errorf("unknown clock mode %s", c.Mode)
	}
	if c.Factor <= 0 {
		return fmt.Errorf("clock factor must be positive, got %v", c.Factor)
	}
	if _, err := c.Origin(); err != nil {
		return err
	}
	return nil
}

// Origin parses Start. The zero time means "now".
func (c ClockConfig) Origin() (time.Time, error) {
	if c.Start == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock start: %w", err)
	}
	return t, nil
}
