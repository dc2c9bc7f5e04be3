package config

import "fmt"

// SentryConfig defines settings for Sentry error monitoring. An empty DSN
// disables reporting.
type SentryConfig struct {
	DSN              string            `json:"dsn"`
	Environment      string            `json:"environment"`
	Release          string            `json:"release"`
	ServerName       string            `json:"server_name"`
	TracesSampleRate float64           `json:"traces_sample_rate"`
	Tags             map[string]string `json:"tags"`
	FlushSeconds     int               `json:"flush_seconds"`
}

// SetDefaults applies defaults.
func (c *SentryConfig) SetDefaults() {
	if c.FlushSeconds <= 0 {
		c.FlushSeconds = 2
	}
}

// Validate checks the sample rate.
func (c SentryConfig) Validate() error {
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return fmt.Errorf("sentry traces_sample_rate %v outside [0,1]", c.TracesSampleRate)
	}
	return nil
}
