package operator

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kfoerderer/gridcontrol-bems-sub001/auth"
)

// ServerConfig configures the inbound HTTP API.
type ServerConfig struct {
	Addr           string   `json:"addr"`
	Token          string   `json:"token"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// SetDefaults applies defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// ClientConfig holds the transport settings shared by outbound adapters.
type ClientConfig struct {
	BaseURL        string    `json:"base_url"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	MaxRetries     int       `json:"max_retries"`
	BackoffMS      int       `json:"backoff_ms"`
	Auth           auth.Conf `json:"auth"`
}

// SetDefaults applies defaults.
func (c *ClientConfig) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 500
	}
}

// Validate checks the base URL.
func (c ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url scheme %q not supported", u.Scheme)
	}
	return nil
}

func (c ClientConfig) timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }
func (c ClientConfig) backoff() time.Duration { return time.Duration(c.BackoffMS) * time.Millisecond }

// FMSConfig configures the FMS push and pull adapter.
type FMSConfig struct {
	ClientConfig
	// Site identifies this gateway (virtual supply point) on the FMS.
	Site string `json:"site"`
	// PushPath prefixes outbound publications.
	PushPath string `json:"push_path"`
	// PullPath prefixes instructions fetched from the FMS.
	PullPath string `json:"pull_path"`
	// PollingPeriod is the time in seconds between two pulls.
	PollingPeriod int64 `json:"polling_period"`
}

// SetDefaults applies defaults.
func (c *FMSConfig) SetDefaults() {
	c.ClientConfig.SetDefaults()
	if c.PushPath == "" {
		c.PushPath = "/push"
	}
	if c.PullPath == "" {
		c.PullPath = "/pull"
	}
	if c.PollingPeriod <= 0 {
		c.PollingPeriod = 300
	}
}

// Validate checks mandatory fields.
func (c FMSConfig) Validate() error {
	if err := c.ClientConfig.Validate(); err != nil {
		return fmt.Errorf("fms: %w", err)
	}
	if c.Site == "" {
		return errors.New("fms: site is required")
	}
	return nil
}

// ControlConfig configures the outbound control message channel.
type ControlConfig struct {
	ClientConfig
	Path string `json:"path"`
}

// SetDefaults applies defaults.
func (c *ControlConfig) SetDefaults() {
	c.ClientConfig.SetDefaults()
	if c.Path == "" {
		c.Path = "/messages"
	}
}

// Validate checks mandatory fields.
func (c ControlConfig) Validate() error {
	if err := c.ClientConfig.Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	return nil
}
