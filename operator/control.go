package operator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/control"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

// ControlClient publishes messages to the distribution operator platform.
type ControlClient struct {
	cfg ControlConfig
	t   *transport
}

var _ control.Channel = (*ControlClient)(nil)

// NewControlClient validates cfg. client may be nil.
func NewControlClient(cfg ControlConfig, client *http.Client, log logger.Logger) (*ControlClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.New("control_client")
	}
	return &ControlClient{cfg: cfg, t: newTransport("control", cfg.ClientConfig, client, log)}, nil
}

// PublishMessage posts payload to the topic endpoint.
func (c *ControlClient) PublishMessage(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return fmt.Errorf("control topic is required")
	}
	url := c.t.url(c.cfg.Path, topic)
	if _, _, err := c.t.do(ctx, http.MethodPost, url, "application/octet-stream", payload, false); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
