package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	coremqtt "github.com/kfoerderer/gridcontrol-bems-sub001/core/mqtt"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
	"github.com/kfoerderer/gridcontrol-bems-sub001/internal/eventbus"
)

// Inbound routes REMS messages to registered listeners.
type Inbound struct {
	topics  coremqtt.Topics
	log     logger.Logger
	enabled *eventbus.Registry[bool]
	control *eventbus.Registry[device.REMSControl]
}

// NewInbound returns a router without listeners.
func NewInbound(prefix string, log logger.Logger) *Inbound {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Inbound{
		topics:  coremqtt.NewTopics(prefix),
		log:     log,
		enabled: eventbus.NewRegistry[bool](),
		control: eventbus.NewRegistry[device.REMSControl](),
	}
}

// AddEnabledListener registers l under id.
func (in *Inbound) AddEnabledListener(id string, l device.EnabledListener) {
	in.enabled.Add(id, l.SetEnabled)
}

// AddREMSListener registers l under id.
func (in *Inbound) AddREMSListener(id string, l device.REMSListener) {
	in.control.Add(id, l.OnREMSControl)
}

// RemoveListener drops every registration made under id.
func (in *Inbound) RemoveListener(id string) {
	in.enabled.Remove(id)
	in.control.Remove(id)
}

// Attach subscribes to the REMS topics.
func (in *Inbound) Attach(sub Subscriber) error {
	return errors.Join(
		sub.Subscribe(in.topics.REMSEnabled(), "rems", in.onEnabled),
		sub.Subscribe(in.topics.REMSControl(), "rems", in.onControl),
	)
}

// parseEnabled accepts {"enabled":bool}, a bare JSON bool or 0/1.
func parseEnabled(payload []byte) (bool, error) {
	var msg enabledMessage
	if err := json.Unmarshal(payload, &msg); err == nil {
		return msg.Enabled, nil
	}
	s := strings.TrimSpace(string(payload))
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	return false, errors.New("enable flag must be a bool")
}

func (in *Inbound) onEnabled(topic string, payload []byte) {
	enabled, err := parseEnabled(payload)
	if err != nil {
		in.log.Warnf("invalid payload on %s: %v", topic, err)
		return
	}
	if err := in.enabled.Notify(context.Background(), enabled); err != nil {
		in.log.Errorf("enabled listeners: %v", err)
	}
}

func (in *Inbound) onControl(topic string, payload []byte) {
	var c device.REMSControl
	if err := json.Unmarshal(payload, &c); err != nil {
		in.log.Warnf("invalid payload on %s: %v", topic, err)
		return
	}
	if err := c.Validate(); err != nil {
		in.log.Warnf("rejecting REMS write on %s: %v", topic, err)
		return
	}
	if err := in.control.Notify(context.Background(), c); err != nil {
		in.log.Errorf("REMS listeners: %v", err)
	}
}
