package mqtt

import (
	"context"
	"errors"
	"fmt"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	coremqtt "github.com/kfoerderer/gridcontrol-bems-sub001/core/mqtt"
)

// Publisher sends JSON payloads to the broker.
type Publisher interface {
	PublishJSON(ctx context.Context, topic, qosKey string, retained bool, v any) error
}

// Subscriber registers inbound message handlers.
type Subscriber interface {
	Subscribe(topic, qosKey string, handler MessageHandler) error
}

type enabledMessage struct {
	Enabled bool `json:"enabled"`
}

type tasksMessage struct {
	DeviceID string             `json:"device_id"`
	Tasks    []model.DeviceTask `json:"tasks"`
}

// SignalLayer implements device.SignalLayer on top of a Publisher.
type SignalLayer struct {
	pub    Publisher
	topics coremqtt.Topics
}

// NewSignalLayer returns a SignalLayer publishing under prefix.
func NewSignalLayer(pub Publisher, prefix string) *SignalLayer {
	return &SignalLayer{pub: pub, topics: coremqtt.NewTopics(prefix)}
}

// PublishREMS publishes the register image retained so REMS sees the last
// value after reconnecting.
func (s *SignalLayer) PublishREMS(ctx context.Context, d device.REMSData) error {
	return s.pub.PublishJSON(ctx, s.topics.REMSRegisters(), "rems", true, d)
}

func (s *SignalLayer) ForwardEnabled(ctx context.Context, id string, enabled bool) error {
	return s.pub.PublishJSON(ctx, s.topics.DeviceEnabled(id), "control", true, enabledMessage{Enabled: enabled})
}

func (s *SignalLayer) SetBatteryTarget(ctx context.Context, id string, t model.TargetCharge) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.pub.PublishJSON(ctx, s.topics.DeviceTarget(id), "control", false, t)
}

func (s *SignalLayer) ForwardControl(ctx context.Context, id string, c device.REMSControl) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return s.pub.PublishJSON(ctx, s.topics.DeviceControl(id), "control", false, c)
}

// DeliverTasks groups tasks per device and publishes one message per device.
func (s *SignalLayer) DeliverTasks(ctx context.Context, tasks []model.DeviceTask) error {
	grouped := make(map[string][]model.DeviceTask)
	var order []string
	for _, t := range tasks {
		if _, ok := grouped[t.DeviceID]; !ok {
			order = append(order, t.DeviceID)
		}
		grouped[t.DeviceID] = append(grouped[t.DeviceID], t)
	}
	var errs []error
	for _, id := range order {
		msg := tasksMessage{DeviceID: id, Tasks: grouped[id]}
		if err := s.pub.PublishJSON(ctx, s.topics.DeviceTasks(id), "tasks", false, msg); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
