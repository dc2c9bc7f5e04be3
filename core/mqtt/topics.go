// Package mqtt defines the topic layout shared by the gateway and its
// devices.
package mqtt

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the root of every gateway topic.
const DefaultPrefix = "gems"

// Topics builds topic names under a common prefix.
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, or DefaultPrefix when empty.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) join(parts ...string) string {
	return t.Prefix + "/" + strings.Join(parts, "/")
}

// REMSRegisters carries the register image published to REMS.
func (t Topics) REMSRegisters() string { return t.join("rems", "registers") }

// REMSEnabled carries the gateway enable flag sent by REMS.
func (t Topics) REMSEnabled() string { return t.join("rems", "enabled") }

// REMSControl carries coil and register writes sent by REMS.
func (t Topics) REMSControl() string { return t.join("rems", "control") }

// DeviceTarget carries a charge target for a battery.
func (t Topics) DeviceTarget(id string) string { return t.join("device", id, "target") }

// DeviceTasks carries the power profile for a device.
func (t Topics) DeviceTasks(id string) string { return t.join("device", id, "tasks") }

// DeviceControl carries forwarded REMS writes for a device.
func (t Topics) DeviceControl(id string) string { return t.join("device", id, "control") }

// DeviceEnabled carries the forwarded enable flag for a device.
func (t Topics) DeviceEnabled(id string) string { return t.join("device", id, "enabled") }

// DeviceState carries the flexibility provider state of a device.
func (t Topics) DeviceState(id string) string { return t.join("device", id, "state") }

// BatteryState carries the REMS relevant state of a battery.
func (t Topics) BatteryState(id string) string { return t.join("battery", id, "state") }

// MeterMeasurement carries cumulative meter counters.
func (t Topics) MeterMeasurement(id string) string { return t.join("meter", id, "measurement") }

// Wildcard replaces the device id segment of a per-device topic with "+".
func (t Topics) Wildcard(topic func(string) string) string { return topic("+") }

// DeviceID extracts the id segment from a per-device topic. It returns an
// error when topic does not have the form prefix/kind/id/leaf.
func (t Topics) DeviceID(topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok {
		return "", fmt.Errorf("topic %q outside prefix %q", topic, t.Prefix)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] == "" {
		return "", fmt.Errorf("topic %q has no device segment", topic)
	}
	return parts[1], nil
}
