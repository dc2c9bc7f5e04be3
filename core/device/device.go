// Package device describes the boundary to local field devices. The wire
// encoding lives in infra/mqtt.
package device

import (
	"context"
	"fmt"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
)

// REMS input register addresses.
const (
	RegisterSOC             = 125
	RegisterSystemState     = 200
	RegisterSystemErrorBase = 235 // four consecutive registers
)

// MeterKind classifies meter readings.
type MeterKind string

const (
	MeterConsumption MeterKind = "consumption"
	MeterProduction  MeterKind = "production"
	MeterBattery     MeterKind = "battery"
)

// ProviderState is the live state of a flexibility provider.
type ProviderState struct {
	DeviceID      string  `json:"device_id"`
	SOC           float64 `json:"soc"` // percent
	CapacityWh    float64 `json:"capacity_wh"`
	MaxChargeW    float64 `json:"max_charge_w"`
	MaxDischargeW float64 `json:"max_discharge_w"`
}

// StoredWh returns the energy content implied by SOC.
func (p ProviderState) StoredWh() float64 { return p.CapacityWh * p.SOC / 100 }

// BatteryState carries the REMS relevant battery registers.
type BatteryState struct {
	DeviceID        string `json:"device_id"`
	SOC             int    `json:"soc"`
	SystemStateCode int    `json:"system_state_code"`
	ErrorCodes      [4]int `json:"error_codes"`
}

// MeterReading is a cumulative energy counter sample. Production and battery
// discharge count negative.
type MeterReading struct {
	DeviceID  string    `json:"device_id"`
	Kind      MeterKind `json:"kind"`
	Timestamp int64     `json:"timestamp"`
	EnergyWh  float64   `json:"energy_wh"`
}

// REMSData is the coil and register image published to REMS.
type REMSData struct {
	DeviceID  string       `json:"device_id"`
	Coils     map[int]bool `json:"coils,omitempty"`
	Registers map[int]int  `json:"registers,omitempty"`
}

// ControlTarget selects the REMS address space of a write.
type ControlTarget string

const (
	TargetCoil     ControlTarget = "coil"
	TargetRegister ControlTarget = "register"
)

// REMSControl is an inbound coil or register write from REMS. For coils a
// non-zero Value means set.
type REMSControl struct {
	Target  ControlTarget `json:"target"`
	Address int           `json:"address"`
	Value   int           `json:"value"`
}

// SignalLayer sends device-facing signals.
type SignalLayer interface {
	PublishREMS(ctx context.Context, data REMSData) error
	ForwardEnabled(ctx context.Context, deviceID string, enabled bool) error
	SetBatteryTarget(ctx context.Context, deviceID string, target model.TargetCharge) error
	ForwardControl(ctx context.Context, deviceID string, c REMSControl) error
	DeliverTasks(ctx context.Context, tasks []model.DeviceTask) error
}

// StateSource reports live device state.
type StateSource interface {
	ProviderStates(ctx context.Context, ids []string) ([]ProviderState, error)
	BatteryStates(ctx context.Context, ids []string) ([]BatteryState, error)
	MeterReadings(ctx context.Context, ids []string) ([]MeterReading, error)
}

// REMSListener receives inbound REMS writes.
type REMSListener interface {
	OnREMSControl(ctx context.Context, c REMSControl) error
}

// EnabledListener receives the gateway enable flag.
type EnabledListener interface {
	SetEnabled(ctx context.Context, enabled bool) error
}

// Validate rejects unknown targets and negative addresses.
func (c REMSControl) Validate() error {
	if c.Target != TargetCoil && c.Target != TargetRegister {
		return fmt.Errorf("unknown REMS target %q", c.Target)
	}
	if c.Address < 0 {
		return fmt.Errorf("negative REMS address %d", c.Address)
	}
	return nil
}
