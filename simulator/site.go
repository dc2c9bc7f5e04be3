package main

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
)

// Site is a household with a load profile, a PV system and one battery
// following the device tasks sent by the gateway.
type Site struct {
	BatteryID     string
	ConsumptionID string
	ProductionID  string
	Battery       *Battery
	// LoadW is the household demand per local hour.
	LoadW    [24]float64
	PVPeakW  float64
	Location *time.Location

	mu         sync.Mutex
	task       *model.DeviceTask
	consumedWh float64
	producedWh float64
	batteryWh  float64
}

// Snapshot is everything the site reports after a step.
type Snapshot struct {
	Provider device.ProviderState
	Battery  device.BatteryState
	Meters   []device.MeterReading
}

// SetTask replaces the battery power plan. Tasks for other devices are
// ignored.
func (s *Site) SetTask(t model.DeviceTask) bool {
	if t.DeviceID != s.BatteryID {
		return false
	}
	s.mu.Lock()
	s.task = &t
	s.mu.Unlock()
	return true
}

func (s *Site) loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// PVPower returns the PV output in W at t: a half sine between 6:00 and
// 20:00 local time.
func (s *Site) PVPower(t time.Time) float64 {
	lt := t.In(s.loc())
	h := float64(lt.Hour()) + float64(lt.Minute())/60
	if h < 6 || h > 20 {
		return 0
	}
	return s.PVPeakW * math.Sin(math.Pi*(h-6)/14)
}

// Step advances the site by dt ending at now.
func (s *Site) Step(now time.Time, dt time.Duration) Snapshot {
	hours := dt.Hours()
	load := s.LoadW[now.In(s.loc()).Hour()]
	pv := s.PVPower(now)

	s.mu.Lock()
	var planned float64
	if s.task != nil {
		if p, ok := s.task.PowerAt(now.Unix()); ok {
			planned = float64(p)
		}
	}
	s.mu.Unlock()
	moved := s.Battery.ApplyPower(planned, dt)

	s.mu.Lock()
	s.consumedWh += load * hours
	s.producedWh -= pv * hours
	s.batteryWh += moved
	snap := Snapshot{
		Provider: device.ProviderState{
			DeviceID:      s.BatteryID,
			SOC:           s.Battery.SOC(),
			CapacityWh:    s.Battery.CapacityWh,
			MaxChargeW:    s.Battery.MaxChargeW,
			MaxDischargeW: s.Battery.MaxDischargeW,
		},
		Battery: device.BatteryState{DeviceID: s.BatteryID, SOC: int(math.Round(s.Battery.SOC()))},
		Meters: []device.MeterReading{
			{DeviceID: s.ConsumptionID, Kind: device.MeterConsumption, Timestamp: now.Unix(), EnergyWh: s.consumedWh},
			{DeviceID: s.ProductionID, Kind: device.MeterProduction, Timestamp: now.Unix(), EnergyWh: s.producedWh},
			{DeviceID: s.BatteryID, Kind: device.MeterBattery, Timestamp: now.Unix(), EnergyWh: s.batteryWh},
		},
	}
	s.mu.Unlock()
	return snap
}

// LoadProfile parses an hourly load profile keyed by hour ("0".."23").
// Other keys are ignored.
func LoadProfile(m map[string]float64) [24]float64 {
	var prof [24]float64
	for h, v := range m {
		hour, err := strconv.Atoi(h)
		if err == nil && hour >= 0 && hour < 24 {
			prof[hour] = v
		}
	}
	return prof
}
