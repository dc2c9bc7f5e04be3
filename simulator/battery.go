package main

import (
	"math"
	"sync"
	"time"
)

// Battery models a stationary battery with charge/discharge limits.
type Battery struct {
	CapacityWh    float64
	Soc           float64 // [0,1]
	MaxChargeW    float64
	MaxDischargeW float64
	mu            sync.Mutex
}

// ApplyPower updates the SoC for the requested power over dt. Positive power
// charges, negative discharges. It returns the energy actually moved in Wh.
func (b *Battery) ApplyPower(powerW float64, dt time.Duration) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	hours := dt.Hours()
	if hours <= 0 || b.CapacityWh <= 0 {
		return 0
	}
	var moved float64
	switch {
	case powerW > 0:
		p := math.Min(powerW, b.MaxChargeW)
		moved = math.Min(p*hours, (1-b.Soc)*b.CapacityWh)
	case powerW < 0:
		p := math.Min(-powerW, b.MaxDischargeW)
		moved = -math.Min(p*hours, b.Soc*b.CapacityWh)
	}
	b.Soc = math.Max(0, math.Min(1, b.Soc+moved/b.CapacityWh))
	return moved
}

// SOC returns the state of charge in percent.
func (b *Battery) SOC() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Soc * 100
}
