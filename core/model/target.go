package model

import "fmt"

// Unset marks an absent SOC or energy target.
const Unset = -1

// TargetCharge is a distribution-operator order to reach a state of charge
// (percent) or an energy content (Wh) at Time (epoch seconds).
type TargetCharge struct {
	SOC  int   `json:"soc"`
	Wh   int   `json:"wh"`
	Time int64 `json:"time"`
}

// NewSOCTarget returns a validated SOC target.
func NewSOCTarget(soc int, at int64) (TargetCharge, error) {
	t := TargetCharge{SOC: soc, Wh: Unset, Time: at}
	return t, t.Validate()
}

// NewWhTarget returns a validated energy target.
func NewWhTarget(wh int, at int64) (TargetCharge, error) {
	t := TargetCharge{SOC: Unset, Wh: wh, Time: at}
	return t, t.Validate()
}

// Validate requires exactly one of SOC and Wh to be set.
func (t TargetCharge) Validate() error {
	hasSOC, hasWh := t.SOC != Unset, t.Wh != Unset
	switch {
	case hasSOC == hasWh:
		return fmt.Errorf("%w: exactly one of soc and wh must be set", ErrInvalidTarget)
	case hasSOC && (t.SOC < 0 || t.SOC > 100):
		return fmt.Errorf("%w: soc %d outside [0,100]", ErrInvalidTarget, t.SOC)
	case hasWh && t.Wh < 0:
		return fmt.Errorf("%w: negative energy %d", ErrInvalidTarget, t.Wh)
	case t.Time <= 0:
		return fmt.Errorf("%w: missing target time", ErrInvalidTarget)
	}
	return nil
}

// Pending reports whether the target lies in the future.
func (t TargetCharge) Pending(now int64) bool { return t.Time > now }

// DeviceTask is a per-device power plan in W, one value per slot.
type DeviceTask struct {
	DeviceID     string `json:"device_id"`
	StartingTime int64  `json:"starting_time"`
	SlotLength   int64  `json:"slot_length"`
	Power        []int  `json:"power"`
}

// PowerAt returns the planned power at epoch second t and false outside the
// plan.
func (d DeviceTask) PowerAt(t int64) (int, bool) {
	if d.SlotLength <= 0 || t < d.StartingTime {
		return 0, false
	}
	i := int((t - d.StartingTime) / d.SlotLength)
	if i >= len(d.Power) {
		return 0, false
	}
	return d.Power[i], true
}
