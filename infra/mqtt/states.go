package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/device"
	coremqtt "github.com/kfoerderer/gridcontrol-bems-sub001/core/mqtt"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

// ErrNoState is returned when a requested device never reported.
var ErrNoState = errors.New("no state reported")

// StateCache implements device.StateSource from retained device messages.
type StateCache struct {
	topics coremqtt.Topics
	log    logger.Logger

	mu        sync.RWMutex
	providers map[string]device.ProviderState
	batteries map[string]device.BatteryState
	meters    map[string]device.MeterReading
}

// NewStateCache returns an empty cache. Call Attach to start receiving.
func NewStateCache(prefix string, log logger.Logger) *StateCache {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &StateCache{
		topics:    coremqtt.NewTopics(prefix),
		log:       log,
		providers: make(map[string]device.ProviderState),
		batteries: make(map[string]device.BatteryState),
		meters:    make(map[string]device.MeterReading),
	}
}

// Attach subscribes to the device state topics.
func (c *StateCache) Attach(sub Subscriber) error {
	return errors.Join(
		sub.Subscribe(c.topics.Wildcard(c.topics.DeviceState), "state", c.onProvider),
		sub.Subscribe(c.topics.Wildcard(c.topics.BatteryState), "state", c.onBattery),
		sub.Subscribe(c.topics.Wildcard(c.topics.MeterMeasurement), "state", c.onMeter),
	)
}

func (c *StateCache) decode(topic string, payload []byte, v any) (string, bool) {
	id, err := c.topics.DeviceID(topic)
	if err != nil {
		c.log.Warnf("ignoring message: %v", err)
		return "", false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		c.log.Warnf("invalid payload on %s: %v", topic, err)
		return "", false
	}
	return id, true
}

func (c *StateCache) onProvider(topic string, payload []byte) {
	var st device.ProviderState
	id, ok := c.decode(topic, payload, &st)
	if !ok {
		return
	}
	st.DeviceID = id
	c.mu.Lock()
	c.providers[id] = st
	c.mu.Unlock()
}

func (c *StateCache) onBattery(topic string, payload []byte) {
	var st device.BatteryState
	id, ok := c.decode(topic, payload, &st)
	if !ok {
		return
	}
	st.DeviceID = id
	c.mu.Lock()
	c.batteries[id] = st
	c.mu.Unlock()
}

func (c *StateCache) onMeter(topic string, payload []byte) {
	var r device.MeterReading
	id, ok := c.decode(topic, payload, &r)
	if !ok {
		return
	}
	r.DeviceID = id
	c.mu.Lock()
	c.meters[id] = r
	c.mu.Unlock()
}

func collect[T any](mu *sync.RWMutex, m map[string]T, ids []string) ([]T, error) {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]T, 0, len(ids))
	var missing []error
	for _, id := range ids {
		v, ok := m[id]
		if !ok {
			missing = append(missing, fmt.Errorf("%s: %w", id, ErrNoState))
			continue
		}
		out = append(out, v)
	}
	return out, errors.Join(missing...)
}

// ProviderStates returns the reported states. Missing devices are omitted
// and reported in the joined error.
func (c *StateCache) ProviderStates(_ context.Context, ids []string) ([]device.ProviderState, error) {
	return collect(&c.mu, c.providers, ids)
}

func (c *StateCache) BatteryStates(_ context.Context, ids []string) ([]device.BatteryState, error) {
	return collect(&c.mu, c.batteries, ids)
}

// MeterReadings omits meters that never reported without failing, so a
// missing production meter does not block deviation tracking.
func (c *StateCache) MeterReadings(_ context.Context, ids []string) ([]device.MeterReading, error) {
	out, _ := collect(&c.mu, c.meters, ids)
	return out, nil
}
