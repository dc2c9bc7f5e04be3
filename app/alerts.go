package app

import (
	"context"
	"encoding/json"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/control"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
	"github.com/kfoerderer/gridcontrol-bems-sub001/internal/eventbus"
)

// AlertTopic is the control channel topic receiving scheduler alerts.
const AlertTopic = "alerts"

func alerting(t scheduler.EventType) bool {
	switch t {
	case scheduler.EventPublicationFailed, scheduler.EventTaskFailed,
		scheduler.EventTaskDropped, scheduler.EventRecordDiscarded:
		return true
	}
	return false
}

// StartAlertForwarder posts failure events from bus to ch until ctx is
// canceled or the bus closes. The returned channel is closed on exit.
func StartAlertForwarder(ctx context.Context, bus *eventbus.TypedBus[scheduler.Event], ch control.Channel, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || ch == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if !alerting(ev.Type) {
					continue
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					log.Errorf("encode alert: %v", err)
					continue
				}
				if err := ch.PublishMessage(ctx, AlertTopic, payload); err != nil {
					log.Warnf("forward %s alert: %v", ev.Type, err)
				}
			}
		}
	}()
	return done
}
