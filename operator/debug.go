package operator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

// DebugChannel logs publications instead of sending them. It accepts every
// message and keeps the last one for inspection.
type DebugChannel struct {
	site string
	log  logger.Logger

	mu   sync.Mutex
	last *Message
	sent int
}

var _ fms.Channel = (*DebugChannel)(nil)

func NewDebugChannel(site string, log logger.Logger) *DebugChannel {
	if log == nil {
		log = logger.New("fms_debug")
	}
	return &DebugChannel{site: site, log: log}
}

func (d *DebugChannel) PublishSchedule(_ context.Context, s model.Schedule, f model.Flexibility, t fms.PublicationType) error {
	d.record(Message{Type: t.String(), Site: d.site, Schedule: &s, Flexibility: &f})
	return nil
}

func (d *DebugChannel) DeclineScheduleRequest(context.Context) error {
	d.record(Message{Type: fms.ScheduleRequestDenial.String(), Site: d.site})
	return nil
}

func (d *DebugChannel) record(m Message) {
	d.mu.Lock()
	d.last = &m
	d.sent++
	d.mu.Unlock()
	data, err := json.Marshal(m)
	if err != nil {
		d.log.Errorf("encode %s: %v", m.Type, err)
		return
	}
	d.log.Infof("fms debug %s: %s", m.Type, data)
}

// Last returns the most recent message and the number sent so far.
func (d *DebugChannel) Last() (*Message, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.sent
}
