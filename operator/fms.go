package operator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

// Message is the JSON document exchanged with the FMS.
type Message struct {
	Type        string             `json:"type"`
	Site        string             `json:"site"`
	Schedule    *model.Schedule    `json:"schedule,omitempty"`
	Flexibility *model.Flexibility `json:"flexibility,omitempty"`
}

// FMSClient implements fms.Channel over HTTP and fetches FMS instructions.
type FMSClient struct {
	cfg FMSConfig
	t   *transport
	log logger.Logger
}

var _ fms.Channel = (*FMSClient)(nil)

// NewFMSClient validates cfg. client may be nil.
func NewFMSClient(cfg FMSConfig, client *http.Client, log logger.Logger) (*FMSClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.New("fms_client")
	}
	return &FMSClient{cfg: cfg, t: newTransport("fms", cfg.ClientConfig, client, log), log: log}, nil
}

// PublishSchedule pushes an initial schedule or an update together with its
// flexibility offer. Both must share start, slot length and slot count.
func (c *FMSClient) PublishSchedule(ctx context.Context, s model.Schedule, f model.Flexibility, t fms.PublicationType) error {
	if t != fms.InitialSchedule && t != fms.ScheduleUpdate {
		return fmt.Errorf("publication type %s cannot be pushed", t)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if !model.Aligned(s, f) {
		return fmt.Errorf("%w: schedule and flexibility frames differ", model.ErrInvalidFlexibility)
	}
	return c.push(ctx, Message{Type: t.String(), Site: c.cfg.Site, Schedule: &s, Flexibility: &f})
}

// DeclineScheduleRequest tells the FMS that a requested schedule cannot be
// provided.
func (c *FMSClient) DeclineScheduleRequest(ctx context.Context) error {
	return c.push(ctx, Message{Type: fms.ScheduleRequestDenial.String(), Site: c.cfg.Site})
}

func (c *FMSClient) push(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	url := c.t.url(c.cfg.PushPath, c.cfg.Site, m.Type)
	if _, _, err := c.t.do(ctx, http.MethodPost, url, "application/json", body, false); err != nil {
		return fmt.Errorf("push %s: %w", m.Type, err)
	}
	c.log.Infof("pushed %s to fms", m.Type)
	return nil
}

// errNoInstruction signals an empty pull slot.
var errNoInstruction = errors.New("no instruction")

// Fetch retrieves the pending instruction of type t.
func (c *FMSClient) Fetch(ctx context.Context, t fms.PublicationType) (model.Schedule, error) {
	url := c.t.url(c.cfg.PullPath, c.cfg.Site, t.String())
	code, body, err := c.t.do(ctx, http.MethodGet, url, "", nil, true)
	if err != nil {
		return model.Schedule{}, fmt.Errorf("pull %s: %w", t, err)
	}
	if code == http.StatusNotFound || code == http.StatusNoContent || len(body) == 0 {
		return model.Schedule{}, errNoInstruction
	}
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return model.Schedule{}, fmt.Errorf("%w: %v", model.ErrInvalidSchedule, err)
	}
	if m.Schedule == nil {
		return model.Schedule{}, fmt.Errorf("%w: %s without schedule", model.ErrInvalidSchedule, t)
	}
	if err := m.Schedule.Validate(); err != nil {
		return model.Schedule{}, err
	}
	return *m.Schedule, nil
}

// Acknowledge removes the instruction of type t from the FMS. ok=false marks
// it as rejected.
func (c *FMSClient) Acknowledge(ctx context.Context, t fms.PublicationType, ok bool) error {
	status := "ok"
	if !ok {
		status = "failed"
	}
	url := c.t.url(c.cfg.PullPath, c.cfg.Site, t.String()) + "?status=" + status
	if _, _, err := c.t.do(ctx, http.MethodDelete, url, "", nil, true); err != nil {
		return fmt.Errorf("acknowledge %s: %w", t, err)
	}
	return nil
}
