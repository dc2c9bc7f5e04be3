// Package fms defines the boundary to the grid operator's flexibility
// management service.
package fms

import (
	"context"
	"fmt"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
)

// PublicationType tags a message exchanged with the FMS.
type PublicationType int

const (
	InitialSchedule PublicationType = iota
	ScheduleUpdate
	TargetSchedule
	TargetScheduleUpdate
	ScheduleRequest
	ScheduleRequestDenial
)

var publicationTypeNames = map[PublicationType]string{
	InitialSchedule:       "initial_schedule",
	ScheduleUpdate:        "schedule_update",
	TargetSchedule:        "target_schedule",
	TargetScheduleUpdate:  "target_schedule_update",
	ScheduleRequest:       "schedule_request",
	ScheduleRequestDenial: "schedule_request_denial",
}

func (t PublicationType) String() string {
	if s, ok := publicationTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParsePublicationType is the inverse of String.
func ParsePublicationType(s string) (PublicationType, error) {
	for t, name := range publicationTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown publication type %q", s)
}

// TypeFor maps a publication kind to the message type sent upstream.
func TypeFor(kind model.PublicationKind) PublicationType {
	if kind == model.PublicationUpdate {
		return ScheduleUpdate
	}
	return InitialSchedule
}

// Channel publishes schedules to the FMS. A nil error means the FMS accepted
// the message.
type Channel interface {
	PublishSchedule(ctx context.Context, s model.Schedule, f model.Flexibility, t PublicationType) error
	DeclineScheduleRequest(ctx context.Context) error
}

// Listener receives FMS instructions. Implementations must persist the effect
// before returning nil because the channel acknowledges upstream on success.
type Listener interface {
	UpdateSchedule(ctx context.Context, s model.Schedule) error
	RequestSchedule(ctx context.Context, s model.Schedule) error
}
