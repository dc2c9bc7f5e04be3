package model

import (
	"fmt"
	"time"
)

// PublicationKind distinguishes initial day-ahead publications from updates.
type PublicationKind string

const (
	PublicationInitial PublicationKind = "initial"
	PublicationUpdate  PublicationKind = "update"
)

// Publication describes a schedule publication covering [From, To).
// Schedule and Flexibility are set once computed so a retry re-submits the
// same payload.
type Publication struct {
	Kind        PublicationKind `json:"kind"`
	From        int64           `json:"from"`
	To          int64           `json:"to"`
	Schedule    *Schedule       `json:"schedule,omitempty"`
	Flexibility *Flexibility    `json:"flexibility,omitempty"`
}

// Expired reports whether the validity horizon ended before now.
func (p Publication) Expired(now int64) bool { return p.To < now }

// Validate checks the horizon and any attached payload.
func (p Publication) Validate() error {
	if p.Kind != PublicationInitial && p.Kind != PublicationUpdate {
		return fmt.Errorf("unknown publication kind %q", p.Kind)
	}
	if p.To < p.From {
		return fmt.Errorf("publication horizon ends before it starts (%d < %d)", p.To, p.From)
	}
	if p.Schedule != nil {
		if err := p.Schedule.Validate(); err != nil {
			return err
		}
	}
	if p.Flexibility != nil {
		if err := p.Flexibility.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p Publication) Clone() Publication {
	c := p
	if p.Schedule != nil {
		s := p.Schedule.Clone()
		c.Schedule = &s
	}
	if p.Flexibility != nil {
		f := p.Flexibility.Clone()
		c.Flexibility = &f
	}
	return c
}

func (p Publication) String() string {
	return fmt.Sprintf("%s[%s..%s]", p.Kind,
		time.Unix(p.From, 0).UTC().Format(time.RFC3339), time.Unix(p.To, 0).UTC().Format(time.RFC3339))
}
