package clock

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSpec is a daily calendar pattern. A nil field is a wildcard.
type CronSpec struct {
	Second   *int
	Minute   *int
	Hour     *int
	Location *time.Location
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour)

// ParseCronSpec parses "second minute hour" where each field is a single
// value or "*". A leading CRON_TZ=<zone> selects the location.
func ParseCronSpec(expr string) (CronSpec, error) {
	parsed, err := cronParser.Parse(expr)
	if err != nil {
		return CronSpec{}, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	ss, ok := parsed.(*cron.SpecSchedule)
	if !ok {
		return CronSpec{}, fmt.Errorf("parse cron %q: unsupported schedule", expr)
	}
	var spec CronSpec
	if spec.Second, err = cronField(ss.Second, 0, 59); err != nil {
		return CronSpec{}, fmt.Errorf("parse cron %q: second: %w", expr, err)
	}
	if spec.Minute, err = cronField(ss.Minute, 0, 59); err != nil {
		return CronSpec{}, fmt.Errorf("parse cron %q: minute: %w", expr, err)
	}
	if spec.Hour, err = cronField(ss.Hour, 0, 23); err != nil {
		return CronSpec{}, fmt.Errorf("parse cron %q: hour: %w", expr, err)
	}
	if ss.Location != time.Local {
		spec.Location = ss.Location
	}
	return spec, nil
}

func cronField(mask uint64, lo, hi uint) (*int, error) {
	var all uint64
	for i := lo; i <= hi; i++ {
		all |= 1 << i
	}
	mask &= all
	if mask == all {
		return nil, nil
	}
	if bits.OnesCount64(mask) == 1 {
		v := bits.TrailingZeros64(mask)
		return &v, nil
	}
	return nil, fmt.Errorf("only single values or * are supported")
}

// Validate reports fields outside their range.
func (s CronSpec) Validate() error {
	check := func(name string, v *int, max int) error {
		if v != nil && (*v < 0 || *v > max) {
			return fmt.Errorf("cron %s %d out of range [0,%d]", name, *v, max)
		}
		return nil
	}
	if err := check("second", s.Second, 59); err != nil {
		return err
	}
	if err := check("minute", s.Minute, 59); err != nil {
		return err
	}
	return check("hour", s.Hour, 23)
}

// Matches reports whether t (truncated to the second) matches the pattern.
func (s CronSpec) Matches(t time.Time) bool {
	t = t.In(s.location())
	match := func(v *int, got int) bool { return v == nil || *v == got }
	return match(s.Second, t.Second()) && match(s.Minute, t.Minute()) && match(s.Hour, t.Hour())
}

// Next returns the first matching time strictly after t.
func (s CronSpec) Next(t time.Time) (time.Time, error) {
	sched, err := s.schedule()
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t), nil
}

func (s CronSpec) String() string {
	f := func(v *int) string {
		if v == nil {
			return "*"
		}
		return strconv.Itoa(*v)
	}
	expr := strings.Join([]string{f(s.Second), f(s.Minute), f(s.Hour)}, " ")
	if s.Location != nil {
		expr = "CRON_TZ=" + s.Location.String() + " " + expr
	}
	return expr
}

func (s CronSpec) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

func (s CronSpec) schedule() (cron.Schedule, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return cronParser.Parse(s.String())
}

// Daily returns a spec matching once a day at the given wall time.
func Daily(hour, minute, second int) CronSpec {
	return CronSpec{Second: &second, Minute: &minute, Hour: &hour}
}
