package logger

import (
	"time"

	corelogger "github.com/kfoerderer/gridcontrol-bems-sub001/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// TimeSource supplies the timestamp written into each entry. Every
// core/clock.Clock satisfies it.
type TimeSource interface {
	Now() time.Time
}

// NopLogger implements Logger with no-op methods.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// New returns a Logger for the given component stamped with wall-clock time.
// The output format is selected via the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component, nil)
}

// NewWithClock returns a Logger whose timestamps come from src, so entries
// follow a simulated clock.
func NewWithClock(component string, src TimeSource) Logger {
	return NewZerologLogger(component, src)
}
