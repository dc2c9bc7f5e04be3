// Package logger defines the logging contract used by core packages so they
// stay independent of the zerolog backend in infra/logger.
package logger

// Fields are structured key/value pairs attached to one entry.
type Fields = map[string]any

// Logger is the leveled logger handed to every component.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields Fields)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
