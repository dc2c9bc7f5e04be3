// Package monitoring routes unexpected failures to an error tracker. The
// gateway installs a Sentry backed Monitor at startup; until then every
// report is dropped.
package monitoring

import (
	"sync"
	"time"
)

// Tags annotate a single report, e.g. {"module": "mqtt"}.
type Tags = map[string]string

// Monitor is implemented by error tracking backends.
type Monitor interface {
	CaptureException(err error, tags Tags)
	CapturePanic(v any)
	Flush(timeout time.Duration)
}

// NopMonitor discards every report.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, Tags) {}
func (NopMonitor) CapturePanic(any)             {}
func (NopMonitor) Flush(time.Duration)          {}

const panicFlush = 2 * time.Second

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init installs m process wide. A nil m restores the NopMonitor.
func Init(m Monitor) {
	if m == nil {
		m = NopMonitor{}
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func installed() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException reports err with tags. Nil errors are ignored.
func CaptureException(err error, tags Tags) {
	if err == nil {
		return
	}
	installed().CaptureException(err, tags)
}

// Recover reports a panic and re-raises it. It must be deferred directly
// in the goroutine that may panic.
func Recover() {
	if r := recover(); r != nil {
		m := installed()
		m.CapturePanic(r)
		m.Flush(panicFlush)
		panic(r)
	}
}

// Flush waits up to d for buffered reports to be delivered.
func Flush(d time.Duration) {
	installed().Flush(d)
}
