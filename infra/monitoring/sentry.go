// Package monitoring reports captured errors and panics to Sentry.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kfoerderer/gridcontrol-bems-sub001/config"
	coremon "github.com/kfoerderer/gridcontrol-bems-sub001/core/monitoring"
)

// Option customises the Sentry client.
type Option func(*sentry.ClientOptions)

// WithBeforeSend installs a hook that sees every event before transport.
// Returning nil drops the event.
func WithBeforeSend(fn func(*sentry.Event) *sentry.Event) Option {
	return func(o *sentry.ClientOptions) {
		o.BeforeSend = func(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event { return fn(ev) }
	}
}

// NewSentryMonitor builds a Monitor backed by its own Sentry hub. An empty
// DSN yields a NopMonitor.
func NewSentryMonitor(cfg config.SentryConfig, opts ...Option) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	cfg.SetDefaults()
	co := sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
		TracesSampleRate: cfg.TracesSampleRate,
	}
	for _, o := range opts {
		o(&co)
	}
	client, err := sentry.NewClient(co)
	if err != nil {
		return nil, err
	}
	scope := sentry.NewScope()
	for k, v := range cfg.Tags {
		scope.SetTag(k, v)
	}
	return &sentryMonitor{
		hub:   sentry.NewHub(client, scope),
		flush: time.Duration(cfg.FlushSeconds) * time.Second,
	}, nil
}

type sentryMonitor struct {
	hub   *sentry.Hub
	flush time.Duration
}

func (s *sentryMonitor) CaptureException(err error, tags coremon.Tags) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		s.hub.CaptureException(err)
	})
}

func (s *sentryMonitor) CapturePanic(v any) { s.hub.Recover(v) }

// Flush falls back to the configured flush timeout when timeout is not positive.
func (s *sentryMonitor) Flush(timeout time.Duration) {
	if timeout <= 0 {
		timeout = s.flush
	}
	s.hub.Flush(timeout)
}
